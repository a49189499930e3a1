// Package schema loads entity paths and relation definitions from HCL.
//
//	entity "players" {}
//
//	relation "players" "guild" {
//	  kind   = "toOne"
//	  target = "guilds"
//	  field  = "guildId"
//	}
//
// A toOne relation reads the target id from field, or picks the first target
// whose foreign_key equals the owner id. A toMany relation reads an ordered id
// list from field, falling back to foreign_key when the owner lacks the field.
package schema

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"resourcesync/internal/core"
	"resourcesync/pkg/domain"
)

//go:embed guilds.hcl
var builtin []byte

// BuiltinName is the file name reported for the embedded schema.
const BuiltinName = "guilds.hcl"

// File is the decoded form of a schema file.
type File struct {
	Entities  []EntityBlock   `hcl:"entity,block"`
	Relations []RelationBlock `hcl:"relation,block"`
}

// EntityBlock declares an entity path.
type EntityBlock struct {
	Path        string    `hcl:"path,label"`
	Description string    `hcl:"description,optional"`
	DefRange    hcl.Range `hcl:",def_range"`
}

// RelationBlock declares a relation owned by an entity path.
type RelationBlock struct {
	Owner      string    `hcl:"owner,label"`
	Name       string    `hcl:"name,label"`
	Kind       string    `hcl:"kind"`
	Target     string    `hcl:"target"`
	Field      string    `hcl:"field,optional"`
	ForeignKey string    `hcl:"foreign_key,optional"`
	DefRange   hcl.Range `hcl:",def_range"`
}

// Decode parses src as HCL.
func Decode(filename string, src []byte) (*File, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %s", filename, diags.Error())
	}
	var out File
	diags = gohcl.DecodeBody(file.Body, nil, &out)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %s", filename, diags.Error())
	}
	return &out, nil
}

// Parse decodes src and converts it into a registry configuration.
func Parse(filename string, src []byte) (core.RegistryConfig, error) {
	f, err := Decode(filename, src)
	if err != nil {
		return core.RegistryConfig{}, err
	}
	cfg, diags := f.RegistryConfig()
	if diags.HasErrors() {
		return core.RegistryConfig{}, fmt.Errorf("invalid schema %s: %s", filename, diags.Error())
	}
	return cfg, nil
}

// LoadFile reads a schema from disk.
func LoadFile(path string) (core.RegistryConfig, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return core.RegistryConfig{}, fmt.Errorf("read schema: %w", err)
	}
	return Parse(path, src)
}

// Builtin returns the embedded guild demo schema.
func Builtin() (core.RegistryConfig, error) {
	return Parse(BuiltinName, builtin)
}

// Load reads path, or the builtin schema when path is empty.
func Load(path string) (core.RegistryConfig, error) {
	if path == "" {
		return Builtin()
	}
	return LoadFile(path)
}

// RegistryConfig converts the decoded blocks. Problems are reported against
// the block that caused them.
func (f *File) RegistryConfig() (core.RegistryConfig, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	cfg := core.RegistryConfig{
		Relations: make(map[domain.EntityPath]map[string]domain.RelationDefinition),
	}
	seen := make(map[string]bool, len(f.Entities))
	for _, e := range f.Entities {
		if seen[e.Path] {
			diags = append(diags, blockError(e.DefRange, "Duplicate entity", fmt.Sprintf("entity %q is declared more than once", e.Path)))
			continue
		}
		seen[e.Path] = true
		cfg.Paths = append(cfg.Paths, domain.EntityPath(e.Path))
	}
	for _, r := range f.Relations {
		if !seen[r.Owner] {
			diags = append(diags, blockError(r.DefRange, "Unknown owner", fmt.Sprintf("relation %s.%s is owned by undeclared entity %q", r.Owner, r.Name, r.Owner)))
			continue
		}
		if !seen[r.Target] {
			diags = append(diags, blockError(r.DefRange, "Unknown target", fmt.Sprintf("relation %s.%s targets undeclared entity %q", r.Owner, r.Name, r.Target)))
			continue
		}
		def, err := r.definition()
		if err != nil {
			diags = append(diags, blockError(r.DefRange, "Invalid relation", fmt.Sprintf("relation %s.%s: %s", r.Owner, r.Name, err)))
			continue
		}
		owner := domain.EntityPath(r.Owner)
		if cfg.Relations[owner] == nil {
			cfg.Relations[owner] = make(map[string]domain.RelationDefinition)
		}
		if _, dup := cfg.Relations[owner][r.Name]; dup {
			diags = append(diags, blockError(r.DefRange, "Duplicate relation", fmt.Sprintf("relation %s.%s is declared more than once", r.Owner, r.Name)))
			continue
		}
		cfg.Relations[owner][r.Name] = def
	}
	return cfg, diags
}

func (r RelationBlock) definition() (domain.RelationDefinition, error) {
	target := domain.EntityPath(r.Target)
	switch domain.RelationKind(r.Kind) {
	case domain.KindToOne:
		switch {
		case r.Field != "" && r.ForeignKey != "":
			return nil, fmt.Errorf("toOne takes either field or foreign_key")
		case r.Field != "":
			return domain.BelongsTo(target, r.Field), nil
		case r.ForeignKey != "":
			return domain.ToOne{
				Target:        target,
				Resolve:       func(string, domain.Fields) domain.Selector { return domain.All },
				DefaultFilter: domain.ForeignKey(r.ForeignKey),
			}, nil
		default:
			return nil, fmt.Errorf("toOne needs field or foreign_key")
		}
	case domain.KindToMany:
		switch {
		case r.Field != "":
			return domain.HasManyIDs(target, r.Field, r.ForeignKey), nil
		case r.ForeignKey != "":
			return domain.HasMany(target, r.ForeignKey), nil
		default:
			return nil, fmt.Errorf("toMany needs field or foreign_key")
		}
	default:
		return nil, fmt.Errorf("unknown kind %q, want toOne or toMany", r.Kind)
	}
}

func blockError(rng hcl.Range, summary, detail string) *hcl.Diagnostic {
	subject := rng
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   detail,
		Subject:  &subject,
	}
}
