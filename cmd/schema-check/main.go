// Command schema-check validates an HCL relation schema and prints the entity
// paths and relations it declares.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"resourcesync/internal/core"
	"resourcesync/internal/schema"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("schema-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var schemaPath string
	var quiet bool
	fs.StringVar(&schemaPath, "schema", "", "path to relation schema (empty checks the builtin schema)")
	fs.BoolVar(&quiet, "q", false, "only report failures")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	reg, err := run(schemaPath)
	if err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "Schema validation failed: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	if !quiet {
		if err := describe(stdout, reg); err != nil {
			return 1
		}
	}
	if _, writeErr := fmt.Fprintln(stdout, "Schema validation passed."); writeErr != nil {
		return 1
	}
	return 0
}

// validatePath rejects absolute and path-traversing schema references.
func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}
	clean := filepath.Clean(p)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", p)
	}
	return clean, nil
}

// run loads the schema at schemaPath, or the builtin one when empty, and builds
// a registry from it so that every relation is normalized and cross-checked.
func run(schemaPath string) (*core.Registry, error) {
	var cfg core.RegistryConfig
	var err error
	if schemaPath == "" {
		cfg, err = schema.Builtin()
	} else {
		safePath, vErr := validatePath(schemaPath)
		if vErr != nil {
			return nil, vErr
		}
		cfg, err = schema.LoadFile(safePath)
	}
	if err != nil {
		return nil, err
	}
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("schema declares no entities")
	}
	reg, err := core.NewRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	return reg, nil
}

func describe(w io.Writer, reg *core.Registry) error {
	for _, path := range reg.Paths() {
		if _, err := fmt.Fprintln(w, path); err != nil {
			return err
		}
		for _, name := range reg.Relations(path) {
			def, err := reg.Relation(path, name)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "  %s %s -> %s\n", name, def.Kind(), def.TargetPath()); err != nil {
				return err
			}
		}
	}
	return nil
}
