package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"resourcesync/pkg/domain"
)

func TestRegistryLookup(t *testing.T) {
	reg := guildRegistry()
	if got := reg.Paths(); !reflect.DeepEqual(got, []domain.EntityPath{pathAdventures, pathGuilds, pathPlayers}) {
		t.Fatalf("paths: %v", got)
	}
	if got := reg.Relations(pathAdventures); !reflect.DeepEqual(got, []string{"leader", "party"}) {
		t.Fatalf("relations: %v", got)
	}
	def, err := reg.Relation(pathGuilds, "players")
	if err != nil {
		t.Fatalf("relation: %v", err)
	}
	if def.Kind() != domain.KindToMany || def.TargetPath() != pathPlayers {
		t.Fatalf("unexpected definition %#v", def)
	}
	if _, err := reg.Relation(pathGuilds, "missing"); !errors.Is(err, domain.ErrUnknownRelation) {
		t.Fatalf("expected unknown relation, got %v", err)
	}
	if _, err := reg.Relation("nowhere", "players"); !errors.Is(err, domain.ErrUnknownPath) {
		t.Fatalf("expected unknown path, got %v", err)
	}
}

func TestRegistryNormalizesPointerDefinitions(t *testing.T) {
	rel := domain.BelongsTo(pathGuilds, "guildId")
	reg, err := NewRegistry(RegistryConfig{
		Paths:     []domain.EntityPath{pathGuilds, pathPlayers},
		Relations: map[domain.EntityPath]map[string]domain.RelationDefinition{pathPlayers: {"guild": &rel}},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	def, _ := reg.Relation(pathPlayers, "guild")
	if _, ok := def.(domain.ToOne); !ok {
		t.Fatalf("expected value definition, got %T", def)
	}
}

func TestRegistryValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  RegistryConfig
		want string
	}{
		{
			name: "empty path",
			cfg:  RegistryConfig{Paths: []domain.EntityPath{""}},
			want: "empty entity path",
		},
		{
			name: "unknown owner",
			cfg: RegistryConfig{
				Paths:     []domain.EntityPath{pathPlayers},
				Relations: map[domain.EntityPath]map[string]domain.RelationDefinition{pathGuilds: {"players": domain.HasMany(pathPlayers, "guildId")}},
			},
			want: "relation owner guilds",
		},
		{
			name: "unknown target",
			cfg: RegistryConfig{
				Paths:     []domain.EntityPath{pathGuilds},
				Relations: map[domain.EntityPath]map[string]domain.RelationDefinition{pathGuilds: {"players": domain.HasMany(pathPlayers, "guildId")}},
			},
			want: "unknown entity path: players",
		},
		{
			name: "missing resolver",
			cfg: RegistryConfig{
				Paths:     []domain.EntityPath{pathGuilds},
				Relations: map[domain.EntityPath]map[string]domain.RelationDefinition{pathGuilds: {"self": domain.ToOne{Target: pathGuilds}}},
			},
			want: "missing resolver",
		},
		{
			name: "to-many without filter",
			cfg: RegistryConfig{
				Paths: []domain.EntityPath{pathGuilds},
				Relations: map[domain.EntityPath]map[string]domain.RelationDefinition{pathGuilds: {"all": domain.ToMany{
					Target:  pathGuilds,
					Resolve: func(string, domain.Fields) domain.Selector { return domain.All },
				}}},
			},
			want: "missing default filter",
		},
		{
			name: "nil definition",
			cfg: RegistryConfig{
				Paths:     []domain.EntityPath{pathGuilds},
				Relations: map[domain.EntityPath]map[string]domain.RelationDefinition{pathGuilds: {"none": nil}},
			},
			want: "unsupported definition",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
