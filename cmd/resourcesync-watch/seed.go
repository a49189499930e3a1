package main

import (
	"context"

	"resourcesync/internal/core"
	"resourcesync/pkg/domain"
)

type seedDoc struct {
	path   domain.EntityPath
	id     string
	fields domain.Fields
}

var demoDocs = []seedDoc{
	{"guilds", "g1", domain.Fields{"name": "Dawnguard"}},
	{"guilds", "g2", domain.Fields{"name": "Duskwatch"}},
	{"players", "p1", domain.Fields{"name": "Ash", "guildId": "g1", "level": 7}},
	{"players", "p2", domain.Fields{"name": "Bo", "guildId": "g1", "level": 2}},
	{"players", "p3", domain.Fields{"name": "Cy", "guildId": "g2", "level": 5}},
	{"adventures", "a1", domain.Fields{"title": "Sunken Crypt", "leaderId": "p1", "partyIds": []string{"p2", "p1"}}},
}

// seedDemo writes the guild demo documents, replacing existing ones.
func seedDemo(ctx context.Context, svc *core.Service) error {
	for _, d := range demoDocs {
		if err := svc.CreateWithID(ctx, d.path, d.id, d.fields); err != nil {
			return err
		}
	}
	return nil
}
