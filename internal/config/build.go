package config

import (
	"fmt"
	"os"

	"github.com/gatekit-db/gatekit/pkg/gateway"
	"github.com/gatekit-db/gatekit/pkg/gateway/pgstore"
)

// BuildRegistry turns a validated configuration into a wired registry:
// compiled validators, linked relation metadata, per-entity policies,
// whitelists and store clients. Clients are only attached when a
// connector is supplied (commands that never touch the store pass nil).
func BuildRegistry(l *Loader, cfg *Config, connector *gateway.Connector) (*gateway.Registry, error) {
	descriptors := make(map[string]*gateway.ModelDescriptor, len(cfg.Entities))

	for name, entity := range cfg.Entities {
		desc := &gateway.ModelDescriptor{
			Name:           name,
			RelationFields: entity.Relations,
			FileFields:     entity.FileFields,
			Relations:      make(map[string]*gateway.RelationMeta),
		}
		if entity.Schema != "" {
			raw, err := os.ReadFile(l.SchemaPath(entity))
			if err != nil {
				return nil, fmt.Errorf("entity '%s': %w", name, err)
			}
			validator, err := gateway.CompileValidator(name, raw)
			if err != nil {
				return nil, fmt.Errorf("entity '%s': %w", name, err)
			}
			desc.Validator = validator
		}
		descriptors[name] = desc
	}

	// Relation targets may reference entities declared later; link them in
	// a second pass.
	for name, entity := range cfg.Entities {
		desc := descriptors[name]
		for rel, target := range entity.RelationTargets {
			targetName, cardinality := ParseRelationTarget(target)
			targetDesc, ok := descriptors[targetName]
			if !ok {
				return nil, fmt.Errorf("entity '%s': relation '%s' targets unknown entity '%s'", name, rel, targetName)
			}
			desc.Relations[rel] = &gateway.RelationMeta{
				Target:      targetDesc,
				Cardinality: cardinality,
			}
		}
	}

	registry := gateway.NewRegistry()
	for name, entity := range cfg.Entities {
		entry := &gateway.Entry{
			Descriptor: descriptors[name],
			Policy:     entity.Policy.Policy(),
			Whitelist:  entity.RawQuery.Whitelist(),
		}
		if connector != nil && connector.IsConnected() {
			entry.Client = pgstore.NewClient(descriptors[name], connector)
		}
		if err := registry.Register(entry); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
