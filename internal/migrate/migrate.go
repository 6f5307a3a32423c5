// Package migrate upgrades versioned TOML documents one schema version at a
// time. Each document kind owns a [Registry]; the config package registers
// its migrations on [Config].
package migrate

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/BurntSushi/toml"
)

// ErrTooNew is returned when a document was written by a newer schema than
// the registry understands.
var ErrTooNew = errors.New("schema version is newer than supported")

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades a document to Version from the version before it.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short label for log output.
	Description string
	// Upgrade transforms the raw document.
	Upgrade func(data []byte) ([]byte, error)
}

// Registry holds the current version and migrations for one document kind.
type Registry struct {
	// CurrentVersion is the version documents are upgraded to.
	CurrentVersion int
	// Migrations is exported so tests can swap the list.
	Migrations []Migration
}

// Config is the registry for config.toml.
var Config = &Registry{CurrentVersion: 2}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Register adds m. It panics on a duplicate version or on a version beyond
// CurrentVersion.
func (r *Registry) Register(m Migration) {
	if m.Version > r.CurrentVersion {
		panic(fmt.Sprintf("migrate: migration v%d beyond current version %d", m.Version, r.CurrentVersion))
	}
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate migration version %d (description: %q)", m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a document at fileVersion must be upgraded.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return fileVersion < r.CurrentVersion
}

// Run applies, in version order, every migration newer than fromVersion.
// It returns the transformed data and the version reached. A fromVersion
// above CurrentVersion fails with [ErrTooNew].
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	if fromVersion > r.CurrentVersion {
		return nil, fromVersion, fmt.Errorf("v%d > v%d: %w", fromVersion, r.CurrentVersion, ErrTooNew)
	}
	sorted := slices.Clone(r.Migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return a.Version - b.Version })

	version := fromVersion
	for _, m := range sorted {
		if version >= m.Version {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		var err error
		data, err = m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		version = m.Version
	}
	return data, version, nil
}

// ///////////////////////////////////////////////
// TOML Helpers
// ///////////////////////////////////////////////

// TOMLTable builds an Upgrade func that decodes the document into a generic
// table, lets fn edit it and re-encodes the result with version set.
func TOMLTable(version int, fn func(doc map[string]any) error) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		doc := map[string]any{}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding document: %w", err)
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		doc["version"] = version

		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("encoding document: %w", err)
		}
		return buf.Bytes(), nil
	}
}

// Table returns doc[key] as a table, creating it when absent. ok is false
// if the key holds something other than a table.
func Table(doc map[string]any, key string) (t map[string]any, ok bool) {
	v, exists := doc[key]
	if !exists {
		t = map[string]any{}
		doc[key] = t
		return t, true
	}
	t, ok = v.(map[string]any)
	return t, ok
}
