package docgo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/docgo/document"
	"github.com/hupe1980/docgo/index"
)

// MigrationLogCollection holds one document per applied migration. It is an
// ordinary collection and shows up in Collections().
const MigrationLogCollection = "_migrations"

// Migration is a one-shot, versioned change to the database layout. Applied
// migrations are recorded under their ID in the migration log collection and
// never run again.
type Migration struct {
	// ID uniquely identifies the migration across runs.
	ID string
	// Version orders migrations, in "major.minor.patch" form.
	Version string
	// Description is free text for the migration log.
	Description string
	// Steps run in order; each step must succeed before the next starts.
	Steps []MigrationStep
}

type stepKind int

const (
	stepCreateCollection stepKind = iota
	stepDropCollection
	stepCreateIndex
	stepDropIndex
	stepAddField
	stepRemoveField
	stepRenameField
)

// MigrationStep is a single layout change. Build steps with the Step*
// constructors.
type MigrationStep struct {
	kind       stepKind
	collection string
	field      string
	newField   string
	value      any
	index      index.Definition
	collOpts   []func(*CollectionOptions)
}

// StepCreateCollection registers a new collection.
func StepCreateCollection(name string, optFns ...func(*CollectionOptions)) MigrationStep {
	return MigrationStep{kind: stepCreateCollection, collection: name, collOpts: optFns}
}

// StepDropCollection removes a collection with all its documents.
func StepDropCollection(name string) MigrationStep {
	return MigrationStep{kind: stepDropCollection, collection: name}
}

// StepCreateIndex adds a secondary index and backfills it.
func StepCreateIndex(collection string, def index.Definition) MigrationStep {
	return MigrationStep{kind: stepCreateIndex, collection: collection, index: def}
}

// StepDropIndex removes a secondary index.
func StepDropIndex(collection, name string) MigrationStep {
	return MigrationStep{kind: stepDropIndex, collection: collection, field: name}
}

// StepAddField sets field to defaultValue in every document that does not
// carry it yet.
func StepAddField(collection, field string, defaultValue any) MigrationStep {
	return MigrationStep{kind: stepAddField, collection: collection, field: field, value: defaultValue}
}

// StepRemoveField deletes field from every document.
func StepRemoveField(collection, field string) MigrationStep {
	return MigrationStep{kind: stepRemoveField, collection: collection, field: field}
}

// StepRenameField moves the value of oldName to newName in every document
// that carries oldName.
func StepRenameField(collection, oldName, newName string) MigrationStep {
	return MigrationStep{kind: stepRenameField, collection: collection, field: oldName, newField: newName}
}

// Migrate applies every migration not yet recorded in the migration log, in
// version order. Each migration's steps run through the regular write path,
// so documents rewritten by a field step are journaled and validated like any
// other write. Already applied migrations are skipped by ID.
func (db *DB) Migrate(ctx context.Context, migrations ...Migration) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if err := db.ensureMigrationLog(ctx); err != nil {
		return err
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	versions := make(map[string]migrationVersion, len(ordered))
	for _, m := range ordered {
		if m.ID == "" {
			return fmt.Errorf("migration %q: id required", m.Description)
		}
		v, err := parseMigrationVersion(m.Version)
		if err != nil {
			return fmt.Errorf("migration %s: %w", m.ID, err)
		}
		versions[m.ID] = v
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return versions[ordered[i].ID].less(versions[ordered[j].ID])
	})

	for _, m := range ordered {
		if applied[m.ID] {
			continue
		}
		db.logger.InfoContext(ctx, "applying migration", "migration", m.ID, "version", m.Version, "description", m.Description)
		for i, step := range m.Steps {
			if err := db.applyMigrationStep(ctx, step); err != nil {
				return fmt.Errorf("migration %s step %d: %w", m.ID, i, err)
			}
		}
		_, err := db.Insert(ctx, MigrationLogCollection, map[string]any{
			"id":          m.ID,
			"version":     m.Version,
			"description": m.Description,
			"appliedAt":   time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("migration %s: failed to record: %w", m.ID, err)
		}
	}
	return nil
}

func (db *DB) ensureMigrationLog(ctx context.Context) error {
	db.mu.RLock()
	_, ok := db.collections[MigrationLogCollection]
	db.mu.RUnlock()
	if ok {
		return nil
	}
	return db.CreateCollection(ctx, MigrationLogCollection)
}

func (db *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	docs, err := db.ListAll(ctx, MigrationLogCollection)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(docs))
	for _, doc := range docs {
		applied[doc.ID] = true
	}
	return applied, nil
}

func (db *DB) applyMigrationStep(ctx context.Context, step MigrationStep) error {
	switch step.kind {
	case stepCreateCollection:
		return db.CreateCollection(ctx, step.collection, step.collOpts...)
	case stepDropCollection:
		return db.DropCollection(ctx, step.collection)
	case stepCreateIndex:
		return db.CreateIndex(ctx, step.collection, step.index)
	case stepDropIndex:
		return db.DropIndex(ctx, step.collection, step.field)
	case stepAddField:
		return db.rewriteAll(ctx, step.collection, func(data map[string]any) bool {
			if _, ok := data[step.field]; ok {
				return false
			}
			data[step.field] = step.value
			return true
		})
	case stepRemoveField:
		return db.rewriteAll(ctx, step.collection, func(data map[string]any) bool {
			if _, ok := data[step.field]; !ok {
				return false
			}
			delete(data, step.field)
			return true
		})
	case stepRenameField:
		return db.rewriteAll(ctx, step.collection, func(data map[string]any) bool {
			v, ok := data[step.field]
			if !ok {
				return false
			}
			delete(data, step.field)
			data[step.newField] = v
			return true
		})
	default:
		return fmt.Errorf("unknown migration step kind %d", step.kind)
	}
}

// rewriteAll replaces every document whose data the transform changes.
func (db *DB) rewriteAll(ctx context.Context, collection string, transform func(map[string]any) bool) error {
	docs, err := db.ListAll(ctx, collection)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		data := document.CloneData(doc.Data)
		if !transform(data) {
			continue
		}
		if err := db.Replace(ctx, collection, doc.ID, data); err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// migrationVersion is a simplified semantic version used only to order
// migrations.
type migrationVersion struct {
	major, minor, patch int
}

func parseMigrationVersion(s string) (migrationVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return migrationVersion{}, fmt.Errorf("invalid version %q, want major.minor.patch", s)
	}
	var v migrationVersion
	for i, dst := range []*int{&v.major, &v.minor, &v.patch} {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return migrationVersion{}, fmt.Errorf("invalid version %q, want major.minor.patch", s)
		}
		*dst = n
	}
	return v, nil
}

func (v migrationVersion) less(o migrationVersion) bool {
	if v.major != o.major {
		return v.major < o.major
	}
	if v.minor != o.minor {
		return v.minor < o.minor
	}
	return v.patch < o.patch
}
