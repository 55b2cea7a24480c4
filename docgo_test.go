package docgo_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docgo"
	"github.com/hupe1980/docgo/codec"
	"github.com/hupe1980/docgo/index"
	"github.com/hupe1980/docgo/query"
	"github.com/hupe1980/docgo/semantic"
	"github.com/hupe1980/docgo/testutil"
	"github.com/hupe1980/docgo/txn"
)

func openDB(t *testing.T, optFns ...docgo.Option) (*docgo.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := docgo.Open(dir, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, dir
}

func TestInsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))

	data := map[string]any{
		"id":   "u1",
		"name": "Alice",
		"age":  30,
		"address": map[string]any{
			"city": "Berlin",
			"geo":  []any{52.52, 13.405},
		},
	}
	id, err := db.Insert(ctx, "users", data)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	got, err := db.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Data["name"])
	assert.Equal(t, map[string]any{"city": "Berlin", "geo": []any{52.52, 13.405}}, got.Data["address"])
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestInsertGeneratesID(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))

	id, err := db.Insert(ctx, "users", map[string]any{"name": "Alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = db.Get(ctx, "users", id)
	assert.NoError(t, err)
}

func TestInsertDuplicateIDFails(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1"})
	require.NoError(t, err)
	_, err = db.Insert(ctx, "users", map[string]any{"id": "u1"})
	assert.ErrorIs(t, err, docgo.ErrDocumentExists)
}

func TestUpdateMergePreservesUnmentionedFields(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))

	_, err := db.Insert(ctx, "users", map[string]any{
		"id": "u1", "name": "Alice", "age": 30, "city": "Berlin",
	})
	require.NoError(t, err)

	require.NoError(t, db.Update(ctx, "users", "u1", map[string]any{
		"age":  31,
		"city": nil, // nil removes the field
	}))

	got, err := db.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Data["name"], "unmentioned field survives")
	assert.EqualValues(t, 31, got.Data["age"])
	assert.NotContains(t, got.Data, "city")
	assert.Equal(t, int64(2), got.Version)
}

func TestReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1", "name": "Alice", "age": 30})
	require.NoError(t, err)
	require.NoError(t, db.Replace(ctx, "users", "u1", map[string]any{"name": "Alicia"}))

	got, err := db.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.Data["name"])
	assert.NotContains(t, got.Data, "age")
	assert.Equal(t, int64(2), got.Version)
}

func TestDeleteIsDurable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := docgo.Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.CreateCollection(ctx, "users"))
	_, err = db.Insert(ctx, "users", map[string]any{"id": "u1", "name": "Alice"})
	require.NoError(t, err)
	require.NoError(t, db.Delete(ctx, "users", "u1"))

	_, err = db.Get(ctx, "users", "u1")
	assert.ErrorIs(t, err, docgo.ErrNotFound)
	require.NoError(t, db.Close())

	reopened, err := docgo.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(ctx, "users", "u1")
	assert.ErrorIs(t, err, docgo.ErrNotFound)

	err = reopened.Delete(ctx, "users", "u1")
	assert.ErrorIs(t, err, docgo.ErrNotFound)
}

func TestQueryScenario(t *testing.T) {
	ctx := context.Background()

	for _, withIndex := range []bool{false, true} {
		name := "scan"
		if withIndex {
			name = "indexed"
		}
		t.Run(name, func(t *testing.T) {
			db, _ := openDB(t)
			require.NoError(t, db.CreateCollection(ctx, "users"))

			for _, data := range []map[string]any{
				{"id": "u1", "name": "Alice", "age": 20},
				{"id": "u2", "name": "Bob", "age": 30},
				{"id": "u3", "name": "Cara", "age": 40},
			} {
				_, err := db.Insert(ctx, "users", data)
				require.NoError(t, err)
			}
			if withIndex {
				require.NoError(t, db.CreateIndex(ctx, "users", index.Definition{
					Name: "by_age", Field: "age", Kind: index.KindOrdered,
				}))
			}

			res, err := db.ExecuteQuery(ctx, `SELECT name FROM users WHERE age > 25 ORDER BY age DESC LIMIT 2`)
			require.NoError(t, err)
			require.Len(t, res.Docs, 2)
			assert.Equal(t, "Cara", res.Docs[0].Data["name"])
			assert.Equal(t, "Bob", res.Docs[1].Data["name"])
			assert.Equal(t, withIndex, res.Plan.UsedIndex)
		})
	}
}

func TestBulkIndexedAndScannedResultsAgree(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(42)

	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "people"))
	for _, data := range rng.Documents(100) {
		_, err := db.Insert(ctx, "people", data)
		require.NoError(t, err)
	}

	statement := `SELECT * FROM people WHERE age >= 30 AND age < 50 AND city = 'Berlin' ORDER BY age, id`

	scanned, err := db.ExecuteQuery(ctx, statement)
	require.NoError(t, err)
	require.False(t, scanned.Plan.UsedIndex)

	require.NoError(t, db.CreateIndex(ctx, "people", index.Definition{
		Name: "by_age", Field: "age", Kind: index.KindOrdered,
	}))
	require.NoError(t, db.CreateIndex(ctx, "people", index.Definition{
		Name: "by_city", Field: "city", Kind: index.KindExact,
	}))

	indexed, err := db.ExecuteQuery(ctx, statement)
	require.NoError(t, err)
	require.True(t, indexed.Plan.UsedIndex)
	assert.LessOrEqual(t, indexed.Examined, scanned.Examined)

	require.Len(t, indexed.Docs, len(scanned.Docs))
	for i := range scanned.Docs {
		assert.Equal(t, scanned.Docs[i].ID, indexed.Docs[i].ID)
	}
}

func TestUniqueIndexRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))
	require.NoError(t, db.CreateIndex(ctx, "users", index.Definition{
		Name: "by_email", Field: "email", Kind: index.KindExact, Unique: true,
	}))

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1", "email": "a@example.com"})
	require.NoError(t, err)

	_, err = db.Insert(ctx, "users", map[string]any{"id": "u2", "email": "A@EXAMPLE.COM"})
	var ice *docgo.IndexConstraintError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, "u1", ice.ExistingID)

	// The rejected insert left nothing behind.
	_, err = db.Get(ctx, "users", "u2")
	assert.ErrorIs(t, err, docgo.ErrNotFound)
}

func TestTransactionAtomicity(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))
	require.NoError(t, db.CreateIndex(ctx, "users", index.Definition{
		Name: "by_email", Field: "email", Kind: index.KindExact, Unique: true,
	}))

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1", "email": "a@example.com", "name": "Alice"})
	require.NoError(t, err)
	_, err = db.Insert(ctx, "users", map[string]any{"id": "u2", "email": "b@example.com", "name": "Bob"})
	require.NoError(t, err)

	before, err := db.ListAll(ctx, "users")
	require.NoError(t, err)

	// The third operation violates the unique index; the whole batch must
	// roll back.
	_, err = db.ExecuteTransaction(ctx, []txn.Operation{
		{Kind: txn.OpInsert, Collection: "users", Data: map[string]any{"id": "u3", "email": "c@example.com"}},
		{Kind: txn.OpUpdate, Collection: "users", ID: "u2", Data: map[string]any{"name": "Bobby"}, Merge: true},
		{Kind: txn.OpInsert, Collection: "users", Data: map[string]any{"id": "u4", "email": "a@example.com"}},
	})

	var te *docgo.TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.OpIndex)

	after, err := db.ListAll(ctx, "users")
	require.NoError(t, err)
	require.Len(t, after, len(before), "collection snapshot unchanged")
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Version, after[i].Version)
		assert.Equal(t, before[i].Data, after[i].Data)
	}

	// The index state rolled back too: c@example.com is free again.
	_, err = db.Insert(ctx, "users", map[string]any{"id": "u5", "email": "c@example.com"})
	assert.NoError(t, err)
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))
	require.NoError(t, db.CreateCollection(ctx, "orders"))

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1", "name": "Alice", "credit": 10})
	require.NoError(t, err)

	ids, err := db.ExecuteTransaction(ctx, []txn.Operation{
		{Kind: txn.OpUpdate, Collection: "users", ID: "u1", Data: map[string]any{"credit": 7}, Merge: true},
		{Kind: txn.OpInsert, Collection: "orders", Data: map[string]any{"id": "o1", "user": "u1", "total": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "o1"}, ids)

	user, err := db.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, user.Data["credit"])

	_, err = db.Get(ctx, "orders", "o1")
	assert.NoError(t, err)
}

func TestTransactionBusinessKeyTarget(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1", "email": "a@example.com", "name": "Alice"})
	require.NoError(t, err)

	ids, err := db.ExecuteTransaction(ctx, []txn.Operation{{
		Kind:       txn.OpUpdate,
		Collection: "users",
		Where:      &query.Condition{Field: "email", Op: query.OpEq, Value: "a@example.com"},
		Data:       map[string]any{"name": "Alicia"},
		Merge:      true,
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)

	got, err := db.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.Data["name"])

	// No match fails the transaction.
	_, err = db.ExecuteTransaction(ctx, []txn.Operation{{
		Kind:       txn.OpDelete,
		Collection: "users",
		Where:      &query.Condition{Field: "email", Op: query.OpEq, Value: "nobody@example.com"},
	}})
	assert.ErrorIs(t, err, docgo.ErrNotFound)
}

func TestCrashRecoveryRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := docgo.Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.CreateCollection(ctx, "users"))
	_, err = db.Insert(ctx, "users", map[string]any{"id": "u1", "name": "Alice"})
	require.NoError(t, err)

	stored, err := db.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Simulate a crash mid-transaction: the journal holds an applying record
	// with the pre-image, and the document file already carries the
	// half-applied state.
	j, err := txn.Open(filepath.Join(dir, "journal"))
	require.NoError(t, err)
	require.NoError(t, j.Begin(&txn.Record{
		ID:        "crashed-txn",
		Status:    txn.StatusApplying,
		StartedAt: time.Now().UTC(),
		Ops: []txn.OpRecord{{
			Kind:       txn.OpUpdate,
			Collection: "users",
			ID:         "u1",
			Data:       map[string]any{"name": "Broken"},
			Merge:      true,
			Applied:    true,
			Prev:       stored,
		}},
	}))
	require.NoError(t, j.Close())

	broken := stored.Clone()
	broken.Data["name"] = "Broken"
	broken.Version = 2
	raw, err := codec.Default.Marshal(broken)
	require.NoError(t, err)
	docPath := filepath.Join(dir, "collections", "users", "docs", "u1.json")
	require.NoError(t, os.WriteFile(docPath, raw, 0o640))

	reopened, err := docgo.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Data["name"], "interrupted transaction rolled back")
	assert.Equal(t, stored.Version, got.Version)

	// The journal is clean again: a second open performs no recovery.
	require.NoError(t, reopened.Close())
	again, err := docgo.Open(dir)
	require.NoError(t, err)
	defer again.Close()
}

func TestIndexesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := docgo.Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.CreateCollection(ctx, "users"))
	require.NoError(t, db.CreateIndex(ctx, "users", index.Definition{
		Name: "by_city", Field: "city", Kind: index.KindExact,
	}))
	for _, data := range []map[string]any{
		{"id": "u1", "city": "Berlin"},
		{"id": "u2", "city": "Paris"},
	} {
		_, err := db.Insert(ctx, "users", data)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	reopened, err := docgo.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	res, err := reopened.ExecuteQuery(ctx, `SELECT * FROM users WHERE city = 'Berlin'`)
	require.NoError(t, err)
	require.Len(t, res.Docs, 1)
	assert.Equal(t, "u1", res.Docs[0].ID)
	assert.True(t, res.Plan.UsedIndex, "index definition and data restored from disk")
}

func TestDropIndex(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))
	require.NoError(t, db.CreateIndex(ctx, "users", index.Definition{
		Name: "by_city", Field: "city", Kind: index.KindExact,
	}))
	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1", "city": "Berlin"})
	require.NoError(t, err)

	require.NoError(t, db.DropIndex(ctx, "users", "by_city"))

	res, err := db.ExecuteQuery(ctx, `SELECT * FROM users WHERE city = 'Berlin'`)
	require.NoError(t, err)
	require.Len(t, res.Docs, 1)
	assert.False(t, res.Plan.UsedIndex)
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)

	require.NoError(t, db.CreateCollection(ctx, "users"))
	assert.ErrorIs(t, db.CreateCollection(ctx, "users"), docgo.ErrCollectionExists)
	assert.Equal(t, []string{"users"}, db.Collections())

	_, err := db.Insert(ctx, "ghosts", map[string]any{"id": "g1"})
	assert.ErrorIs(t, err, docgo.ErrCollectionNotFound)

	require.NoError(t, db.DropCollection(ctx, "users"))
	assert.ErrorIs(t, db.DropCollection(ctx, "users"), docgo.ErrCollectionNotFound)
	assert.Empty(t, db.Collections())
}

func TestClosedDatabaseRejectsOperations(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))
	require.NoError(t, db.Close())

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1"})
	assert.ErrorIs(t, err, docgo.ErrClosed)
	_, err = db.Get(ctx, "users", "u1")
	assert.ErrorIs(t, err, docgo.ErrClosed)
	_, err = db.ExecuteQuery(ctx, `SELECT * FROM users`)
	assert.ErrorIs(t, err, docgo.ErrClosed)
	assert.ErrorIs(t, db.CreateCollection(ctx, "other"), docgo.ErrClosed)

	// Close is idempotent.
	assert.NoError(t, db.Close())
}

func TestCloseConcurrentWithIndexCreation(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "users"))
	for i := 0; i < 50; i++ {
		_, err := db.Insert(ctx, "users", map[string]any{"id": fmt.Sprintf("u%02d", i), "age": i})
		require.NoError(t, err)
	}

	// Close persists indexes under the collection locks while CreateIndex
	// holds a collection lock and saves the catalog; both must terminate.
	done := make(chan struct{}, 2)
	go func() {
		_ = db.CreateIndex(ctx, "users", index.Definition{
			Name: "by_age", Field: "age", Kind: index.KindOrdered,
		})
		done <- struct{}{}
	}()
	go func() {
		_ = db.Close()
		done <- struct{}{}
	}()
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("close and index creation deadlocked")
		}
	}
}

func TestMetricsCollection(t *testing.T) {
	ctx := context.Background()
	metrics := &docgo.BasicMetricsCollector{}
	db, _ := openDB(t, docgo.WithMetricsCollector(metrics))
	require.NoError(t, db.CreateCollection(ctx, "users"))

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1", "age": 30})
	require.NoError(t, err)
	require.NoError(t, db.Update(ctx, "users", "u1", map[string]any{"age": 31}))
	_, err = db.ExecuteQuery(ctx, `SELECT * FROM users`)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.InsertCount)
	assert.Equal(t, int64(1), stats.UpdateCount)
	assert.Equal(t, int64(1), stats.QueryCount)
	assert.Equal(t, int64(1), stats.QueryMatched)
}

func TestNilLoggerAndMetricsAreSafe(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t, docgo.WithLogger(nil), docgo.WithMetricsCollector(nil))
	require.NoError(t, db.CreateCollection(ctx, "users"))

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1", "name": "Alice"})
	require.NoError(t, err)

	got, err := db.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Data["name"])
}

func TestStrictSemanticMode(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "things", func(o *docgo.CollectionOptions) {
		o.Mode = semantic.Strict
	}))

	_, err := db.Insert(ctx, "things", map[string]any{"id": "t1", "@type": "dg:Document"})
	assert.NoError(t, err)

	_, err = db.Insert(ctx, "things", map[string]any{"id": "t2", "@type": "dg:Alien"})
	var se *docgo.SemanticError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Type, "Alien")

	_, err = db.Get(ctx, "things", "t2")
	assert.ErrorIs(t, err, docgo.ErrNotFound)
}

func TestPermissiveSemanticModeAccepts(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "things"))

	_, err := db.Insert(ctx, "things", map[string]any{"id": "t1", "@type": "dg:Alien"})
	assert.NoError(t, err)
}

func TestContextInjection(t *testing.T) {
	ctx := context.Background()
	db, _ := openDB(t)
	require.NoError(t, db.CreateCollection(ctx, "things"))

	_, err := db.Insert(ctx, "things", map[string]any{"id": "t1", "name": "widget"})
	require.NoError(t, err)

	got, err := db.Get(ctx, "things", "t1")
	require.NoError(t, err)
	ctxMap, ok := got.Data["@context"].(map[string]any)
	require.True(t, ok, "documents without a context get the default one")
	assert.Equal(t, semantic.DefaultBase, ctxMap["dg"])
}

func TestSchemaValidation(t *testing.T) {
	ctx := context.Background()

	schemaDir := t.TempDir()
	schemaDoc := `
id: "https://schemas.example.org/user"
type: object
required:
  - name
properties:
  name:
    type: string
  age:
    type: integer
`
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "user.yaml"), []byte(schemaDoc), 0o640))

	db, _ := openDB(t, docgo.WithSchemaDir(schemaDir))
	require.NoError(t, db.CreateCollection(ctx, "users", func(o *docgo.CollectionOptions) {
		o.Schema = "https://schemas.example.org/user"
	}))

	_, err := db.Insert(ctx, "users", map[string]any{"id": "u1", "name": "Alice", "age": 30})
	assert.NoError(t, err)

	_, err = db.Insert(ctx, "users", map[string]any{"id": "u2", "age": "thirty"})
	var ve *docgo.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Violations, 2, "missing required field and wrong type are both reported")

	_, err = db.Get(ctx, "users", "u2")
	assert.ErrorIs(t, err, docgo.ErrNotFound)
}

func TestWatcherInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := docgo.Open(dir, docgo.WithWatch())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.CreateCollection(ctx, "users"))

	_, err = db.Insert(ctx, "users", map[string]any{"id": "u1", "name": "Alice"})
	require.NoError(t, err)

	// Out-of-band edit behind the cache.
	stored, err := db.Get(ctx, "users", "u1")
	require.NoError(t, err)
	edited := stored.Clone()
	edited.Data["name"] = "Edited"
	raw, err := codec.Default.Marshal(edited)
	require.NoError(t, err)
	docPath := filepath.Join(dir, "collections", "users", "docs", "u1.json")
	require.NoError(t, os.WriteFile(docPath, raw, 0o640))

	require.Eventually(t, func() bool {
		got, err := db.Get(ctx, "users", "u1")
		return err == nil && got.Data["name"] == "Edited"
	}, 2*time.Second, 20*time.Millisecond, "watcher invalidates the cached document")
}
