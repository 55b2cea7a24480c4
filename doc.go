// Package docgo is an embedded, file-backed document database with schema
// validation, semantic typing, secondary indexes, a SQL-like query language
// and atomic multi-document transactions.
//
// A database is a directory. Every document is one JSON file, written
// atomically; secondary indexes and the transaction journal live next to the
// documents, and a YAML catalog records the collections with their schemas
// and index definitions.
//
//	db, err := docgo.Open("./data")
//	if err != nil { ... }
//	defer db.Close()
//
//	_ = db.CreateCollection(ctx, "users")
//	id, _ := db.Insert(ctx, "users", map[string]any{"name": "Alice", "age": 30})
//	res, _ := db.ExecuteQuery(ctx, "SELECT name FROM users WHERE age > 25")
//
// The engine is single-process: it owns its directory exclusively and does
// not replicate. All entry points are safe for concurrent use within that
// process; readers of one collection proceed in parallel and writers are
// serialized per collection.
package docgo
