package docgo

import (
	"log/slog"
	"time"

	"github.com/hupe1980/docgo/codec"
	"github.com/hupe1980/docgo/internal/fs"
	"github.com/hupe1980/docgo/semantic"
	"github.com/hupe1980/docgo/txn"
)

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	cacheSize        int
	cacheTTL         time.Duration
	deepScan         bool
	vocabulary       *semantic.Vocabulary
	defaultContext   semantic.Context
	schemaDirs       []string
	journalOptions   []func(*txn.Options)
	watch            bool
	fs               fs.FileSystem
}

// Option configures Open behavior.
//
// Today options primarily exist to avoid exploding the API surface
// (e.g. codec-specific constructor variants).
type Option func(*options)

// WithCodec configures the codec used for document and journal files.
//
// If nil is passed, codec.Default is used. Journal files are self-describing,
// so databases written with a different codec remain readable.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCacheSize configures the maximum number of documents held in the read
// cache. Zero or negative disables caching.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithCacheTTL expires cached documents after the given duration. Zero means
// entries live until evicted.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.cacheTTL = ttl
	}
}

// WithDeepScan toggles the query executor's one-level deep-scan fallback for
// fields missing at the document root. On by default; it is a best-effort
// convenience, not a correctness guarantee.
func WithDeepScan(enabled bool) Option {
	return func(o *options) {
		o.deepScan = enabled
	}
}

// WithVocabulary replaces the built-in semantic vocabulary.
func WithVocabulary(v *semantic.Vocabulary) Option {
	return func(o *options) {
		o.vocabulary = v
	}
}

// WithDefaultContext replaces the default semantic context applied to
// documents without an embedded "@context".
func WithDefaultContext(ctx semantic.Context) Option {
	return func(o *options) {
		o.defaultContext = ctx
	}
}

// WithSchemaDir loads every schema document from dir into the registry on
// open. May be given multiple times.
func WithSchemaDir(dir string) Option {
	return func(o *options) {
		o.schemaDirs = append(o.schemaDirs, dir)
	}
}

// WithJournalOptions configures the transaction journal, for example its
// compression:
//
//	docgo.Open("./data", docgo.WithJournalOptions(func(o *txn.Options) {
//	    o.Compression = txn.CompressionLZ4
//	}))
func WithJournalOptions(optFns ...func(*txn.Options)) Option {
	return func(o *options) {
		o.journalOptions = append(o.journalOptions, optFns...)
	}
}

// WithWatch starts a filesystem watcher that invalidates cached documents
// when their files change outside the engine, for example through a manual
// edit. Invalidation is rate-limited; a burst of changes degrades to a whole
// collection invalidation.
func WithWatch() Option {
	return func(o *options) {
		o.watch = true
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &docgo.BasicMetricsCollector{}
//	db, _ := docgo.Open("./data", docgo.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.InsertCount, stats.InsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := docgo.NewJSONLogger(slog.LevelInfo)
//	db, _ := docgo.Open("./data", docgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithFileSystem replaces the file system abstraction, for fault injection
// in tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            nil,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		cacheSize:        1024,
		deepScan:         true,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
