package similarity

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/narrowdown/pkg/document"
	"github.com/Sumatoshi-tech/narrowdown/pkg/observability"
	"github.com/Sumatoshi-tech/narrowdown/pkg/tokenize"
)

// Defaults for a new store.
const (
	DefaultThreshold        = 0.75
	DefaultMaxFalseNegative = 0.05
	DefaultMaxFalsePositive = 0.05
	DefaultStorageLevel     = document.Minimal
	DefaultTokenizer        = "words:3"
)

// customTokenizer is the tokenizer setting of stores built with
// WithTokenizerFunc. Such stores must be loaded with the same function.
const customTokenizer = "custom"

type options struct {
	threshold        float64
	maxFalseNegative float64
	maxFalsePositive float64
	level            document.StorageLevel
	tokenizerDesc    string
	tokenizer        tokenize.Func
	seed             uint64
	fetchLimit       int

	logger  *slog.Logger
	metrics *observability.StoreMetrics
	tracer  trace.Tracer
}

// Option configures New and Load. Tuning options (threshold, error bounds,
// storage level, tokenizer descriptor, seed) only affect New; Load restores them
// from the backend.
type Option func(*options)

// WithThreshold sets the Jaccard similarity at which documents count as similar.
func WithThreshold(threshold float64) Option {
	return func(o *options) { o.threshold = threshold }
}

// WithMaxFalseNegative bounds the probability of missing a similar document.
func WithMaxFalseNegative(p float64) Option {
	return func(o *options) { o.maxFalseNegative = p }
}

// WithMaxFalsePositive bounds the probability of returning a dissimilar document.
func WithMaxFalsePositive(p float64) Option {
	return func(o *options) { o.maxFalsePositive = p }
}

// WithStorageLevel selects which document fields are persisted.
func WithStorageLevel(level document.StorageLevel) Option {
	return func(o *options) { o.level = level }
}

// WithTokenizer selects a tokenizer by descriptor, see tokenize.Parse.
func WithTokenizer(desc string) Option {
	return func(o *options) {
		o.tokenizerDesc = desc
		o.tokenizer = nil
	}
}

// WithTokenizerFunc installs a custom tokenizer. It is not persisted: a
// store created with it must be loaded with it too.
func WithTokenizerFunc(fn tokenize.Func) Option {
	return func(o *options) {
		o.tokenizerDesc = customTokenizer
		o.tokenizer = fn
	}
}

// WithSeed sets the MinHash coefficient seed.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithFetchLimit bounds concurrent backend lookups per query.
func WithFetchLimit(n int) Option {
	return func(o *options) { o.fetchLimit = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records operation metrics into sm.
func WithMetrics(sm *observability.StoreMetrics) Option {
	return func(o *options) { o.metrics = sm }
}

// WithTracer records a span per operation.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// insertOptions is the document being inserted plus whether its id was
// chosen by the caller.
type insertOptions struct {
	doc        document.StoredDocument
	explicitID bool
}

// InsertOption sets optional fields of an inserted document.
type InsertOption func(*insertOptions)

// WithID stores the document under id instead of a fresh one, overwriting
// any document already stored there. Every id is valid, including 0.
func WithID(id uint64) InsertOption {
	return func(o *insertOptions) {
		o.doc.ID = id
		o.explicitID = true
	}
}

// WithExactPart sets a key that must match exactly for documents to be similar.
func WithExactPart(exactPart string) InsertOption {
	return func(o *insertOptions) { o.doc.ExactPart = document.Ptr(exactPart) }
}

// WithData attaches an opaque payload returned with query results.
func WithData(data string) InsertOption {
	return func(o *insertOptions) { o.doc.Data = document.Ptr(data) }
}
