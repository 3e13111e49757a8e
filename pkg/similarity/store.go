// Package similarity is the high-level near-duplicate search API: it turns
// text into MinHash fingerprints, files them into an LSH index on a storage
// backend, and answers "which stored documents look like this one".
//
// A Store persists its tuning in the backend's settings, so a later process
// can reopen the same index with Load.
package similarity

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/lsh"
	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/minhash"
	"github.com/Sumatoshi-tech/narrowdown/pkg/document"
	"github.com/Sumatoshi-tech/narrowdown/pkg/observability"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
	"github.com/Sumatoshi-tech/narrowdown/pkg/tokenize"
)

// Settings keys under which a store persists its tuning.
const (
	SettingLSHConfig    = "lsh_config"
	SettingThreshold    = "similarity_threshold"
	SettingStorageLevel = "storage_level"
	SettingTokenizer    = "tokenizer"
	SettingSeed         = "minhash_seed"
)

// Operation names used in metrics and spans.
const (
	opInsert   = "insert"
	opQuery    = "query"
	opQueryTop = "query_top_n"
	opRemove   = "remove"
)

var (
	// ErrTooLowStorageLevel is returned when an operation needs document
	// fields the storage level does not keep.
	ErrTooLowStorageLevel = lsh.ErrTooLowStorageLevel

	// ErrNotInitialized is returned by Load when the backend holds no index.
	ErrNotInitialized = errors.New("similarity: backend holds no index settings")

	// ErrInvalidArgument is returned for out-of-range options.
	ErrInvalidArgument = errors.New("similarity: invalid argument")
)

// Match is a query result with its estimated Jaccard similarity.
type Match struct {
	document.StoredDocument

	Similarity float64
}

// Store indexes and searches text documents.
type Store struct {
	backend   storage.Backend
	index     *lsh.Index
	hasher    *minhash.Hasher
	tokenize  tokenize.Func
	tokenDesc string
	level     document.StorageLevel
	threshold float64

	logger  *slog.Logger
	metrics *observability.StoreMetrics
	tracer  trace.Tracer
}

func defaultOptions() options {
	return options{
		threshold:        DefaultThreshold,
		maxFalseNegative: DefaultMaxFalseNegative,
		maxFalsePositive: DefaultMaxFalsePositive,
		level:            DefaultStorageLevel,
		tokenizerDesc:    DefaultTokenizer,
		seed:             minhash.DefaultSeed,
	}
}

// New creates an index on backend. The band layout is tuned from the
// threshold and error bounds; when the bounds cannot be met the closest
// layout is used and a warning is logged. The tuning is written to the
// backend settings.
func New(ctx context.Context, backend storage.Backend, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := lsh.FindOptimalConfig(o.threshold, o.maxFalseNegative, o.maxFalsePositive)

	switch {
	case errors.Is(err, lsh.ErrBoundsUnreachable):
		o.log().WarnContext(ctx, "error bounds unreachable, using closest layout",
			slog.Int("hashes", cfg.NumHashes), slog.Int("bands", cfg.NumBands), slog.Int("rows", cfg.RowsPerBand))
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	s, err := build(o, backend, cfg)
	if err != nil {
		return nil, err
	}

	settings := [][2]string{
		{SettingLSHConfig, cfg.JSON()},
		{SettingThreshold, strconv.FormatFloat(o.threshold, 'g', -1, 64)},
		{SettingStorageLevel, o.level.String()},
		{SettingTokenizer, o.tokenizerDesc},
		{SettingSeed, strconv.FormatUint(o.seed, 10)},
	}

	for _, kv := range settings {
		if err = backend.InsertSetting(ctx, kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("store setting %s: %w", kv[0], err)
		}
	}

	s.logger.DebugContext(ctx, "similarity store created",
		slog.Int("hashes", cfg.NumHashes), slog.Int("bands", cfg.NumBands),
		slog.Int("rows", cfg.RowsPerBand), slog.String("storage_level", o.level.String()))

	return s, nil
}

// Load reopens an index created by New on backend. Runtime options (logger,
// metrics, tracer, fetch limit, custom tokenizer) apply; tuning comes from
// the stored settings.
func Load(ctx context.Context, backend storage.Backend, opts ...Option) (*Store, error) {
	o := defaultOptions()
	o.tokenizerDesc = ""

	for _, opt := range opts {
		opt(&o)
	}

	custom := o.tokenizer

	raw, err := readSettings(ctx, backend)
	if err != nil {
		return nil, err
	}

	cfg, err := lsh.ParseConfig(raw[SettingLSHConfig])
	if err != nil {
		return nil, fmt.Errorf("setting %s: %w", SettingLSHConfig, err)
	}

	if o.threshold, err = strconv.ParseFloat(raw[SettingThreshold], 64); err != nil {
		return nil, fmt.Errorf("setting %s: %w", SettingThreshold, err)
	}

	level, ok := document.ParseStorageLevel(raw[SettingStorageLevel])
	if !ok {
		return nil, fmt.Errorf("setting %s: unknown level %q", SettingStorageLevel, raw[SettingStorageLevel])
	}

	o.level = level

	if o.seed, err = strconv.ParseUint(raw[SettingSeed], 10, 64); err != nil {
		return nil, fmt.Errorf("setting %s: %w", SettingSeed, err)
	}

	o.tokenizerDesc = raw[SettingTokenizer]
	o.tokenizer = nil

	if o.tokenizerDesc == customTokenizer {
		if custom == nil {
			return nil, fmt.Errorf("%w: index uses a custom tokenizer, pass WithTokenizerFunc", ErrInvalidArgument)
		}

		o.tokenizer = custom
	}

	return build(o, backend, cfg)
}

func readSettings(ctx context.Context, backend storage.Backend) (map[string]string, error) {
	keys := []string{SettingLSHConfig, SettingThreshold, SettingStorageLevel, SettingTokenizer, SettingSeed}
	out := make(map[string]string, len(keys))

	for _, key := range keys {
		v, ok, err := backend.QuerySetting(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("query setting %s: %w", key, err)
		}

		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrNotInitialized, key)
		}

		out[key] = v
	}

	return out, nil
}

func (o *options) log() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}

	return o.logger
}

func build(o options, backend storage.Backend, cfg lsh.Config) (*Store, error) {
	tok := o.tokenizer
	if tok == nil {
		parsed, err := tokenize.Parse(o.tokenizerDesc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}

		tok = parsed
	}

	var indexOpts []lsh.Option
	if o.fetchLimit > 0 {
		indexOpts = append(indexOpts, lsh.WithFetchLimit(o.fetchLimit))
	}

	index, err := lsh.NewIndex(backend, cfg, indexOpts...)
	if err != nil {
		return nil, err
	}

	hasher, err := minhash.NewHasher(cfg.NumHashes, o.seed)
	if err != nil {
		return nil, err
	}

	s := &Store{
		backend:   backend,
		index:     index,
		hasher:    hasher,
		tokenize:  tok,
		tokenDesc: o.tokenizerDesc,
		level:     o.level,
		threshold: o.threshold,
		logger:    o.log(),
		metrics:   o.metrics,
		tracer:    o.tracer,
	}

	if s.metrics == nil {
		s.metrics = observability.NoopStoreMetrics()
	}

	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	return s, nil
}

// Config returns the LSH band layout.
func (s *Store) Config() lsh.Config {
	return s.index.Config()
}

// Threshold returns the similarity threshold the layout was tuned for.
func (s *Store) Threshold() float64 {
	return s.threshold
}

// StorageLevel returns the storage level of inserted documents.
func (s *Store) StorageLevel() document.StorageLevel {
	return s.level
}

// Tokenizer returns the tokenizer descriptor, e.g. "words:3".
func (s *Store) Tokenizer() string {
	return s.tokenDesc
}

// Fingerprint computes the MinHash fingerprint of text.
func (s *Store) Fingerprint(text string) minhash.Fingerprint {
	return s.hasher.Fingerprint(s.tokenize(text))
}

// Insert indexes text and returns its document id.
func (s *Store) Insert(ctx context.Context, text string, opts ...InsertOption) (uint64, error) {
	ins := insertOptions{doc: document.StoredDocument{Document: document.Ptr(text)}}

	for _, opt := range opts {
		opt(&ins)
	}

	doc := ins.doc
	id := doc.ID

	err := s.observe(ctx, opInsert, func(ctx context.Context) error {
		doc.Fingerprint = s.Fingerprint(text)

		if ins.explicitID {
			return s.index.Put(ctx, doc, s.level)
		}

		var ierr error

		id, ierr = s.index.Insert(ctx, doc, s.level)

		return ierr
	})
	if err != nil {
		return 0, err
	}

	s.logger.DebugContext(ctx, "document indexed", slog.Uint64("id", id))

	return id, nil
}

// Query returns the stored documents that share an LSH bucket with text,
// ordered by id. Documents inserted with a different exact part never match.
func (s *Store) Query(ctx context.Context, text, exactPart string) ([]document.StoredDocument, error) {
	var docs []document.StoredDocument

	err := s.observe(ctx, opQuery, func(ctx context.Context) error {
		var qerr error

		docs, qerr = s.index.Query(ctx, s.Fingerprint(text), exactPart)
		if qerr == nil {
			s.metrics.RecordCandidates(ctx, len(docs))
		}

		return qerr
	})

	return docs, err
}

// QueryTopN returns up to n candidates ranked by estimated Jaccard
// similarity to text, best first; ties are broken by id. Ranking needs the
// stored fingerprint or the stored text of each candidate.
func (s *Store) QueryTopN(ctx context.Context, n int, text, exactPart string) ([]Match, error) {
	if n <= 0 {
		return []Match{}, nil
	}

	var matches []Match

	err := s.observe(ctx, opQueryTop, func(ctx context.Context) error {
		fp := s.Fingerprint(text)

		docs, qerr := s.index.Query(ctx, fp, exactPart)
		if qerr != nil {
			return qerr
		}

		s.metrics.RecordCandidates(ctx, len(docs))

		matches = make([]Match, 0, len(docs))

		for _, doc := range docs {
			sim, serr := s.score(fp, doc)
			if serr != nil {
				return serr
			}

			matches = append(matches, Match{StoredDocument: doc, Similarity: sim})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	if len(matches) > n {
		matches = matches[:n]
	}

	return matches, nil
}

func (s *Store) score(fp minhash.Fingerprint, doc document.StoredDocument) (float64, error) {
	other := doc.Fingerprint

	if other == nil {
		if doc.Document == nil {
			return 0, fmt.Errorf("%w: ranking needs fingerprints or text (document %d)", ErrTooLowStorageLevel, doc.ID)
		}

		other = s.Fingerprint(doc.Text())
	}

	return minhash.Similarity(fp, other)
}

// RemoveByID removes a document from the index. It needs the stored
// fingerprint and fails with ErrTooLowStorageLevel below document.Fingerprint.
// A missing id is ignored unless checkIfExists is set, in which case
// storage.ErrNotFound is returned.
func (s *Store) RemoveByID(ctx context.Context, id uint64, checkIfExists bool) error {
	if !s.level.Has(document.Fingerprint) {
		return fmt.Errorf("%w: removal needs storage level %s, store uses %s",
			ErrTooLowStorageLevel, document.Fingerprint, s.level)
	}

	return s.observe(ctx, opRemove, func(ctx context.Context) error {
		return s.index.RemoveByID(ctx, id, checkIfExists)
	})
}

func (s *Store) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "narrowdown."+op)
	defer span.End()

	span.SetAttributes(
		attribute.Int("lsh.bands", s.index.Config().NumBands),
		attribute.Int("lsh.rows", s.index.Config().RowsPerBand),
	)

	start := time.Now()
	err := fn(ctx)

	s.metrics.RecordOperation(ctx, op, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}
