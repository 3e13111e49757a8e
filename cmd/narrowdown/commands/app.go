package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/narrowdown/pkg/config"
	"github.com/Sumatoshi-tech/narrowdown/pkg/observability"
	"github.com/Sumatoshi-tech/narrowdown/pkg/similarity"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage/memory"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage/redis"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage/sqlite"
	"github.com/Sumatoshi-tech/narrowdown/pkg/version"
)

// ErrNoIndex is returned by read-only commands when the backend holds no index.
var ErrNoIndex = errors.New("no index found (run `narrowdown index` first)")

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	verbose    bool
	quiet      bool
}

// app bundles what a command needs: configuration, telemetry, and an open
// storage backend.
type app struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
	metrics   *observability.StoreMetrics
	backend   storage.Backend
	mem       *memory.Backend
	out       io.Writer
	quiet     bool
}

func loadApp(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return nil, err
	}

	if flags.verbose {
		level = slog.LevelDebug
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.Prometheus = cfg.Telemetry.MetricsTextfile != ""
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.Format == config.LogFormatJSON
	obsCfg.LogWriter = cmd.ErrOrStderr()

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	metrics, err := observability.NewStoreMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	return &app{
		cfg:       cfg,
		providers: providers,
		logger:    providers.Logger,
		metrics:   metrics,
		out:       cmd.OutOrStdout(),
		quiet:     flags.quiet,
	}, nil
}

// openBackend opens the configured storage backend. A missing memory
// snapshot starts an empty store.
func (a *app) openBackend(ctx context.Context) error {
	st := a.cfg.Storage

	switch st.Backend {
	case config.BackendMemory:
		store, err := memory.FromFile(st.Path)

		switch {
		case errors.Is(err, fs.ErrNotExist):
			a.logger.DebugContext(ctx, "snapshot not found, starting empty", slog.String("path", st.Path))
		case err != nil:
			return err
		}

		a.mem = memory.NewBackend(store)
		a.backend = a.mem
	case config.BackendSQLite:
		backend, err := sqlite.Open(ctx, st.Path)
		if err != nil {
			return err
		}

		a.backend = backend
	case config.BackendRedis:
		backend, err := redis.Open(ctx, redis.Options{
			Addr:     st.Redis.Addr,
			Password: st.Redis.Password,
			DB:       st.Redis.DB,
			Prefix:   st.Redis.Prefix,
		})
		if err != nil {
			return err
		}

		a.backend = backend
	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidBackend, st.Backend)
	}

	return nil
}

// openStore opens the similarity index on the backend. With create set, a
// backend without an index gets a new one tuned from the configuration.
func (a *app) openStore(ctx context.Context, create bool) (*similarity.Store, error) {
	if a.backend == nil {
		if err := a.openBackend(ctx); err != nil {
			return nil, err
		}
	}

	runtimeOpts := []similarity.Option{
		similarity.WithLogger(a.logger),
		similarity.WithMetrics(a.metrics),
		similarity.WithTracer(a.providers.Tracer),
	}

	store, err := similarity.Load(ctx, a.backend, runtimeOpts...)

	switch {
	case err == nil:
		return store, nil
	case !errors.Is(err, similarity.ErrNotInitialized):
		return nil, err
	case !create:
		return nil, ErrNoIndex
	}

	idx := a.cfg.Index
	opts := append([]similarity.Option{
		similarity.WithThreshold(idx.Threshold),
		similarity.WithMaxFalseNegative(idx.MaxFalseNegative),
		similarity.WithMaxFalsePositive(idx.MaxFalsePositive),
		similarity.WithStorageLevel(idx.Level()),
		similarity.WithTokenizer(idx.Tokenizer),
		similarity.WithSeed(idx.Seed),
	}, runtimeOpts...)

	return similarity.New(ctx, a.backend, opts...)
}

// persist writes the memory snapshot back to disk. Other backends persist
// on every write.
func (a *app) persist(ctx context.Context) error {
	if a.mem == nil {
		return nil
	}

	var opts []memory.FileOption
	if a.cfg.Storage.Compress {
		opts = append(opts, memory.WithCompression())
	}

	if err := a.mem.ToFile(a.cfg.Storage.Path, opts...); err != nil {
		return err
	}

	a.logger.DebugContext(ctx, "snapshot written", slog.String("path", a.cfg.Storage.Path))

	return nil
}

// close releases the backend, exports metrics, and flushes telemetry.
func (a *app) close(ctx context.Context) error {
	var errs []error

	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}

	if path := a.cfg.Telemetry.MetricsTextfile; path != "" {
		errs = append(errs, a.providers.WriteTextfile(path))
	}

	errs = append(errs, a.providers.Shutdown(ctx))

	return errors.Join(errs...)
}

func (a *app) status(attr color.Attribute, format string, args ...any) {
	if a.quiet {
		return
	}

	color.New(attr).Fprintf(a.out, format+"\n", args...)
}

// run loads the app, runs fn, and always closes the app afterwards.
func run(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	a, err := loadApp(cmd, flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return errors.Join(fn(ctx, a), a.close(context.Background()))
}
