// Package app assembles the routing engine from configuration: storage,
// LLM providers, the matching engine and the services built on them.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ziadkadry99/expertroute/internal/audit"
	"github.com/ziadkadry99/expertroute/internal/bots"
	"github.com/ziadkadry99/expertroute/internal/classifier"
	"github.com/ziadkadry99/expertroute/internal/config"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/embeddings"
	"github.com/ziadkadry99/expertroute/internal/experts"
	"github.com/ziadkadry99/expertroute/internal/forwarding"
	"github.com/ziadkadry99/expertroute/internal/lifecycle"
	"github.com/ziadkadry99/expertroute/internal/llm"
	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/matching"
	"github.com/ziadkadry99/expertroute/internal/network"
	"github.com/ziadkadry99/expertroute/internal/notifications"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/routing"
	"github.com/ziadkadry99/expertroute/internal/server"
	"github.com/ziadkadry99/expertroute/internal/sweep"
	"github.com/ziadkadry99/expertroute/internal/synthetic"
	"github.com/ziadkadry99/expertroute/internal/telemetry"
	"github.com/ziadkadry99/expertroute/internal/vectordb"
)

// Options override parts of the assembly, mainly for tests. Zero values
// are built from the configuration.
type Options struct {
	// DB is used instead of opening cfg.Database.Path.
	DB *db.DB
	// Classifier replaces the configured classification provider.
	Classifier llm.Provider
	// Synthesizer replaces the configured synthetic-response provider and
	// enables synthetic responses.
	Synthesizer llm.Provider
	// Embedder replaces the configured embedding provider and enables
	// similar-question search.
	Embedder embeddings.Embedder
	// Cache replaces the configured candidate cache.
	Cache     experts.Cache
	Logger    logger.Logger
	Telemetry *telemetry.Provider
}

// App holds every wired component.
type App struct {
	Config        *config.Config
	Logger        logger.Logger
	Telemetry     *telemetry.Provider
	DB            *db.DB
	Questions     *questions.Store
	Forwards      *forwarding.Store
	Matches       *matching.Store
	Experts       *experts.Store
	Network       *network.Store
	Notifications *notifications.Store
	Dispatcher    *notifications.Dispatcher
	Audit         *audit.Store
	Lifecycle     *lifecycle.Manager
	Routing       *routing.Service
	Sweeper       *sweep.Sweeper
	// Index is nil unless similar-question search is enabled.
	Index *vectordb.ChromemStore

	ownsDB bool
	redis  *redis.Client
}

// New validates cfg and wires the engine.
func New(cfg *config.Config, opts Options) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a = &App{Config: cfg, Logger: opts.Logger, Telemetry: opts.Telemetry, DB: opts.DB}
	if a.Logger == nil {
		a.Logger = logger.NewNop()
	}
	if a.Telemetry == nil {
		a.Telemetry = telemetry.NewProvider()
	}
	if a.DB == nil {
		if a.DB, err = db.Open(cfg.Database.Path); err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.ownsDB = true
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	cache := opts.Cache
	if cache == nil && cfg.Cache.Enabled {
		if a.redis, err = experts.NewRedisClient(cfg.Cache); err != nil {
			return nil, err
		}
		cache = experts.NewRedisCache(a.redis, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	}

	a.Questions = questions.NewStore(a.DB)
	a.Forwards = forwarding.NewStore(a.DB)
	a.Matches = matching.NewStore(a.DB)
	a.Experts = experts.NewStore(a.DB)
	if cache != nil {
		a.Experts = a.Experts.WithCache(cache, a.Logger.With(logger.String("component", "experts")))
	}
	a.Network = network.NewStore(a.DB, cfg.Network.MaxDepth)
	a.Notifications = notifications.NewStore(a.DB)
	a.Dispatcher = notifications.NewDispatcher(a.Notifications, a.Logger.With(logger.String("component", "notifications")))
	a.Audit = audit.NewStore(a.DB)
	recorder := audit.NewRecorder(a.Audit, a.Logger.With(logger.String("component", "audit")))

	classify, err := a.classifier(opts.Classifier)
	if err != nil {
		return nil, err
	}
	generator, err := a.generator(opts.Synthesizer)
	if err != nil {
		return nil, err
	}

	if a.Index, err = a.similarIndex(opts.Embedder); err != nil {
		return nil, err
	}
	var index vectordb.VectorStore
	if a.Index != nil {
		index = a.Index
	}

	engine, err := matching.NewEngine(matching.OptionsFromConfig(cfg.Matching))
	if err != nil {
		return nil, fmt.Errorf("building matching engine: %w", err)
	}

	a.Lifecycle = lifecycle.NewManager(lifecycle.Deps{
		DB:         a.DB,
		Questions:  a.Questions,
		Forwards:   a.Forwards,
		Network:    a.Network,
		Matches:    a.Matches,
		Experts:    a.Experts,
		Classifier: classify,
		Generator:  generator,
		Dispatcher: a.Dispatcher,
		Audit:      recorder,
		Telemetry:  a.Telemetry,
		Logger:     a.Logger.With(logger.String("component", "lifecycle")),
	}, lifecycle.OptionsFromConfig(cfg.Lifecycle))

	a.Routing = routing.NewService(routing.Deps{
		Lifecycle: a.Lifecycle,
		Ledger:    forwarding.NewLedger(a.DB, a.Forwards, a.Questions, a.Network),
		Engine:    engine,
		Questions: a.Questions,
		Forwards:  a.Forwards,
		Matches:   a.Matches,
		Experts:   a.Experts,
		Network:   a.Network,
		Notifier: notifications.NewMatchNotifier(a.Matches, a.Experts, a.Dispatcher,
			cfg.Matching.NotifyTopN, a.Logger.With(logger.String("component", "notifier"))),
		Audit:          recorder,
		Telemetry:      a.Telemetry,
		Index:          index,
		MinSimilarity:  float32(cfg.Similar.MinSimilarity),
		CandidateLimit: cfg.Matching.CandidateLimit,
		Logger:         a.Logger.With(logger.String("component", "routing")),
	})

	a.Sweeper = sweep.New(a.Questions, a.Experts, a.Routing, a.Telemetry,
		a.Logger.With(logger.String("component", "sweep")), cfg.Sweep.Limit)
	return a, nil
}

func (a *App) classifier(override llm.Provider) (*classifier.Classifier, error) {
	c := a.Config.Classifier
	timeout := time.Duration(c.TimeoutSeconds) * time.Second
	if override != nil {
		return classifier.New(override, c.Model, timeout), nil
	}
	model := c.Model
	if model == "" {
		model = config.GetPreset(c.Provider, c.Quality).Model
	}
	p, err := llm.NewProvider(string(c.Provider), model, c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating classification provider: %w", err)
	}
	if c.RequestsPerMinute > 0 {
		p = llm.NewRateLimitedProvider(p, c.RequestsPerMinute)
	}
	return classifier.New(p, model, timeout), nil
}

func (a *App) generator(override llm.Provider) (*synthetic.Generator, error) {
	s := a.Config.Synthetic
	if override != nil {
		return synthetic.NewGenerator(override, s.Model), nil
	}
	if !s.Enabled {
		return nil, nil
	}
	p, err := llm.NewProvider(string(s.Provider), s.Model, s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating synthetic response provider: %w", err)
	}
	return synthetic.NewGenerator(p, s.Model), nil
}

// similarIndex builds the embedding index and loads a saved copy when one
// exists.
func (a *App) similarIndex(override embeddings.Embedder) (*vectordb.ChromemStore, error) {
	s := a.Config.Similar
	e := override
	if e == nil {
		if !s.Enabled {
			return nil, nil
		}
		var err error
		if e, err = embeddings.New(string(s.Provider), s.Model, s.BaseURL, s.Dimensions); err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
	}
	store, err := vectordb.NewChromemStore(e)
	if err != nil {
		return nil, fmt.Errorf("creating similarity index: %w", err)
	}
	if s.IndexPath == "" {
		return store, nil
	}
	if _, err := os.Stat(s.IndexPath); err == nil {
		if err := store.Load(s.IndexPath); err != nil {
			return nil, fmt.Errorf("loading similarity index: %w", err)
		}
		a.Logger.Info("loaded similarity index",
			logger.String("path", s.IndexPath),
			logger.Int("questions", store.Count()),
		)
	}
	return store, nil
}

// HTTPServer returns the HTTP server with every feature route mounted.
func (a *App) HTTPServer() *server.Server {
	var chat *server.BotHandlers
	if a.Config.Bots.Enabled {
		gw := bots.NewGateway(bots.NewProcessor(a.Routing, a.Config.Bots.FeedSize,
			a.Logger.With(logger.String("component", "bots"))))
		chat = &server.BotHandlers{
			Slack: bots.NewSlackHandler(gw, a.Config.Bots.SlackSigningSecret),
			Teams: bots.NewTeamsHandler(gw),
		}
	}
	return server.New(server.Config{
		Port:     a.Config.Server.Port,
		AllowAll: a.Config.Server.AllowAllOrigins,
	}, server.Handlers{
		Routing:       a.Routing,
		Experts:       a.Experts,
		Network:       a.Network,
		Notifications: a.Notifications,
		Dispatcher:    a.Dispatcher,
		Audit:         a.Audit,
		Telemetry:     a.Telemetry,
		Bots:          chat,
	}, a.Logger.With(logger.String("component", "http")))
}

// Close releases the resources New opened.
func (a *App) Close() error {
	var firstErr error
	if a.Index != nil && a.Config.Similar.IndexPath != "" {
		path := a.Config.Similar.IndexPath
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			firstErr = fmt.Errorf("creating index directory: %w", err)
		} else if err := a.Index.Persist(path); err != nil {
			firstErr = err
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.ownsDB && a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
