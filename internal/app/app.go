// Package app wires the session components together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sessionkeeper/config"
	"sessionkeeper/internal/backend"
	"sessionkeeper/internal/client"
	"sessionkeeper/internal/clock"
	"sessionkeeper/internal/core"
	"sessionkeeper/internal/events"
	"sessionkeeper/internal/guard"
	"sessionkeeper/internal/logging"
	"sessionkeeper/internal/refresh"
	"sessionkeeper/internal/scheduler"
	"sessionkeeper/internal/session"
	"sessionkeeper/internal/settings"
	"sessionkeeper/internal/storage"
	"sessionkeeper/internal/storage/memory"
	redisstore "sessionkeeper/internal/storage/redis"
	"sessionkeeper/internal/storage/sqlite"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// App is one client instance with its session and collaborators
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	KV        storage.KeyValue
	Store     *storage.CredentialStore
	Backend   *backend.Client
	Refresher *refresh.Refresher
	Scheduler *scheduler.Scheduler
	Session   *session.Session
	Manager   session.Manager // Session with call logging
	Client    *client.Client
	Router    *guard.Router
	Settings  *settings.Store
	Bus       *events.Bus // nil unless events are enabled

	closers  []func() error
	mu       sync.Mutex
	cancel   context.CancelFunc
	follower sync.WaitGroup
}

type options struct {
	clock      clock.Clock
	logger     *slog.Logger
	httpClient *http.Client
	kv         storage.KeyValue
	pubsub     pubSub
}

type pubSub interface {
	message.Publisher
	message.Subscriber
}

// Option customizes New
type Option func(*options)

// WithClock sets the clock driving token timing
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithLogger sets the logger instead of building one from config
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient sets the HTTP client. It must carry a cookie jar. Without
// it the session cookie is kept in the configured storage next to the token.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithKeyValue sets the storage medium instead of opening the configured one.
// The caller keeps ownership of kv.
func WithKeyValue(kv storage.KeyValue) Option {
	return func(o *options) { o.kv = kv }
}

// WithPubSub sets the in-process pub/sub used by the gochannel events driver,
// so several instances in one process can share it. The caller keeps
// ownership of ps.
func WithPubSub(ps pubSub) Option {
	return func(o *options) { o.pubsub = ps }
}

// New builds an App from cfg. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger(logging.LoggerConfig{
			Format: cfg.Logging.Format,
			Level:  logging.ParseLevel(cfg.Logging.Level),
		})
	}

	a := &App{Config: cfg, Logger: o.logger}
	if err := a.build(o); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(o *options) error {
	cfg := a.Config
	policy := cfg.Policy()

	// Storage
	kv := o.kv
	if kv == nil {
		opened, err := openKeyValue(cfg.Storage)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, opened.Close)
		kv = opened
	}
	a.KV = kv
	a.Store = storage.NewCredentialStore(kv)
	a.Settings = settings.NewStore(kv, a.Logger)

	// Backend
	httpClient := o.httpClient
	if httpClient == nil {
		jar, err := backend.NewPersistentJar(context.Background(), cfg.Backend.BaseURL, kv, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: time.Duration(cfg.Backend.Timeout)}
	}
	a.Backend = backend.NewClientWithHTTPClient(cfg.Backend.BaseURL, httpClient, a.Logger)

	// Refresh
	a.Refresher = refresh.New(a.Backend, a.Store, o.clock, a.Logger)
	a.Scheduler = scheduler.NewScheduler(a.Refresher, o.clock, policy.RefreshDelay(), a.Logger)

	// Events
	if cfg.Events.Enabled {
		bus, err := a.openBus(cfg.Events, o)
		if err != nil {
			return err
		}
		a.Bus = bus
	}

	// Session
	deps := session.Deps{
		Store:     a.Store,
		Refresher: a.Refresher,
		Scheduler: a.Scheduler,
		Revoker:   a.Backend,
		Clock:     o.clock,
		Logger:    a.Logger,
	}
	if a.Bus != nil {
		deps.Publisher = a.Bus
	}
	s, err := session.New(deps, session.WithPolicy(policy), session.WithLoginPath(cfg.Session.LoginPath))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	a.Session = s
	a.Manager = logging.NewSessionLogger(s, a.Logger)

	a.Router = guard.NewRouter(guard.New(guard.DefaultRoutes(), s, a.Logger), a.Logger)
	s.SetNavigator(a.Router)

	a.Client = client.New(httpClient, a.Store, a.Refresher, a.Logger)
	return nil
}

func openKeyValue(cfg config.StorageConfig) (storage.KeyValue, error) {
	switch cfg.Driver {
	case config.StorageSQLite:
		db, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return db, nil
	case config.StorageRedis:
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return redisstore.NewRedisStore(client, cfg.KeyPrefix), nil
	case config.StorageMemory, "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

func (a *App) openBus(cfg config.EventsConfig, o *options) (*events.Bus, error) {
	switch cfg.Driver {
	case config.EventsRedis:
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		bus, err := events.NewRedisBus(client, a.Logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close, bus.Close)
		return bus, nil
	default:
		ps := o.pubsub
		if ps == nil {
			owned := events.NewGoChannel(a.Logger)
			a.closers = append(a.closers, owned.Close)
			ps = owned
		}
		return events.NewBus(ps, ps, a.Logger), nil
	}
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Start settles the session and, with events enabled, starts following
// changes made by other instances until Close.
func (a *App) Start(ctx context.Context) core.AuthState {
	state := a.Manager.InitAuth(ctx)

	if a.Bus != nil {
		a.mu.Lock()
		if a.cancel == nil {
			followCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			a.cancel = cancel
			a.follower.Add(1)
			go func() {
				defer a.follower.Done()
				if err := a.Bus.Follow(followCtx, a.Session); err != nil {
					a.Logger.Error("Event follower stopped", "error", err)
				}
			}()
		}
		a.mu.Unlock()
	}
	return state
}

// Close stops background work and releases owned resources in reverse order
func (a *App) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		a.follower.Wait()
	}

	if a.Session != nil {
		a.Session.Close()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
