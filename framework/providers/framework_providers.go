package providers

import (
	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/config"
	"github.com/km-arc/go-container/framework/container"
	"github.com/km-arc/go-container/framework/logging"
	"github.com/km-arc/go-container/framework/routing"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider registers the application configuration.
//
// Registered services:
//   - *config.Config
//   - *config.ContainerConfig
//
// When Config is nil the configuration is loaded from EnvFiles (and the YAML
// overlay named by CONTAINER_CONFIG_FILE) on first use.
//
// Laravel equivalent:
//
//	// Illuminate\Foundation\Bootstrap\LoadConfiguration
//	$app->singleton('config', fn() => new Repository($items));
type ConfigServiceProvider struct {
	container.BaseProvider
	Config   *config.Config
	EnvFiles []string
}

func (p *ConfigServiceProvider) Register(app *container.Container) {
	if p.Config != nil {
		container.Singleton(app, p.Config)
	} else {
		envFiles := p.EnvFiles
		container.TryLazy(app, func() (*config.Config, error) {
			cfg := config.Load(envFiles...)
			if cfg.Container.ConfigFile != "" {
				if err := config.LoadFile(cfg.Container.ConfigFile, cfg); err != nil {
					return nil, err
				}
			}
			return cfg, nil
		})
	}

	container.TryLazy(app, func() (*config.ContainerConfig, error) {
		cfg, err := container.Get[*config.Config](app)
		if err != nil {
			return nil, err
		}
		return &cfg.Container, nil
	})
}

// ── LoggingServiceProvider ────────────────────────────────────────────────────

// LoggingServiceProvider registers the application logger.
//
// Registered services:
//   - *zap.Logger
//
// Logger defaults to one built from *config.Config with logging.New.
type LoggingServiceProvider struct {
	container.BaseProvider
	Logger *zap.Logger
}

func (p *LoggingServiceProvider) Register(app *container.Container) {
	if p.Logger != nil {
		container.Singleton(app, p.Logger)
		return
	}
	container.TryLazy(app, func() (*zap.Logger, error) {
		cfg, err := container.Get[*config.Config](app)
		if err != nil {
			return nil, err
		}
		return logging.New(cfg)
	})
}

func (p *LoggingServiceProvider) Boot(app *container.Container) {
	log := container.MustGet[*zap.Logger](app)
	cfg := container.MustGet[*config.Config](app)
	log.Info("logger ready",
		zap.String("env", cfg.App.Env),
		zap.String("level", cfg.Log.Level),
	)
}

// ── ScopePoolServiceProvider ──────────────────────────────────────────────────

// ScopePoolServiceProvider registers the request scope machinery.
//
// Registered services:
//   - *container.ScopePool     pool of child scopes of app
//   - *container.ScopeBuilder  steps applied to every request scope
//
// Other providers add request-local services in their Register method:
//
//	func (p *SessionProvider) Register(app *container.Container) {
//	    container.MustGet[*container.ScopeBuilder](app).With(func(s *container.Container) {
//	        container.Lazy(s, NewSession)
//	    })
//	}
type ScopePoolServiceProvider struct {
	container.BaseProvider
}

func (p *ScopePoolServiceProvider) Register(app *container.Container) {
	container.Singleton(app, container.NewScopeBuilder())
	container.Lazy(app, func() *container.ScopePool {
		size := container.DefaultPoolSize
		if cfg, ok := container.TryGet[*config.ContainerConfig](app); ok {
			size = cfg.PoolSize
		}
		return container.NewScopePool(app, size)
	})
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider registers the HTTP router.
//
// Registered services:
//   - *routing.Router  with a request scope per request
//
// Laravel equivalent:
//
//	// Illuminate\Routing\RoutingServiceProvider
//	$app->singleton('router', fn($app) => new Router($app['events'], $app));
type RoutingServiceProvider struct {
	container.BaseProvider
}

func (p *RoutingServiceProvider) Register(app *container.Container) {
	container.Lazy(app, func() *routing.Router {
		var opts []routing.Option
		if log, ok := container.TryGet[*zap.Logger](app); ok {
			opts = append(opts, routing.WithLogger(log))
		}
		r := routing.New(opts...)
		r.Middleware(routing.RequestScope(
			container.MustGet[*container.ScopePool](app),
			container.MustGet[*container.ScopeBuilder](app),
		))
		return r
	})
}
