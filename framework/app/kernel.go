package app

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/config"
	"github.com/km-arc/go-container/framework/container"
	gohttp "github.com/km-arc/go-container/framework/http"
	"github.com/km-arc/go-container/framework/logging"
	"github.com/km-arc/go-container/framework/providers"
	"github.com/km-arc/go-container/framework/routing"
)

// Version is the framework version reported by the debug endpoint.
const Version = "0.2.0"

// Application is the top-level application container.
// It embeds the root Container and the ProviderRegistry so user code can
// register services and providers on app directly, like $app in Laravel's
// bootstrap/app.php.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry

	cfg    *config.Config
	log    *zap.Logger
	frozen *container.Frozen
}

// New loads configuration from envFiles and the optional YAML overlay and
// creates the application. It panics when the configuration or logger cannot
// be built.
func New(envFiles ...string) *Application {
	cfg := config.Load(envFiles...)
	if cfg.Container.ConfigFile != "" {
		if err := config.LoadFile(cfg.Container.ConfigFile, cfg); err != nil {
			panic(err)
		}
	}
	a, err := NewWithConfig(cfg)
	if err != nil {
		panic(err)
	}
	return a
}

// NewWithConfig creates the application from an already loaded config.
func NewWithConfig(cfg *config.Config) (*Application, error) {
	log, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}

	opts := []container.Option{
		container.WithLogger(log),
		container.WithShards(cfg.Container.Shards),
	}
	if !cfg.Container.HotCache {
		opts = append(opts, container.WithoutHotCache())
	}
	if cfg.Container.WeakParents {
		opts = append(opts, container.WithWeakParents())
	}

	c := container.New(opts...)
	a := &Application{
		Container: c,
		Providers: container.NewProviderRegistry(c),
		cfg:       cfg,
		log:       log,
	}

	// Register framework core providers (same order as Laravel)
	a.Register(&providers.ConfigServiceProvider{Config: cfg})
	a.Register(&providers.LoggingServiceProvider{Logger: log})
	a.Register(&providers.ScopePoolServiceProvider{})
	a.Register(&providers.RoutingServiceProvider{})

	return a, nil
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(provider container.ServiceProvider) {
	a.Providers.Register(provider)
}

// Boot runs the Boot() phase on all providers, then locks and optionally
// freezes the root container as configured. Calling Boot again is a no-op.
func (a *Application) Boot() error {
	if a.Providers.Booted() {
		return nil
	}
	a.Providers.Boot()

	if a.cfg.App.Debug {
		a.Router().Get("/debug/container", a.debugContainer)
	}

	cc := a.cfg.Container
	if cc.LockOnBoot || cc.FreezeOnBoot {
		// Force the router and pool into existence while registration is
		// still possible for their lazy dependencies.
		_ = a.Router()
		a.Lock()
	}
	if cc.FreezeOnBoot {
		fz, err := a.Freeze()
		if err != nil {
			return fmt.Errorf("boot: %w", err)
		}
		a.frozen = fz
	}

	a.log.Info("application booted",
		zap.Stringer("scope", a.ID()),
		zap.Int("services", a.Len()),
		zap.Bool("locked", a.IsLocked()),
		zap.Bool("frozen", a.frozen != nil),
	)
	return nil
}

// Resolver returns the frozen snapshot once the application is frozen and
// the live root container otherwise.
func (a *Application) Resolver() container.Resolver {
	if a.frozen != nil {
		return a.frozen
	}
	return a.Container
}

// Config returns the application configuration.
func (a *Application) Config() *config.Config {
	return container.MustGet[*config.Config](a.Resolver())
}

// Logger returns the application logger.
func (a *Application) Logger() *zap.Logger { return a.log }

// Router resolves *routing.Router from the container.
func (a *Application) Router() *routing.Router {
	return container.MustGet[*routing.Router](a.Resolver())
}

// Pool resolves the request scope pool.
func (a *Application) Pool() *container.ScopePool {
	return container.MustGet[*container.ScopePool](a.Resolver())
}

// RequestScopes returns the builder applied to every request scope.
func (a *Application) RequestScopes() *container.ScopeBuilder {
	return container.MustGet[*container.ScopeBuilder](a.Resolver())
}

// Frozen reports whether the application serves from a frozen snapshot.
func (a *Application) Frozen() bool { return a.frozen != nil }

// Handler boots the application if needed and returns its HTTP handler.
func (a *Application) Handler() (http.Handler, error) {
	if err := a.Boot(); err != nil {
		return nil, err
	}
	return a.Router(), nil
}

// Run boots the application (if needed) and starts the HTTP server.
func (a *Application) Run() {
	defer func() { _ = a.log.Sync() }()

	h, err := a.Handler()
	if err != nil {
		a.log.Fatal("boot failed", zap.Error(err))
	}
	addr := ":" + a.cfg.App.Port
	a.log.Info("server starting",
		zap.String("name", a.cfg.App.Name),
		zap.String("addr", addr),
		zap.String("env", a.cfg.App.Env),
	)
	if err := http.ListenAndServe(addr, h); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Fatal("server error", zap.Error(err))
	}
}

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.cfg.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.cfg.App.Debug }
func (a *Application) Version() string     { return Version }

// ── Debug endpoint ────────────────────────────────────────────────────────────

type scopeReport struct {
	ID       string   `json:"id"`
	Depth    int      `json:"depth"`
	Locked   bool     `json:"locked"`
	Services []string `json:"services"`
}

func reportScope(c *container.Container) scopeReport {
	types := c.RegisteredTypes()
	sort.Strings(types)
	return scopeReport{
		ID:       c.ID().String(),
		Depth:    c.Depth(),
		Locked:   c.IsLocked(),
		Services: types,
	}
}

// debugContainer reports the request scope and the root container.
func (a *Application) debugContainer(w http.ResponseWriter, r *http.Request) {
	res := gohttp.NewResponse(w)

	scope := routing.Scope(r)
	if scope == nil {
		res.ServerError("request scope middleware is not installed")
		return
	}
	info, err := container.Get[*routing.RequestInfo](scope)
	if err != nil {
		res.FromError(err)
		return
	}

	res.Success(map[string]any{
		"version":    Version,
		"request_id": info.ID,
		"frozen":     a.frozen != nil,
		"request":    reportScope(scope),
		"root":       reportScope(a.Container),
		"pool": map[string]int{
			"size":      a.Pool().Size(),
			"available": a.Pool().Available(),
		},
	})
}
