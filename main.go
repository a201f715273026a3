package main

import (
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/app"
	"github.com/km-arc/go-container/framework/container"
	gohttp "github.com/km-arc/go-container/framework/http"
	"github.com/km-arc/go-container/framework/routing"
)

// Clock is an application-wide service.
type Clock struct{ started time.Time }

// Counter counts requests across the whole process.
type Counter struct{ n atomic.Int64 }

// Visit is created fresh inside every request scope.
type Visit struct {
	Number int64
	At     time.Time
}

// AppServiceProvider registers the demo services.
type AppServiceProvider struct{ container.BaseProvider }

func (p *AppServiceProvider) Register(c *container.Container) {
	container.Singleton(c, &Clock{started: time.Now()})
	container.Lazy(c, func() *Counter { return &Counter{} })

	container.MustGet[*container.ScopeBuilder](c).With(func(s *container.Container) {
		container.Lazy(s, func() *Visit {
			return &Visit{
				Number: container.MustGet[*Counter](s).n.Add(1),
				At:     time.Now(),
			}
		})
	})
}

func (p *AppServiceProvider) Boot(c *container.Container) {
	container.MustGet[*zap.Logger](c).Info("demo services ready",
		zap.Int("services", c.Len()))
}

func main() {
	application := app.New() // loads .env automatically
	application.Register(&AppServiceProvider{})

	r := application.Router()

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		res := gohttp.NewResponse(w)
		res.Success(map[string]any{"message": "Welcome to go-container!"})
	})

	r.Prefix("/api/v1", func(api *routing.Router) {
		// GET /api/v1/visit
		api.Get("/visit", func(w http.ResponseWriter, req *http.Request) {
			res := gohttp.NewResponse(w)
			scope := routing.Scope(req)

			v, err := container.Get[*Visit](scope)
			if err != nil {
				res.FromError(err)
				return
			}
			clock := container.MustGet[*Clock](scope)
			res.Success(map[string]any{
				"visit":  v.Number,
				"scope":  scope.ID().String(),
				"uptime": v.At.Sub(clock.started).String(),
			})
		})

		// GET /api/v1/services/{name} reports whether a demo service is registered.
		api.Get("/services/{name}", func(w http.ResponseWriter, req *http.Request) {
			res := gohttp.NewResponse(w)
			scope := routing.Scope(req)

			var found bool
			switch routing.Param(req, "name") {
			case "clock":
				found = container.Contains[*Clock](scope)
			case "counter":
				found = container.Contains[*Counter](scope)
			case "visit":
				found = container.Contains[*Visit](scope)
			default:
				res.NotFound("Unknown service.")
				return
			}
			res.Success(map[string]any{"registered": found})
		})
	})

	application.Run()
}
