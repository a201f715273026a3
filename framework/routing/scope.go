package routing

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/km-arc/go-container/framework/container"
)

// RequestInfo describes the current request. RequestScope registers one in
// every request scope.
type RequestInfo struct {
	ID         string
	Method     string
	Path       string
	RemoteAddr string
	Started    time.Time
}

type scopeCtxKey struct{}

// RequestScope gives every request its own child scope, borrowed from pool
// and released when the handler returns or panics. The scope holds a
// *RequestInfo plus whatever the optional builders register; handlers reach
// it with Scope.
//
//	pool := container.NewScopePool(app, 64)
//	router.Middleware(routing.RequestScope(pool))
//
//	router.Get("/me", func(w http.ResponseWriter, r *http.Request) {
//	    info := container.MustGet[*routing.RequestInfo](routing.Scope(r))
//	    ...
//	})
func RequestScope(pool *container.ScopePool, setup ...*container.ScopeBuilder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := pool.Acquire()
			defer s.Release()

			container.Singleton(s.Container, &RequestInfo{
				ID:         middleware.GetReqID(r.Context()),
				Method:     r.Method,
				Path:       r.URL.Path,
				RemoteAddr: r.RemoteAddr,
				Started:    time.Now(),
			})
			for _, b := range setup {
				b.Apply(s.Container)
			}

			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), s.Container)))
		})
	}
}

// WithScope returns a copy of ctx carrying scope.
func WithScope(ctx context.Context, scope *container.Container) context.Context {
	return context.WithValue(ctx, scopeCtxKey{}, scope)
}

// ScopeFrom returns the request scope stored in ctx.
func ScopeFrom(ctx context.Context) (*container.Container, bool) {
	s, ok := ctx.Value(scopeCtxKey{}).(*container.Container)
	return s, ok && s != nil
}

// Scope returns the request's scope, or nil when RequestScope is not in the
// middleware chain.
func Scope(r *http.Request) *container.Container {
	s, _ := ScopeFrom(r.Context())
	return s
}
