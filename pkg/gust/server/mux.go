package server

import (
	"github.com/sylphxai/gust/pkg/gust/http11"
	"github.com/sylphxai/gust/pkg/gust/router"
)

// Mux binds the router package's radix trie to a table of Context
// handlers, producing a Handler (ServeContext) the connection driver calls
// synchronously once per request.
type Mux struct {
	router   *router.Router
	handlers []http11.Handler

	// NotFound customizes the router-miss response; a nil NotFound writes
	// a plain-text 404. MethodNotAllowed is not consulted by ServeContext:
	// a path registered only for other methods is answered by NotFound.
	NotFound         http11.Handler
	MethodNotAllowed http11.Handler
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{router: router.New()}
}

// Handle registers a handler for method+pattern. method may be a standard
// HTTP method token or router.WildcardMethod to match every standard
// method.
func (m *Mux) Handle(method, pattern string, h http11.Handler) {
	m.handlers = append(m.handlers, h)
	id := router.HandlerID(len(m.handlers)) // 1-based; 0 means "no match"
	m.router.Insert(method, pattern, id)
}

// GET registers a GET handler. Analogous shorthands follow the same
// pattern for the other standard methods.
func (m *Mux) GET(pattern string, h http11.Handler)    { m.Handle("GET", pattern, h) }
func (m *Mux) POST(pattern string, h http11.Handler)   { m.Handle("POST", pattern, h) }
func (m *Mux) PUT(pattern string, h http11.Handler)    { m.Handle("PUT", pattern, h) }
func (m *Mux) DELETE(pattern string, h http11.Handler) { m.Handle("DELETE", pattern, h) }
func (m *Mux) PATCH(pattern string, h http11.Handler)  { m.Handle("PATCH", pattern, h) }
func (m *Mux) HEAD(pattern string, h http11.Handler)   { m.Handle("HEAD", pattern, h) }
func (m *Mux) OPTIONS(pattern string, h http11.Handler) {
	m.Handle("OPTIONS", pattern, h)
}

// Any registers h for every standard method (router.WildcardMethod).
func (m *Mux) Any(pattern string, h http11.Handler) {
	m.Handle(router.WildcardMethod, pattern, h)
}

// ServeContext is the Mux's Handler: look up (method, path) in the trie,
// populate ctx.Params from the match, and dispatch. A HEAD request with no
// explicit HEAD route falls through to the GET match instead of 404ing —
// that's the generic HEAD behavior RFC 7231 §4.3.2 expects from any server
// that doesn't register HEAD handlers for every GET route — but the
// response body must never actually reach the wire for it, so the writer
// is told to drop body bytes before the fallen-through GET handler runs.
func (m *Mux) ServeContext(ctx *http11.Context) error {
	method := ctx.Method()
	path := ctx.Path()

	match, ok := m.router.Find(method, path)
	if !ok && method == "HEAD" {
		match, ok = m.router.Find("GET", path)
		if ok {
			ctx.Writer.SuppressBody(true)
		}
	}
	if !ok {
		return m.notFound(ctx)
	}

	for _, p := range match.Params {
		ctx.Params.Add(p.Name, p.Value)
	}

	return m.handlers[match.HandlerID-1](ctx)
}

func (m *Mux) notFound(ctx *http11.Context) error {
	if m.NotFound != nil {
		return m.NotFound(ctx)
	}
	return ctx.Writer.WriteError(404, "Not Found")
}
