package peek

import (
	"fmt"
	"sync"
)

const MethodGet = "GET"

// Handler produces the response for a request. A returned error drops the
// connection without a response.
type Handler func(c *Context) error

// Router dispatches on the exact, case-sensitive method token. Methods
// without a handler go to the fallback.
type Router struct {
	mw       []Middleware
	handlers map[string]Handler
	fallback Handler

	mu sync.RWMutex
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]Handler),
		fallback: func(c *Context) error {
			return c.Respond(StatusNotImplemented, bodyNotImplemented)
		},
	}
}

func (r *Router) Use(m ...Middleware) {
	r.mu.Lock()
	r.mw = append(r.mw, m...)
	r.mu.Unlock()
}

// Handle registers h for method. The method is stored verbatim.
func (r *Router) Handle(method string, h Handler, mws ...Middleware) error {
	if h == nil {
		return fmt.Errorf("nil handler for %q", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[method]; ok {
		return fmt.Errorf("handler exists: %q", method)
	}
	r.handlers[method] = chain(mws...)(h)
	return nil
}

// Fallback replaces the handler for unregistered methods.
func (r *Router) Fallback(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// Serve runs the router middleware and the matching handler.
func (r *Router) Serve(c *Context) error {
	r.mu.RLock()
	h, ok := r.handlers[c.Request.Method]
	if !ok {
		h = r.fallback
	}
	mws := r.mw
	r.mu.RUnlock()
	return chain(mws...)(Recover()(h))(c)
}
