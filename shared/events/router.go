package events

import (
	"context"

	"go.uber.org/zap"
)

// HandlerFunc adapts a function to EventHandler
type HandlerFunc func(ctx context.Context, event *Event) error

func (f HandlerFunc) Handle(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

type route struct {
	pattern Topic
	handler EventHandler
}

// Router dispatches an event to every handler whose pattern matches its topic. Events
// nobody listens to are acknowledged and dropped.
type Router struct {
	routes []route
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{logger: logger}
}

// On registers handler for topics matching pattern
func (r *Router) On(pattern Topic, handler EventHandler) *Router {
	r.routes = append(r.routes, route{pattern: pattern, handler: handler})
	return r
}

func (r *Router) Handle(ctx context.Context, event *Event) error {
	matched := false
	for _, rt := range r.routes {
		if !event.Topic.Matches(rt.pattern) {
			continue
		}
		matched = true
		if err := rt.handler.Handle(ctx, event); err != nil {
			return err
		}
	}

	if !matched {
		r.logger.Debug("no handler for event", zap.String("topic", event.Topic.String()), zap.String("event_id", event.ID.String()))
	}
	return nil
}
