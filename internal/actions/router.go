// Package actions turns dispatched pushes into in-app behaviour.
package actions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

// Handler reacts to a push that carries the key it was registered for.
type Handler func(ctx context.Context, dispatchID string, push pushclient.PendingPush) error

type route struct {
	key     string
	handler Handler
}

// Router implements pushclient.ActionDispatcher by payload key. Every
// handler whose key is present runs, in registration order. A push that
// matches nothing goes to the fallback.
type Router struct {
	mu       sync.RWMutex
	routes   []route
	fallback Handler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	r := &Router{logger: logger.With("component", "ActionRouter")}
	r.fallback = func(_ context.Context, dispatchID string, push pushclient.PendingPush) error {
		r.logger.Info("Push carried no routed keys", "dispatch_id", dispatchID, "keys", len(push.Payload))
		return nil
	}
	return r
}

// Handle registers h for pushes carrying key.
func (r *Router) Handle(key string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{key: key, handler: h})
}

// Fallback replaces the handler for unmatched pushes.
func (r *Router) Fallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

func (r *Router) Dispatch(ctx context.Context, push pushclient.PendingPush) {
	dispatchID := uuid.NewString()
	log := r.logger.With("dispatch_id", dispatchID, "received_state", push.ReceivedState)

	r.mu.RLock()
	var matched []route
	for _, rt := range r.routes {
		if _, ok := push.Payload[rt.key]; ok {
			matched = append(matched, rt)
		}
	}
	fallback := r.fallback
	r.mu.RUnlock()

	if len(matched) == 0 {
		if err := fallback(ctx, dispatchID, push); err != nil {
			log.Error("Fallback action failed", "err", err)
		}
		return
	}

	for _, rt := range matched {
		if err := rt.handler(ctx, dispatchID, push); err != nil {
			log.Error("Push action failed", "key", rt.key, "err", err)
			continue
		}
		log.Debug("Push action handled", "key", rt.key)
	}
}
