// Package lifecycle tracks the host application's foreground state as
// reported by the host.
package lifecycle

import (
	"sync/atomic"

	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

// Tracker holds the last reported AppState.
type Tracker struct {
	state atomic.Value
}

func NewTracker(initial pushclient.AppState) *Tracker {
	t := &Tracker{}
	t.state.Store(initial)
	return t
}

func (t *Tracker) State() pushclient.AppState {
	return t.state.Load().(pushclient.AppState)
}

func (t *Tracker) Set(state pushclient.AppState) {
	t.state.Store(state)
}
