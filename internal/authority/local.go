// Package authority provides a NotificationAuthority for hosts without a
// platform notification subsystem, such as agents and simulators.
package authority

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

var (
	// ErrNoCapabilities is reported when a request asks for nothing.
	ErrNoCapabilities = errors.New("no notification capabilities requested")
	// ErrNotAuthorized is reported when registering without a grant.
	ErrNotAuthorized = errors.New("remote notifications not authorized")
)

// TokenSink receives raw device-token bytes.
type TokenSink func(ctx context.Context, raw []byte)

// FailureSink receives registration failures.
type FailureSink func(ctx context.Context, err error)

// LocalAuthority answers permission requests from a policy switch and issues
// device tokens derived from the installation id, so the same installation
// sees the same token across restarts until Rotate is called.
type LocalAuthority struct {
	installationID string
	logger         *slog.Logger

	mu            sync.Mutex
	autoGrant     bool
	authorization pushclient.Authorization
	registered    bool
	token         []byte
	onToken       TokenSink
	onFailure     FailureSink

	// Callbacks run one at a time, in the order they were queued.
	queueMu  sync.Mutex
	queue    []func()
	draining bool
}

func NewLocalAuthority(installationID string, autoGrant bool, logger *slog.Logger) *LocalAuthority {
	return &LocalAuthority{
		installationID: installationID,
		autoGrant:      autoGrant,
		token:          derivedToken(installationID),
		logger:         logger.With("component", "LocalAuthority"),
	}
}

// Deliver sets the sinks for asynchronous token and failure callbacks.
func (a *LocalAuthority) Deliver(onToken TokenSink, onFailure FailureSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onToken = onToken
	a.onFailure = onFailure
}

func (a *LocalAuthority) RequestAuthorization(ctx context.Context, opts pushclient.AuthorizationOptions, done func(bool, error)) {
	a.enqueue(func() {
		a.mu.Lock()
		var err error
		granted := a.autoGrant
		if !opts.Alert && !opts.Badge && !opts.Sound {
			granted, err = false, ErrNoCapabilities
		}
		if granted {
			a.authorization = pushclient.AuthorizationGranted
		} else {
			a.authorization = pushclient.AuthorizationDenied
			a.registered = false
		}
		a.mu.Unlock()

		a.logger.Debug("Authorization answered", "granted", granted)
		done(granted, err)
	})
}

// RegisterForRemoteNotifications queues the current token, or ErrNotAuthorized
// without a grant. The token is read and queued under one lock so deliveries
// never go backwards.
func (a *LocalAuthority) RegisterForRemoteNotifications(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.authorization != pushclient.AuthorizationGranted {
		if onFailure := a.onFailure; onFailure != nil {
			a.enqueue(func() { onFailure(ctx, ErrNotAuthorized) })
		}
		return
	}
	a.registered = true
	if onToken := a.onToken; onToken != nil {
		token := append([]byte(nil), a.token...)
		a.enqueue(func() { onToken(ctx, token) })
	}
}

func (a *LocalAuthority) CurrentAuthorizationStatus(context.Context) (pushclient.AuthStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return pushclient.AuthStatus{Authorization: a.authorization, RemoteRegistered: a.registered}, nil
}

// Rotate replaces the device token with a random one and, if registered,
// delivers it.
func (a *LocalAuthority) Rotate(ctx context.Context) {
	first, second := uuid.New(), uuid.New()

	a.mu.Lock()
	a.token = append(first[:], second[:]...)
	registered := a.registered
	a.mu.Unlock()

	if registered {
		a.RegisterForRemoteNotifications(ctx)
	}
}

// enqueue schedules job after every earlier callback. A drain goroutine runs
// only while the queue is non-empty.
func (a *LocalAuthority) enqueue(job func()) {
	a.queueMu.Lock()
	a.queue = append(a.queue, job)
	start := !a.draining
	a.draining = true
	a.queueMu.Unlock()

	if start {
		go a.drain()
	}
}

func (a *LocalAuthority) drain() {
	for {
		a.queueMu.Lock()
		if len(a.queue) == 0 {
			a.draining = false
			a.queueMu.Unlock()
			return
		}
		job := a.queue[0]
		a.queue = a.queue[1:]
		a.queueMu.Unlock()

		job()
	}
}

// derivedToken builds 32 bytes, the size of an APNs device token, from two
// name-based UUIDs.
func derivedToken(installationID string) []byte {
	first := uuid.NewSHA1(uuid.NameSpaceURL, []byte(installationID+"/device-token/0"))
	second := uuid.NewSHA1(uuid.NameSpaceURL, []byte(installationID+"/device-token/1"))
	return append(first[:], second[:]...)
}
