package pushclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Options are the coordinator's policy switches.
type Options struct {
	// ShowSystemAlert lets the platform present notifications that arrive
	// while the app is in the foreground. When false the app owns
	// presentation and the payload goes through the push pipeline.
	ShowSystemAlert bool
	// Authorization is passed to the authority on every request. The zero
	// value is replaced by DefaultAuthorizationOptions.
	Authorization AuthorizationOptions
}

// Coordinator mediates between the notification authority and the host's
// backend and action layers.
//
// All state lives behind mu. Collaborators are called with every lock
// released so they may call back into the coordinator. The exceptions are
// FlagStore and BackendSync.FetchSavedToken, which must not.
type Coordinator struct {
	authority NotificationAuthority
	backend   BackendSync
	actions   ActionDispatcher
	delegate  Delegate
	flagStore FlagStore
	opts      Options
	logger    *slog.Logger

	mu          sync.Mutex
	flags       Flags
	latestToken string
	hasToken    bool
	pending     *PendingPush

	// reconcileMu serializes fetch-and-decide and hands out tickets.
	// Outcomes are emitted in ticket order after it is released.
	reconcileMu sync.Mutex
	tickets     uint64

	turnMu   sync.Mutex
	turnCond *sync.Cond
	turn     uint64
}

// New loads the persisted flags and returns a ready coordinator.
func New(
	ctx context.Context,
	authority NotificationAuthority,
	backend BackendSync,
	actions ActionDispatcher,
	delegate Delegate,
	flagStore FlagStore,
	opts Options,
	logger *slog.Logger,
) (*Coordinator, error) {
	if authority == nil || backend == nil || actions == nil || delegate == nil || flagStore == nil {
		return nil, ErrNilCollaborator
	}
	if opts.Authorization == (AuthorizationOptions{}) {
		opts.Authorization = DefaultAuthorizationOptions()
	}

	flags, err := flagStore.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification flags: %w", err)
	}

	c := &Coordinator{
		authority: authority,
		backend:   backend,
		actions:   actions,
		delegate:  delegate,
		flagStore: flagStore,
		opts:      opts,
		logger:    logger.With("component", "PushCoordinator"),
		flags:     flags,
	}
	c.turnCond = sync.NewCond(&c.turnMu)
	return c, nil
}

// Start wires the coordinator into a fresh process. A launch caused by a
// push is routed as if the push had just been received in the launch state.
func (c *Coordinator) Start(ctx context.Context, launch Launch, registerNow bool) {
	if registerNow {
		c.RequestPermission(ctx)
	}
	if launch.RemoteNotification != nil {
		c.logger.Info("Launched from remote notification", "state", launch.State)
		c.HandlePushReceived(ctx, launch.RemoteNotification, launch.State)
	}
}

// RequestPermission asks the authority for permission without blocking.
// The returned channel yields exactly one result and is then closed.
// Cancelling ctx does not abandon the request.
func (c *Coordinator) RequestPermission(ctx context.Context) <-chan PermissionResult {
	ctx = context.WithoutCancel(ctx)
	results := make(chan PermissionResult, 1)

	var once sync.Once
	c.authority.RequestAuthorization(ctx, c.opts.Authorization, func(granted bool, err error) {
		once.Do(func() {
			results <- c.completeAuthorization(ctx, granted, err)
			close(results)
		})
	})
	return results
}

func (c *Coordinator) completeAuthorization(ctx context.Context, granted bool, authErr error) PermissionResult {
	c.mu.Lock()
	c.flags.Prompted = true
	c.flags.Denied = !granted
	saveErr := c.flagStore.Save(ctx, c.flags)
	c.mu.Unlock()

	if saveErr != nil {
		c.logger.Error("Failed to persist notification flags", "err", saveErr)
	}
	c.logger.Info("Authorization completed", "granted", granted)

	if granted {
		c.authority.RegisterForRemoteNotifications(ctx)
	}

	res := PermissionResult{Granted: granted}
	if authErr != nil {
		res.Err = &AuthorizationError{Err: authErr}
		c.logger.Warn("Authorization returned an error", "err", authErr)
		c.delegate.RegistrationError(ctx, res.Err)
	}
	return res
}

// RegistrationStatus derives the registration state. An active remote
// registration wins over the persisted flags.
func (c *Coordinator) RegistrationStatus(ctx context.Context) (RegistrationState, error) {
	status, err := c.authority.CurrentAuthorizationStatus(ctx)
	if err != nil {
		return RegistrationNotDetermined, fmt.Errorf("failed to read authorization status: %w", err)
	}
	if status.RemoteRegistered {
		return RegistrationRegistered, nil
	}

	c.mu.Lock()
	prompted := c.flags.Prompted
	c.mu.Unlock()

	if prompted {
		return RegistrationDenied, nil
	}
	return RegistrationNotDetermined, nil
}

// Registered reports whether RegistrationStatus is Registered. Authority
// errors count as not registered.
func (c *Coordinator) Registered(ctx context.Context) bool {
	state, err := c.RegistrationStatus(ctx)
	return err == nil && state == RegistrationRegistered
}

// Flags returns a copy of the persisted flags.
func (c *Coordinator) Flags() Flags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

// HandleTokenReceived stores the hex form of raw as the latest token and
// reconciles it against the saved one.
func (c *Coordinator) HandleTokenReceived(ctx context.Context, raw []byte) (Outcome, error) {
	token := EncodeToken(raw)
	c.logger.Info("Device token received", "length", len(raw))

	return c.reconcile(ctx, func() (string, bool) {
		c.mu.Lock()
		c.latestToken = token
		c.hasToken = true
		c.mu.Unlock()
		return token, true
	})
}

// Resync reconciles the latest token again, e.g. after the user logs in.
// With no token received yet it reports TokenMissingForStorage.
func (c *Coordinator) Resync(ctx context.Context) (Outcome, error) {
	return c.reconcile(ctx, func() (string, bool) {
		token, _ := c.LatestToken()
		return token, false
	})
}

// reconcile decides under reconcileMu, then emits with no lock held. Emission
// starts in the order decisions were taken, so a callback may re-enter.
func (c *Coordinator) reconcile(ctx context.Context, latest func() (string, bool)) (Outcome, error) {
	c.reconcileMu.Lock()
	token, isNew := latest()

	var saved string
	var fetchErr error
	if token != "" {
		saved, fetchErr = c.backend.FetchSavedToken(ctx)
	}
	outcome := Reconcile(token, saved)
	ticket := c.tickets
	c.tickets++
	c.reconcileMu.Unlock()

	c.takeTurn(ticket)

	if isNew {
		c.delegate.NewTokenSet(ctx, token)
	}
	if fetchErr != nil {
		return Outcome{}, fmt.Errorf("failed to fetch saved token: %w", fetchErr)
	}

	c.logger.Debug("Token reconciled", "outcome", outcome.Kind.String())
	emit(ctx, c.backend, outcome)
	return outcome, nil
}

// takeTurn blocks until every earlier ticket has started emitting.
func (c *Coordinator) takeTurn(ticket uint64) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()
	for c.turn != ticket {
		c.turnCond.Wait()
	}
	c.turn++
	c.turnCond.Broadcast()
}

// LatestToken returns the token from the most recent token callback in
// this process.
func (c *Coordinator) LatestToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestToken, c.hasToken
}

// HandleRegistrationFailure surfaces a platform registration failure.
func (c *Coordinator) HandleRegistrationFailure(ctx context.Context, err error) {
	c.logger.Error("Remote notification registration failed", "err", err)
	c.delegate.RegistrationError(ctx, &RegistrationError{Err: err})
}

// HandlePushReceived applies the delivery state machine:
// Active dispatches now, Inactive defers into the pending slot, Background
// is left to out-of-band processing.
func (c *Coordinator) HandlePushReceived(ctx context.Context, payload Payload, state AppState) {
	log := c.logger.With("state", state)

	switch state {
	case AppStateActive:
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()

		log.Debug("Push received while active, dispatching")
		c.actions.Dispatch(ctx, PendingPush{Payload: payload, ReceivedState: state})
	case AppStateInactive:
		c.mu.Lock()
		c.pending = &PendingPush{Payload: payload, ReceivedState: state}
		c.mu.Unlock()

		log.Debug("Push received while inactive, deferring")
	case AppStateBackground:
		log.Debug("Push received in background, ignoring")
	default:
		log.Warn("Push received in unknown app state, ignoring")
	}
}

// HandleApplicationBecameActive releases the pending push, if any. The slot
// is cleared before dispatch so a second activation never re-dispatches.
func (c *Coordinator) HandleApplicationBecameActive(ctx context.Context) {
	c.mu.Lock()
	push := c.pending
	c.pending = nil
	c.mu.Unlock()

	if push != nil {
		c.logger.Debug("Dispatching deferred push", "received_state", push.ReceivedState)
		c.actions.Dispatch(ctx, *push)
	}
	c.delegate.ActivationHandled(ctx)
}

// Pending returns the deferred push, if any.
func (c *Coordinator) Pending() (PendingPush, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingPush{}, false
	}
	return *c.pending, true
}

// HandleForegroundNotification decides presentation for a notification
// delivered while the app runs in the foreground.
func (c *Coordinator) HandleForegroundNotification(ctx context.Context, payload Payload) Presentation {
	if c.opts.ShowSystemAlert {
		return PresentationSystem
	}
	c.HandlePushReceived(ctx, payload, AppStateActive)
	return PresentationSuppressed
}
