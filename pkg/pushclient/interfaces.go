// Package pushclient coordinates device push registration: permission
// requests, device-token reconciliation and deferral of pushes that arrive
// before the host application is fully active.
package pushclient

import "context"

// NotificationAuthority is the platform notification subsystem.
type NotificationAuthority interface {
	// RequestAuthorization prompts the user. done is invoked exactly once,
	// possibly from another goroutine.
	RequestAuthorization(ctx context.Context, opts AuthorizationOptions, done func(granted bool, err error))
	// RegisterForRemoteNotifications asks the platform for a device token.
	// The token arrives later through Coordinator.HandleTokenReceived.
	RegisterForRemoteNotifications(ctx context.Context)
	// CurrentAuthorizationStatus reports the current authorization and
	// remote registration.
	CurrentAuthorizationStatus(ctx context.Context) (AuthStatus, error)
}

// BackendSync owns the token the backend already knows about and is told
// what to do with a newly received one.
type BackendSync interface {
	// FetchSavedToken returns the previously persisted token, or "" if none.
	FetchSavedToken(ctx context.Context) (string, error)
	// TokenShouldBeUploaded is a first-time registration.
	TokenShouldBeUploaded(ctx context.Context, token string)
	// TokenShouldBeUpdated is a rotated token.
	TokenShouldBeUpdated(ctx context.Context, oldToken, newToken string)
	// SameTokenReconfirmed means the saved token is unchanged. Whether to
	// re-post it is the implementation's policy.
	SameTokenReconfirmed(ctx context.Context, token string)
	// TokenMissingForStorage means there is no usable token to persist.
	TokenMissingForStorage(ctx context.Context)
}

// ActionDispatcher performs whatever in-app behaviour a push implies.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, push PendingPush)
}

// Delegate receives informational events.
type Delegate interface {
	NewTokenSet(ctx context.Context, token string)
	// RegistrationError receives *AuthorizationError or *RegistrationError.
	RegistrationError(ctx context.Context, err error)
	ActivationHandled(ctx context.Context)
}

// FlagStore persists Flags across process restarts.
type FlagStore interface {
	Load(ctx context.Context) (Flags, error)
	Save(ctx context.Context, flags Flags) error
}
