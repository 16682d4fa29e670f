package pushclient

import (
	"errors"
	"fmt"
	"strings"
)

// Payload is the opaque key-value body of a remote notification. Its schema
// belongs to whichever server sent the push.
type Payload map[string]any

// AppState mirrors the host application's foreground state at the moment a
// push arrives.
type AppState string

const (
	AppStateActive     AppState = "active"
	AppStateInactive   AppState = "inactive"
	AppStateBackground AppState = "background"
)

// ParseAppState accepts the lowercase names used on the wire.
func ParseAppState(s string) (AppState, error) {
	switch st := AppState(strings.ToLower(strings.TrimSpace(s))); st {
	case AppStateActive, AppStateInactive, AppStateBackground:
		return st, nil
	default:
		return "", fmt.Errorf("unknown app state %q", s)
	}
}

// PendingPush is a push whose in-app action is deferred until the host is
// fully active. The coordinator holds at most one.
type PendingPush struct {
	Payload       Payload
	ReceivedState AppState
}

// RegistrationState is derived from the authority and the persisted flags,
// never stored directly.
type RegistrationState int

const (
	RegistrationNotDetermined RegistrationState = iota
	RegistrationRegistered
	RegistrationDenied
)

func (s RegistrationState) String() string {
	switch s {
	case RegistrationRegistered:
		return "registered"
	case RegistrationDenied:
		return "denied"
	default:
		return "not_determined"
	}
}

// Flags are the two booleans that survive process restarts.
type Flags struct {
	// Prompted records that permission was requested at least once.
	Prompted bool `json:"prompted" yaml:"prompted" firestore:"prompted"`
	// Denied records that the last request completed without a grant.
	Denied bool `json:"denied" yaml:"denied" firestore:"denied"`
}

// AuthorizationOptions selects the capabilities requested from the user.
type AuthorizationOptions struct {
	Alert bool
	Badge bool
	Sound bool
}

// DefaultAuthorizationOptions requests alert, badge and sound.
func DefaultAuthorizationOptions() AuthorizationOptions {
	return AuthorizationOptions{Alert: true, Badge: true, Sound: true}
}

// Authorization is the user's answer as last reported by the authority.
type Authorization int

const (
	AuthorizationNotDetermined Authorization = iota
	AuthorizationDenied
	AuthorizationGranted
)

// AuthStatus is a snapshot from NotificationAuthority.CurrentAuthorizationStatus.
type AuthStatus struct {
	Authorization Authorization
	// RemoteRegistered is true while the device holds an active remote
	// notification registration.
	RemoteRegistered bool
}

// PermissionResult is delivered exactly once per RequestPermission call.
type PermissionResult struct {
	Granted bool
	Err     error
}

// Launch describes how the host process was started.
type Launch struct {
	// State is the app state captured at launch, usually Inactive or Background.
	State AppState
	// RemoteNotification is set when the launch was caused by a push.
	RemoteNotification Payload
}

// Presentation tells the host who presents a notification delivered while
// the app is in the foreground.
type Presentation int

const (
	// PresentationSystem lets the OS show its banner and sound.
	PresentationSystem Presentation = iota
	// PresentationSuppressed means the app owns presentation.
	PresentationSuppressed
)

func (p Presentation) String() string {
	if p == PresentationSystem {
		return "system"
	}
	return "suppressed"
}

// ErrNilCollaborator is returned by New when a required collaborator is missing.
var ErrNilCollaborator = errors.New("pushclient: nil collaborator")

// AuthorizationError reports that the authority denied or failed to present
// the permission prompt.
type AuthorizationError struct {
	Err error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("notification authorization failed: %v", e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// RegistrationError reports that remote registration failed after
// authorization was granted.
type RegistrationError struct {
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("remote notification registration failed: %v", e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
