// Package dispatch defines the persistence contracts shared by the agent's
// storage backends.
package dispatch

import (
	"context"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// TokenStore remembers the device token the application backend was last
// told about, per installation.
type TokenStore interface {
	// Fetch returns the saved token, or "" if none was saved.
	Fetch(ctx context.Context, installation urn.URN) (string, error)

	// Save records token as the one the backend knows about.
	Save(ctx context.Context, installation urn.URN, token string) error

	// Clear forgets the saved token. Clearing an absent token is not an error.
	Clear(ctx context.Context, installation urn.URN) error
}
