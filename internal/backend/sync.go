// Package backend persists reconciliation decisions for the application
// backend and reports coordinator events.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-push-coordinator/pkg/dispatch"
)

// Stats counts coordinator events since startup.
type Stats struct {
	Uploads            int64 `json:"uploads"`
	Updates            int64 `json:"updates"`
	Reconfirms         int64 `json:"reconfirms"`
	Missing            int64 `json:"missing"`
	StoreFailures      int64 `json:"store_failures"`
	RegistrationErrors int64 `json:"registration_errors"`
	Activations        int64 `json:"activations"`
}

// Sync implements pushclient.BackendSync and pushclient.Delegate on top of a
// dispatch.TokenStore. The store holds the token the backend was last given.
type Sync struct {
	store           dispatch.TokenStore
	installation    urn.URN
	repostSameToken bool
	logger          *slog.Logger

	uploads, updates, reconfirms, missing atomic.Int64
	storeFailures, regErrors, activations atomic.Int64
}

// NewSync binds the store to one installation. With repostSameToken an
// unchanged token is saved again, refreshing its timestamp in stores that
// keep one.
func NewSync(store dispatch.TokenStore, installation urn.URN, repostSameToken bool, logger *slog.Logger) *Sync {
	return &Sync{
		store:           store,
		installation:    installation,
		repostSameToken: repostSameToken,
		logger:          logger.With("component", "BackendSync", "installation", installation.String()),
	}
}

// --- BackendSync ---

func (s *Sync) FetchSavedToken(ctx context.Context) (string, error) {
	return s.store.Fetch(ctx, s.installation)
}

func (s *Sync) TokenShouldBeUploaded(ctx context.Context, token string) {
	s.uploads.Add(1)
	s.logger.Info("Registering new device token")
	s.save(ctx, token)
}

func (s *Sync) TokenShouldBeUpdated(ctx context.Context, oldToken, newToken string) {
	s.updates.Add(1)
	s.logger.Info("Device token rotated", "old_suffix", suffix(oldToken), "new_suffix", suffix(newToken))
	s.save(ctx, newToken)
}

func (s *Sync) SameTokenReconfirmed(ctx context.Context, token string) {
	s.reconfirms.Add(1)
	if !s.repostSameToken {
		s.logger.Debug("Device token unchanged, not re-posting")
		return
	}
	s.logger.Debug("Device token unchanged, re-posting")
	s.save(ctx, token)
}

func (s *Sync) TokenMissingForStorage(_ context.Context) {
	s.missing.Add(1)
	s.logger.Warn("No device token available for push registration; this device will not receive pushes")
}

// --- Delegate ---

func (s *Sync) NewTokenSet(_ context.Context, token string) {
	s.logger.Debug("New device token set", "suffix", suffix(token))
}

func (s *Sync) RegistrationError(_ context.Context, err error) {
	s.regErrors.Add(1)
	s.logger.Error("Push registration error", "err", err)
}

func (s *Sync) ActivationHandled(_ context.Context) {
	s.activations.Add(1)
}

// Forget clears the saved token, e.g. on logout, so the backend stops
// targeting this installation. The next reconciliation uploads afresh.
func (s *Sync) Forget(ctx context.Context) error {
	if err := s.store.Clear(ctx, s.installation); err != nil {
		s.storeFailures.Add(1)
		return fmt.Errorf("failed to clear saved token: %w", err)
	}
	s.logger.Info("Saved device token cleared")
	return nil
}

// Stats returns a snapshot of the counters.
func (s *Sync) Stats() Stats {
	return Stats{
		Uploads:            s.uploads.Load(),
		Updates:            s.updates.Load(),
		Reconfirms:         s.reconfirms.Load(),
		Missing:            s.missing.Load(),
		StoreFailures:      s.storeFailures.Load(),
		RegistrationErrors: s.regErrors.Load(),
		Activations:        s.activations.Load(),
	}
}

func (s *Sync) save(ctx context.Context, token string) {
	if err := s.store.Save(ctx, s.installation, token); err != nil {
		s.storeFailures.Add(1)
		s.logger.Error("Failed to persist device token", "err", err)
	}
}

// suffix keeps full tokens out of the logs.
func suffix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[len(token)-8:]
}
