package pushclient_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type mockAuthority struct {
	mock.Mock
}

func (m *mockAuthority) RequestAuthorization(ctx context.Context, opts pushclient.AuthorizationOptions, done func(bool, error)) {
	m.Called(ctx, opts, done)
}

func (m *mockAuthority) RegisterForRemoteNotifications(ctx context.Context) {
	m.Called(ctx)
}

func (m *mockAuthority) CurrentAuthorizationStatus(ctx context.Context) (pushclient.AuthStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(pushclient.AuthStatus), args.Error(1)
}

// answer makes the mock complete RequestAuthorization synchronously.
func (m *mockAuthority) answer(granted bool, err error) *mock.Call {
	return m.On("RequestAuthorization", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).(func(bool, error))(granted, err)
		})
}

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) FetchSavedToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *mockBackend) TokenShouldBeUploaded(ctx context.Context, token string) {
	m.Called(ctx, token)
}
func (m *mockBackend) TokenShouldBeUpdated(ctx context.Context, oldToken, newToken string) {
	m.Called(ctx, oldToken, newToken)
}
func (m *mockBackend) SameTokenReconfirmed(ctx context.Context, token string) {
	m.Called(ctx, token)
}
func (m *mockBackend) TokenMissingForStorage(ctx context.Context) {
	m.Called(ctx)
}

type mockDelegate struct {
	mock.Mock
}

func (m *mockDelegate) NewTokenSet(ctx context.Context, token string) {
	m.Called(ctx, token)
}
func (m *mockDelegate) RegistrationError(ctx context.Context, err error) {
	m.Called(ctx, err)
}
func (m *mockDelegate) ActivationHandled(ctx context.Context) {
	m.Called(ctx)
}

// recordingDispatcher captures dispatched pushes in order.
type recordingDispatcher struct {
	mu     sync.Mutex
	pushes []pushclient.PendingPush
}

func (r *recordingDispatcher) Dispatch(_ context.Context, push pushclient.PendingPush) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, push)
}

func (r *recordingDispatcher) Dispatched() []pushclient.PendingPush {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pushclient.PendingPush(nil), r.pushes...)
}

// memoryFlags is an in-memory FlagStore.
type memoryFlags struct {
	mu      sync.Mutex
	flags   pushclient.Flags
	saves   int
	loadErr error
	saveErr error
}

func (s *memoryFlags) Load(context.Context) (pushclient.Flags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags, s.loadErr
}

func (s *memoryFlags) Save(_ context.Context, flags pushclient.Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.flags = flags
	s.saves++
	return nil
}

// storingBackend is a BackendSync that saves what it is told, like a real
// backend would, and records every emission in order.
type storingBackend struct {
	mu       sync.Mutex
	saved    string
	events   []string
	onUpload func(ctx context.Context)
}

func (b *storingBackend) FetchSavedToken(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saved, nil
}

func (b *storingBackend) record(event, saved string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if saved != "" {
		b.saved = saved
	}
}

func (b *storingBackend) TokenShouldBeUploaded(ctx context.Context, token string) {
	b.record("upload:"+token, token)
	if b.onUpload != nil {
		b.onUpload(ctx)
	}
}
func (b *storingBackend) TokenShouldBeUpdated(_ context.Context, oldToken, newToken string) {
	b.record("update:"+oldToken+">"+newToken, newToken)
}
func (b *storingBackend) SameTokenReconfirmed(_ context.Context, token string) {
	b.record("reconfirm:"+token, "")
}
func (b *storingBackend) TokenMissingForStorage(context.Context) {
	b.record("missing", "")
}

func (b *storingBackend) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

// quietDelegate accepts every Delegate callback.
type quietDelegate struct{}

func (quietDelegate) NewTokenSet(context.Context, string)      {}
func (quietDelegate) RegistrationError(context.Context, error) {}
func (quietDelegate) ActivationHandled(context.Context)        {}
