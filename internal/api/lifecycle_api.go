package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-push-coordinator/internal/backend"
	"github.com/tinywideclouds/go-push-coordinator/internal/lifecycle"
	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

// Coordinator is the surface of pushclient.Coordinator the API drives.
type Coordinator interface {
	RequestPermission(ctx context.Context) <-chan pushclient.PermissionResult
	RegistrationStatus(ctx context.Context) (pushclient.RegistrationState, error)
	Flags() pushclient.Flags
	LatestToken() (string, bool)
	Pending() (pushclient.PendingPush, bool)
	HandleTokenReceived(ctx context.Context, raw []byte) (pushclient.Outcome, error)
	HandleRegistrationFailure(ctx context.Context, err error)
	HandlePushReceived(ctx context.Context, payload pushclient.Payload, state pushclient.AppState)
	HandleForegroundNotification(ctx context.Context, payload pushclient.Payload) pushclient.Presentation
	HandleApplicationBecameActive(ctx context.Context)
	Resync(ctx context.Context) (pushclient.Outcome, error)
}

// Backend is the surface of backend.Sync the API drives.
type Backend interface {
	Stats() backend.Stats
	Forget(ctx context.Context) error
}

// LifecycleAPI lets a host process forward its platform callbacks.
type LifecycleAPI struct {
	Coordinator Coordinator
	Tracker     *lifecycle.Tracker
	Backend     Backend
	Logger      *slog.Logger
}

func NewLifecycleAPI(coordinator Coordinator, tracker *lifecycle.Tracker, backend Backend, logger *slog.Logger) *LifecycleAPI {
	return &LifecycleAPI{
		Coordinator: coordinator,
		Tracker:     tracker,
		Backend:     backend,
		Logger:      logger,
	}
}

// --- Permission & Status ---

type PermissionResponse struct {
	Granted bool   `json:"granted"`
	Pending bool   `json:"pending,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RequestPermission waits for the answer while the request lives. If the
// client goes away first the request still completes in the background.
func (api *LifecycleAPI) RequestPermission(w http.ResponseWriter, r *http.Request) {
	results := api.Coordinator.RequestPermission(r.Context())

	select {
	case res := <-results:
		resp := PermissionResponse{Granted: res.Granted}
		if res.Err != nil {
			resp.Error = res.Err.Error()
		}
		response.WriteJSON(w, http.StatusOK, resp)
	case <-r.Context().Done():
		response.WriteJSON(w, http.StatusAccepted, PermissionResponse{Pending: true})
	}
}

type StatusResponse struct {
	Registration string         `json:"registration"`
	Prompted     bool           `json:"prompted"`
	Denied       bool           `json:"denied"`
	AppState     string         `json:"app_state"`
	LatestToken  string         `json:"latest_token,omitempty"`
	HasPending   bool           `json:"has_pending"`
	PendingState string         `json:"pending_state,omitempty"`
	Stats        *backend.Stats `json:"stats,omitempty"`
}

func (api *LifecycleAPI) Status(w http.ResponseWriter, r *http.Request) {
	state, err := api.Coordinator.RegistrationStatus(r.Context())
	if err != nil {
		api.Logger.Error("Status: authority unavailable", "err", err)
		response.WriteJSONError(w, http.StatusServiceUnavailable, "authorization status unavailable")
		return
	}

	flags := api.Coordinator.Flags()
	resp := StatusResponse{
		Registration: state.String(),
		Prompted:     flags.Prompted,
		Denied:       flags.Denied,
		AppState:     string(api.Tracker.State()),
	}
	if token, ok := api.Coordinator.LatestToken(); ok {
		resp.LatestToken = token
	}
	if push, ok := api.Coordinator.Pending(); ok {
		resp.HasPending = true
		resp.PendingState = string(push.ReceivedState)
	}
	if api.Backend != nil {
		stats := api.Backend.Stats()
		resp.Stats = &stats
	}
	response.WriteJSON(w, http.StatusOK, resp)
}

// --- Token ---

type TokenRequest struct {
	TokenHex string `json:"token_hex"`
}

type OutcomeResponse struct {
	Outcome  string `json:"outcome"`
	Token    string `json:"token,omitempty"`
	OldToken string `json:"old_token,omitempty"`
}

func (api *LifecycleAPI) TokenReceived(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	// An empty token is accepted and reconciles as missing.
	raw, err := pushclient.DecodeToken(req.TokenHex)
	if err != nil {
		api.Logger.Warn("TokenReceived: Validation failed", "reason", "not hex")
		response.WriteJSONError(w, http.StatusBadRequest, "token_hex must be hex encoded")
		return
	}

	outcome, err := api.Coordinator.HandleTokenReceived(r.Context(), raw)
	if err != nil {
		api.Logger.Error("TokenReceived: reconciliation failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	response.WriteJSON(w, http.StatusOK, outcomeResponse(outcome))
}

type RegistrationErrorRequest struct {
	Error string `json:"error"`
}

func (api *LifecycleAPI) RegistrationFailed(w http.ResponseWriter, r *http.Request) {
	var req RegistrationErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Error == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing error")
		return
	}

	api.Coordinator.HandleRegistrationFailure(r.Context(), errors.New(req.Error))
	w.WriteHeader(http.StatusNoContent)
}

func (api *LifecycleAPI) Resync(w http.ResponseWriter, r *http.Request) {
	outcome, err := api.Coordinator.Resync(r.Context())
	if err != nil {
		api.Logger.Error("Resync: reconciliation failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	response.WriteJSON(w, http.StatusOK, outcomeResponse(outcome))
}

// ForgetToken clears the saved token (logout). A later token callback or
// resync registers the device again.
func (api *LifecycleAPI) ForgetToken(w http.ResponseWriter, r *http.Request) {
	if err := api.Backend.Forget(r.Context()); err != nil {
		api.Logger.Error("ForgetToken: clear failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to clear token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Pushes ---

type PushRequest struct {
	Payload pushclient.Payload `json:"payload"`
	State   string             `json:"state,omitempty"`
}

// PushReceived uses the request state, or the tracked state when omitted.
func (api *LifecycleAPI) PushReceived(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Payload == nil {
		response.WriteJSONError(w, http.StatusBadRequest, "missing payload")
		return
	}

	state := api.Tracker.State()
	if req.State != "" {
		parsed, err := pushclient.ParseAppState(req.State)
		if err != nil {
			response.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		state = parsed
	}

	api.Coordinator.HandlePushReceived(r.Context(), req.Payload, state)
	w.WriteHeader(http.StatusNoContent)
}

type PresentationResponse struct {
	Presentation string `json:"presentation"`
}

func (api *LifecycleAPI) ForegroundPush(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Payload == nil {
		response.WriteJSONError(w, http.StatusBadRequest, "missing payload")
		return
	}

	presentation := api.Coordinator.HandleForegroundNotification(r.Context(), req.Payload)
	response.WriteJSON(w, http.StatusOK, PresentationResponse{Presentation: presentation.String()})
}

// --- Lifecycle ---

func (api *LifecycleAPI) BecameActive(w http.ResponseWriter, r *http.Request) {
	api.Tracker.Set(pushclient.AppStateActive)
	api.Coordinator.HandleApplicationBecameActive(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type StateRequest struct {
	State string `json:"state"`
}

// StateChanged records a transition. Moving to active runs the activation
// hook, the same as BecameActive.
func (api *LifecycleAPI) StateChanged(w http.ResponseWriter, r *http.Request) {
	var req StateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	state, err := pushclient.ParseAppState(req.State)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if state == pushclient.AppStateActive {
		api.BecameActive(w, r)
		return
	}
	api.Tracker.Set(state)
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func outcomeResponse(o pushclient.Outcome) OutcomeResponse {
	return OutcomeResponse{Outcome: o.Kind.String(), Token: o.Token, OldToken: o.OldToken}
}
