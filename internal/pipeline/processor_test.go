package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-coordinator/internal/lifecycle"
	"github.com/tinywideclouds/go-push-coordinator/internal/pipeline"
	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type mockReceiver struct {
	mock.Mock
}

func (m *mockReceiver) HandlePushReceived(ctx context.Context, payload pushclient.Payload, state pushclient.AppState) {
	m.Called(ctx, payload, state)
}

func (m *mockReceiver) HandleForegroundNotification(ctx context.Context, payload pushclient.Payload) pushclient.Presentation {
	args := m.Called(ctx, payload)
	return args.Get(0).(pushclient.Presentation)
}

func TestProcessor_Routing(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	payload := pushclient.Payload{"poll_id": 1}

	t.Run("Uses Tracked State When Envelope Has None", func(t *testing.T) {
		receiver := new(mockReceiver)
		tracker := lifecycle.NewTracker(pushclient.AppStateInactive)
		receiver.On("HandlePushReceived", mock.Anything, payload, pushclient.AppStateInactive).Return().Once()

		processor := pipeline.NewProcessor(receiver, tracker, logger)
		err := processor(ctx, messagepipeline.Message{}, &pipeline.InboundPush{ID: "p-1", Payload: payload})

		require.NoError(t, err)
		receiver.AssertExpectations(t)
	})

	t.Run("Envelope State Overrides Tracker", func(t *testing.T) {
		receiver := new(mockReceiver)
		tracker := lifecycle.NewTracker(pushclient.AppStateInactive)
		receiver.On("HandlePushReceived", mock.Anything, payload, pushclient.AppStateBackground).Return().Once()

		processor := pipeline.NewProcessor(receiver, tracker, logger)
		err := processor(ctx, messagepipeline.Message{}, &pipeline.InboundPush{
			ID: "p-2", Payload: payload, State: pushclient.AppStateBackground,
		})

		require.NoError(t, err)
		receiver.AssertExpectations(t)
	})

	t.Run("Foreground Takes Presentation Path", func(t *testing.T) {
		receiver := new(mockReceiver)
		tracker := lifecycle.NewTracker(pushclient.AppStateActive)
		receiver.On("HandleForegroundNotification", mock.Anything, payload).Return(pushclient.PresentationSuppressed).Once()

		processor := pipeline.NewProcessor(receiver, tracker, logger)
		err := processor(ctx, messagepipeline.Message{}, &pipeline.InboundPush{ID: "p-3", Payload: payload, Foreground: true})

		require.NoError(t, err)
		receiver.AssertExpectations(t)
		receiver.AssertNotCalled(t, "HandlePushReceived", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Silent APNs Push Counts As Background", func(t *testing.T) {
		receiver := new(mockReceiver)
		tracker := lifecycle.NewTracker(pushclient.AppStateActive)
		receiver.On("HandlePushReceived", mock.Anything, payload, pushclient.AppStateBackground).Return().Once()

		processor := pipeline.NewProcessor(receiver, tracker, logger)
		err := processor(ctx, messagepipeline.Message{}, &pipeline.InboundPush{
			ID: "p-4", Source: pipeline.SourceAPNs, Payload: payload, APNsPushType: apns2.PushTypeBackground,
		})

		require.NoError(t, err)
		receiver.AssertExpectations(t)
	})

	t.Run("Alert APNs Push Uses Tracked State", func(t *testing.T) {
		receiver := new(mockReceiver)
		tracker := lifecycle.NewTracker(pushclient.AppStateActive)
		receiver.On("HandlePushReceived", mock.Anything, payload, pushclient.AppStateActive).Return().Once()

		processor := pipeline.NewProcessor(receiver, tracker, logger)
		err := processor(ctx, messagepipeline.Message{}, &pipeline.InboundPush{
			ID: "p-5", Source: pipeline.SourceAPNs, Payload: payload, APNsPushType: apns2.PushTypeAlert,
		})

		require.NoError(t, err)
		receiver.AssertExpectations(t)
	})
}
