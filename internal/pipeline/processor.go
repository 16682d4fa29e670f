package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

// PushReceiver is the part of the coordinator the pipeline drives.
type PushReceiver interface {
	HandlePushReceived(ctx context.Context, payload pushclient.Payload, state pushclient.AppState)
	HandleForegroundNotification(ctx context.Context, payload pushclient.Payload) pushclient.Presentation
}

// StateSource reports the host's current app state.
type StateSource interface {
	State() pushclient.AppState
}

// NewProcessor routes each decoded push into the coordinator. Foreground
// deliveries take the presentation path. Everything else goes through the
// delivery state machine with the envelope state; without one, silent pushes
// count as background deliveries and the rest use the tracked state.
func NewProcessor(
	receiver PushReceiver,
	states StateSource,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[InboundPush] {

	return func(ctx context.Context, original messagepipeline.Message, push *InboundPush) error {
		procLogger := logger.With(
			"push_id", push.ID,
			"source", push.Source,
			"pubsub_msg_id", original.ID,
		)

		if push.Foreground {
			presentation := receiver.HandleForegroundNotification(ctx, push.Payload)
			procLogger.Info("Foreground push handled", "presentation", presentation.String())
			return nil
		}

		state := push.State
		switch {
		case state != "":
		case push.Silent():
			state = pushclient.AppStateBackground
		default:
			state = states.State()
		}
		receiver.HandlePushReceived(ctx, push.Payload, state)
		procLogger.Info("Push routed", "state", state)
		return nil
	}
}
