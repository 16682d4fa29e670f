// Package pipeline contains the inbound push processing components.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/sideshow/apns2"

	"github.com/tinywideclouds/go-push-coordinator/internal/platform/apns"
	"github.com/tinywideclouds/go-push-coordinator/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

// Source names the body format an InboundPush was decoded from.
type Source string

const (
	SourceData Source = "data"
	SourceAPNs Source = "apns"
	SourceFCM  Source = "fcm"
)

// InboundPush is a push delivered over the message transport.
type InboundPush struct {
	ID      string
	Source  Source
	Payload pushclient.Payload
	// State overrides the tracked app state when set.
	State pushclient.AppState
	// Foreground marks delivery through the in-app foreground channel.
	Foreground bool
	// APNsPushType is set for APNs bodies, given or inferred.
	APNsPushType apns2.EPushType
}

// Silent reports a content-available push with nothing to present.
func (p *InboundPush) Silent() bool {
	return p.APNsPushType == apns2.PushTypeBackground
}

// envelope is the JSON wire shape. Exactly one of Data, APNs, FCM is set.
type envelope struct {
	ID           string             `json:"id"`
	State        string             `json:"state,omitempty"`
	Foreground   bool               `json:"foreground,omitempty"`
	Data         pushclient.Payload `json:"data,omitempty"`
	APNs         json.RawMessage    `json:"apns,omitempty"`
	APNsPushType string             `json:"apns_push_type,omitempty"`
	FCM          json.RawMessage    `json:"fcm,omitempty"`
}

// InboundPushTransformer is a dataflow Transformer that decodes a raw
// message into an InboundPush. Undecodable messages are skipped with an
// error so the StreamingService can Nack/DLQ them.
func InboundPushTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*InboundPush, bool, error) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal push envelope from message %s: %w", msg.ID, err)
	}

	push := &InboundPush{ID: env.ID, Foreground: env.Foreground}
	if push.ID == "" {
		push.ID = msg.ID
	}

	if env.State != "" {
		state, err := pushclient.ParseAppState(env.State)
		if err != nil {
			return nil, true, fmt.Errorf("invalid push envelope %s: %w", msg.ID, err)
		}
		push.State = state
	}

	bodies := 0
	if env.Data != nil {
		bodies++
		push.Source, push.Payload = SourceData, env.Data
	}
	if len(env.APNs) > 0 {
		bodies++
		n, err := apns.Decode(env.APNs, env.APNsPushType)
		if err != nil {
			return nil, true, fmt.Errorf("invalid push envelope %s: %w", msg.ID, err)
		}
		push.Source, push.Payload = SourceAPNs, n.Payload
		push.APNsPushType = n.PushType
	}
	if len(env.FCM) > 0 {
		bodies++
		p, err := fcm.Decode(env.FCM)
		if err != nil {
			return nil, true, fmt.Errorf("invalid push envelope %s: %w", msg.ID, err)
		}
		push.Source, push.Payload = SourceFCM, p
	}
	if bodies != 1 {
		return nil, true, fmt.Errorf("invalid push envelope %s: want exactly one of data, apns, fcm; got %d", msg.ID, bodies)
	}

	return push, false, nil
}
