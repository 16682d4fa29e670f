// Package fcm normalises Firebase Cloud Messaging messages into pushclient
// payloads.
package fcm

import (
	"encoding/json"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

// Decode parses an FCM v1 message body. Data keys become top-level payload
// keys; a display notification is kept under "notification".
func Decode(body []byte) (pushclient.Payload, error) {
	var msg messaging.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode fcm message: %w", err)
	}
	return FromMessage(&msg), nil
}

// FromMessage converts an already decoded message.
func FromMessage(msg *messaging.Message) pushclient.Payload {
	p := make(pushclient.Payload, len(msg.Data)+1)
	for k, v := range msg.Data {
		p[k] = v
	}
	if n := msg.Notification; n != nil {
		notification := map[string]any{
			"title": n.Title,
			"body":  n.Body,
		}
		if n.ImageURL != "" {
			notification["image"] = n.ImageURL
		}
		p["notification"] = notification
	}
	return p
}
