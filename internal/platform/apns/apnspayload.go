// Package apns normalises Apple Push Notification service bodies into
// pushclient payloads.
package apns

import (
	"encoding/json"
	"fmt"

	"github.com/sideshow/apns2"

	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

// Notification is a decoded APNs body.
type Notification struct {
	Payload          pushclient.Payload
	PushType         apns2.EPushType
	ContentAvailable bool
}

var knownPushTypes = map[apns2.EPushType]bool{
	apns2.PushTypeAlert:        true,
	apns2.PushTypeBackground:   true,
	apns2.PushTypeVOIP:         true,
	apns2.PushTypeComplication: true,
	apns2.PushTypeFileProvider: true,
	apns2.PushTypeMDM:          true,
}

// Decode parses an APNs JSON body. The "aps" dictionary stays nested in the
// payload next to the custom keys. An empty pushType is inferred: a body
// with content-available and no alert is a background push.
func Decode(body []byte, pushType string) (Notification, error) {
	var p pushclient.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Notification{}, fmt.Errorf("failed to decode apns body: %w", err)
	}

	aps, _ := p["aps"].(map[string]any)
	n := Notification{
		Payload:          p,
		ContentAvailable: number(aps["content-available"]) == 1,
	}

	switch {
	case pushType != "":
		pt := apns2.EPushType(pushType)
		if !knownPushTypes[pt] {
			return Notification{}, fmt.Errorf("unknown apns push type %q", pushType)
		}
		n.PushType = pt
	case n.ContentAvailable && aps["alert"] == nil:
		n.PushType = apns2.PushTypeBackground
	default:
		n.PushType = apns2.PushTypeAlert
	}
	return n, nil
}

func number(v any) float64 {
	f, _ := v.(float64)
	return f
}
