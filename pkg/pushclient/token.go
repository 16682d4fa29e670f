package pushclient

import (
	"context"
	"encoding/hex"
	"fmt"
)

// EncodeToken renders raw device-token bytes as lowercase hex, two
// characters per byte. An empty input yields "", which reconciles as a
// missing token.
func EncodeToken(raw []byte) string {
	return hex.EncodeToString(raw)
}

// DecodeToken is the inverse of EncodeToken.
func DecodeToken(token string) ([]byte, error) {
	raw, err := hex.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid device token %q: %w", token, err)
	}
	return raw, nil
}

// OutcomeKind names the four reconciliation branches.
type OutcomeKind int

const (
	OutcomeMissing OutcomeKind = iota
	OutcomeUpload
	OutcomeUpdate
	OutcomeReconfirm
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUpload:
		return "upload"
	case OutcomeUpdate:
		return "update"
	case OutcomeReconfirm:
		return "reconfirm"
	default:
		return "missing"
	}
}

// Outcome is the result of comparing the latest token with the saved one.
type Outcome struct {
	Kind OutcomeKind
	// Token is the latest token; empty for OutcomeMissing.
	Token string
	// OldToken is the saved token being replaced; set for OutcomeUpdate only.
	OldToken string
}

// Reconcile decides what the backend must do with latest given saved.
// Every input pair maps to exactly one outcome.
func Reconcile(latest, saved string) Outcome {
	switch {
	case latest == "":
		return Outcome{Kind: OutcomeMissing}
	case saved == "":
		return Outcome{Kind: OutcomeUpload, Token: latest}
	case saved != latest:
		return Outcome{Kind: OutcomeUpdate, Token: latest, OldToken: saved}
	default:
		return Outcome{Kind: OutcomeReconfirm, Token: latest}
	}
}

// emit delivers o to the matching BackendSync callback.
func emit(ctx context.Context, sync BackendSync, o Outcome) {
	switch o.Kind {
	case OutcomeMissing:
		sync.TokenMissingForStorage(ctx)
	case OutcomeUpload:
		sync.TokenShouldBeUploaded(ctx, o.Token)
	case OutcomeUpdate:
		sync.TokenShouldBeUpdated(ctx, o.OldToken, o.Token)
	case OutcomeReconfirm:
		sync.SameTokenReconfirmed(ctx, o.Token)
	}
}
