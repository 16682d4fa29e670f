package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// FirestoreStore implements dispatch.TokenStore using Google Cloud Firestore.
// Each installation owns one document holding its saved token and flags.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// installationRecord is the internal DB representation.
type installationRecord struct {
	Token          string    `firestore:"token,omitempty"`
	TokenUpdatedAt time.Time `firestore:"token_updated_at,omitempty"`
	Flags          flagsDoc  `firestore:"flags"`
}

func (s *FirestoreStore) Fetch(ctx context.Context, installation urn.URN) (string, error) {
	record, err := s.load(ctx, installation)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}
	return record.Token, nil
}

func (s *FirestoreStore) Save(ctx context.Context, installation urn.URN, token string) error {
	_, err := s.installationRef(installation).Set(ctx, map[string]interface{}{
		"token":            token,
		"token_updated_at": time.Now(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore token save failed: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Clear(ctx context.Context, installation urn.URN) error {
	_, err := s.installationRef(installation).Update(ctx, []firestore.Update{
		{Path: "token", Value: firestore.Delete},
		{Path: "token_updated_at", Value: firestore.Delete},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("firestore token clear failed: %w", err)
	}
	return nil
}

// --- Helpers ---

// load returns nil when the installation has no document yet.
func (s *FirestoreStore) load(ctx context.Context, installation urn.URN) (*installationRecord, error) {
	doc, err := s.installationRef(installation).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("firestore read failed: %w", err)
	}

	var record installationRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("corrupt installation record %s: %w", doc.Ref.ID, err)
	}
	return &record, nil
}

// installationRef: installations/{installationURN}
func (s *FirestoreStore) installationRef(installation urn.URN) *firestore.DocumentRef {
	return s.client.Collection("installations").Doc(installation.String())
}
