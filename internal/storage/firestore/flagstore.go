package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

type flagsDoc struct {
	Prompted bool `firestore:"prompted"`
	Denied   bool `firestore:"denied"`
}

// FlagStore persists one installation's pushclient.Flags next to its token.
type FlagStore struct {
	store        *FirestoreStore
	installation urn.URN
}

func NewFlagStore(store *FirestoreStore, installation urn.URN) *FlagStore {
	return &FlagStore{store: store, installation: installation}
}

func (f *FlagStore) Load(ctx context.Context) (pushclient.Flags, error) {
	record, err := f.store.load(ctx, f.installation)
	if err != nil {
		return pushclient.Flags{}, err
	}
	if record == nil {
		return pushclient.Flags{}, nil
	}
	return pushclient.Flags{Prompted: record.Flags.Prompted, Denied: record.Flags.Denied}, nil
}

func (f *FlagStore) Save(ctx context.Context, flags pushclient.Flags) error {
	_, err := f.store.installationRef(f.installation).Set(ctx, map[string]interface{}{
		"flags": flagsDoc{Prompted: flags.Prompted, Denied: flags.Denied},
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore flags save failed: %w", err)
	}
	return nil
}
