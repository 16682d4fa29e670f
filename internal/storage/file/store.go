// Package file keeps installation state in a single YAML document on local
// disk, for hosts that run without cloud storage.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

type installationState struct {
	Token string           `yaml:"token,omitempty"`
	Flags pushclient.Flags `yaml:"flags"`
}

type document struct {
	Installations map[string]installationState `yaml:"installations"`
}

// Store implements dispatch.TokenStore on a YAML file.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Fetch(_ context.Context, installation urn.URN) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", err
	}
	return doc.Installations[installation.String()].Token, nil
}

func (s *Store) Save(_ context.Context, installation urn.URN, token string) error {
	return s.update(installation, func(st *installationState) { st.Token = token })
}

func (s *Store) Clear(_ context.Context, installation urn.URN) error {
	return s.update(installation, func(st *installationState) { st.Token = "" })
}

// Flags returns a pushclient.FlagStore for one installation backed by s.
func (s *Store) Flags(installation urn.URN) *FlagStore {
	return &FlagStore{store: s, installation: installation}
}

func (s *Store) update(installation urn.URN, mutate func(*installationState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	key := installation.String()
	st := doc.Installations[key]
	mutate(&st)
	doc.Installations[key] = st
	return s.write(doc)
}

// read treats a missing file as an empty document.
func (s *Store) read() (*document, error) {
	doc := &document{}
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	default:
		if err := yaml.Unmarshal(raw, doc); err != nil {
			return nil, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
		}
	}
	if doc.Installations == nil {
		doc.Installations = make(map[string]installationState)
	}
	return doc, nil
}

// write replaces the file atomically.
func (s *Store) write(doc *document) error {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode state file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".pushstate-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// FlagStore is the per-installation flag view of a Store.
type FlagStore struct {
	store        *Store
	installation urn.URN
}

func (f *FlagStore) Load(_ context.Context) (pushclient.Flags, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	doc, err := f.store.read()
	if err != nil {
		return pushclient.Flags{}, err
	}
	return doc.Installations[f.installation.String()].Flags, nil
}

func (f *FlagStore) Save(_ context.Context, flags pushclient.Flags) error {
	return f.store.update(f.installation, func(st *installationState) { st.Flags = flags })
}
