// Package keystore manages per-provider API keys: multiple stored keys,
// at most one active per provider, masked display values, and a validation
// probe before any key is accepted.
package keystore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/storage"
)

// APIKey is one stored credential. Secret never leaves the daemon; Masked is
// what lists and logs show.
type APIKey struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Masked string `json:"masked"`
}

// ProviderKeys holds one provider's keys and its active selection.
// ActiveKeyID is either empty or the id of an element of Keys.
type ProviderKeys struct {
	Keys        []APIKey `json:"keys"`
	ActiveKeyID string   `json:"activeKeyId"`
}

// Validator probes a vendor with a candidate secret. Satisfied by the
// provider adapters.
type Validator interface {
	ValidateKey(ctx context.Context, secret string) error
}

// Store is the key store. All mutations persist synchronously to the
// apiKeyStore settings key before returning.
type Store struct {
	mu         sync.Mutex
	db         *storage.Store
	keys       map[provider.Name]*ProviderKeys
	validators map[provider.Name]Validator
}

// New loads the persisted key store. An absent record starts empty.
func New(db *storage.Store) (*Store, error) {
	s := &Store{
		db:         db,
		keys:       make(map[provider.Name]*ProviderKeys),
		validators: make(map[provider.Name]Validator),
	}
	err := db.GetSetting(storage.KeyAPIKeyStore, &s.keys)
	if err != nil && err != storage.ErrNotFound {
		return nil, fmt.Errorf("loading key store: %w", err)
	}
	return s, nil
}

// RegisterValidator installs the probe used by AddKey for one provider.
func (s *Store) RegisterValidator(name provider.Name, v Validator) {
	s.validators[name] = v
}

// MaskKey renders a secret for display: first four and last four characters
// with stars between. Short secrets are fully starred.
func MaskKey(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// AddKey validates the secret against the provider and, on success, stores
// it and makes it the active key. A rejected secret is never stored.
func (s *Store) AddKey(ctx context.Context, name provider.Name, secret string) (APIKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return APIKey{}, provider.Errf(provider.KindValidation, "API key must not be empty")
	}
	v, ok := s.validators[name]
	if !ok {
		return APIKey{}, provider.Errf(provider.KindValidation, "unknown provider %q", name)
	}
	if err := v.ValidateKey(ctx, secret); err != nil {
		return APIKey{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := APIKey{
		ID:     uuid.NewString(),
		Secret: secret,
		Masked: MaskKey(secret),
	}
	pk := s.providerKeys(name)
	prevKeys, prevActive := pk.Keys, pk.ActiveKeyID
	pk.Keys = append(pk.Keys, key)
	pk.ActiveKeyID = key.ID

	// Mutations persist synchronously; a failed write must not leave the key
	// usable in memory only.
	if err := s.persist(); err != nil {
		pk.Keys = prevKeys
		pk.ActiveKeyID = prevActive
		return APIKey{}, err
	}
	return key, nil
}

// SetActive marks the given key as the provider's active key. An unknown id
// leaves the selection unchanged.
func (s *Store) SetActive(name provider.Name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := s.providerKeys(name)
	for _, k := range pk.Keys {
		if k.ID == id {
			pk.ActiveKeyID = id
			return s.persist()
		}
	}
	return nil
}

// DeleteKey removes a key. Deleting the active key reassigns the selection
// to the first remaining key, or clears it when none remain.
func (s *Store) DeleteKey(name provider.Name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := s.providerKeys(name)
	idx := -1
	for i, k := range pk.Keys {
		if k.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return storage.ErrNotFound
	}
	pk.Keys = append(pk.Keys[:idx], pk.Keys[idx+1:]...)
	if pk.ActiveKeyID == id {
		if len(pk.Keys) > 0 {
			pk.ActiveKeyID = pk.Keys[0].ID
		} else {
			pk.ActiveKeyID = ""
		}
	}
	return s.persist()
}

// ActiveSecret returns the active key's secret for the provider. The absence
// of an active key is an authentication error, raised before any network
// call is attempted.
func (s *Store) ActiveSecret(name provider.Name) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := s.providerKeys(name)
	for _, k := range pk.Keys {
		if k.ID == pk.ActiveKeyID {
			return k.Secret, nil
		}
	}
	return "", provider.Errf(provider.KindAuth, "no active API key for provider %q", name)
}

// List returns the provider's keys with secrets redacted, plus the active
// key id.
func (s *Store) List(name provider.Name) ([]APIKey, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := s.providerKeys(name)
	out := make([]APIKey, len(pk.Keys))
	for i, k := range pk.Keys {
		out[i] = APIKey{ID: k.ID, Masked: k.Masked}
	}
	return out, pk.ActiveKeyID
}

func (s *Store) providerKeys(name provider.Name) *ProviderKeys {
	pk, ok := s.keys[name]
	if !ok {
		pk = &ProviderKeys{}
		s.keys[name] = pk
	}
	return pk
}

func (s *Store) persist() error {
	if err := s.db.SetSetting(storage.KeyAPIKeyStore, s.keys); err != nil {
		return fmt.Errorf("persisting key store: %w", err)
	}
	return nil
}
