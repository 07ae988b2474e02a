package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SessionRecord is one saved pipeline snapshot. State is kept verbatim as
// JSON so exports round-trip exactly. Position preserves the user-facing
// ordering: new saves are prepended to the list.
type SessionRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"createdAt"`
	State     json.RawMessage `json:"state"`
}

// Settings keys. Consumers must tolerate absent keys and fall back to their
// documented defaults; there is no schema versioning.
const (
	KeyAIConfig    = "aiConfig"
	KeyAPIKeyStore = "apiKeyStore"
	KeyLibrary     = "customAnalyzedItems"
	KeyTheme       = "appTheme"
)
