package coordination

import (
	"errors"
	"fmt"

	"flowsync/internal/domain"
	"flowsync/internal/store"

	"github.com/google/uuid"
)

const (
	metaClientID = "clientId"
	metaMode     = "mode"
)

// Identity ties a stable client id to a per-process session id. The client id
// survives restarts in the store's meta bucket; the session id never does.
type Identity struct {
	ClientID  string
	SessionID string
}

func LoadIdentity(st *store.Store) (Identity, error) {
	clientID, err := st.GetMeta(metaClientID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Identity{}, fmt.Errorf("failed to load client identity: %w", err)
	}

	// GetMeta reports an absent key as an empty value.
	if clientID == "" {
		clientID = fmt.Sprintf("client_%s", uuid.New().String())
		if err := st.PutMeta(metaClientID, clientID); err != nil {
			return Identity{}, fmt.Errorf("failed to persist client identity: %w", err)
		}
	}

	return Identity{
		ClientID:  clientID,
		SessionID: uuid.New().String(),
	}, nil
}

// LoadMode returns the mode persisted by the previous run, falling back to
// the given default.
func LoadMode(st *store.Store, fallback domain.Mode) domain.Mode {
	value, err := st.GetMeta(metaMode)
	if err != nil {
		return fallback
	}
	mode := domain.Mode(value)
	if !mode.Valid() {
		return fallback
	}
	return mode
}

func persistMode(st *store.Store, mode domain.Mode) error {
	return st.PutMeta(metaMode, string(mode))
}
