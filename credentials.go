package authengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/authengine/store"
)

// credentials is the typed view of the credential store: one JSON-encoded
// UserRecord per username.
type credentials struct {
	store store.Store
}

// load returns the record for username. A missing account is reported as
// ok == false, never as an error.
func (c credentials) load(ctx context.Context, username string) (*UserRecord, bool, error) {
	raw, err := c.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var rec UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode record %q: %w", username, err)
	}
	return &rec, true, nil
}

func (c credentials) save(ctx context.Context, username string, rec *UserRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, username, raw)
}

func (c credentials) remove(ctx context.Context, username string) error {
	return c.store.Delete(ctx, username)
}
