package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BlobStore is a string-keyed store of opaque blobs. Get returns ErrNotFound
// for a missing key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}

// Adapter loads and saves whole sessions. There are no partial updates.
type Adapter struct {
	blobs BlobStore
	now   func() time.Time
}

func NewAdapter(blobs BlobStore) *Adapter {
	return &Adapter{blobs: blobs, now: func() time.Time { return time.Now().UTC() }}
}

// Blobs exposes the backend, e.g. for version history.
func (a *Adapter) Blobs() BlobStore {
	return a.blobs
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("session key is required")
	}
	return nil
}

func (a *Adapter) Load(ctx context.Context, key string) (Session, error) {
	if err := checkKey(key); err != nil {
		return Session{}, err
	}
	blob, err := a.blobs.Get(ctx, key)
	if err != nil {
		return Session{}, fmt.Errorf("load session %s: %w", key, err)
	}
	s, err := Decode(blob)
	if err != nil {
		return Session{}, fmt.Errorf("load session %s: %w", key, err)
	}
	return s, nil
}

// Save stamps UpdatedAt and writes the whole blob.
func (a *Adapter) Save(ctx context.Context, key string, s Session) (Session, error) {
	if err := checkKey(key); err != nil {
		return Session{}, err
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	s.UpdatedAt = a.now()
	blob, err := Encode(s)
	if err != nil {
		return Session{}, fmt.Errorf("encode session %s: %w", key, err)
	}
	if err := a.blobs.Put(ctx, key, blob); err != nil {
		return Session{}, fmt.Errorf("save session %s: %w", key, err)
	}
	return s, nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := a.blobs.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

type actorKey struct{}

// WithActor records who is saving, for backends that keep an author per write.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
