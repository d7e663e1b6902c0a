// Package store keeps small JSON-like documents addressed by collection and
// id. Every backend offers an atomic read-modify-write so that bus
// callbacks and HTTP handlers can patch the same document without losing
// updates.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("document not found")

// Document is a decoded JSON object. Numbers are float64, nested objects
// are map[string]any and arrays are []any, whatever the backend.
type Document map[string]any

type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string { return r.Collection + "/" + r.ID }

// UpdateFunc receives the current document (nil when it does not exist)
// and returns the document to store. Returning an error aborts the update.
type UpdateFunc func(doc Document, exists bool) (Document, error)

type Store interface {
	Get(ctx context.Context, ref Ref) (Document, error)
	Set(ctx context.Context, ref Ref, doc Document) error
	Update(ctx context.Context, ref Ref, fn UpdateFunc) error
	Close() error
}

const (
	BackendFirestore = "firestore"
	BackendBolt      = "bolt"
	BackendMemory    = "memory"
)

type Config struct {
	Backend             string
	FirestoreProjectID  string
	FirebaseCredentials string
	BoltPath            string
}

func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFirestore, "":
		return NewFirestore(ctx, cfg.FirestoreProjectID, cfg.FirebaseCredentials)
	case BackendBolt:
		return NewBolt(cfg.BoltPath)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Normalize converts v into a Document through a JSON round trip.
func Normalize(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// Decode fills dst from doc using the JSON field tags of dst.
func Decode(doc Document, dst any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func encode(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	return json.Marshal(doc)
}

func decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
