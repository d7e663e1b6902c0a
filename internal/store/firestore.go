package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type firestoreStore struct {
	client *firestore.Client
}

// NewFirestore connects to Cloud Firestore. An empty projectID is detected
// from the credentials; an empty credentialsFile falls back to application
// default credentials (or the emulator when FIRESTORE_EMULATOR_HOST is set).
func NewFirestore(ctx context.Context, projectID, credentialsFile string) (Store, error) {
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &firestoreStore{client: client}, nil
}

func (s *firestoreStore) doc(ref Ref) *firestore.DocumentRef {
	return s.client.Collection(ref.Collection).Doc(ref.ID)
}

func (s *firestoreStore) Get(ctx context.Context, ref Ref) (Document, error) {
	snap, err := s.doc(ref).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return normalizeSnapshot(snap)
}

func (s *firestoreStore) Set(ctx context.Context, ref Ref, doc Document) error {
	if _, err := s.doc(ref).Set(ctx, toFirestore(doc)); err != nil {
		return fmt.Errorf("set %s: %w", ref, err)
	}
	return nil
}

// Update runs fn inside a Firestore transaction; Firestore retries the
// whole function when a concurrent writer touched the document.
func (s *firestoreStore) Update(ctx context.Context, ref Ref, fn UpdateFunc) error {
	dr := s.doc(ref)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var cur Document
		exists := true
		snap, err := tx.Get(dr)
		switch {
		case status.Code(err) == codes.NotFound:
			exists = false
		case err != nil:
			return err
		default:
			if cur, err = normalizeSnapshot(snap); err != nil {
				return err
			}
		}
		next, err := fn(cur, exists)
		if err != nil {
			return err
		}
		return tx.Set(dr, toFirestore(next))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	return err
}

func (s *firestoreStore) Close() error { return s.client.Close() }

// normalizeSnapshot maps Firestore values (int64, time.Time, nested maps)
// onto the JSON shapes the other backends return.
func normalizeSnapshot(snap *firestore.DocumentSnapshot) (Document, error) {
	return Normalize(snap.Data())
}

func toFirestore(doc Document) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	return map[string]any(doc)
}
