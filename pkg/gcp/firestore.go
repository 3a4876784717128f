package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/spawn-mcp/adshipper/pkg/docstore"
)

// FirestoreStore implements docstore.Store on Firestore. Field names in
// filters and updates follow firestore struct tags.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps a Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Get retrieves a document from Firestore
func (s *FirestoreStore) Get(ctx context.Context, collection, key string, into any) error {
	doc, err := s.client.Collection(collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return docstore.ErrNotFound
		}
		return fmt.Errorf("failed to get document: %w", err)
	}
	if err := doc.DataTo(into); err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return nil
}

// Set stores a document in Firestore
func (s *FirestoreStore) Set(ctx context.Context, collection, key string, doc any) error {
	if _, err := s.client.Collection(collection).Doc(key).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

// Update applies partial updates. docstore.Increment maps to a server-side
// increment.
func (s *FirestoreStore) Update(ctx context.Context, collection, key string, updates []docstore.Update) error {
	_, err := s.client.Collection(collection).Doc(key).Update(ctx, toFirestoreUpdates(updates))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return docstore.ErrNotFound
		}
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

// BatchDelete deletes refs through a BulkWriter.
func (s *FirestoreStore) BatchDelete(ctx context.Context, refs []docstore.Ref) error {
	if len(refs) == 0 {
		return nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, r := range refs {
		job, err := bw.Delete(s.client.Collection(r.Collection).Doc(r.Key))
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to enqueue delete: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to delete document: %w", err)
		}
	}
	return nil
}

// Query runs an AND of filters against collection.
func (s *FirestoreStore) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Doc, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, f.Op, f.Value)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	out := make([]docstore.Doc, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, docstore.NewDoc(snap.Ref.ID, snap.DataTo))
	}
	return out, nil
}

func toFirestoreUpdates(updates []docstore.Update) []firestore.Update {
	out := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		value := u.Value
		if inc, ok := value.(docstore.Increment); ok {
			value = firestore.Increment(int64(inc))
		}
		out = append(out, firestore.Update{Path: u.Path, Value: value})
	}
	return out
}
