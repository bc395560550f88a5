// File: internal/docstore/firestore.go
package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const countAlias = "total"

// FirestoreStore keeps documents in Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a Firestore-backed Store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	doc, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	return &Snapshot{ID: doc.Ref.ID, Data: Document(doc.Data())}, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data Document) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, map[string]interface{}(data)); err != nil {
		return fmt.Errorf("setting %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Add(ctx context.Context, collection string, data Document) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, map[string]interface{}(data))
	if err != nil {
		return "", fmt.Errorf("adding to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields Document) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	ref := s.client.Collection(collection).Doc(id)
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) query(collection string, q Query) firestore.Query {
	query := s.client.Collection(collection).Query
	if q.Status != "" {
		query = query.Where(FieldStatus, "==", q.Status)
	}
	return query
}

func (s *FirestoreStore) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	query := s.query(collection, q).OrderBy(FieldCreatedAt, firestore.Desc)
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	out := make([]Snapshot, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Snapshot{ID: doc.Ref.ID, Data: Document(doc.Data())})
	}
	return out, nil
}

func (s *FirestoreStore) Count(ctx context.Context, collection string, q Query) (int64, error) {
	base := s.query(collection, q)
	res, err := base.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", collection, err)
	}
	v, ok := res[countAlias].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("counting %s: unexpected aggregation result %T", collection, res[countAlias])
	}
	return v.GetIntegerValue(), nil
}
