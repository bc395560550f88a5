// File: internal/docstore/gorm.go
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type record struct {
	Collection string            `gorm:"primaryKey;type:varchar(64)"`
	ID         string            `gorm:"primaryKey;type:varchar(128)"`
	Status     string            `gorm:"type:varchar(32);index"`
	CreatedAt  time.Time         `gorm:"index;not null"`
	UpdatedAt  time.Time         `gorm:"not null"`
	Data       datatypes.JSONMap `gorm:"not null"`
}

func (record) TableName() string {
	return "documents"
}

// GORMStore keeps documents as JSON rows in a relational database.
type GORMStore struct {
	db *gorm.DB
}

// NewGORMStore creates a GORM-backed Store.
func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

// Migrate creates the documents table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&record{}); err != nil {
		return fmt.Errorf("migrating documents: %w", err)
	}
	return nil
}

func (s *GORMStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	var rec record
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	return &Snapshot{ID: rec.ID, Data: decode(rec.Data)}, nil
}

func (s *GORMStore) Set(ctx context.Context, collection, id string, data Document) error {
	now := time.Now().UTC()
	rec := record{
		Collection: collection,
		ID:         id,
		Status:     data.String(FieldStatus),
		CreatedAt:  now,
		UpdatedAt:  now,
		Data:       datatypes.JSONMap(data),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("setting %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *GORMStore) Add(ctx context.Context, collection string, data Document) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	rec := record{
		Collection: collection,
		ID:         id,
		Status:     data.String(FieldStatus),
		CreatedAt:  now,
		UpdatedAt:  now,
		Data:       datatypes.JSONMap(data),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("adding to %s: %w", collection, err)
	}
	return id, nil
}

func (s *GORMStore) Update(ctx context.Context, collection, id string, fields Document) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec record
		err := tx.Where("collection = ? AND id = ?", collection, id).First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("loading %s/%s: %w", collection, id, err)
		}

		merged := datatypes.JSONMap{}
		for k, v := range rec.Data {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}

		err = tx.Model(&record{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]interface{}{
				"data":       merged,
				"status":     Document(merged).String(FieldStatus),
				"updated_at": time.Now().UTC(),
			}).Error
		if err != nil {
			return fmt.Errorf("updating %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

func (s *GORMStore) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&record{})
	if res.Error != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GORMStore) scoped(ctx context.Context, collection string, q Query) *gorm.DB {
	db := s.db.WithContext(ctx).Model(&record{}).Where("collection = ?", collection)
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	return db
}

func (s *GORMStore) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	db := s.scoped(ctx, collection, q).Order("created_at DESC").Order("id")
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}

	var recs []record
	if err := db.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	out := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Snapshot{ID: rec.ID, Data: decode(rec.Data)})
	}
	return out, nil
}

func (s *GORMStore) Count(ctx context.Context, collection string, q Query) (int64, error) {
	var total int64
	if err := s.scoped(ctx, collection, q).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("counting %s: %w", collection, err)
	}
	return total, nil
}

// decode turns the json.Number values JSONMap produces into int64 or float64,
// matching what the Firestore client returns.
func decode(data datatypes.JSONMap) Document {
	out := make(Document, len(data))
	for k, v := range data {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case []interface{}:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	default:
		return v
	}
}
