// Package kvcache is a durable key/value cache shared by stateless invocations.
package kvcache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

// Store reads and writes kv_cache rows.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore binds the cache to a database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Get decodes the value stored under key into dest. It reports false when the
// key is absent.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	entry, err := s.load(ctx, key)
	if err != nil || entry == nil {
		return false, err
	}
	if err := json.Unmarshal(entry.Value, dest); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cached value")
	}
	return true, nil
}

// GetFresh behaves like Get but treats entries older than maxAge as absent.
func (s *Store) GetFresh(ctx context.Context, key string, maxAge time.Duration, dest any) (bool, error) {
	entry, err := s.load(ctx, key)
	if err != nil || entry == nil {
		return false, err
	}
	if maxAge > 0 && s.now().Sub(entry.UpdatedAt) > maxAge {
		return false, nil
	}
	if err := json.Unmarshal(entry.Value, dest); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cached value")
	}
	return true, nil
}

// Put upserts value under key and stamps updated_at.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cache key is required")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode cache value")
	}

	entry := models.KVCacheEntry{ID: key, Value: raw, UpdatedAt: s.now().UTC()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write cache entry")
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", key).Delete(&models.KVCacheEntry{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cache entry")
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string) (*models.KVCacheEntry, error) {
	var entry models.KVCacheEntry
	err := s.db.WithContext(ctx).Where("id = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read cache entry")
	}
	return &entry, nil
}
