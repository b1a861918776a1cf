package cart

import (
	"context"
	"errors"
	"time"

	"github.com/cornman/cornman-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormProvider interface {
	DB() *gorm.DB
}

// DBStorage stores snapshots in the cart_snapshots table.
type DBStorage struct {
	db gormProvider
}

func NewDBStorage(db gormProvider) (*DBStorage, error) {
	if db == nil {
		return nil, errors.New("db client required")
	}
	return &DBStorage{db: db}, nil
}

func (s *DBStorage) Load(ctx context.Context, key string) (string, bool, error) {
	var snap models.CartSnapshot
	err := s.db.DB().WithContext(ctx).
		Where("storage_key = ?", key).
		Take(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return snap.Payload, true, nil
}

func (s *DBStorage) Save(ctx context.Context, key, payload string) error {
	snap := models.CartSnapshot{StorageKey: key, Payload: payload}
	return s.db.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&snap).Error
}

func (s *DBStorage) Backend() string { return "db" }

// DeleteStaleBefore removes snapshots last written before cutoff.
func (s *DBStorage) DeleteStaleBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := tx
	if conn == nil {
		conn = s.db.DB()
	}
	res := conn.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&models.CartSnapshot{})
	return res.RowsAffected, res.Error
}
