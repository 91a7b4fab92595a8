package basket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/healthplusinnovation/storefront/pkg/db/models"
)

type sqlConn interface {
	DB() *gorm.DB
	Ping(ctx context.Context) error
}

// SQLStorage keeps one basket_snapshots row per session and storage key.
type SQLStorage struct {
	conn sqlConn
}

// NewSQLStorage builds a storage on top of the shared GORM client.
func NewSQLStorage(conn sqlConn) (*SQLStorage, error) {
	if conn == nil || conn.DB() == nil {
		return nil, fmt.Errorf("database client required")
	}
	return &SQLStorage{conn: conn}, nil
}

func (s *SQLStorage) Load(ctx context.Context, scope, key string) ([]byte, bool, error) {
	var row models.BasketSnapshot
	err := s.conn.DB().WithContext(ctx).
		Where("session_id = ? AND storage_key = ?", scope, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(row.Payload), true, nil
}

func (s *SQLStorage) Save(ctx context.Context, scope, key string, data []byte) error {
	row := models.BasketSnapshot{
		SessionID:  scope,
		StorageKey: key,
		Payload:    string(data),
	}
	return s.conn.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Prune deletes snapshots that have not been written since cutoff.
func (s *SQLStorage) Prune(ctx context.Context, key string, cutoff time.Time) (int64, error) {
	res := s.conn.DB().WithContext(ctx).
		Where("storage_key = ? AND updated_at < ?", key, cutoff).
		Delete(&models.BasketSnapshot{})
	return res.RowsAffected, res.Error
}
