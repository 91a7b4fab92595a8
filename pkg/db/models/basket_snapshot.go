package models

import "time"

// BasketSnapshot stores the serialized basket lines of one browser session under a versioned storage key.
type BasketSnapshot struct {
	SessionID  string    `gorm:"column:session_id;primaryKey"`
	StorageKey string    `gorm:"column:storage_key;primaryKey"`
	Payload    string    `gorm:"column:payload;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (BasketSnapshot) TableName() string {
	return "basket_snapshots"
}
