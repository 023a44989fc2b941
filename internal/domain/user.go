package domain

import "time"

// User is an asset owner together with its storage quota ledger.
// A nil QuotaSizeInBytes means the user has no quota.
type User struct {
	ID                string    `gorm:"type:text;primaryKey" json:"id"`
	Email             string    `gorm:"type:text;uniqueIndex" json:"email"`
	Name              string    `gorm:"type:text" json:"name"`
	QuotaSizeInBytes  *int64    `json:"quota_size_in_bytes,omitempty"`
	QuotaUsageInBytes int64     `gorm:"not null;default:0" json:"quota_usage_in_bytes"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string {
	return "users"
}

// HasRoomFor reports whether size more bytes fit into the user's quota.
func (u *User) HasRoomFor(size int64) bool {
	if u.QuotaSizeInBytes == nil {
		return true
	}
	return u.QuotaUsageInBytes+size <= *u.QuotaSizeInBytes
}
