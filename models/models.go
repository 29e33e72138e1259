package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskCompletion records one verified task per subject. The composite unique
// index enforces the at-most-one rule; duplicate inserts are dropped with an
// ON CONFLICT DO NOTHING clause rather than surfaced as errors.
type TaskCompletion struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TokenID   uint64    `gorm:"uniqueIndex:idx_completion_token_task;index"`
	TaskID    string    `gorm:"uniqueIndex:idx_completion_token_task;size:64"`
	Claimant  string    `gorm:"size:64;index"`
	TaskKind  string    `gorm:"size:16;index"`
	Proof     string    `gorm:"type:text"`
	Signature string    `gorm:"size:200"`
	Nonce     uint64    `gorm:"not null"`
	Verified  bool      `gorm:"not null"`
	CreatedAt time.Time
}

// SignatureAudit is the append-only log of every attestation the oracle has
// issued. IssuedAt is the source of truth for later re-verification.
type SignatureAudit struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TokenID       uint64    `gorm:"index"`
	TaskID        string    `gorm:"size:64"`
	MessageDigest string    `gorm:"size:80"`
	Signature     string    `gorm:"size:200"`
	Nonce         uint64    `gorm:"not null"`
	IssuedAt      int64     `gorm:"not null"`
	CreatedAt     time.Time
}

// SubjectNonce is the per-token replay counter. Allocation upserts and
// increments in one statement, so concurrent claims against one token never
// share a nonce.
type SubjectNonce struct {
	TokenID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	Counter   uint64 `gorm:"not null"`
	UpdatedAt time.Time
}

// ReferralCode tracks one referrer token and its funnel counters.
type ReferralCode struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code        string    `gorm:"uniqueIndex;size:32"`
	Owner       string    `gorm:"size:64;index"`
	TokenID     *uint64
	Clicks      uint64 `gorm:"not null;default:0"`
	Conversions uint64 `gorm:"not null;default:0"`
	CreatedAt   time.Time
}

// ReferralClick is the append-only click event stream.
type ReferralClick struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code        string    `gorm:"size:32;index:idx_click_code_origin"`
	Origin      string    `gorm:"size:64;index:idx_click_code_origin"`
	UserAgent   string    `gorm:"size:512"`
	Converted   bool      `gorm:"index"`
	ConvertedAt *time.Time
	CreatedAt   time.Time
}

// AutoMigrate performs all schema migrations for the oracle.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&TaskCompletion{},
		&SignatureAudit{},
		&SubjectNonce{},
		&ReferralCode{},
		&ReferralClick{},
	)
}
