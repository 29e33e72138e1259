package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bondoracle/models"
)

// Store owns completion records, the per-token nonce counter, and the
// signature audit log.
type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// Completion carries everything persisted for one verified task.
type Completion struct {
	TokenID   uint64
	TaskID    string
	Claimant  string
	TaskKind  string
	Proof     string
	Signature string
	Nonce     uint64
}

// TaskStat aggregates completions per task kind.
type TaskStat struct {
	TaskKind         string `json:"taskKind"`
	TotalCompletions int64  `json:"totalCompletions"`
	UniqueClaimants  int64  `json:"uniqueClaimants"`
}

// New wraps an open gorm handle. The schema must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db, nowFn: time.Now}
}

// IsCompleted reports whether a completion record exists for (token, task).
func (s *Store) IsCompleted(ctx context.Context, tokenID uint64, taskID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.TaskCompletion{}).
		Where("token_id = ? AND task_id = ?", tokenID, taskID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: check completion: %w", err)
	}
	return count > 0, nil
}

// NextNonce allocates the next replay-protection nonce for a token. The
// counter row is upserted with an increment in a single statement, so two
// concurrent allocations for the same token always observe distinct values.
func (s *Store) NextNonce(ctx context.Context, tokenID uint64) (uint64, error) {
	now := s.nowFn().UTC()
	var counter uint64
	err := s.db.WithContext(ctx).Raw(
		`INSERT INTO subject_nonces (token_id, counter, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT (token_id) DO UPDATE SET counter = subject_nonces.counter + 1, updated_at = ?
		 RETURNING counter`,
		tokenID, now, now,
	).Scan(&counter).Error
	if err != nil {
		return 0, fmt.Errorf("store: allocate nonce: %w", err)
	}
	return counter, nil
}

// RecordCompletion inserts the completion keyed by (token, task). A second
// insert for the same key is a silent no-op so the uniqueness invariant holds
// without surfacing conflicts to callers.
func (s *Store) RecordCompletion(ctx context.Context, c Completion) error {
	record := models.TaskCompletion{
		ID:        uuid.New(),
		TokenID:   c.TokenID,
		TaskID:    c.TaskID,
		Claimant:  c.Claimant,
		TaskKind:  c.TaskKind,
		Proof:     c.Proof,
		Signature: c.Signature,
		Nonce:     c.Nonce,
		Verified:  true,
		CreatedAt: s.nowFn().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_id"}, {Name: "task_id"}},
			DoNothing: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("store: record completion: %w", err)
	}
	return nil
}

// RecordSignatureAudit appends an issued attestation to the audit log.
// Callers treat a failure here as diagnostic, not fatal.
func (s *Store) RecordSignatureAudit(ctx context.Context, tokenID uint64, taskID, messageDigest, signature string, nonce uint64, issuedAt int64) error {
	entry := models.SignatureAudit{
		ID:            uuid.New(),
		TokenID:       tokenID,
		TaskID:        taskID,
		MessageDigest: messageDigest,
		Signature:     signature,
		Nonce:         nonce,
		IssuedAt:      issuedAt,
		CreatedAt:     s.nowFn().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("store: record audit: %w", err)
	}
	return nil
}

// TaskStatistics groups completion counts and distinct claimants by task kind.
func (s *Store) TaskStatistics(ctx context.Context) ([]TaskStat, error) {
	var stats []TaskStat
	err := s.db.WithContext(ctx).
		Model(&models.TaskCompletion{}).
		Select("task_kind, COUNT(*) AS total_completions, COUNT(DISTINCT claimant) AS unique_claimants").
		Group("task_kind").
		Order("task_kind").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("store: task statistics: %w", err)
	}
	return stats, nil
}
