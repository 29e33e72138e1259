package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bondoracle/models"
)

const maxGenerateAttempts = 16

// SQLLedger is the durable ledger over gorm. Counter increments and event
// appends run inside one transaction so readers never observe one without
// the other.
type SQLLedger struct {
	cfg   Config
	db    *gorm.DB
	nowFn func() time.Time
}

// NewSQLLedger wraps an open gorm handle; the schema must be migrated first.
func NewSQLLedger(db *gorm.DB, cfg Config) *SQLLedger {
	return &SQLLedger{cfg: cfg.withDefaults(), db: db, nowFn: time.Now}
}

func (l *SQLLedger) GenerateCode(ctx context.Context, owner string, tokenID *uint64) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", fmt.Errorf("referral: owner required")
	}
	// Insert with ON CONFLICT DO NOTHING and retry on collision: concurrent
	// generators race on the unique index, not on an in-process check.
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := newCode(l.cfg.CodeLength)
		if err != nil {
			return "", err
		}
		record := models.ReferralCode{
			ID:        uuid.New(),
			Code:      code,
			Owner:     owner,
			TokenID:   tokenID,
			CreatedAt: l.nowFn().UTC(),
		}
		res := l.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
			Create(&record)
		if res.Error != nil {
			return "", fmt.Errorf("referral: save code: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return code, nil
		}
	}
	return "", fmt.Errorf("referral: code space exhausted after %d attempts", maxGenerateAttempts)
}

func (l *SQLLedger) TrackClick(ctx context.Context, code, origin, userAgent string) (bool, error) {
	known := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.ReferralCode
		if err := tx.First(&record, "code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		known = true
		click := models.ReferralClick{
			ID:        uuid.New(),
			Code:      code,
			Origin:    origin,
			UserAgent: userAgent,
			CreatedAt: l.nowFn().UTC(),
		}
		if err := tx.Create(&click).Error; err != nil {
			return err
		}
		return tx.Model(&models.ReferralCode{}).
			Where("code = ?", code).
			UpdateColumn("clicks", gorm.Expr("clicks + ?", 1)).Error
	})
	if err != nil {
		return false, fmt.Errorf("referral: track click: %w", err)
	}
	return known, nil
}

func (l *SQLLedger) TrackConversion(ctx context.Context, code, origin string) (bool, error) {
	known := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.ReferralCode
		if err := tx.First(&record, "code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		known = true
		if err := tx.Model(&models.ReferralCode{}).
			Where("code = ?", code).
			UpdateColumn("conversions", gorm.Expr("conversions + ?", 1)).Error; err != nil {
			return err
		}
		// Best effort: flip the most recent unconverted click from the same
		// origin. Absent a click the conversion still counts.
		var click models.ReferralClick
		err := tx.Where("code = ? AND origin = ? AND converted = ?", code, origin, false).
			Order("created_at DESC").
			First(&click).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		now := l.nowFn().UTC()
		click.Converted = true
		click.ConvertedAt = &now
		return tx.Save(&click).Error
	})
	if err != nil {
		return false, fmt.Errorf("referral: track conversion: %w", err)
	}
	return known, nil
}

func (l *SQLLedger) VerifyCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.ReferralCode{}).
		Where("code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("referral: verify code: %w", err)
	}
	return count > 0, nil
}

func (l *SQLLedger) Stats(ctx context.Context, code string) (*Stats, error) {
	var record models.ReferralCode
	err := l.db.WithContext(ctx).First(&record, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("referral: stats: %w", err)
	}
	return &Stats{
		Code:           record.Code,
		Clicks:         record.Clicks,
		Conversions:    record.Conversions,
		ConversionRate: conversionRate(record.Clicks, record.Conversions),
	}, nil
}

func (l *SQLLedger) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []models.ReferralCode
	err := l.db.WithContext(ctx).
		Order("conversions DESC, clicks DESC, created_at ASC, code ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("referral: leaderboard: %w", err)
	}
	return toEntries(records), nil
}

func (l *SQLLedger) CodesByOwner(ctx context.Context, owner string) ([]Entry, error) {
	var records []models.ReferralCode
	err := l.db.WithContext(ctx).
		Where("LOWER(owner) = ?", strings.ToLower(strings.TrimSpace(owner))).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("referral: codes by owner: %w", err)
	}
	return toEntries(records), nil
}

func (l *SQLLedger) CalculateReward(conversions uint64) float64 {
	return rewardFor(conversions, l.cfg.RewardPerConversion)
}

func toEntries(records []models.ReferralCode) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, Entry{
			Code:        record.Code,
			Owner:       record.Owner,
			TokenID:     record.TokenID,
			Clicks:      record.Clicks,
			Conversions: record.Conversions,
			CreatedAt:   record.CreatedAt,
		})
	}
	return entries
}
