package referral

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"time"
)

// Default funnel parameters, overridable via Config.
const (
	DefaultCodeLength = 8
	DefaultReward     = 0.1
)

// codeAlphabet matches the nanoid URL-safe set so codes survive query strings
// and deep links unescaped.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// Config tunes code generation and reward payout.
type Config struct {
	CodeLength          int
	RewardPerConversion float64
}

func (c Config) withDefaults() Config {
	if c.CodeLength <= 0 {
		c.CodeLength = DefaultCodeLength
	}
	if c.RewardPerConversion <= 0 {
		c.RewardPerConversion = DefaultReward
	}
	return c
}

// Stats is the funnel summary for one code.
type Stats struct {
	Code           string  `json:"code"`
	Clicks         uint64  `json:"clicks"`
	Conversions    uint64  `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
}

// Entry is a code with its counters, as returned by leaderboard and owner
// listings.
type Entry struct {
	Code        string    `json:"code"`
	Owner       string    `json:"owner"`
	TokenID     *uint64   `json:"tokenId,omitempty"`
	Clicks      uint64    `json:"clicks"`
	Conversions uint64    `json:"conversions"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Ledger owns referral codes and their click events. Unknown codes yield
// false from the tracking calls, never errors; errors are reserved for
// storage faults.
type Ledger interface {
	GenerateCode(ctx context.Context, owner string, tokenID *uint64) (string, error)
	TrackClick(ctx context.Context, code, origin, userAgent string) (bool, error)
	TrackConversion(ctx context.Context, code, origin string) (bool, error)
	VerifyCode(ctx context.Context, code string) (bool, error)
	Stats(ctx context.Context, code string) (*Stats, error)
	Leaderboard(ctx context.Context, limit int) ([]Entry, error)
	CodesByOwner(ctx context.Context, owner string) ([]Entry, error)
	CalculateReward(conversions uint64) float64
}

// newCode draws length characters from the code alphabet using crypto/rand.
func newCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("referral: random code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// conversionRate computes conversions/clicks as a percentage rounded to two
// decimals, zero when there are no clicks.
func conversionRate(clicks, conversions uint64) float64 {
	if clicks == 0 {
		return 0
	}
	rate := float64(conversions) / float64(clicks) * 100
	return math.Round(rate*100) / 100
}

func rewardFor(conversions uint64, perConversion float64) float64 {
	return float64(conversions) * perConversion
}
