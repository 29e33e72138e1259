package referral

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryLedger keeps the whole funnel in process memory. It backs tests and
// the database-less dev mode; the mutex gives the same counter/event
// atomicity the SQL ledger gets from transactions.
type MemoryLedger struct {
	cfg Config

	mu     sync.RWMutex
	codes  map[string]*Entry
	clicks []memoryClick
	nowFn  func() time.Time
}

type memoryClick struct {
	code        string
	origin      string
	userAgent   string
	clickedAt   time.Time
	converted   bool
	convertedAt time.Time
}

// NewMemoryLedger constructs an empty in-memory ledger.
func NewMemoryLedger(cfg Config) *MemoryLedger {
	return &MemoryLedger{
		cfg:   cfg.withDefaults(),
		codes: make(map[string]*Entry),
		nowFn: time.Now,
	}
}

func (l *MemoryLedger) GenerateCode(_ context.Context, owner string, tokenID *uint64) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", fmt.Errorf("referral: owner required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		code, err := newCode(l.cfg.CodeLength)
		if err != nil {
			return "", err
		}
		if _, taken := l.codes[code]; taken {
			continue
		}
		l.codes[code] = &Entry{
			Code:      code,
			Owner:     owner,
			TokenID:   tokenID,
			CreatedAt: l.nowFn().UTC(),
		}
		return code, nil
	}
}

func (l *MemoryLedger) TrackClick(_ context.Context, code, origin, userAgent string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.codes[code]
	if !ok {
		return false, nil
	}
	entry.Clicks++
	l.clicks = append(l.clicks, memoryClick{
		code:      code,
		origin:    origin,
		userAgent: userAgent,
		clickedAt: l.nowFn().UTC(),
	})
	return true, nil
}

func (l *MemoryLedger) TrackConversion(_ context.Context, code, origin string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.codes[code]
	if !ok {
		return false, nil
	}
	entry.Conversions++
	// Flip the most recent unconverted click from this origin, if any. A
	// conversion with no matching click is still counted.
	for i := len(l.clicks) - 1; i >= 0; i-- {
		click := &l.clicks[i]
		if click.code == code && click.origin == origin && !click.converted {
			click.converted = true
			click.convertedAt = l.nowFn().UTC()
			break
		}
	}
	return true, nil
}

func (l *MemoryLedger) VerifyCode(_ context.Context, code string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.codes[code]
	return ok, nil
}

func (l *MemoryLedger) Stats(_ context.Context, code string) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.codes[code]
	if !ok {
		return nil, nil
	}
	return &Stats{
		Code:           entry.Code,
		Clicks:         entry.Clicks,
		Conversions:    entry.Conversions,
		ConversionRate: conversionRate(entry.Clicks, entry.Conversions),
	}, nil
}

func (l *MemoryLedger) Leaderboard(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	l.mu.RLock()
	entries := make([]Entry, 0, len(l.codes))
	for _, entry := range l.codes {
		entries = append(entries, *entry)
	}
	l.mu.RUnlock()

	// Ties break on creation order, then code, so repeated calls agree with
	// the SQL ledger's ordering.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Conversions != entries[j].Conversions {
			return entries[i].Conversions > entries[j].Conversions
		}
		if entries[i].Clicks != entries[j].Clicks {
			return entries[i].Clicks > entries[j].Clicks
		}
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Code < entries[j].Code
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (l *MemoryLedger) CodesByOwner(_ context.Context, owner string) ([]Entry, error) {
	normalized := strings.ToLower(strings.TrimSpace(owner))
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, entry := range l.codes {
		if strings.ToLower(entry.Owner) == normalized {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *MemoryLedger) CalculateReward(conversions uint64) float64 {
	return rewardFor(conversions, l.cfg.RewardPerConversion)
}
