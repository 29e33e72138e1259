package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultDiscordBaseURL = "https://discord.com/api/v10"

// DiscordConfig defines the Discord bot client settings.
type DiscordConfig struct {
	BaseURL  string
	BotToken string
	GuildID  string
	// MinTenure is the membership duration an activity claim must exceed.
	MinTenure time.Duration
	Timeout   time.Duration
}

// DiscordClient adjudicates community claims against the Discord API,
// scoped to a single guild.
type DiscordClient struct {
	baseURL    string
	botToken   string
	guildID    string
	minTenure  time.Duration
	httpClient *http.Client
	nowFn      func() time.Time
}

// NewDiscordClient constructs a client with sane defaults.
func NewDiscordClient(cfg DiscordConfig) (*DiscordClient, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("discord: bot token required")
	}
	if strings.TrimSpace(cfg.GuildID) == "" {
		return nil, fmt.Errorf("discord: guild id required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultDiscordBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	minTenure := cfg.MinTenure
	if minTenure <= 0 {
		minTenure = 24 * time.Hour
	}
	return &DiscordClient{
		baseURL:    strings.TrimRight(base, "/"),
		botToken:   strings.TrimSpace(cfg.BotToken),
		guildID:    strings.TrimSpace(cfg.GuildID),
		minTenure:  minTenure,
		httpClient: &http.Client{Timeout: timeout},
		nowFn:      time.Now,
	}, nil
}

type guildMember struct {
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joined_at"`
}

// VerifyMembership reports whether the user is currently a guild member.
func (c *DiscordClient) VerifyMembership(ctx context.Context, userID string) (bool, error) {
	member, err := c.member(ctx, userID)
	if err != nil {
		return false, err
	}
	return member != nil, nil
}

// VerifyRole reports whether the user holds the given role in the guild.
func (c *DiscordClient) VerifyRole(ctx context.Context, userID, roleID string) (bool, error) {
	member, err := c.member(ctx, userID)
	if err != nil || member == nil {
		return false, err
	}
	for _, role := range member.Roles {
		if role == roleID {
			return true, nil
		}
	}
	return false, nil
}

// VerifyActivity reports whether the user's guild tenure exceeds the
// configured minimum.
func (c *DiscordClient) VerifyActivity(ctx context.Context, userID string) (bool, error) {
	member, err := c.member(ctx, userID)
	if err != nil || member == nil {
		return false, err
	}
	if member.JoinedAt.IsZero() {
		return false, nil
	}
	return c.nowFn().Sub(member.JoinedAt) >= c.minTenure, nil
}

// member fetches the guild membership record; nil without error means the
// user is not a member.
func (c *DiscordClient) member(ctx context.Context, userID string) (*guildMember, error) {
	endpoint := fmt.Sprintf("%s/guilds/%s/members/%s", c.baseURL, url.PathEscape(c.guildID), url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("discord: request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: discord: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: discord: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
	var member guildMember
	if err := json.NewDecoder(resp.Body).Decode(&member); err != nil {
		return nil, fmt.Errorf("%w: discord: decode: %v", ErrUnavailable, err)
	}
	return &member, nil
}
