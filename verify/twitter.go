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

const defaultTwitterBaseURL = "https://api.twitter.com/2"

// TwitterConfig defines the Twitter API v2 client settings.
type TwitterConfig struct {
	BaseURL      string
	BearerToken  string
	TargetUserID string
	// MentionHandle is the account a mention task must reference.
	MentionHandle string
	// MemeHashtags must all appear, alongside a media attachment, in one post.
	MemeHashtags []string
	// Window bounds how far back mention and meme checks look.
	Window  time.Duration
	Timeout time.Duration
}

// TwitterClient adjudicates engagement claims against the Twitter API v2.
type TwitterClient struct {
	baseURL       string
	bearerToken   string
	targetUserID  string
	mentionHandle string
	memeHashtags  []string
	window        time.Duration
	httpClient    *http.Client
	nowFn         func() time.Time
}

// NewTwitterClient constructs a client with sane defaults.
func NewTwitterClient(cfg TwitterConfig) (*TwitterClient, error) {
	if strings.TrimSpace(cfg.BearerToken) == "" {
		return nil, fmt.Errorf("twitter: bearer token required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultTwitterBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &TwitterClient{
		baseURL:       strings.TrimRight(base, "/"),
		bearerToken:   strings.TrimSpace(cfg.BearerToken),
		targetUserID:  strings.TrimSpace(cfg.TargetUserID),
		mentionHandle: strings.TrimPrefix(strings.TrimSpace(cfg.MentionHandle), "@"),
		memeHashtags:  cfg.MemeHashtags,
		window:        window,
		httpClient:    &http.Client{Timeout: timeout},
		nowFn:         time.Now,
	}, nil
}

type twitterUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type twitterTweet struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	Entities struct {
		Hashtags []struct {
			Tag string `json:"tag"`
		} `json:"hashtags"`
	} `json:"entities"`
}

// VerifyFollow reports whether the user follows the configured target
// account. A 404 from the provider means "does not follow", not a fault.
func (c *TwitterClient) VerifyFollow(ctx context.Context, userID string) (bool, error) {
	var payload struct {
		Data struct {
			Following bool `json:"following"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/users/%s/following/%s", url.PathEscape(userID), url.PathEscape(c.targetUserID))
	found, err := c.get(ctx, path, nil, &payload)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return payload.Data.Following, nil
}

// VerifyRetweet reports whether the user appears among a tweet's retweeters.
func (c *TwitterClient) VerifyRetweet(ctx context.Context, tweetID, userID string) (bool, error) {
	var payload struct {
		Data []twitterUser `json:"data"`
	}
	path := fmt.Sprintf("/tweets/%s/retweeted_by", url.PathEscape(tweetID))
	found, err := c.get(ctx, path, url.Values{"max_results": {"100"}}, &payload)
	if err != nil || !found {
		return false, err
	}
	for _, user := range payload.Data {
		if user.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

// VerifyLike reports whether the user appears among a tweet's liking users.
func (c *TwitterClient) VerifyLike(ctx context.Context, tweetID, userID string) (bool, error) {
	var payload struct {
		Data []twitterUser `json:"data"`
	}
	path := fmt.Sprintf("/tweets/%s/liking_users", url.PathEscape(tweetID))
	found, err := c.get(ctx, path, url.Values{"max_results": {"100"}}, &payload)
	if err != nil || !found {
		return false, err
	}
	for _, user := range payload.Data {
		if user.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

// VerifyMention reports whether the user mentioned the configured handle in a
// post within the recency window.
func (c *TwitterClient) VerifyMention(ctx context.Context, userID string) (bool, error) {
	tweets, err := c.recentTweets(ctx, userID, url.Values{
		"tweet.fields": {"created_at,text"},
	})
	if err != nil {
		return false, err
	}
	needle := "@" + strings.ToLower(c.mentionHandle)
	for _, tweet := range tweets {
		if strings.Contains(strings.ToLower(tweet.Text), needle) {
			return true, nil
		}
	}
	return false, nil
}

// VerifyMeme reports whether the user posted, within the recency window, a
// tweet carrying a media attachment and every required hashtag.
func (c *TwitterClient) VerifyMeme(ctx context.Context, userID string) (bool, error) {
	tweets, err := c.recentTweets(ctx, userID, url.Values{
		"tweet.fields": {"created_at,text,entities"},
		"expansions":   {"attachments.media_keys"},
		"media.fields": {"type,url"},
	})
	if err != nil {
		return false, err
	}
	for _, tweet := range tweets {
		if len(tweet.Attachments.MediaKeys) == 0 {
			continue
		}
		present := make(map[string]bool, len(tweet.Entities.Hashtags))
		for _, tag := range tweet.Entities.Hashtags {
			present[strings.ToLower(tag.Tag)] = true
		}
		all := true
		for _, required := range c.memeHashtags {
			if !present[strings.ToLower(required)] {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func (c *TwitterClient) recentTweets(ctx context.Context, userID string, params url.Values) ([]twitterTweet, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("max_results", "100")
	params.Set("start_time", c.nowFn().Add(-c.window).UTC().Format(time.RFC3339))

	var payload struct {
		Data []twitterTweet `json:"data"`
	}
	path := fmt.Sprintf("/users/%s/tweets", url.PathEscape(userID))
	found, err := c.get(ctx, path, params, &payload)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return payload.Data, nil
}

// get performs an authenticated GET. It returns found=false for 404, decodes
// into out for 200, and wraps every other outcome in ErrUnavailable.
func (c *TwitterClient) get(ctx context.Context, path string, params url.Values, out any) (bool, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("twitter: request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: twitter: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("%w: twitter: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: twitter: decode: %v", ErrUnavailable, err)
	}
	return true, nil
}
