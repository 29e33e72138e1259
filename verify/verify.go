package verify

import (
	"context"
	"errors"
	"fmt"

	"bondoracle/tasks"
)

// ErrUnavailable marks infrastructure faults at a capability provider:
// timeouts, auth failures, malformed responses. It is distinct from a claim
// checked and found false, and callers must not collapse the two.
var ErrUnavailable = errors.New("verifier unavailable")

// ErrUnknownTask is returned by the table when no verifier is registered for
// a task identifier.
var ErrUnknownTask = errors.New("no verifier for task")

// Claim is one caller-submitted completion assertion.
type Claim struct {
	TokenID  uint64 `json:"tokenId"`
	TaskID   string `json:"taskId"`
	Claimant string `json:"claimant"`
	Proof    Proof  `json:"proof"`
}

// Proof carries the provider-specific evidence. Fields are populated per
// proof type; unused ones stay empty.
type Proof struct {
	Type            string `json:"type"`
	TwitterUserID   string `json:"twitterUserId,omitempty"`
	TwitterUsername string `json:"twitterUsername,omitempty"`
	TweetID         string `json:"tweetId,omitempty"`
	DiscordUserID   string `json:"discordUserId,omitempty"`
	DiscordUsername string `json:"discordUsername,omitempty"`
	GuildID         string `json:"guildId,omitempty"`
	RoleID          string `json:"roleId,omitempty"`
	ReferralCode    string `json:"referralCode,omitempty"`
}

// Verifier adjudicates one claim. A false verdict with nil error means the
// provider answered and the claim did not hold.
type Verifier interface {
	CheckClaim(ctx context.Context, claim Claim) (bool, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, claim Claim) (bool, error)

func (f VerifierFunc) CheckClaim(ctx context.Context, claim Claim) (bool, error) {
	return f(ctx, claim)
}

// Table maps task identifiers to their verifiers.
type Table struct {
	verifiers map[string]Verifier
}

// NewTable wires the fixed task taxonomy to the supplied capability clients.
func NewTable(twitter *TwitterClient, discord *DiscordClient, referral *ReferralVerifier) *Table {
	t := &Table{verifiers: make(map[string]Verifier)}

	t.Register(tasks.TwitterFollow, VerifierFunc(func(ctx context.Context, claim Claim) (bool, error) {
		if claim.Proof.TwitterUserID == "" {
			return false, nil
		}
		return twitter.VerifyFollow(ctx, claim.Proof.TwitterUserID)
	}))
	t.Register(tasks.TwitterRetweet, VerifierFunc(func(ctx context.Context, claim Claim) (bool, error) {
		if claim.Proof.TwitterUserID == "" || claim.Proof.TweetID == "" {
			return false, nil
		}
		return twitter.VerifyRetweet(ctx, claim.Proof.TweetID, claim.Proof.TwitterUserID)
	}))
	t.Register(tasks.TwitterLike, VerifierFunc(func(ctx context.Context, claim Claim) (bool, error) {
		if claim.Proof.TwitterUserID == "" || claim.Proof.TweetID == "" {
			return false, nil
		}
		return twitter.VerifyLike(ctx, claim.Proof.TweetID, claim.Proof.TwitterUserID)
	}))
	t.Register(tasks.TwitterMention, VerifierFunc(func(ctx context.Context, claim Claim) (bool, error) {
		if claim.Proof.TwitterUserID == "" {
			return false, nil
		}
		return twitter.VerifyMention(ctx, claim.Proof.TwitterUserID)
	}))
	t.Register(tasks.TwitterMeme, VerifierFunc(func(ctx context.Context, claim Claim) (bool, error) {
		if claim.Proof.TwitterUserID == "" {
			return false, nil
		}
		return twitter.VerifyMeme(ctx, claim.Proof.TwitterUserID)
	}))

	t.Register(tasks.DiscordJoin, VerifierFunc(func(ctx context.Context, claim Claim) (bool, error) {
		if claim.Proof.DiscordUserID == "" {
			return false, nil
		}
		return discord.VerifyMembership(ctx, claim.Proof.DiscordUserID)
	}))
	t.Register(tasks.DiscordRole, VerifierFunc(func(ctx context.Context, claim Claim) (bool, error) {
		if claim.Proof.DiscordUserID == "" || claim.Proof.RoleID == "" {
			return false, nil
		}
		return discord.VerifyRole(ctx, claim.Proof.DiscordUserID, claim.Proof.RoleID)
	}))
	t.Register(tasks.DiscordMessage, VerifierFunc(func(ctx context.Context, claim Claim) (bool, error) {
		if claim.Proof.DiscordUserID == "" {
			return false, nil
		}
		return discord.VerifyActivity(ctx, claim.Proof.DiscordUserID)
	}))

	t.Register(tasks.Referral, referral)

	return t
}

// Register binds a verifier to a task id, replacing any previous binding.
func (t *Table) Register(taskID string, v Verifier) {
	t.verifiers[taskID] = v
}

// Dispatch routes a claim to the verifier registered for its task.
func (t *Table) Dispatch(ctx context.Context, claim Claim) (bool, error) {
	v, ok := t.verifiers[claim.TaskID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, claim.TaskID)
	}
	return v.CheckClaim(ctx, claim)
}
