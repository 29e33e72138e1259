package tasks

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Kind groups tasks by the capability provider that adjudicates them.
type Kind string

const (
	KindTwitter  Kind = "TWITTER"
	KindDiscord  Kind = "DISCORD"
	KindReferral Kind = "REFERRAL"
)

// Task identifiers. These are stable wire values: the on-chain verifier
// consumes keccak256 digests of these exact strings.
const (
	TwitterFollow  = "TWITTER_FOLLOW"
	TwitterRetweet = "TWITTER_RETWEET"
	TwitterLike    = "TWITTER_LIKE"
	TwitterMention = "TWITTER_MENTION"
	TwitterMeme    = "TWITTER_MEME"
	DiscordJoin    = "DISCORD_JOIN"
	DiscordRole    = "DISCORD_ROLE"
	DiscordMessage = "DISCORD_MESSAGE"
	Referral       = "REFERRAL"
)

// Task describes one claimable unit of work.
type Task struct {
	ID   string
	Kind Kind
}

var registry = map[string]Task{
	TwitterFollow:  {ID: TwitterFollow, Kind: KindTwitter},
	TwitterRetweet: {ID: TwitterRetweet, Kind: KindTwitter},
	TwitterLike:    {ID: TwitterLike, Kind: KindTwitter},
	TwitterMention: {ID: TwitterMention, Kind: KindTwitter},
	TwitterMeme:    {ID: TwitterMeme, Kind: KindTwitter},
	DiscordJoin:    {ID: DiscordJoin, Kind: KindDiscord},
	DiscordRole:    {ID: DiscordRole, Kind: KindDiscord},
	DiscordMessage: {ID: DiscordMessage, Kind: KindDiscord},
	Referral:       {ID: Referral, Kind: KindReferral},
}

// Lookup resolves a task identifier against the fixed taxonomy.
func Lookup(id string) (Task, bool) {
	task, ok := registry[id]
	return task, ok
}

// All returns every registered task. The slice is a copy.
func All() []Task {
	out := make([]Task, 0, len(registry))
	for _, task := range registry {
		out = append(out, task)
	}
	return out
}

// KeyDigest content-addresses a task identifier as the 32-byte keccak256 of
// its UTF-8 bytes, matching what the verifying contract hashes on-chain.
func KeyDigest(id string) [32]byte {
	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256([]byte(id)))
	return digest
}
