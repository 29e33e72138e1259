package tasks

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestLookup(t *testing.T) {
	task, ok := Lookup(TwitterFollow)
	if !ok {
		t.Fatalf("expected %s to be registered", TwitterFollow)
	}
	if task.Kind != KindTwitter {
		t.Fatalf("expected kind %s got %s", KindTwitter, task.Kind)
	}
	if _, ok := Lookup("NOT_A_TASK"); ok {
		t.Fatal("unknown task should not resolve")
	}
}

func TestKindAssignments(t *testing.T) {
	cases := map[string]Kind{
		TwitterFollow:  KindTwitter,
		TwitterMeme:    KindTwitter,
		DiscordJoin:    KindDiscord,
		DiscordRole:    KindDiscord,
		DiscordMessage: KindDiscord,
		Referral:       KindReferral,
	}
	for id, kind := range cases {
		task, ok := Lookup(id)
		if !ok {
			t.Fatalf("task %s missing from registry", id)
		}
		if task.Kind != kind {
			t.Fatalf("task %s: expected kind %s got %s", id, kind, task.Kind)
		}
	}
}

func TestKeyDigestMatchesKeccak(t *testing.T) {
	digest := KeyDigest(TwitterFollow)
	want := ethcrypto.Keccak256([]byte("TWITTER_FOLLOW"))
	for i := range want {
		if digest[i] != want[i] {
			t.Fatalf("digest mismatch at byte %d", i)
		}
	}
}
