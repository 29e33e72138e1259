package verify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bondoracle/referral"
	"bondoracle/tasks"
)

func newTwitterStub(t *testing.T, handler http.HandlerFunc) *TwitterClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewTwitterClient(TwitterConfig{
		BaseURL:       srv.URL,
		BearerToken:   "test-token",
		TargetUserID:  "999",
		MentionHandle: "PaimonBond",
		MemeHashtags:  []string{"PaimonBond", "BSC"},
	})
	if err != nil {
		t.Fatalf("twitter client: %v", err)
	}
	return client
}

func newDiscordStub(t *testing.T, handler http.HandlerFunc) *DiscordClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewDiscordClient(DiscordConfig{
		BaseURL:   srv.URL,
		BotToken:  "test-bot",
		GuildID:   "g1",
		MinTenure: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("discord client: %v", err)
	}
	return client
}

func TestVerifyFollow(t *testing.T) {
	client := newTwitterStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/users/42/following/999" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data":{"following":true}}`))
	})

	ok, err := client.VerifyFollow(context.Background(), "42")
	if err != nil {
		t.Fatalf("verify follow: %v", err)
	}
	if !ok {
		t.Fatal("expected follow to verify")
	}

	// Unknown relation: provider 404 means "does not follow".
	ok, err = client.VerifyFollow(context.Background(), "43")
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if ok {
		t.Fatal("404 must map to false")
	}
}

func TestProviderFaultIsUnavailable(t *testing.T) {
	client := newTwitterStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.VerifyFollow(context.Background(), "42")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	_, err = client.VerifyRetweet(context.Background(), "t1", "42")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestProviderTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	client, err := NewTwitterClient(TwitterConfig{
		BaseURL:     srv.URL,
		BearerToken: "test-token",
		Timeout:     20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("twitter client: %v", err)
	}

	_, err = client.VerifyFollow(context.Background(), "42")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("timeout must surface as ErrUnavailable, got %v", err)
	}
}

func TestVerifyRetweetAndLike(t *testing.T) {
	client := newTwitterStub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tweets/t1/retweeted_by":
			w.Write([]byte(`{"data":[{"id":"7"},{"id":"42"}]}`))
		case "/tweets/t1/liking_users":
			w.Write([]byte(`{"data":[{"id":"7"}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	ok, err := client.VerifyRetweet(context.Background(), "t1", "42")
	if err != nil || !ok {
		t.Fatalf("expected retweet verified, ok=%v err=%v", ok, err)
	}
	ok, err = client.VerifyLike(context.Background(), "t1", "42")
	if err != nil {
		t.Fatalf("verify like: %v", err)
	}
	if ok {
		t.Fatal("user 42 did not like t1")
	}
}

func TestVerifyMeme(t *testing.T) {
	client := newTwitterStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/42/tweets" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data":[
			{"id":"1","text":"no media","entities":{"hashtags":[{"tag":"paimonbond"},{"tag":"bsc"}]}},
			{"id":"2","text":"media, missing tag","attachments":{"media_keys":["m1"]},"entities":{"hashtags":[{"tag":"paimonbond"}]}},
			{"id":"3","text":"the meme","attachments":{"media_keys":["m2"]},"entities":{"hashtags":[{"tag":"PaimonBond"},{"tag":"BSC"}]}}
		]}`))
	})

	ok, err := client.VerifyMeme(context.Background(), "42")
	if err != nil {
		t.Fatalf("verify meme: %v", err)
	}
	if !ok {
		t.Fatal("tweet 3 has media plus both hashtags and should verify")
	}
}

func TestVerifyMention(t *testing.T) {
	client := newTwitterStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"1","text":"gm @paimonbond frens"}]}`))
	})
	ok, err := client.VerifyMention(context.Background(), "42")
	if err != nil || !ok {
		t.Fatalf("expected mention verified, ok=%v err=%v", ok, err)
	}
}

func TestDiscordMembershipRoleActivity(t *testing.T) {
	joined := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)
	client := newDiscordStub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/guilds/g1/members/u1":
			w.Write([]byte(`{"roles":["r1","r2"],"joined_at":"` + joined + `"}`))
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	ok, err := client.VerifyMembership(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("membership: ok=%v err=%v", ok, err)
	}
	ok, err = client.VerifyMembership(ctx, "stranger")
	if err != nil {
		t.Fatalf("non-member must not error: %v", err)
	}
	if ok {
		t.Fatal("non-member must map to false")
	}

	ok, err = client.VerifyRole(ctx, "u1", "r2")
	if err != nil || !ok {
		t.Fatalf("role: ok=%v err=%v", ok, err)
	}
	ok, _ = client.VerifyRole(ctx, "u1", "r9")
	if ok {
		t.Fatal("missing role must map to false")
	}

	ok, err = client.VerifyActivity(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("48h tenure exceeds 24h minimum: ok=%v err=%v", ok, err)
	}
}

func TestReferralVerifier(t *testing.T) {
	ledger := referral.NewMemoryLedger(referral.Config{})
	code, err := ledger.GenerateCode(context.Background(), "0xowner", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	v := NewReferralVerifier(ledger)

	ok, err := v.CheckClaim(context.Background(), Claim{Proof: Proof{Type: "referral", ReferralCode: code}})
	if err != nil || !ok {
		t.Fatalf("existing code: ok=%v err=%v", ok, err)
	}
	ok, err = v.CheckClaim(context.Background(), Claim{Proof: Proof{Type: "referral", ReferralCode: "nope"}})
	if err != nil {
		t.Fatalf("unknown code must not error: %v", err)
	}
	if ok {
		t.Fatal("unknown code must map to false")
	}
}

func TestTableDispatch(t *testing.T) {
	ledger := referral.NewMemoryLedger(referral.Config{})
	code, _ := ledger.GenerateCode(context.Background(), "0xowner", nil)
	table := &Table{verifiers: map[string]Verifier{}}
	table.Register(tasks.Referral, NewReferralVerifier(ledger))

	ok, err := table.Dispatch(context.Background(), Claim{TaskID: tasks.Referral, Proof: Proof{ReferralCode: code}})
	if err != nil || !ok {
		t.Fatalf("dispatch: ok=%v err=%v", ok, err)
	}

	_, err = table.Dispatch(context.Background(), Claim{TaskID: "NOPE"})
	if !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestMissingProofFieldsAreFalse(t *testing.T) {
	twitter := newTwitterStub(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("verifier must not call the provider when proof fields are missing")
	})
	discord := newDiscordStub(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("verifier must not call the provider when proof fields are missing")
	})
	ledger := referral.NewMemoryLedger(referral.Config{})
	table := NewTable(twitter, discord, NewReferralVerifier(ledger))

	for _, taskID := range []string{tasks.TwitterFollow, tasks.TwitterRetweet, tasks.DiscordJoin, tasks.DiscordRole, tasks.Referral} {
		ok, err := table.Dispatch(context.Background(), Claim{TaskID: taskID})
		if err != nil {
			t.Fatalf("%s: empty proof must not error: %v", taskID, err)
		}
		if ok {
			t.Fatalf("%s: empty proof must map to false", taskID)
		}
	}
}
