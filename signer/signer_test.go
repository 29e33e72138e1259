package signer

import (
	"encoding/hex"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"bondoracle/tasks"
)

const (
	testChainID  = uint64(97)
	testContract = "0x1111111111111111111111111111111111111111"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := New(hex.EncodeToString(ethcrypto.FromECDSA(key)), testChainID, testContract)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s := newTestSigner(t)
	issuedAt := time.Now().Unix()

	att, err := s.SignAt(1, tasks.Referral, 1, issuedAt)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(att.Signature) != 65 {
		t.Fatalf("expected 65-byte signature got %d", len(att.Signature))
	}
	if att.Signature[64] != 27 && att.Signature[64] != 28 {
		t.Fatalf("expected recovery id 27/28 got %d", att.Signature[64])
	}
	if !s.Verify(1, tasks.Referral, 1, issuedAt, att.Signature) {
		t.Fatal("signature should verify with issuedAt held constant")
	}
}

func TestVerifyRejectsTamperedInputs(t *testing.T) {
	s := newTestSigner(t)
	issuedAt := int64(1700000000)

	att, err := s.SignAt(7, tasks.TwitterFollow, 3, issuedAt)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if s.Verify(7, tasks.TwitterFollow, 4, issuedAt, att.Signature) {
		t.Fatal("different nonce must not verify")
	}
	if s.Verify(8, tasks.TwitterFollow, 3, issuedAt, att.Signature) {
		t.Fatal("different token must not verify")
	}
	if s.Verify(7, tasks.TwitterLike, 3, issuedAt, att.Signature) {
		t.Fatal("different task must not verify")
	}
	if s.Verify(7, tasks.TwitterFollow, 3, issuedAt+1, att.Signature) {
		t.Fatal("different issuedAt must not verify")
	}
}

func TestDigestDeterministicForFixedIssuedAt(t *testing.T) {
	s := newTestSigner(t)
	issuedAt := int64(1700000000)

	first, err := s.SignAt(42, tasks.DiscordJoin, 2, issuedAt)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, err := s.SignAt(42, tasks.DiscordJoin, 2, issuedAt)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if first.Digest != second.Digest {
		t.Fatal("digest should be a pure function of inputs plus issuedAt")
	}
	if first.Digest == s.Digest(42, tasks.DiscordJoin, 2, issuedAt+1) {
		t.Fatal("advancing issuedAt must change the digest")
	}
}

func TestSignerIdentity(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := New("0x"+hex.EncodeToString(ethcrypto.FromECDSA(key)), testChainID, testContract)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if s.Address() != ethcrypto.PubkeyToAddress(key.PublicKey) {
		t.Fatal("signer address should match the loaded key")
	}
}

func TestNewRejectsMalformedInput(t *testing.T) {
	if _, err := New("", testChainID, testContract); err == nil {
		t.Fatal("empty key must error")
	}
	if _, err := New("zz", testChainID, testContract); err == nil {
		t.Fatal("non-hex key must error")
	}
	key, _ := ethcrypto.GenerateKey()
	hexKey := hex.EncodeToString(ethcrypto.FromECDSA(key))
	if _, err := New(hexKey, 0, testContract); err == nil {
		t.Fatal("zero chain id must error")
	}
	if _, err := New(hexKey, testChainID, "not-an-address"); err == nil {
		t.Fatal("invalid contract address must error")
	}
}
