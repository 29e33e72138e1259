package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"bondoracle/tasks"
)

// Domain constants bound into every attestation. Changing either breaks
// verification on the deployed contract.
const (
	DomainName    = "PaimonBondNFT"
	DomainVersion = "1"
)

var (
	domainTypeHash  = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	messageTypeHash = ethcrypto.Keccak256([]byte("TaskVerification(uint256 tokenId,bytes32 taskId,uint256 completedAt,uint256 nonce)"))
)

// Signer issues EIP-712 attestations over task completions. It holds the
// oracle key for the lifetime of the process; construct once and inject.
type Signer struct {
	key               *ecdsa.PrivateKey
	address           common.Address
	chainID           uint64
	verifyingContract common.Address
	domainSeparator   [32]byte
	nowFn             func() time.Time
}

// Attestation is the signed output returned to callers and logged to the
// audit trail. IssuedAt must be stored: re-deriving the digest later requires
// the original timestamp.
type Attestation struct {
	Signature []byte
	Digest    [32]byte
	IssuedAt  int64
}

// New loads the oracle key from hex and binds the signer to one chain and one
// verifying contract. Switching chains requires a new instance.
func New(privKeyHex string, chainID uint64, verifyingContract string) (*Signer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("signer: empty private key")
	}
	key, err := ethcrypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("signer: load private key: %w", err)
	}
	if chainID == 0 {
		return nil, fmt.Errorf("signer: chain id required")
	}
	if !common.IsHexAddress(verifyingContract) {
		return nil, fmt.Errorf("signer: invalid verifying contract %q", verifyingContract)
	}
	s := &Signer{
		key:               key,
		address:           ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:           chainID,
		verifyingContract: common.HexToAddress(verifyingContract),
		nowFn:             time.Now,
	}
	s.domainSeparator = s.hashDomain()
	return s, nil
}

// Address returns the oracle signing identity the contract checks recovered
// signatures against.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID reports the chain the signer is bound to.
func (s *Signer) ChainID() uint64 {
	return s.chainID
}

// Sign attests that taskID was completed for tokenID under the given nonce,
// stamping the attestation with the current unix time.
func (s *Signer) Sign(tokenID uint64, taskID string, nonce uint64) (Attestation, error) {
	return s.SignAt(tokenID, taskID, nonce, s.nowFn().Unix())
}

// SignAt is Sign with an explicit issuedAt, giving deterministic digests for
// replays of the same inputs.
func (s *Signer) SignAt(tokenID uint64, taskID string, nonce uint64, issuedAt int64) (Attestation, error) {
	digest := s.digest(tokenID, taskID, nonce, issuedAt)
	sig, err := ethcrypto.Sign(digest[:], s.key)
	if err != nil {
		return Attestation{}, fmt.Errorf("signer: sign: %w", err)
	}
	// Contracts expect the recovery id as 27/28 per eth_sign convention.
	sig[64] += 27
	return Attestation{Signature: sig, Digest: digest, IssuedAt: issuedAt}, nil
}

// Verify recomputes the digest from the supplied inputs, including the stored
// issuedAt, and reports whether the signature recovers to the oracle address.
// It is side-effect free.
func (s *Signer) Verify(tokenID uint64, taskID string, nonce uint64, issuedAt int64, sig []byte) bool {
	if len(sig) != 65 {
		return false
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	digest := s.digest(tokenID, taskID, nonce, issuedAt)
	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return false
	}
	return ethcrypto.PubkeyToAddress(*pub) == s.address
}

// Digest exposes the typed-data digest without signing, for auditing.
func (s *Signer) Digest(tokenID uint64, taskID string, nonce uint64, issuedAt int64) [32]byte {
	return s.digest(tokenID, taskID, nonce, issuedAt)
}

func (s *Signer) hashDomain() [32]byte {
	var sep [32]byte
	encoded := make([]byte, 0, 5*32)
	encoded = append(encoded, domainTypeHash...)
	encoded = append(encoded, ethcrypto.Keccak256([]byte(DomainName))...)
	encoded = append(encoded, ethcrypto.Keccak256([]byte(DomainVersion))...)
	encoded = append(encoded, uint256Word(s.chainID)...)
	encoded = append(encoded, common.LeftPadBytes(s.verifyingContract.Bytes(), 32)...)
	copy(sep[:], ethcrypto.Keccak256(encoded))
	return sep
}

func (s *Signer) digest(tokenID uint64, taskID string, nonce uint64, issuedAt int64) [32]byte {
	taskDigest := tasks.KeyDigest(taskID)

	encoded := make([]byte, 0, 5*32)
	encoded = append(encoded, messageTypeHash...)
	encoded = append(encoded, uint256Word(tokenID)...)
	encoded = append(encoded, taskDigest[:]...)
	encoded = append(encoded, uint256Word(uint64(issuedAt))...)
	encoded = append(encoded, uint256Word(nonce)...)
	structHash := ethcrypto.Keccak256(encoded)

	preimage := make([]byte, 0, 2+2*32)
	preimage = append(preimage, 0x19, 0x01)
	preimage = append(preimage, s.domainSeparator[:]...)
	preimage = append(preimage, structHash...)

	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256(preimage))
	return digest
}

func uint256Word(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}
