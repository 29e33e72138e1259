package verify

import (
	"context"
	"fmt"

	"bondoracle/referral"
)

// ReferralVerifier accepts a claim when the supplied code exists in the
// ledger.
type ReferralVerifier struct {
	ledger referral.Ledger
}

// NewReferralVerifier wraps a ledger.
func NewReferralVerifier(ledger referral.Ledger) *ReferralVerifier {
	return &ReferralVerifier{ledger: ledger}
}

func (v *ReferralVerifier) CheckClaim(ctx context.Context, claim Claim) (bool, error) {
	if claim.Proof.ReferralCode == "" {
		return false, nil
	}
	ok, err := v.ledger.VerifyCode(ctx, claim.Proof.ReferralCode)
	if err != nil {
		return false, fmt.Errorf("%w: referral ledger: %v", ErrUnavailable, err)
	}
	return ok, nil
}
