package domain

import (
	"testing"
)

func TestResolveChargeMode(t *testing.T) {
	testCases := []struct {
		name     string
		tier     Tier
		credits  int
		trialUsed bool
		cost     int
		cacheHit bool
		want     ChargeMode
		wantErr  bool
	}{
		{"unlimited bypasses with zero balance", TierUnlimited, 0, true, 5, false, ChargeModeBypass, false},
		{"unlimited wins over unused trial", TierUnlimited, 0, false, 5, false, ChargeModeBypass, false},
		{"trial before balance read", TierFree, 0, false, 5, false, ChargeModeFreeTrial, false},
		{"trial wins over cache hit", TierFree, 0, false, 5, true, ChargeModeFreeTrial, false},
		{"cache reuse charges nothing", TierFree, 0, true, 5, true, ChargeModeCacheHit, false},
		{"paid with sufficient balance", TierBasic, 5, true, 5, false, ChargeModePaid, false},
		{"paid with exact balance", TierBasic, 2, true, 2, false, ChargeModePaid, false},
		{"insufficient balance rejected", TierBasic, 1, true, 2, false, "", true},
		{"zero cost is paid mode", TierFree, 0, true, 0, false, ChargeModePaid, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			acct := &Account{Tier: tc.tier, Credits: tc.credits, FreeTrialUsed: tc.trialUsed}
			mode, err := ResolveChargeMode(acct, tc.cost, tc.cacheHit)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got mode %q", mode)
				}
				if ErrorCode(err) != EPAYMENT {
					t.Errorf("expected payment error code, got %q", ErrorCode(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mode != tc.want {
				t.Errorf("ResolveChargeMode() = %q, want %q", mode, tc.want)
			}
		})
	}
}

func TestInsufficientCreditsDetail(t *testing.T) {
	err := InsufficientCredits("test.op", 3, 1)

	detail := ErrorDetail(err)
	if detail == nil {
		t.Fatal("expected structured detail")
	}
	if detail["required_credits"] != 3 {
		t.Errorf("required_credits = %v, want 3", detail["required_credits"])
	}
	if detail["available_credits"] != 1 {
		t.Errorf("available_credits = %v, want 1", detail["available_credits"])
	}
	if !IsInsufficientCredits(err) {
		t.Error("IsInsufficientCredits should be true")
	}
}
