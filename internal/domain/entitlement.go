package domain

// ChargeMode is how a monetized action will be paid for. Resolution order
// is fixed: bypass, then trial, then cache reuse, then paid. Bypass and
// trial are decided before the balance is even read, so a zero-balance
// unlimited account still succeeds.
type ChargeMode string

const (
	ChargeModeBypass    ChargeMode = "bypass"     // Unlimited tier, charge 0
	ChargeModeFreeTrial ChargeMode = "free_trial" // First action free, trial flag will be claimed
	ChargeModeCacheHit  ChargeMode = "cache_reuse" // Same fingerprint already paid for, charge 0
	ChargeModePaid      ChargeMode = "paid"       // Debit the action cost
)

// ChargesBalance reports whether the mode debits the credit balance.
func (m ChargeMode) ChargesBalance() bool {
	return m == ChargeModePaid
}

// ResolveChargeMode computes the payment mode for an action before any
// external work begins. When the mode is paid and the snapshot balance is
// below cost, it returns an insufficient-credits error so the caller rejects
// without ever invoking the calculation or AI collaborators. The snapshot
// check is advisory; the authoritative predicate runs in the store's
// conditional decrement.
func ResolveChargeMode(acct *Account, cost int, cacheHit bool) (ChargeMode, error) {
	const op = "entitlement.resolve"

	if acct.IsUnlimited() {
		return ChargeModeBypass, nil
	}
	if !acct.FreeTrialUsed {
		return ChargeModeFreeTrial, nil
	}
	if cacheHit {
		return ChargeModeCacheHit, nil
	}
	if cost > 0 && acct.Credits < cost {
		return "", InsufficientCredits(op, cost, acct.Credits)
	}
	return ChargeModePaid, nil
}
