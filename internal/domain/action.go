package domain

// ActionType identifies a monetized action in the pricing catalog.
type ActionType string

const (
	ActionLifetimeReading ActionType = "lifetime_reading"
	ActionAnnualReading   ActionType = "annual_reading"
	ActionComparison      ActionType = "compatibility_comparison"
	ActionSectionUnlock   ActionType = "section_unlock"
)

// Valid reports whether the action type is a known catalog entry.
func (t ActionType) Valid() bool {
	switch t {
	case ActionLifetimeReading, ActionAnnualReading, ActionComparison, ActionSectionUnlock:
		return true
	default:
		return false
	}
}

// PriceableAction is a pricing catalog entry. The catalog is read-only to
// this core; an external admin surface maintains it.
type PriceableAction struct {
	Type       ActionType
	CreditCost int // Cost to create the artifact
	UnlockCost int // Per-section unlock cost (section_unlock only)
}

// DefaultCatalog returns the seed pricing catalog.
func DefaultCatalog() []PriceableAction {
	return []PriceableAction{
		{Type: ActionLifetimeReading, CreditCost: 2},
		{Type: ActionAnnualReading, CreditCost: 1},
		{Type: ActionComparison, CreditCost: 2},
		{Type: ActionSectionUnlock, CreditCost: 0, UnlockCost: 1},
	}
}
