package domain

import "github.com/shopspring/decimal"

const (
	// TierCount is the number of purchasable tiers.
	TierCount = 12
	// SlotsPerTable is the number of slots in every matrix table.
	SlotsPerTable = 4
	// RootParticipantID owns every tier and terminates upward propagation.
	RootParticipantID int64 = 1
)

var (
	// BasePrice is the price of tier 1.
	BasePrice = NewMoney(10)
	// FlatFee is withheld from every ledger credit and charged on every tier purchase.
	FlatFee Money = 50
	// CommissionRate is the platform share of a tier price.
	CommissionRate = decimal.New(10, -2)
)

// ValidTier reports whether tier is within 1..TierCount.
func ValidTier(tier int) bool {
	return tier >= 1 && tier <= TierCount
}

// TierPrice returns BasePrice × 2^(tier-1). It returns zero for an invalid tier.
func TierPrice(tier int) Money {
	if !ValidTier(tier) {
		return 0
	}
	return BasePrice * Money(int64(1)<<(tier-1))
}

// TierCost is what a participant pays to activate a tier: its price plus the flat fee.
func TierCost(tier int) Money {
	return TierPrice(tier) + FlatFee
}

// Commission is the platform share of gross.
func Commission(gross Money) Money {
	return gross.MulRate(CommissionRate)
}

// NetOfCommission is the part of gross that is placed into the matrix.
func NetOfCommission(gross Money) Money {
	return gross - Commission(gross)
}
