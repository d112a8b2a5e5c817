// Package domain holds the matrix entities shared by the engine, the services and the stores.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a member of the referral graph.
type Participant struct {
	ID          int64     `json:"id" db:"id"`
	ReferrerID  *int64    `json:"referrer_id,omitempty" db:"referrer_id"`
	Balance     Money     `json:"balance" db:"balance"`
	TotalEarned Money     `json:"total_earned" db:"total_earned"`
	ActiveTiers int       `json:"active_tiers" db:"active_tiers"`
	TotalCycles int       `json:"total_cycles" db:"total_cycles"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// IsRoot reports whether p is the root participant.
func (p *Participant) IsRoot() bool {
	return p.ID == RootParticipantID
}

// Upline returns the referrer id, or zero when the participant has none.
func (p *Participant) Upline() int64 {
	if p.ReferrerID == nil {
		return 0
	}
	return *p.ReferrerID
}

// TableState is the fill state of a matrix table.
type TableState string

const (
	TableStateEmpty   TableState = "empty"
	TableStateFilling TableState = "filling"
	TableStateFull    TableState = "full"
)

// MatrixTable is the four-slot table a participant owns for one tier.
// An empty slot holds zero; participant ids start at 1.
type MatrixTable struct {
	OwnerID      int64                `json:"owner_id"`
	Tier         int                  `json:"tier"`
	Slots        [SlotsPerTable]int64 `json:"slots"`
	FrozenAmount Money                `json:"frozen_amount"`
	Cycle        int                  `json:"cycle"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NewMatrixTable returns an empty table at cycle 0.
func NewMatrixTable(ownerID int64, tier int, now time.Time) *MatrixTable {
	return &MatrixTable{
		OwnerID:   ownerID,
		Tier:      tier,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Occupied returns the number of filled slots.
func (t *MatrixTable) Occupied() int {
	n := 0
	for _, s := range t.Slots {
		if s != 0 {
			n++
		}
	}
	return n
}

// NextSlot returns the 1-based index of the lowest empty slot, or 0 when the table is full.
func (t *MatrixTable) NextSlot() int {
	for i, s := range t.Slots {
		if s == 0 {
			return i + 1
		}
	}
	return 0
}

// IsFull reports whether all slots are occupied.
func (t *MatrixTable) IsFull() bool {
	return t.NextSlot() == 0
}

// HasFrozen reports whether a slot-2 amount is being held.
func (t *MatrixTable) HasFrozen() bool {
	return t.FrozenAmount > 0
}

func (t *MatrixTable) State() TableState {
	switch t.Occupied() {
	case 0:
		return TableStateEmpty
	case SlotsPerTable:
		return TableStateFull
	default:
		return TableStateFilling
	}
}

// PayoutKind classifies a ledger credit.
type PayoutKind string

const (
	PayoutSlot1         PayoutKind = "slot_1"
	PayoutSlot2         PayoutKind = "slot_2"
	PayoutSlot3         PayoutKind = "slot_3"
	PayoutFrozenRelease PayoutKind = "frozen_release"
	PayoutRootCycle     PayoutKind = "root_cycle"
)

// PayoutRecord is an immutable log of one ledger credit.
type PayoutRecord struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	EventID     uuid.UUID  `json:"event_id" db:"event_id"`
	SourceID    int64      `json:"source_id" db:"source_id"`
	RecipientID int64      `json:"recipient_id" db:"recipient_id"`
	Tier        int        `json:"tier" db:"tier"`
	Slot        int        `json:"slot" db:"slot"`
	Amount      Money      `json:"amount" db:"amount"`
	Kind        PayoutKind `json:"kind" db:"kind"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// RevenueKind classifies a platform revenue entry.
type RevenueKind string

const (
	RevenueCreditFee          RevenueKind = "credit_fee"
	RevenuePurchaseCommission RevenueKind = "purchase_commission"
	RevenuePurchaseFee        RevenueKind = "purchase_fee"
	RevenueUpgradeCommission  RevenueKind = "upgrade_commission"
	RevenueUpgradeFee         RevenueKind = "upgrade_fee"
)

// RevenueRecord is an immutable log of a platform-retained fee or commission.
type RevenueRecord struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	EventID       uuid.UUID   `json:"event_id" db:"event_id"`
	ParticipantID int64       `json:"participant_id" db:"participant_id"`
	Tier          int         `json:"tier" db:"tier"`
	Amount        Money       `json:"amount" db:"amount"`
	Kind          RevenueKind `json:"kind" db:"kind"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// PurchaseEvent is a confirmed first-time tier purchase handed over by the payment layer.
// A zero GrossAmount means the tier price.
type PurchaseEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	BuyerID     int64     `json:"buyer_id" validate:"required,gt=0"`
	Tier        int       `json:"tier" validate:"tier"`
	GrossAmount Money     `json:"gross_amount" validate:"gte=0"`
}

// ProcessedEvent marks a purchase event whose cascade has been committed.
type ProcessedEvent struct {
	EventID     uuid.UUID `json:"event_id" db:"event_id"`
	BuyerID     int64     `json:"buyer_id" db:"buyer_id"`
	Tier        int       `json:"tier" db:"tier"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}

// FillOrigin says why a placement hop exists.
type FillOrigin string

const (
	OriginPurchase    FillOrigin = "purchase"
	OriginSpillover   FillOrigin = "spillover"
	OriginAutoUpgrade FillOrigin = "auto_upgrade"
	OriginReinjection FillOrigin = "reinjection"
)

// Fill is one placement hop: put MemberID into OwnerID's table for Tier carrying Amount.
type Fill struct {
	EventID  uuid.UUID  `json:"event_id"`
	OwnerID  int64      `json:"owner_id"`
	Tier     int        `json:"tier"`
	MemberID int64      `json:"member_id"`
	Amount   Money      `json:"amount"`
	Depth    int        `json:"depth"`
	Origin   FillOrigin `json:"origin"`
}

// Next derives the follow-up hop caused by this one.
func (f Fill) Next(ownerID int64, tier int, memberID int64, amount Money, origin FillOrigin) *Fill {
	return &Fill{
		EventID:  f.EventID,
		OwnerID:  ownerID,
		Tier:     tier,
		MemberID: memberID,
		Amount:   amount,
		Depth:    f.Depth + 1,
		Origin:   origin,
	}
}

// Delegate moves the same member and amount to another owner's table.
func (f Fill) Delegate(ownerID int64) *Fill {
	return f.Next(ownerID, f.Tier, f.MemberID, f.Amount, OriginSpillover)
}
