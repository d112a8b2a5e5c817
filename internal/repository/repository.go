// Package repository defines the storage contract of the matrix engine.
//
// A whole purchase cascade runs inside one Store.WithinTx call. Implementations
// must make every slot assignment a conditional write so two fills can never
// take the same slot, and must discard all writes of a failed transaction.
package repository

import (
	"context"

	"github.com/google/uuid"

	"matrix/internal/domain"
)

type Store interface {
	// WithinTx runs fn in one transaction, committing only when fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

type Tx interface {
	ParticipantRepository
	TableRepository
	RecordRepository
}

type ParticipantRepository interface {
	CreateParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, id int64) (*domain.Participant, error)
	// CreditBalance adds external funds; it does not count as earnings.
	CreditBalance(ctx context.Context, id int64, amount domain.Money) error
	// CreditEarnings adds to both balance and lifetime earnings.
	CreditEarnings(ctx context.Context, id int64, amount domain.Money) error
	// DebitBalance fails with ErrInsufficientBalance rather than going negative.
	DebitBalance(ctx context.Context, id int64, amount domain.Money) error
	IncrementActiveTiers(ctx context.Context, id int64) error
	IncrementCycles(ctx context.Context, id int64) error
}

type TableRepository interface {
	CreateTable(ctx context.Context, t *domain.MatrixTable) error
	GetTable(ctx context.Context, ownerID int64, tier int) (*domain.MatrixTable, error)
	ListTables(ctx context.Context, ownerID int64) ([]*domain.MatrixTable, error)
	OwnsTier(ctx context.Context, ownerID int64, tier int) (bool, error)
	// OccupySlot sets slot to memberID only if it is empty and every lower slot is
	// occupied, failing with ErrSlotConflict otherwise.
	OccupySlot(ctx context.Context, ownerID int64, tier, slot int, memberID int64) error
	SetFrozen(ctx context.Context, ownerID int64, tier int, amount domain.Money) error
	// TakeFrozen clears the frozen amount and returns what was held.
	TakeFrozen(ctx context.Context, ownerID int64, tier int) (domain.Money, error)
	// ResetTable empties a full table and returns its new cycle number.
	ResetTable(ctx context.Context, ownerID int64, tier int) (int, error)
}

type RecordRepository interface {
	InsertPayout(ctx context.Context, r *domain.PayoutRecord) error
	InsertRevenue(ctx context.Context, r *domain.RevenueRecord) error
	ListPayouts(ctx context.Context, recipientID int64) ([]*domain.PayoutRecord, error)
	ListRevenueByEvent(ctx context.Context, eventID uuid.UUID) ([]*domain.RevenueRecord, error)
	// MarkEventProcessed fails with ErrEventAlreadyProcessed on a duplicate event id.
	MarkEventProcessed(ctx context.Context, e *domain.ProcessedEvent) error
}
