// Package ledger applies net-of-fee credits and keeps the append-only payout and revenue logs.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"matrix/internal/domain"
	pkgerrors "matrix/pkg/errors"
)

// Tx is the slice of the store the ledger writes through.
type Tx interface {
	CreditEarnings(ctx context.Context, id int64, amount domain.Money) error
	InsertPayout(ctx context.Context, r *domain.PayoutRecord) error
	InsertRevenue(ctx context.Context, r *domain.RevenueRecord) error
}

type Service struct {
	fee domain.Money
	now func() time.Time
}

func NewService() *Service {
	return &Service{
		fee: domain.FlatFee,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreditRequest describes one gross credit to a table owner.
type CreditRequest struct {
	EventID     uuid.UUID
	SourceID    int64
	RecipientID int64
	Tier        int
	Slot        int
	Gross       domain.Money
	Kind        domain.PayoutKind
}

// Credit pays gross minus the flat fee to the recipient, appends the payout
// record and the fee revenue record, and returns the net amount. When gross does
// not exceed the fee nothing is written and zero is returned.
func (s *Service) Credit(ctx context.Context, tx Tx, req *CreditRequest) (domain.Money, error) {
	net := req.Gross - s.fee
	if net <= 0 {
		return 0, nil
	}

	if err := tx.CreditEarnings(ctx, req.RecipientID, net); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to credit recipient")
	}

	now := s.now()
	if err := tx.InsertPayout(ctx, &domain.PayoutRecord{
		ID:          uuid.New(),
		EventID:     req.EventID,
		SourceID:    req.SourceID,
		RecipientID: req.RecipientID,
		Tier:        req.Tier,
		Slot:        req.Slot,
		Amount:      net,
		Kind:        req.Kind,
		CreatedAt:   now,
	}); err != nil {
		return 0, err
	}

	if err := s.RecordRevenue(ctx, tx, req.EventID, req.RecipientID, req.Tier, s.fee, domain.RevenueCreditFee); err != nil {
		return 0, err
	}
	return net, nil
}

// RecordRevenue appends a platform revenue entry. Non-positive amounts are skipped.
func (s *Service) RecordRevenue(ctx context.Context, tx Tx, eventID uuid.UUID, participantID int64, tier int, amount domain.Money, kind domain.RevenueKind) error {
	if amount <= 0 {
		return nil
	}
	return tx.InsertRevenue(ctx, &domain.RevenueRecord{
		ID:            uuid.New(),
		EventID:       eventID,
		ParticipantID: participantID,
		Tier:          tier,
		Amount:        amount,
		Kind:          kind,
		CreatedAt:     s.now(),
	})
}
