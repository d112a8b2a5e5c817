// Package participant manages the referral graph, external funding and the root bootstrap.
package participant

import (
	"context"
	"fmt"
	"time"

	"matrix/internal/domain"
	"matrix/internal/repository"
	pkgerrors "matrix/pkg/errors"
	"matrix/pkg/logger"
	"matrix/pkg/validator"
)

type Service struct {
	store     repository.Store
	validator *validator.Validator
	logger    logger.Logger
	now       func() time.Time
}

func NewService(store repository.Store, log logger.Logger) *Service {
	return &Service{
		store:     store,
		validator: validator.New(),
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRequest binds a new participant to an existing referrer. The bond never changes.
type RegisterRequest struct {
	ID         int64 `json:"id" validate:"required,gt=1"`
	ReferrerID int64 `json:"referrer_id" validate:"required,gt=0,nefield=ID"`
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*domain.Participant, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidRequest, err)
	}

	now := s.now()
	referrer := req.ReferrerID
	p := &domain.Participant{
		ID:         req.ID,
		ReferrerID: &referrer,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetParticipant(ctx, req.ReferrerID); err != nil {
			return pkgerrors.Wrap(err, fmt.Sprintf("referrer %d", req.ReferrerID))
		}
		return tx.CreateParticipant(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Participant registered", map[string]interface{}{
		"participant_id": p.ID,
		"referrer_id":    referrer,
	})
	return p, nil
}

// Deposit credits externally settled funds. Deposits are not earnings.
func (s *Service) Deposit(ctx context.Context, id int64, amount domain.Money) (*domain.Participant, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit %s", pkgerrors.ErrInvalidAmount, amount)
	}

	var p *domain.Participant
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.CreditBalance(ctx, id, amount); err != nil {
			return err
		}
		var err error
		p, err = tx.GetParticipant(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Deposit credited", map[string]interface{}{
		"participant_id": id,
		"amount":         amount.String(),
		"balance":        p.Balance.String(),
	})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Participant, error) {
	var p *domain.Participant
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) (err error) {
		p, err = tx.GetParticipant(ctx, id)
		return err
	})
	return p, err
}

// Tables lists the participant's tables ordered by tier.
func (s *Service) Tables(ctx context.Context, id int64) ([]*domain.MatrixTable, error) {
	var tables []*domain.MatrixTable
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetParticipant(ctx, id); err != nil {
			return err
		}
		var err error
		tables, err = tx.ListTables(ctx, id)
		return err
	})
	return tables, err
}

func (s *Service) Payouts(ctx context.Context, id int64) ([]*domain.PayoutRecord, error) {
	var records []*domain.PayoutRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) (err error) {
		records, err = tx.ListPayouts(ctx, id)
		return err
	})
	return records, err
}

// SeedRoot creates the root participant and every missing root table. Running
// it again changes nothing.
func (s *Service) SeedRoot(ctx context.Context) error {
	created := 0
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		now := s.now()
		_, err := tx.GetParticipant(ctx, domain.RootParticipantID)
		if pkgerrors.Is(err, pkgerrors.ErrParticipantNotFound) {
			err = tx.CreateParticipant(ctx, &domain.Participant{
				ID:        domain.RootParticipantID,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if err != nil {
			return err
		}

		for tier := 1; tier <= domain.TierCount; tier++ {
			owns, err := tx.OwnsTier(ctx, domain.RootParticipantID, tier)
			if err != nil {
				return err
			}
			if owns {
				continue
			}
			if err := tx.CreateTable(ctx, domain.NewMatrixTable(domain.RootParticipantID, tier, now)); err != nil {
				return err
			}
			if err := tx.IncrementActiveTiers(ctx, domain.RootParticipantID); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Root participant seeded", map[string]interface{}{
		"tables_created": created,
	})
	return nil
}

// ValidateRoot fails unless the root exists and owns a table for every tier.
func (s *Service) ValidateRoot(ctx context.Context) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetParticipant(ctx, domain.RootParticipantID); err != nil {
			return fmt.Errorf("%w: root participant: %v", pkgerrors.ErrRootTableMissing, err)
		}
		for tier := 1; tier <= domain.TierCount; tier++ {
			owns, err := tx.OwnsTier(ctx, domain.RootParticipantID, tier)
			if err != nil {
				return err
			}
			if !owns {
				return fmt.Errorf("%w: tier %d", pkgerrors.ErrRootTableMissing, tier)
			}
		}
		return nil
	})
}
