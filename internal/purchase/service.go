// Package purchase turns confirmed tier purchases into placement cascades.
package purchase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"matrix/internal/domain"
	"matrix/internal/matrix"
	"matrix/internal/notification"
	"matrix/internal/repository"
	pkgerrors "matrix/pkg/errors"
	"matrix/pkg/logger"
	"matrix/pkg/validator"
)

type Service struct {
	store     repository.Store
	engine    *matrix.Engine
	publisher notification.Publisher
	validator *validator.Validator
	logger    logger.Logger
	now       func() time.Time
}

func NewService(store repository.Store, engine *matrix.Engine, publisher notification.Publisher, log logger.Logger) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		publisher: publisher,
		validator: validator.New(),
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type Result struct {
	EventID       uuid.UUID             `json:"event_id"`
	BuyerID       int64                 `json:"buyer_id"`
	Tier          int                   `json:"tier"`
	Gross         domain.Money          `json:"gross"`
	Placed        domain.Money          `json:"placed"`
	Hops          int                   `json:"hops"`
	Notifications []domain.Notification `json:"notifications"`
}

// Purchase activates the tier for the buyer and places them into the matrix.
// The whole cascade commits or rolls back as one; notifications are published
// only after commit.
func (s *Service) Purchase(ctx context.Context, event *domain.PurchaseEvent) (*Result, error) {
	if err := s.validate(event); err != nil {
		return nil, err
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	gross := event.GrossAmount
	if gross == 0 {
		gross = domain.TierPrice(event.Tier)
	}

	cascade := s.engine.NewCascade(event.EventID)
	var placed domain.Money
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetParticipant(ctx, event.BuyerID); err != nil {
			return err
		}
		if err := tx.MarkEventProcessed(ctx, &domain.ProcessedEvent{
			EventID:     event.EventID,
			BuyerID:     event.BuyerID,
			Tier:        event.Tier,
			ProcessedAt: s.now(),
		}); err != nil {
			return err
		}
		if err := checkEligible(ctx, tx, event.BuyerID, event.Tier); err != nil {
			return err
		}

		amount, err := s.engine.ActivateTier(ctx, tx, cascade, event.BuyerID, event.Tier, gross, domain.RevenuePurchaseCommission, domain.RevenuePurchaseFee)
		if err != nil {
			return err
		}
		placed = amount
		return s.engine.Place(ctx, tx, cascade, event.BuyerID, event.Tier, amount, domain.OriginPurchase)
	})
	if err != nil {
		fields := map[string]interface{}{
			"event_id": event.EventID.String(),
			"buyer_id": event.BuyerID,
			"tier":     event.Tier,
			"error":    err.Error(),
		}
		if pkgerrors.IsFatal(err) {
			s.logger.Error("Purchase cascade aborted", fields)
		} else {
			s.logger.Warn("Purchase rejected", fields)
		}
		return nil, err
	}

	s.logger.Info("Purchase placed", map[string]interface{}{
		"event_id": event.EventID.String(),
		"buyer_id": event.BuyerID,
		"tier":     event.Tier,
		"gross":    gross.String(),
		"placed":   placed.String(),
		"hops":     cascade.Hops,
	})

	if err := s.publisher.Publish(ctx, cascade.Notifications); err != nil {
		s.logger.Warn("Failed to publish notifications", map[string]interface{}{
			"event_id": event.EventID.String(),
			"count":    len(cascade.Notifications),
			"error":    err.Error(),
		})
	}

	return &Result{
		EventID:       event.EventID,
		BuyerID:       event.BuyerID,
		Tier:          event.Tier,
		Gross:         gross,
		Placed:        placed,
		Hops:          cascade.Hops,
		Notifications: cascade.Notifications,
	}, nil
}

func (s *Service) validate(event *domain.PurchaseEvent) error {
	for _, field := range s.validator.FailedFields(event) {
		switch field {
		case "Tier":
			return fmt.Errorf("%w: %d", pkgerrors.ErrInvalidTier, event.Tier)
		case "BuyerID":
			return fmt.Errorf("%w: %d", pkgerrors.ErrParticipantNotFound, event.BuyerID)
		default:
			return fmt.Errorf("%w: %s", pkgerrors.ErrInvalidAmount, field)
		}
	}
	if event.GrossAmount != 0 && event.GrossAmount != domain.TierPrice(event.Tier) {
		return fmt.Errorf("%w: tier %d costs %s, got %s", pkgerrors.ErrInvalidAmount, event.Tier, domain.TierPrice(event.Tier), event.GrossAmount)
	}
	return nil
}

// checkEligible rejects re-buying a tier and skipping one.
func checkEligible(ctx context.Context, tx repository.Tx, buyerID int64, tier int) error {
	owned, err := tx.OwnsTier(ctx, buyerID, tier)
	if err != nil {
		return err
	}
	if owned {
		return fmt.Errorf("%w: participant %d tier %d", pkgerrors.ErrTierAlreadyOwned, buyerID, tier)
	}
	if tier == 1 {
		return nil
	}
	prev, err := tx.OwnsTier(ctx, buyerID, tier-1)
	if err != nil {
		return err
	}
	if !prev {
		return fmt.Errorf("%w: participant %d needs tier %d", pkgerrors.ErrPreviousTierRequired, buyerID, tier-1)
	}
	return nil
}
