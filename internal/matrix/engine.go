// Package matrix places tier purchases into owners' four-slot tables and runs
// the payouts, freezes, upgrades and cycles each placement triggers.
package matrix

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"matrix/internal/domain"
	"matrix/internal/ledger"
	"matrix/internal/metrics"
	"matrix/internal/repository"
	pkgerrors "matrix/pkg/errors"
	"matrix/pkg/logger"
)

const (
	DefaultMaxDepth    = 500
	DefaultSlotRetries = 4
)

type Options struct {
	// MaxDepth bounds the number of hops in one cascade.
	MaxDepth int
	// SlotRetries bounds how often a lost slot race is retried against a fresh read.
	SlotRetries int
}

type Engine struct {
	resolver    *Resolver
	ledger      *ledger.Service
	metrics     *metrics.EngineMetrics
	logger      logger.Logger
	maxDepth    int
	slotRetries int
	now         func() time.Time
}

// NewEngine builds an engine. m may be nil.
func NewEngine(l *ledger.Service, m *metrics.EngineMetrics, log logger.Logger, opts Options) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.SlotRetries <= 0 {
		opts.SlotRetries = DefaultSlotRetries
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		resolver:    NewResolver(),
		ledger:      l,
		metrics:     m,
		logger:      log,
		maxDepth:    opts.MaxDepth,
		slotRetries: opts.SlotRetries,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// Cascade collects what one purchase caused. Notifications are only meant to
// leave the process after the surrounding transaction commits.
type Cascade struct {
	EventID       uuid.UUID
	Hops          int
	Notifications []domain.Notification
	now           func() time.Time
}

func (e *Engine) NewCascade(eventID uuid.UUID) *Cascade {
	return &Cascade{EventID: eventID, now: e.now}
}

func (c *Cascade) notify(n domain.Notification) {
	n.ID = uuid.New()
	n.EventID = c.EventID
	n.CreatedAt = c.now()
	c.Notifications = append(c.Notifications, n)
}

// FillSlot places fill and every hop it causes. Each hop yields at most one
// follow-up, so the cascade is a chain walked until nothing remains. Any error
// leaves the caller's transaction to be rolled back.
func (e *Engine) FillSlot(ctx context.Context, tx repository.Tx, c *Cascade, fill *domain.Fill) error {
	if !domain.ValidTier(fill.Tier) {
		return fmt.Errorf("%w: %d", pkgerrors.ErrInvalidTier, fill.Tier)
	}
	if fill.Amount < 0 {
		return fmt.Errorf("%w: %s", pkgerrors.ErrInvalidAmount, fill.Amount)
	}
	for next := fill; next != nil; {
		if err := ctx.Err(); err != nil {
			return err
		}
		if next.Depth >= e.maxDepth {
			e.metrics.RecordFailure("max_depth")
			e.logger.Error("placement depth ceiling reached", map[string]interface{}{
				"event_id": next.EventID.String(),
				"owner_id": next.OwnerID,
				"tier":     next.Tier,
				"depth":    next.Depth,
			})
			return fmt.Errorf("%w: depth %d at owner %d tier %d", pkgerrors.ErrMaxRecursionExceeded, next.Depth, next.OwnerID, next.Tier)
		}
		c.Hops++

		follow, err := e.step(ctx, tx, c, next)
		if err != nil {
			return err
		}
		next = follow
	}
	e.metrics.ObserveCascade(c.Hops)
	return nil
}

// step runs one hop and returns the hop it causes, if any.
func (e *Engine) step(ctx context.Context, tx repository.Tx, c *Cascade, f *domain.Fill) (*domain.Fill, error) {
	table, err := tx.GetTable(ctx, f.OwnerID, f.Tier)
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.ErrTableNotFound) {
			return nil, err
		}
		if f.OwnerID == domain.RootParticipantID {
			return nil, fmt.Errorf("%w: tier %d", pkgerrors.ErrRootTableMissing, f.Tier)
		}
		return e.delegate(ctx, tx, c, f)
	}

	slot, err := e.occupy(ctx, tx, table, f)
	if err != nil {
		return nil, err
	}
	if slot == 0 {
		if f.OwnerID == domain.RootParticipantID {
			return nil, fmt.Errorf("%w: root table for tier %d is full", pkgerrors.ErrSlotConflict, f.Tier)
		}
		return e.delegate(ctx, tx, c, f)
	}

	e.metrics.RecordFill(f.Tier, slot, string(f.Origin))
	e.logger.Debug("slot filled", map[string]interface{}{
		"event_id":  f.EventID.String(),
		"owner_id":  f.OwnerID,
		"member_id": f.MemberID,
		"tier":      f.Tier,
		"slot":      slot,
		"amount":    f.Amount.String(),
		"origin":    string(f.Origin),
		"depth":     f.Depth,
	})
	return e.applySlotPolicy(ctx, tx, c, f, slot)
}

// occupy claims the lowest empty slot. It returns 0 when the table is full.
func (e *Engine) occupy(ctx context.Context, tx repository.Tx, table *domain.MatrixTable, f *domain.Fill) (int, error) {
	for attempt := 0; ; attempt++ {
		slot := table.NextSlot()
		if slot == 0 {
			return 0, nil
		}
		err := tx.OccupySlot(ctx, f.OwnerID, f.Tier, slot, f.MemberID)
		if err == nil {
			return slot, nil
		}
		if !pkgerrors.Is(err, pkgerrors.ErrSlotConflict) || attempt+1 >= e.slotRetries {
			return 0, pkgerrors.Wrap(err, fmt.Sprintf("occupy slot %d of owner %d tier %d", slot, f.OwnerID, f.Tier))
		}
		e.logger.Warn("slot race lost, re-reading table", map[string]interface{}{
			"owner_id": f.OwnerID,
			"tier":     f.Tier,
			"slot":     slot,
			"attempt":  attempt + 1,
		})
		if table, err = tx.GetTable(ctx, f.OwnerID, f.Tier); err != nil {
			return 0, err
		}
	}
}

// delegate hands the fill to the nearest upline owning the tier.
func (e *Engine) delegate(ctx context.Context, tx repository.Tx, c *Cascade, f *domain.Fill) (*domain.Fill, error) {
	owner, err := e.resolver.ResolveOwner(ctx, tx, f.OwnerID, f.Tier)
	if err != nil {
		return nil, err
	}
	c.notify(domain.Notification{
		Kind:          domain.NotifySpillover,
		ParticipantID: owner,
		Tier:          f.Tier,
		Amount:        f.Amount,
		RelatedID:     f.MemberID,
	})
	return f.Delegate(owner), nil
}

// Place starts the cascade for a member who just activated tier.
func (e *Engine) Place(ctx context.Context, tx repository.Tx, c *Cascade, memberID int64, tier int, amount domain.Money, origin domain.FillOrigin) error {
	owner, err := e.resolver.ResolveOwner(ctx, tx, memberID, tier)
	if err != nil {
		return err
	}
	return e.FillSlot(ctx, tx, c, &domain.Fill{
		EventID:  c.EventID,
		OwnerID:  owner,
		Tier:     tier,
		MemberID: memberID,
		Amount:   amount,
		Origin:   origin,
	})
}

// ActivateTier debits the tier cost from the participant, creates the empty
// table, logs commission and fee revenue and counts the tier as active. It
// returns the amount to place into the matrix.
func (e *Engine) ActivateTier(ctx context.Context, tx repository.Tx, c *Cascade, participantID int64, tier int, gross domain.Money, commissionKind, feeKind domain.RevenueKind) (domain.Money, error) {
	if err := tx.DebitBalance(ctx, participantID, gross+domain.FlatFee); err != nil {
		return 0, err
	}
	if err := tx.CreateTable(ctx, domain.NewMatrixTable(participantID, tier, e.now())); err != nil {
		return 0, err
	}

	commission := domain.Commission(gross)
	if err := e.ledger.RecordRevenue(ctx, tx, c.EventID, participantID, tier, commission, commissionKind); err != nil {
		return 0, err
	}
	if err := e.ledger.RecordRevenue(ctx, tx, c.EventID, participantID, tier, domain.FlatFee, feeKind); err != nil {
		return 0, err
	}
	if err := tx.IncrementActiveTiers(ctx, participantID); err != nil {
		return 0, err
	}

	c.notify(domain.Notification{
		Kind:          domain.NotifyTierActivated,
		ParticipantID: participantID,
		Tier:          tier,
		Amount:        gross,
	})
	return gross - commission, nil
}
