package matrix

import (
	"context"

	"matrix/internal/domain"
	"matrix/internal/ledger"
	"matrix/internal/repository"
)

// applySlotPolicy runs what filling slot means for the table owner.
func (e *Engine) applySlotPolicy(ctx context.Context, tx repository.Tx, c *Cascade, f *domain.Fill, slot int) (*domain.Fill, error) {
	switch slot {
	case 1:
		return nil, e.credit(ctx, tx, c, f, slot, f.Amount, domain.PayoutSlot1)
	case 2:
		return nil, e.fillSecond(ctx, tx, c, f)
	case 3:
		return e.fillThird(ctx, tx, c, f)
	default:
		return e.fillFourth(ctx, tx, c, f)
	}
}

// fillSecond pays out only when the owner can already move up; otherwise the
// amount is held until slot 3 fills.
func (e *Engine) fillSecond(ctx context.Context, tx repository.Tx, c *Cascade, f *domain.Fill) error {
	release := f.Tier == domain.TierCount
	if !release {
		owns, err := tx.OwnsTier(ctx, f.OwnerID, f.Tier+1)
		if err != nil {
			return err
		}
		release = owns
	}
	if release {
		return e.credit(ctx, tx, c, f, 2, f.Amount, domain.PayoutSlot2)
	}

	if err := tx.SetFrozen(ctx, f.OwnerID, f.Tier, f.Amount); err != nil {
		return err
	}
	e.metrics.RecordFreeze(f.Tier)
	e.logger.Info("slot 2 amount frozen", map[string]interface{}{
		"owner_id": f.OwnerID,
		"tier":     f.Tier,
		"amount":   f.Amount.String(),
	})
	return nil
}

func (e *Engine) fillThird(ctx context.Context, tx repository.Tx, c *Cascade, f *domain.Fill) (*domain.Fill, error) {
	if err := e.credit(ctx, tx, c, f, 3, f.Amount, domain.PayoutSlot3); err != nil {
		return nil, err
	}

	frozen, err := tx.TakeFrozen(ctx, f.OwnerID, f.Tier)
	if err != nil {
		return nil, err
	}
	if frozen > 0 {
		if err := e.credit(ctx, tx, c, f, 2, frozen, domain.PayoutFrozenRelease); err != nil {
			return nil, err
		}
	}

	if f.Tier == domain.TierCount {
		return nil, nil
	}
	return e.MaybeUpgrade(ctx, tx, c, f, f.OwnerID, f.Tier+1)
}

// fillFourth closes the cycle. The root keeps slot-4 funds; any other owner's
// amount goes back into the matrix through its upline.
func (e *Engine) fillFourth(ctx context.Context, tx repository.Tx, c *Cascade, f *domain.Fill) (*domain.Fill, error) {
	if f.OwnerID == domain.RootParticipantID {
		if err := e.credit(ctx, tx, c, f, 4, f.Amount, domain.PayoutRootCycle); err != nil {
			return nil, err
		}
	}
	return e.CompleteCycle(ctx, tx, c, f)
}

func (e *Engine) credit(ctx context.Context, tx repository.Tx, c *Cascade, f *domain.Fill, slot int, gross domain.Money, kind domain.PayoutKind) error {
	net, err := e.ledger.Credit(ctx, tx, &ledger.CreditRequest{
		EventID:     f.EventID,
		SourceID:    f.MemberID,
		RecipientID: f.OwnerID,
		Tier:        f.Tier,
		Slot:        slot,
		Gross:       gross,
		Kind:        kind,
	})
	if err != nil {
		return err
	}
	if net == 0 {
		return nil
	}

	e.metrics.RecordPayout(f.Tier, string(kind), int64(net))
	c.notify(domain.Notification{
		Kind:          domain.NotifyPayout,
		ParticipantID: f.OwnerID,
		Tier:          f.Tier,
		Amount:        net,
		Slot:          slot,
		RelatedID:     f.MemberID,
	})
	return nil
}
