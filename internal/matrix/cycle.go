package matrix

import (
	"context"

	"matrix/internal/domain"
	"matrix/internal/repository"
)

// CompleteCycle resets the owner's full table and counts the cycle. A non-root
// owner is reinjected one level up carrying the slot-4 amount unchanged.
func (e *Engine) CompleteCycle(ctx context.Context, tx repository.Tx, c *Cascade, f *domain.Fill) (*domain.Fill, error) {
	cycle, err := tx.ResetTable(ctx, f.OwnerID, f.Tier)
	if err != nil {
		return nil, err
	}
	if err := tx.IncrementCycles(ctx, f.OwnerID); err != nil {
		return nil, err
	}

	e.metrics.RecordCycle(f.Tier)
	e.logger.Info("table cycle closed", map[string]interface{}{
		"owner_id": f.OwnerID,
		"tier":     f.Tier,
		"cycle":    cycle,
	})
	c.notify(domain.Notification{
		Kind:          domain.NotifyCycleClosed,
		ParticipantID: f.OwnerID,
		Tier:          f.Tier,
		Amount:        f.Amount,
		Cycle:         cycle,
	})

	if f.OwnerID == domain.RootParticipantID {
		return nil, nil
	}

	upline, err := e.resolver.ResolveOwner(ctx, tx, f.OwnerID, f.Tier)
	if err != nil {
		return nil, err
	}
	c.notify(domain.Notification{
		Kind:          domain.NotifyReinjection,
		ParticipantID: f.OwnerID,
		Tier:          f.Tier,
		Amount:        f.Amount,
		RelatedID:     upline,
	})
	return f.Next(upline, f.Tier, f.OwnerID, f.Amount, domain.OriginReinjection), nil
}
