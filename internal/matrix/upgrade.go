package matrix

import (
	"context"

	"matrix/internal/domain"
	"matrix/internal/repository"
	pkgerrors "matrix/pkg/errors"
)

// MaybeUpgrade activates nextTier for the owner when their balance covers it
// and returns the placement of that activation. Owning the tier already, or
// not being able to afford it, is not an error and yields no follow-up.
func (e *Engine) MaybeUpgrade(ctx context.Context, tx repository.Tx, c *Cascade, f *domain.Fill, ownerID int64, nextTier int) (*domain.Fill, error) {
	owns, err := tx.OwnsTier(ctx, ownerID, nextTier)
	if err != nil {
		return nil, err
	}
	if owns {
		return nil, nil
	}

	price := domain.TierPrice(nextTier)
	amount, err := e.ActivateTier(ctx, tx, c, ownerID, nextTier, price, domain.RevenueUpgradeCommission, domain.RevenueUpgradeFee)
	if pkgerrors.Is(err, pkgerrors.ErrInsufficientBalance) {
		e.metrics.RecordUpgrade(nextTier, "unaffordable")
		e.logger.Info("auto-upgrade skipped, balance too low", map[string]interface{}{
			"owner_id": ownerID,
			"tier":     nextTier,
			"cost":     domain.TierCost(nextTier).String(),
		})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	owner, err := e.resolver.ResolveOwner(ctx, tx, ownerID, nextTier)
	if err != nil {
		return nil, err
	}

	e.metrics.RecordUpgrade(nextTier, "activated")
	c.notify(domain.Notification{
		Kind:          domain.NotifyAutoUpgrade,
		ParticipantID: ownerID,
		Tier:          nextTier,
		Amount:        price,
		RelatedID:     owner,
	})
	return f.Next(owner, nextTier, ownerID, amount, domain.OriginAutoUpgrade), nil
}
