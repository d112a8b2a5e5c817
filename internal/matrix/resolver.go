package matrix

import (
	"context"
	"fmt"

	"matrix/internal/domain"
	pkgerrors "matrix/pkg/errors"
)

// ChainReader is the read-only lookup the resolver walks.
type ChainReader interface {
	GetParticipant(ctx context.Context, id int64) (*domain.Participant, error)
	OwnsTier(ctx context.Context, ownerID int64, tier int) (bool, error)
}

// Resolver finds the nearest upline that owns a table for a tier.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveOwner starts at the participant's referrer, not the participant, and
// walks upward until a candidate owns a table for tier. A missing upline or a
// revisited id falls back to the root. A root without the table is fatal.
func (r *Resolver) ResolveOwner(ctx context.Context, tx ChainReader, participantID int64, tier int) (int64, error) {
	if !domain.ValidTier(tier) {
		return 0, fmt.Errorf("%w: %d", pkgerrors.ErrInvalidTier, tier)
	}
	p, err := tx.GetParticipant(ctx, participantID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, fmt.Sprintf("resolve owner for participant %d", participantID))
	}

	seen := map[int64]struct{}{participantID: {}}
	candidate := p.Upline()
	if candidate == 0 {
		candidate = domain.RootParticipantID
	}

	for {
		if _, visited := seen[candidate]; visited {
			candidate = domain.RootParticipantID
		}
		seen[candidate] = struct{}{}

		owns, err := tx.OwnsTier(ctx, candidate, tier)
		if err != nil {
			return 0, err
		}
		if owns {
			return candidate, nil
		}
		if candidate == domain.RootParticipantID {
			return 0, fmt.Errorf("%w: tier %d above participant %d", pkgerrors.ErrNoEligibleTable, tier, participantID)
		}

		c, err := tx.GetParticipant(ctx, candidate)
		if err != nil {
			return 0, pkgerrors.Wrap(err, fmt.Sprintf("walk upline %d", candidate))
		}
		candidate = c.Upline()
		if candidate == 0 {
			candidate = domain.RootParticipantID
		}
	}
}
