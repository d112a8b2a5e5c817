package sqlstore

import (
	"context"

	"github.com/google/uuid"

	"matrix/internal/domain"
	pkgerrors "matrix/pkg/errors"
)

func (r *txRepo) InsertPayout(ctx context.Context, rec *domain.PayoutRecord) error {
	query := `
		INSERT INTO payout_records (
			id, event_id, source_id, recipient_id, tier, slot, amount, kind, created_at
		) VALUES (
			:id, :event_id, :source_id, :recipient_id, :tier, :slot, :amount, :kind, :created_at
		)
	`
	_, err := r.tx.NamedExecContext(ctx, query, rec)
	return pkgerrors.Wrap(err, "failed to insert payout record")
}

func (r *txRepo) InsertRevenue(ctx context.Context, rec *domain.RevenueRecord) error {
	query := `
		INSERT INTO platform_revenue (
			id, event_id, participant_id, tier, amount, kind, created_at
		) VALUES (
			:id, :event_id, :participant_id, :tier, :amount, :kind, :created_at
		)
	`
	_, err := r.tx.NamedExecContext(ctx, query, rec)
	return pkgerrors.Wrap(err, "failed to insert revenue record")
}

func (r *txRepo) ListPayouts(ctx context.Context, recipientID int64) ([]*domain.PayoutRecord, error) {
	var records []*domain.PayoutRecord
	query := r.q(`
		SELECT id, event_id, source_id, recipient_id, tier, slot, amount, kind, created_at
		FROM payout_records WHERE recipient_id = ? ORDER BY created_at, slot
	`)
	if err := r.tx.SelectContext(ctx, &records, query, recipientID); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list payouts")
	}
	return records, nil
}

func (r *txRepo) ListRevenueByEvent(ctx context.Context, eventID uuid.UUID) ([]*domain.RevenueRecord, error) {
	var records []*domain.RevenueRecord
	query := r.q(`
		SELECT id, event_id, participant_id, tier, amount, kind, created_at
		FROM platform_revenue WHERE event_id = ? ORDER BY created_at
	`)
	if err := r.tx.SelectContext(ctx, &records, query, eventID); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list revenue")
	}
	return records, nil
}

func (r *txRepo) MarkEventProcessed(ctx context.Context, e *domain.ProcessedEvent) error {
	query := `
		INSERT INTO processed_events (event_id, buyer_id, tier, processed_at)
		VALUES (:event_id, :buyer_id, :tier, :processed_at)
		ON CONFLICT (event_id) DO NOTHING
	`
	res, err := r.tx.NamedExecContext(ctx, query, e)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to mark event processed")
	}
	return expectOneRow(res, pkgerrors.ErrEventAlreadyProcessed)
}
