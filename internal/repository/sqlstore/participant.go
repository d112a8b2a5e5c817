package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"matrix/internal/domain"
	pkgerrors "matrix/pkg/errors"
)

func (r *txRepo) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	query := `
		INSERT INTO participants (
			id, referrer_id, balance, total_earned, active_tiers, total_cycles, created_at, updated_at
		) VALUES (
			:id, :referrer_id, :balance, :total_earned, :active_tiers, :total_cycles, :created_at, :updated_at
		)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := r.tx.NamedExecContext(ctx, query, p)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create participant")
	}
	return expectOneRow(res, pkgerrors.ErrParticipantExists)
}

func (r *txRepo) GetParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	p := &domain.Participant{}
	query := r.q(`
		SELECT id, referrer_id, balance, total_earned, active_tiers, total_cycles, created_at, updated_at
		FROM participants WHERE id = ?
	`)
	if err := r.tx.GetContext(ctx, p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.ErrParticipantNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to find participant by id")
	}
	return p, nil
}

func (r *txRepo) CreditBalance(ctx context.Context, id int64, amount domain.Money) error {
	query := r.q(`UPDATE participants SET balance = balance + ?, updated_at = ? WHERE id = ?`)
	res, err := r.tx.ExecContext(ctx, query, amount, time.Now().UTC(), id)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to credit balance")
	}
	return expectOneRow(res, pkgerrors.ErrParticipantNotFound)
}

func (r *txRepo) CreditEarnings(ctx context.Context, id int64, amount domain.Money) error {
	query := r.q(`
		UPDATE participants SET
			balance = balance + ?,
			total_earned = total_earned + ?,
			updated_at = ?
		WHERE id = ?
	`)
	res, err := r.tx.ExecContext(ctx, query, amount, amount, time.Now().UTC(), id)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to credit earnings")
	}
	return expectOneRow(res, pkgerrors.ErrParticipantNotFound)
}

func (r *txRepo) DebitBalance(ctx context.Context, id int64, amount domain.Money) error {
	query := r.q(`
		UPDATE participants SET
			balance = balance - ?,
			updated_at = ?
		WHERE id = ? AND balance >= ?
	`)
	res, err := r.tx.ExecContext(ctx, query, amount, time.Now().UTC(), id, amount)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to debit balance")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		if _, err := r.GetParticipant(ctx, id); err != nil {
			return err
		}
		return pkgerrors.ErrInsufficientBalance
	}
	return nil
}

func (r *txRepo) IncrementActiveTiers(ctx context.Context, id int64) error {
	query := r.q(`UPDATE participants SET active_tiers = active_tiers + 1, updated_at = ? WHERE id = ?`)
	res, err := r.tx.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to increment active tiers")
	}
	return expectOneRow(res, pkgerrors.ErrParticipantNotFound)
}

func (r *txRepo) IncrementCycles(ctx context.Context, id int64) error {
	query := r.q(`UPDATE participants SET total_cycles = total_cycles + 1, updated_at = ? WHERE id = ?`)
	res, err := r.tx.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to increment cycles")
	}
	return expectOneRow(res, pkgerrors.ErrParticipantNotFound)
}
