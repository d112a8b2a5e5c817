package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"matrix/internal/domain"
	pkgerrors "matrix/pkg/errors"
)

const tableColumns = `owner_id, tier, slot1, slot2, slot3, slot4, frozen_amount, cycle, created_at, updated_at`

type tableRow struct {
	OwnerID      int64         `db:"owner_id"`
	Tier         int           `db:"tier"`
	Slot1        sql.NullInt64 `db:"slot1"`
	Slot2        sql.NullInt64 `db:"slot2"`
	Slot3        sql.NullInt64 `db:"slot3"`
	Slot4        sql.NullInt64 `db:"slot4"`
	FrozenAmount sql.NullInt64 `db:"frozen_amount"`
	Cycle        int           `db:"cycle"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

func (row *tableRow) toDomain() *domain.MatrixTable {
	t := &domain.MatrixTable{
		OwnerID:   row.OwnerID,
		Tier:      row.Tier,
		Cycle:     row.Cycle,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	for i, s := range []sql.NullInt64{row.Slot1, row.Slot2, row.Slot3, row.Slot4} {
		if s.Valid {
			t.Slots[i] = s.Int64
		}
	}
	if row.FrozenAmount.Valid {
		t.FrozenAmount = domain.Money(row.FrozenAmount.Int64)
	}
	return t
}

// slotColumn returns the column name for a 1-based slot index.
func slotColumn(slot int) (string, error) {
	if slot < 1 || slot > domain.SlotsPerTable {
		return "", fmt.Errorf("slot %d out of range", slot)
	}
	return fmt.Sprintf("slot%d", slot), nil
}

func (r *txRepo) CreateTable(ctx context.Context, t *domain.MatrixTable) error {
	query := r.q(`
		INSERT INTO matrix_tables (owner_id, tier, cycle, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, tier) DO NOTHING
	`)
	res, err := r.tx.ExecContext(ctx, query, t.OwnerID, t.Tier, t.Cycle, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create matrix table")
	}
	return expectOneRow(res, pkgerrors.ErrTableExists)
}

func (r *txRepo) GetTable(ctx context.Context, ownerID int64, tier int) (*domain.MatrixTable, error) {
	var row tableRow
	query := r.q(`SELECT ` + tableColumns + ` FROM matrix_tables WHERE owner_id = ? AND tier = ?`)
	if err := r.tx.GetContext(ctx, &row, query, ownerID, tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.ErrTableNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to find matrix table")
	}
	return row.toDomain(), nil
}

func (r *txRepo) ListTables(ctx context.Context, ownerID int64) ([]*domain.MatrixTable, error) {
	var rows []tableRow
	query := r.q(`SELECT ` + tableColumns + ` FROM matrix_tables WHERE owner_id = ? ORDER BY tier`)
	if err := r.tx.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list matrix tables")
	}
	tables := make([]*domain.MatrixTable, 0, len(rows))
	for i := range rows {
		tables = append(tables, rows[i].toDomain())
	}
	return tables, nil
}

func (r *txRepo) OwnsTier(ctx context.Context, ownerID int64, tier int) (bool, error) {
	var count int
	query := r.q(`SELECT COUNT(*) FROM matrix_tables WHERE owner_id = ? AND tier = ?`)
	if err := r.tx.GetContext(ctx, &count, query, ownerID, tier); err != nil {
		return false, pkgerrors.Wrap(err, "failed to check tier ownership")
	}
	return count > 0, nil
}

func (r *txRepo) OccupySlot(ctx context.Context, ownerID int64, tier, slot int, memberID int64) error {
	col, err := slotColumn(slot)
	if err != nil {
		return err
	}
	cond := col + ` IS NULL`
	if slot > 1 {
		prev, _ := slotColumn(slot - 1)
		cond += ` AND ` + prev + ` IS NOT NULL`
	}
	query := r.q(`UPDATE matrix_tables SET ` + col + ` = ?, updated_at = ? WHERE owner_id = ? AND tier = ? AND ` + cond)
	res, err := r.tx.ExecContext(ctx, query, memberID, time.Now().UTC(), ownerID, tier)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to occupy slot")
	}
	return expectOneRow(res, pkgerrors.ErrSlotConflict)
}

func (r *txRepo) SetFrozen(ctx context.Context, ownerID int64, tier int, amount domain.Money) error {
	query := r.q(`UPDATE matrix_tables SET frozen_amount = ?, updated_at = ? WHERE owner_id = ? AND tier = ?`)
	res, err := r.tx.ExecContext(ctx, query, amount, time.Now().UTC(), ownerID, tier)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to freeze amount")
	}
	return expectOneRow(res, pkgerrors.ErrTableNotFound)
}

func (r *txRepo) TakeFrozen(ctx context.Context, ownerID int64, tier int) (domain.Money, error) {
	t, err := r.GetTable(ctx, ownerID, tier)
	if err != nil {
		return 0, err
	}
	if !t.HasFrozen() {
		return 0, nil
	}
	query := r.q(`UPDATE matrix_tables SET frozen_amount = NULL, updated_at = ? WHERE owner_id = ? AND tier = ? AND frozen_amount = ?`)
	res, err := r.tx.ExecContext(ctx, query, time.Now().UTC(), ownerID, tier, t.FrozenAmount)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to release frozen amount")
	}
	if err := expectOneRow(res, pkgerrors.ErrSlotConflict); err != nil {
		return 0, err
	}
	return t.FrozenAmount, nil
}

func (r *txRepo) ResetTable(ctx context.Context, ownerID int64, tier int) (int, error) {
	query := r.q(`
		UPDATE matrix_tables SET
			slot1 = NULL, slot2 = NULL, slot3 = NULL, slot4 = NULL,
			cycle = cycle + 1,
			updated_at = ?
		WHERE owner_id = ? AND tier = ?
			AND slot1 IS NOT NULL AND slot2 IS NOT NULL AND slot3 IS NOT NULL AND slot4 IS NOT NULL
	`)
	res, err := r.tx.ExecContext(ctx, query, time.Now().UTC(), ownerID, tier)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to reset matrix table")
	}
	if err := expectOneRow(res, pkgerrors.ErrTableNotFull); err != nil {
		return 0, err
	}
	var cycle int
	if err := r.tx.GetContext(ctx, &cycle, r.q(`SELECT cycle FROM matrix_tables WHERE owner_id = ? AND tier = ?`), ownerID, tier); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to read cycle")
	}
	return cycle, nil
}
