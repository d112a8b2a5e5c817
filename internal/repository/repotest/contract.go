// Package repotest holds the behaviour every repository.Store implementation must share.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrix/internal/domain"
	"matrix/internal/repository"
	pkgerrors "matrix/pkg/errors"
)

// Run exercises store against the storage contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("participants", func(t *testing.T) { testParticipants(t, newStore(t)) })
	t.Run("slot order", func(t *testing.T) { testSlotOrder(t, newStore(t)) })
	t.Run("frozen amount", func(t *testing.T) { testFrozen(t, newStore(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("records", func(t *testing.T) { testRecords(t, newStore(t)) })
}

func within(t *testing.T, s repository.Store, fn func(ctx context.Context, tx repository.Tx) error) {
	t.Helper()
	require.NoError(t, s.WithinTx(context.Background(), fn))
}

func seed(t *testing.T, s repository.Store) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	within(t, s, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.CreateParticipant(ctx, &domain.Participant{ID: 1, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		root := int64(1)
		if err := tx.CreateParticipant(ctx, &domain.Participant{ID: 2, ReferrerID: &root, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return tx.CreateTable(ctx, domain.NewMatrixTable(2, 1, now))
	})
}

func testParticipants(t *testing.T, s repository.Store) {
	seed(t, s)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateParticipant(ctx, &domain.Participant{ID: 2, CreatedAt: time.Now(), UpdatedAt: time.Now()})
	})
	assert.ErrorIs(t, err, pkgerrors.ErrParticipantExists)

	within(t, s, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.CreditBalance(ctx, 2, 1000))
		require.NoError(t, tx.CreditEarnings(ctx, 2, 850))
		require.NoError(t, tx.DebitBalance(ctx, 2, 50))
		assert.ErrorIs(t, tx.DebitBalance(ctx, 2, 10000), pkgerrors.ErrInsufficientBalance)
		assert.ErrorIs(t, tx.DebitBalance(ctx, 9, 1), pkgerrors.ErrParticipantNotFound)
		require.NoError(t, tx.IncrementActiveTiers(ctx, 2))
		require.NoError(t, tx.IncrementCycles(ctx, 2))

		p, err := tx.GetParticipant(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, domain.Money(1800), p.Balance)
		assert.Equal(t, domain.Money(850), p.TotalEarned)
		assert.Equal(t, 1, p.ActiveTiers)
		assert.Equal(t, 1, p.TotalCycles)
		assert.Equal(t, int64(1), p.Upline())

		_, err = tx.GetParticipant(ctx, 9)
		assert.ErrorIs(t, err, pkgerrors.ErrParticipantNotFound)
		return nil
	})
}

func testSlotOrder(t *testing.T, s repository.Store) {
	seed(t, s)

	within(t, s, func(ctx context.Context, tx repository.Tx) error {
		assert.ErrorIs(t, tx.OccupySlot(ctx, 2, 1, 2, 5), pkgerrors.ErrSlotConflict)
		require.NoError(t, tx.OccupySlot(ctx, 2, 1, 1, 5))
		assert.ErrorIs(t, tx.OccupySlot(ctx, 2, 1, 1, 6), pkgerrors.ErrSlotConflict)
		assert.ErrorIs(t, tx.OccupySlot(ctx, 2, 1, 3, 6), pkgerrors.ErrSlotConflict)
		require.NoError(t, tx.OccupySlot(ctx, 2, 1, 2, 6))
		require.NoError(t, tx.OccupySlot(ctx, 2, 1, 3, 7))

		_, err := tx.ResetTable(ctx, 2, 1)
		assert.ErrorIs(t, err, pkgerrors.ErrTableNotFull)

		require.NoError(t, tx.OccupySlot(ctx, 2, 1, 4, 8))
		tbl, err := tx.GetTable(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, [4]int64{5, 6, 7, 8}, tbl.Slots)

		cycle, err := tx.ResetTable(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, cycle)

		tbl, err = tx.GetTable(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, [4]int64{}, tbl.Slots)
		assert.Equal(t, 1, tbl.Cycle)

		_, err = tx.GetTable(ctx, 2, 2)
		assert.ErrorIs(t, err, pkgerrors.ErrTableNotFound)
		owns, err := tx.OwnsTier(ctx, 2, 2)
		require.NoError(t, err)
		assert.False(t, owns)

		assert.ErrorIs(t, tx.CreateTable(ctx, domain.NewMatrixTable(2, 1, time.Now().UTC())), pkgerrors.ErrTableExists)
		return nil
	})
}

func testFrozen(t *testing.T, s repository.Store) {
	seed(t, s)

	within(t, s, func(ctx context.Context, tx repository.Tx) error {
		held, err := tx.TakeFrozen(ctx, 2, 1)
		require.NoError(t, err)
		assert.Zero(t, held)

		require.NoError(t, tx.SetFrozen(ctx, 2, 1, 900))
		tbl, err := tx.GetTable(ctx, 2, 1)
		require.NoError(t, err)
		assert.True(t, tbl.HasFrozen())

		held, err = tx.TakeFrozen(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.Money(900), held)

		held, err = tx.TakeFrozen(ctx, 2, 1)
		require.NoError(t, err)
		assert.Zero(t, held)

		assert.ErrorIs(t, tx.SetFrozen(ctx, 2, 5, 900), pkgerrors.ErrTableNotFound)
		return nil
	})
}

func testRollback(t *testing.T, s repository.Store) {
	seed(t, s)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.CreditEarnings(ctx, 2, 850))
		require.NoError(t, tx.OccupySlot(ctx, 2, 1, 1, 5))
		return pkgerrors.ErrMaxRecursionExceeded
	})
	require.ErrorIs(t, err, pkgerrors.ErrMaxRecursionExceeded)

	within(t, s, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetParticipant(ctx, 2)
		require.NoError(t, err)
		assert.Zero(t, p.Balance)
		tbl, err := tx.GetTable(ctx, 2, 1)
		require.NoError(t, err)
		assert.Zero(t, tbl.Occupied())
		return nil
	})
}

func testRecords(t *testing.T, s repository.Store) {
	seed(t, s)
	eventID := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)

	within(t, s, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.InsertPayout(ctx, &domain.PayoutRecord{
			ID: uuid.New(), EventID: eventID, SourceID: 5, RecipientID: 2,
			Tier: 1, Slot: 1, Amount: 850, Kind: domain.PayoutSlot1, CreatedAt: now,
		}))
		require.NoError(t, tx.InsertRevenue(ctx, &domain.RevenueRecord{
			ID: uuid.New(), EventID: eventID, ParticipantID: 2,
			Tier: 1, Amount: 50, Kind: domain.RevenueCreditFee, CreatedAt: now,
		}))

		payouts, err := tx.ListPayouts(ctx, 2)
		require.NoError(t, err)
		require.Len(t, payouts, 1)
		assert.Equal(t, eventID, payouts[0].EventID)
		assert.Equal(t, domain.Money(850), payouts[0].Amount)
		assert.Equal(t, domain.PayoutSlot1, payouts[0].Kind)

		revenue, err := tx.ListRevenueByEvent(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, revenue, 1)
		assert.Equal(t, domain.RevenueCreditFee, revenue[0].Kind)

		marker := &domain.ProcessedEvent{EventID: eventID, BuyerID: 5, Tier: 1, ProcessedAt: now}
		require.NoError(t, tx.MarkEventProcessed(ctx, marker))
		assert.ErrorIs(t, tx.MarkEventProcessed(ctx, marker), pkgerrors.ErrEventAlreadyProcessed)
		return nil
	})
}
