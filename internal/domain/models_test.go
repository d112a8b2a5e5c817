package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMatrixTable_SlotOrder(t *testing.T) {
	tbl := NewMatrixTable(2, 1, time.Now())
	assert.Equal(t, TableStateEmpty, tbl.State())
	assert.Equal(t, 1, tbl.NextSlot())

	tbl.Slots = [SlotsPerTable]int64{5, 6, 0, 0}
	assert.Equal(t, 3, tbl.NextSlot())
	assert.Equal(t, TableStateFilling, tbl.State())

	tbl.Slots = [SlotsPerTable]int64{5, 6, 7, 8}
	assert.True(t, tbl.IsFull())
	assert.Zero(t, tbl.NextSlot())
	assert.Equal(t, TableStateFull, tbl.State())
}

func TestFill_NextIncrementsDepth(t *testing.T) {
	f := Fill{EventID: uuid.New(), OwnerID: 2, Tier: 1, MemberID: 3, Amount: 900, Depth: 4, Origin: OriginPurchase}

	d := f.Delegate(1)
	assert.Equal(t, f.EventID, d.EventID)
	assert.Equal(t, int64(1), d.OwnerID)
	assert.Equal(t, int64(3), d.MemberID)
	assert.Equal(t, 5, d.Depth)
	assert.Equal(t, OriginSpillover, d.Origin)
}
