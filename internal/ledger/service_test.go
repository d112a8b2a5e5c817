package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"matrix/internal/domain"
)

// --- Mocks ---

type MockTx struct {
	mock.Mock
}

func (m *MockTx) CreditEarnings(ctx context.Context, id int64, amount domain.Money) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *MockTx) InsertPayout(ctx context.Context, r *domain.PayoutRecord) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockTx) InsertRevenue(ctx context.Context, r *domain.RevenueRecord) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func TestCredit_NetOfFee(t *testing.T) {
	ctx := context.Background()
	svc := NewService()
	tx := new(MockTx)
	eventID := uuid.New()

	tx.On("CreditEarnings", ctx, int64(2), domain.Money(850)).Return(nil)
	tx.On("InsertPayout", ctx, mock.MatchedBy(func(r *domain.PayoutRecord) bool {
		return r.RecipientID == 2 && r.SourceID == 3 && r.Amount == 850 &&
			r.Slot == 1 && r.Tier == 1 && r.Kind == domain.PayoutSlot1 && r.EventID == eventID
	})).Return(nil)
	tx.On("InsertRevenue", ctx, mock.MatchedBy(func(r *domain.RevenueRecord) bool {
		return r.Amount == domain.FlatFee && r.Kind == domain.RevenueCreditFee && r.ParticipantID == 2
	})).Return(nil)

	net, err := svc.Credit(ctx, tx, &CreditRequest{
		EventID:     eventID,
		SourceID:    3,
		RecipientID: 2,
		Tier:        1,
		Slot:        1,
		Gross:       900,
		Kind:        domain.PayoutSlot1,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.Money(850), net)
	tx.AssertExpectations(t)
}

func TestCredit_SkipsWhenGrossDoesNotExceedFee(t *testing.T) {
	svc := NewService()

	for _, gross := range []domain.Money{0, 10, domain.FlatFee} {
		tx := new(MockTx)
		net, err := svc.Credit(context.Background(), tx, &CreditRequest{RecipientID: 2, Tier: 1, Slot: 1, Gross: gross})

		require.NoError(t, err)
		assert.Zero(t, net)
		tx.AssertNotCalled(t, "CreditEarnings", mock.Anything, mock.Anything, mock.Anything)
		tx.AssertNotCalled(t, "InsertPayout", mock.Anything, mock.Anything)
		tx.AssertNotCalled(t, "InsertRevenue", mock.Anything, mock.Anything)
	}
}

func TestCredit_PropagatesStoreError(t *testing.T) {
	ctx := context.Background()
	svc := NewService()
	tx := new(MockTx)
	boom := errors.New("disk full")

	tx.On("CreditEarnings", ctx, int64(2), domain.Money(850)).Return(boom)

	_, err := svc.Credit(ctx, tx, &CreditRequest{RecipientID: 2, Tier: 1, Slot: 1, Gross: 900})

	assert.ErrorIs(t, err, boom)
	tx.AssertNotCalled(t, "InsertPayout", mock.Anything, mock.Anything)
}

func TestRecordRevenue_SkipsZero(t *testing.T) {
	tx := new(MockTx)
	err := NewService().RecordRevenue(context.Background(), tx, uuid.New(), 2, 1, 0, domain.RevenuePurchaseFee)

	require.NoError(t, err)
	tx.AssertNotCalled(t, "InsertRevenue", mock.Anything, mock.Anything)
}
