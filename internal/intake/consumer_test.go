package intake

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"matrix/internal/domain"
	"matrix/internal/purchase"
	pkgerrors "matrix/pkg/errors"
	"matrix/pkg/logger"
)

// --- Mocks ---

type fakeQueue struct {
	pending [][]string
	pushed  map[string][]string
}

func (q *fakeQueue) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	if len(q.pending) == 0 {
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	return redis.NewStringSliceResult(next, nil)
}

func (q *fakeQueue) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if q.pushed == nil {
		q.pushed = make(map[string][]string)
	}
	for _, v := range values {
		q.pushed[key] = append(q.pushed[key], string(v.([]byte)))
	}
	return redis.NewIntResult(int64(len(q.pushed[key])), nil)
}

type fakeLocker struct {
	held     map[string]bool
	attempts map[string]int64
}

func newLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}, attempts: map[string]int64{}}
}

func (l *fakeLocker) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	delete(l.held, key)
	return nil
}

func (l *fakeLocker) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	l.attempts[key]++
	return l.attempts[key], nil
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Purchase(ctx context.Context, event *domain.PurchaseEvent) (*purchase.Result, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*purchase.Result), args.Error(1)
}

const (
	queueName = "matrix:purchases"
	deadName  = "matrix:purchases:dead"
)

func newConsumer(q *fakeQueue, l *fakeLocker, p *MockProcessor) *Consumer {
	return NewConsumer(q, l, p, nil, logger.NewNop(), Options{
		Queue:            queueName,
		DeadLetterQueue:  deadName,
		PollTimeout:      time.Millisecond,
		MaxRetryAttempts: 2,
		RetryDelay:       time.Millisecond,
	})
}

func payload(t *testing.T, e domain.PurchaseEvent) string {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return string(data)
}

func TestPoll_ProcessesEvent(t *testing.T) {
	event := domain.PurchaseEvent{EventID: uuid.New(), BuyerID: 2, Tier: 1}
	q := &fakeQueue{pending: [][]string{{queueName, payload(t, event)}}}
	l := newLocker()
	p := new(MockProcessor)
	p.On("Purchase", mock.Anything, mock.MatchedBy(func(e *domain.PurchaseEvent) bool {
		return e.EventID == event.EventID && e.BuyerID == 2 && e.Tier == 1
	})).Return(&purchase.Result{EventID: event.EventID}, nil)

	require.NoError(t, newConsumer(q, l, p).Poll(context.Background()))

	p.AssertExpectations(t)
	assert.Empty(t, q.pushed)
	assert.Empty(t, l.held)
}

func TestPoll_EmptyQueue(t *testing.T) {
	p := new(MockProcessor)
	require.NoError(t, newConsumer(&fakeQueue{}, newLocker(), p).Poll(context.Background()))
	p.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
}

func TestHandle_MalformedPayloadIsParked(t *testing.T) {
	q := &fakeQueue{}
	p := new(MockProcessor)

	require.NoError(t, newConsumer(q, newLocker(), p).Handle(context.Background(), []byte("not json")))

	require.Len(t, q.pushed[deadName], 1)
	var dl map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(q.pushed[deadName][0]), &dl))
	assert.Equal(t, "not json", dl["payload"])
	assert.Contains(t, dl["reason"], "decode")
}

func TestHandle_InFlightEventIsRequeued(t *testing.T) {
	event := domain.PurchaseEvent{EventID: uuid.New(), BuyerID: 2, Tier: 1}
	raw := payload(t, event)
	q := &fakeQueue{}
	l := newLocker()
	l.held["matrix:inflight:"+event.EventID.String()] = true
	p := new(MockProcessor)

	require.NoError(t, newConsumer(q, l, p).Handle(context.Background(), []byte(raw)))

	p.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
	assert.Equal(t, []string{raw}, q.pushed[queueName])
	assert.Empty(t, q.pushed[deadName])
	assert.True(t, l.held["matrix:inflight:"+event.EventID.String()])
}

func TestHandle_MissingEventIDIsParked(t *testing.T) {
	q := &fakeQueue{}
	l := newLocker()
	l.held["matrix:inflight:"+uuid.Nil.String()] = true
	p := new(MockProcessor)

	require.NoError(t, newConsumer(q, l, p).Handle(context.Background(), []byte(`{"buyer_id":7,"tier":1}`)))

	p.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
	assert.Empty(t, q.pushed[queueName])
	require.Len(t, q.pushed[deadName], 1)
	assert.Contains(t, q.pushed[deadName][0], "missing event_id")
	assert.Contains(t, q.pushed[deadName][0], `"buyer_id":7`)
}

// handoffQueue delivers the first requeued payload straight to another
// consumer, as a second engine process blocked on BLPOP would receive it.
type handoffQueue struct {
	fakeQueue
	t    *testing.T
	next *Consumer
	sent bool
}

func (q *handoffQueue) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if key != queueName || q.sent || q.next == nil {
		return q.fakeQueue.RPush(ctx, key, values...)
	}
	q.sent = true
	for _, v := range values {
		require.NoError(q.t, q.next.Handle(ctx, v.([]byte)))
	}
	return redis.NewIntResult(0, nil)
}

func TestHandle_RequeuedEventReachesAnotherWorker(t *testing.T) {
	event := domain.PurchaseEvent{EventID: uuid.New(), BuyerID: 2, Tier: 1}
	l := newLocker()

	second := new(MockProcessor)
	second.On("Purchase", mock.Anything, mock.Anything).Return(&purchase.Result{EventID: event.EventID}, nil).Once()
	secondQueue := &fakeQueue{}

	first := new(MockProcessor)
	first.On("Purchase", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	q := &handoffQueue{t: t, next: newConsumer(secondQueue, l, second)}

	require.NoError(t, NewConsumer(q, l, first, nil, logger.NewNop(), Options{
		Queue:            queueName,
		DeadLetterQueue:  deadName,
		MaxRetryAttempts: 3,
	}).Handle(context.Background(), []byte(payload(t, event))))

	first.AssertExpectations(t)
	second.AssertExpectations(t)
	assert.True(t, q.sent)
	assert.Empty(t, q.pushed)
	assert.Empty(t, secondQueue.pushed)
	assert.Empty(t, l.held)
}

func TestHandle_DuplicateIsAcknowledged(t *testing.T) {
	event := domain.PurchaseEvent{EventID: uuid.New(), BuyerID: 2, Tier: 1}
	q := &fakeQueue{}
	p := new(MockProcessor)
	p.On("Purchase", mock.Anything, mock.Anything).Return(nil, pkgerrors.ErrEventAlreadyProcessed)

	require.NoError(t, newConsumer(q, newLocker(), p).Handle(context.Background(), []byte(payload(t, event))))
	assert.Empty(t, q.pushed)
}

func TestHandle_RejectionsAndFatalErrorsAreParked(t *testing.T) {
	for _, cause := range []error{
		pkgerrors.ErrTierAlreadyOwned,
		pkgerrors.ErrInsufficientBalance,
		pkgerrors.ErrMaxRecursionExceeded,
		pkgerrors.ErrNoEligibleTable,
	} {
		event := domain.PurchaseEvent{EventID: uuid.New(), BuyerID: 2, Tier: 1}
		q := &fakeQueue{}
		p := new(MockProcessor)
		p.On("Purchase", mock.Anything, mock.Anything).Return(nil, cause)

		require.NoError(t, newConsumer(q, newLocker(), p).Handle(context.Background(), []byte(payload(t, event))))
		assert.Len(t, q.pushed[deadName], 1, cause.Error())
		assert.Empty(t, q.pushed[queueName], cause.Error())
	}
}

func TestHandle_TransientErrorRequeuesThenParks(t *testing.T) {
	event := domain.PurchaseEvent{EventID: uuid.New(), BuyerID: 2, Tier: 1}
	raw := []byte(payload(t, event))
	q := &fakeQueue{}
	l := newLocker()
	p := new(MockProcessor)
	p.On("Purchase", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	c := newConsumer(q, l, p)

	require.NoError(t, c.Handle(context.Background(), raw))
	assert.Equal(t, []string{string(raw)}, q.pushed[queueName])
	assert.Empty(t, q.pushed[deadName])

	require.NoError(t, c.Handle(context.Background(), raw))
	assert.Len(t, q.pushed[queueName], 1)
	require.Len(t, q.pushed[deadName], 1)
	assert.Contains(t, q.pushed[deadName][0], "connection reset")
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(&fakeQueue{}, newLocker(), new(MockProcessor))

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
