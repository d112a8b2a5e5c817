package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrix/internal/domain"
	"matrix/pkg/logger"
)

type fakeRedis struct {
	channel string
	sent    [][]byte
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.sent = append(f.sent, message.([]byte))
	return redis.NewIntResult(1, nil)
}

func payout() domain.Notification {
	return domain.Notification{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		Kind:          domain.NotifyPayout,
		ParticipantID: 2,
		Tier:          1,
		Amount:        850,
		Slot:          1,
		RelatedID:     3,
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "You received 8.50 from slot 1 of your tier 1 table.", Message(payout()))
	assert.Equal(t, "Your tier 3 table completed cycle 2.", Message(domain.Notification{Kind: domain.NotifyCycleClosed, Tier: 3, Cycle: 2}))
}

func TestRedisPublisher_SendsJSON(t *testing.T) {
	client := &fakeRedis{}
	p := NewRedisPublisher(client, "matrix:notifications")

	n := payout()
	require.NoError(t, p.Publish(context.Background(), []domain.Notification{n, n}))

	assert.Equal(t, "matrix:notifications", client.channel)
	require.Len(t, client.sent, 2)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(client.sent[0], &got))
	assert.Equal(t, "payout_received", got["kind"])
	assert.Equal(t, "8.50", got["amount"])
	assert.Equal(t, float64(2), got["participant_id"])
	assert.Contains(t, got["message"], "8.50")
}

func TestRedisPublisher_ReturnsClientError(t *testing.T) {
	client := &fakeRedis{err: errors.New("connection refused")}
	err := NewRedisPublisher(client, "c").Publish(context.Background(), []domain.Notification{payout()})
	assert.ErrorContains(t, err, "connection refused")
}

func TestLogPublisher_LogsEachNotification(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(logger.NewWithWriter("test", logger.LevelInfo, &buf))

	require.NoError(t, p.Publish(context.Background(), []domain.Notification{payout()}))
	assert.Contains(t, buf.String(), "payout_received")
	assert.Contains(t, buf.String(), "Notification Sent")
}
