package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/service/closer"
)

func setupTestNotifier(t *testing.T) (*QueueNotifier, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	n, err := NewQueueNotifier(&config.BusConfig{URL: "redis://" + mr.Addr()},
		"auction:notifications", zaptest.NewLogger(t))
	require.NoError(t, err)

	cleanup := func() {
		n.Close()
		mr.Close()
	}
	return n, mr, cleanup
}

func TestNewQueueNotifier(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		n, _, cleanup := setupTestNotifier(t)
		defer cleanup()
		assert.NoError(t, n.Ping(context.Background()))
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := NewQueueNotifier(&config.BusConfig{URL: "://bad"},
			"q", zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestQueueNotifier_NotifyWinner(t *testing.T) {
	n, mr, cleanup := setupTestNotifier(t)
	defer cleanup()

	ctx := context.Background()
	wn := closer.WinnerNotification{
		AuctionID:    uuid.New(),
		WinnerID:     uuid.New(),
		ProductTitle: "1967 Gibson ES-335",
		FinalPrice:   values.MustMoney("1250.00"),
		ClosedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, n.NotifyWinner(ctx, wn))

	t.Run("envelope lands on the list", func(t *testing.T) {
		assert.Equal(t, 1, int(mustListLen(t, mr, "auction:notifications")))

		raw, err := mr.Lpop("auction:notifications")
		require.NoError(t, err)

		var j job
		require.NoError(t, json.Unmarshal([]byte(raw), &j))
		assert.Equal(t, TaskNotifyWinner, j.Task)
		assert.NotEmpty(t, j.ID)
		assert.False(t, j.EnqueuedAt.IsZero())
		assert.Equal(t, wn.AuctionID, j.Kwargs.AuctionID)
		assert.Equal(t, wn.WinnerID, j.Kwargs.WinnerID)
		assert.Equal(t, "1967 Gibson ES-335", j.Kwargs.ProductTitle)
		assert.True(t, wn.FinalPrice.Equal(j.Kwargs.FinalPrice))
	})

	t.Run("price travels as a decimal string", func(t *testing.T) {
		require.NoError(t, n.NotifyWinner(ctx, wn))
		raw, err := mr.Lpop("auction:notifications")
		require.NoError(t, err)
		assert.Contains(t, raw, `"final_price":"1250.00"`)
	})

	t.Run("broker failure surfaces", func(t *testing.T) {
		mr.Close()
		err := n.NotifyWinner(ctx, wn)
		assert.Error(t, err)
	})
}

func mustListLen(t *testing.T, mr *miniredis.Miniredis, key string) int {
	t.Helper()
	list, err := mr.List(key)
	require.NoError(t, err)
	return len(list)
}
