package websocket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func testSession(auctionID uuid.UUID) *Session {
	return newSession(nil, auctionID, testIdentity(), nil, nil, nil,
		testGatewayConfig(), 0, testLogger())
}

func TestRegistry(t *testing.T) {
	auctionA := uuid.New()
	auctionB := uuid.New()

	t.Run("counts sessions per auction", func(t *testing.T) {
		r := NewRegistry()
		s1 := testSession(auctionA)
		s2 := testSession(auctionA)
		s3 := testSession(auctionB)

		r.Add(s1)
		r.Add(s2)
		r.Add(s3)

		assert.Equal(t, 3, r.Count())
		assert.Equal(t, 2, r.CountAuction(auctionA))
		assert.Equal(t, 1, r.CountAuction(auctionB))
	})

	t.Run("remove reclaims empty auction buckets", func(t *testing.T) {
		r := NewRegistry()
		s := testSession(auctionA)

		r.Add(s)
		r.Remove(s)

		assert.Equal(t, 0, r.Count())
		assert.Equal(t, 0, r.CountAuction(auctionA))
		assert.Empty(t, r.sessions)
	})

	t.Run("remove of unknown session is a no-op", func(t *testing.T) {
		r := NewRegistry()
		r.Remove(testSession(auctionA))
		assert.Equal(t, 0, r.Count())
	})

	t.Run("drain cancels every session", func(t *testing.T) {
		r := NewRegistry()
		s1 := testSession(auctionA)
		s2 := testSession(auctionB)
		r.Add(s1)
		r.Add(s2)

		r.Drain()

		assert.Error(t, s1.ctx.Err())
		assert.Error(t, s2.ctx.Err())
	})
}
