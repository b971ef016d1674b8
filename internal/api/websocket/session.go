package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	domainErrors "github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/auth"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/bus"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/metrics"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
)

// Session is one authenticated subscriber on one auction. Three goroutines
// serve it: readPump (inbound frames), writePump (sole writer, pings) and
// forward (bus fan-out). They share one context; the first to exit cancels
// the others.
type Session struct {
	id        uuid.UUID
	auctionID uuid.UUID
	user      auth.Identity

	conn *websocket.Conn
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	bids       arbitration.Service
	bus        bus.Bus
	registry   *Registry
	cfg        config.GatewayConfig
	bidTimeout time.Duration
	logger     *slog.Logger
}

func newSession(
	conn *websocket.Conn,
	auctionID uuid.UUID,
	user auth.Identity,
	bids arbitration.Service,
	b bus.Bus,
	registry *Registry,
	cfg config.GatewayConfig,
	bidTimeout time.Duration,
	logger *slog.Logger,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	return &Session{
		id:         id,
		auctionID:  auctionID,
		user:       user,
		conn:       conn,
		send:       make(chan []byte, cfg.SendBuffer),
		ctx:        ctx,
		cancel:     cancel,
		bids:       bids,
		bus:        b,
		registry:   registry,
		cfg:        cfg,
		bidTimeout: bidTimeout,
		logger: logger.With(
			slog.String("session_id", id.String()),
			slog.String("auction_id", auctionID.String()),
			slog.String("user_id", user.UserID.String()),
		),
	}
}

// Close asks the session to shut down. Safe from any goroutine; the pumps
// notice the cancellation and unwind.
func (s *Session) Close() {
	s.cancel()
}

// run subscribes to the auction topic and drives the three pumps to
// completion. It owns all cleanup: unsubscribe, connection close,
// registry removal.
func (s *Session) run() {
	defer func() {
		s.cancel()
		s.conn.Close()
		s.registry.Remove(s)
		metrics.ActiveSessions.Dec()
		s.logger.Info("session closed")
	}()

	sub, err := s.bus.Subscribe(s.ctx, bus.AuctionTopic(s.auctionID))
	if err != nil {
		s.logger.Error("bus subscribe failed", slog.String("error", err.Error()))
		s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		return
	}
	defer sub.Close()

	done := make(chan struct{}, 3)
	pump := func(fn func()) {
		go func() {
			defer func() { s.cancel(); done <- struct{}{} }()
			fn()
		}()
	}

	pump(s.writePump)
	pump(func() { s.forward(sub) })
	pump(s.readPump)

	for i := 0; i < 3; i++ {
		<-done
	}
}

// readPump consumes client frames until the connection dies. It is the
// only reader, so the deadlines and limits live here.
func (s *Session) readPump() {
	s.conn.SetReadLimit(s.cfg.ReadLimit)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		s.handleFrame(message)
	}
}

// writePump is the sole writer on the connection: frames, pings, and the
// final close message all leave through here.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// forward relays auction topic messages verbatim to this session.
func (s *Session) forward(sub bus.Subscription) {
	for {
		select {
		case payload, ok := <-sub.Messages():
			if !ok {
				return
			}
			if !s.enqueue(payload) {
				return
			}
			metrics.FramesOut.WithLabelValues(TypeNewBid).Inc()

		case <-s.ctx.Done():
			return
		}
	}
}

// enqueue hands a frame to writePump without blocking. A full buffer means
// the consumer stopped draining; the session is torn down rather than
// letting one slow client stall the fan-out.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case s.send <- payload:
		return true
	default:
		metrics.SlowConsumerDrops.Inc()
		s.logger.Warn("outbound buffer full, dropping session")
		s.cancel()
		return false
	}
}

// handleFrame dispatches one inbound client message. Frames that do not
// parse as JSON are dropped without a reply.
func (s *Session) handleFrame(message []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return
	}

	switch frame.Action {
	case ActionBid:
		metrics.FramesIn.WithLabelValues(ActionBid).Inc()
		s.handleBid(frame)
	default:
		metrics.FramesIn.WithLabelValues("unknown").Inc()
		s.sendFrame(TypeError, newErrorFrame("unknown action"))
	}
}

// handleBid runs one arbitration round trip: private ack to the bidder,
// masked broadcast to the topic.
func (s *Session) handleBid(frame InboundFrame) {
	amount, err := parseAmount(frame.Amount)
	if err != nil {
		metrics.BidOutcomes.WithLabelValues(metrics.OutcomeRejected).Inc()
		s.sendFrame(TypeError, newErrorFrame(domainErrors.ClientMessage(err)))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.bidTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.bids.PlaceBid(ctx, &arbitration.PlaceBidRequest{
		AuctionID:      s.auctionID,
		BidderID:       s.user.UserID,
		BidderUsername: s.user.Username,
		Amount:         amount,
	})
	metrics.ArbitrationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.replyBidError(err)
		return
	}

	metrics.BidOutcomes.WithLabelValues(metrics.OutcomeAccepted).Inc()
	s.sendFrame(TypeBidAck, newBidAck(result))
	s.broadcast(result)
}

// replyBidError translates an arbitration failure into an error frame.
// Deadline expiry gets the literal "timeout" so clients can distinguish a
// stuck exchange from a rejected bid.
func (s *Session) replyBidError(err error) {
	if s.ctx.Err() != nil {
		return
	}

	message := domainErrors.ClientMessage(err)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = "timeout"
		metrics.BidOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
	case domainErrors.IsType(err, domainErrors.ErrorTypeInternal),
		domainErrors.IsType(err, domainErrors.ErrorTypeUnavailable):
		metrics.BidOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
		s.logger.Error("bid arbitration failed", slog.String("error", err.Error()))
	default:
		metrics.BidOutcomes.WithLabelValues(metrics.OutcomeRejected).Inc()
	}

	s.sendFrame(TypeError, newErrorFrame(message))
}

// broadcast publishes the committed bid to the auction topic. The bid is
// already durable; a publish failure costs this broadcast only and is
// logged rather than surfaced to the bidder.
func (s *Session) broadcast(result *arbitration.BidResult) {
	payload, err := json.Marshal(newBidBroadcast(result))
	if err != nil {
		s.logger.Error("broadcast encode failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	if err := s.bus.Publish(ctx, bus.AuctionTopic(s.auctionID), payload); err != nil {
		s.logger.Error("broadcast publish failed", slog.String("error", err.Error()))
	}
}

// sendFrame marshals and enqueues one private frame.
func (s *Session) sendFrame(frameType string, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("frame encode failed", slog.String("error", err.Error()))
		return
	}
	if s.enqueue(payload) {
		metrics.FramesOut.WithLabelValues(frameType).Inc()
	}
}
