package websocket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bidwire/auction-exchange-backend/internal/domain/account"
	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
)

// Inbound actions.
const ActionBid = "BID"

// Outbound frame types, the "type" discriminator on every server frame.
const (
	TypeBidAck = "BID_ACK"
	TypeNewBid = "NEW_BID"
	TypeError  = "ERROR"
)

// InboundFrame is one client message. Amount stays raw because clients
// send it as a JSON number or a string; both convert through the same
// decimal path.
type InboundFrame struct {
	Action string          `json:"action"`
	Amount json.RawMessage `json:"amount"`
}

// parseAmount converts the raw amount into Money without a float detour.
func parseAmount(raw json.RawMessage) (values.Money, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		return values.Money{}, errors.ErrInvalidAmount
	}
	m, err := values.NewMoneyFromString(s)
	if err != nil {
		return values.Money{}, errors.ErrInvalidAmount
	}
	return m, nil
}

// Bidder identifies the author of a broadcast bid.
type Bidder struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// BidAckFrame confirms the originator's own committed bid. Private: it
// carries the new wallet balance.
type BidAckFrame struct {
	Type       string       `json:"type"`
	Amount     values.Money `json:"amount"`
	NewBalance values.Money `json:"new_balance"`
	Timestamp  string       `json:"timestamp"`
}

// NewBidFrame announces a committed bid to every subscriber. The username
// is masked before it leaves the process.
type NewBidFrame struct {
	Type      string       `json:"type"`
	Amount    values.Money `json:"amount"`
	Bidder    Bidder       `json:"bidder"`
	Timestamp string       `json:"timestamp"`
}

// ErrorFrame reports a failed operation to the originator only.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newBidAck(r *arbitration.BidResult) BidAckFrame {
	return BidAckFrame{
		Type:       TypeBidAck,
		Amount:     r.NewPrice,
		NewBalance: r.NewBalance,
		Timestamp:  r.Timestamp.UTC().Format(time.RFC3339),
	}
}

func newBidBroadcast(r *arbitration.BidResult) NewBidFrame {
	return NewBidFrame{
		Type:   TypeNewBid,
		Amount: r.NewPrice,
		Bidder: Bidder{
			ID:       r.BidderID.String(),
			Username: account.MaskUsername(r.BidderUsername),
		},
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
	}
}

func newErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Message: message}
}
