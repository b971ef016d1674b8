package account

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
	"github.com/bidwire/auction-exchange-backend/internal/domain/values"
)

// User is a registered participant. Users are created by an external identity
// service; the exchange core reads them and never mutates them.
type User struct {
	ID        uuid.UUID    `json:"id"`
	Username  string       `json:"username"`
	Email     values.Email `json:"email"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewUser validates and builds a User. Only the seed tooling and tests create
// users in-process; production rows arrive through the identity service.
func NewUser(username, email string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.NewValidationError("INVALID_USERNAME", "username cannot be empty")
	}

	addr, err := values.NewEmail(email)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_EMAIL", "email is not well-formed").WithCause(err)
	}

	return &User{
		ID:        uuid.New(),
		Username:  username,
		Email:     addr,
		CreatedAt: time.Now().UTC(),
	}, nil
}
