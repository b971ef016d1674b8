package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	tests := []struct {
		name         string
		username     string
		email        string
		wantUsername string
		wantErr      bool
	}{
		{
			name:         "valid user",
			username:     "e2e_bidder",
			email:        "bidder@example.com",
			wantUsername: "e2e_bidder",
		},
		{
			name:         "username trimmed",
			username:     "  seller  ",
			email:        "seller@example.com",
			wantUsername: "seller",
		},
		{
			name:     "empty username",
			username: "",
			email:    "bidder@example.com",
			wantErr:  true,
		},
		{
			name:     "whitespace username",
			username: "   ",
			email:    "bidder@example.com",
			wantErr:  true,
		},
		{
			name:     "malformed email",
			username: "bidder",
			email:    "not-an-email",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := NewUser(tt.username, tt.email)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, "", user.ID.String())
			assert.Equal(t, tt.wantUsername, user.Username)
			assert.False(t, user.CreatedAt.IsZero())
		})
	}
}

func TestMaskUsername(t *testing.T) {
	tests := []struct {
		username string
		want     string
	}{
		{"", "Anonymous"},
		{"a", "a***"},
		{"ab", "a***"},
		{"bob", "b***b"},
		{"alice", "a***e"},
		{"カヲル", "カ***ル"},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskUsername(tt.username))
		})
	}
}
