package values

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmail(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		expected string
		wantErr  bool
	}{
		{
			name:     "valid address",
			address:  "bidder@example.com",
			expected: "bidder@example.com",
		},
		{
			name:     "normalized to lowercase",
			address:  "Bidder@Example.COM",
			expected: "bidder@example.com",
		},
		{
			name:     "whitespace trimmed",
			address:  "  seller@example.com  ",
			expected: "seller@example.com",
		},
		{
			name:    "empty address",
			address: "",
			wantErr: true,
		},
		{
			name:    "missing domain",
			address: "bidder@",
			wantErr: true,
		},
		{
			name:    "missing tld",
			address: "bidder@example",
			wantErr: true,
		},
		{
			name:    "missing local part",
			address: "@example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, err := NewEmail(tt.address)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, email.String())
		})
	}
}

func TestEmailJSON(t *testing.T) {
	data, err := json.Marshal(MustNewEmail("bidder@example.com"))
	require.NoError(t, err)
	assert.Equal(t, `"bidder@example.com"`, string(data))

	var e Email
	require.NoError(t, json.Unmarshal(data, &e))
	assert.True(t, e.Equal(MustNewEmail("bidder@example.com")))

	assert.Error(t, json.Unmarshal([]byte(`"not-an-email"`), &e))
}

func TestEmailScan(t *testing.T) {
	var e Email
	require.NoError(t, e.Scan("bidder@example.com"))
	assert.Equal(t, "bidder@example.com", e.String())

	require.NoError(t, e.Scan(nil))
	assert.True(t, e.IsEmpty())

	assert.Error(t, e.Scan(42))
}
