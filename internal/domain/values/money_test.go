package values

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name    string
		amount  decimal.Decimal
		wantErr bool
	}{
		{
			name:    "valid two decimal places",
			amount:  decimal.NewFromFloat(123.45),
			wantErr: false,
		},
		{
			name:    "integer amount",
			amount:  decimal.NewFromInt(100),
			wantErr: false,
		},
		{
			name:    "zero amount",
			amount:  decimal.Zero,
			wantErr: false,
		},
		{
			name:    "negative amount",
			amount:  decimal.NewFromFloat(-50.0),
			wantErr: false,
		},
		{
			name:    "sub-cent precision rejected",
			amount:  decimal.RequireFromString("10.001"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			money, err := NewMoney(tt.amount)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, money.Amount().Equal(tt.amount))
		})
	}
}

func TestNewMoneyFromString(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		expected string
		wantErr  bool
	}{
		{
			name:     "valid decimal string",
			amount:   "123.45",
			expected: "123.45",
		},
		{
			name:     "integer string",
			amount:   "100",
			expected: "100.00",
		},
		{
			name:     "single decimal place",
			amount:   "50.5",
			expected: "50.50",
		},
		{
			name:     "surrounding whitespace",
			amount:   " 10.00 ",
			expected: "10.00",
		},
		{
			name:    "not a number",
			amount:  "fifty",
			wantErr: true,
		},
		{
			name:    "empty string",
			amount:  "",
			wantErr: true,
		},
		{
			name:    "three decimal places",
			amount:  "10.005",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			money, err := NewMoneyFromString(tt.amount)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, money.String())
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		sum := MustMoney("450.00").Add(MustMoney("50.00"))
		assert.Equal(t, "500.00", sum.String())
	})

	t.Run("sub", func(t *testing.T) {
		diff := MustMoney("500.00").Sub(MustMoney("50.00"))
		assert.Equal(t, "450.00", diff.String())
	})

	t.Run("sub below zero", func(t *testing.T) {
		diff := MustMoney("10.00").Sub(MustMoney("50.00"))
		assert.True(t, diff.IsNegative())
	})

	t.Run("comparisons", func(t *testing.T) {
		a := MustMoney("50.00")
		b := MustMoney("50.01")

		assert.True(t, b.GreaterThan(a))
		assert.True(t, a.LessThan(b))
		assert.False(t, a.GreaterThan(a))
		assert.True(t, a.Equal(MustMoney("50")))
		assert.Equal(t, -1, a.Compare(b))
		assert.Equal(t, 0, a.Compare(a))
		assert.Equal(t, 1, b.Compare(a))
	})
}

func TestMoneyPrecisionTiers(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		fitsPrice   bool
		fitsBalance bool
	}{
		{"typical price", "9999999999.99", true, true},
		{"price overflow", "10000000000.00", false, true},
		{"balance overflow", "1000000000000.00", false, false},
		{"negative within range", "-9999999999.99", true, true},
		{"zero", "0.00", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MustMoney(tt.amount)
			assert.Equal(t, tt.fitsPrice, m.FitsPrice())
			assert.Equal(t, tt.fitsBalance, m.FitsBalance())
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	t.Run("marshals as fixed-point string", func(t *testing.T) {
		data, err := json.Marshal(MustMoney("50.00"))
		require.NoError(t, err)
		assert.Equal(t, `"50.00"`, string(data))
	})

	t.Run("unmarshals string encoding", func(t *testing.T) {
		var m Money
		require.NoError(t, json.Unmarshal([]byte(`"123.45"`), &m))
		assert.Equal(t, "123.45", m.String())
	})

	t.Run("unmarshals bare number", func(t *testing.T) {
		var m Money
		require.NoError(t, json.Unmarshal([]byte(`60.5`), &m))
		assert.Equal(t, "60.50", m.String())
	})

	t.Run("rejects malformed amount", func(t *testing.T) {
		var m Money
		assert.Error(t, json.Unmarshal([]byte(`"1,000"`), &m))
	})
}

func TestMoneyScan(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected string
		wantErr  bool
	}{
		{"string numeric", "450.00", "450.00", false},
		{"byte slice", []byte("100.50"), "100.50", false},
		{"int64", int64(75), "75.00", false},
		{"nil becomes zero", nil, "0.00", false},
		{"unsupported type", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Money
			err := m.Scan(tt.value)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, m.String())
		})
	}
}

func TestMoneyValue(t *testing.T) {
	v, err := MustMoney("80.00").Value()
	require.NoError(t, err)
	assert.Equal(t, "80.00", v)
}
