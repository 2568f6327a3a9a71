package money_test

import (
	"encoding/json"
	"testing"

	"fabricmart/pkg/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinor(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		err  error
	}{
		{"25", 2500, nil},
		{"25.5", 2550, nil},
		{"25.50", 2550, nil},
		{"$1,250.99", 125099, nil},
		{"  0.01 ", 1, nil},
		{"", 0, money.ErrEmpty},
		{"$", 0, money.ErrEmpty},
		{"abc", 0, money.ErrMalformed},
		{"0", 0, money.ErrNonPositive},
		{"-3.00", 0, money.ErrNonPositive},
		{"1.234", 0, money.ErrPrecision},
		{"1000000", 0, money.ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := money.ParseMinor(tc.in)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheckBounds(t *testing.T) {
	assert.NoError(t, money.CheckMinor(1))
	assert.NoError(t, money.CheckMinor(money.MaxMinor))
	assert.ErrorIs(t, money.CheckMinor(0), money.ErrNonPositive)
	assert.ErrorIs(t, money.CheckMinor(money.MaxMinor+1), money.ErrTooLarge)

	assert.NoError(t, money.CheckQuantity(1))
	assert.Error(t, money.CheckQuantity(0))
	assert.Error(t, money.CheckQuantity(money.MaxQuantity+1))
}

func TestAmountUnmarshal(t *testing.T) {
	var body struct {
		A money.Amount `json:"a"`
		B money.Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":2500,"b":"12.30"}`), &body))
	assert.Equal(t, int64(2500), body.A.Int64())
	assert.Equal(t, int64(1230), body.B.Int64())

	assert.Error(t, json.Unmarshal([]byte(`{"a":25.5}`), &body))
	assert.Error(t, json.Unmarshal([]byte(`{"a":"nope"}`), &body))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "25.50", money.Format(2550))
	assert.Equal(t, "0.05", money.Format(5))
}
