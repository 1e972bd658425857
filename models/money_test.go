package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	cases := map[string]Money{
		"12":     1200,
		"12.5":   1250,
		"12.50":  1250,
		"0.05":   5,
		"0":      0,
		"999.99": 99999,
	}
	for in, want := range cases {
		got, err := ParseMoney(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseMoney_Rejects(t *testing.T) {
	for _, in := range []string{"", "-1", "+1", "1.234", "abc", "1.", ".5", "1.-5", "100000000.00"} {
		_, err := ParseMoney(in)
		assert.Error(t, err, in)
	}
}

func TestMoney_JSON(t *testing.T) {
	var p struct {
		Price *Money `json:"price"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"price": 12.5}`), &p))
	require.NotNil(t, p.Price)
	assert.Equal(t, Money(1250), *p.Price)

	require.NoError(t, json.Unmarshal([]byte(`{"price": "7.05"}`), &p))
	assert.Equal(t, Money(705), *p.Price)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"7.05"}`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"price": null}`), &p))
	assert.Nil(t, p.Price)
}
