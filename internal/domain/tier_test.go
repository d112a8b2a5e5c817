package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierPrice(t *testing.T) {
	want := []int64{10, 20, 40, 80, 160, 320, 640, 1280, 2560, 5120, 10240, 20480}
	for i, units := range want {
		assert.Equal(t, NewMoney(units), TierPrice(i+1), "tier %d", i+1)
	}
	assert.Zero(t, TierPrice(0))
	assert.Zero(t, TierPrice(TierCount+1))
}

func TestTierCostAndCommission(t *testing.T) {
	assert.Equal(t, Money(1050), TierCost(1))
	assert.Equal(t, Money(100), Commission(TierPrice(1)))
	assert.Equal(t, Money(900), NetOfCommission(TierPrice(1)))
	assert.Equal(t, NewMoney(18432), NetOfCommission(TierPrice(12)))
}

func TestMoney_StringAndParse(t *testing.T) {
	assert.Equal(t, "8.50", Money(850).String())

	m, err := ParseMoney("16.005")
	assert.NoError(t, err)
	assert.Equal(t, Money(1601), m)

	_, err = ParseMoney("abc")
	assert.Error(t, err)
}

func TestMoney_UnmarshalAcceptsNumbersAndStrings(t *testing.T) {
	var a, b Money
	assert.NoError(t, a.UnmarshalJSON([]byte(`"9.00"`)))
	assert.NoError(t, b.UnmarshalJSON([]byte(`9`)))
	assert.Equal(t, a, b)
}
