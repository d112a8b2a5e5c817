package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"matrix/internal/domain"
)

func TestValidate_PurchaseEvent(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(&domain.PurchaseEvent{BuyerID: 7, Tier: 12}))

	err := v.Validate(&domain.PurchaseEvent{BuyerID: 7, Tier: 13})
	assert.ErrorContains(t, err, "Tier")
	assert.Equal(t, []string{"Tier"}, v.FailedFields(&domain.PurchaseEvent{BuyerID: 7, Tier: 0}))

	assert.Equal(t, []string{"BuyerID"}, v.FailedFields(&domain.PurchaseEvent{Tier: 1}))
	assert.Equal(t, []string{"GrossAmount"}, v.FailedFields(&domain.PurchaseEvent{BuyerID: 2, Tier: 1, GrossAmount: -1}))
}
