package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStatus_Transitions(t *testing.T) {
	all := []DeliveryStatus{DeliveryStatusPreparing, DeliveryStatusInFlight, DeliveryStatusDelivered}
	allowed := map[[2]DeliveryStatus]bool{
		{DeliveryStatusPreparing, DeliveryStatusInFlight}: true,
		{DeliveryStatusInFlight, DeliveryStatusDelivered}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]DeliveryStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	_, ok := DeliveryStatusDelivered.Next()
	assert.False(t, ok)
	assert.False(t, DeliveryStatus("LOST").Valid())
}

func TestDeliveryOption_Valid(t *testing.T) {
	assert.True(t, DeliveryOptionDrone.Valid())
	assert.True(t, DeliveryOptionPickup.Valid())
	assert.False(t, DeliveryOption("COURIER").Valid())
}
