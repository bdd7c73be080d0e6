package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		paid bool
		want error
	}{
		{name: "forward to preparing", from: StatusSent, to: StatusPreparing},
		{name: "forward to ready", from: StatusPreparing, to: StatusReady},
		{name: "ready to delivered", from: StatusReady, to: StatusDelivered},
		{name: "sent to delivered", from: StatusSent, to: StatusDelivered, want: ErrInvalidTransition},
		{name: "preparing to delivered", from: StatusPreparing, to: StatusDelivered, want: ErrInvalidTransition},
		{name: "backward ready to sent", from: StatusReady, to: StatusSent},
		{name: "backward delivered to ready", from: StatusDelivered, to: StatusReady},
		{name: "same status", from: StatusDelivered, to: StatusDelivered},
		{name: "cancel sent", from: StatusSent, to: StatusCancelled},
		{name: "cancel delivered", from: StatusDelivered, to: StatusCancelled, want: ErrInvalidTransition},
		{name: "cancel paid", from: StatusReady, to: StatusCancelled, paid: true, want: ErrOrderPaid},
		{name: "cancelled is terminal", from: StatusCancelled, to: StatusSent, want: ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanTransition(tt.from, tt.to, tt.paid)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" Ready ")
	assert.NoError(t, err)
	assert.Equal(t, StatusReady, status)

	_, err = ParseStatus("served")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOrderOpen(t *testing.T) {
	assert.True(t, Order{Status: StatusSent}.Open())
	assert.True(t, Order{Status: StatusDelivered}.Open())
	assert.True(t, Order{Status: StatusReady, IsPaid: true}.Open())
	assert.False(t, Order{Status: StatusDelivered, IsPaid: true}.Open())
	assert.False(t, Order{Status: StatusCancelled}.Open())
}
