package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mesapos/mesa-backend/pkg/errors"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{TableAvailable, TableOccupied, true},
		{TableAvailable, TableReserved, true},
		{TableAvailable, TableBlocked, true},
		{TableOccupied, TableAvailable, true},
		{TableOccupied, TableBlocked, false},
		{TableOccupied, TableReserved, false},
		{TableReserved, TableOccupied, true},
		{TableBlocked, TableAvailable, true},
		{TableBlocked, TableOccupied, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition_OccupiedReason(t *testing.T) {
	err := ValidateTransition(TableOccupied, TableBlocked)
	assert.Equal(t, ReasonTableOccupied, errors.ReasonOf(err))

	err = ValidateTransition(TableBlocked, TableOccupied)
	assert.Equal(t, ReasonTableNotAvailable, errors.ReasonOf(err))
}
