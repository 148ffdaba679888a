// Package domain holds the floor state machine.
package domain

import "github.com/mesapos/mesa-backend/pkg/errors"

// Table statuses.
const (
	TableAvailable = "AVAILABLE"
	TableOccupied  = "OCCUPIED"
	TableReserved  = "RESERVED"
	TableBlocked   = "BLOCKED"
)

// Blacklist entity types.
const (
	BlacklistTable = "TABLE"
	BlacklistCard  = "CARD"
)

// Business-rule reasons surfaced to clients.
const (
	ReasonTableNotAvailable = "TABLE_NOT_AVAILABLE"
	ReasonTableOccupied     = "TABLE_OCCUPIED"
	ReasonTableBlacklisted  = "TABLE_BLACKLISTED"
)

var tableTransitions = map[string]map[string]bool{
	TableAvailable: {TableOccupied: true, TableReserved: true, TableBlocked: true},
	TableOccupied:  {TableAvailable: true},
	TableReserved:  {TableAvailable: true, TableOccupied: true, TableBlocked: true},
	TableBlocked:   {TableAvailable: true},
}

// CanTransition reports whether a table may move between the two statuses.
func CanTransition(from, to string) bool {
	return tableTransitions[from][to]
}

// ValidateTransition returns a BUSINESS_RULE error for a forbidden move.
func ValidateTransition(from, to string) error {
	if CanTransition(from, to) {
		return nil
	}
	reason := ReasonTableNotAvailable
	if from == TableOccupied {
		reason = ReasonTableOccupied
	}
	return errors.BusinessRule(reason, "table cannot move from "+from+" to "+to)
}
