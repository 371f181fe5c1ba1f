// Package statemachine holds the status transition tables for deposits,
// withdrawals and investments. Everything here is pure and safe to call
// concurrently without locking.
package statemachine

import (
	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/deposit"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/investment"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/withdrawal"
)

// Entity names a kind of workflow-driven record.
type Entity string

const (
	Deposit    Entity = "deposit"
	Withdrawal Entity = "withdrawal"
	Investment Entity = "investment"
)

type table struct {
	initial  string
	approval string
	edges    map[string][]string
	terminal map[string]bool
}

var tables = map[Entity]table{
	Deposit: {
		initial:  string(deposit.StatusPending),
		approval: string(deposit.StatusApproved),
		edges: map[string][]string{
			string(deposit.StatusPending): {
				string(deposit.StatusApproved),
				string(deposit.StatusRejected),
				string(deposit.StatusCancelled),
			},
		},
		terminal: set(deposit.StatusApproved, deposit.StatusRejected, deposit.StatusCancelled),
	},
	Withdrawal: {
		initial:  string(withdrawal.StatusPending),
		approval: string(withdrawal.StatusApproved),
		edges: map[string][]string{
			string(withdrawal.StatusPending):    {string(withdrawal.StatusApproved), string(withdrawal.StatusRejected)},
			string(withdrawal.StatusApproved):   {string(withdrawal.StatusProcessing)},
			string(withdrawal.StatusProcessing): {string(withdrawal.StatusCompleted)},
		},
		terminal: set(withdrawal.StatusRejected, withdrawal.StatusCompleted),
	},
	Investment: {
		initial:  string(investment.StatusPending),
		approval: string(investment.StatusActive),
		edges: map[string][]string{
			string(investment.StatusPending): {string(investment.StatusActive), string(investment.StatusRejected)},
			string(investment.StatusActive):  {string(investment.StatusCompleted), string(investment.StatusCancelled)},
		},
		terminal: set(investment.StatusCompleted, investment.StatusCancelled, investment.StatusRejected),
	},
}

func set[S ~string](states ...S) map[string]bool {
	m := make(map[string]bool, len(states))
	for _, s := range states {
		m[string(s)] = true
	}
	return m
}

// Allowed reports whether from→to is an edge of the entity's machine.
// Unknown entities allow nothing.
func Allowed[S ~string](entity Entity, from, to S) bool {
	t, ok := tables[entity]
	if !ok {
		return false
	}
	for _, next := range t.edges[string(from)] {
		if next == string(to) {
			return true
		}
	}
	return false
}

// Validate returns a *core.TransitionError when from→to is not allowed.
func Validate[S ~string](entity Entity, from, to S) error {
	if Allowed(entity, from, to) {
		return nil
	}
	return &core.TransitionError{Entity: string(entity), From: string(from), To: string(to)}
}

// IsTerminal reports whether no further transition is permitted from state.
func IsTerminal[S ~string](entity Entity, state S) bool {
	return tables[entity].terminal[string(state)]
}

// Initial returns the status every new record of the entity starts in.
func Initial(entity Entity) string {
	return tables[entity].initial
}

// Check guards an admin or user action on a stored record. Repeating a
// transition, or approving a record that already left its initial state, is
// reported as ErrAlreadyProcessed; every other disallowed move is an invalid
// transition.
func Check[S ~string](entity Entity, id string, from, to S) error {
	t := tables[entity]
	if from == to || (t.approval != "" && string(to) == t.approval && string(from) != t.initial) {
		return &core.ProcessedError{Entity: string(entity), ID: id, Status: string(from)}
	}
	return Validate(entity, from, to)
}
