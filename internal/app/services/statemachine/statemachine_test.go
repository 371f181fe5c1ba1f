package statemachine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
	"github.com/israeldewcom/Real-wealth/internal/app/domain/deposit"
)

func TestAllowedEdges(t *testing.T) {
	cases := []struct {
		entity   Entity
		from, to string
		want     bool
	}{
		{Deposit, "pending", "approved", true},
		{Deposit, "pending", "rejected", true},
		{Deposit, "pending", "cancelled", true},
		{Deposit, "approved", "rejected", false},
		{Deposit, "rejected", "approved", false},
		{Withdrawal, "pending", "approved", true},
		{Withdrawal, "pending", "rejected", true},
		{Withdrawal, "approved", "processing", true},
		{Withdrawal, "processing", "completed", true},
		{Withdrawal, "approved", "rejected", false},
		{Withdrawal, "pending", "completed", false},
		{Withdrawal, "completed", "processing", false},
		{Investment, "pending", "active", true},
		{Investment, "pending", "rejected", true},
		{Investment, "active", "completed", true},
		{Investment, "active", "cancelled", true},
		{Investment, "active", "rejected", false},
		{Investment, "completed", "rejected", false},
		{Investment, "pending", "completed", false},
		{Entity("loan"), "pending", "approved", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Allowed(tc.entity, tc.from, tc.to), "%s %s->%s", tc.entity, tc.from, tc.to)
	}
}

func TestValidateCarriesStates(t *testing.T) {
	err := Validate(Investment, "completed", "rejected")
	require.Error(t, err)
	assert.True(t, core.IsInvalidTransition(err))

	var te *core.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "investment", te.Entity)
	assert.Equal(t, "completed", te.From)
	assert.Equal(t, "rejected", te.To)

	assert.NoError(t, Validate(Deposit, "pending", "approved"))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, IsTerminal(Deposit, "cancelled"))
	assert.True(t, IsTerminal(Withdrawal, "rejected"))
	assert.True(t, IsTerminal(Withdrawal, "completed"))
	assert.False(t, IsTerminal(Withdrawal, "approved"))
	assert.True(t, IsTerminal(Investment, "rejected"))
	assert.False(t, IsTerminal(Investment, "active"))
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	for entity, tbl := range tables {
		for state := range tbl.terminal {
			assert.Empty(t, tbl.edges[state], "%s terminal state %s has edges", entity, state)
		}
	}
}

func TestInitial(t *testing.T) {
	for _, e := range []Entity{Deposit, Withdrawal, Investment} {
		assert.Equal(t, "pending", Initial(e))
	}
}

func TestCheckSeparatesDuplicatesFromInvalidMoves(t *testing.T) {
	err := Check(Deposit, "d1", deposit.StatusApproved, deposit.StatusApproved)
	assert.True(t, errors.Is(err, core.ErrAlreadyProcessed))
	assert.False(t, errors.Is(err, core.ErrInvalidTransition))

	err = Check(Deposit, "d1", deposit.StatusApproved, deposit.StatusRejected)
	assert.True(t, errors.Is(err, core.ErrInvalidTransition))

	assert.NoError(t, Check(Deposit, "d1", deposit.StatusPending, deposit.StatusRejected))
}

func TestCheckApprovingSettledRecordIsAlreadyProcessed(t *testing.T) {
	cases := []struct {
		entity   Entity
		from, to string
	}{
		{Deposit, "rejected", "approved"},
		{Deposit, "cancelled", "approved"},
		{Withdrawal, "rejected", "approved"},
		{Withdrawal, "completed", "approved"},
		{Investment, "rejected", "active"},
		{Investment, "completed", "active"},
	}
	for _, tc := range cases {
		err := Check(tc.entity, "x1", tc.from, tc.to)
		assert.True(t, errors.Is(err, core.ErrAlreadyProcessed), "%s %s->%s: %v", tc.entity, tc.from, tc.to, err)
		assert.False(t, errors.Is(err, core.ErrInvalidTransition), "%s %s->%s", tc.entity, tc.from, tc.to)
	}

	// rejecting after approval stays an invalid transition
	for _, tc := range []struct {
		entity   Entity
		from, to string
	}{
		{Deposit, "approved", "rejected"},
		{Withdrawal, "approved", "rejected"},
		{Investment, "active", "rejected"},
		{Investment, "completed", "rejected"},
	} {
		assert.True(t, core.IsInvalidTransition(Check(tc.entity, "x1", tc.from, tc.to)), "%s %s->%s", tc.entity, tc.from, tc.to)
	}
}
