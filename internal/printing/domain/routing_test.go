package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/mesa-backend/pkg/errors"
)

func lookupFrom(nodes map[string]*Node) func(id string) (*Node, error) {
	return func(id string) (*Node, error) {
		node, ok := nodes[id]
		if !ok {
			return nil, errors.NotFound("printer")
		}
		return node, nil
	}
}

func redirect(id, to string) *Node {
	return &Node{ID: id, Status: PrinterRedirect, RedirectTo: &to}
}

func TestResolve_DirectStatuses(t *testing.T) {
	lookup := lookupFrom(nil)

	res, err := Resolve(&Node{ID: "a", Status: PrinterNormal}, lookup)
	require.NoError(t, err)
	assert.Equal(t, ActionTransmit, res.Action)
	assert.Equal(t, "a", res.PrinterID)

	res, err = Resolve(&Node{ID: "a", Status: PrinterWait}, lookup)
	require.NoError(t, err)
	assert.Equal(t, ActionWait, res.Action)

	res, err = Resolve(&Node{ID: "a", Status: PrinterIgnore}, lookup)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
}

func TestResolve_RedirectChain(t *testing.T) {
	nodes := map[string]*Node{
		"b": redirect("b", "c"),
		"c": {ID: "c", Status: PrinterNormal},
	}
	res, err := Resolve(redirect("a", "b"), lookupFrom(nodes))
	require.NoError(t, err)
	assert.Equal(t, "c", res.PrinterID)
	assert.Equal(t, ActionTransmit, res.Action)
}

func TestResolve_ChainEndingInIgnoreSkips(t *testing.T) {
	nodes := map[string]*Node{
		"b": {ID: "b", Status: PrinterIgnore},
	}
	res, err := Resolve(redirect("a", "b"), lookupFrom(nodes))
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
	assert.Equal(t, "b", res.PrinterID)
}

func TestResolve_CycleHitsHopBound(t *testing.T) {
	nodes := map[string]*Node{
		"a": redirect("a", "b"),
		"b": redirect("b", "a"),
	}
	_, err := Resolve(nodes["a"], lookupFrom(nodes))
	require.Error(t, err)
	assert.Equal(t, ReasonRedirectCycle, errors.ReasonOf(err))
}

func TestCheckRedirect_RejectsCycle(t *testing.T) {
	// a → b → a would loop.
	nodes := map[string]*Node{
		"b": redirect("b", "a"),
	}
	err := CheckRedirect("a", "b", lookupFrom(nodes))
	require.Error(t, err)
	assert.Equal(t, ReasonRedirectCycle, errors.ReasonOf(err))
}

func TestCheckRedirect_AllowsChainToTerminal(t *testing.T) {
	nodes := map[string]*Node{
		"b": redirect("b", "c"),
		"c": {ID: "c", Status: PrinterWait},
	}
	require.NoError(t, CheckRedirect("a", "b", lookupFrom(nodes)))
}

func TestCheckRedirect_RejectsSelfTarget(t *testing.T) {
	err := CheckRedirect("a", "a", lookupFrom(nil))
	require.Error(t, err)
	assert.Equal(t, ReasonRedirectCycle, errors.ReasonOf(err))
}

func TestDedupeKey_Deterministic(t *testing.T) {
	k1 := DedupeKey("o", "l", "p", 1)
	k2 := DedupeKey("o", "l", "p", 1)
	assert.Equal(t, k1, k2)

	// A re-confirmation produces a new key for the same line.
	assert.NotEqual(t, k1, DedupeKey("o", "l", "p", 2))
	assert.NotEqual(t, k1, ReprintKey("o", "l", "p", "nonce"))
	assert.NotEqual(t, ReprintKey("o", "l", "p", "n1"), ReprintKey("o", "l", "p", "n2"))
}

func TestTicketRender(t *testing.T) {
	table := 7
	content := Ticket{
		TableNumber: &table,
		ItemName:    "Bacalhau à Brás",
		Quantity:    2,
		Modifiers:   "sem azeitonas",
		Notes:       "partilhar",
		ConfirmedAt: time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC),
	}.Render()

	assert.Contains(t, content, "MESA 7")
	assert.Contains(t, content, "2x Bacalhau à Brás")
	assert.Contains(t, content, "sem azeitonas")
	assert.Contains(t, content, "OBS: partilhar")
	assert.Contains(t, content, "2026-03-14 19:30:00")
}

func TestTicketRender_NoTable(t *testing.T) {
	content := Ticket{ItemName: "Espresso", Quantity: 1, ConfirmedAt: time.Now()}.Render()
	assert.NotContains(t, content, "MESA")
	assert.Contains(t, content, "1x Espresso")
}
