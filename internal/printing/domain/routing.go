// Package domain holds printer routing and job rendering rules.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mesapos/mesa-backend/pkg/errors"
)

// Printer statuses.
const (
	PrinterNormal   = "NORMAL"
	PrinterWait     = "WAIT"
	PrinterIgnore   = "IGNORE"
	PrinterRedirect = "REDIRECT"
)

// Print job statuses.
const (
	JobPending = "PENDING"
	JobPrinted = "PRINTED"
	JobFailed  = "FAILED"
	JobSkipped = "SKIPPED"
)

// Dispatch actions after the routing walk.
const (
	ActionTransmit = "TRANSMIT"
	ActionWait     = "WAIT"
	ActionSkip     = "SKIP"
)

// Business-rule reasons surfaced to clients.
const (
	ReasonRedirectCycle   = "REDIRECT_CYCLE"
	ReasonRedirectMissing = "REDIRECT_TARGET_REQUIRED"
	ReasonNoRouteForLine  = "NO_ROUTE_FOR_CATEGORY"
)

// maxRedirectHops bounds the dispatch-time walk. Cycles are rejected at
// configuration time; the bound is the backstop for racing reconfigures.
const maxRedirectHops = 8

// Node is the routing view of a printer.
type Node struct {
	ID         string
	Status     string
	RedirectTo *string
}

// Resolution is the outcome of the routing walk: the effective printer
// and what to do with the job.
type Resolution struct {
	PrinterID string
	Action    string
}

// Resolve follows the REDIRECT chain from the printer until a
// non-REDIRECT status decides the job. A chain ending in IGNORE skips
// the job; exceeding the hop bound counts as a cycle.
func Resolve(printer *Node, lookup func(id string) (*Node, error)) (*Resolution, error) {
	current := printer
	for hops := 0; hops < maxRedirectHops; hops++ {
		switch current.Status {
		case PrinterNormal:
			return &Resolution{PrinterID: current.ID, Action: ActionTransmit}, nil
		case PrinterWait:
			return &Resolution{PrinterID: current.ID, Action: ActionWait}, nil
		case PrinterIgnore:
			return &Resolution{PrinterID: current.ID, Action: ActionSkip}, nil
		case PrinterRedirect:
			if current.RedirectTo == nil {
				return nil, errors.BusinessRule(ReasonRedirectMissing, "redirecting printer has no target")
			}
			next, err := lookup(*current.RedirectTo)
			if err != nil {
				return nil, err
			}
			current = next
		default:
			return nil, errors.ValidationMsg("unknown printer status " + current.Status)
		}
	}
	return nil, errors.BusinessRule(ReasonRedirectCycle, "redirect chain exceeds hop bound")
}

// CheckRedirect rejects a redirect configuration whose chain would loop
// back to the printer being configured.
func CheckRedirect(printerID, targetID string, lookup func(id string) (*Node, error)) error {
	seen := map[string]bool{printerID: true}
	nextID := targetID
	for hops := 0; hops < maxRedirectHops; hops++ {
		if seen[nextID] {
			return errors.BusinessRule(ReasonRedirectCycle, "redirect chain forms a cycle")
		}
		seen[nextID] = true
		node, err := lookup(nextID)
		if err != nil {
			return err
		}
		if node.Status != PrinterRedirect || node.RedirectTo == nil {
			return nil
		}
		nextID = *node.RedirectTo
	}
	return errors.BusinessRule(ReasonRedirectCycle, "redirect chain exceeds hop bound")
}

// DedupeKey derives the deterministic job key. Re-delivered OrderConfirmed
// events produce the same key and collide on the unique index instead of
// duplicating jobs.
func DedupeKey(orderID, lineID, printerID string, confirmSeq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", orderID, lineID, printerID, confirmSeq)))
	return hex.EncodeToString(sum[:])
}

// ReprintKey derives a fresh key for a manual reprint: the nonce keeps it
// off the original job's key.
func ReprintKey(orderID, lineID, printerID, nonce string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|reprint|%s", orderID, lineID, printerID, nonce)))
	return hex.EncodeToString(sum[:])
}

// Ticket is the content rendered onto a kitchen slip.
type Ticket struct {
	TableNumber *int
	ItemName    string
	Quantity    int
	Modifiers   string
	Notes       string
	ConfirmedAt time.Time
}

// Render produces the job content the driver sends to the printer.
func (t Ticket) Render() string {
	var b strings.Builder
	if t.TableNumber != nil {
		fmt.Fprintf(&b, "MESA %d\n", *t.TableNumber)
	}
	fmt.Fprintf(&b, "%dx %s\n", t.Quantity, t.ItemName)
	if t.Modifiers != "" {
		fmt.Fprintf(&b, "  %s\n", t.Modifiers)
	}
	if t.Notes != "" {
		fmt.Fprintf(&b, "  OBS: %s\n", t.Notes)
	}
	fmt.Fprintf(&b, "%s\n", t.ConfirmedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}
