// Package transmit is the boundary to the external print driver. The
// dispatch core renders jobs and decides routing; drivers move bytes.
package transmit

import (
	"context"
	"sync"

	"github.com/mesapos/mesa-backend/pkg/logger"
)

// Transmitter hands a rendered job to the driver for a printer. An error
// marks the job FAILED with the error recorded.
type Transmitter interface {
	Transmit(ctx context.Context, printerID, content string) error
}

// Spool is the in-process transmitter used in development and tests. It
// accepts every job and keeps a record per printer.
type Spool struct {
	mu     sync.Mutex
	sent   map[string][]string
	logger *logger.Logger
}

// NewSpool creates a spool transmitter.
func NewSpool(log *logger.Logger) *Spool {
	return &Spool{sent: make(map[string][]string), logger: log.WithComponent("print-spool")}
}

// Transmit records the job against the printer.
func (s *Spool) Transmit(_ context.Context, printerID, content string) error {
	s.mu.Lock()
	s.sent[printerID] = append(s.sent[printerID], content)
	s.mu.Unlock()

	s.logger.Debug().Str("printer_id", printerID).Msg("job spooled")
	return nil
}

// Sent returns the jobs recorded for a printer.
func (s *Spool) Sent(printerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent[printerID]))
	copy(out, s.sent[printerID])
	return out
}
