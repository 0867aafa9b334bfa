package ticket

import (
	"context"
	"time"

	"github.com/appetiteclub/comanda/internal/metrics"
	"github.com/aquamarinepk/aqm"
	"github.com/juju/clock"
)

// DefaultSettle is the pause before a job is handed to the printer.
const DefaultSettle = 500 * time.Millisecond

// Printer accepts rendered documents.
type Printer interface {
	Print(ctx context.Context, doc *Document) error
}

// Spooler submits documents to a printer after a settle delay.
type Spooler struct {
	printer Printer
	settle  time.Duration
	clock   clock.Clock
	metrics *metrics.Collector
	logger  aqm.Logger
}

type SpoolerOption func(*Spooler)

func WithSettle(d time.Duration) SpoolerOption {
	return func(s *Spooler) {
		if d >= 0 {
			s.settle = d
		}
	}
}

func WithClock(clk clock.Clock) SpoolerOption {
	return func(s *Spooler) {
		if clk != nil {
			s.clock = clk
		}
	}
}

func WithMetrics(m *metrics.Collector) SpoolerOption {
	return func(s *Spooler) {
		s.metrics = m
	}
}

func WithLogger(logger aqm.Logger) SpoolerOption {
	return func(s *Spooler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSpooler(printer Printer, opts ...SpoolerOption) *Spooler {
	s := &Spooler{
		printer: printer,
		settle:  DefaultSettle,
		clock:   clock.WallClock,
		logger:  aqm.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit waits the settle delay and prints doc. A nil doc is a no-op.
func (s *Spooler) Submit(ctx context.Context, doc *Document) error {
	if doc == nil {
		return nil
	}
	if s.printer == nil {
		return ErrNoPrinter
	}

	if s.settle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.settle):
		}
	}

	err := s.printer.Print(ctx, doc)
	s.metrics.Printed(doc.Kind, err)
	if err != nil {
		s.logger.Error("print job failed", "job", doc.Name, "kind", doc.Kind, "error", err)
		return err
	}

	s.logger.Info("print job submitted", "job", doc.Name, "kind", doc.Kind)
	return nil
}
