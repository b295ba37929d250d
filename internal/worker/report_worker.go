// Package worker reacts to ledger change notifications outside the server
// process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"despesas/internal/amqp"
	"despesas/internal/core"
	"despesas/internal/ledger"
	applog "despesas/internal/log"
	"despesas/internal/report"
	"despesas/internal/storage"
)

// ReportWorker recomputes the current month overview from the persisted
// snapshot whenever the ledger changes.
type ReportWorker struct {
	store  storage.KeyValue
	now    func() time.Time
	logger *applog.Logger

	mu   sync.Mutex
	last report.Overview
	runs int
}

type Option func(*ReportWorker)

func WithClock(now func() time.Time) Option {
	return func(w *ReportWorker) { w.now = now }
}

func WithLogger(logger *applog.Logger) Option {
	return func(w *ReportWorker) { w.logger = logger.WithComponent(applog.ComponentWorker) }
}

func NewReportWorker(store storage.KeyValue, opts ...Option) *ReportWorker {
	w := &ReportWorker{
		store:  store,
		now:    time.Now,
		logger: applog.Default(applog.ComponentWorker),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleLedgerChange processes a single change message from AMQP. The
// snapshot is reloaded so out-of-order messages converge on the same report.
func (w *ReportWorker) HandleLedgerChange(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger change",
		applog.FieldOperation, msg.Op,
		applog.FieldExpenseID, msg.ID,
		applog.FieldCount, msg.Count)

	_, err := w.Refresh(ctx)
	switch {
	case errors.Is(err, ledger.ErrMalformedSnapshot):
		return fmt.Errorf("refresh report: %w: %w", amqp.ErrDiscard, err)
	case err != nil:
		return fmt.Errorf("refresh report: %w", err)
	}
	return nil
}

// Refresh builds the overview of the current month.
func (w *ReportWorker) Refresh(ctx context.Context) (report.Overview, error) {
	records, err := ledger.Load(ctx, w.store)
	if err != nil {
		return report.Overview{}, err
	}

	now := w.now()
	ov, err := report.Build(records, report.Filter{
		Year:        now.Year(),
		Month:       int(now.Month()),
		Category:    core.AllFilter,
		SubCategory: core.AllFilter,
	})
	if err != nil {
		return report.Overview{}, err
	}

	w.mu.Lock()
	w.last = ov
	w.runs++
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Monthly report",
		applog.FieldYear, ov.Filter.Year,
		applog.FieldMonth, ov.Filter.Month,
		applog.FieldCount, ov.Records,
		"month_total", ov.MonthlyTotal.StringFixed(2),
		"month_average", ov.MonthlyAverage.StringFixed(2),
		"ledger_total", ov.LedgerTotal.StringFixed(2))
	for _, s := range ov.MonthlySums {
		w.logger.DebugContext(ctx, "Category sum",
			applog.FieldCategory, s.Name,
			applog.FieldValue, s.Amount.StringFixed(2))
	}
	return ov, nil
}

// RunPeriodic refreshes every interval until ctx is done. It backs up the
// AMQP path when messages are lost.
func (w *ReportWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Refresh(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic report failed", applog.FieldError, err)
			}
		}
	}
}

// Last returns the most recent overview and how many refreshes ran.
func (w *ReportWorker) Last() (report.Overview, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.runs
}
