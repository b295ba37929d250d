package currency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	applog "despesas/internal/log"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusPending  Status = "pending"
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// User-facing messages of the failed outcomes.
const (
	MessageNotFound    = "currency not found"
	MessageUnavailable = "could not reach the exchange-rate service, please try again"
)

// Converting is satisfied by *Converter.
type Converting interface {
	Convert(ctx context.Context, total decimal.Decimal, target string) (Conversion, error)
}

// View is the reporting view of conversions. A failed request changes the
// status and message but keeps the last successful result.
type View struct {
	Seq       uint64      `json:"seq"`
	Status    Status      `json:"status"`
	Target    string      `json:"target,omitempty"`
	Message   string      `json:"message,omitempty"`
	Rate      string      `json:"rate,omitempty"`
	Converted string      `json:"converted,omitempty"`
	Result    *Conversion `json:"result,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Outcome is delivered once per request when its lookup resolves.
type Outcome struct {
	Seq     uint64
	Applied bool
	Err     error
}

// Tracker runs conversion requests in the background and applies a result
// only while its sequence number is the latest one issued.
type Tracker struct {
	mu      sync.Mutex
	conv    Converting
	seq     uint64
	view    View
	timeout time.Duration
	wg      sync.WaitGroup
	now     func() time.Time
	logger  *applog.Logger
}

type TrackerOption func(*Tracker)

// WithTimeout bounds each background lookup; zero means no bound.
func WithTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.timeout = d }
}

func WithTrackerLogger(logger *applog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger.WithComponent(applog.ComponentCurrency) }
}

func NewTracker(conv Converting, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		conv:   conv,
		now:    time.Now,
		logger: applog.Default(applog.ComponentCurrency),
	}
	t.view = View{Status: StatusIdle, UpdatedAt: t.now()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// View returns the current reporting view.
func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.view
	if v.Result != nil {
		r := *v.Result
		v.Result = &r
	}
	return v
}

// Request starts converting total into target and returns the request's
// sequence number. The channel receives exactly one Outcome.
func (t *Tracker) Request(total decimal.Decimal, target string) (uint64, <-chan Outcome) {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.view.Seq = seq
	t.view.Status = StatusPending
	t.view.Target = target
	t.view.Message = ""
	t.view.UpdatedAt = t.now()
	t.mu.Unlock()

	done := make(chan Outcome, 1)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx := context.Background()
		if t.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.timeout)
			defer cancel()
		}

		conv, err := t.conv.Convert(ctx, total, target)
		applied := t.apply(seq, target, conv, err)
		done <- Outcome{Seq: seq, Applied: applied, Err: err}
	}()

	return seq, done
}

// Wait blocks until every started request has resolved.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) apply(seq uint64, target string, conv Conversion, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if seq != t.seq {
		t.logger.Debug("Discarding superseded conversion",
			applog.FieldSequence, seq,
			"latest", t.seq,
			applog.FieldCurrency, target)
		return false
	}

	t.view.UpdatedAt = t.now()
	switch {
	case err == nil:
		t.view.Status = StatusOK
		t.view.Message = ""
		t.view.Rate = conv.RateString()
		t.view.Converted = conv.ConvertedString()
		t.view.Result = &conv
	case errors.Is(err, ErrCurrencyNotFound):
		t.view.Status = StatusNotFound
		t.view.Message = MessageNotFound
	default:
		t.view.Status = StatusError
		t.view.Message = MessageUnavailable
	}
	return true
}
