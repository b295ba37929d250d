// Package ledger owns the canonical list of expenses and keeps its persisted
// snapshot in step with every mutation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
	applog "despesas/internal/log"
	"despesas/internal/storage"
)

// SnapshotKey is the key the full expense list is stored under.
const SnapshotKey = "MinhasDespesas"

var (
	ErrExpenseNotFound  = errors.New("expense not found")
	ErrNoEditInProgress = errors.New("no edit in progress")
	// ErrMalformedSnapshot means the stored list cannot be decoded; retrying
	// will not help until the snapshot is repaired.
	ErrMalformedSnapshot = errors.New("malformed ledger snapshot")
)

// Notifier is told about every persisted change.
type Notifier interface {
	PublishLedgerChanged(ctx context.Context, change core.LedgerChange) error
}

// EditBuffer holds the fields of the record being edited.
type EditBuffer struct {
	ID    int64      `json:"id"`
	Draft core.Draft `json:"draft"`
}

// Ledger is safe for concurrent use; every operation runs to completion
// under one lock, including the snapshot write.
type Ledger struct {
	mu       sync.Mutex
	records  []core.Expense
	editing  *EditBuffer
	store    storage.KeyValue
	taxonomy core.Taxonomy
	notifier Notifier
	now      func() time.Time
	logger   *applog.Logger
}

type Option func(*Ledger)

// WithClock overrides time.Now for ids and dates.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithLogger(logger *applog.Logger) Option {
	return func(l *Ledger) { l.logger = logger.WithComponent(applog.ComponentLedger) }
}

// Open loads the snapshot from store. A missing snapshot is an empty ledger;
// a malformed one is an error.
func Open(ctx context.Context, store storage.KeyValue, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:    store,
		taxonomy: core.DefaultTaxonomy(),
		now:      time.Now,
		logger:   applog.Default(applog.ComponentLedger),
	}
	for _, opt := range opts {
		opt(l)
	}

	records, err := Load(ctx, store)
	if err != nil {
		return nil, err
	}
	l.records = records

	l.logger.InfoContext(ctx, "Ledger loaded",
		applog.FieldOperation, applog.OpLoad,
		applog.FieldCount, len(records))
	return l, nil
}

// Load reads and decodes the snapshot without building a ledger.
func Load(ctx context.Context, store storage.KeyValue) ([]core.Expense, error) {
	raw, err := store.Get(ctx, SnapshotKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return []core.Expense{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	records, err := DecodeSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	return records, nil
}

// Taxonomy returns the category table used for validation.
func (l *Ledger) Taxonomy() core.Taxonomy {
	return l.taxonomy
}

// Add validates d and appends a new expense dated today.
func (l *Ledger) Add(ctx context.Context, d core.Draft) ([]core.Expense, error) {
	if err := l.validate(ctx, d); err != nil {
		return nil, err
	}

	l.mu.Lock()
	now := l.now()
	e := core.Expense{ID: l.nextID(now), Date: core.DateOf(now)}.Apply(d)

	next := append(slices.Clone(l.records), e)
	if err := l.commit(ctx, next); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	out, change := slices.Clone(l.records), l.change(core.ChangeAdd, e.ID)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "Expense added", applog.NewFields().
		WithExpense(e.ID, e.Text, e.Value, e.Category, e.SubCategory).
		WithOperation(applog.OpAdd).ToSlice()...)
	l.notify(ctx, change)

	return out, nil
}

// StartEdit loads the record's fields into the editing buffer.
func (l *Ledger) StartEdit(id int64) (core.Draft, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.index(id)
	if i < 0 {
		return core.Draft{}, ErrExpenseNotFound
	}
	d := core.DraftOf(l.records[i])
	l.editing = &EditBuffer{ID: id, Draft: d}
	return d, nil
}

// UpdateEdit replaces the buffered fields.
func (l *Ledger) UpdateEdit(d core.Draft) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.editing == nil {
		return ErrNoEditInProgress
	}
	l.editing.Draft = d
	return nil
}

// Editing returns the current buffer, if any.
func (l *Ledger) Editing() (EditBuffer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.editing == nil {
		return EditBuffer{}, false
	}
	return *l.editing, true
}

func (l *Ledger) CancelEdit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.editing = nil
}

// CommitEdit validates the buffer and replaces the buffered record's text,
// category, subcategory and value. The buffer survives a failed commit.
func (l *Ledger) CommitEdit(ctx context.Context) ([]core.Expense, error) {
	l.mu.Lock()
	if l.editing == nil {
		l.mu.Unlock()
		return nil, ErrNoEditInProgress
	}
	buf := *l.editing
	if err := l.validate(ctx, buf.Draft); err != nil {
		l.mu.Unlock()
		return nil, err
	}

	i := l.index(buf.ID)
	if i < 0 {
		// Removed while being edited; there is nothing left to save.
		l.editing = nil
		l.mu.Unlock()
		return nil, ErrExpenseNotFound
	}

	next := slices.Clone(l.records)
	next[i] = next[i].Apply(buf.Draft)
	if err := l.commit(ctx, next); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.editing = nil

	e := next[i]
	out, change := slices.Clone(l.records), l.change(core.ChangeEdit, e.ID)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "Expense edited", applog.NewFields().
		WithExpense(e.ID, e.Text, e.Value, e.Category, e.SubCategory).
		WithOperation(applog.OpEdit).ToSlice()...)
	l.notify(ctx, change)

	return out, nil
}

// Remove deletes the record with id. Unknown ids are a no-op.
func (l *Ledger) Remove(ctx context.Context, id int64) ([]core.Expense, error) {
	l.mu.Lock()
	i := l.index(id)
	if i < 0 {
		out := slices.Clone(l.records)
		l.mu.Unlock()
		return out, nil
	}

	next := slices.Delete(slices.Clone(l.records), i, i+1)
	if err := l.commit(ctx, next); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	out, change := slices.Clone(l.records), l.change(core.ChangeRemove, id)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "Expense removed",
		applog.FieldExpenseID, id,
		applog.FieldOperation, applog.OpRemove)
	l.notify(ctx, change)

	return out, nil
}

// List returns a copy of every record in insertion order.
func (l *Ledger) List() []core.Expense {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}

// ListByCategory returns the records of one category, or all of them for core.AllFilter.
func (l *Ledger) ListByCategory(filter string) []core.Expense {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]core.Expense, 0, len(l.records))
	for _, e := range l.records {
		if filter == core.AllFilter || e.Category == filter {
			out = append(out, e)
		}
	}
	return out
}

// Total sums every record's value.
func (l *Ledger) Total() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return core.Total(l.records)
}

func (l *Ledger) validate(ctx context.Context, d core.Draft) error {
	err := d.Validate()
	if err == nil {
		err = l.taxonomy.Check(d.Normalized())
	}
	if err != nil {
		l.logger.DebugContext(ctx, "Draft rejected", applog.NewFields().
			WithOperation(applog.OpValidate).
			WithError(err).ToSlice()...)
	}
	return err
}

// commit persists next and only then makes it the current list.
func (l *Ledger) commit(ctx context.Context, next []core.Expense) error {
	raw, err := EncodeSnapshot(next)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := l.store.Put(ctx, SnapshotKey, raw); err != nil {
		l.logger.ErrorContext(ctx, "Failed to persist ledger", applog.NewFields().
			WithOperation(applog.OpPersist).
			WithError(err).ToSlice()...)
		return fmt.Errorf("write snapshot: %w", err)
	}
	l.records = next
	return nil
}

// change describes the mutation just committed; callers hold l.mu.
func (l *Ledger) change(op string, id int64) core.LedgerChange {
	return core.LedgerChange{Op: op, ID: id, Count: len(l.records), Timestamp: l.now()}
}

// notify runs after l.mu is released so a slow broker never blocks readers.
func (l *Ledger) notify(ctx context.Context, change core.LedgerChange) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.PublishLedgerChanged(ctx, change); err != nil {
		l.logger.WarnContext(ctx, "Failed to publish ledger change",
			applog.FieldOperation, change.Op,
			applog.FieldExpenseID, change.ID,
			applog.FieldError, err)
	}
}

// nextID is the creation time in milliseconds, bumped past any existing id so
// two adds within the same millisecond stay distinct.
func (l *Ledger) nextID(now time.Time) int64 {
	id := now.UnixMilli()
	for _, e := range l.records {
		if e.ID >= id {
			id = e.ID + 1
		}
	}
	return id
}

func (l *Ledger) index(id int64) int {
	return slices.IndexFunc(l.records, func(e core.Expense) bool { return e.ID == id })
}
