package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of an expense date.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar day without time of day.
	Date struct {
		time.Time
	}

	Expense struct {
		ID          int64           `json:"id"`
		Text        string          `json:"text"`
		Category    string          `json:"category"`
		SubCategory string          `json:"subCategory"`
		Value       decimal.Decimal `json:"value"`
		Date        Date            `json:"date"`
	}

	// Draft holds the user-editable fields of an expense. Value is unset
	// when the form field was left empty.
	Draft struct {
		Text        string              `json:"text"`
		Category    string              `json:"category"`
		SubCategory string              `json:"subCategory"`
		Value       decimal.NullDecimal `json:"value"`
	}
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrEmptyText        = validationError("empty description")
	ErrEmptyCategory    = validationError("empty category")
	ErrEmptySubCategory = validationError("empty subcategory")
	ErrMissingValue     = validationError("missing value")
	ErrNegativeValue    = validationError("negative value")
	ErrUnknownCategory  = validationError("unknown category")
	ErrUnknownSub       = validationError("subcategory does not belong to category")
	ErrInvalidDate      = errors.New("invalid date")
)

type fieldError struct{ msg string }

func validationError(msg string) error { return &fieldError{msg: msg} }

func (e *fieldError) Error() string { return e.msg }

// Is reports every field error as a validation failure.
func (e *fieldError) Is(target error) bool { return target == ErrValidation }

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Month returns the month as 1-12
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate performs the four-field check shared by add and edit.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Text) == "" {
		return ErrEmptyText
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(d.SubCategory) == "" {
		return ErrEmptySubCategory
	}
	if !d.Value.Valid {
		return ErrMissingValue
	}
	if d.Value.Decimal.IsNegative() {
		return ErrNegativeValue
	}
	return nil
}

// Normalized returns the draft with whitespace trimmed from its text fields.
func (d Draft) Normalized() Draft {
	d.Text = strings.TrimSpace(d.Text)
	d.Category = strings.TrimSpace(d.Category)
	d.SubCategory = strings.TrimSpace(d.SubCategory)
	return d
}

// DraftOf loads an expense's editable fields.
func DraftOf(e Expense) Draft {
	return Draft{
		Text:        e.Text,
		Category:    e.Category,
		SubCategory: e.SubCategory,
		Value:       decimal.NewNullDecimal(e.Value),
	}
}

// Apply replaces the editable fields of e with the draft's. Date and ID are kept.
func (e Expense) Apply(d Draft) Expense {
	d = d.Normalized()
	e.Text = d.Text
	e.Category = d.Category
	e.SubCategory = d.SubCategory
	e.Value = d.Value.Decimal
	return e
}
