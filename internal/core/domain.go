package core

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxJustificationLen is the longest accepted justification text.
const MaxJustificationLen = 100

// DateLayout is the canonical on-disk and on-wire date format.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar date at day precision, always UTC.
	Date struct {
		time.Time
	}

	// Record is a fully validated expense entry. Instances should only
	// be produced by Validate or read back from storage.
	Record struct {
		ID            int64
		Date          Date
		Category      string // exactly one character
		Amount        decimal.Decimal
		Justification string
	}

	// RawFields carries untyped candidate input for one record, as
	// collected from a form or one CSV row. ID is optional and only
	// meaningful for callers that track identifiers externally.
	RawFields struct {
		ID            string
		Date          string
		Category      string
		Amount        string
		Justification string
	}
)

// FieldError reports the first validation failure for a candidate
// record, tagged with the offending field. It is an ordinary return
// value, not a programmer error.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// NewDate builds a Date from year, month and day without range checks.
// Use ParseDate when the components come from untrusted input.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date, accepting both zero-padded
// (2023-01-05) and unpadded (2023-1-5) forms. Dates that do not exist
// on the Gregorian calendar (2023-02-30, month 13, day 0) are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-1-2", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t.UTC()}, nil
}

// String formats the date in the canonical YYYY-MM-DD form.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// Validate re-checks the shape of an already-typed record. Storage uses
// it as a defensive barrier for callers that build Records by hand.
func (r Record) Validate() error {
	if r.Date.IsZero() {
		return &FieldError{Field: FieldDate, Reason: "missing"}
	}
	if utf8.RuneCountInString(r.Category) != 1 {
		return &FieldError{Field: FieldCategory, Reason: "must be exactly one character"}
	}
	if n := utf8.RuneCountInString(r.Justification); n < 1 || n > MaxJustificationLen {
		return &FieldError{
			Field:  FieldJustification,
			Reason: fmt.Sprintf("length must be between 1 and %d characters", MaxJustificationLen),
		}
	}
	return nil
}
