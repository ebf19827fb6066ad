package core

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Field names used in FieldError tags, in validation order.
const (
	FieldID            = "id"
	FieldDate          = "date"
	FieldCategory      = "category"
	FieldAmount        = "amount"
	FieldJustification = "justification"
)

// Validate converts raw candidate input into a typed Record. It is the
// single place where untrusted field strings become domain values.
//
// Checks run in a fixed order: first a presence pass over
// date, category, amount and justification (the first missing field is
// reported), then per-field coercion in the same order. The first
// failure wins and is returned as a *FieldError; the record reaches the
// caller only when every field passed.
//
// Category membership in the registered set is deliberately not checked
// here. The registry is mutable configuration owned by the service
// layer; this function only enforces shape.
func Validate(raw RawFields) (Record, error) {
	type field struct {
		name  string
		value string
	}
	presence := []field{
		{FieldDate, raw.Date},
		{FieldCategory, raw.Category},
		{FieldAmount, raw.Amount},
		{FieldJustification, raw.Justification},
	}
	for _, f := range presence {
		if strings.TrimSpace(f.value) == "" {
			return Record{}, &FieldError{Field: f.name, Reason: "missing"}
		}
	}

	date, err := ParseDate(strings.TrimSpace(raw.Date))
	if err != nil {
		return Record{}, &FieldError{Field: FieldDate, Reason: "not a valid calendar date"}
	}

	category := strings.TrimSpace(raw.Category)
	if utf8.RuneCountInString(category) != 1 {
		return Record{}, &FieldError{Field: FieldCategory, Reason: "must be exactly one character"}
	}

	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return Record{}, &FieldError{Field: FieldAmount, Reason: "not a valid decimal number"}
	}

	justification := strings.TrimSpace(raw.Justification)
	if n := utf8.RuneCountInString(justification); n < 1 || n > MaxJustificationLen {
		return Record{}, &FieldError{
			Field:  FieldJustification,
			Reason: "length must be between 1 and 100 characters",
		}
	}

	rec := Record{
		Date:          date,
		Category:      category,
		Amount:        amount,
		Justification: justification,
	}

	// Externally supplied identifiers are optional; when present they
	// must at least look like one.
	if v := strings.TrimSpace(raw.ID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Record{}, &FieldError{Field: FieldID, Reason: "not an integer"}
		}
		rec.ID = id
	}

	return rec, nil
}
