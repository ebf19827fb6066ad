package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sem/internal/core"
)

// recordPayload is the JSON body for POST /api/expenses. Amount passes
// through as a raw string so the service layer owns all numeric parsing.
type recordPayload struct {
	Date          string       `json:"date"`
	Category      string       `json:"category"`
	Amount        amountString `json:"amount"`
	Justification string       `json:"justification"`
}

// amountString accepts both "12.50" and 12.50 on the wire.
type amountString string

func (a *amountString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = amountString(n.String())
	return nil
}

// parseRecordBody reads a new-expense request, accepting both JSON and
// form-encoded bodies. All values go through as raw strings; validation
// happens in one place, below the handler.
func parseRecordBody(r *http.Request) (core.RawFields, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var p recordPayload
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return core.RawFields{}, fmt.Errorf("decode request body: %w", err)
		}
		return core.RawFields{
			Date:          sanitizeInput(p.Date),
			Category:      sanitizeInput(p.Category),
			Amount:        sanitizeInput(string(p.Amount)),
			Justification: sanitizeInput(p.Justification),
		}, nil
	}

	if err := r.ParseForm(); err != nil {
		return core.RawFields{}, fmt.Errorf("parse form: %w", err)
	}
	return core.RawFields{
		Date:          sanitizeInput(r.Form.Get("date")),
		Category:      sanitizeInput(r.Form.Get("category")),
		Amount:        sanitizeInput(r.Form.Get("amount")),
		Justification: sanitizeInput(r.Form.Get("justification")),
	}, nil
}

// parseRangeParams extracts the start/end query parameters. A missing
// bound defaults to the current month.
func parseRangeParams(query url.Values) (start, end core.Date, err error) {
	now := time.Now()
	start = core.NewDate(now.Year(), int(now.Month()), 1)
	end = core.NewDate(now.Year(), int(now.Month()), daysIn(now.Year(), now.Month()))

	if v := strings.TrimSpace(query.Get("start")); v != "" {
		start, err = core.ParseDate(v)
		if err != nil {
			return start, end, &core.FieldError{Field: "start", Reason: err.Error()}
		}
	}
	if v := strings.TrimSpace(query.Get("end")); v != "" {
		end, err = core.ParseDate(v)
		if err != nil {
			return start, end, &core.FieldError{Field: "end", Reason: err.Error()}
		}
	}
	return start, end, nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// idsPayload is the JSON body for DELETE /api/expenses.
type idsPayload struct {
	IDs []int64 `json:"ids"`
}

// parseIDsBody reads record identifiers from a JSON body or an `ids`
// form/query parameter with comma-separated values.
func parseIDsBody(r *http.Request) ([]int64, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var p idsPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return nil, fmt.Errorf("decode request body: %w", err)
		}
		return p.IDs, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	raw := strings.TrimSpace(r.Form.Get("ids"))
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, &core.FieldError{Field: core.FieldID, Reason: fmt.Sprintf("bad identifier %q", part)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// sanitizeInput trims whitespace and strips control characters except
// tab, newline and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
