package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"sem/internal/core"
)

// recordJSON is the wire shape of a stored record. Amounts travel as
// fixed two-decimal strings so clients never see float artifacts.
type recordJSON struct {
	ID            int64  `json:"id"`
	Date          string `json:"date"`
	Category      string `json:"category"`
	Amount        string `json:"amount"`
	Justification string `json:"justification"`
}

func toRecordJSON(rec core.Record) recordJSON {
	return recordJSON{
		ID:            rec.ID,
		Date:          rec.Date.String(),
		Category:      rec.Category,
		Amount:        core.FormatAmount(rec.Amount),
		Justification: rec.Justification,
	}
}

type summaryJSON struct {
	Start      string            `json:"start"`
	End        string            `json:"end"`
	ByCategory []categorySumJSON `json:"by_category"`
	Total      string            `json:"total"`
}

type categorySumJSON struct {
	Category string `json:"category"`
	Total    string `json:"total"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.trace.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().Format(time.RFC3339),
		"total_requests": m.TotalRequests,
	})
}

// handleExpenses dispatches the collection endpoint: POST creates,
// GET lists a date range, DELETE removes by identifier.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateExpense(w, r)
	case http.MethodGet:
		s.handleListExpenses(w, r)
	case http.MethodDelete:
		s.handleDeleteExpenses(w, r)
	default:
		requireMethod(w, r, http.MethodPost, http.MethodGet, http.MethodDelete)
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	raw, err := parseRecordBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: err.Error()})
		return
	}

	rec, err := s.svc.AddExpense(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateSummaries()
	slog.InfoContext(r.Context(), "Expense created",
		"id", rec.ID, "category", rec.Category, "date", rec.Date.String())
	writeJSON(w, http.StatusCreated, toRecordJSON(rec))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRangeParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	records, err := s.svc.ListRange(r.Context(), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordJSON(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteExpenses(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDsBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: "no identifiers given"})
		return
	}

	n, err := s.svc.DeleteRecords(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.svc.ClearAll(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummaries()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	start, end, err := parseRangeParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := start.String() + ".." + end.String()
	sum, ok := s.summaryCache.Get(key)
	if !ok {
		sum, err = s.svc.Summary(r.Context(), start, end)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.summaryCache.Set(key, sum)
	}

	out := summaryJSON{
		Start: sum.Start.String(),
		End:   sum.End.String(),
		Total: core.FormatAmount(sum.Total),
	}
	out.ByCategory = make([]categorySumJSON, 0, len(sum.ByCategory))
	for _, cs := range sum.ByCategory {
		out.ByCategory = append(out.ByCategory, categorySumJSON{
			Category: cs.Category,
			Total:    core.FormatAmount(cs.Total),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleImport ingests a CSV document as the request body. The import
// is all-or-nothing: any bad row leaves the store untouched.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	n, err := s.svc.ImportCSV(r.Context(), r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateSummaries()
	slog.InfoContext(r.Context(), "CSV import completed", "records", n)
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	// Buffer the document so a store failure can still become a clean
	// error response instead of a truncated download.
	var buf bytes.Buffer
	n, err := s.svc.ExportCSV(r.Context(), &buf)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "CSV export completed", "records", n)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleCategories exposes the letter registry: GET lists, POST adds,
// DELETE removes.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats := s.svc.Categories()

	type categoryJSON struct {
		Letter      string `json:"letter"`
		Description string `json:"description"`
	}

	switch r.Method {
	case http.MethodGet:
		list := cats.List()
		out := make([]categoryJSON, 0, len(list))
		for _, c := range list {
			out = append(out, categoryJSON{Letter: c.Letter, Description: c.Description})
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorPayload{Error: "parse form: " + err.Error()})
			return
		}
		letter := sanitizeInput(r.Form.Get("letter"))
		description := sanitizeInput(r.Form.Get("description"))
		if err := cats.Add(letter, description); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"letter": letter, "description": description})

	case http.MethodDelete:
		letter := sanitizeInput(r.URL.Query().Get("letter"))
		if err := cats.Remove(letter); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"removed": letter})

	default:
		requireMethod(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}
