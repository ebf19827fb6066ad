package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategorySum is the summed amount for one category letter.
type CategorySum struct {
	Category string
	Total    decimal.Decimal
}

// Summary aggregates a range of records by category. Categories with no
// records in range are absent rather than present with zero.
type Summary struct {
	Start      Date
	End        Date
	ByCategory []CategorySum
	Total      decimal.Decimal
}

// Summarize groups records by category and sums their amounts. It is
// defined over an already-fetched record slice so that aggregation and
// range retrieval can never disagree about which records are in range.
func Summarize(start, end Date, records []Record) Summary {
	sums := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, r := range records {
		sums[r.Category] = sums[r.Category].Add(r.Amount)
		total = total.Add(r.Amount)
	}

	byCategory := make([]CategorySum, 0, len(sums))
	for cat, sum := range sums {
		byCategory = append(byCategory, CategorySum{Category: cat, Total: sum})
	}
	sort.Slice(byCategory, func(i, j int) bool {
		return byCategory[i].Category < byCategory[j].Category
	})

	return Summary{Start: start, End: end, ByCategory: byCategory, Total: total}
}

// AsMap returns the per-category sums as a category→total map.
func (s Summary) AsMap() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(s.ByCategory))
	for _, cs := range s.ByCategory {
		m[cs.Category] = cs.Total
	}
	return m
}
