package model

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Boroughs recognized by the upstream search API.
const (
	BoroughManhattan    = "MN"
	BoroughBronx        = "BX"
	BoroughBrooklyn     = "BK"
	BoroughQueens       = "QN"
	BoroughStatenIsland = "SI"
)

// Limit bounds enforced on every outgoing search request.
const (
	MinLimit = 1
	MaxLimit = 50
)

var validBoroughs = map[string]bool{
	BoroughManhattan:    true,
	BoroughBronx:        true,
	BoroughBrooklyn:     true,
	BoroughQueens:       true,
	BoroughStatenIsland: true,
}

var validSortKeys = map[string]bool{
	"last_permit_date": true,
	"year_built":       true,
	"permit_count_12m": true,
	"relevance":        true,
}

var validOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// RawFilters carries unvalidated user input before normalization.
// Strings may be padded or mis-cased, YearMin may be non-finite.
type RawFilters struct {
	Query   string   `json:"q"`
	Borough string   `json:"borough"`
	YearMin *float64 `json:"year_min"`
	Limit   *int     `json:"limit"`
	Offset  *int     `json:"offset"`
	Sort    string   `json:"sort"`
	Order   string   `json:"order"`
}

// FilterCriteria is a normalized, validated filter snapshot. Empty Query or
// Borough means the field is absent; YearMin is nil when absent. Limit is
// always within [MinLimit, MaxLimit] and Offset is never negative.
// Unrecognized sort/order values are dropped during normalization and never
// reach the upstream API.
type FilterCriteria struct {
	Query   string `json:"q,omitempty"`
	Borough string `json:"borough,omitempty"`
	YearMin *int   `json:"year_min,omitempty"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	Sort    string `json:"sort,omitempty"`
	Order   string `json:"order,omitempty"`
}

// NormalizeFilters converts raw user input into a FilterCriteria. defaultLimit
// is used when no usable limit is supplied.
func NormalizeFilters(raw RawFilters, defaultLimit int) FilterCriteria {
	fc := FilterCriteria{
		Query:   strings.TrimSpace(raw.Query),
		Borough: NormalizeBorough(raw.Borough),
		YearMin: normalizeYear(raw.YearMin),
		Limit:   ClampLimit(raw.Limit, defaultLimit),
		Offset:  ClampOffset(raw.Offset),
	}
	if validSortKeys[raw.Sort] {
		fc.Sort = raw.Sort
	}
	if validOrders[raw.Order] {
		fc.Order = raw.Order
	}
	return fc
}

// NormalizeBorough uppercases and validates a borough code, returning ""
// for anything outside the five known codes.
func NormalizeBorough(s string) string {
	code := strings.ToUpper(strings.TrimSpace(s))
	if validBoroughs[code] {
		return code
	}
	return ""
}

// Years outside this range cannot be real construction dates and would
// overflow int conversion at the extremes.
const (
	minYear = 0
	maxYear = 9999
)

func normalizeYear(v *float64) *int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	if *v < minYear || *v > maxYear {
		return nil
	}
	year := int(*v)
	return &year
}

// ClampLimit forces a page limit into [MinLimit, MaxLimit], falling back to
// defaultLimit when none is given.
func ClampLimit(v *int, defaultLimit int) int {
	limit := defaultLimit
	if v != nil {
		limit = *v
	}
	if limit < MinLimit {
		limit = MinLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit
}

// ClampOffset forces an offset to be non-negative.
func ClampOffset(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

// EqualIgnoringPage reports whether two criteria describe the same logical
// search, disregarding limit and offset. This is the cache-hit predicate.
func (f FilterCriteria) EqualIgnoringPage(other FilterCriteria) bool {
	if f.Query != other.Query || f.Borough != other.Borough {
		return false
	}
	if (f.YearMin == nil) != (other.YearMin == nil) {
		return false
	}
	if f.YearMin != nil && *f.YearMin != *other.YearMin {
		return false
	}
	return true
}

// WithPage returns a copy of the criteria positioned at the given offset.
func (f FilterCriteria) WithPage(offset int) FilterCriteria {
	next := f
	next.Offset = offset
	return next
}

// QueryValues encodes the criteria as upstream search query parameters.
// Absent fields are omitted entirely rather than sent as empty strings.
func (f FilterCriteria) QueryValues() url.Values {
	params := url.Values{}
	if f.Query != "" {
		params.Set("q", f.Query)
	}
	if f.Borough != "" {
		params.Set("borough", f.Borough)
	}
	params.Set("limit", strconv.Itoa(f.Limit))
	params.Set("offset", strconv.Itoa(f.Offset))
	if f.YearMin != nil {
		params.Set("year_min", strconv.Itoa(*f.YearMin))
	}
	if f.Sort != "" {
		params.Set("sort", f.Sort)
	}
	if f.Order != "" {
		params.Set("order", f.Order)
	}
	return params
}

// ShareableQuery encodes the criteria as the canonical query string that
// reproduces this search in a browser URL.
func (f FilterCriteria) ShareableQuery() string {
	return f.QueryValues().Encode()
}
