package model

// CacheFilters is the pagination-free filter snapshot a results cache entry
// is keyed by.
type CacheFilters struct {
	Query   string `json:"q,omitempty"`
	Borough string `json:"borough,omitempty"`
	YearMin *int   `json:"year_min,omitempty"`
}

// CachedResultsEntry pairs a filter snapshot with the result set it
// produced, so a returning session can skip the reload when the filters
// still match.
type CachedResultsEntry struct {
	Filters CacheFilters     `json:"filters"`
	Total   int              `json:"total"`
	Rows    []PropertyRecord `json:"rows"`
}

// CacheKeyFrom strips a FilterCriteria down to its cache key.
func CacheKeyFrom(f FilterCriteria) CacheFilters {
	return CacheFilters{
		Query:   f.Query,
		Borough: f.Borough,
		YearMin: f.YearMin,
	}
}

// Matches reports whether the entry was produced by the same logical search
// as the given criteria, ignoring limit and offset.
func (e CachedResultsEntry) Matches(f FilterCriteria) bool {
	target := CacheKeyFrom(f)
	if e.Filters.Query != target.Query || e.Filters.Borough != target.Borough {
		return false
	}
	if (e.Filters.YearMin == nil) != (target.YearMin == nil) {
		return false
	}
	if e.Filters.YearMin != nil && *e.Filters.YearMin != *target.YearMin {
		return false
	}
	return true
}
