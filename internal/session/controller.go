// Package session owns the combined search state of one browser session:
// the active filter snapshot, accumulated paginated results, the chat
// transcript, and the session-scoped results cache.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/HenryGreene10/propertyfish/internal/model"
	"github.com/HenryGreene10/propertyfish/internal/store"
	"github.com/HenryGreene10/propertyfish/internal/upstream"
)

// Storage keys, versioned the same way the browser client versioned its
// session-storage payloads.
const (
	ChatHistoryKey = "pf_chat_history_v1"
	LastResultsKey = "pf_last_results_v1"
)

// User-facing error messages. The error taxonomy is deliberately flat:
// transport failures, bad statuses, and malformed bodies all surface the
// same per-channel message.
const (
	searchErrMessage = "Unable to fetch search results"
	chatErrMessage   = "Something went wrong with chat. Try again."
)

// SearchAPI is the slice of the upstream client the controller needs.
type SearchAPI interface {
	Search(ctx context.Context, criteria model.FilterCriteria) (*model.ResultPage, error)
	Chat(ctx context.Context, req upstream.ChatRequest) (*upstream.ChatResult, error)
}

// Controller mediates between raw user input, the upstream search and chat
// endpoints, and session-persisted state, producing a single consistent
// current-result-set view.
//
// Every outgoing request is tagged with the generation in effect when it was
// issued; a response whose generation is stale by completion time is
// discarded instead of overwriting newer state.
type Controller struct {
	sessionID string
	api       SearchAPI
	store     store.Store
	activity  store.ActivityLogger
	pageSize  int
	log       *slog.Logger

	mu          sync.Mutex
	generation  uint64
	loadingGen  uint64
	active      model.FilterCriteria
	rows        []model.PropertyRecord
	total       *int
	page        int
	isEnd       bool
	hasSearched bool
	loading     bool
	loadingMore bool
	chatLoading bool
	searchErr   string
	chatErr     string
	transcript  []model.ChatTurn
	chatContext *model.ChatFilters
}

// ApplyOptions tunes ApplyFilters. PreserveResults keeps the previous rows
// visible while the fetch is in flight; it exists for the cache-restore
// flow and changes nothing about the staleness discipline.
type ApplyOptions struct {
	PreserveResults bool
}

// NewController creates a controller for one session and hydrates the chat
// transcript from the store. Storage failures degrade to an empty
// transcript.
func NewController(sessionID string, api SearchAPI, st store.Store, activity store.ActivityLogger, pageSize int) *Controller {
	if activity == nil {
		activity = store.NopActivityLogger{}
	}
	c := &Controller{
		sessionID: sessionID,
		api:       api,
		store:     st,
		activity:  activity,
		pageSize:  pageSize,
		active:    model.FilterCriteria{Limit: pageSize},
		log:       slog.Default().With("component", "session", "session_id", sessionID),
	}
	c.loadTranscript(context.Background())
	return c
}

// ApplyFilters normalizes raw input into a filter snapshot, resets
// pagination, and fetches page 0. On success the result set is replaced and
// a cache entry written; on failure results are cleared (unless
// PreserveResults) and a search-scoped error recorded.
func (c *Controller) ApplyFilters(ctx context.Context, raw model.RawFilters, opts ApplyOptions) View {
	criteria := model.NormalizeFilters(raw, c.pageSize)
	criteria.Offset = 0

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.loading = true
	c.loadingGen = gen
	c.searchErr = ""
	c.page = 0
	c.isEnd = false
	if !opts.PreserveResults {
		c.rows = nil
		c.total = nil
	}
	c.active = criteria
	c.mu.Unlock()

	start := time.Now()
	result, err := c.api.Search(ctx, criteria)

	c.mu.Lock()
	defer c.mu.Unlock()
	// The loading flag belongs to the most recent apply. A completion still
	// clears it when no newer apply has claimed it, even if the result
	// itself is stale.
	if c.loadingGen == gen {
		c.loading = false
	}
	if gen != c.generation {
		// A newer apply or chat exchange owns the state now.
		c.log.Debug("discarding stale search response", "generation", gen)
		return c.viewLocked()
	}
	if err != nil {
		c.log.Warn("search failed", "error", err)
		if !opts.PreserveResults {
			c.rows = nil
			c.total = nil
		}
		c.searchErr = searchErrMessage
		return c.viewLocked()
	}

	total := result.Total
	c.rows = result.Records
	c.total = &total
	c.page = 0
	c.isEnd = len(c.rows) >= total
	c.hasSearched = true
	c.writeResultsCacheLocked(ctx)
	c.logActivity("search", criteria.Query, criteria.Borough, criteria.YearMin, total, time.Since(start))
	return c.viewLocked()
}

// LoadMore fetches the next page with the current active filters and
// appends it. It is a no-op while another fetch is running, at the end of
// results, or before any total is known. Failure keeps existing rows.
func (c *Controller) LoadMore(ctx context.Context) View {
	c.mu.Lock()
	if c.loading || c.loadingMore || c.isEnd || c.total == nil {
		defer c.mu.Unlock()
		return c.viewLocked()
	}
	gen := c.generation
	nextPage := c.page + 1
	criteria := c.active.WithPage(nextPage * c.active.Limit)
	c.loadingMore = true
	c.searchErr = ""
	c.mu.Unlock()

	result, err := c.api.Search(ctx, criteria)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingMore = false
	if gen != c.generation {
		c.log.Debug("discarding stale load-more response", "generation", gen)
		return c.viewLocked()
	}
	if err != nil {
		c.log.Warn("load more failed", "error", err)
		c.searchErr = searchErrMessage
		return c.viewLocked()
	}

	combined := append(c.rows, result.Records...)
	total := result.Total
	// Accumulated rows never exceed the server-reported total.
	if len(combined) > total {
		combined = combined[:total]
	}
	c.rows = combined
	c.total = &total
	c.page = nextPage
	c.isEnd = len(combined) >= total
	c.writeResultsCacheLocked(ctx)
	return c.viewLocked()
}

// SubmitChatMessage sends a question to the conversational endpoint. The
// user turn is appended optimistically; on success the response fully
// supersedes the form-driven result set and filter snapshot, and an
// assistant turn with a bounded preview is appended. On failure only the
// chat-scoped error is touched.
//
// A reply that lost a generation race still joins the transcript but does
// not replace the result state.
func (c *Controller) SubmitChatMessage(ctx context.Context, text string) View {
	text = strings.TrimSpace(text)
	if text == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.viewLocked()
	}

	c.mu.Lock()
	gen := c.generation
	c.chatLoading = true
	c.chatErr = ""
	c.transcript = append(c.transcript, model.NewUserTurn(text))
	c.persistTranscriptLocked(ctx)
	req := upstream.ChatRequest{
		Message:         text,
		PreviousFilters: c.chatContext,
	}
	if c.active.Borough != "" {
		borough := c.active.Borough
		req.Borough = &borough
	}
	req.YearMin = c.active.YearMin
	c.mu.Unlock()

	start := time.Now()
	result, err := c.api.Chat(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatLoading = false
	if err != nil {
		c.log.Warn("chat failed", "error", err)
		c.chatErr = chatErrMessage
		return c.viewLocked()
	}

	filters := result.Filters
	var inferred *model.ChatFilters
	if !filters.IsZero() {
		inferred = &filters
	}
	c.transcript = append(c.transcript,
		model.NewAssistantTurn(text, result.Message, result.Total, inferred, result.Rows))
	c.chatContext = inferred
	c.persistTranscriptLocked(ctx)

	if gen != c.generation {
		c.log.Debug("chat reply lost generation race, keeping transcript only", "generation", gen)
		return c.viewLocked()
	}

	// The conversational channel supersedes the form channel wholesale.
	c.generation++
	query := filters.Query
	if query == "" {
		query = text
	}
	c.active = model.FilterCriteria{
		Query:   query,
		Borough: filters.Borough,
		YearMin: filters.YearMin,
		Limit:   c.pageSize,
		Offset:  0,
	}
	total := result.Total
	c.rows = result.Rows
	c.total = &total
	c.page = 0
	c.isEnd = len(result.Rows) >= total
	c.hasSearched = true
	c.searchErr = ""
	c.writeResultsCacheLocked(ctx)
	c.logActivity("chat", text, c.active.Borough, c.active.YearMin, total, time.Since(start))
	return c.viewLocked()
}

// RestoreFromCache hydrates the result set from the persisted cache entry
// when its filters match the URL-derived ones, skipping the network call.
// Otherwise it falls through to a normal ApplyFilters.
func (c *Controller) RestoreFromCache(ctx context.Context, raw model.RawFilters) (View, bool) {
	criteria := model.NormalizeFilters(raw, c.pageSize)
	criteria.Offset = 0

	entry := c.readResultsCache(ctx)
	if entry == nil || !entry.Matches(criteria) {
		return c.ApplyFilters(ctx, raw, ApplyOptions{}), false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.active = model.FilterCriteria{
		Query:   entry.Filters.Query,
		Borough: entry.Filters.Borough,
		YearMin: entry.Filters.YearMin,
		Limit:   c.pageSize,
		Offset:  0,
	}
	total := entry.Total
	c.rows = entry.Rows
	c.total = &total
	c.page = 0
	c.isEnd = len(entry.Rows) >= total
	c.hasSearched = true
	c.searchErr = ""
	c.loading = false
	c.loadingMore = false
	return c.viewLocked(), true
}

// View returns the current state snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Transcript returns a copy of the chat transcript.
func (c *Controller) Transcript() []model.ChatTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ChatTurn, len(c.transcript))
	copy(out, c.transcript)
	return out
}

func (c *Controller) logActivity(channel, query, borough string, yearMin *int, total int, took time.Duration) {
	entry := store.SearchLogEntry{
		SessionID: c.sessionID,
		Channel:   channel,
		Query:     query,
		Borough:   borough,
		YearMin:   yearMin,
		Total:     total,
		TookMS:    took.Milliseconds(),
		At:        time.Now(),
	}
	go func() {
		if err := c.activity.LogSearch(context.Background(), entry); err != nil {
			c.log.Debug("activity log write failed", "error", err)
		}
	}()
}
