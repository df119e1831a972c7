package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HenryGreene10/propertyfish/internal/model"
	"github.com/HenryGreene10/propertyfish/internal/store"
	"github.com/HenryGreene10/propertyfish/internal/upstream"
)

const testPageSize = 24

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// fakeAPI scripts upstream behavior per test.
type fakeAPI struct {
	mu          sync.Mutex
	searchHook  func(criteria model.FilterCriteria) (*model.ResultPage, error)
	chatHook    func(req upstream.ChatRequest) (*upstream.ChatResult, error)
	searchCalls int
	chatCalls   int
}

func (f *fakeAPI) Search(_ context.Context, criteria model.FilterCriteria) (*model.ResultPage, error) {
	f.mu.Lock()
	f.searchCalls++
	hook := f.searchHook
	f.mu.Unlock()
	if hook == nil {
		return &model.ResultPage{Records: []model.PropertyRecord{}}, nil
	}
	return hook(criteria)
}

func (f *fakeAPI) Chat(_ context.Context, req upstream.ChatRequest) (*upstream.ChatResult, error) {
	f.mu.Lock()
	f.chatCalls++
	hook := f.chatHook
	f.mu.Unlock()
	if hook == nil {
		return &upstream.ChatResult{}, nil
	}
	return hook(req)
}

func (f *fakeAPI) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls, f.chatCalls
}

// makeDataset builds n distinct rows.
func makeDataset(n int) []model.PropertyRecord {
	rows := make([]model.PropertyRecord, n)
	for i := range rows {
		rows[i] = model.PropertyRecord{
			BBL:     fmt.Sprintf("10000%05d", i),
			Address: fmt.Sprintf("%d Main St", i+1),
			Borough: model.BoroughManhattan,
		}
	}
	return rows
}

// pagedSearch serves slices of dataset by limit/offset, like a deterministic
// backend.
func pagedSearch(dataset []model.PropertyRecord) func(model.FilterCriteria) (*model.ResultPage, error) {
	return func(criteria model.FilterCriteria) (*model.ResultPage, error) {
		start := criteria.Offset
		if start > len(dataset) {
			start = len(dataset)
		}
		end := start + criteria.Limit
		if end > len(dataset) {
			end = len(dataset)
		}
		page := make([]model.PropertyRecord, end-start)
		copy(page, dataset[start:end])
		return &model.ResultPage{Total: len(dataset), Records: page}, nil
	}
}

func newTestController(api SearchAPI) (*Controller, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return NewController("test-session", api, st, nil, testPageSize), st
}

func TestApplyThenLoadMoreAccumulatesExactlyTotal(t *testing.T) {
	dataset := makeDataset(53)
	api := &fakeAPI{searchHook: pagedSearch(dataset)}
	c, _ := newTestController(api)

	view := c.ApplyFilters(context.Background(), model.RawFilters{Query: "main"}, ApplyOptions{})
	require.NotNil(t, view.Total)
	assert.Equal(t, 53, *view.Total)
	assert.Len(t, view.Rows, 24)
	assert.False(t, view.IsEnd)

	for !view.IsEnd {
		view = c.LoadMore(context.Background())
	}

	assert.Len(t, view.Rows, 53)
	assert.True(t, view.IsEnd)

	// No duplicates and no gaps.
	seen := make(map[string]bool, len(view.Rows))
	for i, row := range view.Rows {
		assert.False(t, seen[row.BBL], "duplicate row %s", row.BBL)
		seen[row.BBL] = true
		assert.Equal(t, dataset[i].BBL, row.BBL, "row order must match the backend")
	}

	// A further load is a no-op.
	searches, _ := api.calls()
	c.LoadMore(context.Background())
	after, _ := api.calls()
	assert.Equal(t, searches, after)
}

func TestLoadMoreNoopBeforeFirstSearch(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestController(api)

	view := c.LoadMore(context.Background())
	assert.Nil(t, view.Total)

	searches, _ := api.calls()
	assert.Zero(t, searches)
}

func TestApplySendsClampedCriteria(t *testing.T) {
	var got model.FilterCriteria
	api := &fakeAPI{searchHook: func(criteria model.FilterCriteria) (*model.ResultPage, error) {
		got = criteria
		return &model.ResultPage{Records: []model.PropertyRecord{}}, nil
	}}
	c, _ := newTestController(api)

	c.ApplyFilters(context.Background(), model.RawFilters{
		Limit:  intPtr(999),
		Offset: intPtr(-5),
	}, ApplyOptions{})

	assert.Equal(t, 50, got.Limit)
	assert.Equal(t, 0, got.Offset)
}

func TestApplyIsIdempotentAndAlwaysRefetches(t *testing.T) {
	api := &fakeAPI{searchHook: pagedSearch(makeDataset(10))}
	c, _ := newTestController(api)

	raw := model.RawFilters{Query: " 82nd street ", Borough: "mn", YearMin: floatPtr(1920)}
	first := c.ApplyFilters(context.Background(), raw, ApplyOptions{})
	second := c.ApplyFilters(context.Background(), raw, ApplyOptions{})

	assert.Equal(t, first.Filters, second.Filters)
	assert.Equal(t, "82nd street", second.Filters.Query)
	assert.Equal(t, "MN", second.Filters.Borough)

	// No apply-level caching: both calls hit the backend.
	searches, _ := api.calls()
	assert.Equal(t, 2, searches)
}

func TestStaleApplyResponseIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	api := &fakeAPI{}
	api.searchHook = func(criteria model.FilterCriteria) (*model.ResultPage, error) {
		if criteria.Query == "slow" {
			close(started)
			<-release
			return &model.ResultPage{Total: 1, Records: []model.PropertyRecord{
				{BBL: "1", Address: "stale", Borough: "MN"},
			}}, nil
		}
		return &model.ResultPage{Total: 1, Records: []model.PropertyRecord{
			{BBL: "2", Address: "fresh", Borough: "QN"},
		}}, nil
	}
	c, _ := newTestController(api)

	done := make(chan View, 1)
	go func() {
		done <- c.ApplyFilters(context.Background(), model.RawFilters{Query: "slow"}, ApplyOptions{})
	}()
	<-started

	// A newer apply completes while the first is still in flight.
	fresh := c.ApplyFilters(context.Background(), model.RawFilters{Query: "fast"}, ApplyOptions{})
	require.Len(t, fresh.Rows, 1)
	assert.Equal(t, "fresh", fresh.Rows[0].Address)

	// Now the stale response arrives. It must not win.
	close(release)
	<-done

	view := c.View()
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "fresh", view.Rows[0].Address)
	assert.Equal(t, "fast", view.Filters.Query)
}

func TestStaleLoadMoreResponseIsDiscarded(t *testing.T) {
	dataset := makeDataset(60)
	started := make(chan struct{})
	release := make(chan struct{})

	api := &fakeAPI{}
	api.searchHook = func(criteria model.FilterCriteria) (*model.ResultPage, error) {
		if criteria.Offset > 0 {
			close(started)
			<-release
		}
		return pagedSearch(dataset)(criteria)
	}
	c, _ := newTestController(api)

	c.ApplyFilters(context.Background(), model.RawFilters{Query: "main"}, ApplyOptions{})

	done := make(chan View, 1)
	go func() {
		done <- c.LoadMore(context.Background())
	}()
	<-started

	// User applies fresh filters before the page-2 response lands.
	api.mu.Lock()
	api.searchHook = func(model.FilterCriteria) (*model.ResultPage, error) {
		return &model.ResultPage{Total: 1, Records: []model.PropertyRecord{
			{BBL: "9", Address: "new search", Borough: "BK"},
		}}, nil
	}
	api.mu.Unlock()
	c.ApplyFilters(context.Background(), model.RawFilters{Query: "other"}, ApplyOptions{})

	close(release)
	<-done

	view := c.View()
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "new search", view.Rows[0].Address)
	assert.True(t, view.IsEnd)
}

func TestApplyFailureClearsResultsThenRecovers(t *testing.T) {
	dataset := makeDataset(5)
	api := &fakeAPI{searchHook: pagedSearch(dataset)}
	c, _ := newTestController(api)

	view := c.ApplyFilters(context.Background(), model.RawFilters{Query: "ok"}, ApplyOptions{})
	require.Len(t, view.Rows, 5)

	api.mu.Lock()
	api.searchHook = func(model.FilterCriteria) (*model.ResultPage, error) {
		return nil, fmt.Errorf("request failed with status 500")
	}
	api.mu.Unlock()

	view = c.ApplyFilters(context.Background(), model.RawFilters{Query: "boom"}, ApplyOptions{})
	assert.Empty(t, view.Rows)
	assert.Nil(t, view.Total)
	assert.Equal(t, searchErrMessage, view.SearchError)

	api.mu.Lock()
	api.searchHook = pagedSearch(dataset)
	api.mu.Unlock()

	view = c.ApplyFilters(context.Background(), model.RawFilters{Query: "ok"}, ApplyOptions{})
	assert.Empty(t, view.SearchError)
	assert.Len(t, view.Rows, 5)
}

func TestLoadMoreFailureKeepsExistingRows(t *testing.T) {
	dataset := makeDataset(40)
	api := &fakeAPI{searchHook: pagedSearch(dataset)}
	c, _ := newTestController(api)

	view := c.ApplyFilters(context.Background(), model.RawFilters{}, ApplyOptions{})
	require.Len(t, view.Rows, 24)

	api.mu.Lock()
	api.searchHook = func(model.FilterCriteria) (*model.ResultPage, error) {
		return nil, fmt.Errorf("request failed with status 502")
	}
	api.mu.Unlock()

	view = c.LoadMore(context.Background())
	assert.Len(t, view.Rows, 24)
	assert.Equal(t, searchErrMessage, view.SearchError)
}

func TestChatSupersedesFormChannel(t *testing.T) {
	dataset := makeDataset(30)
	api := &fakeAPI{searchHook: pagedSearch(dataset)}
	chatRows := []model.PropertyRecord{
		{BBL: "4000010001", Address: "10 Borden Ave", Borough: "QN"},
		{BBL: "4000010002", Address: "12 Borden Ave", Borough: "QN"},
		{BBL: "4000010003", Address: "14 Borden Ave", Borough: "QN"},
		{BBL: "4000010004", Address: "16 Borden Ave", Borough: "QN"},
	}
	api.chatHook = func(req upstream.ChatRequest) (*upstream.ChatResult, error) {
		return &upstream.ChatResult{
			Message: "Found 7 warehouses in Queens.",
			Total:   7,
			Rows:    chatRows,
			Filters: model.ChatFilters{Borough: "QN"},
		}, nil
	}
	c, _ := newTestController(api)

	c.ApplyFilters(context.Background(), model.RawFilters{Query: "main", Borough: "MN"}, ApplyOptions{})

	view := c.SubmitChatMessage(context.Background(), "warehouses in Queens")

	// Result set and filter snapshot now match the chat response exactly.
	require.NotNil(t, view.Total)
	assert.Equal(t, 7, *view.Total)
	assert.Len(t, view.Rows, 4)
	assert.Equal(t, "QN", view.Filters.Borough)
	assert.Equal(t, "warehouses in Queens", view.Filters.Query)
	assert.Equal(t, 0, view.Filters.Offset)
	assert.Empty(t, view.SearchError)

	turns := c.Transcript()
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "warehouses in Queens", turns[0].User)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, "warehouses in Queens", turns[1].User)
	assert.Equal(t, "Found 7 warehouses in Queens.", turns[1].Assistant)
	assert.Equal(t, 7, turns[1].Total)
	assert.LessOrEqual(t, len(turns[1].Rows), model.ChatPreviewLimit)
}

func TestChatCarriesContextFilters(t *testing.T) {
	var requests []upstream.ChatRequest
	api := &fakeAPI{}
	api.chatHook = func(req upstream.ChatRequest) (*upstream.ChatResult, error) {
		requests = append(requests, req)
		return &upstream.ChatResult{
			Message: "ok",
			Total:   1,
			Rows:    []model.PropertyRecord{{BBL: "1", Address: "a", Borough: "QN"}},
			Filters: model.ChatFilters{Borough: "QN", YearMin: intPtr(1950)},
		}, nil
	}
	c, _ := newTestController(api)

	c.SubmitChatMessage(context.Background(), "warehouses in Queens")
	c.SubmitChatMessage(context.Background(), "only newer ones")

	require.Len(t, requests, 2)
	assert.Nil(t, requests[0].PreviousFilters)
	require.NotNil(t, requests[1].PreviousFilters)
	assert.Equal(t, "QN", requests[1].PreviousFilters.Borough)
	require.NotNil(t, requests[1].PreviousFilters.YearMin)
	assert.Equal(t, 1950, *requests[1].PreviousFilters.YearMin)
}

func TestChatFailureLeavesResultsIntact(t *testing.T) {
	dataset := makeDataset(5)
	api := &fakeAPI{searchHook: pagedSearch(dataset)}
	api.chatHook = func(upstream.ChatRequest) (*upstream.ChatResult, error) {
		return nil, fmt.Errorf("chat request failed with status 502")
	}
	c, _ := newTestController(api)

	c.ApplyFilters(context.Background(), model.RawFilters{Query: "main"}, ApplyOptions{})
	view := c.SubmitChatMessage(context.Background(), "anything")

	assert.Equal(t, chatErrMessage, view.ChatError)
	assert.Len(t, view.Rows, 5)
	assert.Empty(t, view.SearchError)

	// The optimistic user turn stays in the transcript.
	turns := c.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, model.RoleUser, turns[0].Role)
}

func TestChatBlankMessageIsNoop(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestController(api)

	c.SubmitChatMessage(context.Background(), "")
	c.SubmitChatMessage(context.Background(), "   \t  ")

	_, chats := api.calls()
	assert.Zero(t, chats)
	assert.Empty(t, c.Transcript())
}

func TestChatReplyLosingRaceKeepsTranscriptOnly(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	api := &fakeAPI{}
	api.chatHook = func(upstream.ChatRequest) (*upstream.ChatResult, error) {
		close(started)
		<-release
		return &upstream.ChatResult{
			Message: "late reply",
			Total:   3,
			Rows:    []model.PropertyRecord{{BBL: "7", Address: "late", Borough: "SI"}},
			Filters: model.ChatFilters{Borough: "SI"},
		}, nil
	}
	api.searchHook = func(model.FilterCriteria) (*model.ResultPage, error) {
		return &model.ResultPage{Total: 1, Records: []model.PropertyRecord{
			{BBL: "2", Address: "fresh", Borough: "QN"},
		}}, nil
	}
	c, _ := newTestController(api)

	done := make(chan View, 1)
	go func() {
		done <- c.SubmitChatMessage(context.Background(), "slow question")
	}()
	<-started

	c.ApplyFilters(context.Background(), model.RawFilters{Query: "fast"}, ApplyOptions{})

	close(release)
	<-done

	view := c.View()
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "fresh", view.Rows[0].Address)
	assert.Equal(t, "fast", view.Filters.Query)

	// Both turns still recorded.
	turns := c.Transcript()
	require.Len(t, turns, 2)
	assert.Equal(t, "late reply", turns[1].Assistant)
}

func TestApplyLosingRaceToChatClearsLoading(t *testing.T) {
	dataset := makeDataset(60)
	started := make(chan struct{})
	release := make(chan struct{})

	api := &fakeAPI{}
	api.searchHook = func(criteria model.FilterCriteria) (*model.ResultPage, error) {
		if criteria.Query == "slow" {
			close(started)
			<-release
			return &model.ResultPage{Total: 1, Records: []model.PropertyRecord{
				{BBL: "1", Address: "stale", Borough: "MN"},
			}}, nil
		}
		return pagedSearch(dataset)(criteria)
	}
	api.chatHook = func(upstream.ChatRequest) (*upstream.ChatResult, error) {
		return &upstream.ChatResult{
			Message: "Found 60 results.",
			Total:   60,
			Rows:    dataset[:24],
			Filters: model.ChatFilters{Borough: "MN"},
		}, nil
	}
	c, _ := newTestController(api)

	done := make(chan View, 1)
	go func() {
		done <- c.ApplyFilters(context.Background(), model.RawFilters{Query: "slow"}, ApplyOptions{})
	}()
	<-started

	// Chat supersedes the in-flight apply.
	view := c.SubmitChatMessage(context.Background(), "everything in Manhattan")
	require.NotNil(t, view.Total)
	assert.Equal(t, 60, *view.Total)
	assert.False(t, view.IsEnd)

	close(release)
	<-done

	// The discarded apply must not leave a phantom in-flight search behind.
	view = c.View()
	assert.False(t, view.Loading)
	require.Len(t, view.Rows, 24)
	assert.NotEqual(t, "stale", view.Rows[0].Address)

	// Pagination over the chat result set still works.
	searchesBefore, _ := api.calls()
	view = c.LoadMore(context.Background())
	searchesAfter, _ := api.calls()
	assert.Equal(t, searchesBefore+1, searchesAfter)
	assert.Len(t, view.Rows, 48)
}

func TestRestoreFromCacheRoundTrip(t *testing.T) {
	dataset := makeDataset(30)
	api := &fakeAPI{searchHook: pagedSearch(dataset)}
	st := store.NewMemoryStore()

	first := NewController("tab-1", api, st, nil, testPageSize)
	raw := model.RawFilters{Query: "82nd street", Borough: "MN", YearMin: floatPtr(1920)}
	original := first.ApplyFilters(context.Background(), raw, ApplyOptions{})
	require.NotNil(t, original.Total)

	// Same tab, fresh page load.
	reloaded := NewController("tab-1", api, st, nil, testPageSize)
	searchesBefore, _ := api.calls()

	view, restored := reloaded.RestoreFromCache(context.Background(), raw)
	assert.True(t, restored)

	searchesAfter, _ := api.calls()
	assert.Equal(t, searchesBefore, searchesAfter, "restore must not hit the network")

	require.NotNil(t, view.Total)
	assert.Equal(t, *original.Total, *view.Total)
	require.Len(t, view.Rows, len(original.Rows))
	for i := range view.Rows {
		assert.Equal(t, original.Rows[i].BBL, view.Rows[i].BBL)
	}
	assert.Equal(t, original.IsEnd, view.IsEnd)
}

func TestRestoreFallsThroughOnFilterMismatch(t *testing.T) {
	dataset := makeDataset(10)
	api := &fakeAPI{searchHook: pagedSearch(dataset)}
	st := store.NewMemoryStore()

	first := NewController("tab-2", api, st, nil, testPageSize)
	first.ApplyFilters(context.Background(), model.RawFilters{Query: "82nd street"}, ApplyOptions{})

	reloaded := NewController("tab-2", api, st, nil, testPageSize)
	searchesBefore, _ := api.calls()

	_, restored := reloaded.RestoreFromCache(context.Background(), model.RawFilters{Query: "broadway"})
	assert.False(t, restored)

	searchesAfter, _ := api.calls()
	assert.Equal(t, searchesBefore+1, searchesAfter)
}

func TestTranscriptPersistsAcrossControllers(t *testing.T) {
	api := &fakeAPI{}
	api.chatHook = func(upstream.ChatRequest) (*upstream.ChatResult, error) {
		return &upstream.ChatResult{
			Message: "sure",
			Total:   2,
			Rows:    []model.PropertyRecord{{BBL: "1", Address: "a", Borough: "BK"}},
			Filters: model.ChatFilters{Borough: "BK"},
		}, nil
	}
	st := store.NewMemoryStore()

	first := NewController("tab-3", api, st, nil, testPageSize)
	first.SubmitChatMessage(context.Background(), "lofts in Brooklyn")
	require.Len(t, first.Transcript(), 2)

	reloaded := NewController("tab-3", api, st, nil, testPageSize)
	turns := reloaded.Transcript()
	require.Len(t, turns, 2)
	assert.Equal(t, "lofts in Brooklyn", turns[0].User)
	assert.Equal(t, "sure", turns[1].Assistant)

	// Reloaded controller carries forward the last inferred filters.
	var got upstream.ChatRequest
	api.mu.Lock()
	api.chatHook = func(req upstream.ChatRequest) (*upstream.ChatResult, error) {
		got = req
		return &upstream.ChatResult{Message: "ok"}, nil
	}
	api.mu.Unlock()
	reloaded.SubmitChatMessage(context.Background(), "and with elevators")
	require.NotNil(t, got.PreviousFilters)
	assert.Equal(t, "BK", got.PreviousFilters.Borough)
}

func TestStorageFailuresAreSilent(t *testing.T) {
	api := &fakeAPI{searchHook: pagedSearch(makeDataset(3))}
	c := NewController("tab-4", api, failingStore{}, nil, testPageSize)

	view := c.ApplyFilters(context.Background(), model.RawFilters{Query: "x"}, ApplyOptions{})
	assert.Empty(t, view.SearchError)
	assert.Len(t, view.Rows, 3)
}

// failingStore errors on every operation; the controller must shrug it off.
type failingStore struct{}

func (failingStore) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, fmt.Errorf("storage unavailable")
}
func (failingStore) Set(context.Context, string, string, []byte) error {
	return fmt.Errorf("storage unavailable")
}
func (failingStore) Delete(context.Context, string, string) error {
	return fmt.Errorf("storage unavailable")
}

func TestViewSnapshotIsolation(t *testing.T) {
	api := &fakeAPI{searchHook: pagedSearch(makeDataset(5))}
	c, _ := newTestController(api)

	view := c.ApplyFilters(context.Background(), model.RawFilters{}, ApplyOptions{})
	require.NotEmpty(t, view.Rows)
	view.Rows[0].Address = "mutated"

	fresh := c.View()
	assert.NotEqual(t, "mutated", fresh.Rows[0].Address)
}

func TestConcurrentAppliesConverge(t *testing.T) {
	api := &fakeAPI{}
	api.searchHook = func(criteria model.FilterCriteria) (*model.ResultPage, error) {
		time.Sleep(time.Millisecond)
		return &model.ResultPage{Total: 1, Records: []model.PropertyRecord{
			{BBL: criteria.Query, Address: criteria.Query, Borough: "MN"},
		}}, nil
	}
	c, _ := newTestController(api)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.ApplyFilters(context.Background(), model.RawFilters{Query: fmt.Sprintf("q%d", i)}, ApplyOptions{})
		}(i)
	}
	wg.Wait()

	// Whatever won, the view must be internally consistent.
	view := c.View()
	require.Len(t, view.Rows, 1)
	assert.Equal(t, view.Filters.Query, view.Rows[0].BBL)
	assert.False(t, view.Loading)
}
