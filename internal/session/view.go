package session

import "github.com/HenryGreene10/propertyfish/internal/model"

// View is the consistent state snapshot handed to the HTTP layer. Total is
// nil until a search has produced an authoritative count.
type View struct {
	Rows          []model.PropertyRecord `json:"rows"`
	Total         *int                   `json:"total"`
	IsEnd         bool                   `json:"is_end"`
	HasSearched   bool                   `json:"has_searched"`
	Loading       bool                   `json:"loading"`
	LoadingMore   bool                   `json:"loading_more"`
	ChatLoading   bool                   `json:"chat_loading"`
	SearchError   string                 `json:"search_error,omitempty"`
	ChatError     string                 `json:"chat_error,omitempty"`
	Filters       model.FilterCriteria   `json:"filters"`
	ShareQuery    string                 `json:"share_query"`
	TranscriptLen int                    `json:"transcript_len"`
}

func (c *Controller) viewLocked() View {
	rows := make([]model.PropertyRecord, len(c.rows))
	copy(rows, c.rows)

	var total *int
	if c.total != nil {
		t := *c.total
		total = &t
	}

	return View{
		Rows:          rows,
		Total:         total,
		IsEnd:         c.isEnd,
		HasSearched:   c.hasSearched,
		Loading:       c.loading,
		LoadingMore:   c.loadingMore,
		ChatLoading:   c.chatLoading,
		SearchError:   c.searchErr,
		ChatError:     c.chatErr,
		Filters:       c.active,
		ShareQuery:    c.active.ShareableQuery(),
		TranscriptLen: len(c.transcript),
	}
}
