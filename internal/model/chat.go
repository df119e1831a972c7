package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Chat turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleCombined  = "combined"
)

// ChatPreviewLimit bounds how many result rows a transcript turn keeps.
const ChatPreviewLimit = 3

// ChatFilters is the filter snapshot the conversational endpoint inferred
// from a message. All fields are optional.
type ChatFilters struct {
	Query   string `json:"q,omitempty"`
	Borough string `json:"borough,omitempty"`
	YearMin *int   `json:"year_min,omitempty"`
	Sort    string `json:"sort,omitempty"`
}

// IsZero reports whether no filter was inferred at all.
func (c ChatFilters) IsZero() bool {
	return c.Query == "" && c.Borough == "" && c.YearMin == nil && c.Sort == ""
}

// Sanitize normalizes an inferred filter snapshot, dropping unusable values
// the same way form input is normalized.
func (c ChatFilters) Sanitize() ChatFilters {
	out := ChatFilters{
		Query:   c.Query,
		Borough: NormalizeBorough(c.Borough),
		YearMin: c.YearMin,
	}
	if validSortKeys[c.Sort] {
		out.Sort = c.Sort
	}
	return out
}

// ChatTurn is one exchange in the conversational transcript. Turns are
// append-only: once created they are never mutated, and preview rows are
// trimmed at creation time.
type ChatTurn struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	User      string           `json:"user"`
	Assistant string           `json:"assistant"`
	Total     int              `json:"total"`
	Filters   *ChatFilters     `json:"filters,omitempty"`
	Rows      []PropertyRecord `json:"rows"`
}

// NewUserTurn builds the optimistic turn appended when a question is sent.
func NewUserTurn(text string) ChatTurn {
	return ChatTurn{
		ID:   NewTurnID(),
		Role: RoleUser,
		User: text,
		Rows: []PropertyRecord{},
	}
}

// NewAssistantTurn builds the reply turn, keeping at most ChatPreviewLimit
// preview rows.
func NewAssistantTurn(question, reply string, total int, filters *ChatFilters, rows []PropertyRecord) ChatTurn {
	return ChatTurn{
		ID:        NewTurnID(),
		Role:      RoleAssistant,
		User:      question,
		Assistant: reply,
		Total:     total,
		Filters:   filters,
		Rows:      PreviewRows(rows, ChatPreviewLimit),
	}
}

// PreviewRows returns at most limit rows, skipping rows with no identifier.
func PreviewRows(rows []PropertyRecord, limit int) []PropertyRecord {
	out := []PropertyRecord{}
	if limit <= 0 {
		return out
	}
	for _, row := range rows {
		if row.BBL == "" || row.Address == "" {
			continue
		}
		out = append(out, row)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// NewTurnID generates a unique transcript entry id.
func NewTurnID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("chat-%d", time.Now().UnixNano())
	}
	return "chat-" + hex.EncodeToString(buf)
}
