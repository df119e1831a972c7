package session

import (
	"context"
	"encoding/json"

	"github.com/HenryGreene10/propertyfish/internal/model"
)

// Persistence helpers. The store is a best-effort cache: read and write
// failures are logged and swallowed, and absent state is always valid.

func (c *Controller) writeResultsCacheLocked(ctx context.Context) {
	if c.total == nil {
		return
	}
	entry := model.CachedResultsEntry{
		Filters: model.CacheKeyFrom(c.active),
		Total:   *c.total,
		Rows:    c.rows,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, c.sessionID, LastResultsKey, payload); err != nil {
		c.log.Debug("results cache write failed", "error", err)
	}
}

func (c *Controller) readResultsCache(ctx context.Context) *model.CachedResultsEntry {
	payload, found, err := c.store.Get(ctx, c.sessionID, LastResultsKey)
	if err != nil {
		c.log.Debug("results cache read failed", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	var entry model.CachedResultsEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil
	}
	if entry.Rows == nil {
		entry.Rows = []model.PropertyRecord{}
	}
	return &entry
}

func (c *Controller) persistTranscriptLocked(ctx context.Context) {
	payload, err := json.Marshal(c.transcript)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, c.sessionID, ChatHistoryKey, payload); err != nil {
		c.log.Debug("transcript write failed", "error", err)
	}
}

// turnWire tolerates historical transcript payloads: "reply" as an alias
// for "assistant", "matches" for "total", preview rows under several names.
type turnWire struct {
	ID          string             `json:"id"`
	Role        string             `json:"role"`
	User        string             `json:"user"`
	Assistant   string             `json:"assistant"`
	Reply       string             `json:"reply"`
	Total       *int               `json:"total"`
	Matches     *int               `json:"matches"`
	Filters     *model.ChatFilters `json:"filters"`
	Rows        []model.RecordWire `json:"rows"`
	PreviewRows []model.RecordWire `json:"previewRows"`
}

func (c *Controller) loadTranscript(ctx context.Context) {
	payload, found, err := c.store.Get(ctx, c.sessionID, ChatHistoryKey)
	if err != nil || !found {
		return
	}
	var wires []turnWire
	if err := json.Unmarshal(payload, &wires); err != nil {
		return
	}

	transcript := make([]model.ChatTurn, 0, len(wires))
	for _, w := range wires {
		assistant := w.Assistant
		if assistant == "" {
			assistant = w.Reply
		}
		if w.User == "" && assistant == "" {
			continue
		}
		total := 0
		if w.Total != nil {
			total = *w.Total
		} else if w.Matches != nil {
			total = *w.Matches
		}
		rows := w.Rows
		if rows == nil {
			rows = w.PreviewRows
		}
		role := w.Role
		switch role {
		case model.RoleUser, model.RoleAssistant, model.RoleCombined:
		default:
			if assistant == "" {
				role = model.RoleUser
			} else if w.User != "" {
				role = model.RoleCombined
			} else {
				role = model.RoleAssistant
			}
		}
		var filters *model.ChatFilters
		if w.Filters != nil {
			sanitized := w.Filters.Sanitize()
			if !sanitized.IsZero() {
				filters = &sanitized
			}
		}
		id := w.ID
		if id == "" {
			id = model.NewTurnID()
		}
		transcript = append(transcript, model.ChatTurn{
			ID:        id,
			Role:      role,
			User:      w.User,
			Assistant: assistant,
			Total:     total,
			Filters:   filters,
			Rows:      model.PreviewRows(model.Records(rows), model.ChatPreviewLimit),
		})
	}

	c.mu.Lock()
	c.transcript = transcript
	if len(transcript) > 0 {
		c.chatContext = transcript[len(transcript)-1].Filters
	}
	c.mu.Unlock()
}
