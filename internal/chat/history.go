package chat

import (
	"context"
	"fmt"
)

// History answers REQUEST_MESSAGES style queries.
type History struct {
	store MessageStore
}

func NewHistory(store MessageStore) *History {
	return &History{store: store}
}

// Fetch returns up to HistoryLimit of the most recent matching messages,
// oldest first.
func (h *History) Fetch(ctx context.Context, q RequestMessagesAction) ([]Message, error) {
	filter := MessageFilter{
		RoomID: q.RoomID,
		Member: q.User,
		Limit:  HistoryLimit,
	}

	// Anything at or after the last message the client has seen
	if q.LastMessageID != nil {
		anchor, err := h.store.GetMessageByID(ctx, *q.LastMessageID)
		if err != nil {
			return nil, fmt.Errorf("lastMessageId: %w", err)
		}
		filter.Since = &anchor.CreatedAt
	}
	// Anything at or before the first message the client has seen
	if q.FirstMessageID != nil {
		anchor, err := h.store.GetMessageByID(ctx, *q.FirstMessageID)
		if err != nil {
			return nil, fmt.Errorf("firstMessageId: %w", err)
		}
		filter.Until = &anchor.CreatedAt
	}

	msgs, err := h.store.QueryMessages(ctx, filter)
	if err != nil {
		return nil, err
	}

	// The store hands back newest first because of the limit; clients append
	// in chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
