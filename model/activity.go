package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity is the persisted record of a directed social interaction. It is
// created once by the activity generator and only ever toggled (read/deleted)
// afterwards.
type Activity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Kind      string    `json:"kind" db:"kind"`
	Action    string    `json:"action" db:"action"`
	Author    string    `json:"author" db:"author"`
	To        *string   `json:"to,omitempty" db:"to_user"`
	Target    string    `json:"target" db:"target"`
	Name      string    `json:"name" db:"name"`
	Content   string    `json:"content" db:"content"`
	Verb      string    `json:"verb" db:"verb"`
	Read      bool      `json:"read" db:"read"`
	Deleted   bool      `json:"deleted" db:"deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ActivityEdge struct {
	Cursor string   `json:"cursor"`
	Node   Activity `json:"node"`
}

type PageInfo struct {
	EndCursor       *string `json:"end_cursor,omitempty"`
	HasNextPage     bool    `json:"has_next_page"`
	StartCursor     *string `json:"start_cursor,omitempty"`
	HasPreviousPage bool    `json:"has_previous_page"`
}

type ActivityConnection struct {
	Edges       []ActivityEdge `json:"edges"`
	PageInfo    PageInfo       `json:"page_info"`
	TotalCount  int32          `json:"total_count"`
	UnreadCount int32          `json:"unread_count"`
}
