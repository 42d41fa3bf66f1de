package domain

import "time"

// QuestFilter narrows quest listings. Without a Status, archived quests are
// left out unless IncludeArchived is set.
type QuestFilter struct {
	Status          *QuestStatus
	MissionID       *string
	Unassigned      bool
	IncludeArchived bool
}

// ArchiveFilter narrows the paginated archive views. Zero values mean
// "no constraint".
type ArchiveFilter struct {
	Query            string
	From             *time.Time
	To               *time.Time
	Satisfaction     *int
	Critical         *bool
	MissionID        *string
	IncludeCompleted bool
	Page             int
	PageSize         int
}

// Offset returns the row offset for the filter's page.
func (f ArchiveFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPage assembles a page, computing the page count from total.
func NewPage[T any](items []T, total int, f ArchiveFilter) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if f.PageSize > 0 {
		pages = (total + f.PageSize - 1) / f.PageSize
	}
	return Page[T]{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize, TotalPages: pages}
}
