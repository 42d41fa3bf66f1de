package validate

import (
	"strings"
	"time"

	"commandops/internal/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ArchiveQuery is the raw query-string form of an archive view request.
type ArchiveQuery struct {
	Query            string
	From             string
	To               string
	Satisfaction     int
	Critical         string
	MissionID        string
	IncludeCompleted bool
	Page             int
	PageSize         int
}

// Filter validates q and converts it into a domain filter. Dates accept
// YYYY-MM-DD (To covers the whole day) or RFC3339.
func (q ArchiveQuery) Filter(loc *time.Location) (domain.ArchiveFilter, error) {
	f := fieldErrors{}
	out := domain.ArchiveFilter{
		Query:            Sanitize(q.Query),
		IncludeCompleted: q.IncludeCompleted,
		Page:             q.Page,
		PageSize:         q.PageSize,
	}
	if out.Page == 0 {
		out.Page = 1
	}
	if out.PageSize == 0 {
		out.PageSize = DefaultPageSize
	}
	if out.Page < 1 {
		f["page"] = "must be at least 1"
	}
	if out.PageSize < 1 || out.PageSize > MaxPageSize {
		f["page_size"] = "must be between 1 and 100"
	}
	if q.From != "" {
		t, err := ParseDate(q.From, false, loc)
		if err != nil {
			f["from"] = err.Error()
		}
		out.From = t
	}
	if q.To != "" {
		t, err := ParseDate(q.To, true, loc)
		if err != nil {
			f["to"] = err.Error()
		}
		out.To = t
	}
	if out.From != nil && out.To != nil && out.To.Before(*out.From) {
		f["to"] = "must not be before from"
	}
	if q.Satisfaction != 0 {
		if q.Satisfaction < 1 || q.Satisfaction > 5 {
			f["satisfaction"] = "must be between 1 and 5"
		}
		s := q.Satisfaction
		out.Satisfaction = &s
	}
	switch strings.ToLower(strings.TrimSpace(q.Critical)) {
	case "":
	case "true":
		v := true
		out.Critical = &v
	case "false":
		v := false
		out.Critical = &v
	default:
		f["critical"] = "must be true or false"
	}
	if id := strings.TrimSpace(q.MissionID); id != "" {
		out.MissionID = &id
	}
	return out, f.err()
}

type dateError string

func (e dateError) Error() string { return string(e) }

// ParseDate parses a date or timestamp. For a bare date and endOfDay, the
// last instant of that day is returned.
func ParseDate(s string, endOfDay bool, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return nil, dateError("must be YYYY-MM-DD or RFC3339")
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}
