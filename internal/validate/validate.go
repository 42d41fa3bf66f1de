// Package validate checks and sanitizes external input before it reaches the
// engine. Every schema has a Validate method returning a cleaned copy or an
// *apperr.Error of kind validation listing the offending fields.
package validate

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"commandops/internal/apperr"
	"commandops/internal/domain"
)

const (
	MaxTitle             = 500
	MaxObjective         = 5000
	MaxDescription       = 5000
	MaxDebriefNotes      = 5000
	MaxFirstTacticalStep = 1000
	MaxAfterActionReport = 10000
	MaxFeedback          = 10000
	MaxMinutes           = 525600
)

var strict = bluemonday.StrictPolicy()

const sanitizePasses = 5

// Sanitize strips all markup (script and style bodies included) and trims
// surrounding whitespace. Entities are decoded back to plain text, and the
// decoded text is sanitized again until it is stable, so entity-encoded tags
// never come back out as markup.
func Sanitize(s string) string {
	for i := 0; i < sanitizePasses; i++ {
		next := html.UnescapeString(strict.Sanitize(s))
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
	// Still decoding after every pass: keep the escaped form.
	return strings.TrimSpace(strict.Sanitize(s))
}

type fieldErrors map[string]string

func (f fieldErrors) text(field string, v *string, min, max int) {
	*v = Sanitize(*v)
	n := utf8.RuneCountInString(*v)
	switch {
	case n < min && min == 1:
		f[field] = "required"
	case n < min:
		f[field] = fmt.Sprintf("must be at least %d characters", min)
	case n > max:
		f[field] = fmt.Sprintf("must be at most %d characters", max)
	}
}

func (f fieldErrors) minutes(field string, v *int) {
	if v != nil && (*v < 0 || *v > MaxMinutes) {
		f[field] = fmt.Sprintf("must be between 0 and %d minutes", MaxMinutes)
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperr.Validation(f)
}

type MissionInput struct {
	Title     string
	Objective string
}

func (in MissionInput) Validate() (MissionInput, error) {
	f := fieldErrors{}
	f.text("title", &in.Title, 1, MaxTitle)
	f.text("objective", &in.Objective, 0, MaxObjective)
	return in, f.err()
}

// MissionPatch carries optional mission edits; nil fields are unchanged.
type MissionPatch struct {
	Title     *string
	Objective *string
}

func (in MissionPatch) Validate() (MissionPatch, error) {
	f := fieldErrors{}
	if in.Title != nil {
		v := *in.Title
		f.text("title", &v, 1, MaxTitle)
		in.Title = &v
	}
	if in.Objective != nil {
		v := *in.Objective
		f.text("objective", &v, 0, MaxObjective)
		in.Objective = &v
	}
	return in, f.err()
}

type ArchiveMissionInput struct {
	AfterActionReport string
}

func (in ArchiveMissionInput) Validate() (ArchiveMissionInput, error) {
	f := fieldErrors{}
	f.text("after_action_report", &in.AfterActionReport, 0, MaxAfterActionReport)
	return in, f.err()
}

type QuestInput struct {
	MissionID     *string
	Title         string
	Description   string
	IsCritical    bool
	Deadline      *time.Time
	EstimatedTime *int
}

func (in QuestInput) Validate() (QuestInput, error) {
	f := fieldErrors{}
	f.text("title", &in.Title, 1, MaxTitle)
	f.text("description", &in.Description, 0, MaxDescription)
	f.minutes("estimated_time", in.EstimatedTime)
	if in.MissionID != nil && strings.TrimSpace(*in.MissionID) == "" {
		in.MissionID = nil
	}
	return in, f.err()
}

// QuestPatch carries optional quest edits. An empty MissionID detaches the
// quest from its mission; ClearDeadline removes the deadline.
type QuestPatch struct {
	MissionID     *string
	Title         *string
	Description   *string
	IsCritical    *bool
	Deadline      *time.Time
	ClearDeadline bool
	EstimatedTime *int
}

func (in QuestPatch) Validate() (QuestPatch, error) {
	f := fieldErrors{}
	if in.Title != nil {
		v := *in.Title
		f.text("title", &v, 1, MaxTitle)
		in.Title = &v
	}
	if in.Description != nil {
		v := *in.Description
		f.text("description", &v, 0, MaxDescription)
		in.Description = &v
	}
	f.minutes("estimated_time", in.EstimatedTime)
	if in.ClearDeadline && in.Deadline != nil {
		f["deadline"] = "cannot set and clear deadline together"
	}
	if in.MissionID != nil {
		v := strings.TrimSpace(*in.MissionID)
		in.MissionID = &v
	}
	return in, f.err()
}

type ActivateInput struct {
	FirstTacticalStep string
	EstimatedTime     *int
	Emergency         bool
}

func (in ActivateInput) Validate() (ActivateInput, error) {
	f := fieldErrors{}
	f.text("first_tactical_step", &in.FirstTacticalStep, 0, MaxFirstTacticalStep)
	f.minutes("estimated_time", in.EstimatedTime)
	return in, f.err()
}

type CompleteInput struct {
	ActualTime          *int
	DebriefNotes        string
	DebriefSatisfaction *int
}

func (in CompleteInput) Validate() (CompleteInput, error) {
	f := fieldErrors{}
	f.text("debrief_notes", &in.DebriefNotes, 0, MaxDebriefNotes)
	f.minutes("actual_time", in.ActualTime)
	if s := in.DebriefSatisfaction; s != nil && (*s < 1 || *s > 5) {
		f["debrief_satisfaction"] = "must be between 1 and 5"
	}
	return in, f.err()
}

type StatusInput struct {
	Status    domain.QuestStatus
	Emergency bool
}

func (in StatusInput) Validate() (StatusInput, error) {
	f := fieldErrors{}
	in.Status = domain.QuestStatus(strings.ToUpper(strings.TrimSpace(string(in.Status))))
	if !in.Status.Valid() {
		f["status"] = "must be one of PLANNING, ACTIVE, COMPLETED, ARCHIVED"
	}
	return in, f.err()
}

type FeedbackInput struct {
	Message string
}

func (in FeedbackInput) Validate() (FeedbackInput, error) {
	f := fieldErrors{}
	f.text("message", &in.Message, 1, MaxFeedback)
	return in, f.err()
}
