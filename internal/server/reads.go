package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"commandops/internal/domain"
	"commandops/internal/validate"
)

type archiveQueryInput struct {
	Q                string `query:"q" doc:"Case-insensitive substring search"`
	From             string `query:"from" doc:"YYYY-MM-DD or RFC3339"`
	To               string `query:"to" doc:"YYYY-MM-DD (inclusive) or RFC3339"`
	Satisfaction     int    `query:"satisfaction"`
	Critical         string `query:"critical" doc:"true or false"`
	MissionID        string `query:"mission_id"`
	IncludeCompleted bool   `query:"include_completed"`
	Page             int    `query:"page"`
	PageSize         int    `query:"page_size"`
}

func (in archiveQueryInput) query() validate.ArchiveQuery {
	return validate.ArchiveQuery{
		Query:            in.Q,
		From:             in.From,
		To:               in.To,
		Satisfaction:     in.Satisfaction,
		Critical:         in.Critical,
		MissionID:        in.MissionID,
		IncludeCompleted: in.IncludeCompleted,
		Page:             in.Page,
		PageSize:         in.PageSize,
	}
}

func (r routes) registerArchive(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "archived-quests",
		Method:      http.MethodGet,
		Path:        "/archive/quests",
		Summary:     "Page through archived quests",
	}, func(ctx context.Context, input *archiveQueryInput) (*struct{ Body ArchivedQuestPage }, error) {
		owner, err := r.guard(ctx, "archive.quests")
		if err != nil {
			return nil, r.handleError(ctx, "archived-quests", err)
		}
		page, err := r.engine.ArchivedQuests(ctx, owner, input.query())
		if err != nil {
			return nil, r.handleError(ctx, "archived-quests", err)
		}
		return &struct{ Body ArchivedQuestPage }{Body: ArchivedQuestPage{page}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archived-missions",
		Method:      http.MethodGet,
		Path:        "/archive/missions",
		Summary:     "Page through archived missions",
	}, func(ctx context.Context, input *archiveQueryInput) (*struct{ Body ArchivedMissionPage }, error) {
		owner, err := r.guard(ctx, "archive.missions")
		if err != nil {
			return nil, r.handleError(ctx, "archived-missions", err)
		}
		page, err := r.engine.ArchivedMissions(ctx, owner, input.query())
		if err != nil {
			return nil, r.handleError(ctx, "archived-missions", err)
		}
		return &struct{ Body ArchivedMissionPage }{Body: ArchivedMissionPage{page}}, nil
	})
}

func (r routes) registerReadModels(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Board statistics",
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body domain.Stats }, error) {
		owner, err := r.guard(ctx, "stats.read")
		if err != nil {
			return nil, r.handleError(ctx, "stats", err)
		}
		s, err := r.engine.Stats(ctx, owner)
		if err != nil {
			return nil, r.handleError(ctx, "stats", err)
		}
		return &struct{ Body domain.Stats }{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics",
		Method:      http.MethodGet,
		Path:        "/analytics",
		Summary:     "Analytics snapshot",
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body domain.Analytics }, error) {
		owner, err := r.guard(ctx, "analytics.read")
		if err != nil {
			return nil, r.handleError(ctx, "analytics", err)
		}
		a, err := r.engine.Analytics(ctx, owner)
		if err != nil {
			return nil, r.handleError(ctx, "analytics", err)
		}
		return &struct{ Body domain.Analytics }{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent events, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" doc:"Defaults to 50, capped at 200"`
	}) (*struct{ Body EventList }, error) {
		owner, err := r.guard(ctx, "events.list")
		if err != nil {
			return nil, r.handleError(ctx, "list-events", err)
		}
		evts, err := r.engine.Events(ctx, owner, input.Limit)
		if err != nil {
			return nil, r.handleError(ctx, "list-events", err)
		}
		views, err := eventViews(evts)
		if err != nil {
			return nil, r.handleError(ctx, "list-events", err)
		}
		return &struct{ Body EventList }{Body: EventList{Items: views}}, nil
	})
}

func (r routes) registerFeedback(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-feedback",
		Method:        http.MethodPost,
		Path:          "/feedback",
		Summary:       "Submit feedback",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body FeedbackRequest
	}) (*struct{ Body domain.Feedback }, error) {
		owner, err := r.guard(ctx, "feedback.create")
		if err != nil {
			return nil, r.handleError(ctx, "submit-feedback", err)
		}
		f, err := r.engine.SubmitFeedback(ctx, owner, validate.FeedbackInput{Message: input.Body.Message})
		if err != nil {
			return nil, r.handleError(ctx, "submit-feedback", err)
		}
		return &struct{ Body domain.Feedback }{Body: f}, nil
	})
}
