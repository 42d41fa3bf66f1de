package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"commandops/internal/domain"
	"commandops/internal/validate"
)

type questBody struct {
	Body domain.Quest
}

type questPathInput struct {
	ID string `path:"id"`
}

type transitionBody struct {
	Body TransitionResult
}

func (r routes) registerQuests(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-quest",
		Method:        http.MethodPost,
		Path:          "/quests",
		Summary:       "Create quest",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateQuestRequest
	}) (*questBody, error) {
		owner, err := r.guard(ctx, "quest.create")
		if err != nil {
			return nil, r.handleError(ctx, "create-quest", err)
		}
		q, err := r.engine.CreateQuest(ctx, owner, input.Body.input())
		if err != nil {
			return nil, r.handleError(ctx, "create-quest", err)
		}
		return &questBody{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-quests",
		Method:      http.MethodGet,
		Path:        "/quests",
		Summary:     "List quests in priority order",
	}, func(ctx context.Context, input *struct {
		Status          string `query:"status"`
		MissionID       string `query:"mission_id"`
		Unassigned      bool   `query:"unassigned" doc:"Only quests without a mission"`
		IncludeArchived bool   `query:"include_archived"`
	}) (*struct{ Body QuestList }, error) {
		owner, err := r.guard(ctx, "quest.list")
		if err != nil {
			return nil, r.handleError(ctx, "list-quests", err)
		}
		f := domain.QuestFilter{Unassigned: input.Unassigned, IncludeArchived: input.IncludeArchived}
		if s := strings.TrimSpace(input.Status); s != "" {
			st := domain.QuestStatus(strings.ToUpper(s))
			f.Status = &st
		}
		if id := strings.TrimSpace(input.MissionID); id != "" {
			f.MissionID = &id
		}
		quests, err := r.engine.ListQuests(ctx, owner, f)
		if err != nil {
			return nil, r.handleError(ctx, "list-quests", err)
		}
		if quests == nil {
			quests = []domain.Quest{}
		}
		return &struct{ Body QuestList }{Body: QuestList{Items: quests}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-quest",
		Method:      http.MethodGet,
		Path:        "/quests/{id}",
		Summary:     "Get quest",
	}, func(ctx context.Context, input *questPathInput) (*questBody, error) {
		owner, err := r.guard(ctx, "quest.get")
		if err != nil {
			return nil, r.handleError(ctx, "get-quest", err)
		}
		q, err := r.engine.GetQuest(ctx, owner, input.ID)
		if err != nil {
			return nil, r.handleError(ctx, "get-quest", err)
		}
		return &questBody{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-quest",
		Method:      http.MethodPatch,
		Path:        "/quests/{id}",
		Summary:     "Update quest details",
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateQuestRequest
	}) (*questBody, error) {
		owner, err := r.guard(ctx, "quest.update")
		if err != nil {
			return nil, r.handleError(ctx, "update-quest", err)
		}
		q, err := r.engine.UpdateQuest(ctx, owner, input.ID, input.Body.patch())
		if err != nil {
			return nil, r.handleError(ctx, "update-quest", err)
		}
		return &questBody{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-quest",
		Method:        http.MethodDelete,
		Path:          "/quests/{id}",
		Summary:       "Delete quest",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *questPathInput) (*struct{}, error) {
		owner, err := r.guard(ctx, "quest.delete")
		if err != nil {
			return nil, r.handleError(ctx, "delete-quest", err)
		}
		if err := r.engine.DeleteQuest(ctx, owner, input.ID); err != nil {
			return nil, r.handleError(ctx, "delete-quest", err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-quest",
		Method:      http.MethodPost,
		Path:        "/quests/{id}/activate",
		Summary:     "Activate quest",
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body *ActivateQuestRequest `required:"false"`
	}) (*transitionBody, error) {
		owner, err := r.guard(ctx, "quest.activate")
		if err != nil {
			return nil, r.handleError(ctx, "activate-quest", err)
		}
		t, err := r.engine.ActivateQuest(ctx, owner, input.ID, input.Body.input())
		if err != nil {
			return nil, r.handleError(ctx, "activate-quest", err)
		}
		return &transitionBody{Body: transitionResult(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-quest",
		Method:      http.MethodPost,
		Path:        "/quests/{id}/complete",
		Summary:     "Complete quest with debrief",
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body *CompleteQuestRequest `required:"false"`
	}) (*questBody, error) {
		owner, err := r.guard(ctx, "quest.complete")
		if err != nil {
			return nil, r.handleError(ctx, "complete-quest", err)
		}
		q, err := r.engine.CompleteQuest(ctx, owner, input.ID, input.Body.input())
		if err != nil {
			return nil, r.handleError(ctx, "complete-quest", err)
		}
		return &questBody{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-quest-status",
		Method:      http.MethodPut,
		Path:        "/quests/{id}/status",
		Summary:     "Set quest status",
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body SetQuestStatusRequest
	}) (*transitionBody, error) {
		owner, err := r.guard(ctx, "quest.status")
		if err != nil {
			return nil, r.handleError(ctx, "set-quest-status", err)
		}
		t, err := r.engine.SetQuestStatus(ctx, owner, input.ID, validate.StatusInput{
			Status:    domain.QuestStatus(input.Body.Status),
			Emergency: input.Body.Emergency,
		})
		if err != nil {
			return nil, r.handleError(ctx, "set-quest-status", err)
		}
		return &transitionBody{Body: transitionResult(t)}, nil
	})
}
