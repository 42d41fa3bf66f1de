package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"commandops/internal/domain"
)

type missionBody struct {
	Body domain.Mission
}

type missionPathInput struct {
	ID string `path:"id"`
}

func (r routes) registerMissions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create mission",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest
	}) (*missionBody, error) {
		owner, err := r.guard(ctx, "mission.create")
		if err != nil {
			return nil, r.handleError(ctx, "create-mission", err)
		}
		m, err := r.engine.CreateMission(ctx, owner, input.Body.input())
		if err != nil {
			return nil, r.handleError(ctx, "create-mission", err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions with quest counts",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" doc:"ACTIVE or ARCHIVED"`
	}) (*struct{ Body MissionList }, error) {
		owner, err := r.guard(ctx, "mission.list")
		if err != nil {
			return nil, r.handleError(ctx, "list-missions", err)
		}
		var status *domain.MissionStatus
		if s := strings.TrimSpace(input.Status); s != "" {
			st := domain.MissionStatus(strings.ToUpper(s))
			status = &st
		}
		missions, err := r.engine.ListMissions(ctx, owner, status)
		if err != nil {
			return nil, r.handleError(ctx, "list-missions", err)
		}
		if missions == nil {
			missions = []domain.Mission{}
		}
		return &struct{ Body MissionList }{Body: MissionList{Items: missions}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission",
	}, func(ctx context.Context, input *missionPathInput) (*missionBody, error) {
		owner, err := r.guard(ctx, "mission.get")
		if err != nil {
			return nil, r.handleError(ctx, "get-mission", err)
		}
		m, err := r.engine.GetMission(ctx, owner, input.ID)
		if err != nil {
			return nil, r.handleError(ctx, "get-mission", err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mission",
		Method:      http.MethodPatch,
		Path:        "/missions/{id}",
		Summary:     "Update mission",
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateMissionRequest
	}) (*missionBody, error) {
		owner, err := r.guard(ctx, "mission.update")
		if err != nil {
			return nil, r.handleError(ctx, "update-mission", err)
		}
		m, err := r.engine.UpdateMission(ctx, owner, input.ID, input.Body.patch())
		if err != nil {
			return nil, r.handleError(ctx, "update-mission", err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-mission",
		Method:      http.MethodDelete,
		Path:        "/missions/{id}",
		Summary:     "Delete mission, deleting or orphaning its quests",
	}, func(ctx context.Context, input *struct {
		ID           string `path:"id"`
		DeleteQuests bool   `query:"delete_quests" doc:"Delete the mission's quests instead of detaching them"`
	}) (*struct{ Body DeleteMissionResult }, error) {
		owner, err := r.guard(ctx, "mission.delete")
		if err != nil {
			return nil, r.handleError(ctx, "delete-mission", err)
		}
		res, err := r.engine.DeleteMission(ctx, owner, input.ID, input.DeleteQuests)
		if err != nil {
			return nil, r.handleError(ctx, "delete-mission", err)
		}
		return &struct{ Body DeleteMissionResult }{Body: DeleteMissionResult{
			MissionID:      res.MissionID,
			QuestsDeleted:  res.QuestsDeleted,
			QuestsOrphaned: res.QuestsOrphaned,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/archive",
		Summary:     "Archive mission",
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body *ArchiveMissionRequest `required:"false"`
	}) (*missionBody, error) {
		owner, err := r.guard(ctx, "mission.archive")
		if err != nil {
			return nil, r.handleError(ctx, "archive-mission", err)
		}
		m, err := r.engine.ArchiveMission(ctx, owner, input.ID, input.Body.input())
		if err != nil {
			return nil, r.handleError(ctx, "archive-mission", err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-mission-quests",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/quests/archive",
		Summary:     "Archive every quest under a mission",
	}, func(ctx context.Context, input *missionPathInput) (*struct{ Body BulkArchiveResult }, error) {
		owner, err := r.guard(ctx, "mission.archive_quests")
		if err != nil {
			return nil, r.handleError(ctx, "archive-mission-quests", err)
		}
		n, err := r.engine.ArchiveMissionQuests(ctx, owner, input.ID)
		if err != nil {
			return nil, r.handleError(ctx, "archive-mission-quests", err)
		}
		return &struct{ Body BulkArchiveResult }{Body: BulkArchiveResult{MissionID: input.ID, Archived: n}}, nil
	})
}
