package cmdopssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Command Ops HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for the API rooted at baseURL, e.g.
// http://127.0.0.1:8080/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Mission represents the API mission model.
type Mission struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"owner_id"`
	Title               string     `json:"title"`
	Objective           string     `json:"objective,omitempty"`
	Status              string     `json:"status"`
	ArchivedAt          *time.Time `json:"archived_at,omitempty"`
	AfterActionReport   string     `json:"after_action_report,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	TotalQuestCount     int        `json:"total_quest_count"`
	CompletedQuestCount int        `json:"completed_quest_count"`
}

// Quest represents the API quest model.
type Quest struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"owner_id"`
	MissionID           *string    `json:"mission_id,omitempty"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	IsCritical          bool       `json:"is_critical"`
	Status              string     `json:"status"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	EstimatedTime       *int       `json:"estimated_time,omitempty"`
	ActualTime          *int       `json:"actual_time,omitempty"`
	FirstTacticalStep   string     `json:"first_tactical_step,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	DebriefNotes        string     `json:"debrief_notes,omitempty"`
	DebriefSatisfaction *int       `json:"debrief_satisfaction,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type NewQuest struct {
	MissionID     *string    `json:"mission_id,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	IsCritical    bool       `json:"is_critical,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	EstimatedTime *int       `json:"estimated_time,omitempty"`
}

type Activation struct {
	FirstTacticalStep string `json:"first_tactical_step,omitempty"`
	EstimatedTime     *int   `json:"estimated_time,omitempty"`
	Emergency         bool   `json:"emergency,omitempty"`
}

type Debrief struct {
	ActualTime          *int   `json:"actual_time,omitempty"`
	DebriefNotes        string `json:"debrief_notes,omitempty"`
	DebriefSatisfaction *int   `json:"debrief_satisfaction,omitempty"`
}

// Transition is a quest after a status change. Admission is set when the
// quest was activated.
type Transition struct {
	Quest     Quest `json:"quest"`
	Admission *struct {
		IsEmergencyDeploy bool `json:"is_emergency_deploy"`
		ActiveCount       int  `json:"active_count"`
	} `json:"admission,omitempty"`
}

type DeleteResult struct {
	MissionID      string `json:"mission_id"`
	QuestsDeleted  int64  `json:"quests_deleted"`
	QuestsOrphaned int64  `json:"quests_orphaned"`
}

type Analytics struct {
	OperationalLoad  float64   `json:"operational_load"`
	ActiveCount      int       `json:"active_count"`
	WeeklyMomentum   int       `json:"weekly_momentum"`
	SuccessRate      int       `json:"success_rate"`
	EstimateAccuracy int       `json:"estimate_accuracy"`
	ComputedAt       time.Time `json:"computed_at"`
}

type Feedback struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         string         `json:"id"`
	TS         time.Time      `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Details   map[string]any
	Retryable bool
	Body      string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.Status, e.Body)
}

// CreateMission creates a mission.
func (c *Client) CreateMission(ctx context.Context, title, objective string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", map[string]any{"title": title, "objective": objective}, &resp)
	return resp, err
}

// ListMissions lists missions, optionally filtered by status.
func (c *Client) ListMissions(ctx context.Context, status string) ([]Mission, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var resp struct {
		Items []Mission `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("missions", q), nil, &resp)
	return resp.Items, err
}

// ArchiveMission archives a mission whose quests are all complete.
func (c *Client) ArchiveMission(ctx context.Context, id, afterActionReport string) (Mission, error) {
	var resp Mission
	body := map[string]any{"after_action_report": afterActionReport}
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(id)+"/archive", body, &resp)
	return resp, err
}

// ArchiveMissionQuests archives every quest under a mission.
func (c *Client) ArchiveMissionQuests(ctx context.Context, id string) (int64, error) {
	var resp struct {
		Archived int64 `json:"archived"`
	}
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(id)+"/quests/archive", nil, &resp)
	return resp.Archived, err
}

// DeleteMission deletes a mission. Its quests are deleted when deleteQuests
// is set and detached otherwise.
func (c *Client) DeleteMission(ctx context.Context, id string, deleteQuests bool) (DeleteResult, error) {
	q := url.Values{"delete_quests": {strconv.FormatBool(deleteQuests)}}
	var resp DeleteResult
	err := c.do(ctx, http.MethodDelete, withQuery("missions/"+url.PathEscape(id), q), nil, &resp)
	return resp, err
}

func (c *Client) CreateQuest(ctx context.Context, in NewQuest) (Quest, error) {
	var resp Quest
	err := c.do(ctx, http.MethodPost, "quests", in, &resp)
	return resp, err
}

func (c *Client) GetQuest(ctx context.Context, id string) (Quest, error) {
	var resp Quest
	err := c.do(ctx, http.MethodGet, "quests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListQuests returns quests in priority order. Empty filters are ignored.
func (c *Client) ListQuests(ctx context.Context, status, missionID string) ([]Quest, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if missionID != "" {
		q.Set("mission_id", missionID)
	}
	var resp struct {
		Items []Quest `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("quests", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) ActivateQuest(ctx context.Context, id string, in Activation) (Transition, error) {
	var resp Transition
	err := c.do(ctx, http.MethodPost, "quests/"+url.PathEscape(id)+"/activate", in, &resp)
	return resp, err
}

func (c *Client) CompleteQuest(ctx context.Context, id string, in Debrief) (Quest, error) {
	var resp Quest
	err := c.do(ctx, http.MethodPost, "quests/"+url.PathEscape(id)+"/complete", in, &resp)
	return resp, err
}

// SetQuestStatus moves a quest to status. emergency only matters when
// activating past the normal limit.
func (c *Client) SetQuestStatus(ctx context.Context, id, status string, emergency bool) (Transition, error) {
	var resp Transition
	body := map[string]any{"status": status, "emergency": emergency}
	err := c.do(ctx, http.MethodPut, "quests/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

func (c *Client) Analytics(ctx context.Context) (Analytics, error) {
	var resp Analytics
	err := c.do(ctx, http.MethodGet, "analytics", nil, &resp)
	return resp, err
}

func (c *Client) SubmitFeedback(ctx context.Context, message string) (Feedback, error) {
	var resp Feedback
	err := c.do(ctx, http.MethodPost, "feedback", map[string]any{"message": message}, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{Status: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code      string         `json:"code"`
			Message   string         `json:"message"`
			Details   map[string]any `json:"details"`
			Retryable bool           `json:"retryable"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
		apiErr.Retryable = env.Error.Retryable
	}
	return apiErr
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
