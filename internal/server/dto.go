package server

import (
	"encoding/json"

	"teamplan/internal/domain"
	"teamplan/internal/engine"
)

// Request DTOs

type CreateTeamRequest struct {
	ID       string  `json:"id,omitempty"`
	Name     string  `json:"name"`
	Capacity float64 `json:"capacity" minimum:"0"`
}

type UpdateTeamRequest struct {
	Name     *string  `json:"name,omitempty"`
	Capacity *float64 `json:"capacity,omitempty" minimum:"0"`
}

type CreateProjectRequest struct {
	ID     string   `json:"id,omitempty"`
	TeamID string   `json:"teamId"`
	Title  string   `json:"title"`
	Effort *float64 `json:"effort,omitempty" nullable:"true"`
	Value  *float64 `json:"value,omitempty" nullable:"true"`
}

// UpdateProjectRequest leaves omitted fields alone; an explicit null clears
// effort or value.
type UpdateProjectRequest struct {
	TeamID *string  `json:"teamId,omitempty"`
	Title  *string  `json:"title,omitempty"`
	Effort *float64 `json:"effort,omitempty" nullable:"true"`
	Value  *float64 `json:"value,omitempty" nullable:"true"`
}

type CopyProjectRequest struct {
	TeamID string `json:"teamId"`
}

type DependencyRequest struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
}

type PrioritizeRequest struct {
	Mode         string              `json:"mode,omitempty" doc:"naive, naive-deps or optimized; defaults to the workspace default"`
	Teams        []domain.Team       `json:"teams"`
	Projects     []domain.Project    `json:"projects"`
	Dependencies []domain.Dependency `json:"dependencies,omitempty"`
}

type WorkspacePrioritizeRequest struct {
	Mode string `json:"mode,omitempty"`
	Save bool   `json:"save,omitempty"`
}

type ImportRequest struct {
	File    domain.ImportFile `json:"file"`
	Replace bool              `json:"replace,omitempty"`
}

// Response DTOs

type CycleCheckResponse struct {
	WouldCreateCycle bool `json:"wouldCreateCycle"`
}

type PrioritizationResponse struct {
	Mode               string                        `json:"mode"`
	Strategy           string                        `json:"strategy,omitempty"`
	Fallback           bool                          `json:"fallback"`
	TotalValue         float64                       `json:"totalValue"`
	DurationMS         int64                         `json:"durationMs"`
	PlanID             string                        `json:"planId,omitempty"`
	SelectedProjects   []domain.Project              `json:"selectedProjects"`
	UnselectedProjects []domain.Project              `json:"unselectedProjects"`
	TeamSummaries      map[string]domain.TeamSummary `json:"teamSummaries"`
}

type PlanSummary struct {
	ID         string  `json:"id"`
	Mode       string  `json:"mode"`
	TotalValue float64 `json:"totalValue"`
	Fallback   bool    `json:"fallback"`
	Selected   int     `json:"selected"`
	CreatedBy  string  `json:"createdBy"`
	CreatedAt  string  `json:"createdAt" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func prioritizationResponse(rep engine.Report) PrioritizationResponse {
	res := PrioritizationResponse{
		Mode:               string(rep.Mode),
		Fallback:           rep.Fallback,
		TotalValue:         rep.Result.TotalValue(),
		DurationMS:         rep.Duration.Milliseconds(),
		SelectedProjects:   nonNilSlice(rep.Result.SelectedProjects),
		UnselectedProjects: nonNilSlice(rep.Result.UnselectedProjects),
		TeamSummaries:      rep.Result.TeamSummaries,
	}
	if rep.Mode == engine.ModeOptimized {
		res.Strategy = string(rep.Strategy)
	}
	if res.TeamSummaries == nil {
		res.TeamSummaries = map[string]domain.TeamSummary{}
	}
	return res
}

func planSummary(p domain.Plan) PlanSummary {
	return PlanSummary{
		ID:         p.ID,
		Mode:       p.Mode,
		TotalValue: p.TotalValue,
		Fallback:   p.Fallback,
		Selected:   len(p.Result.SelectedProjects),
		CreatedBy:  p.CreatedBy,
		CreatedAt:  p.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
