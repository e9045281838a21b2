package domain

type Team struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Capacity float64 `json:"capacity" minimum:"0"`
}

// Project is a backlog item owned by one team. Effort and Value are nil when unset.
type Project struct {
	ID              string   `json:"id"`
	TeamID          string   `json:"teamId"`
	Title           string   `json:"title" required:"false"`
	Effort          *float64 `json:"effort" required:"false" nullable:"true"`
	Value           *float64 `json:"value" required:"false" nullable:"true"`
	SourceProjectID *string  `json:"sourceProjectId,omitempty"`
	IsLinkedCopy    *bool    `json:"isLinkedCopy,omitempty"`
}

// Dependency means SourceID must be selected before TargetID can be.
type Dependency struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
}

// ImportFile is the exchange format for a whole workspace.
type ImportFile struct {
	Teams        []Team             `json:"teams"`
	Projects     map[string]Project `json:"projects"`
	Dependencies []Dependency       `json:"dependencies"`
}

type TeamSummary struct {
	Allocated float64 `json:"allocated"`
	Value     float64 `json:"value"`
}

type PrioritizationResult struct {
	SelectedProjects   []Project              `json:"selectedProjects"`
	UnselectedProjects []Project              `json:"unselectedProjects"`
	TeamSummaries      map[string]TeamSummary `json:"teamSummaries"`
}

// Plan is a persisted prioritization run.
type Plan struct {
	ID         string               `json:"id"`
	Mode       string               `json:"mode"`
	TotalValue float64              `json:"totalValue"`
	Fallback   bool                 `json:"fallback"`
	Result     PrioritizationResult `json:"result"`
	CreatedBy  string               `json:"createdBy"`
	CreatedAt  string               `json:"createdAt" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Float returns a pointer to v, for building projects in code.
func Float(v float64) *float64 {
	return &v
}

// TotalValue sums the value of the selected projects.
func (r PrioritizationResult) TotalValue() float64 {
	var total float64
	for _, s := range r.TeamSummaries {
		total += s.Value
	}
	return total
}
