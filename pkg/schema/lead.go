package schema

import "strings"

// LeadStatus is the pipeline state of a lead.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusLost      LeadStatus = "lost"
)

// Lead is the external entity a workflow acts upon. The engine treats it as
// read-mostly input; mutations are delegated to the record store.
type Lead struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Company    string         `json:"company,omitempty"`
	Email      string         `json:"email,omitempty"`
	Score      float64        `json:"score"`
	Status     LeadStatus     `json:"status"`
	AIInsight  string         `json:"ai_insight,omitempty"`
	AssigneeID string         `json:"assignee_id,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Knowledge  map[string]any `json:"knowledge,omitempty"`
}

// FirstName returns the first whitespace-separated token of the lead's name.
func (l *Lead) FirstName() string {
	fields := strings.Fields(l.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Field resolves a named field for conditions and personalization. Core
// fields are matched first, then the knowledge map. The name is matched
// case-insensitively.
func (l *Lead) Field(name string) (any, bool) {
	switch strings.ToLower(name) {
	case "score":
		return l.Score, true
	case "status":
		return string(l.Status), true
	case "company":
		return l.Company, true
	case "email":
		return l.Email, true
	case "name":
		return l.Name, true
	case "first_name":
		return l.FirstName(), true
	case "ai_insight":
		return l.AIInsight, true
	}
	for k, v := range l.Knowledge {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// Env flattens the lead into an expression-engine environment.
func (l *Lead) Env() map[string]any {
	env := map[string]any{
		"id":         l.ID,
		"name":       l.Name,
		"first_name": l.FirstName(),
		"company":    l.Company,
		"email":      l.Email,
		"score":      l.Score,
		"status":     string(l.Status),
		"ai_insight": l.AIInsight,
	}
	knowledge := make(map[string]any, len(l.Knowledge))
	for k, v := range l.Knowledge {
		knowledge[strings.ToLower(k)] = v
	}
	env["knowledge"] = knowledge
	return env
}
