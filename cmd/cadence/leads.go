package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/cadencehq/cadence/internal/steps"
	"github.com/cadencehq/cadence/pkg/schema"
)

// fileLeadSource is a JSON-file-backed lead store for local deployments
// without a CRM connector. The file holds a JSON array of leads; patches are
// written back on every update.
type fileLeadSource struct {
	path string

	mu    sync.Mutex
	leads []*schema.Lead
}

func newFileLeadSource(path string) (*fileLeadSource, error) {
	src := &fileLeadSource{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return src, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &src.leads); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse leads file %s: %s", path, err.Error()).WithCause(err)
	}
	return src, nil
}

func (s *fileLeadSource) GetLeads(_ context.Context, filter steps.LeadFilter) ([]*schema.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*schema.Lead, 0, len(s.leads))
	for _, lead := range s.leads {
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		if filter.MinScore > 0 && lead.Score < filter.MinScore {
			continue
		}
		result = append(result, lead)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *fileLeadSource) GetLead(_ context.Context, id string) (*schema.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lead := range s.leads {
		if lead.ID == id {
			return lead, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "lead %s not found", id)
}

func (s *fileLeadSource) UpdateLead(_ context.Context, id string, patch steps.LeadPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lead := range s.leads {
		if lead.ID != id {
			continue
		}
		if patch.Status != nil {
			lead.Status = *patch.Status
		}
		if patch.AddTag != "" && !hasTag(lead, patch.AddTag) {
			lead.Tags = append(lead.Tags, patch.AddTag)
		}
		if patch.AssigneeID != nil {
			lead.AssigneeID = *patch.AssigneeID
		}
		return s.persist()
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "lead %s not found", id)
}

func (s *fileLeadSource) persist() error {
	data, err := json.MarshalIndent(s.leads, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func hasTag(lead *schema.Lead, tag string) bool {
	for _, t := range lead.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
