// Package workflowengine starts external workflow executions for workflow
// instances. Engines are at-least-once: the instance ID travels with every
// request so the receiving side can deduplicate.
package workflowengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// Noop records nothing externally. Instances started with it stay active
// until a callback or an operator completes them.
type Noop struct{}

// Start implements the engine contract and returns an empty reference.
func (Noop) Start(context.Context, *domain.WorkflowInstance) (string, error) {
	return "", nil
}

// envelope is the JSON argument every engine receives.
type envelope struct {
	WorkflowInstanceID string         `json:"workflow_instance_id"`
	Kind               string         `json:"kind"`
	DocumentID         string         `json:"document_id,omitempty"`
	Gating             bool           `json:"gating"`
	Input              map[string]any `json:"input"`
}

func marshalEnvelope(wf *domain.WorkflowInstance) ([]byte, error) {
	env := envelope{
		WorkflowInstanceID: wf.ID.String(),
		Kind:               string(wf.Kind),
		Gating:             wf.Gating,
		Input:              wf.Input,
	}
	if wf.DocumentID != nil {
		env.DocumentID = wf.DocumentID.String()
	}
	if env.Input == nil {
		env.Input = map[string]any{}
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("workflowengine: marshal %s: %w", wf.ID, err)
	}
	return b, nil
}
