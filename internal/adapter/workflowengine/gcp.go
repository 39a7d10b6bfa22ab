package workflowengine

import (
	"context"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// GCP starts Cloud Workflows executions.
type GCP struct {
	log    *slog.Logger
	client *executions.Client
	parent string
}

// NewGCP connects to the Workflows executions API using application
// default credentials.
func NewGCP(ctx context.Context, log *slog.Logger, projectID, region, workflowID string) (*GCP, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("workflowengine: executions.NewClient: %w", err)
	}
	return &GCP{
		log:    log.With("adapter", "workflowengine.gcp"),
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, region, workflowID),
	}, nil
}

// Start creates an execution and returns its resource name.
func (g *GCP) Start(ctx context.Context, wf *domain.WorkflowInstance) (string, error) {
	req, err := executionRequest(g.parent, wf)
	if err != nil {
		return "", err
	}

	exec, err := g.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("workflowengine: create execution for %s: %v: %w", wf.ID, err, domain.ErrExternalUnavailable)
	}

	g.log.InfoContext(ctx, "workflow execution started",
		slog.String("instance_id", wf.ID.String()),
		slog.String("execution", exec.GetName()),
	)
	return exec.GetName(), nil
}

// Close releases the underlying connection.
func (g *GCP) Close() error {
	return g.client.Close()
}

func executionRequest(parent string, wf *domain.WorkflowInstance) (*executionspb.CreateExecutionRequest, error) {
	arg, err := marshalEnvelope(wf)
	if err != nil {
		return nil, err
	}
	return &executionspb.CreateExecutionRequest{
		Parent: parent,
		Execution: &executionspb.Execution{
			Argument: string(arg),
		},
	}, nil
}
