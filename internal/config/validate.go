package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}

	if err := c.Pipeline.validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Classifier.validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := c.Index.validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.validateStorage(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.validateWorkflow(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if c.Audit.BufferSize <= 0 {
		return fmt.Errorf("audit.buffer_size must be > 0 (got %d)", c.Audit.BufferSize)
	}
	if c.Extractor.Vision && c.GCP.ProjectID == "" {
		return fmt.Errorf("extractor.vision requires gcp.project_id")
	}
	if c.Classifier.Provider == "vertex" && c.GCP.ProjectID == "" {
		return fmt.Errorf("classifier.provider vertex requires gcp.project_id")
	}

	return nil
}

func (p *PipelineConfig) validate() error {
	if p.Workers <= 0 {
		return fmt.Errorf("workers must be > 0 (got %d)", p.Workers)
	}
	if p.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be > 0 (got %d)", p.QueueSize)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", p.MaxRetries)
	}
	if p.BackoffBase <= 0 || p.BackoffMax < p.BackoffBase {
		return fmt.Errorf("backoff_base must be > 0 and <= backoff_max (got %s, %s)", p.BackoffBase, p.BackoffMax)
	}
	if p.StageTimeout <= 0 {
		return fmt.Errorf("stage_timeout must be > 0")
	}
	return nil
}

func (c *ClassifierConfig) validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case "rules", "vertex":
	default:
		return fmt.Errorf("unknown provider %q (want rules or vertex)", c.Provider)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0,1] (got %v)", c.ConfidenceThreshold)
	}
	if c.MaxInputChars <= 0 {
		return fmt.Errorf("max_input_chars must be > 0 (got %d)", c.MaxInputChars)
	}
	return nil
}

func (i *IndexConfig) validate() error {
	i.Embedder = strings.ToLower(strings.TrimSpace(i.Embedder))
	switch i.Embedder {
	case "hash":
	case "http":
		if i.EmbeddingURL == "" {
			return fmt.Errorf("embedding_url is required for the http embedder")
		}
	default:
		return fmt.Errorf("unknown embedder %q (want hash or http)", i.Embedder)
	}
	if i.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be > 0 (got %d)", i.Dimensions)
	}
	return nil
}

func (c *Config) validateStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Root == "" {
			return fmt.Errorf("root is required for the fs backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown backend %q (want fs or gcs)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	c.Workflow.Engine = strings.ToLower(strings.TrimSpace(c.Workflow.Engine))
	switch c.Workflow.Engine {
	case "none":
	case "webhook":
		if c.Workflow.WebhookURL == "" {
			return fmt.Errorf("webhook_url is required for the webhook engine")
		}
	case "gcp":
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("gcp.project_id is required for the gcp engine")
		}
	default:
		return fmt.Errorf("unknown engine %q (want none, webhook or gcp)", c.Workflow.Engine)
	}
	return nil
}
