package config

import (
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Index      IndexConfig      `yaml:"index"`
	Storage    StorageConfig    `yaml:"storage"`
	GCP        GCPConfig        `yaml:"gcp"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Audit      AuditConfig      `yaml:"audit"`
	Intake     IntakeConfig     `yaml:"intake"`
	CORS       CORSConfig       `yaml:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,POST,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Authorization,Content-Type,X-Callback-Token"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"true"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"86400"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"        env:"SERVER_TRUST_PROXY"        env-default:"false"`
	// UploadRateLimit is uploads per minute per client address.
	UploadRateLimit int `yaml:"upload_rate_limit" env:"SERVER_UPLOAD_RATE_LIMIT" env-default:"60"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// AuthConfig holds bearer token validation settings. Tokens are issued by
// the identity service; this service only validates them.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"     env:"AUTH_JWT_SECRET"     env-required:"true"`
	JWTIssuer     string `yaml:"jwt_issuer"     env:"AUTH_JWT_ISSUER"     env-default:"docflow"`
	CallbackToken string `yaml:"callback_token" env:"AUTH_CALLBACK_TOKEN"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// PipelineConfig controls the orchestrator, its worker pool and the
// recovery scheduler.
type PipelineConfig struct {
	Workers      int           `yaml:"workers"       env:"PIPELINE_WORKERS"       env-default:"4"`
	QueueSize    int           `yaml:"queue_size"    env:"PIPELINE_QUEUE_SIZE"    env-default:"256"`
	MaxRetries   int           `yaml:"max_retries"   env:"PIPELINE_MAX_RETRIES"   env-default:"3"`
	StageTimeout time.Duration `yaml:"stage_timeout" env:"PIPELINE_STAGE_TIMEOUT" env-default:"5m"`
	ScanInterval time.Duration `yaml:"scan_interval" env:"PIPELINE_SCAN_INTERVAL" env-default:"30s"`
	StallTimeout time.Duration `yaml:"stall_timeout" env:"PIPELINE_STALL_TIMEOUT" env-default:"15m"`
	ScanBatch    int           `yaml:"scan_batch"    env:"PIPELINE_SCAN_BATCH"    env-default:"100"`
	BackoffBase  time.Duration `yaml:"backoff_base"  env:"PIPELINE_BACKOFF_BASE"  env-default:"30s"`
	BackoffMax   time.Duration `yaml:"backoff_max"   env:"PIPELINE_BACKOFF_MAX"   env-default:"30m"`
	AutoRetry    bool          `yaml:"auto_retry"    env:"PIPELINE_AUTO_RETRY"    env-default:"true"`
}

// ExtractorConfig holds content extraction settings.
type ExtractorConfig struct {
	Timeout  time.Duration `yaml:"timeout"   env:"EXTRACTOR_TIMEOUT"   env-default:"2m"`
	MaxBytes int64         `yaml:"max_bytes" env:"EXTRACTOR_MAX_BYTES" env-default:"52428800"`
	// Vision enables Gemini-based extraction for PDFs and images.
	Vision bool `yaml:"vision" env:"EXTRACTOR_VISION" env-default:"false"`
}

// ClassifierConfig holds classification/summarization settings.
type ClassifierConfig struct {
	Provider            string  `yaml:"provider"             env:"CLASSIFIER_PROVIDER"             env-default:"rules"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CLASSIFIER_CONFIDENCE_THRESHOLD" env-default:"0.5"`
	RulesPath           string  `yaml:"rules_path"           env:"CLASSIFIER_RULES_PATH"`
	MaxInputChars       int     `yaml:"max_input_chars"      env:"CLASSIFIER_MAX_INPUT_CHARS"      env-default:"200000"`
	SummarySentences    int     `yaml:"summary_sentences"    env:"CLASSIFIER_SUMMARY_SENTENCES"    env-default:"3"`
}

// IndexConfig holds embedding and vector index settings.
type IndexConfig struct {
	Path           string `yaml:"path"            env:"INDEX_PATH"            env-default:"./data/index.db"`
	Dimensions     int    `yaml:"dimensions"      env:"INDEX_DIMENSIONS"      env-default:"256"`
	MaxChars       int    `yaml:"max_chars"       env:"INDEX_MAX_CHARS"       env-default:"32000"`
	Embedder       string `yaml:"embedder"        env:"INDEX_EMBEDDER"        env-default:"hash"`
	EmbeddingURL   string `yaml:"embedding_url"   env:"INDEX_EMBEDDING_URL"`
	EmbeddingKey   string `yaml:"embedding_key"   env:"INDEX_EMBEDDING_KEY"`
	EmbeddingModel string `yaml:"embedding_model" env:"INDEX_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
}

// StorageConfig selects the object store holding raw uploads.
type StorageConfig struct {
	Backend string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"fs"`
	Root    string `yaml:"root"    env:"STORAGE_ROOT"    env-default:"./data/uploads"`
	Bucket  string `yaml:"bucket"  env:"STORAGE_BUCKET"`
	Prefix  string `yaml:"prefix"  env:"STORAGE_PREFIX"  env-default:"documents"`
}

// GCPConfig holds Google Cloud project settings shared by Vertex AI,
// Cloud Storage and Cloud Workflows.
type GCPConfig struct {
	ProjectID string `yaml:"project_id" env:"GCP_PROJECT_ID"`
	Region    string `yaml:"region"     env:"GCP_REGION"     env-default:"us-central1"`
	Model     string `yaml:"model"      env:"GCP_MODEL"      env-default:"gemini-2.0-flash"`
}

// WorkflowConfig selects the workflow engine and approval behaviour.
type WorkflowConfig struct {
	Engine          string        `yaml:"engine"           env:"WORKFLOW_ENGINE"           env-default:"none"`
	WebhookURL      string        `yaml:"webhook_url"      env:"WORKFLOW_WEBHOOK_URL"`
	WebhookTimeout  time.Duration `yaml:"webhook_timeout"  env:"WORKFLOW_WEBHOOK_TIMEOUT"  env-default:"10s"`
	GCPWorkflow     string        `yaml:"gcp_workflow"     env:"WORKFLOW_GCP_WORKFLOW"     env-default:"document-approval"`
	ApprovalEnabled bool          `yaml:"approval_enabled" env:"WORKFLOW_APPROVAL_ENABLED" env-default:"true"`
	ApprovalGating  bool          `yaml:"approval_gating"  env:"WORKFLOW_APPROVAL_GATING"  env-default:"false"`
}

// AuditConfig holds audit sink buffering settings.
type AuditConfig struct {
	BufferSize    int           `yaml:"buffer_size"    env:"AUDIT_BUFFER_SIZE"    env-default:"1024"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"AUDIT_FLUSH_INTERVAL" env-default:"2s"`
}

// IntakeConfig holds upload limits.
type IntakeConfig struct {
	MaxUploadBytes   int64 `yaml:"max_upload_bytes"  env:"INTAKE_MAX_UPLOAD_BYTES"  env-default:"52428800"`
	RejectDuplicates bool  `yaml:"reject_duplicates" env:"INTAKE_REJECT_DUPLICATES" env-default:"false"`
}
