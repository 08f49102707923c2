package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vedicpedia/ragserver/pkg/logger"
)

// Config is the root configuration for the RAG server.
type Config struct {
	Logger   logger.Config  `yaml:"logger"`
	Server   ServerConfig   `yaml:"server"`
	Blob     BlobConfig     `yaml:"blob"`
	Metadata MetadataConfig `yaml:"metadata"`
	Vector   VectorConfig   `yaml:"vector"`
	Embedder EmbedderConfig `yaml:"embedder"`
	LLM      LLMConfig      `yaml:"llm"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Query    QueryConfig    `yaml:"query"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ReadTimeout     int      `yaml:"read_timeout"`     // seconds
	WriteTimeout    int      `yaml:"write_timeout"`    // seconds
	ShutdownTimeout int      `yaml:"shutdown_timeout"` // seconds
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 300
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 300
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 100 << 20 // 100 MiB
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Port)
	}
	return nil
}

// BlobConfig configures the S3-compatible object store holding uploaded files.
type BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	// Insecure switches object store access to plain HTTP, for local
	// development against MinIO.
	Insecure bool `yaml:"insecure"`
	// Folder is the key prefix under which uploads are staged.
	Folder string `yaml:"folder"`
	// PublicURLTemplate builds the externally reachable URL for an object.
	// Placeholders: {bucket}, {key}.
	PublicURLTemplate string `yaml:"public_url_template"`
}

func (c *BlobConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = os.Getenv("S3_ENDPOINT")
	}
	if c.AccessKey == "" {
		c.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if c.SecretKey == "" {
		c.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if c.Bucket == "" {
		c.Bucket = os.Getenv("S3_BUCKET_NAME")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Folder == "" {
		c.Folder = "uploads"
	}
	if c.PublicURLTemplate == "" {
		c.PublicURLTemplate = "https://{bucket}.r2.cloudflarestorage.com/{key}"
	}
}

func (c *BlobConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("blob endpoint is required (set blob.endpoint or S3_ENDPOINT)")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("blob credentials are required (set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY)")
	}
	if c.Bucket == "" {
		return fmt.Errorf("blob bucket is required (set blob.bucket or S3_BUCKET_NAME)")
	}
	return nil
}

// MetadataConfig configures the MongoDB document metadata store.
type MetadataConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Timeout    int    `yaml:"timeout"` // Connection timeout in seconds
}

func (c *MetadataConfig) SetDefaults() {
	if c.URI == "" {
		c.URI = os.Getenv("MONGO_URI")
	}
	if c.Database == "" {
		c.Database = "documents_db"
	}
	if c.Collection == "" {
		c.Collection = "documents"
	}
	if c.Timeout == 0 {
		c.Timeout = 10
	}
}

func (c *MetadataConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("metadata uri is required (set metadata.uri or MONGO_URI)")
	}
	return nil
}

// PineconeConfig configures the Pinecone vector index.
type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	IndexName string `yaml:"index_name"`
	Cloud     string `yaml:"cloud"`
	Region    string `yaml:"region"`
}

func (c *PineconeConfig) SetDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("PINECONE_API_KEY")
	}
	if c.IndexName == "" {
		c.IndexName = os.Getenv("PINECONE_INDEX_NAME")
	}
	if c.IndexName == "" {
		c.IndexName = "pdf-vectors"
	}
	if c.Cloud == "" {
		c.Cloud = "aws"
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
}

// QdrantConfig configures a Qdrant collection.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

func (c *QdrantConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "pdf-vectors"
	}
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

func (c *ChromemConfig) SetDefaults() {
	if c.Collection == "" {
		c.Collection = "pdf-vectors"
	}
}

// VectorConfig selects and configures the vector store provider.
type VectorConfig struct {
	Provider string         `yaml:"provider"` // "pinecone", "qdrant" or "chromem"
	Pinecone PineconeConfig `yaml:"pinecone"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Chromem  ChromemConfig  `yaml:"chromem"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "pinecone"
	}
	c.Pinecone.SetDefaults()
	c.Qdrant.SetDefaults()
	c.Chromem.SetDefaults()
}

func (c *VectorConfig) Validate() error {
	switch c.Provider {
	case "pinecone":
		if c.Pinecone.APIKey == "" {
			return fmt.Errorf("pinecone api key is required (set vector.pinecone.api_key or PINECONE_API_KEY)")
		}
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unknown vector provider: %q", c.Provider)
	}
	return nil
}

// EmbedderConfig configures the embedding model client.
type EmbedderConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Host      string `yaml:"host"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
	Timeout   int    `yaml:"timeout"` // Request timeout in seconds
}

func (c *EmbedderConfig) SetDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Model == "" {
		c.Model = os.Getenv("OPENAI_EMBEDDING_MODEL")
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Host == "" {
		c.Host = "https://api.openai.com/v1"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("embedder api key is required (set embedder.api_key or OPENAI_API_KEY)")
	}
	return nil
}

// LLMConfig configures the answer-generation model client.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "openai" or "gemini"
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Host        string  `yaml:"host"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"` // Request timeout in seconds
}

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	switch c.Provider {
	case "openai":
		if c.APIKey == "" {
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if c.Model == "" {
			c.Model = "gpt-4o-mini"
		}
		if c.Host == "" {
			c.Host = "https://api.openai.com/v1"
		}
	case "gemini":
		if c.APIKey == "" {
			c.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		if c.Model == "" {
			c.Model = "gemini-2.0-flash"
		}
		if c.Host == "" {
			c.Host = "https://generativelanguage.googleapis.com/v1beta"
		}
	}
	if c.Temperature == 0 {
		c.Temperature = 0.4
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
}

func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown llm provider: %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("llm api key is required for provider %q", c.Provider)
	}
	return nil
}

// IngestConfig controls the document processing pipeline.
type IngestConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	UpsertBatchSize int    `yaml:"upsert_batch_size"`
	Workers         int    `yaml:"workers"`
	StagingDir      string `yaml:"staging_dir"`
	// ExtendedTypes additionally accepts DOCX and XLSX uploads.
	ExtendedTypes bool `yaml:"extended_types"`
}

func (c *IngestConfig) SetDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
	if c.UpsertBatchSize == 0 {
		c.UpsertBatchSize = 200
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.StagingDir == "" {
		c.StagingDir = os.TempDir()
	}
}

func (c *IngestConfig) Validate() error {
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// QueryConfig controls the question answering pipeline.
type QueryConfig struct {
	TopK int `yaml:"top_k"`
	// RerankKeep is how many documents survive the rerank stage.
	RerankKeep int `yaml:"rerank_keep"`
	// PromptTemplate overrides the built-in answer prompt. It must contain
	// the {context} and {question} placeholders.
	PromptTemplate   string `yaml:"prompt_template"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
}

func (c *QueryConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.RerankKeep == 0 {
		c.RerankKeep = 5
	}
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = 6000
	}
}

func (c *QueryConfig) Validate() error {
	if c.RerankKeep > c.TopK {
		return fmt.Errorf("rerank_keep (%d) cannot exceed top_k (%d)", c.RerankKeep, c.TopK)
	}
	return nil
}

// SetDefaults applies defaults across all sections.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.Server.SetDefaults()
	c.Blob.SetDefaults()
	c.Metadata.SetDefaults()
	c.Vector.SetDefaults()
	c.Embedder.SetDefaults()
	c.LLM.SetDefaults()
	c.Ingest.SetDefaults()
	c.Query.SetDefaults()
}

// Validate checks all sections for errors.
func (c *Config) Validate() error {
	validators := []func() error{
		c.Logger.Validate,
		c.Server.Validate,
		c.Blob.Validate,
		c.Metadata.Validate,
		c.Vector.Validate,
		c.Embedder.Validate,
		c.LLM.Validate,
		c.Ingest.Validate,
		c.Query.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads configuration from an optional YAML file, expands environment
// variables in its values, then applies defaults and validates. An empty
// path yields a configuration built from defaults and the environment alone.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var data map[string]interface{}
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		expanded, err := yaml.Marshal(expandConfigData(data))
		if err != nil {
			return nil, fmt.Errorf("failed to process config file: %w", err)
		}
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
