package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration loaded from config.yaml.
type AppConfig struct {
	App       AppInfo         `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Databases DatabaseConfigs `yaml:"databases"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// AppInfo identifies the running service.
type AppInfo struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address"` // e.g. ":8085"
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string                `yaml:"provider"` // "gemini" or "ollama"
	Gemini   GeminiEmbeddingConfig `yaml:"gemini"`
	Ollama   OllamaEmbeddingConfig `yaml:"ollama"`
}

// GeminiEmbeddingConfig configures the Gemini embedding client. Several API
// keys may be supplied; the client rotates between them as daily usage limits
// are reached.
type GeminiEmbeddingConfig struct {
	APIKeys       []string `yaml:"apiKeys"`
	KeyUsageLimit int      `yaml:"keyUsageLimit"`
	DocumentModel string   `yaml:"documentModel"`
	QueryModel    string   `yaml:"queryModel"`
}

// OllamaEmbeddingConfig configures a local Ollama embedding model.
type OllamaEmbeddingConfig struct {
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// DatabaseConfigs groups the connection settings of all backing stores.
type DatabaseConfigs struct {
	Milvus MilvusConfig `yaml:"milvus"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

// MilvusConfig configures the Milvus vector store backend.
type MilvusConfig struct {
	Address        string `yaml:"address"`
	CollectionName string `yaml:"collectionName"`
	VectorDim      int    `yaml:"vectorDim"`
}

// RedisConfig configures the Redis connection for the short-term buffer.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig configures the dialogue event consumer.
type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	GroupID         string   `yaml:"groupID"`
	MessagesTopic   string   `yaml:"messagesTopic"`
	CandidatesTopic string   `yaml:"candidatesTopic"`
}

// MemoryConfig configures the long-term memory core.
type MemoryConfig struct {
	Backend     string            `yaml:"backend"` // "milvus" or "chromem"
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	ShortTerm   ShortTermConfig   `yaml:"shortTerm"`
}

// RetrievalConfig holds the relevance search defaults.
type RetrievalConfig struct {
	TopN        int     `yaml:"topN"`
	MaxDistance float64 `yaml:"maxDistance"`
}

// MaintenanceConfig holds the process-wide maintenance defaults. On-demand
// runs may override the first three fields; the rest always come from here.
type MaintenanceConfig struct {
	SimilarityThreshold       float64 `yaml:"similarityThreshold"`
	MaxDaysUnaccessed         int     `yaml:"maxDaysUnaccessed"`
	MinAccessForRetention     int     `yaml:"minAccessForRetention"`
	ImportanceDecayFactor     float64 `yaml:"importanceDecayFactor"`
	MinImportanceForRetention float64 `yaml:"minImportanceForRetention"`
	DaysForDecayCheck         int     `yaml:"daysForDecayCheck"`
	IntervalHours             int     `yaml:"intervalHours"`
}

// ShortTermConfig configures the recent-dialogue buffer.
type ShortTermConfig struct {
	MaxMessages int `yaml:"maxMessages"`
}

// LoadConfig reads and parses the YAML configuration file at the given path.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8085"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = "chromem"
	}
	if c.Memory.Retrieval.TopN == 0 {
		c.Memory.Retrieval.TopN = 3
	}
	if c.Memory.Retrieval.MaxDistance == 0 {
		c.Memory.Retrieval.MaxDistance = 1.0
	}
	m := &c.Memory.Maintenance
	if m.SimilarityThreshold == 0 {
		m.SimilarityThreshold = 0.95
	}
	if m.MaxDaysUnaccessed == 0 {
		m.MaxDaysUnaccessed = 90
	}
	if m.MinAccessForRetention == 0 {
		m.MinAccessForRetention = 1
	}
	if m.ImportanceDecayFactor == 0 {
		m.ImportanceDecayFactor = 0.02
	}
	if m.MinImportanceForRetention == 0 {
		m.MinImportanceForRetention = 0.5
	}
	if m.DaysForDecayCheck == 0 {
		m.DaysForDecayCheck = 14
	}
	if m.IntervalHours == 0 {
		m.IntervalHours = 24
	}
	if c.Memory.ShortTerm.MaxMessages == 0 {
		c.Memory.ShortTerm.MaxMessages = 50
	}
	if c.Embedding.Gemini.KeyUsageLimit == 0 {
		c.Embedding.Gemini.KeyUsageLimit = 1000
	}
}
