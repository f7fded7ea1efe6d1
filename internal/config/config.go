package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// Provider names accepted in the openai section.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Storage drivers.
const (
	DriverFile  = "file"
	DriverRedis = "redis"
)

// TTS providers.
const (
	TTSElevenLabs = "elevenlabs"
	TTSOpenAI     = "openai"
	TTSNone       = "none"
)

// Config holds the ragvoice configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Chat      ChatConfig      `yaml:"chat"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Speech    SpeechConfig    `yaml:"speech"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
	File  string `yaml:"file"`  // optional extra output path, e.g. app.log
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // streamed answers and audio need a long window
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// OpenAIConfig holds credentials shared by chat, embeddings and Whisper.
type OpenAIConfig struct {
	Provider        string `yaml:"provider"` // openai, azure (default: openai)
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	AzureEndpoint   string `yaml:"azure_endpoint"`
	AzureAPIKey     string `yaml:"azure_api_key"`
	AzureAPIVersion string `yaml:"azure_api_version"`
	TimeoutSec      int    `yaml:"timeout_sec"`
}

// ChatConfig holds completion and orchestration settings.
type ChatConfig struct {
	Model           string      `yaml:"model"`
	Deployment      string      `yaml:"deployment"` // Azure deployment name
	Temperature     *float32    `yaml:"temperature"`
	MaxTokens       int         `yaml:"max_tokens"`
	MaxHistoryTurns int         `yaml:"max_history_turns"`
	Retry           RetryConfig `yaml:"retry"`
}

// DefaultTemperature is used when chat.temperature is absent.
const DefaultTemperature float32 = 0.7

// SamplingTemperature returns the configured temperature or DefaultTemperature.
func (c ChatConfig) SamplingTemperature() float32 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// RetryConfig controls the single retry of upstream calls.
type RetryConfig struct {
	InitialIntervalMs int `yaml:"initial_interval_ms"`
	MaxIntervalMs     int `yaml:"max_interval_ms"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Model       string `yaml:"model"`
	Deployment  string `yaml:"deployment"`
	Dimensions  int    `yaml:"dimensions"`
	CacheSize   int    `yaml:"cache_size"`    // in-process LRU entries, 0 disables
	CacheTTLSec int    `yaml:"cache_ttl_sec"` // LRU and Redis entry lifetime
}

// RetrievalConfig holds retriever settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// SpeechConfig holds STT and TTS settings.
type SpeechConfig struct {
	STTModel       string           `yaml:"stt_model"`
	STTDeployment  string           `yaml:"stt_deployment"`
	TTSProvider    string           `yaml:"tts_provider"` // elevenlabs, openai, none
	OpenAITTSModel string           `yaml:"openai_tts_model"`
	OpenAIVoice    string           `yaml:"openai_voice"`
	ElevenLabs     ElevenLabsConfig `yaml:"elevenlabs"`
	MaxAudioMB     int              `yaml:"max_audio_mb"`
}

// ElevenLabsConfig holds ElevenLabs credentials and voice settings.
type ElevenLabsConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	VoiceID      string  `yaml:"voice_id"`
	ModelID      string  `yaml:"model_id"`
	OutputFormat string  `yaml:"output_format"`
	Stability    float64 `yaml:"stability"`
	Similarity   float64 `yaml:"similarity_boost"`
}

// StorageConfig holds document store settings.
type StorageConfig struct {
	Driver           string   `yaml:"driver"` // file, redis (default: file)
	DataDir          string   `yaml:"data_dir"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	EmbeddingCache   bool     `yaml:"embedding_cache"` // persist embeddings in Redis (redis driver only)
}

// RawDir is where source documents are kept.
func (s StorageConfig) RawDir() string { return filepath.Join(s.DataDir, "raw") }

// EmbeddingsDir is where the file driver keeps chunks and vectors.
func (s StorageConfig) EmbeddingsDir() string { return filepath.Join(s.DataDir, "embeddings") }

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	BatchSize      int    `yaml:"batch_size"`
	RescanOnStart  bool   `yaml:"rescan_on_start"`
	RescanSchedule string `yaml:"rescan_schedule"` // 5-field cron expression, empty disables
	MaxUploadMB    int    `yaml:"max_upload_mb"`
}

// CORSConfig holds cross-origin settings for the browser frontend.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and validates the result.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.OpenAI.Provider == "" {
		c.OpenAI.Provider = ProviderOpenAI
	}
	if c.OpenAI.AzureAPIVersion == "" {
		c.OpenAI.AzureAPIVersion = "2024-12-01-preview"
	}
	if c.OpenAI.TimeoutSec <= 0 {
		c.OpenAI.TimeoutSec = 120
	}

	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o"
	}
	if c.Chat.Temperature == nil {
		t := DefaultTemperature
		c.Chat.Temperature = &t
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = 1000
	}
	if c.Chat.MaxHistoryTurns <= 0 {
		c.Chat.MaxHistoryTurns = 6
	}
	if c.Chat.Retry.InitialIntervalMs <= 0 {
		c.Chat.Retry.InitialIntervalMs = 500
	}
	if c.Chat.Retry.MaxIntervalMs <= 0 {
		c.Chat.Retry.MaxIntervalMs = 2000
	}

	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-ada-002"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = domain.DefaultEmbeddingDimensions
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 3600
	}

	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}

	if c.Speech.STTModel == "" {
		c.Speech.STTModel = "whisper-1"
	}
	if c.Speech.TTSProvider == "" {
		c.Speech.TTSProvider = TTSElevenLabs
	}
	if c.Speech.OpenAITTSModel == "" {
		c.Speech.OpenAITTSModel = "tts-1"
	}
	if c.Speech.OpenAIVoice == "" {
		c.Speech.OpenAIVoice = "alloy"
	}
	if c.Speech.ElevenLabs.BaseURL == "" {
		c.Speech.ElevenLabs.BaseURL = "https://api.elevenlabs.io"
	}
	if c.Speech.ElevenLabs.ModelID == "" {
		c.Speech.ElevenLabs.ModelID = "eleven_multilingual_v2"
	}
	if c.Speech.ElevenLabs.OutputFormat == "" {
		c.Speech.ElevenLabs.OutputFormat = "mp3_44100_128"
	}
	if c.Speech.ElevenLabs.Stability == 0 {
		c.Speech.ElevenLabs.Stability = 0.5
	}
	if c.Speech.ElevenLabs.Similarity == 0 {
		c.Speech.ElevenLabs.Similarity = 0.75
	}
	if c.Speech.MaxAudioMB <= 0 {
		c.Speech.MaxAudioMB = 25
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverFile
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "DATA"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "ragvoice:"
	}
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}

	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 1000
	}
	if c.Ingest.ChunkOverlap < 0 {
		c.Ingest.ChunkOverlap = 0
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 32
	}
	if c.Ingest.MaxUploadMB <= 0 {
		c.Ingest.MaxUploadMB = 50
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
}

// Validate checks the configuration for correctness.
// Every failure wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return configErr("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.OpenAI.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return configErr("openai.api_key is required (set OPENAI_API_KEY)")
		}
	case ProviderAzure:
		if c.OpenAI.AzureEndpoint == "" {
			return configErr("openai.azure_endpoint is required (set AZURE_OPENAI_ENDPOINT)")
		}
		if c.OpenAI.AzureAPIKey == "" {
			return configErr("openai.azure_api_key is required (set AZURE_OPENAI_API_KEY)")
		}
		if c.Chat.Deployment == "" {
			return configErr("chat.deployment is required for azure (set AZURE_OPENAI_DEPLOYMENT_NAME)")
		}
		if c.Embedding.Deployment == "" {
			return configErr("embedding.deployment is required for azure (set AZURE_OPENAI_EMBEDDING_DEPLOYMENT)")
		}
	default:
		return configErr("openai.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAzure, c.OpenAI.Provider)
	}

	switch c.Speech.TTSProvider {
	case TTSElevenLabs:
		if c.Speech.ElevenLabs.APIKey == "" {
			return configErr("speech.elevenlabs.api_key is required (set ELEVENLABS_API_KEY)")
		}
		if c.Speech.ElevenLabs.VoiceID == "" {
			return configErr("speech.elevenlabs.voice_id is required")
		}
	case TTSOpenAI, TTSNone:
	default:
		return configErr("speech.tts_provider must be %q, %q or %q, got %q",
			TTSElevenLabs, TTSOpenAI, TTSNone, c.Speech.TTSProvider)
	}

	switch c.Storage.Driver {
	case DriverFile:
	case DriverRedis:
		if len(c.Storage.Addrs) == 0 {
			return configErr("storage.addrs is required for the redis driver")
		}
	default:
		return configErr("storage.driver must be %q or %q, got %q", DriverFile, DriverRedis, c.Storage.Driver)
	}

	if t := c.Chat.SamplingTemperature(); t < 0 || t > 2 {
		return configErr("chat.temperature must be between 0 and 2, got %v", t)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return configErr("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, fmt.Sprintf(format, args...))
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
