// Package config loads and persists the nested configuration tree described
// in spec §6: photo-host credentials, LLM keys/model selection, batch
// tuning, and vision-verification defaults. The tree doubles as the
// dot-path-addressable surface behind GET/POST /api/config.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// PhotoHost holds the credentials and tuning for the photo-host capability port.
type PhotoHost struct {
	APIKey       string `json:"apiKey"`
	APISecret    string `json:"apiSecret"`
	BaseURL      string `json:"baseUrl"`
	FetchTimeout int    `json:"fetchTimeoutSeconds"`
}

// LLM holds the credentials and model selections for the LLM capability port.
type LLM struct {
	Provider        string `json:"provider"` // "anthropic" | "openai"
	APIKey          string `json:"apiKey"`
	AnalysisModelID string `json:"analysisModelId"`
	ChatModelID     string `json:"chatModelId"`
	VerifyModelID   string `json:"verifyModelId"`
	AnalyzeTimeout  int    `json:"analyzeTimeoutSeconds"`
}

// BatchTuning holds the global rate limit and concurrency knobs BatchManager derives its RateLimiter from.
type BatchTuning struct {
	GlobalRatePerMinute    float64 `json:"globalRatePerMinute"`
	MaxConcurrentBatches   int     `json:"maxConcurrentBatches"`
	PerBatchConcurrency    int     `json:"perBatchConcurrency"`
	MaxRetries             int     `json:"maxRetries"`
	BatchRetentionSeconds  int     `json:"batchRetentionSeconds"`
}

// Vision holds the vision-verification post-filter defaults from spec §4.8.
type Vision struct {
	Enabled        bool   `json:"enabled"`
	BatchSize      int    `json:"batchSize"`
	MaxImages      int    `json:"maxImages"`
	ModelID        string `json:"modelId"`
}

// Storage holds the optional S3-compatible mirror of photo-host originals.
// Batch processing writes each fetched original to the mirror; nothing in
// the service reads mirrored bytes back. Unset AccountID disables the mirror.
type Storage struct {
	Enabled         bool   `json:"enabled"`
	AccountID       string `json:"accountId"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	BucketName      string `json:"bucketName"`
	PublicURLBase   string `json:"publicUrlBase"`
}

// Config is the full nested configuration tree, persisted at data/config.json.
type Config struct {
	ServiceName string      `json:"serviceName"`
	ServicePort string      `json:"servicePort"`
	Env         string      `json:"env"`
	DataDir     string      `json:"dataDir"`
	PhotoHost   PhotoHost   `json:"photoHost"`
	LLM         LLM         `json:"llm"`
	Batch       BatchTuning `json:"batch"`
	Vision      Vision      `json:"vision"`
	Storage     Storage     `json:"storage"`

	mu   sync.RWMutex `json:"-"`
	path string       `json:"-"`
}

// Default returns a Config populated with the documented defaults from spec §4.7/§4.8.
func Default() *Config {
	return &Config{
		ServiceName: "lumalens",
		ServicePort: getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "development"),
		DataDir:     getEnv("DATA_DIR", "data"),
		PhotoHost: PhotoHost{
			APIKey:       os.Getenv("PHOTOHOST_API_KEY"),
			APISecret:    os.Getenv("PHOTOHOST_API_SECRET"),
			BaseURL:      getEnv("PHOTOHOST_BASE_URL", ""),
			FetchTimeout: 30,
		},
		LLM: LLM{
			Provider:        getEnv("LLM_PROVIDER", "anthropic"),
			APIKey:          firstNonEmpty(os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("OPENAI_API_KEY")),
			AnalysisModelID: getEnv("LLM_ANALYSIS_MODEL", "claude-sonnet-4-5"),
			ChatModelID:     getEnv("LLM_CHAT_MODEL", "claude-sonnet-4-5"),
			VerifyModelID:   getEnv("LLM_VERIFY_MODEL", "claude-sonnet-4-5"),
			AnalyzeTimeout:  60,
		},
		Batch: BatchTuning{
			GlobalRatePerMinute:   60,
			MaxConcurrentBatches:  getEnvInt("MAX_CONCURRENT_BATCHES", 3),
			PerBatchConcurrency:   getEnvInt("PER_BATCH_CONCURRENCY", 1),
			MaxRetries:            getEnvInt("MAX_RETRIES", 3),
			BatchRetentionSeconds: 30,
		},
		Vision: Vision{
			Enabled:   false,
			BatchSize: 5,
			MaxImages: 30,
			ModelID:   getEnv("LLM_VERIFY_MODEL", "claude-sonnet-4-5"),
		},
		Storage: Storage{
			Enabled:         getEnv("R2_ACCOUNT_ID", "") != "",
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicURLBase:   os.Getenv("R2_PUBLIC_URL"),
		},
	}
}

// Load starts from Default() (built-in defaults and environment variables),
// overlays data/config.json if present, and then overlays the fields
// mergeOverlay copies from config.local.yaml for developer convenience.
func Load(dataDir string) (*Config, error) {
	cfg := Default()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.path = cfg.DataDir + "/config.json"

	if b, err := os.ReadFile(cfg.path); err == nil {
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", cfg.path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", cfg.path, err)
	}

	if b, err := os.ReadFile("config.local.yaml"); err == nil {
		var overlay Config
		if err := yaml.Unmarshal(b, &overlay); err != nil {
			return nil, fmt.Errorf("failed to parse config.local.yaml: %w", err)
		}
		mergeOverlay(cfg, &overlay)
	}

	return cfg, nil
}

// Save persists the config tree atomically to config.json under DataDir
// (the file Load read, when the Config came from Load).
func (c *Config) Save() error {
	c.mu.RLock()
	b, err := json.MarshalIndent(c, "", "  ")
	path := c.path
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename temp config: %w", err)
	}
	return nil
}

// Get resolves a dot-path ("batch.maxConcurrentBatches") against the config tree.
func (c *Config) Get(dotPath string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, err
	}
	return walkGet(tree, strings.Split(dotPath, "."))
}

// Set resolves a dot-path and assigns value, then re-marshals back into the
// typed Config. Used by POST /api/config.
func (c *Config) Set(dotPath string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := json.Unmarshal(b, &tree); err != nil {
		return err
	}

	segments := strings.Split(dotPath, ".")
	if err := walkSet(tree, segments, value); err != nil {
		return err
	}

	out, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return json.Unmarshal(out, c)
}

func walkGet(node map[string]any, segments []string) (any, error) {
	v, ok := node[segments[0]]
	if !ok {
		return nil, fmt.Errorf("config key %q not found", segments[0])
	}
	if len(segments) == 1 {
		return v, nil
	}
	child, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config key %q is not an object", segments[0])
	}
	return walkGet(child, segments[1:])
}

func walkSet(node map[string]any, segments []string, value any) error {
	if len(segments) == 1 {
		if _, ok := node[segments[0]]; !ok {
			return fmt.Errorf("config key %q not found", segments[0])
		}
		node[segments[0]] = value
		return nil
	}
	child, ok := node[segments[0]].(map[string]any)
	if !ok {
		return fmt.Errorf("config key %q is not an object", segments[0])
	}
	return walkSet(child, segments[1:], value)
}

// mergeOverlay copies the non-zero values of a fixed set of fields from
// overlay into dst (spec §9's explicit merge-only-non-empty-fields
// replacement for prototype spreading): service name and port, LLM API key
// and provider, photo-host base URL, global rate per minute and max
// concurrent batches. Other overlay fields are ignored.
func mergeOverlay(dst, overlay *Config) {
	if overlay.ServiceName != "" {
		dst.ServiceName = overlay.ServiceName
	}
	if overlay.ServicePort != "" {
		dst.ServicePort = overlay.ServicePort
	}
	if overlay.LLM.APIKey != "" {
		dst.LLM.APIKey = overlay.LLM.APIKey
	}
	if overlay.LLM.Provider != "" {
		dst.LLM.Provider = overlay.LLM.Provider
	}
	if overlay.PhotoHost.BaseURL != "" {
		dst.PhotoHost.BaseURL = overlay.PhotoHost.BaseURL
	}
	if overlay.Batch.GlobalRatePerMinute != 0 {
		dst.Batch.GlobalRatePerMinute = overlay.Batch.GlobalRatePerMinute
	}
	if overlay.Batch.MaxConcurrentBatches != 0 {
		dst.Batch.MaxConcurrentBatches = overlay.Batch.MaxConcurrentBatches
	}
}

// GetAllowedOrigins returns the CORS allow-list, defaulting to localhost:3000.
func GetAllowedOrigins() []string {
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr == "" {
		return []string{"http://localhost:3000"}
	}

	parts := strings.Split(originsStr, ",")
	var origins []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
