package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// OCR config
	OCR OCRConfig `yaml:"ocr"`

	// Vision providers usable as OCR engines
	AI AIConfig `yaml:"ai"`

	// Scoring constants
	Verification VerificationConfig `yaml:"verification"`

	// Image source fetching
	Fetch FetchConfig `yaml:"fetch"`

	// Case workflow
	Workflow WorkflowConfig `yaml:"workflow"`

	Cache CacheConfig `yaml:"cache"`
	Auth  AuthConfig  `yaml:"auth"`
	Log   LogConfig   `yaml:"log"`
}

// OCRConfig represents OCR-specific configuration
type OCRConfig struct {
	Engine     string `yaml:"engine"`     // "tesseract", "openai" or "gemini"
	Language   string `yaml:"language"`   // OCR language, "+" separated (default: "eng")
	Preprocess bool   `yaml:"preprocess"` // grayscale/upscale before tesseract

	// Variables are passed to the engine with every image, e.g.
	// tessedit_pageseg_mode. Vision engines ignore them.
	Variables map[string]string `yaml:"variables"`
}

// AIConfig represents vision provider configuration
type AIConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OpenAIConfig for OpenAI or any compatible endpoint
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`              // Default: "gpt-4o-mini"
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "gemini-1.5-flash"
}

// VerificationConfig holds the scoring weights and thresholds.
// The single-document and cross-document thresholds are independent.
type VerificationConfig struct {
	NameWeight             float64 `yaml:"name_weight"`              // default 0.5
	IDWeight               float64 `yaml:"id_weight"`                // default 0.5
	VerifyThreshold        float64 `yaml:"verify_threshold"`         // default 0.8
	CrossDocumentThreshold float64 `yaml:"cross_document_threshold"` // default 0.85
}

// FetchConfig controls remote image downloads
type FetchConfig struct {
	TimeoutSeconds int   `yaml:"timeout_seconds"` // default 30
	MaxBytes       int64 `yaml:"max_bytes"`       // default 10MB
}

// WorkflowConfig maps a client category to its ordered list of required document labels
type WorkflowConfig struct {
	RequiredDocuments map[string][]string `yaml:"required_documents"`
	AutoAdvance       bool                `yaml:"auto_advance"`
}

// CacheConfig for the optional Redis OCR cache
type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr"`
	TTLMinutes int    `yaml:"ttl_minutes"` // default 1440
}

// AuthConfig for bearer token verification
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Disabled  bool   `yaml:"disabled"`
}

// LogConfig for the process logger
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
