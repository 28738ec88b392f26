// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/taxfiler/kyc-ocr-service/internal/kyc"
	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

// LoadDotEnv loads .env into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides and fills
// defaults. A missing file yields the defaults.
func Load(path string) (*models.Config, error) {
	var cfg models.Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("[Config] config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *models.Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Port = p
	}
	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if engine := os.Getenv("OCR_ENGINE"); engine != "" {
		cfg.OCR.Engine = engine
	}
	if lang := os.Getenv("OCR_LANGUAGE"); lang != "" {
		cfg.OCR.Language = lang
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.AI.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.AI.OpenAI.Model = model
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.AI.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.AI.Gemini.Model = model
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	return nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.OCR.Engine == "" {
		cfg.OCR.Engine = "tesseract"
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "eng"
	}
	if cfg.Verification.NameWeight == 0 && cfg.Verification.IDWeight == 0 {
		cfg.Verification.NameWeight = kyc.DefaultNameWeight
		cfg.Verification.IDWeight = kyc.DefaultIDWeight
	}
	if cfg.Verification.VerifyThreshold == 0 {
		cfg.Verification.VerifyThreshold = kyc.DefaultVerifyThreshold
	}
	if cfg.Verification.CrossDocumentThreshold == 0 {
		cfg.Verification.CrossDocumentThreshold = kyc.DefaultCrossDocumentThreshold
	}
	if cfg.Fetch.TimeoutSeconds == 0 {
		cfg.Fetch.TimeoutSeconds = 30
	}
	if cfg.Fetch.MaxBytes == 0 {
		cfg.Fetch.MaxBytes = 10 << 20
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = 24 * 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func validate(cfg *models.Config) error {
	v := cfg.Verification
	if v.NameWeight < 0 || v.IDWeight < 0 {
		return fmt.Errorf("verification weights must not be negative")
	}
	if sum := v.NameWeight + v.IDWeight; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("verification weights must sum to 1, got %.3f", sum)
	}
	if v.VerifyThreshold <= 0 || v.VerifyThreshold > 1 {
		return fmt.Errorf("verification.verify_threshold must be in (0, 1]")
	}
	if v.CrossDocumentThreshold <= 0 || v.CrossDocumentThreshold > 1 {
		return fmt.Errorf("verification.cross_document_threshold must be in (0, 1]")
	}
	if !cfg.Auth.Disabled && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (or JWT_SECRET) is required unless auth.disabled is set")
	}
	return nil
}
