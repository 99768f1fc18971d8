package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed config.example.yaml
var exampleConfigBytes []byte

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var validate = newValidator()

// Paths already routed by the gateway; uploads cannot be served under them.
var reservedPrefixes = []string{"/static", "/ws", "/health", "/upload"}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("publicprefix", func(fl validator.FieldLevel) bool {
		return ValidPublicPrefix(fl.Field().String())
	})
	return v
}

// ValidPublicPrefix reports whether p can serve uploads without colliding with the
// gateway's own routes. "/" and anything at or under a reserved path is rejected.
func ValidPublicPrefix(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	p = path.Clean(p)
	if p == "/" {
		return false
	}
	for _, r := range reservedPrefixes {
		if p == r || strings.HasPrefix(p, r+"/") {
			return false
		}
	}
	return true
}

// LoadDotEnv loads a .env file from the working directory if one exists.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
}

// Load reads the YAML config at path on top of DefaultConfig, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(cfg, filepath.Dir(path))
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// (resolved against baseDir) instead of an error.
func LoadOrDefault(path, baseDir string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	slog.Warn("config not found, using defaults", "path", path)
	return finish(DefaultConfig(), baseDir)
}

func finish(cfg *Config, baseDir string) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	resolveRelativePaths(cfg, baseDir)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints declared on the config types.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the deployment override the webhook endpoint and port.
// N8N_WEBHOOK_URL is honoured for older deployments; WEBHOOK_URL wins.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("N8N_WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Gateway.Port = port
	}
	return nil
}

func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func resolveRelativePaths(cfg *Config, baseDir string) {
	if cfg.Uploads.Dir != "" && !filepath.IsAbs(cfg.Uploads.Dir) {
		cfg.Uploads.Dir = filepath.Join(baseDir, cfg.Uploads.Dir)
	}
	if cfg.Log.File != "" && !filepath.IsAbs(cfg.Log.File) {
		cfg.Log.File = filepath.Join(baseDir, cfg.Log.File)
	}
}

// CreateFromExample writes the embedded example config to targetPath.
// An existing file is left untouched.
func CreateFromExample(targetPath string) error {
	if _, err := os.Stat(targetPath); err == nil {
		return fmt.Errorf("config already exists: %s", targetPath)
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(targetPath, exampleConfigBytes, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Write marshals cfg to YAML and writes it to path. Creates parent directory if needed.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
