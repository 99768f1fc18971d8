package config

import "time"

type Config struct {
	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`
	Webhook WebhookConfig `yaml:"webhook" json:"webhook"`
	Uploads UploadsConfig `yaml:"uploads" json:"uploads"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

type GatewayConfig struct {
	Port           int      `yaml:"port" json:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `yaml:"allowedOrigins" json:"allowedOrigins"` // CORS + websocket origin check; "*" allows all
	QueueSize      int      `yaml:"queueSize" json:"queueSize" validate:"min=1"` // pending turns buffered per connection
}

type WebhookConfig struct {
	URL          string            `yaml:"url" json:"url" validate:"required,url"`
	AgentLabel   string            `yaml:"agentLabel" json:"agentLabel" validate:"required"`     // stamped on every normalized reply
	DefaultReply string            `yaml:"defaultReply" json:"defaultReply" validate:"required"` // used when the webhook reply carries no text
	Timeout      time.Duration     `yaml:"timeout" json:"timeout" validate:"min=0"`              // 0 keeps the transport default
	Headers      map[string]string `yaml:"headers" json:"headers"`
}

type UploadsConfig struct {
	Dir              string `yaml:"dir" json:"dir" validate:"required"`
	PublicPrefix     string `yaml:"publicPrefix" json:"publicPrefix" validate:"required,publicprefix"`
	MaxMediaBytes    int64  `yaml:"maxMediaBytes" json:"maxMediaBytes" validate:"gt=0"`       // images and audio
	MaxDocumentBytes int64  `yaml:"maxDocumentBytes" json:"maxDocumentBytes" validate:"gt=0"` // pdf, office, text
}

// MaxBytes returns the largest configured ceiling.
func (u UploadsConfig) MaxBytes() int64 {
	return max(u.MaxMediaBytes, u.MaxDocumentBytes)
}

type LogConfig struct {
	Level      string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" json:"format" validate:"oneof=text json"`
	File       string `yaml:"file" json:"file"` // empty disables file output
	MaxSizeMB  int    `yaml:"maxSizeMB" json:"maxSizeMB" validate:"min=0"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups" validate:"min=0"`
	MaxAgeDays int    `yaml:"maxAgeDays" json:"maxAgeDays" validate:"min=0"`
}

const (
	DefaultPort       = 3000
	DefaultWebhookURL = "http://localhost:5678/webhook/chat"
)

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:           DefaultPort,
			AllowedOrigins: []string{"*"},
			QueueSize:      16,
		},
		Webhook: WebhookConfig{
			URL:          DefaultWebhookURL,
			AgentLabel:   "hookrelay",
			DefaultReply: "Thanks for your message. We will get back to you shortly.",
		},
		Uploads: UploadsConfig{
			Dir:              "uploads",
			PublicPrefix:     "/uploads",
			MaxMediaBytes:    10 << 20,
			MaxDocumentBytes: 25 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}
