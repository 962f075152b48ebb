package config

type Config struct {
	Server    ServerConfig    `json:"server"`
	Telegram  TelegramConfig  `json:"telegram"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
	Auth      AuthConfig      `json:"auth"`
	Predict   PredictConfig   `json:"predict"`

	// Maintenance controls the nightly retention sweep.
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
	// Timeouts are Go duration strings (e.g. "5s", "1m").
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// Polling enables the long-poll listener that greets users on /start.
	// Reminders are delivered regardless of this flag.
	Polling bool `json:"polling"`
	// SendTimeout bounds one outbound send. Go duration string; default "8s".
	SendTimeout string `json:"send_timeout,omitempty"`
	// RatePerSec caps outbound messages per second (Telegram is strict about this).
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// PollTimeout is the long-poll timeout. Go duration string; default "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// SchedulerConfig controls the reminder trigger engine.
type SchedulerConfig struct {
	// Timezone is the fixed IANA zone all HH:MM times are interpreted in.
	// Default: "Asia/Kolkata".
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the sqlite persistence layer.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	// TokenTTL is a Go duration string; default "24h".
	TokenTTL string `json:"token_ttl,omitempty"`
	// SecureCookies marks the session cookie Secure+SameSite=None (behind TLS).
	SecureCookies bool `json:"secure_cookies,omitempty"`
}

type PredictConfig struct {
	// BaseURL of the disease-model server; default "http://127.0.0.1:5001".
	BaseURL string `json:"base_url,omitempty"`
	// Timeout bounds one proxied request. Go duration string; default "10s".
	Timeout string `json:"timeout,omitempty"`
}

// MaintenanceConfig controls the retention sweep.
//
// Spec is a 5-field cron expression evaluated in scheduler.timezone.
// Retention is a Go duration string; rows older than this are purged.
type MaintenanceConfig struct {
	Enabled   bool   `json:"enabled"`
	Spec      string `json:"spec,omitempty"`      // default "30 3 * * *"
	Retention string `json:"retention,omitempty"` // default "720h" (30 days)
}
