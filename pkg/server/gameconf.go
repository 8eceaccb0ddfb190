package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/mushgames/pkg/session"
)

// GameConf holds game-level configuration parameters, loaded from YAML.
type GameConf struct {
	// --- Identity ---
	MudName   string `yaml:"mud_name" validate:"required"`
	Port      int    `yaml:"port" validate:"min=1,max=65535"`
	LobbyName string `yaml:"lobby_name" validate:"required"`

	// --- Storage ---
	DBPath string `yaml:"db_path" validate:"required"`
	// BackupDir enables periodic archives of the store. Empty disables them.
	BackupDir      string `yaml:"backup_dir"`
	BackupInterval int    `yaml:"backup_interval" validate:"min=0"` // minutes
	BackupKeep     int    `yaml:"backup_keep" validate:"min=1"`

	// --- Games (seconds) ---
	InvitationTimeout int      `yaml:"invitation_timeout" validate:"min=1"`
	ActionTimeout     int      `yaml:"action_timeout" validate:"min=1"`
	TurnTimeout       int      `yaml:"turn_timeout" validate:"min=1"`
	MaxParticipants   int      `yaml:"max_participants" validate:"min=2,max=64"`
	Bots              []string `yaml:"bots" validate:"dive,min=2,max=32"`
	BotThinkMillis    int      `yaml:"bot_think_ms" validate:"min=0"`
	HistoryLimit      int      `yaml:"history_limit" validate:"min=1,max=100"`

	// --- Connections ---
	IdleTimeout int `yaml:"idle_timeout" validate:"min=0"`
	EventQueue  int `yaml:"event_queue" validate:"min=16"`

	// --- Web/Security ---
	WebEnabled     bool     `yaml:"web_enabled"`
	WebPort        int      `yaml:"web_port" validate:"min=1,max=65535"`
	WebHost        string   `yaml:"web_host"`
	WebCORSOrigins []string `yaml:"web_cors_origins"`
	WebRateLimit   int      `yaml:"web_rate_limit" validate:"min=0"`
	JWTSecret      string   `yaml:"jwt_secret"`
	JWTExpiry      int      `yaml:"jwt_expiry" validate:"min=60"`

	// --- Admin API (served by the web server under /admin/) ---
	AdminEnabled  bool   `yaml:"admin_enabled"`
	AdminPassword string `yaml:"admin_password"`
	AdminDataDir  string `yaml:"admin_data_dir"`
}

// DefaultGameConf returns a GameConf with the classic two-minute game timeouts.
func DefaultGameConf() *GameConf {
	return &GameConf{
		MudName:           "MushGames",
		Port:              6250,
		LobbyName:         "The Arena",
		DBPath:            "data/mushgames.bolt",
		BackupInterval:    360,
		BackupKeep:        7,
		InvitationTimeout: 120,
		ActionTimeout:     120,
		TurnTimeout:       120,
		MaxParticipants:   session.DefaultMaxParticipants,
		BotThinkMillis:    1500,
		HistoryLimit:      10,
		IdleTimeout:       3600,
		EventQueue:        1024,
		WebEnabled:        false,
		WebPort:           8443,
		WebRateLimit:      60,
		JWTExpiry:         86400,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges.
func (gc *GameConf) Validate() error {
	if err := validate.Struct(gc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadGameConf reads a YAML config file over the defaults and validates it.
func LoadGameConf(path string) (*GameConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseGameConf(data)
}

// ParseGameConf decodes YAML over the defaults and validates the result.
func ParseGameConf(data []byte) (*GameConf, error) {
	gc := DefaultGameConf()
	if err := yaml.Unmarshal(data, gc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := gc.Validate(); err != nil {
		return nil, err
	}
	return gc, nil
}

// ApplyEnv overrides fields from ARENA_* environment variables. getenv
// is usually os.Getenv.
func (gc *GameConf) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			*dst = atoi(v, *dst)
		}
	}
	str("ARENA_NAME", &gc.MudName)
	num("ARENA_PORT", &gc.Port)
	str("ARENA_DB", &gc.DBPath)
	str("ARENA_BACKUP_DIR", &gc.BackupDir)
	num("ARENA_INVITATION_TIMEOUT", &gc.InvitationTimeout)
	num("ARENA_ACTION_TIMEOUT", &gc.ActionTimeout)
	num("ARENA_TURN_TIMEOUT", &gc.TurnTimeout)
	num("ARENA_MAX_PARTICIPANTS", &gc.MaxParticipants)
	if v := getenv("ARENA_BOTS"); v != "" {
		gc.Bots = splitList(v)
	}
	if v := getenv("ARENA_WEB"); v != "" {
		gc.WebEnabled = parseBool(v)
	}
	num("ARENA_WEB_PORT", &gc.WebPort)
	str("ARENA_JWT_SECRET", &gc.JWTSecret)
	if v := getenv("ARENA_ADMIN"); v != "" {
		gc.AdminEnabled = parseBool(v)
	}
	str("ARENA_ADMIN_PASS", &gc.AdminPassword)
}

// Timeouts converts the configured seconds into session timeouts.
func (gc *GameConf) Timeouts() session.Timeouts {
	return session.Timeouts{
		Invitation: time.Duration(gc.InvitationTimeout) * time.Second,
		Action:     time.Duration(gc.ActionTimeout) * time.Second,
		Turn:       time.Duration(gc.TurnTimeout) * time.Second,
	}
}

// BotThink is the delay before a robot answers.
func (gc *GameConf) BotThink() time.Duration {
	return time.Duration(gc.BotThinkMillis) * time.Millisecond
}

// --- Helper functions ---

func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "true" || s == "1" || s == "on"
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}
