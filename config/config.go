// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/iris/internal/types"
)

const (
	appName        = "iris"
	configFileName = "config.json"
)

// Config represents the application configuration.
type Config struct {
	Credentials []Credential       `json:"credentials,omitempty"`
	Profiles    []InferenceProfile `json:"profiles,omitempty"`
	Speech      SpeechConfig       `json:"speech"`

	Tracking TrackingConfig `json:"tracking"`
	Gaze     GazeConfig     `json:"gaze"`
	Blink    BlinkConfig    `json:"blink"`
	Voice    VoiceConfig    `json:"voice"`
	History  HistoryConfig  `json:"history"`
	Image    ImageConfig    `json:"image"`
	Capture  CaptureConfig  `json:"capture"`
	Hotkey   HotkeyConfig   `json:"hotkey"`

	path string
}

// Credential is an API key for one provider endpoint.
type Credential struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // "openai", "openai-compatible", "gemini", "claude"
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
}

// InferenceProfile selects a model and prompt on top of a credential.
type InferenceProfile struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	CredentialID    string  `json:"credential_id"`
	Model           string  `json:"model"`
	SystemPrompt    string  `json:"system_prompt,omitempty"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	Active          bool    `json:"active"`
	DisableThinking bool    `json:"disable_thinking,omitempty"`
	Stream          bool    `json:"stream"`
}

// SpeechConfig selects the speech recognizer.
type SpeechConfig struct {
	Recognizer   string `json:"recognizer"` // "whisper-api", "whisper-local", "realtime"
	CredentialID string `json:"credential_id,omitempty"`
	Model        string `json:"model,omitempty"`
	Language     string `json:"language,omitempty"`    // BCP 47, e.g. "en-US"
	LocalModel   string `json:"local_model,omitempty"` // whisper.cpp model size
}

// TrackingConfig configures the supervised vision process.
type TrackingConfig struct {
	Command        string   `json:"command"`
	Args           []string `json:"args,omitempty"`
	HealthInterval Duration `json:"health_interval"`
	OutputTimeout  Duration `json:"output_timeout"`
	RestartDelay   Duration `json:"restart_delay"`
	MaxAttempts    int      `json:"max_attempts"`
}

// GazeConfig configures stability filtering and sampling cadence.
type GazeConfig struct {
	Radius       float64  `json:"radius"`
	Dwell        Duration `json:"dwell"`
	Smoothing    float64  `json:"smoothing"`
	NormalRate   int      `json:"normal_rate"`
	ReducedRate  int      `json:"reduced_rate"`
	HeavyCeiling Duration `json:"heavy_ceiling"`
}

// BlinkConfig configures the long-blink trigger.
type BlinkConfig struct {
	Threshold  float64  `json:"threshold"`
	ShortBlink Duration `json:"short_blink"`
	LongBlink  Duration `json:"long_blink"`
}

// VoiceConfig configures voice capture completion.
type VoiceConfig struct {
	SilenceThreshold Duration `json:"silence_threshold"`
	PollInterval     Duration `json:"poll_interval"`
	Timeout          Duration `json:"timeout"`
}

// HistoryConfig bounds the conversation history.
type HistoryConfig struct {
	MaxMessages int `json:"max_messages"`
}

// ImageConfig bounds the screenshot sent for inference.
type ImageConfig struct {
	MaxDimension int `json:"max_dimension"`
	JPEGQuality  int `json:"jpeg_quality"`
}

// CaptureConfig configures session capture.
type CaptureConfig struct {
	ScreenshotTimeout Duration `json:"screenshot_timeout"`
	IncludeFocus      bool     `json:"include_focus"`
	ArchiveTTL        Duration `json:"archive_ttl"`
}

// HotkeyConfig holds the global key combinations, e.g. "ctrl+shift+space".
// An empty combination disables the binding.
type HotkeyConfig struct {
	Trigger string `json:"trigger"`
	Dismiss string `json:"dismiss"`
}

// Load loads configuration from the default config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path, filling unset values with defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Path returns the file the configuration is saved to.
func (c *Config) Path() string {
	return c.path
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	if c.path == "" {
		path, err := configPath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
		c.path = path
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Credentials live in this file.
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Speech.Recognizer == "" {
		c.Speech.Recognizer = "whisper-api"
	}
	if c.Speech.Model == "" {
		c.Speech.Model = "whisper-1"
	}
	if c.Speech.Language == "" {
		c.Speech.Language = "en-US"
	}
	if c.Speech.LocalModel == "" {
		c.Speech.LocalModel = "base"
	}

	t := &c.Tracking
	if t.Command == "" {
		t.Command = "iris-vision"
	}
	setDuration(&t.HealthInterval, 5*time.Second)
	setDuration(&t.OutputTimeout, 10*time.Second)
	setDuration(&t.RestartDelay, 2*time.Second)
	if t.MaxAttempts == 0 {
		t.MaxAttempts = 3
	}

	g := &c.Gaze
	if g.Radius == 0 {
		g.Radius = 30
	}
	setDuration(&g.Dwell, 150*time.Millisecond)
	if g.NormalRate == 0 {
		g.NormalRate = 60
	}
	if g.ReducedRate == 0 {
		g.ReducedRate = 15
	}
	setDuration(&g.HeavyCeiling, 2*time.Second)

	b := &c.Blink
	if b.Threshold == 0 {
		b.Threshold = 0.21
	}
	setDuration(&b.ShortBlink, 200*time.Millisecond)
	setDuration(&b.LongBlink, time.Second)

	v := &c.Voice
	setDuration(&v.SilenceThreshold, 2500*time.Millisecond)
	setDuration(&v.PollInterval, 500*time.Millisecond)

	if c.History.MaxMessages == 0 {
		c.History.MaxMessages = 20
	}

	if c.Image.MaxDimension == 0 {
		c.Image.MaxDimension = 1568
	}
	if c.Image.JPEGQuality == 0 {
		c.Image.JPEGQuality = 80
	}

	setDuration(&c.Capture.ScreenshotTimeout, 5*time.Second)
	setDuration(&c.Capture.ArchiveTTL, 7*24*time.Hour)

	if c.Hotkey.Trigger == "" {
		c.Hotkey.Trigger = "ctrl+shift+space"
	}
	if c.Hotkey.Dismiss == "" {
		c.Hotkey.Dismiss = "esc"
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredential returns a credential by ID.
func (c *Config) GetCredential(id string) *Credential {
	for i := range c.Credentials {
		if c.Credentials[i].ID == id {
			return &c.Credentials[i]
		}
	}
	return nil
}

// AddCredential adds a new API credential.
func (c *Config) AddCredential(cred Credential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name required")
	}
	if cred.Type == "openai-compatible" && cred.BaseURL == "" {
		return fmt.Errorf("base url required for openai-compatible")
	}
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}

	c.Credentials = append(c.Credentials, cred)
	return c.Save()
}

// UpdateCredential updates an existing credential.
func (c *Config) UpdateCredential(id string, cred Credential) error {
	idx := slices.IndexFunc(c.Credentials, func(x Credential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	cred.ID = id
	c.Credentials[idx] = cred
	return c.Save()
}

// RemoveCredential removes a credential by ID.
// Returns error if credential is in use by any profile or the speech config.
func (c *Config) RemoveCredential(id string) error {
	for _, p := range c.Profiles {
		if p.CredentialID == id {
			return fmt.Errorf("credential in use by profile: %s", p.Name)
		}
	}
	if c.Speech.CredentialID == id {
		return fmt.Errorf("credential in use by speech config")
	}

	idx := slices.IndexFunc(c.Credentials, func(x Credential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

// ─────────────────────────────────────────────────────────────────────────────
// Inference Profile Management
// ─────────────────────────────────────────────────────────────────────────────

// ActiveProfile returns the currently active inference profile.
func (c *Config) ActiveProfile() *InferenceProfile {
	for i := range c.Profiles {
		if c.Profiles[i].Active {
			return &c.Profiles[i]
		}
	}
	if len(c.Profiles) > 0 {
		return &c.Profiles[0]
	}
	return nil
}

// AddProfile adds a new inference profile.
func (c *Config) AddProfile(profile InferenceProfile) error {
	if profile.Name == "" {
		return fmt.Errorf("profile name required")
	}
	if profile.Model == "" {
		return fmt.Errorf("model required")
	}
	if c.GetCredential(profile.CredentialID) == nil {
		return fmt.Errorf("credential not found: %s", profile.CredentialID)
	}

	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.MaxTokens == 0 {
		profile.MaxTokens = types.DefaultMaxTokens
	}
	if profile.Temperature == 0 {
		profile.Temperature = types.DefaultTemperature
	}

	// First profile or explicitly active: deactivate others
	if len(c.Profiles) == 0 || profile.Active {
		for i := range c.Profiles {
			c.Profiles[i].Active = false
		}
		profile.Active = true
	}

	c.Profiles = append(c.Profiles, profile)
	return c.Save()
}

// RemoveProfile removes an inference profile by ID.
func (c *Config) RemoveProfile(id string) error {
	idx := slices.IndexFunc(c.Profiles, func(x InferenceProfile) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("profile not found: %s", id)
	}

	wasActive := c.Profiles[idx].Active
	c.Profiles = slices.Delete(c.Profiles, idx, idx+1)

	if wasActive && len(c.Profiles) > 0 {
		c.Profiles[0].Active = true
	}

	return c.Save()
}

// SetProfileActive sets an inference profile as active.
func (c *Config) SetProfileActive(id string) error {
	found := false
	for i := range c.Profiles {
		c.Profiles[i].Active = c.Profiles[i].ID == id
		found = found || c.Profiles[i].Active
	}
	if !found {
		return fmt.Errorf("profile not found: %s", id)
	}
	return c.Save()
}

// ─────────────────────────────────────────────────────────────────────────────
// Provider Resolution
// ─────────────────────────────────────────────────────────────────────────────

// envKeys maps provider types to the environment variable consulted when a
// credential carries no key.
var envKeys = map[string]string{
	"openai":            "OPENAI_API_KEY",
	"openai-compatible": "OPENAI_API_KEY",
	"gemini":            "GEMINI_API_KEY",
	"claude":            "ANTHROPIC_API_KEY",
}

// ActiveProvider flattens the active profile and its credential into a
// provider. The API key falls back to the environment.
func (c *Config) ActiveProvider() (*types.Provider, error) {
	profile := c.ActiveProfile()
	if profile == nil {
		return nil, fmt.Errorf("no inference profile configured")
	}

	cred := c.GetCredential(profile.CredentialID)
	if cred == nil {
		return nil, fmt.Errorf("credential not found: %s", profile.CredentialID)
	}

	key, err := resolveKey(cred)
	if err != nil {
		return nil, err
	}

	return &types.Provider{
		Name:            profile.Name,
		Type:            cred.Type,
		BaseURL:         cred.BaseURL,
		APIKey:          key,
		Model:           profile.Model,
		SystemPrompt:    profile.SystemPrompt,
		MaxTokens:       profile.MaxTokens,
		Temperature:     profile.Temperature,
		Active:          profile.Active,
		DisableThinking: profile.DisableThinking,
	}, nil
}

// SpeechCredential returns the credential used by API-backed recognizers.
func (c *Config) SpeechCredential() (*Credential, error) {
	cred := c.GetCredential(c.Speech.CredentialID)
	if cred == nil {
		cred = &Credential{Name: "environment", Type: "openai"}
	}
	if cred.Type != "openai" && cred.Type != "openai-compatible" {
		return nil, fmt.Errorf("speech recognition requires an OpenAI-compatible credential")
	}

	key, err := resolveKey(cred)
	if err != nil {
		return nil, err
	}
	out := *cred
	out.APIKey = key
	return &out, nil
}

func resolveKey(cred *Credential) (string, error) {
	if cred.APIKey != "" {
		return cred.APIKey, nil
	}
	if env, ok := envKeys[cred.Type]; ok {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("api key required: set it on credential %q or in %s", cred.Name, env)
	}
	return "", fmt.Errorf("api key required for credential %q", cred.Name)
}
