/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"gohymnbook/internal/layout"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type LibraryConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
	EnableServer   bool `yaml:"enable_server"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// BarsConfig tunes the repeat bar geometry. A zero field keeps the
// built-in value.
type BarsConfig struct {
	TopPadPt       float64 `yaml:"top_pad_pt"`
	TopPadScaledPt float64 `yaml:"top_pad_scaled_pt"`
	LineHeightPt   float64 `yaml:"line_height_pt"`
	LineGapPt      float64 `yaml:"line_gap_pt"`
	BlankHeightPt  float64 `yaml:"blank_height_pt"`
	LevelStepPt    float64 `yaml:"level_step_pt"`
	ThicknessPt    float64 `yaml:"thickness_pt"`
}

type RenderConfig struct {
	Preset        string     `yaml:"preset"`    // pocket | a5 | a4 | letter | half-letter
	FontFile      string     `yaml:"font_file"` // TTF for UTF-8 embedding; empty falls back to a core font
	FontFamily    string     `yaml:"font_family"`
	BodySizePt    int        `yaml:"body_size_pt"`
	MinBodySizePt int        `yaml:"min_body_size_pt"`
	TitleSizePt   int        `yaml:"title_size_pt"`
	DetailSizePt  int        `yaml:"detail_size_pt"`
	PageNumberPt  int        `yaml:"page_number_pt"`
	BarGutterPt   float64    `yaml:"bar_gutter_pt"` // width reserved for bars when fitting lyrics
	Bars          BarsConfig `yaml:"bars"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Library       LibraryConfig `yaml:"library"`
	Logging       LoggingConfig `yaml:"logging"`
	Render        RenderConfig  `yaml:"render"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, EnableServer: false},
		Library:       LibraryConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000, TLSInsecure: false},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
		Render: RenderConfig{
			Preset:        "pocket",
			FontFamily:    "dejavu",
			BodySizePt:    14,
			MinBodySizePt: 6,
			TitleSizePt:   14,
			DetailSizePt:  10,
			PageNumberPt:  12,
			BarGutterPt:   14,
		},
	}
}

// Env var names used as overrides.
const (
	EnvLibraryURL       = "GHB_LIBRARY_URL"
	EnvLibraryTimeoutMs = "GHB_LIBRARY_TIMEOUT_MS"
	EnvLibraryTLSInsec  = "GHB_TLS_INSECURE"
	EnvTelemetryOptIn   = "GHB_TELEMETRY_OPT_IN"
	EnvEnableServer     = "GHB_ENABLE_SERVER"
	EnvRenderPreset     = "GHB_RENDER_PRESET"
	EnvRenderFontFile   = "GHB_RENDER_FONT_FILE"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GHB_LOG_LEVEL"
	EnvLogFormat = "GHB_LOG_FORMAT"
	EnvLogSource = "GHB_LOG_SOURCE"
	EnvLogFile   = "GHB_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "GoHymnbook"
	keyringToken   = "library_token"
)

// tokenStore abstracts the keyring, so we can stub in tests.
var tokenStore TokenStore = &osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore via github.com/zalando/go-keyring.
type osKeyring struct{}

func (k *osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (k *osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (k *osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GoHymnbook")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoHymnbook")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "gohymnbook")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. The library token comes from the keyring and is
// returned separately; it never lives in the struct.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into the OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

// ClearToken removes the library token from the OS keyring.
func ClearToken() error {
	return tokenStore.Delete(keyringService, keyringToken)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.General.EnableServer = src.General.EnableServer
	if src.Library.BaseURL != "" {
		dst.Library.BaseURL = src.Library.BaseURL
	}
	if src.Library.TimeoutMs != 0 {
		dst.Library.TimeoutMs = src.Library.TimeoutMs
	}
	dst.Library.TLSInsecure = src.Library.TLSInsecure
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
	// render
	if strings.TrimSpace(src.Render.Preset) != "" {
		dst.Render.Preset = strings.ToLower(strings.TrimSpace(src.Render.Preset))
	}
	if strings.TrimSpace(src.Render.FontFile) != "" {
		dst.Render.FontFile = strings.TrimSpace(src.Render.FontFile)
	}
	if strings.TrimSpace(src.Render.FontFamily) != "" {
		dst.Render.FontFamily = strings.TrimSpace(src.Render.FontFamily)
	}
	if src.Render.BodySizePt != 0 {
		dst.Render.BodySizePt = src.Render.BodySizePt
	}
	if src.Render.MinBodySizePt != 0 {
		dst.Render.MinBodySizePt = src.Render.MinBodySizePt
	}
	if src.Render.TitleSizePt != 0 {
		dst.Render.TitleSizePt = src.Render.TitleSizePt
	}
	if src.Render.DetailSizePt != 0 {
		dst.Render.DetailSizePt = src.Render.DetailSizePt
	}
	if src.Render.PageNumberPt != 0 {
		dst.Render.PageNumberPt = src.Render.PageNumberPt
	}
	if src.Render.BarGutterPt != 0 {
		dst.Render.BarGutterPt = src.Render.BarGutterPt
	}
	dst.Render.Bars = src.Render.Bars
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvLibraryURL)); v != "" {
		cfg.Library.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLibraryTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Library.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLibraryTLSInsec)); v != "" {
		cfg.Library.TLSInsecure = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvEnableServer)); v != "" {
		cfg.General.EnableServer = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvRenderPreset)); v != "" {
		cfg.Render.Preset = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvRenderFontFile)); v != "" {
		cfg.Render.FontFile = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	switch key {
	case "library.base_url":
		if os.Getenv(EnvLibraryURL) != "" {
			return EnvLibraryURL, true
		}
	case "library.timeout_ms":
		if os.Getenv(EnvLibraryTimeoutMs) != "" {
			return EnvLibraryTimeoutMs, true
		}
	case "library.tls_insecure":
		if os.Getenv(EnvLibraryTLSInsec) != "" {
			return EnvLibraryTLSInsec, true
		}
	case "general.telemetry_opt_in":
		if os.Getenv(EnvTelemetryOptIn) != "" {
			return EnvTelemetryOptIn, true
		}
	case "general.enable_server":
		if os.Getenv(EnvEnableServer) != "" {
			return EnvEnableServer, true
		}
	case "render.preset":
		if os.Getenv(EnvRenderPreset) != "" {
			return EnvRenderPreset, true
		}
	case "render.font_file":
		if os.Getenv(EnvRenderFontFile) != "" {
			return EnvRenderFontFile, true
		}
	case "logging.level":
		if os.Getenv(EnvLogLevel) != "" {
			return EnvLogLevel, true
		}
	case "logging.format":
		if os.Getenv(EnvLogFormat) != "" {
			return EnvLogFormat, true
		}
	case "logging.source":
		if os.Getenv(EnvLogSource) != "" {
			return EnvLogSource, true
		}
	case "logging.file":
		if os.Getenv(EnvLogFile) != "" {
			return EnvLogFile, true
		}
	}
	return "", false
}

// EffectiveTimeout returns the library client timeout, falling back to the
// default when unset.
func (l LibraryConfig) EffectiveTimeout() time.Duration {
	ms := l.TimeoutMs
	if ms <= 0 {
		ms = Defaults().Library.TimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Metrics folds the bar overrides over the built-in geometry.
func (r RenderConfig) Metrics() layout.Metrics {
	m := layout.DefaultMetrics()
	if r.Bars.TopPadPt != 0 {
		m.TopPad = r.Bars.TopPadPt
	}
	if r.Bars.TopPadScaledPt != 0 {
		m.TopPadScaled = r.Bars.TopPadScaledPt
	}
	if r.Bars.LineHeightPt != 0 {
		m.LineHeight = r.Bars.LineHeightPt
	}
	if r.Bars.LineGapPt != 0 {
		m.LineGap = r.Bars.LineGapPt
	}
	if r.Bars.BlankHeightPt != 0 {
		m.BlankHeight = r.Bars.BlankHeightPt
	}
	if r.Bars.LevelStepPt != 0 {
		m.LevelStep = r.Bars.LevelStepPt
	}
	if r.Bars.ThicknessPt != 0 {
		m.Thickness = r.Bars.ThicknessPt
	}
	return m
}
