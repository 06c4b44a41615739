/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"vnplayer/internal/audio"
	"vnplayer/internal/cue"
	"vnplayer/internal/playback"
	"vnplayer/internal/reveal"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	AssetsDir      string `yaml:"assets_dir"`
	HistoryDir     string `yaml:"history_dir"` // empty disables the history index
	ServerAddr     string `yaml:"server_addr"`
}

type PlayerConfig struct {
	Name          string `yaml:"name"` // saved name; used when valid
	DefaultName   string `yaml:"default_name"`
	MinNameLength int    `yaml:"min_name_length"`
	MaxNameLength int    `yaml:"max_name_length"`
}

// PlaybackConfig holds the pacing knobs in milliseconds.
type PlaybackConfig struct {
	TypewriterSpeedMs   int     `yaml:"typewriter_speed_ms"`
	VoiceSyncDelayMs    int     `yaml:"voice_sync_delay_ms"`
	MinCharDelayMs      int     `yaml:"min_char_delay_ms"`
	MaxCharDelayMs      int     `yaml:"max_char_delay_ms"`
	SyncMargin          float64 `yaml:"sync_margin"`
	TailPadMs           int     `yaml:"tail_pad_ms"`
	EnableVoiceSync     bool    `yaml:"enable_voice_sync"`
	BackgroundFadeMs    int     `yaml:"background_fade_ms"`
	CharacterFadeMs     int     `yaml:"character_fade_ms"`
	DialogueBoxFadeMs   int     `yaml:"dialogue_box_fade_ms"`
	AutoShowDialogueBox bool    `yaml:"auto_show_dialogue_box"`
	ChapterEndDwellMs   int     `yaml:"chapter_end_dwell_ms"`
	MusicVolume         float64 `yaml:"music_volume"`
	MusicCrossfadeMs    int     `yaml:"music_crossfade_ms"`
	MusicFadeOutMs      int     `yaml:"music_fade_out_ms"`
	DuckRatio           float64 `yaml:"duck_ratio"`
	DuckRampMs          int     `yaml:"duck_ramp_ms"`
	RestoreRampMs       int     `yaml:"restore_ramp_ms"`
}

type BackendConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
	MaxConns  int `yaml:"max_conns"`
	// The Postgres DSN is not stored on disk; it lives in the OS keychain.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Player        PlayerConfig   `yaml:"player"`
	Playback      PlaybackConfig `yaml:"playback"`
	Backend       BackendConfig  `yaml:"backend"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{AssetsDir: "assets", ServerAddr: "127.0.0.1:8088"},
		Player:        PlayerConfig{DefaultName: "Player", MinNameLength: 2, MaxNameLength: 20},
		Playback: PlaybackConfig{
			TypewriterSpeedMs:   50,
			VoiceSyncDelayMs:    100,
			MinCharDelayMs:      20,
			MaxCharDelayMs:      150,
			SyncMargin:          0.95,
			TailPadMs:           100,
			EnableVoiceSync:     true,
			BackgroundFadeMs:    1000,
			CharacterFadeMs:     500,
			DialogueBoxFadeMs:   500,
			AutoShowDialogueBox: true,
			ChapterEndDwellMs:   3000,
			MusicVolume:         0.5,
			MusicCrossfadeMs:    1000,
			MusicFadeOutMs:      1000,
			DuckRatio:           0.3,
			DuckRampMs:          200,
			RestoreRampMs:       300,
		},
		Backend: BackendConfig{TimeoutMs: 15000, MaxConns: 4},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath      = "VNP_CONFIG"
	EnvAssetsDir       = "VNP_ASSETS_DIR"
	EnvHistoryDir      = "VNP_HISTORY_DIR"
	EnvServerAddr      = "VNP_SERVER_ADDR"
	EnvTelemetryOptIn  = "VNP_TELEMETRY_OPT_IN"
	EnvPlayerName      = "VNP_PLAYER_NAME"
	EnvTypewriterSpeed = "VNP_TYPEWRITER_SPEED_MS"
	EnvVoiceSync       = "VNP_VOICE_SYNC"
	EnvMusicVolume     = "VNP_MUSIC_VOLUME"
	EnvBackendDSN      = "VNP_PG_DSN"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "VNP_LOG_LEVEL"
	EnvLogFormat = "VNP_LOG_FORMAT"
	EnvLogSource = "VNP_LOG_SOURCE"
	EnvLogFile   = "VNP_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "vnplayer"
	keyringDSN     = "backend_dsn"
)

// SecretStore abstracts the keyring so tests can swap it.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements SecretStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var secrets SecretStore = osKeyring{}

// ConfigPath returns the per-user config file path. VNP_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "vnplayer")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "vnplayer")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "vnplayer")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend DSN from the keyring (not kept inside the struct; returned separately).
// VNP_PG_DSN wins over the keyring.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		// Start from defaults so keys missing in the file keep their default.
		fileCfg := Defaults()
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	applyEnvOverrides(&cfg)
	dsn := strings.TrimSpace(os.Getenv(EnvBackendDSN))
	if dsn == "" {
		dsn, _ = secrets.Get(keyringService, keyringDSN)
	}
	return cfg, dsn, nil
}

// Save writes the user config YAML and persists the DSN into the OS keyring (if non-empty).
func Save(cfg AppConfig, dsn string) error {
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
	if dsn != "" {
		if err := secrets.Set(keyringService, keyringDSN, dsn); err != nil {
			return err
		}
	}
	return nil
}

// ForgetDSN removes the stored backend DSN from the keyring.
func ForgetDSN() error {
	if err := secrets.Delete(keyringService, keyringDSN); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if s := strings.TrimSpace(src.General.AssetsDir); s != "" {
		dst.General.AssetsDir = s
	}
	dst.General.HistoryDir = strings.TrimSpace(src.General.HistoryDir)
	if s := strings.TrimSpace(src.General.ServerAddr); s != "" {
		dst.General.ServerAddr = s
	}

	dst.Player.Name = strings.TrimSpace(src.Player.Name)
	if s := strings.TrimSpace(src.Player.DefaultName); s != "" {
		dst.Player.DefaultName = s
	}
	if src.Player.MinNameLength > 0 {
		dst.Player.MinNameLength = src.Player.MinNameLength
	}
	if src.Player.MaxNameLength >= dst.Player.MinNameLength {
		dst.Player.MaxNameLength = src.Player.MaxNameLength
	}

	p, sp := &dst.Playback, src.Playback
	for _, f := range []struct {
		dst *int
		src int
	}{
		{&p.TypewriterSpeedMs, sp.TypewriterSpeedMs},
		{&p.VoiceSyncDelayMs, sp.VoiceSyncDelayMs},
		{&p.MinCharDelayMs, sp.MinCharDelayMs},
		{&p.MaxCharDelayMs, sp.MaxCharDelayMs},
		{&p.TailPadMs, sp.TailPadMs},
		{&p.BackgroundFadeMs, sp.BackgroundFadeMs},
		{&p.CharacterFadeMs, sp.CharacterFadeMs},
		{&p.DialogueBoxFadeMs, sp.DialogueBoxFadeMs},
		{&p.ChapterEndDwellMs, sp.ChapterEndDwellMs},
		{&p.MusicCrossfadeMs, sp.MusicCrossfadeMs},
		{&p.MusicFadeOutMs, sp.MusicFadeOutMs},
		{&p.DuckRampMs, sp.DuckRampMs},
		{&p.RestoreRampMs, sp.RestoreRampMs},
	} {
		// 0 is a valid "instant" setting for every duration.
		if f.src >= 0 {
			*f.dst = f.src
		}
	}
	if sp.SyncMargin > 0 && sp.SyncMargin <= 1 {
		p.SyncMargin = sp.SyncMargin
	}
	if sp.MusicVolume >= 0 && sp.MusicVolume <= 1 {
		p.MusicVolume = sp.MusicVolume
	}
	if sp.DuckRatio >= 0 && sp.DuckRatio <= 1 {
		p.DuckRatio = sp.DuckRatio
	}
	p.EnableVoiceSync = sp.EnableVoiceSync
	p.AutoShowDialogueBox = sp.AutoShowDialogueBox

	if src.Backend.TimeoutMs > 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	if src.Backend.MaxConns > 0 {
		dst.Backend.MaxConns = src.Backend.MaxConns
	}
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
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvAssetsDir)); v != "" {
		cfg.General.AssetsDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryDir)); v != "" {
		cfg.General.HistoryDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.General.ServerAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvPlayerName)); v != "" {
		cfg.Player.Name = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTypewriterSpeed)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Playback.TypewriterSpeedMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvVoiceSync)); v != "" {
		cfg.Playback.EnableVoiceSync = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvMusicVolume)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Playback.MusicVolume = f
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"general.assets_dir":           EnvAssetsDir,
	"general.history_dir":          EnvHistoryDir,
	"general.server_addr":          EnvServerAddr,
	"general.telemetry_opt_in":     EnvTelemetryOptIn,
	"player.name":                  EnvPlayerName,
	"playback.typewriter_speed_ms": EnvTypewriterSpeed,
	"playback.enable_voice_sync":   EnvVoiceSync,
	"playback.music_volume":        EnvMusicVolume,
	"backend.dsn":                  EnvBackendDSN,
	"logging.level":                EnvLogLevel,
	"logging.format":               EnvLogFormat,
	"logging.source":               EnvLogSource,
	"logging.file":                 EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	if env, ok := envKeys[key]; ok && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Engine converts the millisecond settings into the engine's policy structs.
func (c AppConfig) Engine() playback.Tuning {
	p := c.Playback
	s := playback.DefaultPolicy()
	s.EndDwell = ms(p.ChapterEndDwellMs)
	s.DialogueBoxFade = ms(p.DialogueBoxFadeMs)
	s.AutoShowDialogueBox = p.AutoShowDialogueBox
	s.DefaultName = c.Player.DefaultName
	s.MinNameLen = c.Player.MinNameLength
	s.MaxNameLen = c.Player.MaxNameLength
	return playback.Tuning{
		Session: s,
		Reveal: reveal.Policy{
			Speed:    ms(p.TypewriterSpeedMs),
			PreRoll:  ms(p.VoiceSyncDelayMs),
			MinDelay: ms(p.MinCharDelayMs),
			MaxDelay: ms(p.MaxCharDelayMs),
			Margin:   p.SyncMargin,
			TailPad:  ms(p.TailPadMs),
		},
		Cue: cue.Policy{
			BackgroundFade:  ms(p.BackgroundFadeMs),
			CharacterFade:   ms(p.CharacterFadeMs),
			EnableVoiceSync: p.EnableVoiceSync,
		},
		Deck: audio.DeckPolicy{
			Volume:      p.MusicVolume,
			Crossfade:   ms(p.MusicCrossfadeMs),
			FadeOut:     ms(p.MusicFadeOutMs),
			DuckRatio:   p.DuckRatio,
			DuckRamp:    ms(p.DuckRampMs),
			RestoreRamp: ms(p.RestoreRampMs),
		},
	}
}

// InitialName returns the saved player name when it is valid, else the default.
func (p PlayerConfig) InitialName() string {
	if n, ok := playback.NormalizeName(p.Name, p.MinNameLength, p.MaxNameLength); ok {
		return n
	}
	return p.DefaultName
}

// Timeout returns the backend timeout, falling back to the default.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return ms(Defaults().Backend.TimeoutMs)
	}
	return ms(b.TimeoutMs)
}
