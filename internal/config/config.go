package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"forge/internal/contextmgr"
)

type ProviderConfig struct {
	BaseURL    string   `json:"base_url"`
	Model      string   `json:"model"`
	Models     []string `json:"models"`
	APIKey     string   `json:"api_key"`
	TimeoutMS  int      `json:"timeout_ms"`
	MaxRetries int      `json:"max_retries"`
	// Generator 选择阶段生成使用的后端："stream"（默认）或 "official"。
	// Generator picks the backend for stage generation: "stream" (default) or "official".
	Generator string `json:"generator"`
}

// ContextConfig holds the conversation compression budgets.
type ContextConfig struct {
	Window      int    `json:"window"`
	MaxMessages int    `json:"max_messages"`
	MaxChars    int    `json:"max_chars"`
	Encoding    string `json:"encoding"`
}

type PipelineConfig struct {
	MaxSteps int `json:"max_steps"`
}

type ServerConfig struct {
	Addr          string `json:"addr"`
	TurnTimeoutMS int    `json:"turn_timeout_ms"`
}

type StorageConfig struct {
	DataDir     string `json:"data_dir"`
	SaveDelayMS int    `json:"save_delay_ms"`
	// ImportDir 旧版 JSON 会话目录，启动时导入。
	// ImportDir is a directory of legacy JSON sessions imported at startup.
	ImportDir string `json:"import_dir"`
}

type StreamConfig struct {
	EventBuffer int `json:"event_buffer"`
}

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Context  ContextConfig  `json:"context"`
	Pipeline PipelineConfig `json:"pipeline"`
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Stream   StreamConfig   `json:"stream"`
	Language string         `json:"language"`
}

type fileConfig struct {
	Provider *ProviderConfig `json:"provider"`
	Context  *ContextConfig  `json:"context"`
	Pipeline *PipelineConfig `json:"pipeline"`
	Server   *ServerConfig   `json:"server"`
	Storage  *StorageConfig  `json:"storage"`
	Stream   *StreamConfig   `json:"stream"`
	Language *string         `json:"language"`
}

// envConfig lists the environment overrides. Empty values leave the file
// configuration alone.
type envConfig struct {
	ConfigPath string `env:"FORGE_CONFIG_PATH"`
	BaseURL    string `env:"FORGE_BASE_URL"`
	Model      string `env:"FORGE_MODEL"`
	APIKey     string `env:"FORGE_API_KEY"`
	Addr       string `env:"FORGE_ADDR"`
	DataDir    string `env:"FORGE_DATA_DIR"`
	Lang       string `env:"FORGE_LANG"`
	MaxSteps   int    `env:"FORGE_MAX_STEPS"`
	// DashScopeKey is the fallback when FORGE_API_KEY is unset.
	DashScopeKey string `env:"DASHSCOPE_API_KEY"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:   DefaultBaseURL,
			Model:     DefaultModel,
			Models:    []string{DefaultModel},
			TimeoutMS: DefaultTimeoutMS,
			Generator: "stream",
		},
		Context: ContextConfig{
			Window:      contextmgr.DefaultWindow,
			MaxMessages: contextmgr.DefaultMaxMessages,
			MaxChars:    contextmgr.DefaultMaxChars,
		},
		Pipeline: PipelineConfig{MaxSteps: DefaultMaxSteps},
		Server: ServerConfig{
			Addr:          DefaultAddr,
			TurnTimeoutMS: DefaultTurnTimeoutMS,
		},
		Storage: StorageConfig{
			DataDir:     DefaultDataDir,
			SaveDelayMS: DefaultSaveDelayMS,
		},
		Stream: StreamConfig{EventBuffer: DefaultEventBuffer},
	}
}

// Load 按 默认值 → 全局配置 → 项目配置 → 环境变量 的顺序加载配置
// Load layers defaults, the global config, the project config (path, or the
// first project candidate found) and finally environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	var ev envConfig
	if err := env.Parse(&ev); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(ev.ConfigPath); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg, ev)
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".forge", "config.json"),
		filepath.Join(home, ".forge", "config.jsonc"),
	}
}

func findProjectConfigPath() string {
	candidates := []string{
		"forge.config.json",
		"forge.config.jsonc",
		".forge/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Context != nil {
		if fc.Context.Window > 0 {
			cfg.Context.Window = fc.Context.Window
		}
		if fc.Context.MaxMessages > 0 {
			cfg.Context.MaxMessages = fc.Context.MaxMessages
		}
		if fc.Context.MaxChars > 0 {
			cfg.Context.MaxChars = fc.Context.MaxChars
		}
		if strings.TrimSpace(fc.Context.Encoding) != "" {
			cfg.Context.Encoding = fc.Context.Encoding
		}
	}
	if fc.Pipeline != nil && fc.Pipeline.MaxSteps > 0 {
		cfg.Pipeline.MaxSteps = fc.Pipeline.MaxSteps
	}
	if fc.Server != nil {
		if strings.TrimSpace(fc.Server.Addr) != "" {
			cfg.Server.Addr = fc.Server.Addr
		}
		if fc.Server.TurnTimeoutMS > 0 {
			cfg.Server.TurnTimeoutMS = fc.Server.TurnTimeoutMS
		}
	}
	if fc.Storage != nil {
		if strings.TrimSpace(fc.Storage.DataDir) != "" {
			cfg.Storage.DataDir = fc.Storage.DataDir
		}
		if fc.Storage.SaveDelayMS > 0 {
			cfg.Storage.SaveDelayMS = fc.Storage.SaveDelayMS
		}
		if strings.TrimSpace(fc.Storage.ImportDir) != "" {
			cfg.Storage.ImportDir = fc.Storage.ImportDir
		}
	}
	if fc.Stream != nil && fc.Stream.EventBuffer > 0 {
		cfg.Stream.EventBuffer = fc.Stream.EventBuffer
	}
	if fc.Language != nil {
		cfg.Language = *fc.Language
	}
}

func mergeProvider(base ProviderConfig, override ProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if len(override.Models) > 0 {
		base.Models = append([]string(nil), override.Models...)
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	if strings.TrimSpace(override.Generator) != "" {
		base.Generator = override.Generator
	}
	return base
}

func applyEnv(cfg *Config, ev envConfig) {
	if v := strings.TrimSpace(ev.BaseURL); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(ev.Model); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(ev.APIKey); v != "" {
		cfg.Provider.APIKey = v
	} else if v := strings.TrimSpace(ev.DashScopeKey); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(ev.Addr); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(ev.DataDir); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := strings.TrimSpace(ev.Lang); v != "" {
		cfg.Language = v
	}
	if ev.MaxSteps > 0 {
		cfg.Pipeline.MaxSteps = ev.MaxSteps
	}
}

func normalize(cfg *Config) error {
	def := Default()
	if strings.TrimSpace(cfg.Provider.BaseURL) == "" {
		cfg.Provider.BaseURL = def.Provider.BaseURL
	}
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		cfg.Provider.Model = def.Provider.Model
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}
	if cfg.Provider.MaxRetries < 0 {
		cfg.Provider.MaxRetries = 0
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Generator)) {
	case "official":
		cfg.Provider.Generator = "official"
	case "", "stream":
		cfg.Provider.Generator = "stream"
	default:
		return fmt.Errorf("unknown provider.generator %q (want stream or official)", cfg.Provider.Generator)
	}
	cfg.Provider.Models = normalizeModelList(cfg.Provider.Models)
	if !containsString(cfg.Provider.Models, cfg.Provider.Model) {
		cfg.Provider.Models = append([]string{cfg.Provider.Model}, cfg.Provider.Models...)
	}

	if cfg.Context.Window <= 0 {
		cfg.Context.Window = def.Context.Window
	}
	if cfg.Context.MaxMessages <= 0 {
		cfg.Context.MaxMessages = def.Context.MaxMessages
	}
	if cfg.Context.MaxMessages < cfg.Context.Window {
		return fmt.Errorf("context.max_messages (%d) must be at least context.window (%d)", cfg.Context.MaxMessages, cfg.Context.Window)
	}
	if cfg.Context.MaxChars <= 0 {
		cfg.Context.MaxChars = def.Context.MaxChars
	}
	if cfg.Pipeline.MaxSteps <= 0 {
		cfg.Pipeline.MaxSteps = def.Pipeline.MaxSteps
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.TurnTimeoutMS <= 0 {
		cfg.Server.TurnTimeoutMS = def.Server.TurnTimeoutMS
	}
	if cfg.Storage.SaveDelayMS <= 0 {
		cfg.Storage.SaveDelayMS = def.Storage.SaveDelayMS
	}
	if cfg.Stream.EventBuffer <= 0 {
		cfg.Stream.EventBuffer = def.Stream.EventBuffer
	}

	if strings.TrimSpace(cfg.Storage.DataDir) == "" {
		cfg.Storage.DataDir = def.Storage.DataDir
	}
	dataDir, err := expandPath(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	cfg.Storage.DataDir = dataDir
	importDir, err := expandPath(cfg.Storage.ImportDir)
	if err != nil {
		return err
	}
	cfg.Storage.ImportDir = importDir
	cfg.Language = strings.TrimSpace(cfg.Language)
	return nil
}

// DBPath is the sqlite database inside the data directory.
func (c Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "forge.db")
}

func (c Config) TurnTimeout() time.Duration {
	return time.Duration(c.Server.TurnTimeoutMS) * time.Millisecond
}

func (c Config) SaveDelay() time.Duration {
	return time.Duration(c.Storage.SaveDelayMS) * time.Millisecond
}

func normalizeModelList(models []string) []string {
	out := make([]string, 0, len(models))
	seen := map[string]struct{}{}
	for _, m := range models {
		trimmed := strings.TrimSpace(m)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func containsString(items []string, needle string) bool {
	for _, item := range items {
		if item == needle {
			return true
		}
	}
	return false
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
