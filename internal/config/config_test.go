package config

import (
	"os"
	"path/filepath"
	"testing"
)

// isolate points HOME at an empty dir and chdirs into another.
func isolate(t *testing.T) (home, work string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"FORGE_CONFIG_PATH", "FORGE_BASE_URL", "FORGE_MODEL", "FORGE_API_KEY", "FORGE_ADDR", "FORGE_DATA_DIR", "FORGE_LANG", "FORGE_MAX_STEPS", "DASHSCOPE_API_KEY"} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
	work = t.TempDir()
	oldwd, _ := os.Getwd()
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	return home, work
}

func TestDefaults(t *testing.T) {
	home, _ := isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Context.Window != 10 || cfg.Context.MaxMessages != 30 || cfg.Context.MaxChars != 200 {
		t.Fatalf("context=%+v", cfg.Context)
	}
	if cfg.Pipeline.MaxSteps != DefaultMaxSteps || cfg.Stream.EventBuffer != DefaultEventBuffer {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Storage.DataDir != filepath.Join(home, ".forge") {
		t.Fatalf("data dir=%q", cfg.Storage.DataDir)
	}
	if cfg.DBPath() != filepath.Join(home, ".forge", "forge.db") {
		t.Fatalf("db=%q", cfg.DBPath())
	}
	if cfg.Provider.Generator != "stream" {
		t.Fatalf("generator=%q", cfg.Provider.Generator)
	}
}

func TestLoadJSONCAndPrecedence(t *testing.T) {
	home, _ := isolate(t)

	globalDir := filepath.Join(home, ".forge")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	globalCfg := `{
  // global
  "provider": {"model": "global-model", "api_key": "k-global"},
  "context": {"window": 6, "max_chars": 120}
}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	projectCfg := `{
  /* project wins */
  "provider": {"model": "project-model"},
  "context": {"window": 8},
  "language": "zh-CN"
}`
	if err := os.WriteFile("forge.config.json", []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "project-model" || cfg.Provider.APIKey != "k-global" {
		t.Fatalf("provider=%+v", cfg.Provider)
	}
	if cfg.Context.Window != 8 || cfg.Context.MaxChars != 120 || cfg.Context.MaxMessages != 30 {
		t.Fatalf("context=%+v", cfg.Context)
	}
	if cfg.Language != "zh-CN" {
		t.Fatalf("language=%q", cfg.Language)
	}
}

func TestEnvOverride(t *testing.T) {
	isolate(t)
	if err := os.WriteFile("forge.config.json", []byte(`{"server":{"addr":"0.0.0.0:1"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FORGE_MODEL", "env-model")
	t.Setenv("FORGE_ADDR", "127.0.0.1:9999")
	t.Setenv("FORGE_MAX_STEPS", "7")
	t.Setenv("DASHSCOPE_API_KEY", "k-dash")
	data := t.TempDir()
	t.Setenv("FORGE_DATA_DIR", data)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "env-model" || cfg.Server.Addr != "127.0.0.1:9999" || cfg.Pipeline.MaxSteps != 7 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Provider.APIKey != "k-dash" || cfg.Storage.DataDir != data {
		t.Fatalf("key=%q dir=%q", cfg.Provider.APIKey, cfg.Storage.DataDir)
	}
	if cfg.Provider.Models[0] != "env-model" {
		t.Fatalf("models=%v", cfg.Provider.Models)
	}

	t.Setenv("FORGE_MAX_STEPS", "many")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric FORGE_MAX_STEPS")
	}
}

func TestExplicitPathAndValidation(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.json")
	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"ok", `{"provider":{"generator":"OFFICIAL","models":["a","b","a"," "]}}`, false},
		{"bad generator", `{"provider":{"generator":"carrier-pigeon"}}`, true},
		{"window above cap", `{"context":{"window":40}}`, true},
		{"broken json", `{"provider":`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
			if err == nil && (cfg.Provider.Generator != "official" || len(cfg.Provider.Models) != 3) {
				t.Fatalf("provider=%+v", cfg.Provider)
			}
		})
	}
}

func TestProjectScaffoldAndModelWrite(t *testing.T) {
	_, work := isolate(t)
	path, err := InitProjectConfigScaffold(work)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(work, ".forge", "config.json") {
		t.Fatalf("path=%q", path)
	}
	if err := WriteProviderModel(work, "qwen-max"); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "qwen-max" || cfg.Pipeline.MaxSteps != DefaultMaxSteps {
		t.Fatalf("cfg=%+v", cfg)
	}
	if again, err := InitProjectConfigScaffold(work); err != nil || again != path {
		t.Fatalf("second scaffold path=%q err=%v", again, err)
	}
	if err := WriteProviderModel(work, " "); err == nil {
		t.Fatal("expected error for empty model")
	}
}
