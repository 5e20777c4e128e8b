package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadFormats(t *testing.T) {
	d := t.TempDir()
	cases := map[string]string{
		"cfg.yaml": "addr: :9999\nbackend: toy\nmodel_path: /m.json\ntop_k: 12\ntop_p: 0.5\ntemperature: 0\nrestore_prompt: /p.snap\ncors_origins: [\"*\"]\n",
		"cfg.json": `{"addr":":9999","backend":"toy","model_path":"/m.json","top_k":12,"top_p":0.5,"temperature":0,"restore_prompt":"/p.snap","cors_origins":["*"]}`,
		"cfg.toml": "addr=\":9999\"\nbackend=\"toy\"\nmodel_path=\"/m.json\"\ntop_k=12\ntop_p=0.5\ntemperature=0.0\nrestore_prompt=\"/p.snap\"\ncors_origins=[\"*\"]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTempFile(t, d, name, body))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Addr != ":9999" || cfg.Backend != "toy" || cfg.ModelPath != "/m.json" || cfg.TopK != 12 || cfg.TopP != 0.5 {
				t.Fatalf("unexpected cfg: %+v", cfg)
			}
			if cfg.Temperature == nil || *cfg.Temperature != 0 {
				t.Fatalf("explicit zero temperature lost: %v", cfg.Temperature)
			}
			if cfg.RestorePrompt != "/p.snap" || len(cfg.CORSOrigins) != 1 {
				t.Fatalf("unexpected cfg: %+v", cfg)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
	d := t.TempDir()
	bad := map[string]string{
		"cfg.txt":   "not supported",
		"bad.yaml":  "addr: :8080\n: broken\n",
		"bad.json":  `{ "addr": ":8080", "model_path": }`,
		"bad.toml":  "addr=:8080\nmodel_path\n",
		"type.yaml": "top_k: many\n",
	}
	for name, body := range bad {
		if _, err := Load(writeTempFile(t, d, name, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.Addr != ":8080" || c.Backend != BackendLlama || c.ContextSize != 2048 || c.BatchSize != 8 {
		t.Fatalf("defaults: %+v", c)
	}
	if c.TopK != 40 || c.TopP != 0.95 || c.RepeatPenalty != 1.30 || *c.Temperature != 0.80 || c.RepeatLastN != 64 {
		t.Fatalf("sampling defaults: %+v", c)
	}
	if c.Threads != runtime.NumCPU() || c.NumPredict != 0 || c.PollIntervalMs != 0 || c.MaxBodyBytes != 1<<20 {
		t.Fatalf("runtime defaults: %+v", c)
	}
	zero := float32(0)
	c = Config{Temperature: &zero, TopK: 3}
	c.ApplyDefaults()
	if *c.Temperature != 0 || c.TopK != 3 {
		t.Fatalf("explicit values overwritten: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	d := t.TempDir()
	model := writeTempFile(t, d, "m.json", "{}")
	valid := func() Config {
		c := Config{Backend: BackendToy, ModelPath: model}
		c.ApplyDefaults()
		return c
	}
	c := valid()
	if err := c.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Backend = "gpt" }, "unknown backend"},
		{"no model", func(c *Config) { c.ModelPath = "" }, "model_path is required"},
		{"missing model", func(c *Config) { c.ModelPath = filepath.Join(d, "nope") }, "model_path"},
		{"missing snapshot", func(c *Config) { c.RestorePrompt = filepath.Join(d, "nope.snap") }, "restore_prompt"},
		{"top_p", func(c *Config) { c.TopP = 1.5 }, "top_p"},
		{"negative", func(c *Config) { c.NumPredict = -1 }, "must not be negative"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
