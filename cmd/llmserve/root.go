package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"llmserve/internal/config"
	"llmserve/internal/scheduler"
)

// newRootCmd builds the command tree. The root command serves.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "llmserve",
		Short:         "Serialized LLM inference over a single loaded model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	pf := root.PersistentFlags()
	pf.String("config", os.Getenv("LLMSERVE_CONFIG"), "Config file (.yaml, .yml, .json or .toml)")
	pf.String("backend", "", "Inference backend: llama|toy (default llama)")
	pf.String("model", "", "Path to the model file")
	pf.Int("threads", 0, "Threads used for inference (default NumCPU)")
	pf.Int("context-size", 0, "Context size in tokens (default 2048)")
	pf.Bool("float16", false, "Use f16 key/value memory")
	pf.Int("batch-size", 0, "Prompt tokens evaluated per batch (default 8)")
	pf.String("log-level", "", "Log level: debug|info|warn|error (default info)")
	pf.String("log-format", "", "Log format: console|json (default console)")

	addServeFlags(root.Flags())
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Load the model and serve /infer",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addServeFlags(serve.Flags())
	root.AddCommand(serve, newSnapshotCmd())
	return root
}

func addServeFlags(f *pflag.FlagSet) {
	f.String("addr", "", "HTTP listen address (default :8080)")
	f.Int("top-k", 0, "Default top-k (default 40)")
	f.Float32("top-p", 0, "Default top-p (default 0.95)")
	f.Float32("repeat-penalty", 0, "Default repeat penalty (default 1.30)")
	f.Float32("temperature", 0, "Default temperature; 0 is greedy (default 0.80)")
	f.Int("repeat-last-n", 0, "Tokens considered by the repeat penalty (default 64)")
	f.Int("num-predict", 0, "Default max tokens per request; 0 is unlimited")
	f.Int64("seed", 0, "Sampling seed; 0 picks a random seed per request")
	f.String("restore-prompt", "", "Snapshot every request starts from")
	f.Int("poll-interval-ms", 0, "Poll the request channel at this interval instead of blocking")
	f.Int64("infer-timeout-seconds", 0, "Per-request timeout on /infer; 0 disables")
	f.Int64("max-body-bytes", 0, "Maximum /infer body size (default 1 MiB)")
	f.Bool("cors", false, "Enable CORS")
	f.String("cors-origins", "", "Comma-separated allowed CORS origins")
}

// loadConfig reads the config file, if any, and lets explicitly set flags
// override it. Defaults are applied and the result validated.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	f := cmd.Flags()
	if path, _ := f.GetString("config"); path != "" {
		c, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	set := func(name string, apply func()) {
		if fl := f.Lookup(name); fl != nil && fl.Changed {
			apply()
		}
	}
	set("backend", func() { cfg.Backend, _ = f.GetString("backend") })
	set("model", func() { cfg.ModelPath, _ = f.GetString("model") })
	set("threads", func() { cfg.Threads, _ = f.GetInt("threads") })
	set("context-size", func() { cfg.ContextSize, _ = f.GetInt("context-size") })
	set("float16", func() { cfg.Float16, _ = f.GetBool("float16") })
	set("batch-size", func() { cfg.BatchSize, _ = f.GetInt("batch-size") })
	set("log-level", func() { cfg.LogLevel, _ = f.GetString("log-level") })
	set("log-format", func() { cfg.LogFormat, _ = f.GetString("log-format") })
	set("addr", func() { cfg.Addr, _ = f.GetString("addr") })
	set("top-k", func() { cfg.TopK, _ = f.GetInt("top-k") })
	set("top-p", func() { cfg.TopP, _ = f.GetFloat32("top-p") })
	set("repeat-penalty", func() { cfg.RepeatPenalty, _ = f.GetFloat32("repeat-penalty") })
	set("temperature", func() {
		v, _ := f.GetFloat32("temperature")
		cfg.Temperature = &v
	})
	set("repeat-last-n", func() { cfg.RepeatLastN, _ = f.GetInt("repeat-last-n") })
	set("num-predict", func() { cfg.NumPredict, _ = f.GetInt("num-predict") })
	set("seed", func() { cfg.Seed, _ = f.GetInt64("seed") })
	set("restore-prompt", func() { cfg.RestorePrompt, _ = f.GetString("restore-prompt") })
	set("poll-interval-ms", func() { cfg.PollIntervalMs, _ = f.GetInt("poll-interval-ms") })
	set("infer-timeout-seconds", func() { cfg.InferTimeoutSeconds, _ = f.GetInt64("infer-timeout-seconds") })
	set("max-body-bytes", func() { cfg.MaxBodyBytes, _ = f.GetInt64("max-body-bytes") })
	set("cors", func() { cfg.CORSEnabled, _ = f.GetBool("cors") })
	set("cors-origins", func() {
		v, _ := f.GetString("cors-origins")
		cfg.CORSOrigins = splitCSV(v)
	})

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// schedulerConfig maps the process config onto the scheduler's.
func schedulerConfig(cfg config.Config) scheduler.Config {
	var temp float32
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}
	return scheduler.Config{
		ModelPath:   cfg.ModelPath,
		ContextSize: cfg.ContextSize,
		Defaults: scheduler.Defaults{
			Threads:       cfg.Threads,
			BatchSize:     cfg.BatchSize,
			TopK:          cfg.TopK,
			TopP:          cfg.TopP,
			RepeatPenalty: cfg.RepeatPenalty,
			Temperature:   temp,
			RepeatLastN:   cfg.RepeatLastN,
			NumPredict:    cfg.NumPredict,
		},
		Seed:         cfg.Seed,
		Float16:      cfg.Float16,
		RestorePath:  cfg.RestorePrompt,
		PollInterval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
