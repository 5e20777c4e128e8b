package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"llmserve/internal/llm"
	"llmserve/internal/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Short:   "Feed a prompt into a fresh session and save it for restore_prompt",
		Example: "  llmserve snapshot --model ggml-model.bin --prompt \"You are a helpful assistant.\" --out primed.snap",
		Args:    cobra.NoArgs,
		RunE:    runSnapshot,
	}
	cmd.Flags().String("prompt", "", "Prompt to prime the session with")
	cmd.Flags().String("out", "", "Snapshot file to write")
	return cmd
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	out, _ := cmd.Flags().GetString("out")
	if prompt == "" || out == "" {
		return errors.New("snapshot requires --prompt and --out")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	sc := schedulerConfig(cfg)

	model, err := loaderFor(cfg.Backend).Load(cfg.ModelPath, llm.LoadParams{
		ContextSize: cfg.ContextSize,
		Threads:     cfg.Threads,
		BatchSize:   cfg.BatchSize,
		Float16:     cfg.Float16,
	}, nil)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer model.Close()

	sess, err := model.StartSession(llm.MemoryFor(sc.Precision()))
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := model.Feed(cmd.Context(), sess, prompt, cfg.BatchSize); err != nil {
		return fmt.Errorf("feed prompt: %w", err)
	}
	snap, err := sess.Snapshot()
	if err != nil {
		return err
	}
	if err := snapshot.Save(out, snap); err != nil {
		return err
	}
	log.Info().Str("path", out).Int("position", snap.Position).Str("precision", snap.Precision).Msg("snapshot written")
	return nil
}
