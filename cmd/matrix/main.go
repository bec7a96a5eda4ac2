package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"gallery/internal/bootstrap"
	"gallery/internal/infra"
	"gallery/internal/render"
)

func splitFlag(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	_ = godotenv.Load()

	var (
		prompt string
		styles string
		models string
	)
	flag.StringVar(&prompt, "prompt", "", "base prompt shared by every render")
	flag.StringVar(&styles, "styles", "", "comma separated style phrases")
	flag.StringVar(&models, "models", "", "comma separated model keys (default: every registered model)")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.QueueBackend != infra.QueueBackendRedis {
		fmt.Fprintln(os.Stderr, "QUEUE_BACKEND=redis is required so cmd/worker can pick the renders up")
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv, "matrix")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.New(ctx, cfg, &logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build render pipeline: %v\n", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	modelKeys := splitFlag(models)
	if len(modelKeys) == 0 {
		modelKeys = pipeline.Service.ListModels()
	}
	res, err := pipeline.Service.CreateMatrix(ctx, render.MatrixRequest{
		BasePrompt: prompt,
		Styles:     splitFlag(styles),
		Models:     modelKeys,
	})
	if err != nil && res == nil {
		fmt.Fprintf(os.Stderr, "matrix rejected: %v\n", err)
		os.Exit(1)
	}
	for _, job := range res.Jobs {
		fmt.Printf("queued  %s  %-16s %s\n", job.ID, job.ModelKey, job.StylePhrase)
	}
	for _, e := range res.Errors {
		fmt.Printf("skipped %-16s %s: %v\n", e.Model, e.Style, e.Err)
	}
	if len(res.Errors) > 0 || err != nil {
		os.Exit(2)
	}
}
