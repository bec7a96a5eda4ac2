package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"gallery/internal/infra"
	"gallery/internal/infra/credentials"
)

var envKeys = map[string]string{
	credentials.ProviderReplicate: "REPLICATE_API_TOKEN",
	credentials.ProviderOpenAI:    "OPENAI_API_KEY",
	credentials.ProviderGemini:    "GEMINI_API_KEY",
}

func main() {
	_ = godotenv.Load()

	var (
		keyFlag      string
		providerFlag string
		deleteFlag   bool
	)
	flag.StringVar(&keyFlag, "key", "", "API token for the selected provider (falls back to the environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderReplicate, "provider to configure: "+strings.Join(credentials.Providers, ", "))
	flag.BoolVar(&deleteFlag, "delete", false, "remove the stored token so the environment value applies again")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	envKey, ok := envKeys[provider]
	if !ok {
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKey))
	}
	if key == "" && !deleteFlag {
		fmt.Fprintf(os.Stderr, "%s token is required via -key or %s\n", provider, envKey)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "providerkey").With().Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if deleteFlag {
		deleted, err := store.DeleteToken(ctx, provider)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete %s token: %v\n", provider, err)
			os.Exit(1)
		}
		if !deleted {
			fmt.Printf("no stored %s token\n", provider)
			return
		}
		fmt.Printf("%s token deleted\n", provider)
		return
	}

	if err := store.SetToken(ctx, provider, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s token: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s token stored successfully\n", provider)
}
