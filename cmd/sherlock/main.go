// Command sherlock is the CLI and HTTP surface over the incident RAG
// engine: index building, one-shot queries, health, metrics, and a
// JSON API server.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sherlockai/sherlock"
	"github.com/sherlockai/sherlock/corpus"
)

var (
	configPath string
	jsonLogs   bool
)

func main() {
	root := &cobra.Command{
		Use:   "sherlock",
		Short: "Payment-incident knowledge base with hybrid retrieval",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			handlerOpts := &slog.HandlerOptions{Level: slog.LevelInfo}
			if jsonLogs {
				slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)))
			} else {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, handlerOpts)))
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (JSON)")
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")

	root.AddCommand(buildIndexCmd(), queryCmd(), healthCmd(), metricsCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers: defaults, then config file, then environment.
func loadConfig() (sherlock.Config, error) {
	cfg := sherlock.DefaultConfig()

	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return cfg, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	for env, target := range map[string]*string{
		"SHERLOCK_DB_PATH":        &cfg.DBPath,
		"SHERLOCK_CACHE_DIR":      &cfg.CacheDir,
		"SHERLOCK_REDIS_ADDR":     &cfg.RedisAddr,
		"SHERLOCK_REDIS_PASSWORD": &cfg.RedisPassword,
		"SHERLOCK_CHAT_PROVIDER":  &cfg.Chat.Provider,
		"SHERLOCK_CHAT_MODEL":     &cfg.Chat.Model,
		"SHERLOCK_CHAT_BASE_URL":  &cfg.Chat.BaseURL,
		"SHERLOCK_CHAT_API_KEY":   &cfg.Chat.APIKey,
		"SHERLOCK_EMBED_PROVIDER": &cfg.Embedding.Provider,
		"SHERLOCK_EMBED_MODEL":    &cfg.Embedding.Model,
		"SHERLOCK_EMBED_BASE_URL": &cfg.Embedding.BaseURL,
		"SHERLOCK_EMBED_API_KEY":  &cfg.Embedding.APIKey,
	} {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}

	// Well-known provider keys as a fallback.
	if cfg.Chat.APIKey == "" {
		switch cfg.Chat.Provider {
		case "gemini":
			cfg.Chat.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case "gemini":
			cfg.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	return cfg, nil
}

func openEngine() (sherlock.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return sherlock.New(cfg)
}

func buildIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build-index <issues.json>",
		Short: "Rebuild the lexical and vector indices from an incident JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading incidents: %w", err)
			}
			var incidents []corpus.Incident
			if err := json.Unmarshal(data, &incidents); err != nil {
				return fmt.Errorf("parsing incidents: %w", err)
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.BuildIndices(cmd.Context(), incidents); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d incidents\n", len(incidents))
			return nil
		},
	}
}

func queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <text>",
		Short: "Answer one query and print the response as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			text := args[0]
			for _, a := range args[1:] {
				text += " " + a
			}
			resp, err := engine.ProcessQuery(cmd.Context(), text)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the canned health probe and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()
			return printJSON(cmd, engine.HealthCheck(cmd.Context()))
		},
	}
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()
			return printJSON(cmd, engine.Metrics(cmd.Context()))
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
