// Package main is the entry point for the query engine CLI.
// Replaces the teacher's cmd/conduit and cmd/conduit-daemon binaries
// with a single binary exposing serve/ask/config subcommands (the
// version is printed via --version), in the same cobra root +
// subcommand idiom.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hybridrag/queryengine/internal/adapter/embedding"
	"github.com/hybridrag/queryengine/internal/adapter/lexicalindex"
	"github.com/hybridrag/queryengine/internal/adapter/llm"
	"github.com/hybridrag/queryengine/internal/adapter/vectorindex"
	"github.com/hybridrag/queryengine/internal/adapter/websearch"
	"github.com/hybridrag/queryengine/internal/config"
	"github.com/hybridrag/queryengine/internal/observability"
	"github.com/hybridrag/queryengine/internal/query/agentic"
	"github.com/hybridrag/queryengine/internal/query/cache"
	"github.com/hybridrag/queryengine/internal/query/coordinator"
	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/ports"
	"github.com/hybridrag/queryengine/internal/query/retrieval"
	"github.com/hybridrag/queryengine/internal/query/router"
	"github.com/hybridrag/queryengine/internal/query/speculative"
	"github.com/hybridrag/queryengine/internal/ratelimit"
	"github.com/hybridrag/queryengine/internal/session"
	transporthttp "github.com/hybridrag/queryengine/internal/transport/http"
)

var (
	// Version is set at build time.
	Version = "dev"
	// BuildTime is set at build time.
	BuildTime = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "queryengine",
		Short:   "Hybrid retrieval-augmented query engine",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildRouter wires every adapter and core component together from
// configuration. Shared by serve and ask.
func buildRouter(cfg *config.Config, logger zerolog.Logger) (*router.Router, func(), error) {
	embed, err := embedding.New(embedding.Config{
		Host:  cfg.AI.Endpoint,
		Model: cfg.AI.EmbeddingModel,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build embedding adapter: %w", err)
	}

	genModel, err := llm.New(llm.Config{
		Host:  cfg.AI.Endpoint,
		Model: cfg.AI.ChatModel,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build llm adapter: %w", err)
	}

	vectors, err := vectorindex.New(vectorindex.Config{Dimension: embed.Dimension()}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build vector index adapter: %w", err)
	}

	var lexical *lexicalindex.Adapter
	var lexicalPort ports.LexicalIndex
	if cfg.Retrieval.LexicalEnabled {
		lexical, err = lexicalindex.Open(cfg.LexicalIndexPath(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open lexical index: %w", err)
		}
		lexicalPort = lexical
	}

	fusion := retrieval.New(embed, vectors, lexicalPort, logger)

	sessionStore, err := session.New(cfg.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}

	responseCache := cache.New(cache.Config{
		LocalSize: cfg.Cache.MaxEntries,
		Semantic: cache.SemanticIndexConfig{
			ExactThreshold: cfg.Cache.SemanticSimilarityThreshold,
			NearThreshold:  cfg.Cache.SemanticNearThreshold,
		},
		SemanticOn: true,
	}, nil, logger)

	spec := speculative.New(fusion, genModel, sessionStore, responseCache, embed, logger)
	agent := agentic.New(fusion, genModel, websearch.Disabled{}, logger)
	coord := coordinator.New(logger)
	limiter := ratelimit.New(ratelimit.Config{
		Limit:  cfg.RateLimit.PerMinute,
		Window: time.Minute,
	})

	r := router.New(spec, agent, coord, limiter, logger)

	cleanup := func() {
		sessionStore.Close()
		if lexical != nil {
			lexical.Close()
		}
	}
	return r, cleanup, nil
}

func loadConfigAndLogger(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("ensure directories: %w", err)
	}

	observability.SetupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	logger := observability.Logger("queryengine")
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the query engine as an HTTP/SSE server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.API.Addr = addr
			}

			r, cleanup, err := buildRouter(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := transporthttp.NewServer(r, logger)
			httpSrv := &http.Server{
				Addr:         cfg.API.Addr,
				Handler:      srv.Routes(),
				ReadTimeout:  cfg.API.ReadTimeout,
				WriteTimeout: cfg.API.WriteTimeout,
				IdleTimeout:  cfg.API.IdleTimeout,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.API.Addr).Msg("serving")
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default: config api.addr)")
	return cmd
}

func askCmd() *cobra.Command {
	var mode, sessionID string
	var topK int

	cmd := &cobra.Command{
		Use:   "ask [query text]",
		Short: "Run a single query and print its response chunks as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger(cmd)
			if err != nil {
				return err
			}

			r, cleanup, err := buildRouter(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			q := model.Query{
				Text:      args[0],
				SessionID: sessionID,
				Mode:      model.QueryMode(mode),
				TopK:      topK,
			}

			chunks := r.ProcessQuery(context.Background(), q, "cli")
			enc := json.NewEncoder(os.Stdout)
			for chunk := range chunks {
				if err := enc.Encode(chunk); err != nil {
					return fmt.Errorf("encode chunk: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "auto", "query mode: auto, fast, balanced, deep, web_search")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID for conversational context")
	cmd.Flags().IntVar(&topK, "top-k", 0, "override the mode's default top_k")

	return cmd
}

// configCmd exposes get/set over the on-disk YAML config file, in the
// same read-mutate-write idiom as the teacher's config subcommand.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the on-disk configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a dotted config key's value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readConfigFile()
			if err != nil {
				return err
			}
			v, ok := lookupDotted(values, args[0])
			if !ok {
				return fmt.Errorf("key %q not set", args[0])
			}
			fmt.Println(v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a dotted config key's value and persist it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readConfigFile()
			if err != nil {
				return err
			}
			setDotted(values, args[0], args[1])
			return writeConfigFile(values)
		},
	})

	return cmd
}

func readConfigFile() (map[string]interface{}, error) {
	path := config.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	values := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return values, nil
}

func writeConfigFile(values map[string]interface{}) error {
	path := config.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// lookupDotted walks a dotted path ("api.addr") through nested maps.
func lookupDotted(values map[string]interface{}, key string) (interface{}, bool) {
	parts := strings.Split(key, ".")
	current := interface{}(values)
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setDotted walks/creates nested maps along a dotted path and sets the
// leaf to value.
func setDotted(values map[string]interface{}, key, value string) {
	parts := strings.Split(key, ".")
	current := values
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
