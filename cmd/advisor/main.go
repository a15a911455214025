// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command advisor runs the HLAS insurance assistant service.
//
// Usage:
//
//	advisor serve --config config.yaml
//	advisor serve --config config.yaml --watch
//	advisor validate --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/advisor/pkg/catalog"
	"github.com/kadirpekel/advisor/pkg/config"
	"github.com/kadirpekel/advisor/pkg/embedders"
	"github.com/kadirpekel/advisor/pkg/flow"
	"github.com/kadirpekel/advisor/pkg/guard"
	"github.com/kadirpekel/advisor/pkg/llms"
	"github.com/kadirpekel/advisor/pkg/logger"
	"github.com/kadirpekel/advisor/pkg/prompt"
	"github.com/kadirpekel/advisor/pkg/retrieval"
	"github.com/kadirpekel/advisor/pkg/server"
	"github.com/kadirpekel/advisor/pkg/session"
	"github.com/kadirpekel/advisor/pkg/vector"
	"github.com/kadirpekel/advisor/pkg/whatsapp"
)

const serviceTimezone = "Asia/Singapore"

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the assistant HTTP server."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"config.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("advisor version %s\n", version)
	return nil
}

// ValidateCmd loads and validates the config file without starting the
// server.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.NewLoader(cli.Config).Load()
	if err != nil {
		return err
	}

	products := "built-in"
	if len(cfg.Catalog) > 0 {
		products = fmt.Sprintf("%d from config", len(cfg.Catalog))
	}
	fmt.Printf("%s is valid (listen %s, products: %s)\n", cli.Config, cfg.Server.Addr(), products)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port  int  `help:"Override the configured listen port."`
	Watch bool `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(cli.Config, config.WithOnChange(func(cfg *config.Config) {
		slog.Info("config file changed; connection settings apply on restart")
	}))

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	loc, err := time.LoadLocation(serviceTimezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %s: %w", serviceTimezone, err)
	}

	// Storage and guard backends.
	mongoStore, err := session.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoStore.Close(closeCtx); err != nil {
			slog.Warn("mongo disconnect failed", "error", err)
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}()

	cache := session.NewRedisCache(redisClient, time.Duration(cfg.Session.CacheTTLSeconds)*time.Second)
	guardStore := guard.NewRedisStore(redisClient)
	sessions := session.NewService(mongoStore, cache,
		time.Duration(cfg.Session.IdleThresholdSeconds)*time.Second, loc)

	// Model providers and retrieval.
	provider, err := llms.NewAzureOpenAIProvider(cfg.LLM.Endpoint, cfg.LLM.Deployment, cfg.LLM.APIKey,
		llms.WithAPIVersion(cfg.LLM.APIVersion),
		llms.WithTemperature(cfg.LLM.Temperature),
		llms.WithMaxTokens(cfg.LLM.MaxTokens))
	if err != nil {
		return err
	}

	var runnerOpts []prompt.RunnerOption
	if cfg.LLM.ResponseDeployment != cfg.LLM.Deployment {
		responseProvider, err := llms.NewAzureOpenAIProvider(cfg.LLM.Endpoint, cfg.LLM.ResponseDeployment, cfg.LLM.APIKey,
			llms.WithAPIVersion(cfg.LLM.APIVersion),
			llms.WithTemperature(cfg.LLM.Temperature),
			llms.WithMaxTokens(cfg.LLM.MaxTokens))
		if err != nil {
			return err
		}
		runnerOpts = append(runnerOpts, prompt.WithResponseProvider(responseProvider))
	}
	runner := prompt.NewRunner(provider, runnerOpts...)

	embEndpoint := cfg.Embedder.Endpoint
	if embEndpoint == "" {
		embEndpoint = cfg.LLM.Endpoint
	}
	embKey := cfg.Embedder.APIKey
	if embKey == "" {
		embKey = cfg.LLM.APIKey
	}
	embedder, err := embedders.NewAzureOpenAIEmbedder(embEndpoint, cfg.Embedder.Deployment, embKey,
		embedders.WithAPIVersion(cfg.Embedder.APIVersion))
	if err != nil {
		return err
	}

	weaviate, err := vector.NewWeaviateProvider(cfg.Weaviate)
	if err != nil {
		return err
	}

	retriever := retrieval.New(embedder, weaviate,
		retrieval.WithAlpha(cfg.Retrieval.Alpha),
		retrieval.WithTopK(cfg.Retrieval.TopK, cfg.Retrieval.FallbackTopK))

	cat := catalog.Default()
	if len(cfg.Catalog) > 0 {
		cat = catalog.New(cfg.Catalog)
	}

	engine := flow.NewEngine(runner, retriever, cat, loc)
	locker := guard.NewLocker(guardStore, cfg.Guards.LockTTLSeconds,
		time.Duration(cfg.Guards.LockWaitSeconds)*time.Second)

	var serverOpts []server.Option
	if cfg.WhatsApp.Enabled() {
		sender := whatsapp.NewSender(cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.AccessToken)
		processor := whatsapp.NewProcessor(engine, sessions,
			guard.NewRateLimiter(guardStore, cfg.Guards.RateWindowSeconds, cfg.Guards.RateMaxMessages),
			locker,
			sender)
		handler := whatsapp.NewHandler(cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret, processor,
			guard.NewDeduper(guardStore, cfg.Guards.DedupeTTLSeconds),
			guard.NewOrderGuard(guardStore, cfg.Guards.OrderTTLSeconds),
			loc)
		serverOpts = append(serverOpts, server.WithWhatsApp(handler))
		slog.Info("whatsapp webhook enabled", "phone_number_id", cfg.WhatsApp.PhoneNumberID)
	}

	srv := server.New(cfg.Server.Addr(), engine, sessions, locker, serverOpts...)

	if c.Watch {
		if err := loader.Watch(ctx); err != nil {
			slog.Error("config watch failed", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env files: %v\n", err)
		os.Exit(1)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("advisor"),
		kong.Description("HLAS Insurance Assistant - conversational insurance advisor"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}

	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
