// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/curata"
	"github.com/poiesic/curata/config"
	"github.com/poiesic/curata/core"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "curata",
		Usage: "Hybrid recommendation and search engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{config.PathEnvVar},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Log level (debug, info, warn, error); overrides the config file",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json); overrides the config file",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Hydrate the indexes and serve the HTTP API until interrupted",
				Action: serveCommand,
			},
			{
				Name:   "rebuild",
				Usage:  "Rebuild the persisted vector index from the store",
				Action: rebuildCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Regenerate every item embedding with the configured provider",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of items to embed in each batch",
						Value: 100,
					},
				},
			},
			{
				Name:   "recommend",
				Usage:  "Print recommendations for a user",
				Action: recommendCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "User id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results (0 uses the configured default)",
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Print search results for a text query",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "q",
						Usage:    "Query text",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results (0 uses the configured default)",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Search mode (hybrid, keyword)",
						Value: "hybrid",
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "Load a demo catalog and users",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "per-category",
						Usage: "Number of items to create in each category",
						Value: 25,
					},
					&cli.IntFlag{
						Name:  "users",
						Usage: "Number of users to create",
						Value: 10,
					},
					&cli.Uint64Flag{
						Name:  "seed",
						Usage: "Random seed for popularity and user preferences",
						Value: 42,
					},
				},
			},
		},
	}
}

// setup loads the configuration, applies flag overrides and installs the
// default logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
	if format := c.String("log-format"); format != "" {
		cfg.Log.Format = strings.ToLower(format)
	}

	logger, err := newLogger(c.App.ErrWriter, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	// Map string to slog.Level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be one of text, json", cfg.Format)
	}
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func openEngine(c *cli.Context) (*curata.Engine, error) {
	engine, err := curata.Open(configFrom(c), curata.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

// withEngine runs fn against a started engine and stops it afterwards so the
// vector index is persisted.
func withEngine(c *cli.Context, fn func(ctx context.Context, engine *curata.Engine) error) (err error) {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := c.Context
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() {
		if stopErr := engine.Stop(context.WithoutCancel(ctx)); stopErr != nil && err == nil {
			err = fmt.Errorf("failed to stop engine: %w", stopErr)
		}
	}()

	return fn(ctx, engine)
}

func serveCommand(c *cli.Context) error {
	cfg := configFrom(c)
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := engine.Handler()
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Health checks answer 503 while hydration runs.
	if err := engine.Start(ctx); err != nil {
		shutdownServer(server, cfg.HTTP.ShutdownTimeout)
		return fmt.Errorf("failed to start engine: %w", err)
	}
	slog.Info("ready", "state", engine.State().String())

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			slog.Error("http server failed", "err", err)
		}
	}

	shutdownServer(server, cfg.HTTP.ShutdownTimeout)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.DrainTimeout+cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := engine.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop engine: %w", err)
	}
	return nil
}

func shutdownServer(server *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("error shutting down http server", "err", err)
	}
}

func rebuildCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	start := time.Now()
	if err := engine.Rebuild(c.Context); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Rebuilt %s in %s\n", engine.Config().Index.Path, time.Since(start).Round(time.Millisecond))
	return nil
}

func reembedCommand(c *cli.Context) error {
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	cfg := engine.Config()
	fmt.Fprintf(c.App.ErrWriter, "Store: %s\n", cfg.Store.Path)
	fmt.Fprintf(c.App.ErrWriter, "Embedding provider: %s\n", cfg.Embedding.Provider)
	fmt.Fprintln(c.App.ErrWriter)

	n, err := engine.Reembed(c.Context, batchSize)
	if err != nil {
		return fmt.Errorf("reembed failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Reembedded %d items\n", n)
	return nil
}

func recommendCommand(c *cli.Context) error {
	return withEngine(c, func(ctx context.Context, engine *curata.Engine) error {
		k := resultLimit(c, engine)
		result, err := engine.Service().Recommend(ctx, core.ID(c.Uint64("user")), k)
		if err != nil {
			return err
		}
		printResult(c.App.Writer, result)
		return nil
	})
}

func searchCommand(c *cli.Context) error {
	mode := strings.ToLower(c.String("mode"))
	if mode != "hybrid" && mode != "keyword" {
		return fmt.Errorf("invalid mode %q: must be one of hybrid, keyword", mode)
	}

	return withEngine(c, func(ctx context.Context, engine *curata.Engine) error {
		k := resultLimit(c, engine)
		var (
			result *core.RankedResult
			err    error
		)
		if mode == "keyword" {
			result, err = engine.Service().SearchKeywords(ctx, c.String("q"), k)
		} else {
			result, err = engine.Service().Search(ctx, c.String("q"), k)
		}
		if err != nil {
			return err
		}
		printResult(c.App.Writer, result)
		return nil
	})
}

func resultLimit(c *cli.Context, engine *curata.Engine) int {
	if k := c.Int("k"); k > 0 {
		return k
	}
	return engine.Config().Ranking.DefaultK
}

func printResult(w io.Writer, result *core.RankedResult) {
	fmt.Fprintf(w, "Found %d hits (%d candidates, %d filtered)\n", len(result.Items), result.Candidates, result.FilteredCount)
	for i, hit := range result.Items {
		title, category := "", ""
		if hit.Item != nil {
			title, category = hit.Item.Title, hit.Item.Category.String()
		}
		fmt.Fprintf(w, "%d: '%s' [%s] (%d)[%0.3f sim=%0.3f pop=%0.3f]\n",
			i, title, category, hit.ItemId, hit.FinalScore, hit.Similarity, hit.Popularity)
	}
}

var catalogNouns = map[core.Category][]string{
	core.CategoryElectronics: {"headphones", "speaker", "keyboard", "monitor", "charger", "camera", "router"},
	core.CategoryBooks:       {"novel", "cookbook", "atlas", "anthology", "biography", "field guide", "memoir"},
	core.CategoryHome:        {"lamp", "rug", "kettle", "armchair", "vase", "blanket", "shelf"},
	core.CategoryClothing:    {"jacket", "scarf", "sweater", "boots", "shirt", "raincoat", "hat"},
}

var catalogAdjectives = []string{"compact", "classic", "deluxe", "vintage", "modern", "travel", "everyday", "premium"}

// userIDBase offsets demo user ids from item ids.
const userIDBase = 1_000_000

func seedCommand(c *cli.Context) error {
	perCategory := c.Int("per-category")
	if perCategory <= 0 {
		return fmt.Errorf("per-category must be greater than 0")
	}
	userCount := c.Int("users")
	if userCount < 0 {
		return fmt.Errorf("users must not be negative")
	}
	seed := c.Uint64("seed")

	return withEngine(c, func(ctx context.Context, engine *curata.Engine) error {
		rng := rand.New(rand.NewPCG(seed, seed))
		items := demoCatalog(perCategory, rng)
		users := demoUsers(userCount, engine.Config().Index.Dim, rng)

		stored, err := engine.Ingestion().AddItems(ctx, items...)
		if err != nil {
			return fmt.Errorf("failed to add items: %w", err)
		}
		addedUsers, err := engine.Ingestion().AddUsers(ctx, users...)
		if err != nil {
			return fmt.Errorf("failed to add users: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "Seeded %d items and %d users\n", len(stored), len(addedUsers))
		return nil
	})
}

// demoCatalog returns perCategory items in every category. Items carry no
// embeddings; the ingestion pipeline embeds their text. Ids are derived from
// category and title, so reseeding with the same seed replaces items in place.
func demoCatalog(perCategory int, rng *rand.Rand) []*core.Item {
	items := make([]*core.Item, 0, perCategory*len(core.Categories))
	for _, category := range core.Categories {
		nouns := catalogNouns[category]
		for i := 0; i < perCategory; i++ {
			adjective := catalogAdjectives[rng.IntN(len(catalogAdjectives))]
			noun := nouns[i%len(nouns)]
			title := fmt.Sprintf("%s %s %d", adjective, noun, i+1)
			items = append(items, &core.Item{
				Id:         core.IDFromContent(category.String() + "/" + title),
				Title:      title,
				Category:   category,
				Price:      float32(5+rng.IntN(500)) - 0.01,
				Popularity: float32(rng.IntN(1000)),
			})
		}
	}
	return items
}

// demoUsers returns users preferring one or two random categories.
func demoUsers(count, dim int, rng *rand.Rand) []*core.User {
	users := make([]*core.User, 0, count)
	for i := 0; i < count; i++ {
		prefs := []core.Category{core.Categories[rng.IntN(len(core.Categories))]}
		if rng.IntN(2) == 0 {
			second := core.Categories[rng.IntN(len(core.Categories))]
			if second != prefs[0] {
				prefs = append(prefs, second)
			}
		}
		names := make([]string, len(prefs))
		for j, p := range prefs {
			names[j] = strings.ToLower(p.String())
		}
		users = append(users, &core.User{
			Id:        core.ID(userIDBase + i + 1),
			Name:      fmt.Sprintf("user-%d (%s)", i+1, strings.Join(names, "+")),
			Embedding: core.MixtureEmbedding(prefs, dim, rng),
		})
	}
	return users
}
