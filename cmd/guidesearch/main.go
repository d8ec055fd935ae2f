package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/guidesearch/embedding"
	"github.com/hrygo/guidesearch/index"
	"github.com/hrygo/guidesearch/internal/profile"
	"github.com/hrygo/guidesearch/internal/version"
	"github.com/hrygo/guidesearch/metrics"
	"github.com/hrygo/guidesearch/search"
	"github.com/hrygo/guidesearch/server"
	"github.com/hrygo/guidesearch/source"
	"github.com/hrygo/guidesearch/store"
	"github.com/hrygo/guidesearch/store/db/postgres"
	"github.com/hrygo/guidesearch/tooldispatch"
)

var rootCmd = &cobra.Command{
	Use:   "guidesearch",
	Short: `Semantic search over consultation guides. Index relational guide content into a vector store and query it by meaning.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Only load .env for direct binary execution (not when running as systemd service)
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		exporter := metrics.NewExporter(metrics.DefaultConfig())

		embedder, err := embedding.NewServiceFromProfile(instanceProfile)
		if err != nil {
			slog.Error("failed to create embedding service", "error", err)
			return err
		}

		driver, err := postgres.NewDB(ctx, instanceProfile)
		if err != nil {
			slog.Error("failed to connect document store", "error", err)
			return err
		}
		docStore := store.New(driver, instanceProfile)
		defer docStore.Close()
		if err := docStore.Migrate(ctx, false); err != nil {
			slog.Error("failed to migrate document store", "error", err)
			return err
		}

		engine := search.NewEngine(embedder, docStore, exporter)

		var dispatcher *tooldispatch.Dispatcher
		if instanceProfile.SourceDSN != "" {
			src, err := source.Open(ctx, instanceProfile.Driver, instanceProfile.SourceDSN)
			if err != nil {
				slog.Warn("relational source unavailable, query_source tool disabled", "error", err)
			} else {
				defer src.Close()
				dispatcher = tooldispatch.NewDispatcher(tooldispatch.Config{
					SearchAPIURL: instanceProfile.SearchAPIURL,
					Source:       src,
					RowCap:       instanceProfile.SourceRowCap,
				})
			}
		}

		s := server.NewServer(instanceProfile, engine, dispatcher, exporter)

		c := make(chan os.Signal, 1)
		// The default signal sent by `kill` is SIGTERM, which most process
		// managers (systemd, kubernetes) use to request a graceful shutdown.
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", "error", err)
			return err
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		<-ctx.Done()
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run a full indexing pass: read guides from the relational source, embed, and write documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}
		if instanceProfile.SourceDSN == "" {
			return fmt.Errorf("source DSN required for indexing (set GUIDESEARCH_SOURCE_DSN or --source-dsn)")
		}

		embedder, err := embedding.NewServiceFromProfile(instanceProfile)
		if err != nil {
			return err
		}

		runner := index.NewRunner(instanceProfile, embedder, metrics.NewExporter(metrics.DefaultConfig()))
		summary, err := runner.Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Indexing run %s finished in %s\n", summary.RunID, summary.Duration.Round(time.Millisecond))
		fmt.Printf("  guides aggregated:  %d\n", summary.GuidesAggregated)
		fmt.Printf("  documents indexed:  %d\n", summary.DocumentsIndexed)
		fmt.Printf("  guides skipped:     %d\n", len(summary.Skipped))
		fmt.Printf("  write failures:     %d\n", len(summary.WriteFailures))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a one-off vector search against the indexed guides",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}

		embedder, err := embedding.NewServiceFromProfile(instanceProfile)
		if err != nil {
			return err
		}

		driver, err := postgres.NewDB(cmd.Context(), instanceProfile)
		if err != nil {
			return err
		}
		docStore := store.New(driver, instanceProfile)
		defer docStore.Close()

		engine := search.NewEngine(embedder, docStore, nil)

		k, _ := cmd.Flags().GetInt("k")
		query := strings.Join(args, " ")
		results, err := engine.Search(cmd.Context(), query, search.Options{K: k})
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("no matching guides")
			return nil
		}
		for i, result := range results {
			fmt.Printf("%d. %s (score %.4f, views %d)\n", i+1, result.Document.Name, result.Score, result.Document.BrowseCount)
			fmt.Printf("   %s\n", truncate(result.Document.FullText, 200))
		}
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the document store schema (table, vector index)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}

		recreate, _ := cmd.Flags().GetBool("recreate")

		driver, err := postgres.NewDB(cmd.Context(), instanceProfile)
		if err != nil {
			return err
		}
		docStore := store.New(driver, instanceProfile)
		defer docStore.Close()

		if err := docStore.Migrate(cmd.Context(), recreate); err != nil {
			return err
		}
		fmt.Printf("Schema ready (embedding dimensions: %d, recreate: %v)\n", instanceProfile.EmbeddingDimensions, recreate)
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the relational source and the document store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		if instanceProfile.SourceDSN != "" {
			src, err := source.Open(ctx, instanceProfile.Driver, instanceProfile.SourceDSN)
			if err != nil {
				fmt.Printf("source:     FAILED (%v)\n", err)
			} else {
				defer src.Close()
				fmt.Println("source:     ok")
			}
		} else {
			fmt.Println("source:     skipped (no DSN)")
		}

		driver, err := postgres.NewDB(ctx, instanceProfile)
		if err != nil {
			fmt.Printf("store:      FAILED (%v)\n", err)
			return err
		}
		docStore := store.New(driver, instanceProfile)
		defer docStore.Close()
		count, err := docStore.CountGuideDocuments(ctx)
		if err != nil {
			fmt.Printf("store:      connected, count failed (%v)\n", err)
			return err
		}
		fmt.Printf("store:      ok (%d documents)\n", count)
		return nil
	},
}

func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:      viper.GetString("mode"),
		Addr:      viper.GetString("addr"),
		Port:      viper.GetInt("port"),
		Driver:    viper.GetString("driver"),
		SourceDSN: viper.GetString("source-dsn"),
		StoreDSN:  viper.GetString("store-dsn"),
		Version:   version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "postgres")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("driver", "postgres", "relational source driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("source-dsn", "", "DSN of the relational source holding guide rows")
	rootCmd.PersistentFlags().String("store-dsn", "", "DSN of the postgres document store")

	for _, key := range []string{"mode", "addr", "port", "driver", "source-dsn", "store-dsn"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("guidesearch")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	searchCmd.Flags().Int("k", 5, "number of results to return")
	schemaCmd.Flags().Bool("recreate", false, "drop and recreate the document table (destroys indexed data)")

	rootCmd.AddCommand(indexCmd, searchCmd, schemaCmd, pingCmd)
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("GuideSearch %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}

	fmt.Printf("Source driver: %s\n", profile.Driver)
	fmt.Printf("Embedding: %s/%s (%d dimensions)\n", profile.EmbeddingProvider, profile.EmbeddingModel, profile.EmbeddingDimensions)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
		fmt.Printf("Search API: http://localhost:%d/api/v1/guides/search\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
