package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/joshdurbin/guarded-shortener/internal/botdetect"
	"github.com/joshdurbin/guarded-shortener/internal/config"
	"github.com/joshdurbin/guarded-shortener/internal/domain"
	"github.com/joshdurbin/guarded-shortener/internal/metrics"
	"github.com/joshdurbin/guarded-shortener/internal/ratelimit"
	"github.com/joshdurbin/guarded-shortener/internal/reconcile"
	"github.com/joshdurbin/guarded-shortener/internal/safety"
	"github.com/joshdurbin/guarded-shortener/internal/service"
	"github.com/joshdurbin/guarded-shortener/internal/shortener"
	"github.com/joshdurbin/guarded-shortener/internal/transport/client"
	httpTransport "github.com/joshdurbin/guarded-shortener/internal/transport/http"
)

var rootCmd = &cobra.Command{
	Use:   "guarded-shortener",
	Short: "A URL shortening service with abuse protection",
	Long:  "A URL shortening service guarded by sliding-window rate limits, bot scoring and URL safety checks, backed by SQLite or Postgres with a memory or Redis transient store",
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the URL shortening server",
	RunE:  runServer,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fold staged clicks and analytics into the database once",
	RunE:  runSync,
}

var blocklistCmd = &cobra.Command{
	Use:   "blocklist",
	Short: "Manage the dynamic domain blocklist",
}

var blocklistAddCmd = &cobra.Command{
	Use:   "add [DOMAIN]",
	Short: "Block a domain and its subdomains",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlocklistAdd,
}

var blocklistRemoveCmd = &cobra.Command{
	Use:   "remove [DOMAIN]",
	Short: "Remove a domain from the blocklist",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlocklistRemove,
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Client commands for interacting with the server",
}

var createCmd = &cobra.Command{
	Use:   "create [URL]",
	Short: "Create a short URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreateURL,
}

var statsCmd = &cobra.Command{
	Use:   "stats [SHORT_CODE]",
	Short: "Show statistics for a short URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show your rate limit usage",
	RunE:  runStatus,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Fetch a form token",
	RunE:  runToken,
}

func init() {
	loadDotEnv()

	defaults := shortener.DefaultConfig()

	// Storage flags shared by server, sync and blocklist
	storage := rootCmd.PersistentFlags()
	storage.String("db-driver", envString("DB_DRIVER", config.DriverSQLite), "Database driver (sqlite|postgres)")
	storage.String("db-dsn", envString("DB_DSN", "urls.db"), "Database file path or Postgres connection string")
	storage.String("cache-backend", envString("CACHE_BACKEND", config.CacheMemory), "Transient store backend (memory|redis)")
	storage.String("redis-addr", envString("REDIS_ADDR", "localhost:6379"), "Redis address")
	storage.String("redis-password", envString("REDIS_PASSWORD", ""), "Redis password")
	storage.Int("redis-db", envInt("REDIS_DB", 0), "Redis database number")
	storage.Duration("store-timeout", envDuration("STORE_TIMEOUT", 2*time.Second), "Timeout for each transient store call")

	// Server command flags
	serverCmd.Flags().StringP("port", "p", envString("PORT", "8080"), "Server port")
	serverCmd.Flags().String("server-url", envString("SERVER_URL", "http://localhost:8080"), "Public base URL used to build short links")
	serverCmd.Flags().Bool("fail-open", envBool("FAIL_OPEN", false), "Admit requests when the transient store is unavailable")
	serverCmd.Flags().Duration("url-ttl", envDuration("URL_TTL", defaults.DefaultTTL), "Lifetime of new short URLs (0 = never expire)")
	serverCmd.Flags().Int("code-length", envInt("CODE_LENGTH", defaults.CodeLength), "Length of generated short codes (6-10)")
	serverCmd.Flags().Duration("sync-interval", envDuration("SYNC_INTERVAL", time.Minute), "Click reconciliation interval (0 = disabled)")
	serverCmd.Flags().BoolP("verbose", "v", envBool("VERBOSE", false), "Enable verbose logging (HTTP requests/responses and error details)")

	blocklistAddCmd.Flags().Duration("ttl", safety.DefaultBlockTTL, "How long the domain stays blocked")

	// Client command flags
	clientCmd.PersistentFlags().StringP("server-url", "u", envString("SERVER_URL", "http://localhost:8080"), "Server URL")
	statusCmd.Flags().String("action", string(domain.ActionCreate), "Action to report (create|click)")

	blocklistCmd.AddCommand(blocklistAddCmd, blocklistRemoveCmd)
	clientCmd.AddCommand(createCmd, statsCmd, statusCmd, tokenCmd)
	rootCmd.AddCommand(serverCmd, syncCmd, blocklistCmd, clientCmd)
}

// loadConfig builds the configuration from flags. Flags a command does not
// define fall back to their environment defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	str := func(name, env, def string) string {
		if flags.Lookup(name) == nil {
			return envString(env, def)
		}
		v, _ := flags.GetString(name)
		return v
	}

	redisDB, _ := flags.GetInt("redis-db")
	storeTimeout, _ := flags.GetDuration("store-timeout")

	shortenerConfig := shortener.DefaultConfig()
	syncInterval := envDuration("SYNC_INTERVAL", time.Minute)
	failOpen := envBool("FAIL_OPEN", false)
	verbose := envBool("VERBOSE", false)
	if flags.Lookup("code-length") != nil {
		shortenerConfig.CodeLength, _ = flags.GetInt("code-length")
		shortenerConfig.DefaultTTL, _ = flags.GetDuration("url-ttl")
		syncInterval, _ = flags.GetDuration("sync-interval")
		failOpen, _ = flags.GetBool("fail-open")
		verbose, _ = flags.GetBool("verbose")
	}

	return config.New(
		config.ServerConfig{
			Port:      str("port", "PORT", "8080"),
			ServerURL: str("server-url", "SERVER_URL", "http://localhost:8080"),
		},
		config.DatabaseConfig{
			Driver: str("db-driver", "DB_DRIVER", config.DriverSQLite),
			DSN:    str("db-dsn", "DB_DSN", "urls.db"),
		},
		config.CacheConfig{
			Backend:       str("cache-backend", "CACHE_BACKEND", config.CacheMemory),
			RedisAddr:     str("redis-addr", "REDIS_ADDR", "localhost:6379"),
			RedisPassword: str("redis-password", "REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
		},
		config.SecurityConfig{
			FailOpen:     failOpen,
			StoreTimeout: storeTimeout,
		},
		config.LoggingConfig{Verbose: verbose},
		shortenerConfig,
		config.SyncConfig{Interval: syncInterval},
	)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	log.Printf("Starting guarded shortener with config: port=%s db=%s cache=%s fail_open=%t",
		cfg.Server.Port, cfg.Database.Driver, cfg.Cache.Backend, cfg.Security.FailOpen)

	repo, err := openRepository(cfg.Database)
	if err != nil {
		return err
	}
	defer closeLogged("repository", repo)

	store, err := openCache(cfg.Cache, cfg.Security.StoreTimeout)
	if err != nil {
		return err
	}
	defer closeLogged("cache", store)

	generator, err := shortener.NewGenerator(cfg.Shortener)
	if err != nil {
		return fmt.Errorf("failed to create shortener generator: %w", err)
	}
	log.Printf("Using %s shortener generator", generator.Type())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewPrometheus(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	if cfg.Sync.Interval > 0 {
		reconciler := reconcile.New(store, repo)
		if err := reconciler.Start(cfg.Sync.Interval); err != nil {
			return fmt.Errorf("failed to start click reconciler: %w", err)
		}
		// Stopped after the guard drains its click queue, so the final pass sees every click
		defer func() {
			if err := reconciler.Stop(); err != nil {
				log.Printf("Error stopping click reconciler: %v", err)
			}
		}()
	}

	guard := service.NewGuard(service.GuardDeps{
		Limiter: ratelimit.New(store,
			ratelimit.WithFailOpen(cfg.Security.FailOpen),
			ratelimit.WithTimeout(cfg.Security.StoreTimeout),
		),
		Scorer:     botdetect.NewScorer(store, botdetect.WithFailOpen(cfg.Security.FailOpen)),
		Classifier: safety.NewClassifier(),
		Blocklist:  safety.NewBlocklist(store),
		Shortener:  service.NewURLShortener(repo, store, generator, cfg.Shortener),
		Metrics:    recorder,
		Checks: []service.HealthCheck{
			{Name: "database", Pinger: repo},
			{Name: "cache", Pinger: store},
		},
		FailOpen: cfg.Security.FailOpen,
	})
	defer closeLogged("guard", guard)

	server := httpTransport.NewServer(guard, metrics.Handler(registry), cfg.Server.Port, cfg.Server.ServerURL, cfg.Logging.Verbose)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}
	}

	log.Println("Server stopped")
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}
	if cfg.Cache.Backend == config.CacheMemory {
		log.Printf("[WARN] The memory cache is private to this process; nothing staged by a server will be found")
	}

	repo, err := openRepository(cfg.Database)
	if err != nil {
		return err
	}
	defer closeLogged("repository", repo)

	store, err := openCache(cfg.Cache, cfg.Security.StoreTimeout)
	if err != nil {
		return err
	}
	defer closeLogged("cache", store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := reconcile.New(store, repo).RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile clicks: %w", err)
	}

	fmt.Printf("Reconciled %d codes: %d clicks, %d analytics events, %d failures\n",
		result.Codes, result.Clicks, result.Events, result.Failed)
	return nil
}

func withBlocklist(cmd *cobra.Command, fn func(ctx context.Context, blocklist *safety.Blocklist) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}
	if cfg.Cache.Backend == config.CacheMemory {
		log.Printf("[WARN] The memory cache is private to this process; use --cache-backend=redis to reach a running server")
	}

	store, err := openCache(cfg.Cache, cfg.Security.StoreTimeout)
	if err != nil {
		return err
	}
	defer closeLogged("cache", store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return fn(ctx, safety.NewBlocklist(store))
}

func runBlocklistAdd(cmd *cobra.Command, args []string) error {
	ttl, _ := cmd.Flags().GetDuration("ttl")
	return withBlocklist(cmd, func(ctx context.Context, blocklist *safety.Blocklist) error {
		if err := blocklist.Block(ctx, args[0], ttl); err != nil {
			return err
		}
		fmt.Printf("Blocked '%s' for %s\n", args[0], ttl)
		return nil
	})
}

func runBlocklistRemove(cmd *cobra.Command, args []string) error {
	return withBlocklist(cmd, func(ctx context.Context, blocklist *safety.Blocklist) error {
		if err := blocklist.Unblock(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Unblocked '%s'\n", args[0])
		return nil
	})
}

func newCommands(cmd *cobra.Command) *client.Commands {
	serverURL, _ := cmd.Flags().GetString("server-url")
	return client.NewCommands(client.NewClient(serverURL))
}

func runCreateURL(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return newCommands(cmd).Create(ctx, args[0])
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return newCommands(cmd).Stats(ctx, args[0])
}

func runStatus(cmd *cobra.Command, args []string) error {
	action, _ := cmd.Flags().GetString("action")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return newCommands(cmd).Status(ctx, domain.Action(action))
}

func runToken(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return newCommands(cmd).Token(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
