// Command proctorctl is the operator CLI for exam sessions: it lists and
// controls live attempts, mints tokens and authors exams from the bank.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/database"
	"github.com/ibrahim-sultan/examPro/internal/logger"
	"github.com/ibrahim-sultan/examPro/internal/scoring"
	"github.com/ibrahim-sultan/examPro/internal/service"
	"github.com/ibrahim-sultan/examPro/internal/shuffle"
	"github.com/ibrahim-sultan/examPro/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "proctorctl",
		Short:         "Operate exam sessions from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	f := root.PersistentFlags()
	f.String("store", "", "Store driver (postgres, sqlite); defaults to STORE_DRIVER")
	f.String("sqlite-path", "", "SQLite database path; defaults to SQLITE_PATH")
	f.String("database-url", "", "PostgreSQL URL; defaults to DATABASE_URL")
	f.String("redis-url", "", "Redis URL; defaults to REDIS_URL")

	root.AddCommand(
		tokenCmd(),
		ongoingCmd(),
		resultCmd(),
		forceSubmitCmd(),
		suspendCmd(),
		questionsCmd(),
		examsCmd(),
	)
	return root
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	flags := cmd.Flags()
	if v, _ := flags.GetString("store"); v != "" {
		cfg.StoreDriver = v
	}
	if v, _ := flags.GetString("sqlite-path"); v != "" {
		cfg.SQLitePath = v
	}
	if v, _ := flags.GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v, _ := flags.GetString("redis-url"); v != "" {
		cfg.RedisURL = v
	}
	return cfg
}

// app holds the wired services for one command invocation.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	stores   *store.Set
	rdb      *redis.Client
	catalog  *service.ExamCatalog
	sessions *service.SessionService
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg := loadConfig(cmd)
	log := logger.New(cmd.ErrOrStderr())
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	}

	ctx := cmd.Context()
	stores, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	policy, err := scoring.ForName(cfg.ScoringPolicy)
	if err != nil {
		stores.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, stores: stores, rdb: rdb}
	a.catalog = service.NewExamCatalog(stores.Exams, stores.Questions, rdb, log)
	opts := []service.SessionOption{service.WithScoringPolicy(policy)}
	if rdb != nil {
		opts = append(opts, service.WithEventSink(service.NewRedisEventSink(rdb, log)))
	}
	a.sessions = service.NewSessionService(stores.Sessions, a.catalog, shuffle.New(), log, opts...)
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	a.stores.Close()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
