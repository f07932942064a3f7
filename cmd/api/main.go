package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-theentity/internal/config"
	"backend-theentity/internal/db"
	"backend-theentity/internal/server"
	"backend-theentity/internal/telemetry"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const serviceName = "backend-theentity"

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	loadBalance     func(string) (config.Balance, error)
	setupTelemetry  func(context.Context, string, string) (func(context.Context) error, error)
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	applySchema     func(context.Context, *pgxpool.Pool) error
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, config.Balance, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		loadBalance:     config.LoadBalance,
		setupTelemetry:  telemetry.Setup,
		connectPostgres: db.ConnectPostgres,
		applySchema: func(ctx context.Context, pg *pgxpool.Pool) error {
			return db.ApplySchema(ctx, pg)
		},
		connectRedis: db.ConnectRedis,
		notify:       signal.Notify,
		run:          Run,
	}
}

func realMain(deps mainDeps) {
	ctx := context.Background()
	cfg := deps.loadConfig()

	balance, err := deps.loadBalance(cfg.BalanceFile)
	if err != nil {
		log.Printf("balance file %q unusable, using defaults: %v", cfg.BalanceFile, err)
		balance = config.DefaultBalance()
	}

	shutdownTelemetry, err := deps.setupTelemetry(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		log.Printf("telemetry setup failed: %v", err)
	}
	if shutdownTelemetry != nil {
		defer func() {
			if err := shutdownTelemetry(ctx); err != nil {
				log.Printf("telemetry shutdown: %v", err)
			}
		}()
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil || pg == nil {
		log.Printf("postgres connection failed, not starting: %v", err)
		return
	}
	if err := deps.applySchema(ctx, pg); err != nil {
		log.Printf("schema migration failed, not starting: %v", err)
		pg.Close()
		return
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(ctx, cfg, balance, pg, rdb, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and the save sweeper, then waits for
// termination signals.
func Run(ctx context.Context, cfg config.Config, balance config.Balance, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, balance, pg, rdb)

	if listen == nil {
		listen = defaultListen
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if pg != nil {
		go srv.Progression.RunSweeper(sweepCtx, cfg.SweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if err := srv.Close(); err != nil {
		log.Printf("stream hub close: %v", err)
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
