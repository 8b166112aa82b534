// rinkctl is the operator tool for backing up and restoring the rink
// database outside the running server.
//
//	rinkctl backup --out rink.json.zst
//	rinkctl restore --in rink.json.zst
//
// Both commands read DATABASE_URL unless --database-url is given. With
// SEQUENCE_BACKEND=redis the ticket counter is also read from and restored
// to REDIS_ADDR.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"rinkdesk/backend/internal/backup"
	"rinkdesk/backend/internal/config"
	"rinkdesk/backend/internal/sequence"
	pgstore "rinkdesk/backend/internal/store/postgres"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: rinkctl <backup|restore> [flags]")

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	command, args := args[0], args[1:]

	cfg := config.Load()
	var databaseURL, path, sequenceBackend, redisAddr string
	var timeout time.Duration
	flagSet := pflag.NewFlagSet("rinkctl "+command, pflag.ContinueOnError)
	flagSet.StringVar(&databaseURL, "database-url", cfg.DatabaseURL, "postgres connection string")
	flagSet.StringVar(&sequenceBackend, "sequence-backend", cfg.SequenceBackend, "where the ticket counter lives: repo or redis")
	flagSet.StringVar(&redisAddr, "redis-addr", cfg.RedisAddr, "redis address for the redis sequence backend")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline")

	switch command {
	case "backup":
		flagSet.StringVarP(&path, "out", "o", "", "snapshot file to write")
	case "restore":
		flagSet.StringVarP(&path, "in", "i", "", "snapshot file to read")
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if path == "" {
		return fmt.Errorf("%s: snapshot path is required", command)
	}
	if databaseURL == "" {
		return fmt.Errorf("%s: DATABASE_URL or --database-url is required", command)
	}
	sequenceBackend = strings.ToLower(sequenceBackend)
	switch sequenceBackend {
	case config.SequenceRepo:
	case config.SequenceRedis:
		if redisAddr == "" {
			return fmt.Errorf("%s: REDIS_ADDR or --redis-addr is required with the redis sequence backend", command)
		}
	default:
		return fmt.Errorf("%s: unknown sequence backend %q", command, sequenceBackend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := pgstore.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	var src backup.Source = db
	var dst backup.Target = db
	if sequenceBackend == config.SequenceRedis {
		client := redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		counters := sequence.NewRedisCounter(client, sequence.RedisKeyPrefix)
		src = backup.WithCounterStore(db, counters, sequence.TicketCounter)
		dst = backup.MirrorCounters(db, counters)
	}

	if command == "backup" {
		return runBackup(ctx, src, path, stdout)
	}
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return runRestore(ctx, dst, path, stdout)
}

func runBackup(ctx context.Context, src backup.Source, path string, stdout io.Writer) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	snap, err := backup.Export(ctx, src, file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s: %d tickets, %d sales, %d expenses, %d counters\n",
		path, len(snap.Tickets), len(snap.Sales), len(snap.Expenses), len(snap.Counters))
	return nil
}

func runRestore(ctx context.Context, dst backup.Target, path string, stdout io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stats, err := backup.Import(ctx, dst, file)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	fmt.Fprintf(stdout, "restored %s: %d tickets, %d sales, %d expenses, %d counters (%d skipped)\n",
		path, stats.Tickets, stats.Sales, stats.Expenses, stats.Counters, stats.Skipped)
	return nil
}
