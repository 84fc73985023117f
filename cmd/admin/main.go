// Command admin runs one of the batch maintenance jobs — station pruning,
// duplicate detection, or cluster assignment — then exits. It is invoked
// on its own cron schedule outside the scheduler daemon (see
// internal/scheduler for the in-process daily triggers).
//
// Usage:
//
//	admin prune -days 30 -provider holfuy
//	admin duplicates -distance 100
//	admin clusters -min 8 -num 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/couchcryptid/windstation-fabric/internal/cluster"
	"github.com/couchcryptid/windstation-fabric/internal/config"
	"github.com/couchcryptid/windstation-fabric/internal/duplicate"
	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/couchcryptid/windstation-fabric/internal/prune"
	"github.com/couchcryptid/windstation-fabric/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	st, err := store.Connect(connectCtx, cfg.MongoDBURL, mongoDatabaseName(cfg.MongoDBURL), cfg.ConnectTimeout)
	cancel()
	if err != nil {
		logger.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer st.Close(context.Background())

	switch os.Args[1] {
	case "prune":
		runPrune(ctx, st, logger, metrics, os.Args[2:])
	case "duplicates":
		runDuplicates(ctx, st, logger, metrics, cfg, os.Args[2:])
	case "clusters":
		runClusters(ctx, st, logger, metrics, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func runPrune(ctx context.Context, st store.Store, logger *slog.Logger, metrics *observability.Metrics, args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	days := fs.Int("days", 365, "delete stations not seen in this many days")
	provider := fs.String("provider", "", "restrict to this provider code (empty means all)")
	fs.Parse(args)

	job := prune.NewJob(st, logger, metrics, nil)
	n, err := job.DeleteStations(ctx, *days, *provider)
	if err != nil {
		logger.Error("prune failed", "error", err)
		os.Exit(1)
	}
	logger.Info("prune complete", "deleted", n)
}

func runDuplicates(ctx context.Context, st store.Store, logger *slog.Logger, metrics *observability.Metrics, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("duplicates", flag.ExitOnError)
	distance := fs.Int("distance", 100, "clustering distance threshold, in meters")
	fs.Parse(args)

	job := duplicate.NewJob(st, logger, metrics, nil, cfg.PreferredProviders)
	if err := job.FindDuplicates(ctx, *distance); err != nil {
		logger.Error("duplicate detection failed", "error", err)
		os.Exit(1)
	}
	logger.Info("duplicate detection complete")
}

func runClusters(ctx context.Context, st store.Store, logger *slog.Logger, metrics *observability.Metrics, args []string) {
	fs := flag.NewFlagSet("clusters", flag.ExitOnError)
	min := fs.Int("min", 8, "minimum cluster count")
	num := fs.Int("num", 20, "number of geomspace levels between min and the active station count")
	fs.Parse(args)

	job := cluster.NewJob(st, logger, metrics, nil)
	if err := job.SaveClusters(ctx, *min, *num); err != nil {
		logger.Error("cluster assignment failed", "error", err)
		os.Exit(1)
	}
	logger.Info("cluster assignment complete")
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <prune|duplicates|clusters> [flags]")
}

// mongoDatabaseName extracts the database name from the URI path, matching
// cmd/scheduler's convention.
func mongoDatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "winds_mobi"
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "winds_mobi"
	}
	return name
}
