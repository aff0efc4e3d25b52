package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/rowgraph/internal/core"
	"github.com/23skdu/rowgraph/internal/health"
	"github.com/23skdu/rowgraph/internal/limiter"
	"github.com/23skdu/rowgraph/internal/logging"
	"github.com/23skdu/rowgraph/internal/server"
	"github.com/23skdu/rowgraph/internal/telemetry"
)

var (
	envFile string
	cfg     Config
	logger  zerolog.Logger

	rootCmd = &cobra.Command{
		Use:   "rowgraph",
		Short: "Graph traversal over relational rows",
		Long: `rowgraph walks relationships stored in database rows (foreign key
columns or edge tables) with BFS, DFS, bidirectional, Dijkstra or A* search,
choosing the strategy from collected graph statistics when none is given.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg, err = LoadConfig(envFile); err != nil {
				return err
			}
			applyFlagOverrides(cmd, &cfg)
			if err := ValidateConfig(&cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, err = logging.NewLogger(logging.Config{
				Format: cfg.LogFormat,
				Level:  cfg.LogLevel,
				Output: os.Stderr,
			})
			return err
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the Arrow Flight traversal server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Run one traversal against the configured source and print it as JSON",
		Args:  cobra.NoArgs,
		RunE:  runQuery,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Collect and print statistics for a relationship",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	listenAddr  string
	metricsAddr string

	rel       relationshipFlags
	start     int64
	goal      int64
	maxDepth  int
	strategy  string
	heuristic string
	columns   []string
	timeout   time.Duration
)

type relationshipFlags struct {
	table, column, idColumn      string
	source, target, weightColumn string
}

func (f *relationshipFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.table, "table", "", "table holding the relationship")
	cmd.Flags().StringVar(&f.column, "column", "", "foreign key column referencing the parent row")
	cmd.Flags().StringVar(&f.idColumn, "id-column", core.DefaultIDColumn, "primary key column for foreign key relationships")
	cmd.Flags().StringVar(&f.source, "source-column", "", "edge table source column")
	cmd.Flags().StringVar(&f.target, "target-column", "", "edge table target column")
	cmd.Flags().StringVar(&f.weightColumn, "weight-column", "", "edge table weight column")
	_ = cmd.MarkFlagRequired("table")
}

// relationship builds a foreign key relationship when --column is given and
// an edge table relationship otherwise.
func (f *relationshipFlags) relationship() core.Relationship {
	if f.column != "" {
		r := core.ForeignKeyColumn(f.table, f.column)
		r.IDColumn = f.idColumn
		return r
	}
	return core.EdgeTableOf(f.table, f.source, f.target, f.weightColumn)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Flight listen address (overrides ROWGRAPH_LISTEN_ADDR)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics", "", "metrics and health address (overrides ROWGRAPH_METRICS_ADDR)")

	rel.register(queryCmd)
	queryCmd.Flags().Int64Var(&start, "start", 0, "start node id")
	queryCmd.Flags().Int64Var(&goal, "goal", 0, "goal node id; omit to return the reachable set")
	queryCmd.Flags().IntVar(&maxDepth, "depth", 6, "maximum traversal depth")
	queryCmd.Flags().StringVar(&strategy, "strategy", "auto", "auto, bfs, dfs, bidirectional, astar or dijkstra")
	queryCmd.Flags().StringVar(&heuristic, "heuristic", "auto", "A* heuristic: auto, depth, density or distance")
	queryCmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to project for the returned rows")
	queryCmd.Flags().DurationVar(&timeout, "timeout", 0, "request timeout (0 uses ROWGRAPH_DEFAULT_TIMEOUT)")
	_ = queryCmd.MarkFlagRequired("start")

	rel.register(statsCmd)
	statsCmd.Flags().Bool("refresh", false, "collect a fresh snapshot")

	rootCmd.AddCommand(serveCmd, queryCmd, statsCmd)
}

func applyFlagOverrides(cmd *cobra.Command, c *Config) {
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		c.ListenAddr = listenAddr
	}
	if f := cmd.Flags().Lookup("metrics"); f != nil && f.Changed {
		c.MetricsAddr = metricsAddr
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	hm := health.NewHealthManager(cfg.Tracing.ServiceVersion, cfg.HealthTimeout, logger, telemetry.Tracer())
	hm.RegisterChecker(health.NewBreakerChecker(a.breaker))
	if a.db != nil {
		hm.RegisterChecker(health.NewDatabaseChecker(a.db, logger, telemetry.Tracer()))
	} else {
		hm.RegisterChecker(health.NewSourceChecker(a.source, parquetRelationship(&cfg), telemetry.Tracer()))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", hm.HTTPHandler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	grpcSrv := server.NewGRPCServer(server.New(a.svc, a.alloc, logger), limiter.NewRateLimiter(cfg.RateLimit))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("address", cfg.MetricsAddr).Msg("starting metrics server")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("address", cfg.ListenAddr).Str("source", a.source.Name()).Msg("rowgraph flight server starting")
		return grpcSrv.Serve(lis)
	})
	if cfg.StatsRefreshInterval > 0 {
		g.Go(func() error {
			a.registry.RunRefresher(gctx, cfg.StatsRefreshInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		grpcSrv.GracefulStop()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(sctx)
	})
	return g.Wait()
}

func runQuery(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	st, err := core.ParseStrategy(strategy)
	if err != nil {
		return err
	}
	h, err := core.ParseHeuristic(heuristic)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	req := &core.TraversalRequest{
		Start:        core.NodeID(start),
		Relationship: rel.relationship(),
		MaxDepth:     maxDepth,
		Strategy:     st,
		Heuristic:    h,
		Timeout:      timeout,
	}
	if cmd.Flags().Changed("goal") {
		req.Goal = core.Goal(core.NodeID(goal))
	}

	res, err := a.svc.Submit(ctx, req)
	if err != nil {
		return err
	}
	out := server.NewTraverseResponse(res)
	if len(columns) > 0 {
		if out.Rows, err = a.svc.Project(ctx, req.Relationship, res, columns); err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	refresh, _ := cmd.Flags().GetBool("refresh")
	get := a.svc.Statistics
	if refresh {
		get = a.svc.RefreshStatistics
	}
	snap, err := get(ctx, rel.relationship())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), snap)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
