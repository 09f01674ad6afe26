package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"fleet-route-planner/internal/adapters/cache"
	"fleet-route-planner/internal/adapters/ingest"
	"fleet-route-planner/internal/adapters/routing"
	"fleet-route-planner/internal/config"
	"fleet-route-planner/internal/matrix"
	"fleet-route-planner/internal/planner"
	"fleet-route-planner/internal/platform/obs"
	"fleet-route-planner/internal/ports"
)

// Exit codes: 0 success, 2 invalid input, 3 no solution, 4 routing
// provider unavailable with no cache.
const (
	exitOK                  = 0
	exitInvalidInput        = 2
	exitNoSolution          = 3
	exitProviderUnavailable = 4
)

// main is the application composition root. It wires concrete adapters
// (routing gateways, matrix cache backends, CSV ingest) behind ports and
// runs the planning pipeline once.
func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	inputPath := flag.String("input", "data/customers.csv", "path to the customers CSV file")
	outputPath := flag.String("output", "", "write the solution JSON here instead of stdout")
	verbose := flag.Bool("verbose", false, "log per-stage progress")
	flag.Parse()

	obs.RegisterDefault()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("config: %v", err)
		return exitInvalidInput
	}
	log.Printf("config loaded: %s", cfg.Summary())

	ctx := context.Background()

	source := ingest.NewCSVSource(*inputPath)
	records, err := source.Load(ctx)
	if err != nil {
		log.Printf("ingest: %v", err)
		return exitInvalidInput
	}
	customers, err := planner.ValidateRecords(records)
	if err != nil {
		log.Printf("ingest: %v", err)
		return exitInvalidInput
	}
	log.Printf("loaded %d valid customers from %s", len(customers), *inputPath)

	builder, cleanup, err := buildMatrixBuilder(cfg, *verbose)
	if err != nil {
		log.Printf("matrix builder: %v", err)
		return exitInvalidInput
	}
	defer cleanup()

	var reporter ports.ProgressReporter = ports.NopReporter{}
	if *verbose {
		reporter = ports.LogReporter{}
	}

	result, err := planner.New(cfg, builder, reporter).Run(ctx, customers)
	switch {
	case errors.Is(err, planner.ErrInvalidInput):
		log.Printf("planner: %v", err)
		return exitInvalidInput
	case errors.Is(err, ports.ErrProviderUnavailable):
		log.Printf("planner: %v", err)
		return exitProviderUnavailable
	case err != nil:
		log.Printf("planner: %v", err)
		return exitNoSolution
	}

	if err := writeResult(result, *outputPath); err != nil {
		log.Printf("output: %v", err)
		return exitNoSolution
	}
	return exitOK
}

// buildMatrixBuilder assembles the gateway chain and the configured
// cache backend.
func buildMatrixBuilder(cfg *config.Config, verbose bool) (*matrix.Builder, func(), error) {
	cleanup := func() {}

	primary, alternate := buildGateways(cfg)

	builderCfg := matrix.BuilderConfig{
		SingleRequestMax: cfg.Matrix.SingleRequestMax,
		TiledMax:         cfg.Matrix.TiledMax,
		ChunkSize:        cfg.Matrix.ChunkSize,
		Workers:          cfg.Matrix.Workers,
		DepartureTime:    cfg.EngineDeparture(),
		CostingProfile:   cfg.OSRM.Profile,
	}

	opts := []matrix.BuilderOption{}
	if alternate != nil {
		opts = append(opts, matrix.WithAlternateGateway(alternate))
	}
	if verbose {
		opts = append(opts, matrix.WithReporter(ports.LogReporter{}))
	}

	if cfg.Cache.Enabled {
		mc, closeFn, err := buildCacheBackend(cfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, matrix.WithCache(mc))
		cleanup = closeFn
	}

	return matrix.NewBuilder(primary, builderCfg, opts...), cleanup, nil
}

func buildGateways(cfg *config.Config) (primary, alternate ports.RoutingGateway) {
	osrmLocal := routing.NewOSRMGateway(cfg.OSRM.BaseURL, cfg.OSRM.Profile,
		routing.WithOSRMTimeout(time.Duration(cfg.OSRM.TimeoutSeconds)*time.Second),
		routing.WithOSRMRetry(cfg.OSRM.RetryAttempts, time.Duration(cfg.OSRM.RetryDelaySeconds)*time.Second))

	if cfg.Routing.Engine == "time_dependent" {
		valhalla := routing.NewValhallaGateway(cfg.Valhalla.BaseURL, cfg.Valhalla.Costing,
			routing.WithValhallaTimeout(time.Duration(cfg.Valhalla.TimeoutSeconds)*time.Second),
			routing.WithValhallaRetry(cfg.Valhalla.RetryAttempts, time.Duration(cfg.Valhalla.RetryDelaySeconds)*time.Second))
		return valhalla, osrmLocal
	}

	if cfg.OSRM.FallbackToPublic && cfg.OSRM.PublicURL != "" {
		public := routing.NewOSRMGateway(cfg.OSRM.PublicURL, cfg.OSRM.Profile,
			routing.WithOSRMTimeout(time.Duration(cfg.OSRM.TimeoutSeconds)*time.Second))
		return osrmLocal, public
	}
	return osrmLocal, nil
}

func buildCacheBackend(cfg *config.Config) (ports.MatrixCache, func(), error) {
	ttl := cfg.CacheTTL()
	nop := func() {}

	switch cfg.Cache.Backend {
	case "disk", "":
		return cache.NewDiskMatrixCache(cfg.Cache.Directory, ttl), nop, nil

	case "sqlite":
		path := cfg.Cache.SqlitePath
		if path == "" {
			path = "cache/matrix.db"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache %s: %w", path, err)
		}
		if err := cache.InitSqliteSchema(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return cache.NewSqliteMatrixCache(db, ttl), func() { db.Close() }, nil

	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if strings.TrimSpace(dsn) == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres cache backend")
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres cache: %w", err)
		}
		if err := cache.InitSQLSchema(context.Background(), db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return cache.NewSQLMatrixCache(db, ttl), func() { db.Close() }, nil

	case "redis":
		addr := cfg.Cache.RedisAddr
		if addr == "" {
			addr = config.Get("REDIS_ADDR", "localhost:6379")
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		return cache.NewRedisMatrixCache(client, ttl), func() { client.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// writeResult renders the run outcome as JSON to the output path or
// stdout.
func writeResult(result *planner.Result, path string) error {
	type routeOut struct {
		Class       string   `json:"class"`
		Unit        int      `json:"unit"`
		Customers   []string `json:"customers"`
		DistanceM   int64    `json:"distance_m"`
		DurationSec int64    `json:"duration_sec"`
		Volume      float64  `json:"volume"`
		StartMinute int      `json:"start_minute"`
	}
	type out struct {
		RunID       string     `json:"run_id"`
		Routes      []routeOut `json:"routes"`
		Dropped     []string   `json:"dropped"`
		Warehouse   []string   `json:"warehouse"`
		Fitness     int64      `json:"fitness"`
		Degraded    bool       `json:"degraded"`
		Utilization float64    `json:"utilization"`
		ElapsedMs   int64      `json:"elapsed_ms"`
	}

	payload := out{
		RunID:       result.RunID,
		Dropped:     result.Solution.Dropped,
		Fitness:     result.Solution.Fitness,
		Degraded:    result.Solution.Degraded,
		Utilization: result.Allocation.Utilization,
		ElapsedMs:   result.Elapsed.Milliseconds(),
	}
	for _, r := range result.Solution.Routes {
		payload.Routes = append(payload.Routes, routeOut{
			Class:       string(r.Class),
			Unit:        r.VehicleUnit,
			Customers:   r.CustomerIDs,
			DistanceM:   r.TotalDistanceM,
			DurationSec: r.TotalDurationSec,
			Volume:      r.TotalVolume,
			StartMinute: r.StartMinute,
		})
	}
	for _, c := range result.Allocation.Warehouse {
		payload.Warehouse = append(payload.Warehouse, c.ID)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal solution: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("solution written to %s", path)
	return nil
}
