// Package config holds the closed configuration record for a planning
// run. Unknown keys in the YAML file fail loudly at load time.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fleet-route-planner/internal/domain"
)

// Get returns an environment variable or the fallback.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type Config struct {
	Routing   Routing       `yaml:"routing"`
	OSRM      OSRM          `yaml:"osrm"`
	Valhalla  Valhalla      `yaml:"valhalla"`
	Locations Locations     `yaml:"locations"`
	Vehicles  []Vehicle     `yaml:"vehicles"`
	Warehouse Warehouse     `yaml:"warehouse"`
	CVRP      CVRP          `yaml:"cvrp"`
	Cache     Cache         `yaml:"cache"`
	TSP       TSPSection    `yaml:"tsp"`
	Matrix    MatrixSection `yaml:"matrix"`
}

type Routing struct {
	Engine              string `yaml:"engine"` // static | time_dependent
	EnableTimeDependent bool   `yaml:"enable_time_dependent"`
	DepartureTime       string `yaml:"departure_time"` // HH:MM
}

type OSRM struct {
	BaseURL           string `yaml:"base_url"`
	Profile           string `yaml:"profile"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	FallbackToPublic  bool   `yaml:"fallback_to_public"`
	PublicURL         string `yaml:"public_url"`
}

type Valhalla struct {
	BaseURL           string `yaml:"base_url"`
	Costing           string `yaml:"costing"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
}

type Locations struct {
	DepotLocation    string  `yaml:"depot_location"` // "lat,lon"
	CenterLocation   string  `yaml:"center_location"`
	CenterZoneRadius float64 `yaml:"center_zone_radius_km"`

	CityCenterCoords              string  `yaml:"city_center_coords"`
	CityTrafficRadiusKm           float64 `yaml:"city_traffic_radius_km"`
	CityTrafficDurationMultiplier float64 `yaml:"city_traffic_duration_multiplier"`
	EnableCityTrafficAdjustment   bool    `yaml:"enable_city_traffic_adjustment"`

	ExternalBusCenterPenalty     int64   `yaml:"external_bus_center_penalty"`
	InternalBusCenterPenalty     int64   `yaml:"internal_bus_center_penalty"`
	EnableCenterZoneRestrictions bool    `yaml:"enable_center_zone_restrictions"`
	DiscountCenterBus            float64 `yaml:"discount_center_bus"`
}

type Vehicle struct {
	Class              string `yaml:"class"`
	Capacity           int    `yaml:"capacity"`
	Count              int    `yaml:"count"`
	MaxDistanceKm      int    `yaml:"max_distance_km"`
	MaxTimeHours       int    `yaml:"max_time_hours"`
	ServiceTimeMinutes int    `yaml:"service_time_minutes"`
	MaxStops           int    `yaml:"max_customers_per_route"`
	StartTimeMinutes   int    `yaml:"start_time_minutes"`
	Enabled            bool   `yaml:"enabled"`
	StartLocation      string `yaml:"start_location"` // "lat,lon"; empty = depot
	TSPOrigin          string `yaml:"tsp_origin"`     // "lat,lon"; empty = start
}

type Warehouse struct {
	MaxCustomerVolume float64 `yaml:"max_customer_volume"`
	CapacityTolerance float64 `yaml:"capacity_tolerance"`
}

type CVRP struct {
	SolverType               string  `yaml:"solver_type"` // search | alns
	TimeLimitSeconds         int     `yaml:"time_limit_seconds"`
	FirstSolutionStrategy    string  `yaml:"first_solution_strategy"`
	LocalSearchMetaheuristic string  `yaml:"local_search_metaheuristic"`
	LNSTimeLimitSeconds      float64 `yaml:"lns_time_limit_seconds"`
	LNSNumNodes              int     `yaml:"lns_num_nodes"`
	LNSNumArcs               int     `yaml:"lns_num_arcs"`
	SearchLambdaCoefficient  float64 `yaml:"search_lambda_coefficient"`

	AllowCustomerSkipping      bool    `yaml:"allow_customer_skipping"`
	DistancePenaltyDisjunction int64   `yaml:"distance_penalty_disjunction"`
	DropPenaltyBase            int64   `yaml:"drop_penalty_base"`
	DropPenaltyPerVolume       float64 `yaml:"drop_penalty_per_volume"`

	EnableParallelSolving          bool     `yaml:"enable_parallel_solving"`
	NumWorkers                     int      `yaml:"num_workers"` // -1 = cores-1
	ParallelFirstSolutionStrategy  []string `yaml:"parallel_first_solution_strategies"`
	ParallelLocalSearchMetaheurist []string `yaml:"parallel_local_search_metaheuristics"`

	EnableFinalDepotReconfiguration bool `yaml:"enable_final_depot_reconfiguration"`
}

type Cache struct {
	Enabled    bool   `yaml:"enabled"`
	Backend    string `yaml:"backend"` // disk | sqlite | postgres | redis
	Directory  string `yaml:"directory"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	SqlitePath string `yaml:"sqlite_path"`
	RedisAddr  string `yaml:"redis_addr"`
	// DatabaseURL for the postgres backend comes from the environment
	// (DATABASE_URL), never from the file.
}

type TSPSection struct {
	BudgetSeconds float64 `yaml:"budget_seconds"`
}

type MatrixSection struct {
	SingleRequestMax int `yaml:"single_request_max"`
	TiledMax         int `yaml:"tiled_max"`
	ChunkSize        int `yaml:"chunk_size"`
	Workers          int `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Routing: Routing{Engine: "static", DepartureTime: "08:00"},
		OSRM: OSRM{
			BaseURL:           "http://localhost:5000",
			Profile:           "driving",
			TimeoutSeconds:    45,
			RetryAttempts:     3,
			RetryDelaySeconds: 1,
			FallbackToPublic:  true,
			PublicURL:         "http://router.project-osrm.org",
		},
		Valhalla: Valhalla{
			BaseURL:           "http://localhost:8002",
			Costing:           "auto",
			TimeoutSeconds:    60,
			RetryAttempts:     3,
			RetryDelaySeconds: 1,
		},
		Locations: Locations{
			CenterZoneRadius:              1.7,
			CityTrafficRadiusKm:           10.0,
			CityTrafficDurationMultiplier: 1.6,
			EnableCityTrafficAdjustment:   true,
			ExternalBusCenterPenalty:      40000,
			InternalBusCenterPenalty:      40000,
			EnableCenterZoneRestrictions:  true,
			DiscountCenterBus:             0.5,
		},
		Warehouse: Warehouse{MaxCustomerVolume: 120, CapacityTolerance: 1.0},
		CVRP: CVRP{
			SolverType:                 "search",
			TimeLimitSeconds:           30,
			FirstSolutionStrategy:      "PARALLEL_CHEAPEST_INSERTION",
			LocalSearchMetaheuristic:   "GUIDED_LOCAL_SEARCH",
			LNSTimeLimitSeconds:        15,
			LNSNumNodes:                120,
			LNSNumArcs:                 110,
			SearchLambdaCoefficient:    0.8,
			AllowCustomerSkipping:      true,
			DistancePenaltyDisjunction: 45000,
			NumWorkers:                 -1,
			ParallelFirstSolutionStrategy: []string{
				"PARALLEL_CHEAPEST_INSERTION", "SAVINGS", "PARALLEL_CHEAPEST_INSERTION",
				"PATH_CHEAPEST_ARC", "SAVINGS", "PARALLEL_CHEAPEST_INSERTION",
			},
			ParallelLocalSearchMetaheurist: []string{
				"GUIDED_LOCAL_SEARCH", "GUIDED_LOCAL_SEARCH", "GUIDED_LOCAL_SEARCH",
				"SIMULATED_ANNEALING", "GUIDED_LOCAL_SEARCH", "TABU_SEARCH",
			},
			EnableFinalDepotReconfiguration: true,
		},
		Cache: Cache{
			Backend:    "disk",
			Directory:  "cache",
			TTLSeconds: 24 * 3600,
		},
		TSP:    TSPSection{BudgetSeconds: 2},
		Matrix: MatrixSection{SingleRequestMax: 30, TiledMax: 500, ChunkSize: 80, Workers: 5},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Routing.Engine {
	case "static", "time_dependent":
	default:
		return fmt.Errorf("routing.engine must be static or time_dependent, got %q", c.Routing.Engine)
	}
	if c.Routing.DepartureTime != "" {
		if _, err := time.Parse("15:04", c.Routing.DepartureTime); err != nil {
			return fmt.Errorf("routing.departure_time %q is not HH:MM", c.Routing.DepartureTime)
		}
	}

	switch c.CVRP.SolverType {
	case "search", "alns", "":
	default:
		return fmt.Errorf("cvrp.solver_type must be search or alns, got %q", c.CVRP.SolverType)
	}

	switch c.Cache.Backend {
	case "disk", "sqlite", "postgres", "redis", "":
	default:
		return fmt.Errorf("cache.backend must be disk, sqlite, postgres or redis, got %q", c.Cache.Backend)
	}

	if c.Locations.DepotLocation == "" {
		return fmt.Errorf("locations.depot_location is required")
	}
	if _, err := c.DepotCoordinate(); err != nil {
		return err
	}
	if c.Locations.CenterLocation != "" {
		if _, err := domain.ParseGPS(c.Locations.CenterLocation); err != nil {
			return fmt.Errorf("locations.center_location: %w", err)
		}
	}
	if c.Locations.CityCenterCoords != "" {
		if _, err := domain.ParseGPS(c.Locations.CityCenterCoords); err != nil {
			return fmt.Errorf("locations.city_center_coords: %w", err)
		}
	}

	for i := range c.Vehicles {
		if _, err := c.FleetSpec(i); err != nil {
			return fmt.Errorf("vehicles[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *Config) DepotCoordinate() (domain.Coordinate, error) {
	coord, err := domain.ParseGPS(c.Locations.DepotLocation)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("locations.depot_location: %w", err)
	}
	return coord, nil
}

// FleetSpec converts one vehicle entry into the domain spec, resolving
// the optional coordinates against the central depot.
func (c *Config) FleetSpec(i int) (domain.VehicleSpec, error) {
	v := c.Vehicles[i]

	class, err := domain.ParseVehicleClass(v.Class)
	if err != nil {
		return domain.VehicleSpec{}, err
	}

	depot, err := c.DepotCoordinate()
	if err != nil {
		return domain.VehicleSpec{}, err
	}
	start := depot
	if v.StartLocation != "" {
		if start, err = domain.ParseGPS(v.StartLocation); err != nil {
			return domain.VehicleSpec{}, fmt.Errorf("start_location: %w", err)
		}
	}
	origin := start
	if v.TSPOrigin != "" {
		if origin, err = domain.ParseGPS(v.TSPOrigin); err != nil {
			return domain.VehicleSpec{}, fmt.Errorf("tsp_origin: %w", err)
		}
	}

	maxTime := v.MaxTimeHours
	if maxTime <= 0 {
		maxTime = 8
	}
	service := v.ServiceTimeMinutes
	if service <= 0 {
		service = defaultServiceMinutes(class)
	}
	startMin := v.StartTimeMinutes
	if startMin <= 0 {
		startMin = defaultStartMinute(class)
	}

	spec := domain.VehicleSpec{
		Class:              class,
		Capacity:           v.Capacity,
		Count:              v.Count,
		MaxDistanceKm:      v.MaxDistanceKm,
		MaxTimeHours:       maxTime,
		ServiceTimeMinutes: service,
		MaxStops:           v.MaxStops,
		StartTimeMinutes:   startMin,
		Enabled:            v.Enabled,
		StartDepot:         start,
		TSPOrigin:          origin,
	}
	if err := spec.Validate(); err != nil {
		return domain.VehicleSpec{}, err
	}
	return spec, nil
}

// Fleet converts all vehicle entries.
func (c *Config) Fleet() (domain.Fleet, error) {
	fleet := make(domain.Fleet, 0, len(c.Vehicles))
	for i := range c.Vehicles {
		spec, err := c.FleetSpec(i)
		if err != nil {
			return nil, fmt.Errorf("vehicles[%d]: %w", i, err)
		}
		fleet = append(fleet, spec)
	}
	return fleet, nil
}

// Per-class defaults carried by the class itself.
func defaultServiceMinutes(class domain.VehicleClass) int {
	switch class {
	case domain.ClassCenter:
		return 9
	case domain.ClassSpecial:
		return 6
	default:
		return 7
	}
}

func defaultStartMinute(class domain.VehicleClass) int {
	switch class {
	case domain.ClassCenter:
		return 510 // 8:30
	case domain.ClassExternal:
		return 450 // 7:30
	default:
		return 480 // 8:00
	}
}

// TimeDependent reports whether the run should use the time-dependent
// engine with a departure time.
func (c *Config) TimeDependent() bool {
	return c.Routing.Engine == "time_dependent" && c.Routing.EnableTimeDependent
}

// EngineDeparture is the departure time passed to the gateway, empty
// unless time-dependent routing is active.
func (c *Config) EngineDeparture() string {
	if c.TimeDependent() {
		return c.Routing.DepartureTime
	}
	return ""
}

func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Summary renders a short human-readable digest for startup logs.
func (c *Config) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "engine=%s solver=%s vehicles=%d cache=%s",
		c.Routing.Engine, c.CVRP.SolverType, len(c.Vehicles), c.Cache.Backend)
	return sb.String()
}
