package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fleet-route-planner/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
locations:
  depot_location: "42.695785,23.231658"
vehicles:
  - class: internal
    capacity: 385
    count: 7
    enabled: true
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// File values land.
	if len(cfg.Vehicles) != 1 || cfg.Vehicles[0].Capacity != 385 {
		t.Fatalf("vehicles not loaded: %+v", cfg.Vehicles)
	}
	// Defaults survive for untouched sections.
	if cfg.CVRP.TimeLimitSeconds != 30 || cfg.Cache.Backend != "disk" {
		t.Fatalf("defaults lost: %+v", cfg.CVRP)
	}
	if cfg.Matrix.ChunkSize != 80 {
		t.Fatalf("matrix defaults lost: %+v", cfg.Matrix)
	}

	fleet, err := cfg.Fleet()
	if err != nil {
		t.Fatalf("fleet: %v", err)
	}
	// Class defaults fill what the file omitted.
	if fleet[0].ServiceTimeMinutes != 7 || fleet[0].StartTimeMinutes != 480 || fleet[0].MaxTimeHours != 8 {
		t.Fatalf("class defaults not applied: %+v", fleet[0])
	}
	if fleet[0].StartDepot != fleet[0].EffectiveTSPOrigin() {
		t.Fatalf("tsp origin should default to the start depot")
	}
}

// Unknown keys must fail loudly, not silently vanish.
func TestLoadUnknownKeyFails(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"\nextra_section:\n  oops: 1\n"))
	if err == nil {
		t.Fatalf("unknown top-level key must be rejected")
	}

	_, err = Load(writeConfig(t, strings.Replace(minimalConfig,
		"depot_location", "depot_loquation", 1)))
	if err == nil {
		t.Fatalf("misspelled key must be rejected")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []string{
		strings.Replace(minimalConfig, "class: internal", "class: helicopter", 1),
		minimalConfig + "routing:\n  engine: teleport\n",
		minimalConfig + "routing:\n  engine: static\n  departure_time: \"25:99\"\n",
		minimalConfig + "cvrp:\n  solver_type: quantum\n",
		minimalConfig + "cache:\n  backend: floppy\n",
	}
	for i, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestEngineDeparture(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
routing:
  engine: time_dependent
  enable_time_dependent: true
  departure_time: "08:30"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.EngineDeparture(); got != "08:30" {
		t.Fatalf("EngineDeparture = %q, want 08:30", got)
	}

	cfg.Routing.EnableTimeDependent = false
	if got := cfg.EngineDeparture(); got != "" {
		t.Fatalf("static runs must not carry a departure time, got %q", got)
	}
}

func TestVehicleCoordinateOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
locations:
  depot_location: "42.695785,23.231658"
vehicles:
  - class: regional
    capacity: 385
    count: 3
    enabled: true
    start_location: "43.221043,23.534403"
    tsp_origin: "43.221043,23.534403"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	fleet, err := cfg.Fleet()
	if err != nil {
		t.Fatalf("fleet: %v", err)
	}
	want := domain.Coordinate{Lat: 43.221043, Lon: 23.534403}
	if fleet[0].StartDepot != want || fleet[0].TSPOrigin != want {
		t.Fatalf("coordinate overrides not applied: %+v", fleet[0])
	}
}
