package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"fleet-route-planner/internal/domain"
	"fleet-route-planner/internal/platform/obs"
	"fleet-route-planner/internal/ports"
)

// Valhalla rejects oversized sources_to_targets payloads; estimate from
// the location count.
const valhallaMaxLocations = 500

// ValhallaGateway implements the time-dependent routing provider over
// the Valhalla sources_to_targets and route HTTP APIs.
type ValhallaGateway struct {
	client     *http.Client
	baseURL    string
	costing    string
	attempts   int
	retryDelay time.Duration
}

type ValhallaOption func(*ValhallaGateway)

func WithValhallaRetry(attempts int, delay time.Duration) ValhallaOption {
	return func(g *ValhallaGateway) {
		g.attempts = attempts
		g.retryDelay = delay
	}
}

func WithValhallaTimeout(timeout time.Duration) ValhallaOption {
	return func(g *ValhallaGateway) { g.client.Timeout = timeout }
}

func NewValhallaGateway(baseURL, costing string, opts ...ValhallaOption) *ValhallaGateway {
	if costing == "" {
		costing = "auto"
	}
	g := &ValhallaGateway{
		client:     &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		costing:    costing,
		attempts:   3,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *ValhallaGateway) ID() string { return "valhalla:" + g.baseURL }

type valhallaLocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type valhallaMatrixRequest struct {
	Sources  []valhallaLocation `json:"sources"`
	Targets  []valhallaLocation `json:"targets"`
	Costing  string             `json:"costing"`
	DateTime *valhallaDateTime  `json:"date_time,omitempty"`
}

type valhallaDateTime struct {
	// Type 1 = depart_at.
	Type  int    `json:"type"`
	Value string `json:"value"`
}

type valhallaMatrixResponse struct {
	SourcesToTargets [][]*struct {
		DistanceKm float64 `json:"distance"`
		TimeSec    float64 `json:"time"`
	} `json:"sources_to_targets"`
}

// Matrix fetches a sources x targets grid. The departure time, when
// present, is sent as a depart_at date_time stamped with today's date.
func (g *ValhallaGateway) Matrix(ctx context.Context, req ports.MatrixRequest) (_ ports.MatrixResult, err error) {
	defer obs.Time(ctx, "valhalla.Matrix")(&err)

	if len(req.Locations) < 2 {
		return ports.MatrixResult{}, fmt.Errorf("valhalla matrix: need at least 2 locations, got %d", len(req.Locations))
	}

	sources := pickLocations(req.Locations, req.Sources)
	targets := pickLocations(req.Locations, req.Destinations)
	if len(sources)+len(targets) > valhallaMaxLocations {
		return ports.MatrixResult{}, fmt.Errorf("%w: %d locations", ports.ErrRequestTooLarge, len(sources)+len(targets))
	}

	body := valhallaMatrixRequest{
		Sources: toValhallaLocations(sources),
		Targets: toValhallaLocations(targets),
		Costing: g.costing,
	}
	if req.DepartureTime != "" {
		body.DateTime = &valhallaDateTime{
			Type:  1,
			Value: time.Now().Format("2006-01-02") + "T" + req.DepartureTime,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ports.MatrixResult{}, fmt.Errorf("marshal valhalla matrix request: %w", err)
	}

	endpoint := g.baseURL + "/sources_to_targets"
	resp, err := doWithRetry(ctx, g.client, g.attempts, g.retryDelay, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	})
	if err != nil {
		return ports.MatrixResult{}, fmt.Errorf("valhalla matrix request: %w", err)
	}
	defer resp.Body.Close()

	var mr valhallaMatrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return ports.MatrixResult{}, fmt.Errorf("decode valhalla matrix response: %w", err)
	}
	if len(mr.SourcesToTargets) != len(sources) {
		return ports.MatrixResult{}, fmt.Errorf("valhalla matrix: expected %d rows, got %d",
			len(sources), len(mr.SourcesToTargets))
	}

	result := ports.MatrixResult{
		DistancesM:   make([][]int64, len(sources)),
		DurationsSec: make([][]int64, len(sources)),
	}
	missing := 0
	for i, row := range mr.SourcesToTargets {
		if len(row) != len(targets) {
			return ports.MatrixResult{}, fmt.Errorf("valhalla matrix: row %d has %d cells, want %d",
				i, len(row), len(targets))
		}
		result.DistancesM[i] = make([]int64, len(targets))
		result.DurationsSec[i] = make([]int64, len(targets))
		for j, cell := range row {
			if cell == nil {
				result.DistancesM[i][j] = -1
				result.DurationsSec[i][j] = -1
				missing++
				continue
			}
			// Valhalla reports kilometers; seconds come through as-is.
			result.DistancesM[i][j] = int64(math.Round(cell.DistanceKm * 1000))
			result.DurationsSec[i][j] = int64(math.Round(cell.TimeSec))
		}
	}

	if missing > 0 {
		return result, &ports.PartialMatrixError{Result: result, Missing: missing}
	}
	return result, nil
}

type valhallaRouteResponse struct {
	Trip struct {
		Legs []struct {
			Shape string `json:"shape"`
		} `json:"legs"`
	} `json:"trip"`
}

// Geometry fetches the route polyline. Valhalla encodes shapes as
// precision-6 polylines.
func (g *ValhallaGateway) Geometry(ctx context.Context, waypoints []domain.Coordinate) (_ []domain.Coordinate, err error) {
	defer obs.Time(ctx, "valhalla.Geometry")(&err)

	if len(waypoints) < 2 {
		return nil, fmt.Errorf("valhalla route: need at least 2 waypoints, got %d", len(waypoints))
	}

	body := map[string]any{
		"locations": toValhallaLocations(waypoints),
		"costing":   g.costing,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal valhalla route request: %w", err)
	}

	endpoint := g.baseURL + "/route"
	resp, err := doWithRetry(ctx, g.client, g.attempts, g.retryDelay, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("valhalla route request: %w", err)
	}
	defer resp.Body.Close()

	var rr valhallaRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode valhalla route response: %w", err)
	}
	if len(rr.Trip.Legs) == 0 {
		return nil, fmt.Errorf("%w: valhalla route returned no legs", ports.ErrProviderUnavailable)
	}

	var line []domain.Coordinate
	for _, leg := range rr.Trip.Legs {
		line = append(line, decodePolyline6(leg.Shape)...)
	}
	return line, nil
}

func pickLocations(all []domain.Coordinate, indices []int) []domain.Coordinate {
	if len(indices) == 0 {
		return all
	}
	out := make([]domain.Coordinate, len(indices))
	for i, idx := range indices {
		out[i] = all[idx]
	}
	return out
}

func toValhallaLocations(coords []domain.Coordinate) []valhallaLocation {
	out := make([]valhallaLocation, len(coords))
	for i, c := range coords {
		out[i] = valhallaLocation{Lat: c.Lat, Lon: c.Lon}
	}
	return out
}

// decodePolyline6 decodes a Valhalla shape string (polyline algorithm,
// 1e6 precision).
func decodePolyline6(shape string) []domain.Coordinate {
	var coords []domain.Coordinate
	lat, lon := 0, 0
	for i := 0; i < len(shape); {
		var dLat, dLon int
		var ok bool
		dLat, i, ok = decodePolylineValue(shape, i)
		if !ok {
			break
		}
		dLon, i, ok = decodePolylineValue(shape, i)
		if !ok {
			break
		}
		lat += dLat
		lon += dLon
		coords = append(coords, domain.Coordinate{
			Lat: float64(lat) / 1e6,
			Lon: float64(lon) / 1e6,
		})
	}
	return coords
}

func decodePolylineValue(s string, i int) (value, next int, ok bool) {
	result, shift := 0, 0
	for {
		if i >= len(s) {
			return 0, i, false
		}
		b := int(s[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), i, true
	}
	return result >> 1, i, true
}
