package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fleet-route-planner/internal/domain"
	"fleet-route-planner/internal/platform/obs"
	"fleet-route-planner/internal/ports"
)

// Practical GET URL ceiling for OSRM deployments behind common proxies.
const osrmMaxURLLen = 8000

// OSRMGateway implements the static routing provider over the OSRM
// table and route HTTP APIs. It is safe for concurrent use.
type OSRMGateway struct {
	client     *http.Client
	baseURL    string
	profile    string
	attempts   int
	retryDelay time.Duration
}

type OSRMOption func(*OSRMGateway)

func WithOSRMRetry(attempts int, delay time.Duration) OSRMOption {
	return func(g *OSRMGateway) {
		g.attempts = attempts
		g.retryDelay = delay
	}
}

func WithOSRMTimeout(timeout time.Duration) OSRMOption {
	return func(g *OSRMGateway) { g.client.Timeout = timeout }
}

func NewOSRMGateway(baseURL, profile string, opts ...OSRMOption) *OSRMGateway {
	if profile == "" {
		profile = "driving"
	}
	g := &OSRMGateway{
		client:     &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    profile,
		attempts:   3,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *OSRMGateway) ID() string { return "osrm:" + g.baseURL }

type osrmTableResponse struct {
	Code      string       `json:"code"`
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

// Matrix fetches a distance/duration table. Sources and Destinations,
// when set, index into Locations and select a submatrix.
func (g *OSRMGateway) Matrix(ctx context.Context, req ports.MatrixRequest) (_ ports.MatrixResult, err error) {
	defer obs.Time(ctx, "osrm.Matrix")(&err)

	if len(req.Locations) < 2 {
		return ports.MatrixResult{}, fmt.Errorf("osrm matrix: need at least 2 locations, got %d", len(req.Locations))
	}

	endpoint := fmt.Sprintf("%s/table/v1/%s/%s?annotations=distance,duration",
		g.baseURL, g.profile, coordPath(req.Locations))
	if len(req.Sources) > 0 {
		endpoint += "&sources=" + indexList(req.Sources)
	}
	if len(req.Destinations) > 0 {
		endpoint += "&destinations=" + indexList(req.Destinations)
	}

	if len(endpoint) > osrmMaxURLLen {
		return ports.MatrixResult{}, fmt.Errorf("%w: url length %d", ports.ErrRequestTooLarge, len(endpoint))
	}

	resp, err := doWithRetry(ctx, g.client, g.attempts, g.retryDelay, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return ports.MatrixResult{}, fmt.Errorf("osrm table request: %w", err)
	}
	defer resp.Body.Close()

	var tr osrmTableResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return ports.MatrixResult{}, fmt.Errorf("decode osrm table response: %w", err)
	}
	if tr.Code != "Ok" {
		return ports.MatrixResult{}, fmt.Errorf("%w: osrm code %q", ports.ErrProviderUnavailable, tr.Code)
	}

	rows := len(req.Sources)
	cols := len(req.Destinations)
	if rows == 0 {
		rows = len(req.Locations)
	}
	if cols == 0 {
		cols = len(req.Locations)
	}
	if len(tr.Distances) != rows || len(tr.Durations) != rows {
		return ports.MatrixResult{}, fmt.Errorf("osrm table: expected %d rows, got distances=%d durations=%d",
			rows, len(tr.Distances), len(tr.Durations))
	}

	result := ports.MatrixResult{
		DistancesM:   make([][]int64, rows),
		DurationsSec: make([][]int64, rows),
	}
	missing := 0
	for i := 0; i < rows; i++ {
		if len(tr.Distances[i]) != cols || len(tr.Durations[i]) != cols {
			return ports.MatrixResult{}, fmt.Errorf("osrm table: row %d has %d/%d cells, want %d",
				i, len(tr.Distances[i]), len(tr.Durations[i]), cols)
		}
		result.DistancesM[i] = make([]int64, cols)
		result.DurationsSec[i] = make([]int64, cols)
		for j := 0; j < cols; j++ {
			dist := tr.Distances[i][j]
			dur := tr.Durations[i][j]
			if dist == nil || dur == nil {
				result.DistancesM[i][j] = -1
				result.DurationsSec[i][j] = -1
				missing++
				continue
			}
			// OSRM returns float metrics; round for domain consistency.
			result.DistancesM[i][j] = int64(math.Round(*dist))
			result.DurationsSec[i][j] = int64(math.Round(*dur))
		}
	}

	if missing > 0 {
		return result, &ports.PartialMatrixError{Result: result, Missing: missing}
	}
	return result, nil
}

type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Geometry fetches the road polyline along the waypoints.
func (g *OSRMGateway) Geometry(ctx context.Context, waypoints []domain.Coordinate) (_ []domain.Coordinate, err error) {
	defer obs.Time(ctx, "osrm.Geometry")(&err)

	if len(waypoints) < 2 {
		return nil, fmt.Errorf("osrm route: need at least 2 waypoints, got %d", len(waypoints))
	}

	endpoint := fmt.Sprintf("%s/route/v1/%s/%s?geometries=geojson&overview=full",
		g.baseURL, g.profile, coordPath(waypoints))
	if len(endpoint) > osrmMaxURLLen {
		return nil, fmt.Errorf("%w: url length %d", ports.ErrRequestTooLarge, len(endpoint))
	}

	resp, err := doWithRetry(ctx, g.client, g.attempts, g.retryDelay, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("osrm route request: %w", err)
	}
	defer resp.Body.Close()

	var rr osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode osrm route response: %w", err)
	}
	if rr.Code != "Ok" || len(rr.Routes) == 0 {
		return nil, fmt.Errorf("%w: osrm route code %q", ports.ErrProviderUnavailable, rr.Code)
	}

	line := make([]domain.Coordinate, 0, len(rr.Routes[0].Geometry.Coordinates))
	for _, pair := range rr.Routes[0].Geometry.Coordinates {
		if len(pair) != 2 {
			continue
		}
		line = append(line, domain.Coordinate{Lat: pair[1], Lon: pair[0]})
	}
	return line, nil
}

// coordPath renders the OSRM lon,lat;lon,lat path segment.
func coordPath(locations []domain.Coordinate) string {
	var sb strings.Builder
	for i, c := range locations {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.FormatFloat(c.Lon, 'f', 6, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(c.Lat, 'f', 6, 64))
	}
	return sb.String()
}

func indexList(indices []int) string {
	parts := make([]string, len(indices))
	for i, v := range indices {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ";")
}
