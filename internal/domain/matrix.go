package domain

// Matrix holds road-network distances (meters) and durations (seconds)
// between every pair of planning locations. Indices 0..D-1 are depots,
// the rest customers. The matrix is built once and read-only afterwards;
// symmetry is not assumed.
type Matrix struct {
	Locations []Coordinate
	Distances [][]int64
	Durations [][]int64

	// DegradedCells counts entries filled from the haversine fallback
	// instead of a road-network provider.
	DegradedCells int

	// TrafficAdjusted marks that the urban-disk duration multiplier has
	// been applied, so a second application is a no-op.
	TrafficAdjusted bool
}

// NewMatrix allocates an n x n matrix with all cells marked unset (-1).
func NewMatrix(locations []Coordinate) *Matrix {
	n := len(locations)
	m := &Matrix{
		Locations: locations,
		Distances: make([][]int64, n),
		Durations: make([][]int64, n),
	}
	for i := 0; i < n; i++ {
		m.Distances[i] = make([]int64, n)
		m.Durations[i] = make([]int64, n)
		for j := 0; j < n; j++ {
			m.Distances[i][j] = -1
			m.Durations[i][j] = -1
		}
	}
	return m
}

func (m *Matrix) Size() int { return len(m.Locations) }

func (m *Matrix) Dist(i, j int) int64 { return m.Distances[i][j] }

func (m *Matrix) Dur(i, j int) int64 { return m.Durations[i][j] }

// Clone returns a deep copy. Used when a transformation must not mutate
// the shared read-only matrix.
func (m *Matrix) Clone() *Matrix {
	out := &Matrix{
		Locations:       append([]Coordinate(nil), m.Locations...),
		Distances:       make([][]int64, len(m.Distances)),
		Durations:       make([][]int64, len(m.Durations)),
		DegradedCells:   m.DegradedCells,
		TrafficAdjusted: m.TrafficAdjusted,
	}
	for i := range m.Distances {
		out.Distances[i] = append([]int64(nil), m.Distances[i]...)
		out.Durations[i] = append([]int64(nil), m.Durations[i]...)
	}
	return out
}
