package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"fleet-route-planner/internal/ports"
)

// Cache entry binary layout, shared by every backend:
//
//	byte    schema version (bump to invalidate the whole cache on change)
//	uint16  provider id length, then provider id bytes
//	int64   creation unix timestamp (seconds)
//	int32   N
//	N*N     int32 distances, row-major (meters)
//	N*N     int32 durations, row-major (seconds)
//
// All integers are little-endian.
const schemaVersion = 1

func encodeEntry(entry *ports.CachedMatrix) ([]byte, error) {
	n := entry.Size
	if n <= 0 || len(entry.DistancesM) != n || len(entry.DurationsSec) != n {
		return nil, fmt.Errorf("encode cache entry: inconsistent size %d", n)
	}

	var buf bytes.Buffer
	buf.WriteByte(schemaVersion)

	provider := []byte(entry.Provider)
	if len(provider) > 0xffff {
		return nil, fmt.Errorf("encode cache entry: provider id too long (%d bytes)", len(provider))
	}
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], uint16(len(provider)))
	buf.Write(u16[:])
	buf.Write(provider)

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(entry.CreatedAt.Unix()))
	buf.Write(u64[:])

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(n))
	buf.Write(u32[:])

	writeGrid := func(grid [][]int64) error {
		for i := 0; i < n; i++ {
			if len(grid[i]) != n {
				return fmt.Errorf("encode cache entry: row %d has %d cells, want %d", i, len(grid[i]), n)
			}
			for j := 0; j < n; j++ {
				binary.LittleEndian.PutUint32(u32[:], uint32(int32(grid[i][j])))
				buf.Write(u32[:])
			}
		}
		return nil
	}
	if err := writeGrid(entry.DistancesM); err != nil {
		return nil, err
	}
	if err := writeGrid(entry.DurationsSec); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (*ports.CachedMatrix, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated header", ports.ErrCacheCorrupt)
	}
	if version != schemaVersion {
		return nil, fmt.Errorf("%w: schema version %d, want %d", ports.ErrCacheCorrupt, version, schemaVersion)
	}

	var u16 [2]byte
	if _, err := r.Read(u16[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated provider length", ports.ErrCacheCorrupt)
	}
	providerLen := int(binary.LittleEndian.Uint16(u16[:]))
	provider := make([]byte, providerLen)
	if _, err := readFull(r, provider); err != nil {
		return nil, fmt.Errorf("%w: truncated provider id", ports.ErrCacheCorrupt)
	}

	var u64 [8]byte
	if _, err := readFull(r, u64[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated timestamp", ports.ErrCacheCorrupt)
	}
	createdAt := time.Unix(int64(binary.LittleEndian.Uint64(u64[:])), 0)

	var u32 [4]byte
	if _, err := readFull(r, u32[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated size", ports.ErrCacheCorrupt)
	}
	n := int(int32(binary.LittleEndian.Uint32(u32[:])))
	if n <= 0 || n > 1<<16 {
		return nil, fmt.Errorf("%w: implausible size %d", ports.ErrCacheCorrupt, n)
	}

	readGrid := func() ([][]int64, error) {
		grid := make([][]int64, n)
		for i := 0; i < n; i++ {
			grid[i] = make([]int64, n)
			for j := 0; j < n; j++ {
				if _, err := readFull(r, u32[:]); err != nil {
					return nil, fmt.Errorf("%w: truncated grid", ports.ErrCacheCorrupt)
				}
				grid[i][j] = int64(int32(binary.LittleEndian.Uint32(u32[:])))
			}
		}
		return grid, nil
	}

	distances, err := readGrid()
	if err != nil {
		return nil, err
	}
	durations, err := readGrid()
	if err != nil {
		return nil, err
	}

	return &ports.CachedMatrix{
		Provider:     string(provider),
		CreatedAt:    createdAt,
		Size:         n,
		DistancesM:   distances,
		DurationsSec: durations,
	}, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func expired(entry *ports.CachedMatrix, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(entry.CreatedAt) >= ttl
}
