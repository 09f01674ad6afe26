package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "customers.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCSVSourceLoad(t *testing.T) {
	path := writeCSV(t, `id,name,gps,volume
c1,Alpha,"42.70,23.32",10.5
c2,Beta,"42.71 23.33",20
`)

	records, err := NewCSVSource(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].ID != "c1" || records[0].Volume != 10.5 || records[0].GPS != "42.70,23.32" {
		t.Fatalf("first record wrong: %+v", records[0])
	}
}

func TestCSVSourceColumnOrder(t *testing.T) {
	path := writeCSV(t, `volume,GPS,ID,Name
7,"42.70,23.32",x1,Delta
`)

	records, err := NewCSVSource(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if records[0].ID != "x1" || records[0].Volume != 7 {
		t.Fatalf("column mapping wrong: %+v", records[0])
	}
}

func TestCSVSourceMissingColumn(t *testing.T) {
	path := writeCSV(t, "id,name\nc1,NoCoords\n")
	if _, err := NewCSVSource(path).Load(context.Background()); err == nil {
		t.Fatalf("missing gps column must fail")
	}
}

func TestCSVSourceBadVolumePassedThrough(t *testing.T) {
	path := writeCSV(t, `id,name,gps,volume
c1,Alpha,"42.70,23.32",abc
`)

	records, err := NewCSVSource(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Unparseable volumes surface as invalid values for validation to
	// drop, not as a load failure.
	if records[0].Volume >= 0 {
		t.Fatalf("bad volume should be negative sentinel, got %f", records[0].Volume)
	}
}
