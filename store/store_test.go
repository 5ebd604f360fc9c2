package store_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"

	"pathwatch/store"
)

func open(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoundTrip(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	if err := s.Insert(ctx, "ISP-A", "1.1.1.1", 2.5, 100); err != nil {
		t.Fatal(err)
	}

	obs, err := s.QueryRange(ctx, "ISP-A", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 {
		t.Fatalf("Expected 1 observation, got %d", len(obs))
	}
	got := obs[0]
	got.ID = 0
	expected := store.Observation{Timestamp: 100, Connection: "ISP-A", Target: "1.1.1.1", Loss: 2.5}
	if got != expected {
		t.Errorf("Round trip mismatch: got %+v want %+v", got, expected)
	}
}

func TestInsertRejectsOutOfRange(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	for _, loss := range []float64{-0.1, 100.1, 150} {
		if err := s.Insert(ctx, "ISP-A", "1.1.1.1", loss, 100); err == nil {
			t.Errorf("Insert accepted out-of-range loss %v", loss)
		}
	}
	obs, err := s.QueryRange(ctx, "ISP-A", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 0 {
		t.Errorf("Out-of-range values were stored: %+v", obs)
	}
}

func TestQueryRangeOrderingAndFilter(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	inserts := []struct {
		ts   int64
		loss float64
	}{
		{300, 3}, {100, 1}, {200, 2}, {50, 9},
	}
	for _, in := range inserts {
		if err := s.Insert(ctx, "ISP-A", "1.1.1.1", in.loss, in.ts); err != nil {
			t.Fatal(err)
		}
	}
	// Another connection must never bleed into ISP-A's results
	if err := s.Insert(ctx, "ISP-B", "1.1.1.1", 50, 150); err != nil {
		t.Fatal(err)
	}

	obs, err := s.QueryRange(ctx, "ISP-A", 100)
	if err != nil {
		t.Fatal(err)
	}
	var stamps []int64
	for _, o := range obs {
		stamps = append(stamps, o.Timestamp)
	}
	if !reflect.DeepEqual(stamps, []int64{100, 200, 300}) {
		t.Errorf("Wrong range or order: %v", stamps)
	}

	// Idempotence: an unmodified store yields identical output
	again, err := s.QueryRange(ctx, "ISP-A", 100)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(obs, again) {
		t.Error("Repeated identical query returned different results")
	}
}

func TestDuplicateTimestampsRetained(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	if err := s.Insert(ctx, "ISP-A", "1.1.1.1", 1, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, "ISP-A", "1.1.1.1", 2, 100); err != nil {
		t.Fatal(err)
	}

	obs, err := s.QueryRange(ctx, "ISP-A", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 2 {
		t.Fatalf("Expected both duplicate-timestamp rows, got %d", len(obs))
	}
	// Store order is insertion order for equal timestamps
	if obs[0].Loss != 1 || obs[1].Loss != 2 {
		t.Errorf("Insertion order lost for duplicate timestamps: %+v", obs)
	}
}

func TestReadTimeRangeFilter(t *testing.T) {
	// Rows written before the range check existed may carry impossible loss
	// values; reads must exclude them even though Insert never produces them.
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Insert(ctx, "ISP-A", "1.1.1.1", 10, 100); err != nil {
		t.Fatal(err)
	}

	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()
	if _, err := raw.Exec(
		`INSERT INTO traceroute_results (timestamp, connection_name, target_ip, packet_loss) VALUES (?, ?, ?, ?)`,
		150, "ISP-A", "1.1.1.1", 250.0); err != nil {
		t.Fatal(err)
	}

	obs, err := s.QueryRange(ctx, "ISP-A", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 || obs[0].Loss != 10 {
		t.Errorf("Legacy out-of-range row leaked into results: %+v", obs)
	}

	avg, ok, err := s.AverageSince(ctx, "ISP-A", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || avg != 10 {
		t.Errorf("Legacy out-of-range row shifted the average: %v", avg)
	}
}

func TestAverageSince(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	if _, ok, err := s.AverageSince(ctx, "ISP-A", 0); err != nil || ok {
		t.Errorf("Empty window should report no data, got ok=%v err=%v", ok, err)
	}

	for i, loss := range []float64{0, 5} {
		if err := s.Insert(ctx, "ISP-A", "1.1.1.1", loss, int64(100+i)); err != nil {
			t.Fatal(err)
		}
	}

	avg, ok, err := s.AverageSince(ctx, "ISP-A", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || avg != 2.5 {
		t.Errorf("Expected average 2.5, got %v ok=%v", avg, ok)
	}

	// Window excludes older samples
	avg, ok, err = s.AverageSince(ctx, "ISP-A", 101)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || avg != 5 {
		t.Errorf("Expected windowed average 5, got %v ok=%v", avg, ok)
	}
}
