package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

func sampleSnapshot() map[string]Record {
	return map[string]Record{
		"AB123": {Available: Available, Reason: "", LastSeen: "2026-08-30 10:00:00 UTC"},
		"CD456": {Available: Unavailable, Reason: "Combination not available", LastSeen: "2026-08-30 10:00:00 UTC"},
		"ZZ999": {Available: Unknown, Reason: "ERROR: timeout", LastSeen: "2026-08-30 10:00:00 UTC"},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "watch_state.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	want := sampleSnapshot()
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestFileStoreSchemaIsBoolOrNull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "watch_state.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := st.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if v := raw["AB123"]["available"]; v != true {
		t.Fatalf("AB123 available = %v, want true", v)
	}
	if v := raw["CD456"]["available"]; v != false {
		t.Fatalf("CD456 available = %v, want false", v)
	}
	if v := raw["ZZ999"]["available"]; v != nil {
		t.Fatalf("ZZ999 available = %v, want null", v)
	}
}

func TestFileStoreMissingLoadsEmpty(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "absent.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got)
	}
}

func TestFileStoreCorruptLoadsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "watch_state.json")
	if err := os.WriteFile(path, []byte("{ not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty snapshot for corrupt file, got %v", got)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "watch_state.db")

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	want := sampleSnapshot()
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Save is wholesale: a second save must drop rows that vanished.
	delete(want, "CD456")
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestAvailabilityJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want Availability
	}{
		{name: "true", raw: "true", want: Available},
		{name: "false", raw: "false", want: Unavailable},
		{name: "null", raw: "null", want: Unknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var a Availability
			if err := json.Unmarshal([]byte(tt.raw), &a); err != nil {
				t.Fatalf("unmarshal %q: %v", tt.raw, err)
			}
			if a != tt.want {
				t.Fatalf("got %v, want %v", a, tt.want)
			}
			b, err := json.Marshal(a)
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != tt.raw {
				t.Fatalf("marshal = %s, want %s", b, tt.raw)
			}
		})
	}

	var a Availability
	if err := json.Unmarshal([]byte(`"yes"`), &a); err == nil {
		t.Fatal("expected error for non-boolean availability")
	}
}
