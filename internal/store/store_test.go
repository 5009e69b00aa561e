package store

import (
	"database/sql"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/scencast/scencast/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db, zerolog.Nop())
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func sampleForecast() (*models.QuantileTable, *models.ControlConfig) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	table := &models.QuantileTable{
		Levels: []float64{0.1, 0.5, 0.9},
		Values: [][]float64{
			{1, 2, 3},
			{2, 4, 6},
		},
	}
	ctrl := &models.ControlConfig{
		Folds:      []string{"f1", "f2"},
		IssueTimes: []time.Time{t0, t0.Add(time.Hour)},
		LeadTimes:  []time.Duration{time.Hour, 2 * time.Hour},
	}
	return table, ctrl
}

func TestSaveLoadForecast(t *testing.T) {
	store := setupTestStore(t)
	table, ctrl := sampleForecast()

	if err := store.SaveForecast("wind", table, ctrl); err != nil {
		t.Fatalf("SaveForecast: %v", err)
	}

	gotTable, gotCtrl, err := store.LoadForecast("wind")
	if err != nil {
		t.Fatalf("LoadForecast: %v", err)
	}
	if gotTable.Rows() != 2 {
		t.Fatalf("rows = %d, want 2", gotTable.Rows())
	}
	for li, lv := range table.Levels {
		if gotTable.Levels[li] != lv {
			t.Errorf("Levels[%d] = %v, want %v", li, gotTable.Levels[li], lv)
		}
	}
	for i := range table.Values {
		for li := range table.Levels {
			if gotTable.Values[i][li] != table.Values[i][li] {
				t.Errorf("Values[%d][%d] = %v, want %v", i, li, gotTable.Values[i][li], table.Values[i][li])
			}
		}
		if !gotCtrl.IssueTimes[i].Equal(ctrl.IssueTimes[i]) {
			t.Errorf("IssueTimes[%d] = %v, want %v", i, gotCtrl.IssueTimes[i], ctrl.IssueTimes[i])
		}
		if gotCtrl.LeadTimes[i] != ctrl.LeadTimes[i] {
			t.Errorf("LeadTimes[%d] = %v, want %v", i, gotCtrl.LeadTimes[i], ctrl.LeadTimes[i])
		}
		if gotCtrl.Folds[i] != ctrl.Folds[i] {
			t.Errorf("Folds[%d] = %q, want %q", i, gotCtrl.Folds[i], ctrl.Folds[i])
		}
	}
}

func TestSaveForecastReplaces(t *testing.T) {
	store := setupTestStore(t)
	table, ctrl := sampleForecast()

	if err := store.SaveForecast("wind", table, ctrl); err != nil {
		t.Fatalf("SaveForecast: %v", err)
	}
	table.Values[0][0] = 99
	if err := store.SaveForecast("wind", table, ctrl); err != nil {
		t.Fatalf("SaveForecast again: %v", err)
	}

	got, _, err := store.LoadForecast("wind")
	if err != nil {
		t.Fatalf("LoadForecast: %v", err)
	}
	if got.Rows() != 2 {
		t.Errorf("rows = %d, want 2 after replace", got.Rows())
	}
	if got.Values[0][0] != 99 {
		t.Errorf("Values[0][0] = %v, want 99", got.Values[0][0])
	}
}

func TestLoadForecastMissing(t *testing.T) {
	store := setupTestStore(t)
	if _, _, err := store.LoadForecast("nope"); err == nil {
		t.Error("expected error for missing location")
	}
}

func TestActuals(t *testing.T) {
	store := setupTestStore(t)
	_, ctrl := sampleForecast()

	if err := store.UpsertActual("wind", ctrl.IssueTimes[0], ctrl.LeadTimes[0], 2.5); err != nil {
		t.Fatalf("UpsertActual: %v", err)
	}

	got, err := store.LoadActuals("wind", ctrl)
	if err != nil {
		t.Fatalf("LoadActuals: %v", err)
	}
	if got[0] != 2.5 {
		t.Errorf("got[0] = %v, want 2.5", got[0])
	}
	if !math.IsNaN(got[1]) {
		t.Errorf("got[1] = %v, want NaN for missing actual", got[1])
	}
}

func TestScenarioRoundtrip(t *testing.T) {
	store := setupTestStore(t)
	_, ctrl := sampleForecast()

	runID, err := store.CreateRun("spatial", 3, 42)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	set := &models.ScenarioSet{
		Location:   "wind",
		IssueTimes: ctrl.IssueTimes,
		LeadTimes:  ctrl.LeadTimes,
		Samples:    [][]float64{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}},
	}
	if err := store.SaveScenarios(runID, set); err != nil {
		t.Fatalf("SaveScenarios: %v", err)
	}

	got, err := store.LoadScenarios(runID, "wind")
	if err != nil {
		t.Fatalf("LoadScenarios: %v", err)
	}
	if len(got) != 2 || len(got[0]) != 3 {
		t.Fatalf("shape = %dx%d, want 2x3", len(got), len(got[0]))
	}
	if got[1][2] != 0.6 {
		t.Errorf("got[1][2] = %v, want 0.6", got[1][2])
	}
}

func TestReadForecastCSV(t *testing.T) {
	input := strings.Join([]string{
		"fold,issue_time,lead_hours,q0.1,q0.5,q0.9",
		"f1,2026-03-01T00:00:00Z,1,1,2,3",
		"f1,2026-03-01T00:00:00Z,2,2,4,6",
	}, "\n")

	table, ctrl, err := ReadForecastCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadForecastCSV: %v", err)
	}
	if table.Rows() != 2 {
		t.Fatalf("rows = %d, want 2", table.Rows())
	}
	if table.Levels[1] != 0.5 {
		t.Errorf("Levels[1] = %v, want 0.5", table.Levels[1])
	}
	if ctrl.LeadTimes[1] != 2*time.Hour {
		t.Errorf("LeadTimes[1] = %v, want 2h", ctrl.LeadTimes[1])
	}
	if table.Values[1][2] != 6 {
		t.Errorf("Values[1][2] = %v, want 6", table.Values[1][2])
	}
}

func TestReadForecastCSVBadHeader(t *testing.T) {
	if _, _, err := ReadForecastCSV(strings.NewReader("a,b,c\n")); err == nil {
		t.Error("expected error for bad header")
	}
}

func TestWriteScenarioCSV(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	set := &models.ScenarioSet{
		Location:   "wind",
		IssueTimes: []time.Time{t0},
		LeadTimes:  []time.Duration{time.Hour},
		Samples:    [][]float64{{0.25, 0.75}},
	}

	var sb strings.Builder
	if err := WriteScenarioCSV(&sb, set); err != nil {
		t.Fatalf("WriteScenarioCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0] != "issue_time,lead_hours,s1,s2" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2026-03-01T00:00:00Z,1,0.25,0.75" {
		t.Errorf("row = %q", lines[1])
	}
}
