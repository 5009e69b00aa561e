package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/scencast/scencast/internal/models"
)

// ReadForecastCSV parses a quantile-forecast table with header
// fold,issue_time,lead_hours,q<level>,... (for example q0.1,q0.5,q0.9).
// Issue times are RFC 3339.
func ReadForecastCSV(r io.Reader) (*models.QuantileTable, *models.ControlConfig, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 4 || header[0] != "fold" || header[1] != "issue_time" || header[2] != "lead_hours" {
		return nil, nil, fmt.Errorf("unexpected header %v, want fold,issue_time,lead_hours,q...", header)
	}

	table := &models.QuantileTable{}
	for _, col := range header[3:] {
		if !strings.HasPrefix(col, "q") {
			return nil, nil, fmt.Errorf("quantile column %q does not start with q", col)
		}
		level, err := strconv.ParseFloat(col[1:], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("parse quantile level %q: %w", col, err)
		}
		table.Levels = append(table.Levels, level)
	}

	ctrl := &models.ControlConfig{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}

		issue, err := time.Parse(time.RFC3339, rec[1])
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: parse issue time: %w", line, err)
		}
		leadHours, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: parse lead hours: %w", line, err)
		}

		row := make([]float64, len(table.Levels))
		for i := range row {
			row[i], err = strconv.ParseFloat(rec[3+i], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: parse value %q: %w", line, rec[3+i], err)
			}
		}

		ctrl.Folds = append(ctrl.Folds, rec[0])
		ctrl.IssueTimes = append(ctrl.IssueTimes, issue.UTC())
		ctrl.LeadTimes = append(ctrl.LeadTimes, time.Duration(leadHours*float64(time.Hour)))
		table.Values = append(table.Values, row)
	}

	if err := table.Validate(); err != nil {
		return nil, nil, err
	}
	return table, ctrl, nil
}

// ReadActualsCSV parses observations with header issue_time,lead_hours,value.
type Actual struct {
	Issue time.Time
	Lead  time.Duration
	Value float64
}

func ReadActualsCSV(r io.Reader) ([]Actual, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != 3 || header[0] != "issue_time" || header[1] != "lead_hours" || header[2] != "value" {
		return nil, fmt.Errorf("unexpected header %v, want issue_time,lead_hours,value", header)
	}

	var out []Actual
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		issue, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: parse issue time: %w", line, err)
		}
		leadHours, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse lead hours: %w", line, err)
		}
		value, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse value: %w", line, err)
		}
		out = append(out, Actual{Issue: issue.UTC(), Lead: time.Duration(leadHours * float64(time.Hour)), Value: value})
	}
	return out, nil
}

// WriteScenarioCSV writes one location's scenarios with header
// issue_time,lead_hours,s1,...,sN.
func WriteScenarioCSV(w io.Writer, set *models.ScenarioSet) error {
	cw := csv.NewWriter(w)

	sampleCount := 0
	if len(set.Samples) > 0 {
		sampleCount = len(set.Samples[0])
	}
	header := []string{"issue_time", "lead_hours"}
	for s := 1; s <= sampleCount; s++ {
		header = append(header, "s"+strconv.Itoa(s))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, row := range set.Samples {
		rec := make([]string, 0, len(row)+2)
		rec = append(rec,
			set.IssueTimes[i].UTC().Format(time.RFC3339),
			strconv.FormatFloat(set.LeadTimes[i].Hours(), 'g', -1, 64),
		)
		for _, v := range row {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
