package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// ExportCSV writes a run's samples as CSV with a t column followed by one
// column per state component.
func (s *Store) ExportCSV(w io.Writer, id string) error {
	samples, err := s.Samples(id)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("storage: run %s has no samples", id)
	}

	cw := csv.NewWriter(w)
	header := []string{"t"}
	for i := range samples[0].Y {
		header = append(header, "y"+strconv.Itoa(i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(header))
	for _, sm := range samples {
		rec[0] = strconv.FormatFloat(sm.T, 'g', -1, 64)
		for i, v := range sm.Y {
			rec[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type exportedRun struct {
	Run     Run      `json:"run"`
	Samples []Sample `json:"samples"`
}

// ExportJSON writes a run's metadata and samples as indented JSON.
func (s *Store) ExportJSON(w io.Writer, id string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	samples, err := s.Samples(id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exportedRun{Run: *run, Samples: samples})
}
