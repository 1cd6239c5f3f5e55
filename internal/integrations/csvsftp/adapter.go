// Package csvsftp adapts CSV bin exports dropped over SFTP into collection
// stops. The expected row format is
// id,lat,lng,weightKg,volumeL,serviceSec,priority with a header line.
package csvsftp

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"binroute/internal/integrations"
	"binroute/internal/vrp"
)

// Adapter reads stop CSV files from a local drop directory (the SFTP
// mount point). One file per plan date, named <date>.csv.
type Adapter struct {
	Dir string
}

func (a Adapter) Name() string { return "csv-sftp" }

func (a Adapter) Authenticate(cfg map[string]any) (integrations.AuthState, error) {
	return integrations.AuthState{Method: "sftp", Token: "keyref://bin-feed"}, nil
}

func (a Adapter) FetchStops(date, cursor string) (integrations.StopBatch, error) {
	f, err := os.Open(filepath.Join(a.Dir, date+".csv"))
	if err != nil {
		return integrations.StopBatch{}, err
	}
	defer func() { _ = f.Close() }()
	stops, err := ParseStops(f)
	if err != nil {
		return integrations.StopBatch{}, err
	}
	return integrations.StopBatch{Stops: stops}, nil
}

func (a Adapter) AckStops(ids []string) error { return nil }

// ParseStops decodes bin rows into stops, skipping the header line.
func ParseStops(r io.Reader) ([]vrp.Stop, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 7
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	var stops []vrp.Stop
	for i, row := range rows {
		if i == 0 && row[0] == "id" {
			continue
		}
		lat, err1 := strconv.ParseFloat(row[1], 64)
		lng, err2 := strconv.ParseFloat(row[2], 64)
		weight, err3 := strconv.ParseFloat(row[3], 64)
		volume, err4 := strconv.ParseFloat(row[4], 64)
		serviceSec, err5 := strconv.Atoi(row[5])
		priority, err6 := strconv.Atoi(row[6])
		for _, err := range []error{err1, err2, err3, err4, err5, err6} {
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		stops = append(stops, vrp.Stop{
			ID:         row[0],
			Location:   vrp.LatLng{Lat: lat, Lng: lng},
			Demand:     vrp.Demand{Weight: weight, Volume: volume},
			ServiceSec: serviceSec,
			Priority:   priority,
		})
	}
	return stops, nil
}
