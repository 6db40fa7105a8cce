// Package csvio loads the three input CSV families (§6) into a
// model.World: vehicles, requests, the dense time matrix and the edge
// adjacency list.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rs/zerolog"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/geo"
	"github.com/kabina-dispatch/kabina/internal/model"
)

// maxPlausibleKPH bounds the haversine-implied speed used to sanity-check
// a request's origin/destination lon/lat against the travel-time matrix;
// csv rows are operator-supplied data, not adversarial input, so a
// violation is logged rather than treated as a fatal input-integrity
// error.
const maxPlausibleKPH = 200.0

type vehicleRow struct {
	ID        int     `csv:"id"`
	StartNode int     `csv:"start_node"`
	Lat       float64 `csv:"lat"`
	Lon       float64 `csv:"lon"`
	Time      int     `csv:"time"`
	Capacity  int     `csv:"capacity"`
}

type requestRow struct {
	ID            int     `csv:"id"`
	OriginNode    int     `csv:"origin_node"`
	OLon          float64 `csv:"o_lon"`
	OLat          float64 `csv:"o_lat"`
	DestNode      int     `csv:"dest_node"`
	DLon          float64 `csv:"d_lon"`
	DLat          float64 `csv:"d_lat"`
	RequestedTime string  `csv:"requested_time"`
}

// LoadVehicles reads vehicles/<VEHICLE_DATA_FILE>, applying VEHICLE_LIMIT
// truncation and the CARSIZE capacity override (§6). Node ids are 1-based
// in the CSV and converted to 0-based here.
func LoadVehicles(cfg *config.Settings) ([]model.Vehicle, error) {
	path := fmt.Sprintf("%s/vehicles/%s", cfg.DataRoot, cfg.VehicleDataFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvio: opening vehicle file: %w", err)
	}
	defer f.Close()

	dec, err := newDecoder(f)
	if err != nil {
		return nil, err
	}

	var out []model.Vehicle
	for {
		var row vehicleRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("csvio: vehicle row: %w", err)
		}
		if cfg.VehicleLimit >= 0 && len(out) >= cfg.VehicleLimit {
			break
		}
		capacity := row.Capacity
		if cfg.CarSize >= 0 {
			capacity = cfg.CarSize
		}
		out = append(out, model.Vehicle{
			ID:       model.VehicleHandle(len(out)),
			Capacity: capacity,
			Position: model.RoadPosition{PrevNode: row.StartNode - 1, Node: row.StartNode - 1, Offset: 0},
			State:    model.Idle,
		})
	}
	return out, nil
}

// parseHMS parses a "(h)h:mm:ss" timestamp into seconds-of-day (§6).
func parseHMS(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("csvio: malformed time %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("csvio: malformed time %q", s)
	}
	if h < 0 || m < 0 || sec < 0 {
		return 0, fmt.Errorf("csvio: negative time component in %q", s)
	}
	return h*3600 + m*60 + sec, nil
}

// LoadRequests reads requests/<REQUEST_DATA_FILE>. IdealTravel and the
// derived windows are computed against net so every Request invariant
// (LatestBoarding >= EntryTime, LatestAlight >= EntryTime+IdealTravel)
// holds by construction.
func LoadRequests(cfg *config.Settings, net *model.Network, log zerolog.Logger) ([]model.Request, error) {
	path := fmt.Sprintf("%s/requests/%s", cfg.DataRoot, cfg.RequestDataFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvio: opening request file: %w", err)
	}
	defer f.Close()

	dec, err := newDecoder(f)
	if err != nil {
		return nil, err
	}

	var out []model.Request
	for {
		var row requestRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("csvio: request row: %w", err)
		}
		entry, err := parseHMS(row.RequestedTime)
		if err != nil {
			return nil, err
		}
		origin := row.OriginNode - 1
		dest := row.DestNode - 1
		ideal := net.TimeBetween(origin, dest)
		checkPlausibleSpeed(log, row.ID, row.OLat, row.OLon, row.DLat, row.DLon, ideal)
		out = append(out, model.NewRequest(
			model.RequestHandle(len(out)), origin, dest, entry, ideal,
			cfg.MaxWaiting, cfg.MaxDetour,
		))
	}
	return out, nil
}

// checkPlausibleSpeed logs a warning when the haversine distance implied by
// a request's lon/lat pair, divided by its matrix-derived ideal travel
// time, exceeds a plausible road speed — a sign the CSV's coordinates and
// node ids disagree.
func checkPlausibleSpeed(log zerolog.Logger, reqID int, oLat, oLon, dLat, dLon float64, idealSec int) {
	if idealSec <= 0 {
		return
	}
	km := geo.KM(oLat, oLon, dLat, dLon)
	kph := km / (float64(idealSec) / 3600.0)
	if kph > maxPlausibleKPH {
		log.Warn().Int("request_id", reqID).Float64("implied_kph", kph).Msg("request lon/lat disagrees with travel-time matrix")
	}
}

// LoadNetwork reads map/<TIMEFILE> (a dense comma-separated integer
// matrix) and map/<EDGECOST_FILE> (origin,dest,length rows, 1-based) into
// a Network.
func LoadNetwork(cfg *config.Settings) (*model.Network, error) {
	timePath := fmt.Sprintf("%s/map/%s", cfg.DataRoot, cfg.TimeFile)
	matrix, err := loadMatrix(timePath)
	if err != nil {
		return nil, err
	}

	edgePath := fmt.Sprintf("%s/map/%s", cfg.DataRoot, cfg.EdgeCostFile)
	adj, err := loadAdjacency(edgePath, len(matrix))
	if err != nil {
		return nil, err
	}

	return &model.Network{
		Time:           matrix,
		Adjacency:      adj,
		PickupDwellSec: 30,
		AlightDwellSec: 30,
	}, nil
}

func loadMatrix(path string) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvio: opening time matrix: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var out [][]int
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("csvio: time matrix row: %w", err)
		}
		row := make([]int, len(rec))
		for i, cell := range rec {
			v, err := strconv.Atoi(strings.TrimSpace(cell))
			if err != nil {
				return nil, fmt.Errorf("csvio: time matrix cell %q: %w", cell, err)
			}
			row[i] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func loadAdjacency(path string, nodeCount int) ([][]model.Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvio: opening edge file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	adj := make([][]model.Edge, nodeCount)
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("csvio: edge row: %w", err)
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("csvio: edge row has too few fields: %v", rec)
		}
		origin, err1 := strconv.Atoi(strings.TrimSpace(rec[0]))
		dest, err2 := strconv.Atoi(strings.TrimSpace(rec[1]))
		length, err3 := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("csvio: malformed edge row: %v", rec)
		}
		if length < 0 {
			return nil, fmt.Errorf("csvio: negative edge length: %v", rec)
		}
		o, d := origin-1, dest-1
		if o < 0 || o >= nodeCount || d < 0 || d >= nodeCount {
			continue
		}
		adj[o] = append(adj[o], model.Edge{Neighbor: d, Seconds: length})
	}
	return adj, nil
}

func newDecoder(f *os.File) (*csvutil.Decoder, error) {
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csvio: reading header: %w", err)
	}
	dec, err := csvutil.NewDecoder(r, header...)
	if err != nil {
		return nil, fmt.Errorf("csvio: building decoder: %w", err)
	}
	return dec, nil
}
