package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sakay-eta/internal/geo"
	"sakay-eta/internal/network"
	"sakay-eta/internal/segments"
	"sakay-eta/internal/traffic"
	"sakay-eta/internal/transit"
)

// Schema creates the network tables. route_paths and vehicles are optional
// and may be left empty.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS route_stops (
  route_id      INTEGER NOT NULL REFERENCES routes(id),
  stop_sequence INTEGER NOT NULL,
  stop_name     TEXT NOT NULL,
  PRIMARY KEY (route_id, stop_sequence)
);
CREATE TABLE IF NOT EXISTS route_paths (
  route_id       INTEGER NOT NULL REFERENCES routes(id),
  point_sequence INTEGER NOT NULL,
  lat            DOUBLE PRECISION NOT NULL,
  lng            DOUBLE PRECISION NOT NULL,
  PRIMARY KEY (route_id, point_sequence)
);
CREATE TABLE IF NOT EXISTS segment_times (
  from_stop   TEXT NOT NULL,
  to_stop     TEXT NOT NULL,
  tier        TEXT NOT NULL,
  min_minutes INTEGER NOT NULL,
  max_minutes INTEGER NOT NULL,
  PRIMARY KEY (from_stop, to_stop, tier)
);
CREATE TABLE IF NOT EXISTS vehicles (
  id           INTEGER PRIMARY KEY,
  route_id     INTEGER NOT NULL REFERENCES routes(id),
  offset_km    DOUBLE PRECISION NOT NULL DEFAULT 0,
  speed_factor DOUBLE PRECISION NOT NULL DEFAULT 1
);
`

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

type routeRow struct {
	ID   int
	Name string
}

type stopRow struct {
	RouteID  int
	Sequence int
	Name     string
}

type pathRow struct {
	RouteID  int
	Sequence int
	Lat, Lng float64
}

type segmentRow struct {
	From, To string
	Tier     string
	Min, Max int
}

type vehicleRow struct {
	ID          int
	RouteID     int
	OffsetKm    float64
	SpeedFactor float64
}

// LoadNetwork reads the network tables and validates the result.
func LoadNetwork(ctx context.Context, db *sql.DB) (*network.Network, error) {
	routes, err := fetchRoutes(ctx, db)
	if err != nil {
		return nil, err
	}
	stops, err := fetchStops(ctx, db)
	if err != nil {
		return nil, err
	}
	segs, err := fetchSegments(ctx, db)
	if err != nil {
		return nil, err
	}

	present, err := hasTables(ctx, db, "public", "route_paths", "vehicles")
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}
	var paths []pathRow
	if present["route_paths"] {
		if paths, err = fetchPaths(ctx, db); err != nil {
			return nil, err
		}
	}
	var vehicles []vehicleRow
	if present["vehicles"] {
		if vehicles, err = fetchVehicles(ctx, db); err != nil {
			return nil, err
		}
	}
	return assemble(routes, stops, paths, segs, vehicles)
}

func fetchRoutes(ctx context.Context, db *sql.DB) ([]routeRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM routes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()
	var out []routeRow
	for rows.Next() {
		var r routeRow
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func fetchStops(ctx context.Context, db *sql.DB) ([]stopRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT route_id, stop_sequence, stop_name FROM route_stops ORDER BY route_id, stop_sequence`)
	if err != nil {
		return nil, fmt.Errorf("query route_stops: %w", err)
	}
	defer rows.Close()
	var out []stopRow
	for rows.Next() {
		var s stopRow
		if err := rows.Scan(&s.RouteID, &s.Sequence, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func fetchPaths(ctx context.Context, db *sql.DB) ([]pathRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT route_id, point_sequence, lat, lng FROM route_paths ORDER BY route_id, point_sequence`)
	if err != nil {
		return nil, fmt.Errorf("query route_paths: %w", err)
	}
	defer rows.Close()
	var out []pathRow
	for rows.Next() {
		var p pathRow
		if err := rows.Scan(&p.RouteID, &p.Sequence, &p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func fetchSegments(ctx context.Context, db *sql.DB) ([]segmentRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT from_stop, to_stop, tier, min_minutes, max_minutes FROM segment_times ORDER BY from_stop, to_stop`)
	if err != nil {
		return nil, fmt.Errorf("query segment_times: %w", err)
	}
	defer rows.Close()
	var out []segmentRow
	for rows.Next() {
		var s segmentRow
		if err := rows.Scan(&s.From, &s.To, &s.Tier, &s.Min, &s.Max); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func fetchVehicles(ctx context.Context, db *sql.DB) ([]vehicleRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, route_id, COALESCE(offset_km, 0), COALESCE(speed_factor, 1) FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	defer rows.Close()
	var out []vehicleRow
	for rows.Next() {
		var v vehicleRow
		if err := rows.Scan(&v.ID, &v.RouteID, &v.OffsetKm, &v.SpeedFactor); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// assemble joins the table rows into a network. Stops and path points are
// ordered by their sequence columns regardless of row order.
func assemble(routes []routeRow, stops []stopRow, paths []pathRow, segs []segmentRow, vehicles []vehicleRow) (*network.Network, error) {
	n := &network.Network{}
	index := make(map[int]int, len(routes))
	for _, r := range routes {
		index[r.ID] = len(n.Routes)
		n.Routes = append(n.Routes, transit.Route{ID: r.ID, Name: r.Name})
	}

	sort.SliceStable(stops, func(i, j int) bool { return stops[i].Sequence < stops[j].Sequence })
	for _, s := range stops {
		i, ok := index[s.RouteID]
		if !ok {
			return nil, fmt.Errorf("%w: route_stops references unknown route %d", network.ErrInvalid, s.RouteID)
		}
		n.Routes[i].Stops = append(n.Routes[i].Stops, s.Name)
	}

	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Sequence < paths[j].Sequence })
	for _, p := range paths {
		i, ok := index[p.RouteID]
		if !ok {
			return nil, fmt.Errorf("%w: route_paths references unknown route %d", network.ErrInvalid, p.RouteID)
		}
		n.Routes[i].Path = append(n.Routes[i].Path, geo.Point{Lat: p.Lat, Lng: p.Lng})
	}

	// one segment_times row per tier; group by directed pair
	byKey := make(map[segments.Key]*segments.Entry)
	var order []segments.Key
	for _, s := range segs {
		tier, err := traffic.ParseTier(s.Tier)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q -> %q: %v", network.ErrInvalid, s.From, s.To, err)
		}
		k := segments.Key{From: s.From, To: s.To}
		e, ok := byKey[k]
		if !ok {
			e = &segments.Entry{From: s.From, To: s.To, Ranges: make(map[traffic.Tier]segments.Range, 3)}
			byKey[k] = e
			order = append(order, k)
		}
		if _, dup := e.Ranges[tier]; dup {
			return nil, fmt.Errorf("%w: segment %q -> %q lists %s twice", network.ErrInvalid, s.From, s.To, tier)
		}
		e.Ranges[tier] = segments.Range{Min: s.Min, Max: s.Max}
	}
	for _, k := range order {
		n.Segments = append(n.Segments, *byKey[k])
	}

	for _, v := range vehicles {
		n.Vehicles = append(n.Vehicles, network.VehicleSpec{ID: v.ID, RouteID: v.RouteID, OffsetKm: v.OffsetKm, SpeedFactor: v.SpeedFactor})
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// hasTables returns a map of requested table names to existence in schema.
func hasTables(ctx context.Context, db *sql.DB, schema string, tables ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(tables))
	if len(tables) == 0 {
		return res, nil
	}
	for _, t := range tables {
		res[t] = false
	}
	q := `SELECT table_name FROM information_schema.tables
          WHERE table_schema = $1 AND table_name = ANY($2)`
	rows, err := db.QueryContext(ctx, q, schema, tables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
