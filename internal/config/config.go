package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"sakay-eta/internal/eta"
	"sakay-eta/internal/geo"
)

const (
	NetworkDefault  = "default"
	NetworkFile     = "file"
	NetworkPostgres = "postgres"
	NetworkGTFS     = "gtfs"

	VehiclesSim  = "sim"
	VehiclesNATS = "nats"
)

// QCHall is the default rider destination.
var QCHall = geo.Point{Lat: 14.6507, Lng: 121.0497}

type Config struct {
	NetworkSource string
	NetworkFile   string
	GTFSPath      string
	DatabaseURL   string

	VehicleSource     string
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	ETAInterval       time.Duration
	ProximityInterval time.Duration
	SimInterval       time.Duration

	Window      eta.ServiceWindow
	Destination geo.Point
	User        *geo.Point
	Seed        *int64
	Location    *time.Location

	HTTPAddr    string
	MetricsAddr string

	LogFormat string
	LogLevel  zerolog.Level
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.NetworkSource = strings.ToLower(getenvDefault("NETWORK_SOURCE", NetworkDefault))
	switch cfg.NetworkSource {
	case NetworkDefault:
	case NetworkFile:
		cfg.NetworkFile = os.Getenv("NETWORK_FILE")
		if cfg.NetworkFile == "" {
			return nil, errors.New("NETWORK_FILE must be set when NETWORK_SOURCE=file")
		}
	case NetworkGTFS:
		cfg.GTFSPath = os.Getenv("GTFS_PATH")
		if cfg.GTFSPath == "" {
			return nil, errors.New("GTFS_PATH must be set when NETWORK_SOURCE=gtfs")
		}
	case NetworkPostgres:
		dsn, err := databaseURL()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	default:
		return nil, fmt.Errorf("invalid NETWORK_SOURCE: %q", cfg.NetworkSource)
	}

	cfg.VehicleSource = strings.ToLower(getenvDefault("VEHICLE_SOURCE", VehiclesSim))
	if cfg.VehicleSource != VehiclesSim && cfg.VehicleSource != VehiclesNATS {
		return nil, fmt.Errorf("invalid VEHICLE_SOURCE: %q", cfg.VehicleSource)
	}
	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "sakay")
	cfg.LogNATSSubjects = truthy(os.Getenv("LOG_NATS_SUBJECTS"))

	var err error
	if cfg.ETAInterval, err = durationVar("ETA_REFRESH_INTERVAL_SEC", 30, time.Second); err != nil {
		return nil, err
	}
	if cfg.ProximityInterval, err = durationVar("PROXIMITY_INTERVAL_SEC", 10, time.Second); err != nil {
		return nil, err
	}
	if cfg.SimInterval, err = durationVar("SIM_PUBLISH_INTERVAL_MS", 4000, time.Millisecond); err != nil {
		return nil, err
	}

	open, err := intVar("SERVICE_OPEN_HOUR", eta.DefaultServiceWindow.OpenHour)
	if err != nil {
		return nil, err
	}
	closeHour, err := intVar("SERVICE_CLOSE_HOUR", eta.DefaultServiceWindow.CloseHour)
	if err != nil {
		return nil, err
	}
	cfg.Window = eta.ServiceWindow{OpenHour: open, CloseHour: closeHour}
	if err := cfg.Window.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service window: %w", err)
	}

	dest, err := pointVar("DESTINATION_LAT", "DESTINATION_LNG")
	if err != nil {
		return nil, err
	}
	cfg.Destination = QCHall
	if dest != nil {
		cfg.Destination = *dest
	}
	if cfg.User, err = pointVar("USER_LAT", "USER_LNG"); err != nil {
		return nil, err
	}

	if v := os.Getenv("RANDOM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RANDOM_SEED: %q", v)
		}
		cfg.Seed = &seed
	}

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "console"))
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}
	level, err := zerolog.ParseLevel(strings.ToLower(getenvDefault("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %v", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func databaseURL() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set when NETWORK_SOURCE=postgres")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func durationVar(key string, def int, unit time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * unit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func intVar(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

// pointVar reads a coordinate pair; both or neither must be set.
func pointVar(latKey, lngKey string) (*geo.Point, error) {
	latS, lngS := os.Getenv(latKey), os.Getenv(lngKey)
	if latS == "" && lngS == "" {
		return nil, nil
	}
	if latS == "" || lngS == "" {
		return nil, fmt.Errorf("%s and %s must be set together", latKey, lngKey)
	}
	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", latKey, latS)
	}
	lng, err := strconv.ParseFloat(lngS, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", lngKey, lngS)
	}
	p := geo.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return nil, fmt.Errorf("%s/%s out of range: %v, %v", latKey, lngKey, lat, lng)
	}
	return &p, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
