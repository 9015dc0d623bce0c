package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config is the runtime configuration, read once at startup.
type Config struct {
	Port string

	MongoURL    string
	MongoDB     string
	StoreDriver string

	RedisAddr     string
	RedisPassword string

	BusinessTZ *time.Location
	DepotLat   float64
	DepotLng   float64

	SlotCapacity     int
	PrecisionFee     float64
	MaxSameDayMiles  float64
	MinLeadTimeHours int

	PendingOrderTTL time.Duration
	SweepInterval   time.Duration
	LockTTL         time.Duration
	LockWait        time.Duration

	JWTSecret      string
	ManifestSecret string

	RateLimitRPS   float64
	RateLimitBurst int
}

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	cfg := &Config{
		Port:           port(os.Getenv("PORT")),
		MongoURL:       getString("MONGO_URL", "mongodb://localhost:27017"),
		MongoDB:        getString("MONGO_DB", "bulkhaul"),
		StoreDriver:    strings.ToLower(getString("STORE_DRIVER", DriverMongo)),
		RedisAddr:      getString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		JWTSecret:      getString("JWT_SECRET", "change_me"),
		ManifestSecret: getString("MANIFEST_SECRET", "change_me_too"),
	}

	tzName := getString("BUSINESS_TZ", "America/Chicago")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		fail("BUSINESS_TZ", err)
		loc = time.UTC
	}
	cfg.BusinessTZ = loc

	var e error
	if cfg.DepotLat, e = getFloat("DEPOT_LAT", 41.8781); e != nil {
		fail("DEPOT_LAT", e)
	}
	if cfg.DepotLng, e = getFloat("DEPOT_LNG", -87.6298); e != nil {
		fail("DEPOT_LNG", e)
	}
	if cfg.SlotCapacity, e = getInt("SLOT_CAPACITY", 4); e != nil {
		fail("SLOT_CAPACITY", e)
	}
	if cfg.PrecisionFee, e = getFloat("PRECISION_FEE", 75); e != nil {
		fail("PRECISION_FEE", e)
	}
	if cfg.MaxSameDayMiles, e = getFloat("MAX_SAME_DAY_MILES", 20); e != nil {
		fail("MAX_SAME_DAY_MILES", e)
	}
	if cfg.MinLeadTimeHours, e = getInt("MIN_LEAD_TIME_HOURS", 2); e != nil {
		fail("MIN_LEAD_TIME_HOURS", e)
	}
	if cfg.PendingOrderTTL, e = getDuration("PENDING_ORDER_TTL", 48*time.Hour); e != nil {
		fail("PENDING_ORDER_TTL", e)
	}
	if cfg.SweepInterval, e = getDuration("SWEEP_INTERVAL", 5*time.Minute); e != nil {
		fail("SWEEP_INTERVAL", e)
	}
	if cfg.LockTTL, e = getDuration("LOCK_TTL", 10*time.Second); e != nil {
		fail("LOCK_TTL", e)
	}
	if cfg.LockWait, e = getDuration("LOCK_WAIT", 3*time.Second); e != nil {
		fail("LOCK_WAIT", e)
	}
	if cfg.RateLimitRPS, e = getFloat("RATE_LIMIT_RPS", 5); e != nil {
		fail("RATE_LIMIT_RPS", e)
	}
	if cfg.RateLimitBurst, e = getInt("RATE_LIMIT_BURST", 10); e != nil {
		fail("RATE_LIMIT_BURST", e)
	}

	if cfg.StoreDriver != DriverMongo && cfg.StoreDriver != DriverMemory {
		errs = append(errs, fmt.Sprintf("STORE_DRIVER: unknown driver %q", cfg.StoreDriver))
	}
	if cfg.SlotCapacity <= 0 {
		errs = append(errs, "SLOT_CAPACITY: must be positive")
	}
	if cfg.PendingOrderTTL <= 0 {
		errs = append(errs, "PENDING_ORDER_TTL: must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func port(p string) string {
	if p == "" {
		return ":8080"
	}
	if p[0] != ':' {
		return ":" + p
	}
	return p
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}
