package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort  string
	AppMode  string
	ServerID string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret    string
	JWTExpiryMin int

	CrowdSize         int
	HeartbeatInterval time.Duration
	DeadServerAge     time.Duration
	GCInterval        time.Duration
	LockTTL           time.Duration
	LockWait          time.Duration
	LockRetryDelay    time.Duration
	WorkerInterval    time.Duration
	FeedPollInterval  time.Duration
	JoinLimit         int
	JoinWindow        time.Duration

	ICEServers      []string
	MediaUDPPortMin int
	MediaUDPPortMax int

	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
}

const releaseMode = "release"

// Crowd sizes at which a newly joining peer starts muted. Local testing
// uses the smaller value so the behaviour is reachable with a few tabs.
const (
	DevCrowdSize     = 3
	ReleaseCrowdSize = 8
)

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	appMode := getEnv("APP_MODE", "debug")
	crowd := DevCrowdSize
	if appMode == releaseMode {
		crowd = ReleaseCrowdSize
	}

	return &Config{
		AppPort:  getEnv("APP_PORT", "8080"),
		AppMode:  appMode,
		ServerID: getEnv("SERVER_ID", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "huntcall"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		JWTSecret:    getEnv("JWT_SECRET", "change-me"),
		JWTExpiryMin: getEnvAsInt("JWT_EXPIRY_MIN", 60),

		CrowdSize:         getEnvAsInt("CALL_CROWD_SIZE", crowd),
		HeartbeatInterval: getEnvAsDuration("SERVER_HEARTBEAT_INTERVAL", 5*time.Second),
		DeadServerAge:     getEnvAsDuration("SERVER_DEAD_AFTER", 30*time.Second),
		GCInterval:        getEnvAsDuration("CALL_GC_INTERVAL", 15*time.Second),
		LockTTL:           getEnvAsDuration("LOCK_TTL", 10*time.Second),
		LockWait:          getEnvAsDuration("LOCK_WAIT", 5*time.Second),
		LockRetryDelay:    getEnvAsDuration("LOCK_RETRY_DELAY", 50*time.Millisecond),
		WorkerInterval:    getEnvAsDuration("ROUTER_WORKER_INTERVAL", 2*time.Second),
		FeedPollInterval:  getEnvAsDuration("FEED_POLL_INTERVAL", 5*time.Second),
		JoinLimit:         getEnvAsInt("CALL_JOIN_LIMIT", 30),
		JoinWindow:        getEnvAsDuration("CALL_JOIN_WINDOW", time.Minute),

		ICEServers:      getEnvAsList("ICE_SERVERS", []string{"stun:stun.l.google.com:19302"}),
		MediaUDPPortMin: getEnvAsInt("MEDIA_UDP_PORT_MIN", 0),
		MediaUDPPortMax: getEnvAsInt("MEDIA_UDP_PORT_MAX", 0),

		S3Region:    getEnv("S3_REGION", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
	}
}

func (c *Config) IsRelease() bool {
	return c.AppMode == releaseMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	var items []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
