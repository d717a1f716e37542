package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type KafkaCfg struct {
	Enabled        bool
	Brokers        []string
	SelectionTopic string
	ResultsTopic   string
	GroupID        string
	QueueSize      int
}

type CacheCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	LRUSize   int
	OpTimeout time.Duration
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	CKANURL        string
	CKANAPIKey     string
	SearchTimeout  time.Duration
	DefaultRows    int
	MaxRows        int
	MetricsEnabled bool
	Cache          CacheCfg
	Kafka          KafkaCfg
}

func FromEnv() Config {
	defRows := getint("DEFAULT_ROWS", 10)
	maxRows := getint("MAX_ROWS", 100)
	if defRows <= 0 {
		defRows = 10
	}
	if maxRows < defRows {
		maxRows = defRows
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		CKANURL:        getenv("CKAN_URL", "http://localhost:5000"),
		CKANAPIKey:     getenv("CKAN_API_KEY", ""),
		SearchTimeout:  getduration("SEARCH_TIMEOUT", 15*time.Second),
		DefaultRows:    defRows,
		MaxRows:        maxRows,
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		Cache: CacheCfg{
			Enabled:   getbool("CACHE_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			TTL:       getduration("CACHE_TTL", 60*time.Second),
			LRUSize:   getint("CACHE_LRU_SIZE", 512),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Kafka: KafkaCfg{
			Enabled:        getbool("KAFKA_ENABLED", false),
			Brokers:        splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			SelectionTopic: getenv("KAFKA_SELECTION_TOPIC", "map-area-selected"),
			ResultsTopic:   getenv("KAFKA_RESULTS_TOPIC", "map-search-results"),
			GroupID:        getenv("KAFKA_GROUP_ID", "map-search-pager"),
			QueueSize:      getint("KAFKA_QUEUE_SIZE", 1024),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
