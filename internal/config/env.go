package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by nodes.
const (
	EnvHost     = "FRACNODE_HOST"
	EnvPort     = "FRACNODE_PORT"
	EnvThreads  = "FRACNODE_THREADS"
	EnvBunch    = "FRACNODE_BUNCH"
	EnvHTTP     = "FRACNODE_HTTP"
	EnvLogLevel = "FRACNODE_LOG_LEVEL"
	EnvLogFile  = "FRACNODE_LOG_FILE"
)

// Node holds node settings. Command-line flags default to these values.
type Node struct {
	Host     string
	Port     int
	Threads  int
	Bunch    int
	HTTP     string
	LogLevel string
	LogFile  string
}

// LoadDotEnv loads the given .env files (".env" when none are given) into
// the environment. Variables already set win. Missing files are not an
// error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// NodeFromEnv reads node settings from the environment, falling back to
// the built-in defaults.
func NodeFromEnv(defaultPort, defaultBunch int) Node {
	return Node{
		Host:     GetEnvOrDefault(EnvHost, ""),
		Port:     ParseIntEnv(EnvPort, defaultPort),
		Threads:  ParseIntEnv(EnvThreads, runtime.NumCPU()),
		Bunch:    ParseIntEnv(EnvBunch, defaultBunch),
		HTTP:     GetEnvOrDefault(EnvHTTP, ""),
		LogLevel: GetEnvOrDefault(EnvLogLevel, "info"),
		LogFile:  GetEnvOrDefault(EnvLogFile, ""),
	}
}

func GetEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ParseIntEnv returns def when key is unset or not an integer.
func ParseIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
