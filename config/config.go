// Package config loads the importer's settings from flags, environment
// variables, and an optional .env file, the way cmd/server/main.go does in
// the wider tool family this importer is built alongside.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Network carries the per-network constants the codec and scheduler need:
// the genesis document's hash (to fetch it from the bridge), the network's
// epoch-zero wall-clock start time, and the protocol magic submit
// validation checks outputs against.
type Network struct {
	Name         string
	Genesis      string
	StartTime    int64
	NetworkMagic int32
}

// Scheduler holds the tunables from spec.md §4.5.
type Scheduler struct {
	CheckTipSeconds        int
	RollbackBlocksCount    int64
	BlocksCacheSize        int
	EpochDownloadThreshold uint64
	MaxBlocksPerLoop       int
	LogBlockParsedThreshold int
}

// Config is the importer's full effective configuration.
type Config struct {
	BridgeURL string
	Network   Network
	DBPath    string
	HTTPAddr  string
	Scheduler Scheduler
}

// Load reads flags and environment variables (after loading a .env file if
// present), applying the defaults spec.md §4.5/§6 specify.
func Load() (*Config, error) {
	godotenv.Load()

	bridgeURL := flag.String("bridge-url", getEnv("BRIDGE_URL", "http://localhost:8085"), "bridge base URL")
	networkName := flag.String("network", getEnv("NETWORK_NAME", "mainnet"), "network name segment of the bridge URL")
	genesisHash := flag.String("genesis-hash", getEnv("NETWORK_GENESIS", ""), "genesis document hash")
	startTime := flag.Int64("network-start-time", getEnvInt64("NETWORK_START_TIME", 1506203091), "network's epoch-0 unix start time")
	networkMagic := flag.Int64("network-magic", getEnvInt64("NETWORK_MAGIC", 764824073), "protocol network magic")
	dbPath := flag.String("db", getEnv("DB_PATH", "./importer.db"), "sqlite database path")
	httpAddr := flag.String("http", getEnv("HTTP_ADDR", ":8090"), "submit/metrics/health HTTP listen address")
	checkTipSeconds := flag.Int("check-tip-seconds", getEnvInt("CHECK_TIP_SECONDS", 15), "seconds between tip checks")
	rollbackBlocksCount := flag.Int64("rollback-blocks-count", getEnvInt64("ROLLBACK_BLOCKS_COUNT", 25), "blocks to rewind on a detected fork")
	blocksCacheSize := flag.Int("blocks-cache-size", getEnvInt("BLOCKS_CACHE_SIZE", 2000), "blocks_to_store flush threshold")
	epochDownloadThreshold := flag.Uint64("epoch-download-threshold", uint64(getEnvInt("EPOCH_DOWNLOAD_THRESHOLD", 2160)), "slot cutoff below which a packed epoch is still worth pulling")
	maxBlocksPerLoop := flag.Int("max-blocks-per-loop", getEnvInt("MAX_BLOCKS_PER_LOOP", 1000), "upper bound on per-tick single-block fetches")
	logBlockParsedThreshold := flag.Int("log-block-parsed-threshold", getEnvInt("LOG_BLOCK_PARSED_THRESHOLD", 10000), "blocks between progress log lines")
	flag.Parse()

	if *genesisHash == "" {
		return nil, fmt.Errorf("config: NETWORK_GENESIS / -genesis-hash is required")
	}

	return &Config{
		BridgeURL: *bridgeURL,
		Network: Network{
			Name:         *networkName,
			Genesis:      *genesisHash,
			StartTime:    *startTime,
			NetworkMagic: int32(*networkMagic),
		},
		DBPath:   *dbPath,
		HTTPAddr: *httpAddr,
		Scheduler: Scheduler{
			CheckTipSeconds:         *checkTipSeconds,
			RollbackBlocksCount:     *rollbackBlocksCount,
			BlocksCacheSize:         *blocksCacheSize,
			EpochDownloadThreshold:  *epochDownloadThreshold,
			MaxBlocksPerLoop:        *maxBlocksPerLoop,
			LogBlockParsedThreshold: *logBlockParsedThreshold,
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
