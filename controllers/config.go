package controllers

import (
	"log"

	"github.com/dgraph-io/ristretto"
	"github.com/kelseyhightower/envconfig"
)

// ServerConfig is read from KHANRENDER_* environment variables.
type ServerConfig struct {
	TileSize      int    `default:"256" split_words:"true"`
	BatchSize     int    `default:"64" split_words:"true"`
	CacheTTL      int    `default:"60" split_words:"true"` // minutes
	RenderTimeout int    `default:"30" split_words:"true"` // seconds
	PublicDir     string `default:"./public" split_words:"true"`
	TileCacheDir  string `split_words:"true"`
}

var Config ServerConfig

var tileCache *ristretto.Cache

func init() {
	if err := envconfig.Process("khanrender", &Config); err != nil {
		log.Fatalf("Failed to read server config: %v", err)
	}

	var err error
	tileCache, err = ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e7,     // number of keys to track frequency of (10M)
		MaxCost:     1 << 30, // maximum cost of cache (1GB)
		BufferItems: 64,      // number of keys per Get buffer
	})
	if err != nil {
		log.Fatalf("Failed to initialize tile cache: %v", err)
	}
}
