// Package config loads the process configuration: KV connection, RDBMS
// connection, bus endpoints and bounds, claim/cache TTLs, dead-letter and
// partition maintenance windows.
package config

import "fmt"

type Config struct {
	Log        LogConfig        `koanf:"log"`
	Database   DatabaseConfig   `koanf:"db"`
	KV         KVConfig         `koanf:"kv"`
	Bus        BusConfig        `koanf:"bus"`
	Claim      ClaimConfig      `koanf:"claim"`
	Cache      CacheConfig      `koanf:"cache"`
	DeadLetter DeadLetterConfig `koanf:"deadletter"`
	Partition  PartitionConfig  `koanf:"partition"`
	Geocode    GeocodeConfig    `koanf:"geocode"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
	PoolSize int    `koanf:"poolsize"`
}

// DSN builds the lib/pq connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type KVConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"poolsize"`
}

func (k *KVConfig) Addr() string {
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

type BusConfig struct {
	Brokers       []string `koanf:"brokers"`
	GroupID       string   `koanf:"groupid"`
	EndpointE1    string   `koanf:"endpoint.e1"`
	EndpointE2    string   `koanf:"endpoint.e2"`
	EndpointE3    string   `koanf:"endpoint.e3"`
	MaxQueueSize  int      `koanf:"maxqueuesize"`
	SendTimeoutMs int      `koanf:"sendtimeoutms"`
	BatchSize     int      `koanf:"batchsize"`
}

type ClaimConfig struct {
	LockTTLMs int `koanf:"lockttlms"`
}

type CacheConfig struct {
	OrderTTLSec int `koanf:"orderttlsec"`
}

type DeadLetterConfig struct {
	ExpireSec  int    `koanf:"expiresec"`
	ArchiveDir string `koanf:"archivedir"`
}

type PartitionConfig struct {
	LookaheadMonths int `koanf:"lookaheadmonths"`
}

type GeocodeConfig struct {
	BaseURL   string `koanf:"baseurl"`
	APIKey    string `koanf:"apikey"`
	TimeoutMs int    `koanf:"timeoutms"`
}

// Validate rejects a config missing the values the core cannot run
// without. Mirrors the Validate() call in Hola's loader.Load().
func (c *Config) Validate() error {
	if c.Database.Name == "" {
		return fmt.Errorf("db.name is required")
	}
	if c.Bus.MaxQueueSize <= 0 {
		return fmt.Errorf("bus.maxqueuesize must be positive")
	}
	if c.Claim.LockTTLMs <= 0 {
		return fmt.Errorf("claim.lockttlms must be positive")
	}
	return nil
}
