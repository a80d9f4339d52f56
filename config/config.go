// Package config loads server configuration from a TOML file, with sane
// defaults so the server runs with no file at all.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full server configuration.
type Config struct {
	Server  Server  `toml:"server"`
	Ledger  Ledger  `toml:"ledger"`
	Token   Token   `toml:"token"`
	Payment Payment `toml:"payment"`
}

type Server struct {
	Port        int      `toml:"port"`
	DBPath      string   `toml:"db_path"`
	CORSOrigins []string `toml:"cors_origins"`
}

type Ledger struct {
	// Granularity is the smallest sellable amount of entry-hours,
	// as a decimal string. The venue sells half-hour steps.
	Granularity string `toml:"granularity"`
}

type Token struct {
	TTL           duration `toml:"ttl"`
	PurgeInterval duration `toml:"purge_interval"`
}

type Payment struct {
	// BankAccount is the IBAN embedded in SPAYD payment references.
	BankAccount string `toml:"bank_account"`
	Currency    string `toml:"currency"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Port:        8080,
			DBPath:      "passengine.db",
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Ledger: Ledger{
			Granularity: "0.5",
		},
		Token: Token{
			TTL:           duration{2 * time.Minute},
			PurgeInterval: duration{5 * time.Minute},
		},
		Payment: Payment{
			Currency: "CZK",
		},
	}
}

// Load reads a TOML file over the defaults. A missing path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, fmt.Errorf("config file not found: %s", path)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// duration lets TOML carry values like "2m" or "90s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
