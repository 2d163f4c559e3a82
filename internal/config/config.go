package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	// Protocol identities (32-hex). Escrow holds locked collateral during
	// the loan; custody receives it on liquidation; the scheduler identity
	// is the only non-admin caller allowed on the internal endpoints.
	EscrowID    string
	CustodyID   string
	SchedulerID string

	// Collaborator base URLs.
	RegistryURL string
	OracleURL   string
	RailURL     string
	IdentityURL string
	TreasuryURL string
	SignerURL   string

	// Pool custody account on the asset rail.
	PoolAccountID string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func Load() *Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	c := &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "agrilends"),
		MySQLUser: getenv("MYSQL_USER", "agrilends"),
		MySQLPass: getenv("MYSQL_PASS", "agrilends"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		IdempTTLSecs: 300,

		EscrowID:    os.Getenv("ESCROW_ID"),
		CustodyID:   os.Getenv("CUSTODY_ID"),
		SchedulerID: os.Getenv("SCHEDULER_ID"),

		RegistryURL: getenv("REGISTRY_URL", "http://registry:8081"),
		OracleURL:   getenv("ORACLE_URL", "http://oracle:8082"),
		RailURL:     getenv("RAIL_URL", "http://rail:8083"),
		IdentityURL: getenv("IDENTITY_URL", "http://identity:8084"),
		TreasuryURL: getenv("TREASURY_URL", "http://treasury:8085"),
		SignerURL:   getenv("SIGNER_URL", "http://signer:8086"),

		PoolAccountID: getenv("POOL_ACCOUNT_ID", "pool-custody"),
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("IDEMPOTENCY_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.IdempTTLSecs = n
		}
	}
	return c
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.EscrowID == "" || c.CustodyID == "" || c.SchedulerID == "" {
		return errors.New("missing protocol identities (ESCROW_ID/CUSTODY_ID/SCHEDULER_ID)")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
