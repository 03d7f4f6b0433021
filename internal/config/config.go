package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"

	DriverPQ  = "pq"
	DriverPgx = "pgx"
)

type DatabaseConfig struct {
	Type     string            `yaml:"type"`
	Driver   string            `yaml:"driver"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Database string            `yaml:"database"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	SSLMode  string            `yaml:"sslmode"`
	Path     string            `yaml:"path"`
	Params   map[string]string `yaml:"params"`
}

// EngineConfig tunes the DDL engine itself.
type EngineConfig struct {
	DryRun              bool   `yaml:"dry_run"`
	MaxIdentifierLength int    `yaml:"max_identifier_length"`
	Schema              string `yaml:"schema"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
}

func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config and fills in per-engine defaults.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyDefaults normalizes names and fills unset fields.
func (c *Config) ApplyDefaults() {
	c.Database.Type = normalizeDatabaseType(c.Database.Type)
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))

	switch c.Database.Type {
	case TypePostgres:
		if c.Database.Driver == "" {
			c.Database.Driver = DriverPQ
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
		if c.Engine.Schema == "" {
			c.Engine.Schema = "public"
		}
	case TypeMySQL:
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
	case TypeSQLite:
		if c.Database.Path == "" {
			c.Database.Path = ":memory:"
		}
	}

	if c.Database.Host == "" && c.Database.Type != TypeSQLite {
		c.Database.Host = "localhost"
	}
}

func (c *Config) Validate() error {
	switch c.Database.Type {
	case TypePostgres:
		if c.Database.Driver != DriverPQ && c.Database.Driver != DriverPgx {
			return fmt.Errorf("unsupported postgres driver %q (use %q or %q)", c.Database.Driver, DriverPQ, DriverPgx)
		}
	case TypeMySQL, TypeSQLite:
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Engine.MaxIdentifierLength < 0 {
		return fmt.Errorf("max_identifier_length must not be negative")
	}
	return nil
}

// DriverName is the database/sql driver registered for the configured type.
func (c *Config) DriverName() string {
	switch c.Database.Type {
	case TypeMySQL:
		return "mysql"
	case TypeSQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// GetConnectionString returns the DSN in the form the configured driver
// expects.
func (c *Config) GetConnectionString() string {
	switch c.Database.Type {
	case TypeMySQL:
		return c.mysqlDSN()
	case TypeSQLite:
		return c.sqliteDSN()
	default:
		return c.postgresDSN()
	}
}

func (c *Config) postgresDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.Username,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
	for _, key := range sortedKeys(c.Database.Params) {
		dsn += fmt.Sprintf(" %s=%s", key, c.Database.Params[key])
	}
	return dsn
}

func (c *Config) mysqlDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.Database.Username
	mc.Passwd = c.Database.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port))
	mc.DBName = c.Database.Database
	mc.ParseTime = true
	if len(c.Database.Params) > 0 {
		mc.Params = make(map[string]string, len(c.Database.Params))
		for key, value := range c.Database.Params {
			mc.Params[key] = value
		}
	}
	return mc.FormatDSN()
}

func (c *Config) sqliteDSN() string {
	if len(c.Database.Params) == 0 {
		return c.Database.Path
	}
	var params []string
	for _, key := range sortedKeys(c.Database.Params) {
		params = append(params, key+"="+c.Database.Params[key])
	}
	return c.Database.Path + "?" + strings.Join(params, "&")
}

func normalizeDatabaseType(dbType string) string {
	dbType = strings.ToLower(strings.TrimSpace(dbType))
	if dbType == "" {
		return TypePostgres
	}

	switch dbType {
	case "postgres", "postgresql", "pg":
		return TypePostgres
	case "mysql", "mariadb":
		return TypeMySQL
	case "sqlite", "sqlite3":
		return TypeSQLite
	default:
		return dbType
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
