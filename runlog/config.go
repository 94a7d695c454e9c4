package runlog

import (
	"database/sql"
	"net"
	"os"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds the database and clock settings for recording runs.
type Config struct {
	User        string
	Password    string
	Host        string
	Port        string
	Database    string
	TablePrefix string
	// NTPServer, if set, supplies run start and finish times.
	NTPServer string
}

// envKeys maps environment variable names to config fields.
var envKeys = []struct {
	name  string
	field func(*Config) *string
	def   string
}{
	{"DB_USER", func(c *Config) *string { return &c.User }, ""},
	{"DB_PASSWORD", func(c *Config) *string { return &c.Password }, ""},
	{"DB_HOST", func(c *Config) *string { return &c.Host }, "localhost"},
	{"DB_PORT", func(c *Config) *string { return &c.Port }, "3306"},
	{"DB_NAME", func(c *Config) *string { return &c.Database }, "mlp"},
	{"DB_TABLE_PREFIX", func(c *Config) *string { return &c.TablePrefix }, "mlp_"},
	{"NTP_SERVER", func(c *Config) *string { return &c.NTPServer }, ""},
}

// ConfigFromEnv builds a config from the environment.  Variables
// missing from the environment are looked up in the given .env files,
// then fall back to defaults.
func ConfigFromEnv(envFiles ...string) (cfg *Config, err error) {
	file := map[string]string{}
	if len(envFiles) > 0 {
		file, err = godotenv.Read(envFiles...)
		if err != nil {
			return nil, errors.Wrap(err, "reading env file")
		}
	}
	cfg = &Config{}
	for _, key := range envKeys {
		val, ok := os.LookupEnv(key.name)
		if !ok {
			val, ok = file[key.name]
		}
		if !ok {
			val = key.def
		}
		*key.field(cfg) = val
	}
	return
}

// DSN returns the MySQL data source name for the config.
func (c *Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	return mc.FormatDSN()
}

// Open opens a MySQL connection pool for the config and checks that
// the server is reachable.
func Open(cfg *Config) (db *sql.DB, err error) {
	db, err = sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connecting to %s", net.JoinHostPort(cfg.Host, cfg.Port))
	}
	return
}
