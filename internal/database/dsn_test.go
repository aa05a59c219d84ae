package database

import (
	"net/url"
	"testing"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "quotesync", Name: "quotes"})
	require.NoError(t, err)
	require.Equal(t, "postgres://quotesync@localhost:5432/quotes?sslmode=disable", dsn)

	dsn, err = buildPostgresDSN(Config{
		User:     "sync",
		Password: "p@ss word",
		Name:     "quotes",
		Host:     "db.internal",
		Port:     6543,
		Options:  map[string]string{"sslmode": "require", "search_path": "public"},
	})
	require.NoError(t, err)

	parsed, err := pgconn.ParseConfig(dsn)
	require.NoError(t, err)
	require.Equal(t, "db.internal", parsed.Host)
	require.EqualValues(t, 6543, parsed.Port)
	require.Equal(t, "sync", parsed.User)
	require.Equal(t, "p@ss word", parsed.Password)
	require.Equal(t, "quotes", parsed.Database)
	require.Equal(t, "public", parsed.RuntimeParams["search_path"])

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	require.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestBuildPostgresDSNPrefersExplicitDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{DSN: "postgres://x@y/z"})
	require.NoError(t, err)
	require.Equal(t, "postgres://x@y/z", dsn)
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "sync",
		Password: "secret",
		Name:     "quotes",
		Host:     "db.internal",
		Port:     3307,
		Options:  map[string]string{"tls": "skip-verify", "sql_mode": "TRADITIONAL"},
	})
	require.NoError(t, err)

	parsed, err := mysqldrv.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "sync", parsed.User)
	require.Equal(t, "secret", parsed.Passwd)
	require.Equal(t, "db.internal:3307", parsed.Addr)
	require.Equal(t, "quotes", parsed.DBName)
	require.True(t, parsed.ParseTime)
	require.Equal(t, "skip-verify", parsed.TLSConfig)
	require.Equal(t, "utf8mb4", parsed.Params["charset"])
	require.Equal(t, "TRADITIONAL", parsed.Params["sql_mode"])
}

func TestBuildMySQLDSNDefaults(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "sync", Name: "quotes"})
	require.NoError(t, err)

	parsed, err := mysqldrv.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:3306", parsed.Addr)
	require.Empty(t, parsed.Passwd)
}

func TestBuildMySQLDSNRequiresUserAndName(t *testing.T) {
	_, err := buildMySQLDSN(Config{Host: "localhost"})
	require.Error(t, err)
}
