package postgres

//nolint:revive
import (
	"chalet/config"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const (
	postgresMaxIdleConnection = 10
	postgresMaxOpenConnection = 10
	postgresConnMaxLifetime   = 30 * time.Minute
)

var ErrUnreachable = errors.New("database unreachable")

// Connection is the shared pool pair used by every repository. Both pools are safe for
// concurrent use.
type Connection struct {
	Read  *sqlx.DB
	Write *sqlx.DB
}

type dsn struct {
	name     string
	username string
	password string
	host     string
	port     string
	dbName   string
	sslMode  string
}

func New(config *config.Config) (*Connection, error) {
	write, err := connect(writeDSN(config), config.DB.Postgres.MaxRetry, config.DB.Postgres.RetryWaitTime)
	if err != nil {
		return nil, err
	}

	read, err := connect(readDSN(config), config.DB.Postgres.MaxRetry, config.DB.Postgres.RetryWaitTime)
	if err != nil {
		_ = write.Close()

		return nil, err
	}

	return &Connection{
		Read:  read,
		Write: write,
	}, nil
}

func (c *Connection) Close() error {
	return errors.Join(c.Read.Close(), c.Write.Close())
}

// getDBName returns the database name with prefix if configured
func getDBName(config *config.Config, baseName string) string {
	if config.DB.Postgres.Prefix != "" {
		return config.DB.Postgres.Prefix + baseName
	}

	return baseName
}

func writeDSN(config *config.Config) dsn {
	write := config.DB.Postgres.Write

	return dsn{
		name:     "write",
		username: write.Username,
		password: write.Password,
		host:     write.Host,
		port:     write.Port,
		dbName:   getDBName(config, write.Name),
		sslMode:  write.SSLMode,
	}
}

// readDSN falls back to the write database when no replica is configured.
func readDSN(config *config.Config) dsn {
	read := config.DB.Postgres.Read
	if read.Host == "" {
		replica := writeDSN(config)
		replica.name = "read"

		return replica
	}

	return dsn{
		name:     "read",
		username: read.Username,
		password: read.Password,
		host:     read.Host,
		port:     read.Port,
		dbName:   getDBName(config, read.Name),
		sslMode:  read.SSLMode,
	}
}

func (d dsn) String() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		d.username,
		d.password,
		net.JoinHostPort(d.host, d.port),
		d.dbName,
		d.sslMode,
	)
}

func connect(target dsn, maxRetry, waitTime int) (*sqlx.DB, error) {
	var lastErr error

	for retry := range max(maxRetry, 1) {
		sqlDB, err := sqlx.Connect("postgres", target.String())
		if err == nil {
			log.
				Info().
				Str("name", target.name).
				Str("host", target.host).
				Str("port", target.port).
				Str("dbName", target.dbName).
				Msg("Connected to database")
			sqlDB.SetMaxIdleConns(postgresMaxIdleConnection)
			sqlDB.SetMaxOpenConns(postgresMaxOpenConnection)
			sqlDB.SetConnMaxLifetime(postgresConnMaxLifetime)

			return sqlDB, nil
		}

		lastErr = err

		log.
			Error().
			Err(err).
			Str("name", target.name).
			Str("host", target.host).
			Str("port", target.port).
			Str("dbName", target.dbName).
			Int("attempt", retry+1).
			Msg("Failed connecting to database, retrying")

		time.Sleep(time.Duration(waitTime) * time.Second)
	}

	return nil, fmt.Errorf("%w (%s): %w", ErrUnreachable, target.name, lastErr)
}
