package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/TheMichaelB/credvault/internal/events"
	"github.com/TheMichaelB/credvault/internal/profile"
	"github.com/TheMichaelB/credvault/internal/secure"
	"github.com/TheMichaelB/credvault/internal/vault"
)

// DefaultPingTimeout bounds the connectivity check in Open.
const DefaultPingTimeout = 10 * time.Second

// Connector opens databases for profiles, resolving their passwords on the way.
type Connector struct {
	resolver    *vault.Resolver
	logger      *events.Logger
	pingTimeout time.Duration
}

// NewConnector creates a connector.
func NewConnector(resolver *vault.Resolver, logger *events.Logger) *Connector {
	return &Connector{
		resolver:    resolver,
		logger:      logger.WithField("component", "dbconn"),
		pingTimeout: DefaultPingTimeout,
	}
}

// WithPingTimeout returns a copy of c using timeout for the ping in Open.
func (c *Connector) WithPingTimeout(timeout time.Duration) *Connector {
	cp := *c
	cp.pingTimeout = timeout
	return &cp
}

// Open resolves the profile password, opens the database and pings it. key
// may be nil when the profile's password source needs none. The resolved
// password is destroyed before Open returns.
func (c *Connector) Open(ctx context.Context, p *profile.Profile, key *secure.Buffer) (*sql.DB, error) {
	driver, err := DriverName(p.Driver)
	if err != nil {
		return nil, err
	}

	logger := c.logger.WithFields(map[string]interface{}{
		"profile": p.Name,
		"driver":  driver,
	})

	var password *secure.Buffer
	if p.Password.Source != nil {
		password, err = c.resolver.Resolve(p.Password.Source, key)
		if err != nil {
			return nil, fmt.Errorf("resolve password for %s: %w", p.Name, err)
		}
	}

	var db *sql.DB
	err = secure.Use(password, func(secret []byte) error {
		dsn, err := BuildDSN(p, secret)
		if err != nil {
			return err
		}
		db, err = sql.Open(driver, dsn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.Name, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	start := time.Now()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		logger.WithError(err).Warn("Database ping failed")
		return nil, fmt.Errorf("ping %s: %w", p.Name, err)
	}

	logger.WithField("latency", time.Since(start).String()).Info("Connected to database")
	return db, nil
}

// Ping opens the profile's database, checks it and closes it again.
func (c *Connector) Ping(ctx context.Context, p *profile.Profile, key *secure.Buffer) (time.Duration, error) {
	start := time.Now()
	db, err := c.Open(ctx, p, key)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return time.Since(start), nil
}
