package db

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/acme/popup-campaign-engine/internal/config"
)

// Scylla wraps a gocql session for the engagement event log.
type Scylla struct {
	session *gocql.Session
}

// NewScylla connects to the cluster and opens a session.
func NewScylla(cfg config.ScyllaConfig) (*Scylla, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Keyspace = cfg.Keyspace
	cluster.Timeout = cfg.Timeout
	cluster.Consistency = consistencyFor(cfg.Consistency)
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        50 * time.Millisecond,
		Max:        time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: create session: %w", err)
	}
	return &Scylla{session: session}, nil
}

// consistencyFor maps the configured level, falling back to quorum for
// anything unrecognized. Event appends tolerate weaker levels; the
// default stays safe for operators who leave it unset.
func consistencyFor(level string) gocql.Consistency {
	if level == "" {
		return gocql.Quorum
	}
	cons, err := gocql.ParseConsistencyWrapper(level)
	if err != nil {
		return gocql.Quorum
	}
	return cons
}

// Session exposes the gocql session.
func (s *Scylla) Session() *gocql.Session {
	return s.session
}

// Close shuts down the session.
func (s *Scylla) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	return nil
}
