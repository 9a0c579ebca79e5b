package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/storage"
)

const (
	defaultConnMaxLifetime     = 1 * time.Hour
	defaultConnMaxIdleTime     = 10 * time.Minute
	defaultHealthCheckInterval = 30 * time.Second
	replicaProbeTimeout        = 5 * time.Second
)

// ConnectionConfig holds everything needed to stand up the primary pool
// and any read replicas.
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration

	// Logger receives replica lifecycle events. A default JSON logger is
	// used when nil.
	Logger *observability.Logger
}

// FromStorageConfig builds a ConnectionConfig from the storage configuration.
func FromStorageConfig(cfg storage.Config) ConnectionConfig {
	return ConnectionConfig{
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: ParseReplicaURLs(cfg.PostgresReplicaURLs),
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
		MaxLifetime: defaultConnMaxLifetime,
		MaxIdleTime: defaultConnMaxIdleTime,
	}
}

// openPool opens a pool for url without dialing it. maxOpen caps the pool;
// the remaining knobs come from the config.
func (cc ConnectionConfig) openPool(url string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cc.MinConns)
	db.SetConnMaxLifetime(cc.MaxLifetime)
	db.SetConnMaxIdleTime(cc.MaxIdleTime)
	return db, nil
}

// replicaPoolSize halves the primary cap for replicas. Reads spread across
// replicas so each pool needs less headroom than the write pool.
func (cc ConnectionConfig) replicaPoolSize() int {
	size := cc.MaxConns / 2
	if size < 2 {
		size = 2
	}
	return size
}

func (cc ConnectionConfig) ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), cc.Timeout)
	defer cancel()
	return db.PingContext(ctx)
}

// ConnectionManager routes writes to the primary and spreads reads across
// healthy replicas. Webhook ingestion and token writes always hit the
// primary; report queries may lag behind it by replication delay.
type ConnectionManager struct {
	primary *sql.DB
	config  ConnectionConfig
	logger  *observability.Logger

	mu       sync.RWMutex
	replicas []*sql.DB
	rr       atomic.Uint32
}

// NewConnectionManager dials the primary and as many replicas as respond.
// The primary is required; replicas that fail to connect are skipped with
// a warning so a degraded fleet still serves traffic.
func NewConnectionManager(config ConnectionConfig) (*ConnectionManager, error) {
	logger := config.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	primary, err := config.openPool(config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}
	if err := config.ping(primary); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	cm := &ConnectionManager{
		primary: primary,
		config:  config,
		logger:  logger,
	}

	for i, url := range config.ReplicaURLs {
		replica, err := config.openPool(url, config.replicaPoolSize())
		if err == nil {
			err = config.ping(replica)
			if err != nil {
				replica.Close()
			}
		}
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Skipping unreachable read replica")
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("Database connections established")
	return cm, nil
}

// Primary returns the write connection.
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns the next read connection round-robin, or the primary when
// no replicas are available. The slice is snapshotted under the lock so a
// concurrent eviction cannot shift the index out of range.
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	replicas := cm.replicas
	cm.mu.RUnlock()

	if len(replicas) == 0 {
		return cm.primary
	}
	return replicas[int(cm.rr.Add(1))%len(replicas)]
}

// AllReplicas returns a copy of the current replica set.
func (cm *ConnectionManager) AllReplicas() []*sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]*sql.DB, len(cm.replicas))
	copy(out, cm.replicas)
	return out
}

// HealthCheck reports an error when the primary is down, or when every
// configured replica is down. A partially degraded replica set passes so
// reads keep flowing through the survivors.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	var down []string
	replicas := cm.AllReplicas()
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			down = append(down, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(replicas) > 0 && len(down) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(down, ", "))
	}
	return nil
}

// ConnectionStats holds pool statistics for the primary and each replica.
type ConnectionStats struct {
	Primary  sql.DBStats
	Replicas []sql.DBStats
}

// Stats snapshots pool statistics across all connections.
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		Primary:  cm.primary.Stats(),
		Replicas: make([]sql.DBStats, len(cm.replicas)),
	}
	for i, replica := range cm.replicas {
		stats.Replicas[i] = replica.Stats()
	}
	return stats
}

// RemoveUnhealthyReplicas evicts and closes replicas that fail a ping,
// returning how many were dropped. Round-robin continues over the
// survivors.
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := cm.replicas[:0:0]
	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			continue
		}
		healthy = append(healthy, replica)
	}

	removed := len(cm.replicas) - len(healthy)
	cm.replicas = healthy
	return removed
}

// AddReplica dials a new replica and adds it to the rotation. Used when a
// follower is promoted or a new one comes online mid-flight.
func (cm *ConnectionManager) AddReplica(replicaURL string) error {
	replica, err := cm.config.openPool(replicaURL, cm.config.replicaPoolSize())
	if err != nil {
		return fmt.Errorf("failed to open replica connection: %w", err)
	}
	if err := cm.config.ping(replica); err != nil {
		replica.Close()
		return fmt.Errorf("failed to ping replica: %w", err)
	}

	cm.mu.Lock()
	cm.replicas = append(cm.replicas, replica)
	cm.mu.Unlock()
	return nil
}

// Close closes the primary and every replica, reporting all failures.
func (cm *ConnectionManager) Close() error {
	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// StartHealthCheckRoutine evicts dead replicas on an interval until ctx is
// cancelled. An interval of 0 selects the default.
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = defaultHealthCheckInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer func() {
			if r := recover(); r != nil {
				cm.logger.WithFields(map[string]interface{}{
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Replica health check goroutine panicked")
			}
		}()

		for {
			select {
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(context.Background(), replicaProbeTimeout)
				removed := cm.RemoveUnhealthyReplicas(probeCtx)
				cancel()
				if removed > 0 {
					cm.logger.WithField("removed", removed).Warn("Evicted unhealthy read replicas")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ParseReplicaURLs splits a comma-separated replica list, dropping empty
// entries and surrounding whitespace.
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	var urls []string
	for _, url := range strings.Split(replicaURLsStr, ",") {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
