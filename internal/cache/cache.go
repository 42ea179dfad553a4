package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scholarsource/scholarsource/internal/config"
	"github.com/scholarsource/scholarsource/internal/fingerprint"
	"github.com/scholarsource/scholarsource/pkg/models"
)

// Cache is the result-caching interface. A miss is reported through the bool
// return, never as an error; errors indicate store I/O problems, which callers
// are expected to treat as misses. Implementations must be safe for
// concurrent use across processes.
type Cache interface {
	Get(ctx context.Context, inputs models.DiscoveryInputs, tier Tier, bypass bool) (json.RawMessage, bool, error)
	Put(ctx context.Context, inputs models.DiscoveryInputs, tier Tier, payload any) error
	SweepStale(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Stats is a read-only aggregate over the cache table. Valid counts entries
// readable right now (current fingerprint, within tier TTL); Stale counts
// entries written under a different fingerprint, which SweepStale would
// remove.
type Stats struct {
	Total       int64            `json:"total"`
	Valid       int64            `json:"valid"`
	Stale       int64            `json:"stale"`
	ByTier      map[string]int64 `json:"by_tier"`
	AvgAge      time.Duration    `json:"-"`
	AvgAgeSecs  float64          `json:"avg_age_secs"`
	Fingerprint string           `json:"config_fingerprint"`
}

// PostgresCache implements Cache on the cache_entries table using pgx/v5.
type PostgresCache struct {
	pool *pgxpool.Pool
	fp   *fingerprint.Provider
	ttls config.CacheConfig
}

// NewPostgresCache creates a PostgresCache.
func NewPostgresCache(pool *pgxpool.Pool, fp *fingerprint.Provider, ttls config.CacheConfig) *PostgresCache {
	return &PostgresCache{pool: pool, fp: fp, ttls: ttls}
}

func (c *PostgresCache) ttl(tier Tier) time.Duration {
	if tier == TierAnalysis {
		return c.ttls.AnalysisTTL()
	}
	return c.ttls.FullTTL()
}

// Get looks up the cached payload for the given inputs and tier. With bypass
// set it returns a miss unconditionally, without touching the store. An entry
// written under a different fingerprint or older than the tier TTL is a miss;
// the row is left for SweepStale rather than deleted here.
func (c *PostgresCache) Get(ctx context.Context, inputs models.DiscoveryInputs, tier Tier, bypass bool) (json.RawMessage, bool, error) {
	if bypass {
		return nil, false, nil
	}

	currentFP := c.fp.Fingerprint()
	key := DeriveKey(NormalizeInputs(inputs), currentFP, tier)

	var (
		payload  json.RawMessage
		entryFP  string
		cachedAt time.Time
	)
	err := c.pool.QueryRow(ctx,
		`SELECT payload, config_fingerprint, cached_at FROM cache_entries WHERE cache_key = $1`, key,
	).Scan(&payload, &entryFP, &cachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	if entryFP != currentFP {
		return nil, false, nil
	}
	if time.Since(cachedAt) >= c.ttl(tier) {
		return nil, false, nil
	}
	return payload, true, nil
}

// Put upserts the payload under the key derived from the current fingerprint.
// The write is a single INSERT ... ON CONFLICT so a concurrent Get never sees
// a torn entry; concurrent writers for the same key are last-writer-wins.
func (c *PostgresCache) Put(ctx context.Context, inputs models.DiscoveryInputs, tier Tier, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}
	snapshot, err := json.Marshal(NormalizeInputs(inputs))
	if err != nil {
		return fmt.Errorf("marshal inputs snapshot: %w", err)
	}

	currentFP := c.fp.Fingerprint()
	key := DeriveKey(NormalizeInputs(inputs), currentFP, tier)

	_, err = c.pool.Exec(ctx,
		`INSERT INTO cache_entries (cache_key, config_fingerprint, tier, inputs_snapshot, payload, cached_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (cache_key) DO UPDATE SET
		   config_fingerprint = EXCLUDED.config_fingerprint,
		   inputs_snapshot    = EXCLUDED.inputs_snapshot,
		   payload            = EXCLUDED.payload,
		   cached_at          = NOW()`,
		key, currentFP, string(tier), snapshot, data)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// SweepStale deletes every entry whose fingerprint differs from the current
// one and returns the number removed. Safe to run concurrently with reads and
// writes; stale entries are never readable, so losing a race here is benign.
func (c *PostgresCache) SweepStale(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE config_fingerprint <> $1`, c.fp.Fingerprint())
	if err != nil {
		return 0, fmt.Errorf("sweep stale cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats reports aggregate cache counts for observability.
func (c *PostgresCache) Stats(ctx context.Context) (*Stats, error) {
	currentFP := c.fp.Fingerprint()
	stats := &Stats{
		ByTier:      make(map[string]int64),
		Fingerprint: currentFP,
	}

	rows, err := c.pool.Query(ctx,
		`SELECT tier,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE config_fingerprint = $1
		                           AND cached_at > NOW() - make_interval(secs => CASE tier WHEN 'analysis' THEN $2 ELSE $3 END)),
		        COUNT(*) FILTER (WHERE config_fingerprint <> $1),
		        COALESCE(EXTRACT(EPOCH FROM AVG(NOW() - cached_at)), 0)
		 FROM cache_entries GROUP BY tier`,
		currentFP, c.ttls.AnalysisTTL().Seconds(), c.ttls.FullTTL().Seconds())
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()

	var weightedAge float64
	for rows.Next() {
		var (
			tier                string
			total, valid, stale int64
			avgAge              float64
		)
		if err := rows.Scan(&tier, &total, &valid, &stale, &avgAge); err != nil {
			return nil, fmt.Errorf("scan cache stats: %w", err)
		}
		stats.Total += total
		stats.Valid += valid
		stats.Stale += stale
		stats.ByTier[tier] = total
		weightedAge += avgAge * float64(total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}

	if stats.Total > 0 {
		stats.AvgAgeSecs = weightedAge / float64(stats.Total)
		stats.AvgAge = time.Duration(stats.AvgAgeSecs * float64(time.Second))
	}
	return stats, nil
}
