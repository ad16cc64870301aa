package graph

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/casefold/matterflow/internal/authority"
	"github.com/casefold/matterflow/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, satisfied by pgxmock in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	name         TEXT NOT NULL,
	key          TEXT NOT NULL,
	attributes   JSONB NOT NULL DEFAULT '{}',
	history      JSONB NOT NULL DEFAULT '[]',
	confidence   DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	source       TEXT NOT NULL DEFAULT '',
	foundational BOOLEAN NOT NULL DEFAULT FALSE,
	valid_from   TIMESTAMPTZ,
	valid_to     TIMESTAMPTZ,
	jurisdiction TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(type, key)
);

CREATE TABLE IF NOT EXISTS relationships (
	id             TEXT PRIMARY KEY,
	from_entity_id TEXT NOT NULL REFERENCES entities(id),
	to_entity_id   TEXT NOT NULL REFERENCES entities(id),
	type           TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	valid_start    TIMESTAMPTZ NOT NULL,
	valid_end      TIMESTAMPTZ,
	evidence_refs  JSONB NOT NULL DEFAULT '[]',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS citations_cache (
	fingerprint TEXT PRIMARY KEY,
	citations   JSONB NOT NULL,
	provider    TEXT NOT NULL DEFAULT '',
	cached_at   TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS authorities (
	version          INTEGER NOT NULL,
	jurisdiction_id  TEXT NOT NULL,
	precedence_rank  INTEGER NOT NULL,
	domain           TEXT NOT NULL DEFAULT '',
	preemption_scope JSONB NOT NULL DEFAULT '[]',
	loaded_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (version, jurisdiction_id)
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_valid_to ON entities(valid_to);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_entity_id);
CREATE INDEX IF NOT EXISTS idx_citations_expires ON citations_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertEntity(ctx context.Context, e *model.Entity) error {
	attrs, history, err := marshalEntityJSON(e)
	if err != nil {
		return err
	}
	var validFrom, validTo *time.Time
	if e.Temporal != nil {
		validFrom, validTo = e.Temporal.ValidFrom, e.Temporal.ValidTo
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (id, type, name, key, attributes, history, confidence, source, foundational, valid_from, valid_to, jurisdiction, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, string(e.Type), e.Name, EntityKey(e.Name), attrs, history, e.Confidence,
		e.Provenance.Source, e.Provenance.Foundational,
		validFrom, validTo, e.Jurisdiction, e.CreatedAt, e.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert entity")
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	attrs, history, err := marshalEntityJSON(e)
	if err != nil {
		return err
	}
	var validFrom, validTo *time.Time
	if e.Temporal != nil {
		validFrom, validTo = e.Temporal.ValidFrom, e.Temporal.ValidTo
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET attributes = $1, history = $2, confidence = $3, valid_from = $4, valid_to = $5, updated_at = $6 WHERE id = $7`,
		attrs, history, e.Confidence, validFrom, validTo, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update entity %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: entity %s not found", e.ID)
	}
	return nil
}

const pgEntityColumns = `id, type, name, attributes, history, confidence, source, foundational, valid_from, valid_to, jurisdiction, created_at, updated_at`

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgEntityColumns+` FROM entities WHERE id = $1`, id)
	return scanPgEntity(row)
}

func (s *PostgresStore) GetEntityByKey(ctx context.Context, t model.EntityType, key string) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgEntityColumns+` FROM entities WHERE type = $1 AND key = $2`, string(t), key)
	return scanPgEntity(row)
}

func (s *PostgresStore) ListEntitiesByType(ctx context.Context, t model.EntityType, jurisdiction string) ([]model.Entity, error) {
	query := `SELECT ` + pgEntityColumns + ` FROM entities WHERE type = $1`
	args := []any{string(t)}
	if jurisdiction != "" {
		query += ` AND jurisdiction = $2`
		args = append(args, jurisdiction)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()
	return scanPgEntities(rows)
}

func (s *PostgresStore) ListExpiredEntities(ctx context.Context, now time.Time) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgEntityColumns+` FROM entities WHERE valid_to IS NOT NULL AND valid_to < $1`, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list expired entities")
	}
	defer rows.Close()
	return scanPgEntities(rows)
}

func (s *PostgresStore) InsertRelationship(ctx context.Context, r *model.Relationship) error {
	refs, err := json.Marshal(r.EvidenceRefs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence refs")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO relationships (id, from_entity_id, to_entity_id, type, confidence, valid_start, valid_end, evidence_refs, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.FromEntityID, r.ToEntityID, string(r.Type), r.Confidence,
		r.Validity.Start, r.Validity.End, refs, r.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert relationship")
}

func (s *PostgresStore) ListRelationships(ctx context.Context, entityID string) ([]model.Relationship, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, from_entity_id, to_entity_id, type, confidence, valid_start, valid_end, evidence_refs, created_at
		 FROM relationships WHERE from_entity_id = $1 OR to_entity_id = $1`,
		entityID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list relationships")
	}
	defer rows.Close()

	var out []model.Relationship
	for rows.Next() {
		var r model.Relationship
		var relType string
		var refs []byte
		if err := rows.Scan(&r.ID, &r.FromEntityID, &r.ToEntityID, &relType, &r.Confidence,
			&r.Validity.Start, &r.Validity.End, &refs, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan relationship")
		}
		r.Type = model.RelationshipType(relType)
		if err := json.Unmarshal(refs, &r.EvidenceRefs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal evidence refs")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveCitations(ctx context.Context, entry *CachedCitations) error {
	blob, err := json.Marshal(entry.Citations)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal citations")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO citations_cache (fingerprint, citations, provider, cached_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (fingerprint) DO UPDATE SET citations = EXCLUDED.citations, provider = EXCLUDED.provider, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		entry.Fingerprint, blob, entry.Provider, entry.CachedAt, entry.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: save citations")
}

func (s *PostgresStore) GetCitations(ctx context.Context, fingerprint string) (*CachedCitations, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT fingerprint, citations, provider, cached_at, expires_at FROM citations_cache WHERE fingerprint = $1`,
		fingerprint,
	)
	var entry CachedCitations
	var blob []byte
	err := row.Scan(&entry.Fingerprint, &blob, &entry.Provider, &entry.CachedAt, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get citations")
	}
	if err := json.Unmarshal(blob, &entry.Citations); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal citations")
	}
	return &entry, nil
}

func (s *PostgresStore) DeleteExpiredCitations(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM citations_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired citations")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveAuthorities(ctx context.Context, version int, authorities []authority.Authority) error {
	for _, a := range authorities {
		scope, err := json.Marshal(a.PreemptionScope)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal preemption scope")
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO authorities (version, jurisdiction_id, precedence_rank, domain, preemption_scope, loaded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (version, jurisdiction_id) DO NOTHING`,
			version, a.JurisdictionID, a.PrecedenceRank, a.Domain, scope, time.Now().UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: save authority %s", a.JurisdictionID)
		}
	}
	return nil
}

func scanPgEntity(row pgx.Row) (*model.Entity, error) {
	var e model.Entity
	var entType string
	var attrs, history []byte
	var validFrom, validTo *time.Time
	err := row.Scan(&e.ID, &entType, &e.Name, &attrs, &history, &e.Confidence,
		&e.Provenance.Source, &e.Provenance.Foundational, &validFrom, &validTo,
		&e.Jurisdiction, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan entity")
	}
	e.Type = model.EntityType(entType)
	if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal attributes")
	}
	if err := json.Unmarshal(history, &e.History); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal history")
	}
	if validFrom != nil || validTo != nil {
		e.Temporal = &model.TemporalContext{ValidFrom: validFrom, ValidTo: validTo}
	}
	return &e, nil
}

func scanPgEntities(rows pgx.Rows) ([]model.Entity, error) {
	var out []model.Entity
	for rows.Next() {
		e, err := scanPgEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
