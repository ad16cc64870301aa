package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/casefold/matterflow/internal/authority"
	"github.com/casefold/matterflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	name         TEXT NOT NULL,
	key          TEXT NOT NULL,
	attributes   TEXT NOT NULL DEFAULT '{}',
	history      TEXT NOT NULL DEFAULT '[]',
	confidence   REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	source       TEXT NOT NULL DEFAULT '',
	foundational INTEGER NOT NULL DEFAULT 0,
	valid_from   DATETIME,
	valid_to     DATETIME,
	jurisdiction TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(type, key)
);

CREATE TABLE IF NOT EXISTS relationships (
	id             TEXT PRIMARY KEY,
	from_entity_id TEXT NOT NULL REFERENCES entities(id),
	to_entity_id   TEXT NOT NULL REFERENCES entities(id),
	type           TEXT NOT NULL,
	confidence     REAL NOT NULL,
	valid_start    DATETIME NOT NULL,
	valid_end      DATETIME,
	evidence_refs  TEXT NOT NULL DEFAULT '[]',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS citations_cache (
	fingerprint TEXT PRIMARY KEY,
	citations   TEXT NOT NULL,
	provider    TEXT NOT NULL DEFAULT '',
	cached_at   DATETIME NOT NULL,
	expires_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS authorities (
	version          INTEGER NOT NULL,
	jurisdiction_id  TEXT NOT NULL,
	precedence_rank  INTEGER NOT NULL,
	domain           TEXT NOT NULL DEFAULT '',
	preemption_scope TEXT NOT NULL DEFAULT '[]',
	loaded_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (version, jurisdiction_id)
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_valid_to ON entities(valid_to);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_entity_id);
CREATE INDEX IF NOT EXISTS idx_citations_expires ON citations_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertEntity(ctx context.Context, e *model.Entity) error {
	attrs, history, err := marshalEntityJSON(e)
	if err != nil {
		return err
	}
	var validFrom, validTo *time.Time
	if e.Temporal != nil {
		validFrom, validTo = e.Temporal.ValidFrom, e.Temporal.ValidTo
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (id, type, name, key, attributes, history, confidence, source, foundational, valid_from, valid_to, jurisdiction, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Name, EntityKey(e.Name), attrs, history, e.Confidence,
		e.Provenance.Source, boolToInt(e.Provenance.Foundational),
		validFrom, validTo, e.Jurisdiction, e.CreatedAt, e.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert entity")
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	attrs, history, err := marshalEntityJSON(e)
	if err != nil {
		return err
	}
	var validFrom, validTo *time.Time
	if e.Temporal != nil {
		validFrom, validTo = e.Temporal.ValidFrom, e.Temporal.ValidTo
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET attributes = ?, history = ?, confidence = ?, valid_from = ?, valid_to = ?, updated_at = ? WHERE id = ?`,
		attrs, history, e.Confidence, validFrom, validTo, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entity %s", e.ID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("sqlite: entity %s not found", e.ID)
	}
	return nil
}

const entityColumns = `id, type, name, attributes, history, confidence, source, foundational, valid_from, valid_to, jurisdiction, created_at, updated_at`

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

func (s *SQLiteStore) GetEntityByKey(ctx context.Context, t model.EntityType, key string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE type = ? AND key = ?`, string(t), key)
	return scanEntity(row)
}

func (s *SQLiteStore) ListEntitiesByType(ctx context.Context, t model.EntityType, jurisdiction string) ([]model.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE type = ?`
	args := []any{string(t)}
	if jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, jurisdiction)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *SQLiteStore) ListExpiredEntities(ctx context.Context, now time.Time) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE valid_to IS NOT NULL AND valid_to < ?`, now)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list expired entities")
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *SQLiteStore) InsertRelationship(ctx context.Context, r *model.Relationship) error {
	refs, err := json.Marshal(r.EvidenceRefs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence refs")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO relationships (id, from_entity_id, to_entity_id, type, confidence, valid_start, valid_end, evidence_refs, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FromEntityID, r.ToEntityID, string(r.Type), r.Confidence,
		r.Validity.Start, r.Validity.End, string(refs), r.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert relationship")
}

func (s *SQLiteStore) ListRelationships(ctx context.Context, entityID string) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_entity_id, to_entity_id, type, confidence, valid_start, valid_end, evidence_refs, created_at
		 FROM relationships WHERE from_entity_id = ? OR to_entity_id = ?`,
		entityID, entityID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list relationships")
	}
	defer rows.Close()

	var out []model.Relationship
	for rows.Next() {
		var r model.Relationship
		var relType, refs string
		if err := rows.Scan(&r.ID, &r.FromEntityID, &r.ToEntityID, &relType, &r.Confidence,
			&r.Validity.Start, &r.Validity.End, &refs, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan relationship")
		}
		r.Type = model.RelationshipType(relType)
		if err := json.Unmarshal([]byte(refs), &r.EvidenceRefs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal evidence refs")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveCitations(ctx context.Context, entry *CachedCitations) error {
	blob, err := json.Marshal(entry.Citations)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal citations")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO citations_cache (fingerprint, citations, provider, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET citations = excluded.citations, provider = excluded.provider, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		entry.Fingerprint, string(blob), entry.Provider, entry.CachedAt, entry.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: save citations")
}

func (s *SQLiteStore) GetCitations(ctx context.Context, fingerprint string) (*CachedCitations, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, citations, provider, cached_at, expires_at FROM citations_cache WHERE fingerprint = ?`,
		fingerprint,
	)
	var entry CachedCitations
	var blob string
	err := row.Scan(&entry.Fingerprint, &blob, &entry.Provider, &entry.CachedAt, &entry.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get citations")
	}
	if err := json.Unmarshal([]byte(blob), &entry.Citations); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal citations")
	}
	return &entry, nil
}

func (s *SQLiteStore) DeleteExpiredCitations(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM citations_cache WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired citations")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) SaveAuthorities(ctx context.Context, version int, authorities []authority.Authority) error {
	for _, a := range authorities {
		scope, err := json.Marshal(a.PreemptionScope)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal preemption scope")
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO authorities (version, jurisdiction_id, precedence_rank, domain, preemption_scope, loaded_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(version, jurisdiction_id) DO NOTHING`,
			version, a.JurisdictionID, a.PrecedenceRank, a.Domain, string(scope), time.Now().UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save authority %s", a.JurisdictionID)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var e model.Entity
	var entType, attrs, history string
	var foundational int
	var validFrom, validTo sql.NullTime
	err := row.Scan(&e.ID, &entType, &e.Name, &attrs, &history, &e.Confidence,
		&e.Provenance.Source, &foundational, &validFrom, &validTo,
		&e.Jurisdiction, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan entity")
	}
	e.Type = model.EntityType(entType)
	e.Provenance.Foundational = foundational != 0
	if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal attributes")
	}
	if err := json.Unmarshal([]byte(history), &e.History); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal history")
	}
	if validFrom.Valid || validTo.Valid {
		e.Temporal = &model.TemporalContext{}
		if validFrom.Valid {
			t := validFrom.Time
			e.Temporal.ValidFrom = &t
		}
		if validTo.Valid {
			t := validTo.Time
			e.Temporal.ValidTo = &t
		}
	}
	return &e, nil
}

func scanEntities(rows *sql.Rows) ([]model.Entity, error) {
	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func marshalEntityJSON(e *model.Entity) (attrs, history string, err error) {
	a, err := json.Marshal(e.Attributes)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal attributes")
	}
	h := e.History
	if h == nil {
		h = []model.AttributeRevision{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", "", eris.Wrap(err, "marshal history")
	}
	return string(a), string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
