package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/urbansports/fieldscout/internal/db"
	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run": `INSERT INTO runs (id, profile, city, bbox, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"finish_run": `UPDATE runs SET status = $1, candidate_count = $2, error = $3, updated_at = $4 WHERE id = $5`,
	"get_run":    `SELECT id, profile, city, bbox, status, candidate_count, error, created_at, updated_at FROM runs WHERE id = $1`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	profile         TEXT NOT NULL,
	city            TEXT NOT NULL DEFAULT '',
	bbox            JSONB NOT NULL,
	status          TEXT NOT NULL DEFAULT 'running',
	candidate_count INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS candidates (
	id       TEXT NOT NULL,
	run_id   TEXT NOT NULL REFERENCES runs(id),
	score    DOUBLE PRECISION NOT NULL,
	lon      DOUBLE PRECISION NOT NULL,
	lat      DOUBLE PRECISION NOT NULL,
	data     JSONB NOT NULL,
	geometry TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS stations (
	osm_type   TEXT NOT NULL,
	osm_id     BIGINT NOT NULL,
	area       TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	lat        DOUBLE PRECISION NOT NULL,
	lon        DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	source     TEXT NOT NULL,
	tags       JSONB NOT NULL DEFAULT '{}',
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (osm_type, osm_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_profile ON runs(profile);
CREATE INDEX IF NOT EXISTS idx_candidates_run_id ON candidates(run_id);
CREATE INDEX IF NOT EXISTS idx_stations_lat_lon ON stations(lat, lon);
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

func (s *PostgresStore) CreateRun(ctx context.Context, profile, city string, bbox georef.BBox) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	bboxJSON, err := json.Marshal(bbox)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal bbox")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, profile, city, bbox, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, profile, city, string(bboxJSON), string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &Run{
		ID:        id,
		Profile:   profile,
		City:      city,
		BBox:      bbox,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, candidateCount int, runErr error) error {
	status := RunStatusComplete
	errMsg := ""
	if runErr != nil {
		status = RunStatusFailed
		errMsg = runErr.Error()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, candidate_count = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), candidateCount, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, profile, city, bbox, status, candidate_count, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, profile, city, bbox, status, candidate_count, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.Profile != "" {
		args = append(args, filter.Profile)
		query += ` AND profile = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveCandidates(ctx context.Context, runID string, candidates []detect.Candidate) error {
	rows := make([][]any, 0, len(candidates))
	for _, c := range candidates {
		data, err := json.Marshal(c)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal candidate %s", c.ID)
		}
		geometry, err := encodeGeometry(c.Polygon)
		if err != nil {
			return err
		}
		rows = append(rows, []any{c.ID, runID, c.Score, c.Lon, c.Lat, string(data), geometry})
	}

	_, err := db.CopyFrom(ctx, s.pool, "candidates",
		[]string{"id", "run_id", "score", "lon", "lat", "data", "geometry"}, rows)
	return err
}

func (s *PostgresStore) ListCandidates(ctx context.Context, runID string) ([]detect.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data, geometry FROM candidates WHERE run_id = $1 ORDER BY score DESC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list candidates for run %s", runID)
	}
	defer rows.Close()

	var candidates []detect.Candidate
	for rows.Next() {
		var data []byte
		var geometry string
		if err := rows.Scan(&data, &geometry); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		var c detect.Candidate
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal candidate")
		}
		if c.Polygon, err = decodeGeometry(geometry); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) SaveStations(ctx context.Context, area string, stations []overpass.Station) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(stations))
	for _, st := range stations {
		tags, err := json.Marshal(st.Tags)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal tags for station %d", st.OSMID)
		}
		rows = append(rows, []any{st.OSMType, st.OSMID, area, st.Name, st.Lat, st.Lon, st.Confidence, st.Source, string(tags), now})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "stations",
		Columns:      []string{"osm_type", "osm_id", "area", "name", "lat", "lon", "confidence", "source", "tags", "fetched_at"},
		ConflictKeys: []string{"osm_type", "osm_id"},
	}, rows)
	return err
}

func (s *PostgresStore) StationsInBBox(ctx context.Context, bbox georef.BBox) ([]overpass.Station, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT osm_type, osm_id, name, lat, lon, confidence, source, tags FROM stations
		 WHERE lat BETWEEN $1 AND $2 AND lon BETWEEN $3 AND $4`,
		bbox.South, bbox.North, bbox.West, bbox.East,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stations in bbox")
	}
	defer rows.Close()

	var stations []overpass.Station
	for rows.Next() {
		var st overpass.Station
		var tags []byte
		if err := rows.Scan(&st.OSMType, &st.OSMID, &st.Name, &st.Lat, &st.Lon, &st.Confidence, &st.Source, &tags); err != nil {
			return nil, eris.Wrap(err, "postgres: scan station")
		}
		if err := json.Unmarshal(tags, &st.Tags); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal station tags")
		}
		stations = append(stations, st)
	}
	return stations, eris.Wrap(rows.Err(), "postgres: stations iterate")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	var bboxJSON []byte
	var status string

	err := row.Scan(&r.ID, &r.Profile, &r.City, &bboxJSON, &status, &r.CandidateCount, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, err
	}

	r.Status = RunStatus(status)
	if err := json.Unmarshal(bboxJSON, &r.BBox); err != nil {
		return nil, eris.Wrap(err, "unmarshal bbox")
	}
	return &r, nil
}

