package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	profile         TEXT NOT NULL,
	city            TEXT NOT NULL DEFAULT '',
	bbox            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'running',
	candidate_count INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS candidates (
	id       TEXT NOT NULL,
	run_id   TEXT NOT NULL REFERENCES runs(id),
	score    REAL NOT NULL,
	lon      REAL NOT NULL,
	lat      REAL NOT NULL,
	data     TEXT NOT NULL,
	geometry TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS stations (
	osm_type   TEXT NOT NULL,
	osm_id     INTEGER NOT NULL,
	area       TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL,
	confidence REAL NOT NULL,
	source     TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT '{}',
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (osm_type, osm_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_profile ON runs(profile);
CREATE INDEX IF NOT EXISTS idx_candidates_run_id ON candidates(run_id);
CREATE INDEX IF NOT EXISTS idx_stations_lat_lon ON stations(lat, lon);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, profile, city string, bbox georef.BBox) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	bboxJSON, err := json.Marshal(bbox)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal bbox")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, profile, city, bbox, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, profile, city, string(bboxJSON), string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, candidateCount int, runErr error) error {
	status := RunStatusComplete
	errMsg := ""
	if runErr != nil {
		status = RunStatusFailed
		errMsg = runErr.Error()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, candidate_count = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), candidateCount, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, profile, city, bbox, status, candidate_count, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, profile, city, bbox, status, candidate_count, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Profile != "" {
		query += ` AND profile = ?`
		args = append(args, filter.Profile)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveCandidates(ctx context.Context, runID string, candidates []detect.Candidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO candidates (id, run_id, score, lon, lat, data, geometry) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert candidate")
	}
	defer stmt.Close()

	for _, c := range candidates {
		data, err := json.Marshal(c)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal candidate %s", c.ID)
		}
		geometry, err := encodeGeometry(c.Polygon)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.ID, runID, c.Score, c.Lon, c.Lat, string(data), geometry); err != nil {
			return eris.Wrapf(err, "sqlite: insert candidate %s", c.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit candidates")
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, runID string) ([]detect.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data, geometry FROM candidates WHERE run_id = ? ORDER BY score DESC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list candidates for run %s", runID)
	}
	defer rows.Close()

	var candidates []detect.Candidate
	for rows.Next() {
		var data, geometry string
		if err := rows.Scan(&data, &geometry); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		var c detect.Candidate
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal candidate")
		}
		if c.Polygon, err = decodeGeometry(geometry); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) SaveStations(ctx context.Context, area string, stations []overpass.Station) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO stations (osm_type, osm_id, area, name, lat, lon, confidence, source, tags, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert station")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, st := range stations {
		tags, err := json.Marshal(st.Tags)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal tags for station %d", st.OSMID)
		}
		_, err = stmt.ExecContext(ctx,
			st.OSMType, st.OSMID, area, st.Name, st.Lat, st.Lon, st.Confidence, st.Source, string(tags), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert station %d", st.OSMID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit stations")
}

func (s *SQLiteStore) StationsInBBox(ctx context.Context, bbox georef.BBox) ([]overpass.Station, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT osm_type, osm_id, name, lat, lon, confidence, source, tags FROM stations
		 WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`,
		bbox.South, bbox.North, bbox.West, bbox.East,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stations in bbox")
	}
	defer rows.Close()

	var stations []overpass.Station
	for rows.Next() {
		var st overpass.Station
		var tags string
		if err := rows.Scan(&st.OSMType, &st.OSMID, &st.Name, &st.Lat, &st.Lon, &st.Confidence, &st.Source, &tags); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan station")
		}
		if err := json.Unmarshal([]byte(tags), &st.Tags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal station tags")
		}
		stations = append(stations, st)
	}
	return stations, eris.Wrap(rows.Err(), "sqlite: stations iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var bboxJSON string
	var status string

	err := row.Scan(&r.ID, &r.Profile, &r.City, &bboxJSON, &status, &r.CandidateCount, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Status = RunStatus(status)
	if err := json.Unmarshal([]byte(bboxJSON), &r.BBox); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal bbox")
	}
	return &r, nil
}
