// Package store persists detection runs, candidates and OSM stations behind
// a driver-agnostic interface with SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"time"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

// RunStatus tracks the lifecycle of a detection run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one detection invocation over a bounding box.
type Run struct {
	ID             string      `json:"id"`
	Profile        string      `json:"profile"`
	City           string      `json:"city,omitempty"`
	BBox           georef.BBox `json:"bbox"`
	Status         RunStatus   `json:"status"`
	CandidateCount int         `json:"candidate_count"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  RunStatus `json:"status,omitempty"`
	Profile string    `json:"profile,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// Store defines persistence for the detection pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, profile, city string, bbox georef.BBox) (*Run, error)
	FinishRun(ctx context.Context, runID string, candidateCount int, runErr error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Candidates
	SaveCandidates(ctx context.Context, runID string, candidates []detect.Candidate) error
	ListCandidates(ctx context.Context, runID string) ([]detect.Candidate, error)

	// OSM ground truth
	SaveStations(ctx context.Context, area string, stations []overpass.Station) error
	StationsInBBox(ctx context.Context, bbox georef.BBox) ([]overpass.Station, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
