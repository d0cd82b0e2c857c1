// Package core implements the staging-to-target reconciliation pipeline
// and its surrounding workspace and serialization guarantees.
//
// The ingest path saves and extracts an uploaded archive into a
// per-request workspace, imports the shapefile into the staging
// relation through the conversion gateway, merges staging into the
// target relation, and truncates staging. The export path runs the
// gateway in the other direction and packages the result for delivery.
package core

import (
	"context"

	"github.com/geostage/shpgate/internal/config"
	"github.com/geostage/shpgate/internal/database"
	"github.com/geostage/shpgate/internal/gis"
	"github.com/geostage/shpgate/internal/workspace"
)

// Service wires the pipelines to their collaborators. All fields are
// set at construction and never mutated.
type Service struct {
	db         database.DB
	converter  gis.Converter
	workspaces *workspace.Manager
	gate       *StagingGate

	targetTable    string
	stagingTable   string
	idColumn       string
	maxUploadBytes int64
}

// NewService builds a Service from the resolved configuration.
func NewService(db database.DB, converter gis.Converter, cfg *config.Config) *Service {
	return &Service{
		db:             db,
		converter:      converter,
		workspaces:     workspace.NewManager(cfg.Convert.WorkspaceRoot),
		gate:           NewStagingGate(cfg.Pipeline.IngestWaitTimeout),
		targetTable:    cfg.Pipeline.TargetTable,
		stagingTable:   cfg.Pipeline.StagingTable,
		idColumn:       cfg.Pipeline.IDColumn,
		maxUploadBytes: cfg.Pipeline.MaxUploadBytes,
	}
}

// MaxUploadBytes returns the configured upload size cap.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// GateStatus reports the staging gate's current state.
func (s *Service) GateStatus() GateStatus {
	return s.gate.Status()
}

// WaitForDrain blocks until no reconciliation is in flight. Used at
// shutdown before the database pool is closed.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.gate.WaitForDrain(ctx)
}
