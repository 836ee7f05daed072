package models

import (
	"time"

	"github.com/aukilabs/quadrant/quadtree"
)

// RunSummary is the JSON representation of a run without its content.
type RunSummary struct {
	ID        string             `json:"id"`
	UUID      string             `json:"uuid"`
	Boundary  quadtree.Rectangle `json:"boundary"`
	Capacity  int                `json:"capacity"`
	Inserted  int                `json:"inserted"`
	Rejected  int                `json:"rejected"`
	CreatedAt time.Time          `json:"created_at"`
}

// RunDocument is the JSON representation of a run.
type RunDocument struct {
	RunSummary

	Points     []quadtree.Point     `json:"points,omitempty"`
	Boundaries []quadtree.Rectangle `json:"boundaries,omitempty"`
	Stats      quadtree.Stats       `json:"stats"`
}

// QueryResult is the JSON representation of a range query.
type QueryResult struct {
	Range  quadtree.Rectangle `json:"range"`
	Points []quadtree.Point   `json:"points"`
}

// DocumentOptions selects the optional parts of a run document.
type DocumentOptions struct {
	WithoutPoints     bool
	WithoutBoundaries bool
}

// Summary returns the summary of the given run.
func (s *RunStore) Summary(r *Run) RunSummary {
	return RunSummary{
		ID:        s.GlobalRunID(r.ID),
		UUID:      r.RunUUID,
		Boundary:  r.Boundary(),
		Capacity:  r.Capacity(),
		Inserted:  r.Inserted(),
		Rejected:  r.Rejected(),
		CreatedAt: r.CreatedAt,
	}
}

// Document returns the document of the given run.
func (s *RunStore) Document(r *Run, opts DocumentOptions) RunDocument {
	doc := RunDocument{
		RunSummary: s.Summary(r),
		Stats:      r.Stats(),
	}

	if !opts.WithoutPoints {
		doc.Points = r.Points()
	}
	if !opts.WithoutBoundaries {
		doc.Boundaries = r.Boundaries()
	}
	return doc
}
