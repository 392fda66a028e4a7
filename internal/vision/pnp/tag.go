package pnp

import (
	"github.com/golang/geo/r3"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/vision/geom"
)

// TagModel describes the physical marker: its family and the edge length
// of the black border square in metres.
type TagModel struct {
	Family string
	Size   float64
}

// TagModelFromTuning returns the model for the configured tag family.
func TagModelFromTuning(cfg *config.TuningConfig) TagModel {
	return TagModel{Family: cfg.GetTagFamily(), Size: cfg.GetTagSize()}
}

// Corners returns the marker corners in the solver's marker frame (x right,
// y down, z into the tag), ordered like MarkerDetection.Corners:
// bottom-left, bottom-right, top-right, top-left.
func (m TagModel) Corners() [4]r3.Vector {
	s := m.Size / 2
	return [4]r3.Vector{
		{X: -s, Y: s},
		{X: s, Y: s},
		{X: s, Y: -s},
		{X: -s, Y: -s},
	}
}

// FieldCorners returns the corners of a marker with the given field pose
// (NWU, x out of the tag face) in field coordinates, in the same order as
// Corners.
func (m TagModel) FieldCorners(pose geom.Pose3d) [4]r3.Vector {
	s := m.Size / 2
	local := [4]r3.Vector{
		{Y: -s, Z: -s},
		{Y: s, Z: -s},
		{Y: s, Z: s},
		{Y: -s, Z: s},
	}
	var out [4]r3.Vector
	for i, c := range local {
		out[i] = pose.Translation.Add(pose.Rotation.Rotate(c))
	}
	return out
}
