package l6fusion

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/pose.report/internal/vision/geom"
)

// ErrInvalidLayout is returned for malformed field layout documents.
var ErrInvalidLayout = errors.New("invalid field layout")

const maxLayoutBytes = 4 << 20

// LayoutTranslation is a position in metres.
type LayoutTranslation struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// LayoutQuaternion is a rotation as a (not necessarily unit) quaternion.
type LayoutQuaternion struct {
	W float64 `json:"W" yaml:"W"`
	X float64 `json:"X" yaml:"X"`
	Y float64 `json:"Y" yaml:"Y"`
	Z float64 `json:"Z" yaml:"Z"`
}

// LayoutRotation wraps the quaternion the way field layout files nest it.
type LayoutRotation struct {
	Quaternion LayoutQuaternion `json:"quaternion" yaml:"quaternion"`
}

// LayoutPose is a marker pose in the field (NWU).
type LayoutPose struct {
	Translation LayoutTranslation `json:"translation" yaml:"translation"`
	Rotation    LayoutRotation    `json:"rotation" yaml:"rotation"`
}

// LayoutTag is one marker entry.
type LayoutTag struct {
	ID   int        `json:"ID" yaml:"ID"`
	Pose LayoutPose `json:"pose" yaml:"pose"`
}

// FieldSize is the field's extent in metres.
type FieldSize struct {
	Length float64 `json:"length" yaml:"length"`
	Width  float64 `json:"width" yaml:"width"`
}

// FieldLayout is a MarkerMap loaded from a field layout document.
type FieldLayout struct {
	Tags  []LayoutTag `json:"tags" yaml:"tags"`
	Field FieldSize   `json:"field" yaml:"field"`

	poses map[int]geom.Pose3d
}

// NewFieldLayout builds a layout from marker poses.
func NewFieldLayout(poses map[int]geom.Pose3d, field FieldSize) *FieldLayout {
	l := &FieldLayout{Field: field, poses: make(map[int]geom.Pose3d, len(poses))}
	for id, p := range poses {
		q := p.Rotation.Quaternion()
		l.Tags = append(l.Tags, LayoutTag{
			ID: id,
			Pose: LayoutPose{
				Translation: LayoutTranslation{X: p.Translation.X, Y: p.Translation.Y, Z: p.Translation.Z},
				Rotation:    LayoutRotation{Quaternion: LayoutQuaternion{W: q.Real, X: q.Imag, Y: q.Jmag, Z: q.Kmag}},
			},
		})
		l.poses[id] = p
	}
	sort.Slice(l.Tags, func(i, j int) bool { return l.Tags[i].ID < l.Tags[j].ID })
	return l
}

// LoadFieldLayout reads a JSON (.json) or YAML (.yaml, .yml) layout.
func LoadFieldLayout(path string) (*FieldLayout, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat field layout: %w", err)
	}
	if info.Size() > maxLayoutBytes {
		return nil, fmt.Errorf("field layout too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field layout: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseFieldLayoutJSON(data)
	case ".yaml", ".yml":
		return ParseFieldLayoutYAML(data)
	default:
		return nil, fmt.Errorf("field layout must be .json, .yaml or .yml, got %q", ext)
	}
}

// ParseFieldLayoutJSON decodes a JSON layout document.
func ParseFieldLayoutJSON(data []byte) (*FieldLayout, error) {
	var l FieldLayout
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return &l, l.index()
}

// ParseFieldLayoutYAML decodes a YAML layout document.
func ParseFieldLayoutYAML(data []byte) (*FieldLayout, error) {
	var l FieldLayout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return &l, l.index()
}

func (l *FieldLayout) index() error {
	l.poses = make(map[int]geom.Pose3d, len(l.Tags))
	for _, t := range l.Tags {
		if _, dup := l.poses[t.ID]; dup {
			return fmt.Errorf("%w: duplicate tag ID %d", ErrInvalidLayout, t.ID)
		}
		q := t.Pose.Rotation.Quaternion
		if q.W == 0 && q.X == 0 && q.Y == 0 && q.Z == 0 {
			return fmt.Errorf("%w: tag %d has a zero quaternion", ErrInvalidLayout, t.ID)
		}
		tr := t.Pose.Translation
		l.poses[t.ID] = geom.NewPose3d(
			r3.Vector{X: tr.X, Y: tr.Y, Z: tr.Z},
			geom.NewRotationFromQuaternion(quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}),
		)
	}
	return nil
}

// MarkerPose implements MarkerMap.
func (l *FieldLayout) MarkerPose(id int) (geom.Pose3d, bool) {
	if l == nil {
		return geom.Pose3d{}, false
	}
	p, ok := l.poses[id]
	return p, ok
}

// IDs returns the known marker IDs in ascending order.
func (l *FieldLayout) IDs() []int {
	ids := make([]int, 0, len(l.poses))
	for id := range l.poses {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
