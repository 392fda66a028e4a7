package config

import (
	"encoding/json"
	"fmt"
)

// Resolution is the image size a calibration was computed at.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Calibration is the camera calibration document consumed by the pipeline.
// The camera matrix is row-major [fx 0 cx; 0 fy cy; 0 0 1]. Distortion
// coefficients are carried for completeness and are not applied.
type Calibration struct {
	Resolution   Resolution `json:"resolution"`
	CameraMatrix []float64  `json:"camera_matrix"`
	DistCoeffs   []float64  `json:"dist_coeffs,omitempty"`
}

// Matrix returns the camera matrix as a fixed-size array.
func (c *Calibration) Matrix() [9]float64 {
	var k [9]float64
	copy(k[:], c.CameraMatrix)
	return k
}

// LoadCalibration reads a calibration JSON file.
func LoadCalibration(path string) (*Calibration, error) {
	data, err := readBoundedFile(path, ".json")
	if err != nil {
		return nil, err
	}
	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("failed to parse calibration JSON: %w", err)
	}
	if len(cal.CameraMatrix) != 9 {
		return nil, fmt.Errorf("camera_matrix must have 9 entries, got %d", len(cal.CameraMatrix))
	}
	if cal.Resolution.Width <= 0 || cal.Resolution.Height <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %dx%d", cal.Resolution.Width, cal.Resolution.Height)
	}
	return &cal, nil
}
