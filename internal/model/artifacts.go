package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
)

// DefaultThreshold is used for every class when no calibrated thresholds are available.
const DefaultThreshold = 0.5

// DefaultClassNames is the NIH ChestX-ray14 label order the network was trained on.
var DefaultClassNames = []string{
	"Atelectasis", "Consolidation", "Infiltration", "Pneumothorax",
	"Edema", "Emphysema", "Fibrosis", "Effusion", "Pneumonia",
	"Pleural_Thickening", "Cardiomegaly", "Nodule", "Mass", "Hernia",
}

// LoadMetadata reads the metadata sidecar. It never fails: an unreadable file or a
// missing class_names field yields the default catalog, and the returned error
// (wrapping ErrArtifactLoad) only reports that the fallback was taken.
func LoadMetadata(path string) (Metadata, error) {
	meta := Metadata{}

	data, err := os.ReadFile(path)
	if err != nil {
		meta.ClassNames = defaultCatalog()
		return meta, fmt.Errorf("%w: read metadata: %w", ErrArtifactLoad, err)
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		meta = Metadata{ClassNames: defaultCatalog()}
		return meta, fmt.Errorf("%w: parse metadata: %w", ErrArtifactLoad, err)
	}

	if len(meta.ClassNames) == 0 {
		meta.ClassNames = defaultCatalog()
		return meta, fmt.Errorf("%w: metadata has no class_names", ErrArtifactLoad)
	}

	return meta, nil
}

// LoadThresholds reads the per-class decision thresholds. On any failure every class
// gets DefaultThreshold; the error wraps ErrArtifactLoad.
func LoadThresholds(path string, classes int) ([]float64, error) {
	values, err := readVector(path)
	if err != nil {
		return uniform(classes, DefaultThreshold), fmt.Errorf("%w: thresholds: %w", ErrArtifactLoad, err)
	}
	return values, nil
}

// LoadClassWeights reads the optional training-time class weights. A nil slice means
// no weights are available, either because path is empty, the file is absent, or it
// could not be read (the latter is reported with ErrArtifactLoad).
func LoadClassWeights(path string, classes int) ([]float32, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}

	values, err := readVector(path)
	if err != nil {
		return nil, fmt.Errorf("%w: class weights: %w", ErrArtifactLoad, err)
	}
	if len(values) != classes {
		return nil, fmt.Errorf("%w: class weights: got %d values for %d classes", ErrArtifactLoad, len(values), classes)
	}

	weights := make([]float32, len(values))
	for i, v := range values {
		weights[i] = float32(v)
	}
	return weights, nil
}

// readVector decodes a one-dimensional float array stored either as a NumPy .npy
// file or as a JSON array.
func readVector(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var values []float64
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("decode json array: %w", err)
		}
		return values, nil
	}

	var f64 []float64
	if err := npyio.Read(bytes.NewReader(data), &f64); err == nil {
		return f64, nil
	}

	var f32 []float32
	if err := npyio.Read(bytes.NewReader(data), &f32); err != nil {
		return nil, fmt.Errorf("decode npy array: %w", err)
	}
	values := make([]float64, len(f32))
	for i, v := range f32 {
		values[i] = float64(v)
	}
	return values, nil
}

func defaultCatalog() []string {
	return append([]string(nil), DefaultClassNames...)
}

func uniform(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func warnArtifact(err error) {
	if err != nil {
		log.Printf("Warning: %v", err)
	}
}
