package model

import (
	"fmt"
	"image"
	"log"
	"os"

	"gorgonia.org/tensor"

	"github.com/Brownie44l1/cxr-api/internal/imaging"
)

// Paths locates the model artifacts on disk. ClassWeights is optional.
type Paths struct {
	Model        string
	Metadata     string
	Thresholds   string
	ClassWeights string
}

// Options tunes how the network is opened.
type Options struct {
	LibraryPath    string
	IntraOpThreads int
	// OpenNetwork replaces the ONNX Runtime session, mainly for tests.
	OpenNetwork func(SessionConfig) (Network, error)
}

// Classifier is a loaded multi-label classifier with its calibration artifacts.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	meta       Metadata
	thresholds []float64
	weights    []float32
	loss       LossFunc
	size       int
	layout     Layout
	shape      tensor.Shape
	net        Network
}

// Load reads the sidecar artifacts, falling back to defaults where allowed, and opens
// the network. Errors wrap ErrModelLoad or ErrConfig; both are fatal.
func Load(paths Paths, opts Options) (*Classifier, error) {
	log.Printf("Loading model components...")

	meta, err := LoadMetadata(paths.Metadata)
	warnArtifact(err)
	if err == nil {
		log.Printf("Metadata loaded: %d classes", len(meta.ClassNames))
	}

	thresholds, err := LoadThresholds(paths.Thresholds, len(meta.ClassNames))
	if err != nil {
		log.Printf("Warning: could not load thresholds, using default %.1f: %v", DefaultThreshold, err)
	} else {
		log.Printf("Thresholds loaded: %d values", len(thresholds))
	}

	weights, err := LoadClassWeights(paths.ClassWeights, len(meta.ClassNames))
	warnArtifact(err)
	if weights != nil {
		log.Printf("Class weights loaded")
	}

	if _, err := os.Stat(paths.Model); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	size, layout := inputGeometry(meta)
	open := opts.OpenNetwork
	if open == nil {
		open = func(cfg SessionConfig) (Network, error) { return NewSession(cfg) }
	}

	// Resolve the loss reference before paying for session creation.
	if _, err := resolveLoss(meta.Loss, weights, len(meta.ClassNames)); err != nil {
		return nil, err
	}

	net, err := open(SessionConfig{
		ModelPath:      paths.Model,
		LibraryPath:    opts.LibraryPath,
		InputName:      orDefault(meta.InputName, "input"),
		OutputName:     orDefault(meta.OutputName, "output"),
		InputShape:     toInt64(inputShape(size, layout)),
		Classes:        len(meta.ClassNames),
		IntraOpThreads: opts.IntraOpThreads,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	c, err := NewClassifier(meta, thresholds, weights, net)
	if err != nil {
		net.Close()
		return nil, err
	}

	log.Printf("Model loaded from: %s", paths.Model)
	return c, nil
}

// NewClassifier assembles a Classifier from already loaded parts. The number of
// thresholds must match the number of classes.
func NewClassifier(meta Metadata, thresholds []float64, weights []float32, net Network) (*Classifier, error) {
	if len(meta.ClassNames) == 0 {
		meta.ClassNames = defaultCatalog()
	}
	classes := len(meta.ClassNames)

	if len(thresholds) != classes {
		return nil, fmt.Errorf("%w: %d thresholds for %d classes", ErrConfig, len(thresholds), classes)
	}
	if weights != nil && len(weights) != classes {
		return nil, fmt.Errorf("%w: %d class weights for %d classes", ErrConfig, len(weights), classes)
	}

	loss, err := resolveLoss(meta.Loss, weights, classes)
	if err != nil {
		return nil, err
	}

	size, layout := inputGeometry(meta)
	return &Classifier{
		meta:       meta,
		thresholds: append([]float64(nil), thresholds...),
		weights:    weights,
		loss:       loss,
		size:       size,
		layout:     layout,
		shape:      tensor.Shape(inputShape(size, layout)),
		net:        net,
	}, nil
}

// Predict preprocesses img, runs the network and applies the thresholds.
// AllScores is only populated when returnAllScores is set.
func (c *Classifier) Predict(img image.Image, returnAllScores bool) (*Prediction, error) {
	input, err := Preprocess(img, c.size, c.layout)
	if err != nil {
		return nil, err
	}
	return c.PredictDense(input, returnAllScores)
}

// PredictFile decodes the image at path and predicts on it.
func (c *Classifier) PredictFile(path string, returnAllScores bool) (*Prediction, error) {
	img, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return c.Predict(img, returnAllScores)
}

// PredictTensor predicts on input that has already been preprocessed into the
// network layout.
func (c *Classifier) PredictTensor(input []float32, returnAllScores bool) (*Prediction, error) {
	if len(input) != c.InputLen() {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInference, c.InputLen(), len(input))
	}
	dense := tensor.New(tensor.WithShape(c.shape...), tensor.WithBacking(input))
	return c.PredictDense(dense, returnAllScores)
}

// PredictDense predicts on a float32 tensor whose shape must match the network
// input, including the batch dimension and channel order.
func (c *Classifier) PredictDense(input *tensor.Dense, returnAllScores bool) (*Prediction, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: nil input", ErrInference)
	}
	if !input.Shape().Eq(c.shape) {
		return nil, fmt.Errorf("%w: input shape %v, network expects %v", ErrInference, input.Shape(), c.shape)
	}
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: input dtype %v, network expects float32", ErrInference, input.Dtype())
	}
	return c.run(data, returnAllScores)
}

func (c *Classifier) run(input []float32, returnAllScores bool) (*Prediction, error) {
	scores, err := c.net.Run(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	all, err := Evaluate(c.meta.ClassNames, scores, c.thresholds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	p := &Prediction{
		Detections: Detected(all),
		Scores:     scores,
	}
	if returnAllScores {
		p.AllScores = make(map[string]float64, len(all))
		for _, d := range all {
			p.AllScores[d.Disease] = d.Confidence
		}
	}
	return p, nil
}

// Catalog returns the class names in output order.
func (c *Classifier) Catalog() []string {
	return append([]string(nil), c.meta.ClassNames...)
}

// Thresholds returns the effective per-class thresholds.
func (c *Classifier) Thresholds() []float64 {
	return append([]float64(nil), c.thresholds...)
}

// ClassWeights returns the training class weights, or nil when none were loaded.
func (c *Classifier) ClassWeights() []float32 {
	return append([]float32(nil), c.weights...)
}

// Loss returns the reconstructed training loss. It plays no part in prediction.
func (c *Classifier) Loss() LossFunc {
	return c.loss
}

// InputSize returns the square input edge in pixels.
func (c *Classifier) InputSize() int {
	return c.size
}

// InputLen returns the number of float32 values in one preprocessed input.
func (c *Classifier) InputLen() int {
	return 3 * c.size * c.size
}

func (c *Classifier) Close() error {
	if c.net == nil {
		return nil
	}
	return c.net.Close()
}

func inputGeometry(meta Metadata) (int, Layout) {
	size := meta.ImageSize
	if size <= 0 {
		size = InputSize
	}
	layout := meta.InputLayout
	if layout != LayoutNCHW {
		layout = LayoutNHWC
	}
	return size, layout
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func toInt64(dims []int) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		out[i] = int64(d)
	}
	return out
}
