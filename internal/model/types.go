package model

// Metadata mirrors model_metadata.json. Only ClassNames comes from the training
// export; the remaining fields describe the ONNX graph and fall back to defaults.
type Metadata struct {
	ClassNames  []string `json:"class_names"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	ImageSize   int      `json:"image_size,omitempty"`
	InputLayout Layout   `json:"input_layout,omitempty"`
	Loss        string   `json:"loss,omitempty"`
}

// Layout is the memory order of the network input tensor.
type Layout string

const (
	// LayoutNHWC is the Keras default: [batch, height, width, channels].
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW is [batch, channels, height, width].
	LayoutNCHW Layout = "nchw"
)

// Detection is one class's score compared against its decision threshold.
type Detection struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
	Detected   bool    `json:"detected"`
}

// Prediction is the outcome of a single forward pass.
type Prediction struct {
	// Detections holds only the classes at or above threshold, highest confidence first.
	Detections []Detection `json:"detections"`
	// Scores is the raw network output row, aligned with the catalog.
	Scores []float32 `json:"scores"`
	// AllScores maps every class name to its score. Nil unless requested.
	AllScores map[string]float64 `json:"all_scores,omitempty"`
}

// PredictionRequest carries an already preprocessed input tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}
