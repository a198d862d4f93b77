package model

import "errors"

var (
	// ErrModelLoad means the network graph could not be deserialized. Fatal.
	ErrModelLoad = errors.New("model load failed")
	// ErrArtifactLoad marks a sidecar artifact that was replaced by its default.
	ErrArtifactLoad = errors.New("artifact load failed")
	// ErrConfig means the loaded artifacts disagree on the number of classes. Fatal.
	ErrConfig = errors.New("model configuration error")
	// ErrInference means the forward pass failed. The request is aborted.
	ErrInference = errors.New("inference failed")
)
