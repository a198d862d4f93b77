package model

import "sync"

// Handle constructs a Classifier at most once and shares it afterwards. A failed
// load is remembered; later calls return the same error.
type Handle struct {
	once  sync.Once
	load  func() (*Classifier, error)
	model *Classifier
	err   error
}

// NewHandle returns a Handle that loads the classifier from paths on first use.
func NewHandle(paths Paths, opts Options) *Handle {
	return NewHandleFunc(func() (*Classifier, error) {
		return Load(paths, opts)
	})
}

// NewHandleFunc returns a Handle backed by an arbitrary constructor.
func NewHandleFunc(load func() (*Classifier, error)) *Handle {
	return &Handle{load: load}
}

// Get returns the shared classifier, loading it on the first call.
func (h *Handle) Get() (*Classifier, error) {
	h.once.Do(func() {
		h.model, h.err = h.load()
	})
	return h.model, h.err
}

// Close releases the classifier if it was ever loaded.
func (h *Handle) Close() error {
	h.once.Do(func() {})
	if h.model == nil {
		return nil
	}
	return h.model.Close()
}
