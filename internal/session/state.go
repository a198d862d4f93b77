// Package session keeps the per-browser dashboard state.
package session

import (
	"time"

	"github.com/Brownie44l1/cxr-api/internal/model"
)

// View selects which details panel the dashboard shows below the results.
type View string

const (
	ViewNone  View = "none"
	ViewTable View = "table"
	ViewChart View = "chart"
)

// ParseView returns the view named by s, or false if s is not a view.
func ParseView(s string) (View, bool) {
	switch View(s) {
	case ViewNone, ViewTable, ViewChart:
		return View(s), true
	}
	return "", false
}

// Theme is presentation only.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// State is everything the dashboard renders for one browser session.
type State struct {
	ID        string
	View      View
	Theme     Theme
	Upload    []byte // last uploaded image, as received
	Filename  string
	Result    *model.Prediction
	Error     string // message from the last failed action, shown once
	UpdatedAt time.Time
}

// NewState returns the initial state: no upload, no details panel, light theme.
func NewState(id string) *State {
	return &State{
		ID:        id,
		View:      ViewNone,
		Theme:     ThemeLight,
		UpdatedAt: time.Now(),
	}
}

// SetView switches the details panel.
func (s *State) SetView(v View) {
	s.View = v
	s.UpdatedAt = time.Now()
}

// ToggleTheme flips between light and dark.
func (s *State) ToggleTheme() {
	if s.Theme == ThemeDark {
		s.Theme = ThemeLight
	} else {
		s.Theme = ThemeDark
	}
	s.UpdatedAt = time.Now()
}

// SetResult stores a finished analysis together with the image it was run on.
func (s *State) SetResult(upload []byte, filename string, result *model.Prediction) {
	s.Upload = upload
	s.Filename = filename
	s.Result = result
	s.Error = ""
	s.UpdatedAt = time.Now()
}

// Fail records a user-visible error and drops any earlier result.
func (s *State) Fail(msg string) {
	s.Upload = nil
	s.Filename = ""
	s.Result = nil
	s.Error = msg
	s.UpdatedAt = time.Now()
}

// TakeError returns the pending error message and clears it.
func (s *State) TakeError() string {
	msg := s.Error
	s.Error = ""
	return msg
}
