package pipeline

// LanguageStatus represents the progress of publishing one language.
type LanguageStatus struct {
	Language string
	Stage    string // "waiting", "rendering", "done", "error"
	Keys     int
	Missing  int
	Errors   int
}

// RenderError wraps a per-language publish failure so callers can
// distinguish it from errors that must stop the whole run.
type RenderError struct {
	Language string
	Err      error
}

func (e *RenderError) Error() string { return e.Err.Error() }
func (e *RenderError) Unwrap() error { return e.Err }
