package auditlog

import "fmt"

// Options configures which Store implementation New builds.
type Options struct {
	// Rotate enables size/age-based rotation of the JSONL file. When
	// false, Path grows unbounded.
	Rotate     bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a Store from Options. Rotation requires MaxSizeMB > 0.
func New(o Options) (Store, error) {
	if o.Path == "" {
		return nil, fmt.Errorf("auditlog: path is required")
	}
	if o.Rotate && o.MaxSizeMB > 0 {
		return NewRotatingJSONLStore(o.Path, o.MaxSizeMB, o.MaxBackups, o.MaxAgeDays)
	}
	return NewJSONLStore(o.Path)
}
