package botdetect

import (
	"context"
	"fmt"
)

// Severity grades how strongly a signal indicates automation
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Weight is the score contribution of a signal with this severity
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 100
	case SeverityHigh:
		return 40
	case SeverityMedium:
		return 20
	case SeverityLow:
		return 10
	default:
		return 0
	}
}

// Signal is one piece of evidence raised by a detector
type Signal struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail,omitempty"`
}

// Submission is a form post together with the headers that came with it
type Submission struct {
	Fields         map[string]any
	UserAgent      string
	Accept         string
	AcceptLanguage string
}

// Field returns the named form value as a string, or "" if absent
func (s Submission) Field(name string) string {
	v, ok := s.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Detector inspects a submission and reports any signals it finds
type Detector interface {
	Name() string
	Detect(ctx context.Context, sub Submission) ([]Signal, error)
}
