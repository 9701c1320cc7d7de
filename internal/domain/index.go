package domain

import (
	"fmt"
	"strings"
)

// Metric is the distance metric of the vector index.
type Metric string

// Supported distance metrics.
const (
	MetricCosine Metric = "COSINE"
	MetricL2     Metric = "L2"
	MetricIP     Metric = "IP"
)

// ParseMetric normalizes a metric name (case-insensitive). Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToUpper(strings.TrimSpace(s))) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricL2:
		return MetricL2, nil
	case MetricIP:
		return MetricIP, nil
	default:
		return "", fmt.Errorf("unknown metric %q: %w", s, ErrInvalidRequest)
	}
}

// IndexSpec is the configuration an index is created with.
type IndexSpec struct {
	Dimension int
	Metric    Metric
}

// Validate checks that the spec describes a creatable index.
func (s IndexSpec) Validate() error {
	if s.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d: %w", s.Dimension, ErrInvalidRequest)
	}
	if _, err := ParseMetric(string(s.Metric)); err != nil {
		return err
	}
	return nil
}

// Index status values reported by DescribeIndex.
const (
	IndexStatusReady   = "ready"
	IndexStatusMissing = "missing"
)

// IndexInfo describes the live vector index.
type IndexInfo struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
	Status    string `json:"status"`
	Host      string `json:"host"`
}

// AdminResult is the outcome of an index lifecycle call.
type AdminResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	IndexInfo *IndexInfo `json:"index_info,omitempty"`
}
