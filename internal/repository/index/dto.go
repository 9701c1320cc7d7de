package index

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/profdex/internal/domain"
)

// Meta hash fields: {prefix}index:{name}
const (
	metaDimension = "dimension"
	metaMetric    = "metric"
	metaCreatedAt = "created_at"
)

func specToMeta(spec domain.IndexSpec, now time.Time) map[string]string {
	return map[string]string{
		metaDimension: strconv.Itoa(spec.Dimension),
		metaMetric:    string(spec.Metric),
		metaCreatedAt: strconv.FormatInt(now.UnixMilli(), 10),
	}
}

func metaToSpec(m map[string]string) (domain.IndexSpec, error) {
	dim, err := strconv.Atoi(m[metaDimension])
	if err != nil {
		return domain.IndexSpec{}, fmt.Errorf("parse dimension: %w", err)
	}
	metric, err := domain.ParseMetric(m[metaMetric])
	if err != nil {
		return domain.IndexSpec{}, fmt.Errorf("parse metric: %w", err)
	}
	return domain.IndexSpec{Dimension: dim, Metric: metric}, nil
}
