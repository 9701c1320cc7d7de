// Package indexadmin exposes index lifecycle operations as AdminResults.
package indexadmin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/logger"
)

// Service wraps index lifecycle calls. Every method returns an AdminResult;
// the error is non-nil exactly when Success is false.
type Service struct {
	index Index
}

// New creates an index admin service.
func New(index Index) *Service {
	return &Service{index: index}
}

// EnsureIndex creates the index or confirms the existing one matches spec.
// A mismatch is never worked around: it fails with ErrIndexConfigConflict.
func (s *Service) EnsureIndex(ctx context.Context, spec domain.IndexSpec) (domain.AdminResult, error) {
	info, created, err := s.index.EnsureIndex(ctx, spec)
	if err != nil {
		if errors.Is(err, domain.ErrIndexConfigConflict) {
			logger.FromContext(ctx).Error("Index configuration conflict", zap.Error(err))
		}
		return failed(err), err
	}
	msg := "index already exists with matching configuration"
	if created {
		msg = "index created"
	}
	return domain.AdminResult{Success: true, Message: msg, IndexInfo: &info}, nil
}

// DescribeIndex reports the live index.
func (s *Service) DescribeIndex(ctx context.Context) (domain.AdminResult, error) {
	info, err := s.index.Describe(ctx)
	if err != nil {
		return failed(err), err
	}
	return domain.AdminResult{Success: true, Message: "index " + info.Status, IndexInfo: &info}, nil
}

// DeleteIndex drops the index and every stored record.
func (s *Service) DeleteIndex(ctx context.Context) (domain.AdminResult, error) {
	if err := s.index.DeleteIndex(ctx); err != nil {
		return failed(err), err
	}
	return domain.AdminResult{Success: true, Message: "index deleted"}, nil
}

// ClearNamespace removes every record of ns.
func (s *Service) ClearNamespace(ctx context.Context, ns domain.Namespace) (domain.AdminResult, error) {
	n, err := s.index.ClearNamespace(ctx, ns)
	if err != nil {
		return failed(err), err
	}
	return domain.AdminResult{
		Success: true,
		Message: fmt.Sprintf("cleared %d records from namespace %s", n, ns),
	}, nil
}

func failed(err error) domain.AdminResult {
	return domain.AdminResult{Success: false, Message: err.Error()}
}
