package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength  = 4096
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 1000
)

// Request is a validated profile search query scoped to one namespace.
type Request struct {
	namespace domain.Namespace
	query     string
	filters   filter.Expression
	page      int
	pageSize  int
	rewrite   bool
}

// New validates and normalizes search parameters.
// Zero page and pageSize fall back to defaults; negative or oversized values are rejected.
func New(
	ns domain.Namespace,
	query string,
	filters filter.Expression,
	page, pageSize int,
	rewrite bool,
) (Request, error) {
	if ns.IsZero() {
		return Request{}, domain.ErrNamespaceRequired
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("query is required: %w", domain.ErrInvalidRequest)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, domain.ErrInvalidRequest)
	}
	if page == 0 {
		page = DefaultPage
	}
	if page < 1 {
		return Request{}, fmt.Errorf("page must be >= 1: %w", domain.ErrInvalidRequest)
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return Request{}, fmt.Errorf("page_size must be between 1 and %d: %w", MaxPageSize, domain.ErrInvalidRequest)
	}

	return Request{
		namespace: ns,
		query:     query,
		filters:   filters,
		page:      page,
		pageSize:  pageSize,
		rewrite:   rewrite,
	}, nil
}

// Namespace returns the tenant scope.
func (r *Request) Namespace() domain.Namespace { return r.namespace }

// Query returns the raw query text.
func (r *Request) Query() string { return r.query }

// Filters returns the pre-filter expression.
func (r *Request) Filters() filter.Expression { return r.filters }

// Page returns the 1-based page number.
func (r *Request) Page() int { return r.page }

// PageSize returns the number of results per page.
func (r *Request) PageSize() int { return r.pageSize }

// Rewrite reports whether the query should be rewritten before retrieval.
func (r *Request) Rewrite() bool { return r.rewrite }

// Offset returns the index of the first result on the requested page.
func (r *Request) Offset() int { return (r.page - 1) * r.pageSize }

// Window returns how many ranked results are needed to serve the requested page.
func (r *Request) Window() int { return r.page * r.pageSize }
