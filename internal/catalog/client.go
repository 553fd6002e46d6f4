package catalog

import (
	"context"

	"newsreel/discoveryservice/internal/domain"
)

// Client is a single stock-footage catalog. Implementations own their
// session state (pooled HTTP client, auth headers) and must be safe for
// concurrent use.
type Client interface {
	Name() string
	Info() domain.CatalogInfo
	Search(ctx context.Context, request domain.CatalogSearchRequest) ([]domain.Clip, error)
	Detail(ctx context.Context, identity string) (domain.ClipDetail, error)
	Acquire(ctx context.Context, identity string) (domain.AcquireReceipt, error)
}
