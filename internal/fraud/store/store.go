// Package store persists fraud reports. The collection is append-only:
// reports are created once and never mutated or deleted.
package store

import (
	"context"

	"bioanchor/internal/domain"
)

// ReportStore is the fraud-report persistence boundary. ListByDID returns
// reports oldest first.
type ReportStore interface {
	Append(ctx context.Context, report domain.FraudReport) error
	ListByDID(ctx context.Context, did string) ([]domain.FraudReport, error)
	List(ctx context.Context) ([]domain.FraudReport, error)
}
