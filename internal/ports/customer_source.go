package ports

import (
	"context"

	"fleet-route-planner/internal/domain"
)

// CustomerSource is the ingest collaborator contract: it yields raw
// customer records (GPS still unparsed) from a spreadsheet, database or
// any other tabular origin. Validation happens in the planner.
type CustomerSource interface {
	Load(ctx context.Context) ([]domain.CustomerRecord, error)
}
