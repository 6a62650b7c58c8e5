// Package dataframe provides dataset persistence behind a narrow Store
// interface: load a dataset by path, save one under a session-scoped name.
// The engine depends only on the interface; LocalStore is the CSV-on-disk
// implementation used by the CLI and tests.
package dataframe

import (
	"context"

	"github.com/datastep-labs/datastep/internal/dataset"
)

// Store loads and saves datasets by path. Implementations must preserve
// column order and cell text round-trip.
type Store interface {
	Load(ctx context.Context, path string) (*dataset.Dataset, error)
	Save(ctx context.Context, sessionID, name string, ds *dataset.Dataset) (string, error)
}
