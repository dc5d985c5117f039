package monitoring

import (
	"context"

	"github.com/tejiriaustin/tiffwatch/models"
)

type (
	Monitor interface {
		Scanner
		Close() error
	}
	Scanner interface {
		Scan(ctx context.Context) (models.Snapshot, error)
	}
	SnapshotSource interface {
		Latest() (models.Snapshot, bool)
	}
)
