package db

import (
	"context"

	"github.com/tejiriaustin/tiffwatch/models"
)

type Repository interface {
	Close() error
	CreatePollResultsTable(ctx context.Context) error
	InsertPollResult(ctx context.Context, result models.PollResult) (int64, error)
	GetPollResults(ctx context.Context, filter PollFilter) ([]models.PollResult, error)
}

type PollFilter struct {
	RunID string
	Limit int
}
