package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tejiriaustin/tiffwatch/db"
)

const (
	defaultPollLimit = 50
	maxPollLimit     = 1000
)

func parsePollQuery(limit, runID string) (db.PollFilter, error) {
	filter := db.PollFilter{Limit: defaultPollLimit}

	limit = strings.TrimSpace(limit)
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return db.PollFilter{}, errors.New("limit must be an integer")
		}
		if n < 1 || n > maxPollLimit {
			return db.PollFilter{}, errors.New("limit must be between 1 and 1000")
		}
		filter.Limit = n
	}

	runID = strings.TrimSpace(runID)
	if runID != "" {
		id, err := uuid.Parse(runID)
		if err != nil {
			return db.PollFilter{}, errors.New("run_id must be a UUID")
		}
		filter.RunID = id.String()
	}

	return filter, nil
}
