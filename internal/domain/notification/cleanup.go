package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gynecloud/notify-engine/internal/platform/clock"
)

// Cleaner purges finished queue rows past the retention window. The sent
// log is the audit trail and is never purged.
type Cleaner struct {
	repo          Repository
	clock         clock.Clock
	retentionDays int
	logger        zerolog.Logger
}

func NewCleaner(repo Repository, c clock.Clock, retentionDays int, logger zerolog.Logger) *Cleaner {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Cleaner{
		repo:          repo,
		clock:         c,
		retentionDays: retentionDays,
		logger:        logger.With().Str("job", "cleanup").Logger(),
	}
}

func (c *Cleaner) Run(ctx context.Context) (int64, error) {
	cutoff := c.clock.Now().AddDate(0, 0, -c.retentionDays)
	n, err := c.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished notifications: %w", err)
	}
	if n > 0 {
		c.logger.Info().Int64("count", n).Time("before", cutoff).Msg("cleaned up finished notifications")
	}
	return n, nil
}
