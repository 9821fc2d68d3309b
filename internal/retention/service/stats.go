package service

import (
	"context"
	"errors"
	"time"

	"vitalis/internal/retention/models"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/requestcontext"
)

// TimelineDays is the length of the stats timeline, today included.
const TimelineDays = 30

const dayLayout = "2006-01-02"

// StatsAggregator computes dashboard statistics on demand.
type StatsAggregator struct {
	deps
	flags FlagStore
}

func NewStatsAggregator(flags FlagStore, opts ...Option) (*StatsAggregator, error) {
	if flags == nil {
		return nil, errors.New("flag store is required")
	}
	return &StatsAggregator{deps: newDeps(opts), flags: flags}, nil
}

func (a *StatsAggregator) ComputeStats(ctx context.Context) (*models.Stats, error) {
	flags, err := a.flags.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load retention flags")
	}
	stats := ComputeStats(flags, requestcontext.Now(ctx))
	return &stats, nil
}

// ComputeStats is deterministic in (flags, now). Days are UTC calendar days;
// flags count toward the day they were raised, decisions toward the day they
// were reviewed.
func ComputeStats(flags []*models.Flag, now time.Time) models.Stats {
	stats := models.Stats{
		ByDataType: make(map[models.DataType]models.DataTypeStats),
		Timeline:   make([]models.TimelineEntry, TimelineDays),
	}

	today := now.UTC().Truncate(24 * time.Hour)
	index := make(map[string]int, TimelineDays)
	for i := 0; i < TimelineDays; i++ {
		day := today.AddDate(0, 0, i-(TimelineDays-1)).Format(dayLayout)
		stats.Timeline[i] = models.TimelineEntry{Date: day}
		index[day] = i
	}

	for _, f := range flags {
		byType := stats.ByDataType[f.DataType]
		byType.Flagged++
		stats.TotalFlagged++
		if i, ok := index[f.FlaggedAt.UTC().Format(dayLayout)]; ok {
			stats.Timeline[i].Flagged++
		}

		switch f.ActionTaken {
		case models.FlagActionDeleted:
			stats.TotalDeleted++
			byType.Deleted++
			stats.EstimatedStorageSaved += f.DataType.EstimatedSizeKB()
		case models.FlagActionRetained:
			stats.TotalRetained++
			byType.Retained++
		default:
			stats.TotalPending++
		}
		if f.ReviewedAt != nil {
			if i, ok := index[f.ReviewedAt.UTC().Format(dayLayout)]; ok {
				switch f.ActionTaken {
				case models.FlagActionDeleted:
					stats.Timeline[i].Deleted++
				case models.FlagActionRetained:
					stats.Timeline[i].Retained++
				}
			}
		}
		stats.ByDataType[f.DataType] = byType
	}
	return stats
}
