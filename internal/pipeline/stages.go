package pipeline

import (
	"fmt"
	"time"

	"ratingcore/internal/config"
	"ratingcore/internal/constants"
)

// NewStages builds the configured stages in order.
func NewStages(cfg config.RatingConfig) ([]Stage, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("rating timezone: %w", err)
		}
		loc = l
	}

	stages := make([]Stage, 0, len(cfg.Stages))
	for _, name := range cfg.Stages {
		switch name {
		case constants.StageZone:
			stages = append(stages, NewZoneStage(cfg.Zone))
		case constants.StagePriceModel:
			stages = append(stages, NewPriceModelStage(cfg.PriceModel))
		case constants.StageHoliday:
			s, err := NewHolidayStage(cfg.Holiday, loc)
			if err != nil {
				return nil, err
			}
			stages = append(stages, s)
		default:
			return nil, fmt.Errorf("unknown stage: %s", name)
		}
	}
	return stages, nil
}
