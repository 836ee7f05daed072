package featureflag

import "github.com/aukilabs/quadrant/models"

type Flag string

const (
	FlagDisableSyncClock     Flag = "DISABLE_SYNC_CLOCK"
	FlagDisableRunPoints     Flag = "DISABLE_RUN_POINTS"
	FlagDisableRunBoundaries Flag = "DISABLE_RUN_BOUNDARIES"
	FlagDisableCallerPoints  Flag = "DISABLE_CALLER_POINTS"
)

// DocumentOptions returns the run document options matching the flags.
func (f FeatureFlag) DocumentOptions() models.DocumentOptions {
	return models.DocumentOptions{
		WithoutPoints:     f.Has(FlagDisableRunPoints),
		WithoutBoundaries: f.Has(FlagDisableRunBoundaries),
	}
}
