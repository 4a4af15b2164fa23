package pipeline

import (
	"fmt"

	"ratingcore/internal/constants"
	"ratingcore/pkg/errors"
)

const (
	outcomeMatched = "matched"
	outcomeMiss    = "miss"
	outcomeDefault = "default"
	outcomeError   = "error"
)

// missPolicy decides what a stage does when a lookup finds nothing.
type missPolicy struct {
	mode  string
	value string
}

func newMissPolicy(mode, def string) missPolicy {
	if mode == "" {
		mode = constants.OnMissIgnore
	}
	return missPolicy{mode: mode, value: def}
}

// apply returns the value to write, whether to write it, and a
// record-scoped error for the error mode.
func (p missPolicy) apply(stage, format string, args ...interface{}) (string, bool, error) {
	switch p.mode {
	case constants.OnMissDefault:
		return p.value, true, nil
	case constants.OnMissError:
		return "", false, recordError(stage, fmt.Sprintf(format, args...))
	default:
		return "", false, nil
	}
}

func recordError(stage, message string) error {
	return errors.ErrRecord.
		WithDetail("stage", stage).
		WithDetail("message", message)
}

func cacheNotLoaded(name string) error {
	return errors.ErrCacheNotLoaded.WithDetail("cache", name)
}
