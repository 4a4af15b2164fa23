package pipeline

import (
	"context"
	"fmt"
	"time"

	"ratingcore/internal/cache"
	"ratingcore/internal/config"
	"ratingcore/internal/constants"
	"ratingcore/internal/temporal"
	"ratingcore/internal/validity"
	"ratingcore/pkg/cel"
	"ratingcore/pkg/metrics"
)

// HolidayStage marks packets whose event date is a holiday. The per_packet
// policy checks each packet's time model as calendar group; the shared
// policy checks one group per record, static or computed by a CEL
// expression.
type HolidayStage struct {
	streamHooks
	cfg      config.HolidayStageConfig
	location *time.Location
	group    *cel.Expression
	holder   *cache.Holder[*validity.Index]
}

func NewHolidayStage(cfg config.HolidayStageConfig, loc *time.Location) (*HolidayStage, error) {
	if cfg.Policy == "" {
		cfg.Policy = constants.HolidayPolicyPerPacket
	}
	if cfg.Resource == "" {
		cfg.Resource = constants.DefaultHolidayResource
	}
	if loc == nil {
		loc = time.UTC
	}

	s := &HolidayStage{cfg: cfg, location: loc}
	if cfg.Policy == constants.HolidayPolicyShared && cfg.GroupExpression != "" {
		eval, err := cel.NewEvaluator()
		if err != nil {
			return nil, err
		}
		expr, err := eval.CompileStringExpression(cfg.GroupExpression)
		if err != nil {
			return nil, fmt.Errorf("holiday group expression: %w", err)
		}
		s.group = expr
	}
	return s, nil
}

func (s *HolidayStage) Name() string {
	return constants.StageHoliday
}

func (s *HolidayStage) Init(reg *cache.Registry) error {
	holder, err := reg.Validity(s.cfg.Cache)
	if err != nil {
		return err
	}
	s.holder = holder
	return nil
}

func (s *HolidayStage) Process(ctx context.Context, rc *RecordContext) error {
	snap := s.holder.Load()
	if snap == nil {
		return cacheNotLoaded(s.cfg.Cache)
	}
	rc.Used(s.cfg.Cache, snap.Generation)

	cal := temporal.IndexCalendar{Index: snap.Value, Resource: s.cfg.Resource, Location: s.location}
	annotator := temporal.NewAnnotator(cal, s.location)

	var marked int
	switch s.cfg.Policy {
	case constants.HolidayPolicyShared:
		group, err := s.sharedGroup(ctx, rc)
		if err != nil {
			metrics.IncStageOutcome(s.Name(), outcomeError)
			return err
		}
		marked = annotator.AnnotateShared(rc.Record, group)
	default:
		marked = annotator.AnnotatePerPacket(rc.Record)
	}

	outcome := outcomeMiss
	if marked > 0 {
		outcome = outcomeMatched
	}
	metrics.IncStageOutcome(s.Name(), outcome)
	metrics.AddHolidayPackets(s.cfg.Policy, marked)
	return nil
}

func (s *HolidayStage) sharedGroup(ctx context.Context, rc *RecordContext) (string, error) {
	if s.group == nil {
		return s.cfg.Group, nil
	}
	group, err := s.group.EvalString(ctx, rc.Record)
	if err != nil {
		return "", recordError(s.Name(), fmt.Sprintf("holiday group: %v", err))
	}
	if group == "" {
		return "", recordError(s.Name(), "holiday group expression returned an empty group")
	}
	return group, nil
}
