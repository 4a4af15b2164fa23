package pipeline

import (
	"context"

	"ratingcore/internal/cache"
	"ratingcore/internal/config"
	"ratingcore/internal/constants"
	"ratingcore/internal/validity"
	"ratingcore/pkg/match"
	"ratingcore/pkg/metrics"
	"ratingcore/pkg/models"
)

// PriceModelStage finds the price model effective for each packet at the
// event start. The group is the packet rate plan and the resource its
// zone, falling back to the record zone.
type PriceModelStage struct {
	streamHooks
	cfg    config.PriceModelStageConfig
	mode   string
	miss   missPolicy
	holder *cache.Holder[*validity.Index]
}

func NewPriceModelStage(cfg config.PriceModelStageConfig) *PriceModelStage {
	mode := cfg.Mode
	if mode == "" {
		mode = constants.ModeFirst
	}
	return &PriceModelStage{cfg: cfg, mode: mode, miss: newMissPolicy(cfg.OnMiss, cfg.DefaultModel)}
}

func (s *PriceModelStage) Name() string {
	return constants.StagePriceModel
}

func (s *PriceModelStage) Init(reg *cache.Registry) error {
	holder, err := reg.Validity(s.cfg.Cache)
	if err != nil {
		return err
	}
	s.holder = holder
	return nil
}

func (s *PriceModelStage) Process(ctx context.Context, rc *RecordContext) error {
	snap := s.holder.Load()
	if snap == nil {
		return cacheNotLoaded(s.cfg.Cache)
	}
	rc.Used(s.cfg.Cache, snap.Generation)

	r := rc.Record
	for i := range r.ChargePackets {
		if err := s.ratePacket(snap.Value, r, &r.ChargePackets[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PriceModelStage) ratePacket(x *validity.Index, r *models.RatingRecord, p *models.ChargePacket) error {
	resource := p.Zone
	if resource == "" {
		resource = r.Zone
	}

	var res match.Result
	switch s.mode {
	case constants.ModeAll:
		all := x.AllMatches(p.RatePlan, resource, r.EventStart)
		if len(all) > 0 {
			res = all[0]
			p.Candidates = match.AllWithChildData(all)
		}
	case constants.ModeFrom:
		res = x.FromMatch(p.RatePlan, resource, r.EventStart)
	default:
		res = x.FirstMatch(p.RatePlan, resource, r.EventStart)
	}

	if res.OK() {
		p.PriceModel = res.Value
		p.PriceAttributes = append([]string(nil), res.Attributes...)
		metrics.IncStageOutcome(s.Name(), outcomeMatched)
		return nil
	}

	model, write, err := s.miss.apply(s.Name(), "no price model for rate plan %s in zone %s at %s",
		p.RatePlan, resource, r.EventStart.UTC().Format("2006-01-02T15:04:05Z"))
	if err != nil {
		metrics.IncStageOutcome(s.Name(), outcomeError)
		return err
	}
	if !write {
		metrics.IncStageOutcome(s.Name(), outcomeMiss)
		return nil
	}
	metrics.IncStageOutcome(s.Name(), outcomeDefault)
	p.PriceModel = model
	p.PriceAttributes = nil
	return nil
}
