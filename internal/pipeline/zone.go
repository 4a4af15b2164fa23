package pipeline

import (
	"context"
	"strings"

	"ratingcore/internal/cache"
	"ratingcore/internal/config"
	"ratingcore/internal/constants"
	"ratingcore/internal/prefix"
	"ratingcore/pkg/errors"
	"ratingcore/pkg/metrics"
)

// zoneFields is the key shape of a zone cache: service, A-number, B-number.
const zoneFields = 3

// ZoneStage resolves the destination zone of a record by longest prefix
// over (service, A-number, B-number).
type ZoneStage struct {
	streamHooks
	cfg    config.ZoneStageConfig
	miss   missPolicy
	holder *cache.Holder[*prefix.Tree]
}

func NewZoneStage(cfg config.ZoneStageConfig) *ZoneStage {
	return &ZoneStage{cfg: cfg, miss: newMissPolicy(cfg.OnMiss, cfg.DefaultZone)}
}

func (s *ZoneStage) Name() string {
	return constants.StageZone
}

func (s *ZoneStage) Init(reg *cache.Registry) error {
	holder, err := reg.Prefix(s.cfg.Cache)
	if err != nil {
		return err
	}
	if d, _ := reg.Definition(s.cfg.Cache); d.Fields != zoneFields {
		return errors.ErrValidation.
			WithDetail("cache", s.cfg.Cache).
			WithDetail("message", "zone cache must have 3 key fields").
			AsFatal()
	}
	s.holder = holder
	return nil
}

func (s *ZoneStage) Process(ctx context.Context, rc *RecordContext) error {
	snap := s.holder.Load()
	if snap == nil {
		return cacheNotLoaded(s.cfg.Cache)
	}
	rc.Used(s.cfg.Cache, snap.Generation)

	r := rc.Record
	res := snap.Value.Lookup(r.ServiceID, NormalizeNumber(r.ANumber), NormalizeNumber(r.BNumber))

	zone := res.Value
	var attrs []string
	if res.OK() {
		attrs = append([]string(nil), res.Attributes...)
		metrics.IncStageOutcome(s.Name(), outcomeMatched)
	} else {
		var write bool
		var err error
		zone, write, err = s.miss.apply(s.Name(), "no zone for service %s from %s to %s", r.ServiceID, r.ANumber, r.BNumber)
		if err != nil {
			metrics.IncStageOutcome(s.Name(), outcomeError)
			return err
		}
		if !write {
			metrics.IncStageOutcome(s.Name(), outcomeMiss)
			return nil
		}
		metrics.IncStageOutcome(s.Name(), outcomeDefault)
	}

	r.Zone = zone
	r.ZoneAttributes = attrs
	for i := range r.ChargePackets {
		if r.ChargePackets[i].Zone == "" {
			r.ChargePackets[i].Zone = zone
		}
	}
	return nil
}

// NormalizeNumber strips a leading plus, spaces and dashes from a dialled
// number.
func NormalizeNumber(n string) string {
	n = strings.TrimSpace(n)
	n = strings.TrimPrefix(n, "+")
	if !strings.ContainsAny(n, " -") {
		return n
	}
	return strings.NewReplacer(" ", "", "-", "").Replace(n)
}
