package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ratingcore/internal/cache"
	"ratingcore/internal/config"
	"ratingcore/internal/constants"
	"ratingcore/internal/logger"
	"ratingcore/internal/prefix"
	"ratingcore/internal/scratch"
	"ratingcore/internal/validity"
	pkgerrors "ratingcore/pkg/errors"
	"ratingcore/pkg/models"
)

type capturingProducer struct {
	mu       sync.Mutex
	messages []models.MessageEnvelope
	topics   []string
	err      error
}

func (p *capturingProducer) Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func (p *capturingProducer) last() models.MessageEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[len(p.messages)-1]
}

var (
	day     = time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	eventAt = day.Add(14 * time.Hour)
)

type fixture struct {
	reg      *cache.Registry
	producer *capturingProducer
	store    *scratch.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := cache.NewRegistry([]cache.Definition{
		{Name: "zones", Kind: cache.KindPrefix, Fields: 3},
		{Name: "price_models", Kind: cache.KindValidity},
		{Name: "holidays", Kind: cache.KindValidity},
	})
	require.NoError(t, err)

	tree, err := prefix.Build(3, []prefix.Entry{
		{Keys: []string{"VOICE", "", "0044"}, Value: "UK", Attributes: []string{"United Kingdom"}},
		{Keys: []string{"VOICE", "", "0031"}, Value: "NL"},
	})
	require.NoError(t, err)
	zones, _ := reg.Prefix("zones")
	zones.Store(tree, tree.Len())

	pm, err := validity.Build([]validity.Segment{
		{Group: "RP1", ResourceID: "UK", ValidFrom: day.AddDate(0, -1, 0), Value: "PM_OLD", Attributes: []string{"0.20"}},
		{Group: "RP1", ResourceID: "UK", ValidFrom: day.AddDate(0, 0, -1), Value: "PM_NEW", Attributes: []string{"0.10"}},
		{Group: "RP2", ResourceID: "UK", ValidFrom: day.AddDate(0, -1, 0), ValidTo: day.AddDate(0, 1, 0), Value: "PM_RP2"},
	})
	require.NoError(t, err)
	prices, _ := reg.Validity("price_models")
	prices.Store(pm, pm.Len())

	hol, err := validity.Build([]validity.Segment{
		{Group: "TM_HOL", ResourceID: "holiday", ValidFrom: day, ValidTo: day.AddDate(0, 0, 1), Value: "Christmas"},
		{Group: "CAL_UK", ResourceID: "holiday", ValidFrom: day, ValidTo: day.AddDate(0, 0, 2), Value: "Christmas"},
	})
	require.NoError(t, err)
	holidays, _ := reg.Validity("holidays")
	holidays.Store(hol, hol.Len())

	return &fixture{reg: reg, producer: &capturingProducer{}, store: scratch.NewMemoryStore(time.Hour)}
}

func (f *fixture) pipeline(t *testing.T, cfg config.RatingConfig) *Pipeline {
	t.Helper()
	stages, err := NewStages(cfg)
	require.NoError(t, err)
	p := New(stages, f.store, f.producer, "rated_records", "rating-service", logger.NopLogger())
	require.NoError(t, p.Init(f.reg))
	return p
}

func ratingConfig() config.RatingConfig {
	return config.RatingConfig{
		Stages:     []string{constants.StageZone, constants.StagePriceModel, constants.StageHoliday},
		Zone:       config.ZoneStageConfig{Cache: "zones"},
		PriceModel: config.PriceModelStageConfig{Cache: "price_models"},
		Holiday:    config.HolidayStageConfig{Cache: "holidays"},
	}
}

func recordEnvelope(rec *models.RatingRecord) models.MessageEnvelope {
	return *models.NewMessageEnvelopeBuilder().
		WithStreamID("stream-1").
		WithRecord(rec).
		Build()
}

func testRecord() *models.RatingRecord {
	return &models.RatingRecord{
		ID:         "r1",
		EventStart: eventAt,
		ServiceID:  "VOICE",
		ANumber:    "+31 20 123 4567",
		BNumber:    "0044 20 7123 4567",
		ChargePackets: []models.ChargePacket{
			{RatePlan: "RP1", TimeModel: "TM_HOL"},
			{RatePlan: "RP2", TimeModel: "TM_WORK"},
		},
	}
}

func TestHandleRecordRatesAllStages(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, ratingConfig())

	in := recordEnvelope(testRecord())
	require.NoError(t, p.Handle(context.Background(), in))

	out := f.producer.last()
	assert.Equal(t, "rated_records", f.producer.topics[0])
	assert.Equal(t, "rating-service", out.Source)

	rec := out.Record
	assert.Equal(t, "UK", rec.Zone)
	assert.Equal(t, []string{"United Kingdom"}, rec.ZoneAttributes)
	assert.Equal(t, "UK", rec.ChargePackets[0].Zone)
	assert.Equal(t, "PM_OLD", rec.ChargePackets[0].PriceModel)
	assert.Equal(t, []string{"0.20"}, rec.ChargePackets[0].PriceAttributes)
	assert.Equal(t, "PM_RP2", rec.ChargePackets[1].PriceModel)
	assert.Equal(t, models.TimeSplittingHoliday, rec.ChargePackets[0].TimeSplitting)
	assert.Equal(t, models.TimeSplittingNormal, rec.ChargePackets[1].TimeSplitting)
	assert.False(t, rec.HasErrors())

	require.NotNil(t, out.Metadata.Processing)
	assert.Equal(t, []string{"zone", "price_model", "holiday"}, out.Metadata.Processing.Stages)
	assert.Equal(t, map[string]uint64{"zones": 1, "price_models": 1, "holidays": 1}, out.Metadata.Processing.Generations)

	// the received envelope is left untouched
	assert.Empty(t, in.Record.Zone)
}

func TestZoneMissPolicies(t *testing.T) {
	tests := []struct {
		name      string
		onMiss    string
		wantZone  string
		wantError bool
	}{
		{name: "ignore", onMiss: constants.OnMissIgnore},
		{name: "default", onMiss: constants.OnMissDefault, wantZone: "REST"},
		{name: "error", onMiss: constants.OnMissError, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			cfg := ratingConfig()
			cfg.Stages = []string{constants.StageZone, constants.StagePriceModel}
			cfg.Zone.OnMiss = tt.onMiss
			cfg.Zone.DefaultZone = "REST"
			p := f.pipeline(t, cfg)

			rec := testRecord()
			rec.BNumber = "0049301234"
			require.NoError(t, p.Handle(context.Background(), recordEnvelope(rec)))

			out := f.producer.last()
			assert.Equal(t, tt.wantZone, out.Record.Zone)
			if tt.wantError {
				require.Len(t, out.Record.Errors, 1)
				assert.Equal(t, constants.StageZone, out.Record.Errors[0].Stage)
				assert.Equal(t, pkgerrors.ErrRecord.Code, out.Record.Errors[0].Code)
				// later stages did not run
				assert.Empty(t, out.Metadata.Processing.Stages)
				assert.Empty(t, out.Record.ChargePackets[0].PriceModel)
			} else {
				assert.False(t, out.Record.HasErrors())
			}
		})
	}
}

func TestPriceModelModes(t *testing.T) {
	tests := []struct {
		mode           string
		wantModel      string
		wantCandidates [][]string
	}{
		{mode: constants.ModeFirst, wantModel: "PM_OLD"},
		{mode: constants.ModeFrom, wantModel: "PM_NEW"},
		{mode: constants.ModeAll, wantModel: "PM_OLD", wantCandidates: [][]string{{"PM_OLD", "0.20"}, {"PM_NEW", "0.10"}}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			f := newFixture(t)
			cfg := ratingConfig()
			cfg.Stages = []string{constants.StagePriceModel}
			cfg.PriceModel.Mode = tt.mode
			p := f.pipeline(t, cfg)

			rec := testRecord()
			rec.Zone = "UK"
			_, err := p.Rate(context.Background(), rec, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.wantModel, rec.ChargePackets[0].PriceModel)
			assert.Equal(t, tt.wantCandidates, rec.ChargePackets[0].Candidates)
		})
	}
}

func TestPriceModelMissDefault(t *testing.T) {
	f := newFixture(t)
	cfg := ratingConfig()
	cfg.Stages = []string{constants.StagePriceModel}
	cfg.PriceModel.OnMiss = constants.OnMissDefault
	cfg.PriceModel.DefaultModel = "PM_FALLBACK"
	p := f.pipeline(t, cfg)

	rec := testRecord()
	rec.Zone = "NL"
	status, err := p.Rate(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, statusRated, status)
	assert.Equal(t, "PM_FALLBACK", rec.ChargePackets[0].PriceModel)
	assert.Equal(t, "PM_FALLBACK", rec.ChargePackets[1].PriceModel)
}

func TestHolidaySharedPolicy(t *testing.T) {
	f := newFixture(t)
	cfg := ratingConfig()
	cfg.Stages = []string{constants.StageZone, constants.StageHoliday}
	cfg.Holiday.Policy = constants.HolidayPolicyShared
	cfg.Holiday.GroupExpression = `"CAL_" + zone`
	p := f.pipeline(t, cfg)

	rec := testRecord()
	rec.ChargePackets = append(rec.ChargePackets, models.ChargePacket{RatePlan: "RP3", TimeModel: "TM3", TimeSplitting: models.TimeSplittingNoCheck})
	_, err := p.Rate(context.Background(), rec, nil)
	require.NoError(t, err)

	assert.Equal(t, models.TimeSplittingHoliday, rec.ChargePackets[0].TimeSplitting)
	assert.Equal(t, models.TimeSplittingHoliday, rec.ChargePackets[1].TimeSplitting)
	assert.Equal(t, models.TimeSplittingNoCheck, rec.ChargePackets[2].TimeSplitting)

	// zone NL has no calendar entry
	rec = testRecord()
	rec.BNumber = "0031101234"
	_, err = p.Rate(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TimeSplittingNormal, rec.ChargePackets[0].TimeSplitting)
}

func TestHolidaySharedStaticGroup(t *testing.T) {
	f := newFixture(t)
	cfg := ratingConfig()
	cfg.Stages = []string{constants.StageHoliday}
	cfg.Holiday.Policy = constants.HolidayPolicyShared
	cfg.Holiday.Group = "CAL_UK"
	p := f.pipeline(t, cfg)

	rec := testRecord()
	rec.EventStart = day.AddDate(0, 0, 1).Add(time.Hour)
	_, err := p.Rate(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TimeSplittingHoliday, rec.ChargePackets[1].TimeSplitting)
}

func TestHolidayExpressionErrorIsRecordScoped(t *testing.T) {
	f := newFixture(t)
	cfg := ratingConfig()
	cfg.Stages = []string{constants.StageHoliday}
	cfg.Holiday.Policy = constants.HolidayPolicyShared
	cfg.Holiday.GroupExpression = `packets[9].rate_plan`
	p := f.pipeline(t, cfg)

	rec := testRecord()
	status, err := p.Rate(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, statusRecordError, status)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, constants.StageHoliday, rec.Errors[0].Stage)
}

func TestHolidayUsesConfiguredTimezone(t *testing.T) {
	f := newFixture(t)
	cfg := ratingConfig()
	cfg.Stages = []string{constants.StageHoliday}
	cfg.Timezone = "Asia/Tokyo"
	p := f.pipeline(t, cfg)

	// the 25th starts at 2024-12-24T15:00Z in Tokyo, before the UTC holiday
	rec := testRecord()
	rec.EventStart = time.Date(2024, 12, 24, 20, 0, 0, 0, time.UTC)
	_, err := p.Rate(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TimeSplittingNormal, rec.ChargePackets[0].TimeSplitting)

	// the 26th starts at 2024-12-25T15:00Z, inside it
	rec = testRecord()
	rec.EventStart = time.Date(2024, 12, 25, 16, 0, 0, 0, time.UTC)
	_, err = p.Rate(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TimeSplittingHoliday, rec.ChargePackets[0].TimeSplitting)
}

func TestInitFailsOnUnknownCache(t *testing.T) {
	f := newFixture(t)
	cfg := ratingConfig()
	cfg.Zone.Cache = "missing"
	stages, err := NewStages(cfg)
	require.NoError(t, err)

	err = New(stages, f.store, f.producer, "out", "", logger.NopLogger()).Init(f.reg)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsFatal(err))
	assert.Equal(t, pkgerrors.ErrCacheNotFound.Code, pkgerrors.Code(err))
}

func TestInitFailsOnWrongKind(t *testing.T) {
	f := newFixture(t)
	cfg := ratingConfig()
	cfg.PriceModel.Cache = "zones"
	stages, err := NewStages(cfg)
	require.NoError(t, err)

	err = New(stages, f.store, f.producer, "out", "", logger.NopLogger()).Init(f.reg)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsFatal(err))
	assert.Equal(t, pkgerrors.ErrCacheWrongKind.Code, pkgerrors.Code(err))
}

func TestNewStagesRejectsUnknown(t *testing.T) {
	cfg := ratingConfig()
	cfg.Stages = []string{"tax"}
	_, err := NewStages(cfg)
	assert.Error(t, err)

	cfg = ratingConfig()
	cfg.Timezone = "Mars/Olympus"
	_, err = NewStages(cfg)
	assert.Error(t, err)
}

func TestUnloadedCacheIsRetryable(t *testing.T) {
	reg, err := cache.NewRegistry([]cache.Definition{{Name: "zones", Kind: cache.KindPrefix, Fields: 3}})
	require.NoError(t, err)

	producer := &capturingProducer{}
	p := New([]Stage{NewZoneStage(config.ZoneStageConfig{Cache: "zones"})}, scratch.NewMemoryStore(0), producer, "out", "", logger.NopLogger())
	require.NoError(t, p.Init(reg))

	err = p.Handle(context.Background(), recordEnvelope(testRecord()))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCacheNotLoaded.Code, pkgerrors.Code(err))
	assert.False(t, pkgerrors.IsFatal(err))
	assert.Empty(t, producer.messages)
}

func TestStreamHeaderAndTrailer(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, ratingConfig())
	ctx := context.Background()

	header := *models.NewMessageEnvelopeBuilder().WithStreamID("stream-1").WithHeader(models.StreamHeader{FileName: "cdr_0001.dat"}).Build()
	require.NoError(t, p.Handle(ctx, header))

	ok, err := f.store.Contains(ctx, headerKey("stream-1"))
	require.NoError(t, err)
	assert.True(t, ok)

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Handle(ctx, recordEnvelope(testRecord())))
	}
	n, err := p.recordCount(ctx, "stream-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	trailer := *models.NewMessageEnvelopeBuilder().WithStreamID("stream-1").WithTrailer(models.StreamTrailer{RecordCount: 2}).Build()
	require.NoError(t, p.Handle(ctx, trailer))

	assert.Len(t, f.producer.messages, 4)
	assert.Equal(t, models.MessageTypeTrailer, f.producer.last().Type)
	assert.Equal(t, 0, f.store.Len())
}

func TestCorruptRecordCountIsLogged(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.WarnLevel)
	log := &logger.SugaredLogger{SugaredLogger: zap.New(core).Sugar()}
	p := New(nil, f.store, f.producer, "rated_records", "rating-service", log)
	ctx := context.Background()

	require.NoError(t, f.store.Put(ctx, recordsKey("stream-1"), "twelve"))

	n, err := p.recordCount(ctx, "stream-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	entries := logs.FilterMessageSnippet("Corrupt stream record count").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "twelve", entries[0].ContextMap()["value"])
	assert.Equal(t, recordsKey("stream-1"), entries[0].ContextMap()["key"])
}

func TestHandleRejectsInvalidEnvelope(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, ratingConfig())

	env := recordEnvelope(testRecord())
	env.StreamID = ""
	err := p.Handle(context.Background(), env)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.True(t, pkgerrors.IsFatal(err))
}

func TestPublishFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, ratingConfig())
	f.producer.err = errors.New("broker down")

	err := p.Handle(context.Background(), recordEnvelope(testRecord()))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrServiceUnavailable.Code, pkgerrors.Code(err))
}

func TestNormalizeNumber(t *testing.T) {
	assert.Equal(t, "31201234567", NormalizeNumber("+31 20 123 4567"))
	assert.Equal(t, "0044207123", NormalizeNumber(" 0044-207-123 "))
	assert.Equal(t, "0031", NormalizeNumber("0031"))
}
