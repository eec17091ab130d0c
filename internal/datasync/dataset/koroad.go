package dataset

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/config"
	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/db"
	"github.com/yys/safewalk-cli/internal/fetcher"
	"github.com/yys/safewalk-cli/internal/geo"
	"github.com/yys/safewalk-cli/internal/resilience"
	"github.com/yys/safewalk-cli/pkg/koroad"
)

const koroadHotspotTable = datasync.Schema + ".koroad_accident_hotspots"

var koroadHotspotColumns = []string{
	"category", "search_year", "sido_code", "gugun_code",
	"afos_fid", "afos_id", "bjd_cd", "spot_cd",
	"sido_sgg_nm", "spot_nm", "legal_dong",
	"occrrnc_cnt", "caslt_cnt", "dth_dnv_cnt", "se_dnv_cnt", "sl_dnv_cnt", "wnd_dnv_cnt",
	"longitude", "latitude", "geom_json", "geom", "collected_at",
}

// HotspotStore keeps KOROAD hotspots in safewalk.koroad_accident_hotspots.
// It implements koroad.HotspotStore.
type HotspotStore struct {
	pool db.Pool
	now  func() time.Time
}

// NewHotspotStore creates a HotspotStore backed by pool.
func NewHotspotStore(pool db.Pool) *HotspotStore {
	return &HotspotStore{pool: pool, now: time.Now}
}

// Collected reports whether any hotspot of cat was stored for r and year.
func (s *HotspotStore) Collected(ctx context.Context, cat koroad.Category, year string, r koroad.Region) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM safewalk.koroad_accident_hotspots
		 WHERE category = $1 AND search_year = $2 AND sido_code = $3 AND gugun_code = $4)`,
		string(cat), year, r.SiDo, r.GuGun,
	).Scan(&ok)
	if err != nil {
		return false, eris.Wrapf(err, "koroad_hotspots: check %s %s %s", cat, r, year)
	}
	return ok, nil
}

// SaveHotspots upserts items on (category, search_year, afos_fid). Items
// without a numeric afos_fid are dropped.
func (s *HotspotStore) SaveHotspots(ctx context.Context, cat koroad.Category, year string, r koroad.Region, items []koroad.Hotspot) (int64, error) {
	at := s.now().UTC()
	rows := make([][]any, 0, len(items))
	for _, h := range items {
		row, ok := hotspotRow(cat, year, r, h, at)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        koroadHotspotTable,
		Columns:      koroadHotspotColumns,
		ConflictKeys: []string{"category", "search_year", "afos_fid"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "koroad_hotspots: save %s %s %s", cat, r, year)
	}
	return n, nil
}

func hotspotRow(cat koroad.Category, year string, r koroad.Region, h koroad.Hotspot, at time.Time) ([]any, bool) {
	fid, err := strconv.ParseInt(strings.TrimSpace(string(h.AfosFID)), 10, 64)
	if err != nil {
		return nil, false
	}

	geomJSON := validJSON(h.GeomJSON)
	var ewkb any
	if s, ok := geomJSON.(string); ok {
		if b, err := geo.PolygonEWKB(s); err == nil && b != nil {
			ewkb = b
		}
	}

	return []any{
		string(cat), year, r.SiDo, r.GuGun,
		fid, string(h.AfosID), nullable(string(h.BjdCd)), nullable(string(h.SpotCd)),
		h.SidoSggNm, h.SpotNm, nullable(koroad.LegalDong(h.SpotNm)),
		int(h.OccrrncCnt), int(h.CasltCnt), int(h.DthDnvCnt), int(h.SeDnvCnt), int(h.SlDnvCnt), int(h.WndDnvCnt),
		h.Longitude.Ptr(), h.Latitude.Ptr(), geomJSON, ewkb, at,
	}, true
}

// NewKoroadClient builds a KOROAD client from config. observe may be nil.
func NewKoroadClient(cfg *config.Config, observe koroad.Observer) koroad.Client {
	k := cfg.Koroad
	p := resilience.PolicyFromConfig(cfg.Resilience).WithLogging("koroad")
	if k.MaxRetries > 0 {
		p.Attempts = k.MaxRetries
	}
	if k.RetryDelayMs > 0 {
		p.Backoff = time.Duration(k.RetryDelayMs) * time.Millisecond
	}

	opts := []koroad.Option{
		koroad.WithBaseURL(k.BaseURL),
		koroad.WithPageSize(k.PageSize),
		koroad.WithRate(float64(k.RequestsPerSecond)),
		koroad.WithUserAgent(k.UserAgent),
		koroad.WithPolicy(p),
		koroad.WithBreaker(resilience.BreakerFromConfig("koroad", cfg.Resilience)),
	}
	if k.TimeoutSecs > 0 {
		opts = append(opts, koroad.WithTimeout(time.Duration(k.TimeoutSecs)*time.Second))
	}
	if observe != nil {
		opts = append(opts, koroad.WithObserver(observe))
	}
	return koroad.NewClient(k.APIKey, opts...)
}

// KoroadRegions parses the configured "sido:gugun" pairs, skipping bad ones.
func KoroadRegions(pairs []string) []koroad.Region {
	out := make([]koroad.Region, 0, len(pairs))
	for _, p := range pairs {
		r, ok := koroad.ParseRegion(p)
		if !ok {
			zap.L().Warn("koroad: ignoring malformed region", zap.String("region", p))
			continue
		}
		out = append(out, r)
	}
	return out
}

// KoroadHotspots collects the frequent-accident zones of the KOROAD OpenAPI.
type KoroadHotspots struct {
	cfg *config.Config
	// client overrides the configured API client in tests.
	client  koroad.Client
	observe koroad.Observer
}

func (d *KoroadHotspots) Name() string     { return "koroad_hotspots" }
func (d *KoroadHotspots) Table() string    { return koroadHotspotTable }
func (d *KoroadHotspots) Phase() Phase     { return PhaseCollect }
func (d *KoroadHotspots) Cadence() Cadence { return Annual }

// ShouldRun follows the yearly release in June and stays off without an
// API key.
func (d *KoroadHotspots) ShouldRun(now time.Time, lastSync *time.Time) bool {
	if d.client == nil && d.cfg.Koroad.APIKey == "" {
		return false
	}
	return AnnualAfter(now, lastSync, time.June)
}

// Sync collects region/year pairs that are not stored yet.
func (d *KoroadHotspots) Sync(ctx context.Context, pool db.Pool, _ fetcher.Fetcher, _ string) (*SyncResult, error) {
	return d.collect(ctx, pool, false)
}

// SyncFull re-collects every pair.
func (d *KoroadHotspots) SyncFull(ctx context.Context, pool db.Pool, _ fetcher.Fetcher, _ string) (*SyncResult, error) {
	return d.collect(ctx, pool, true)
}

func (d *KoroadHotspots) collect(ctx context.Context, pool db.Pool, refresh bool) (*SyncResult, error) {
	client := d.client
	if client == nil {
		if d.cfg.Koroad.APIKey == "" {
			return nil, eris.New("koroad_hotspots: koroad.api_key is not configured")
		}
		client = NewKoroadClient(d.cfg, d.observe)
	}

	regions := KoroadRegions(d.cfg.Koroad.Regions)
	if len(regions) == 0 {
		return nil, eris.New("koroad_hotspots: no regions configured")
	}

	c := &koroad.Collector{
		Client:  client,
		Store:   NewHotspotStore(pool),
		Regions: regions,
		Years:   d.cfg.Koroad.Years,
		Refresh: refresh,
	}
	stats, err := c.Collect(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "koroad_hotspots: collect")
	}

	var total int64
	var failures int
	meta := make(map[string]any, len(stats))
	for _, st := range stats {
		total += st.Collected
		failures += st.Errors
		meta[string(st.Category)] = map[string]any{
			"collected": st.Collected,
			"skipped":   st.Skipped,
			"invalid":   st.Invalid,
			"errors":    st.Errors,
		}
	}
	meta["errors"] = failures
	return &SyncResult{RowsSynced: total, Metadata: meta}, nil
}
