package dataset

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/config"
	"github.com/yys/safewalk-cli/pkg/koroad"
)

// tabularNames are the datasets loaded straight from a mapping, in load
// order.
var tabularNames = []string{
	"legal_dongs",
	"legal_dong_coordinates",
	"accident_statistics",
	"pedestrian_hotspots",
	"elderly_hotspots",
	"risk_areas",
	"visitor_boom",
}

// Registry maps dataset names to their implementations.
type Registry struct {
	datasets map[string]Dataset
	order    []string // insertion order for deterministic iteration
	koroad   *KoroadHotspots
}

// NewRegistry creates a registry with every dataset. Source locations come
// from data.sources and cron overrides from data.schedules.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	cat, err := LoadCatalog()
	if err != nil {
		return nil, err
	}

	r := &Registry{datasets: make(map[string]Dataset)}

	for _, name := range tabularNames[:2] {
		if err := r.registerTabular(cat, cfg, name); err != nil {
			return nil, err
		}
	}
	r.Register(&EMDGeoJSON{source: cfg.Data.Source("emd_geojson", emdGeoJSONSource)})
	r.Register(&EMDShapefile{source: cfg.Data.Source("emd_shapefile", emdShapefileSource)})

	for _, name := range tabularNames[2:] {
		if err := r.registerTabular(cat, cfg, name); err != nil {
			return nil, err
		}
	}

	spots, err := NewTouristSpots(cat, cfg)
	if err != nil {
		return nil, err
	}
	r.Register(spots)

	r.koroad = &KoroadHotspots{cfg: cfg}
	r.Register(r.koroad)

	for name, spec := range cfg.Data.Schedules {
		d, ok := r.datasets[name]
		if !ok {
			zap.L().Warn("dataset: schedule for unknown dataset", zap.String("dataset", name))
			continue
		}
		s, err := withSchedule(d, spec)
		if err != nil {
			return nil, err
		}
		r.datasets[name] = s
	}
	return r, nil
}

func (r *Registry) registerTabular(cat *Catalog, cfg *config.Config, name string) error {
	m, err := cat.Mapping(name)
	if err != nil {
		return err
	}
	d, err := NewTabular(cat, name, cfg.Data.Source(name, m.Source))
	if err != nil {
		return err
	}
	r.Register(d)
	return nil
}

// ObserveKoroad reports every KOROAD request made by the koroad_hotspots
// dataset to o.
func (r *Registry) ObserveKoroad(o koroad.Observer) {
	if r.koroad != nil {
		r.koroad.observe = o
	}
}

// Register adds a dataset to the registry.
func (r *Registry) Register(d Dataset) {
	name := d.Name()
	if _, ok := r.datasets[name]; !ok {
		r.order = append(r.order, name)
	}
	r.datasets[name] = d
}

// Get returns a dataset by name.
func (r *Registry) Get(name string) (Dataset, error) {
	d, ok := r.datasets[name]
	if !ok {
		return nil, eris.Errorf("dataset: unknown dataset %q", name)
	}
	return d, nil
}

// Select returns datasets matching the given criteria.
// If phase is non-nil, only datasets in that phase are returned.
// If names is non-empty, only those named datasets are returned.
func (r *Registry) Select(phase *Phase, names []string) ([]Dataset, error) {
	if len(names) > 0 {
		var result []Dataset
		for _, name := range names {
			d, err := r.Get(name)
			if err != nil {
				return nil, err
			}
			if phase != nil && d.Phase() != *phase {
				continue
			}
			result = append(result, d)
		}
		return result, nil
	}

	if phase != nil {
		return r.ByPhase(*phase), nil
	}

	return r.All(), nil
}

// ByPhase returns all datasets in the given phase, in registration order.
func (r *Registry) ByPhase(phase Phase) []Dataset {
	var result []Dataset
	for _, name := range r.order {
		if r.datasets[name].Phase() == phase {
			result = append(result, r.datasets[name])
		}
	}
	return result
}

// All returns all datasets in registration order.
func (r *Registry) All() []Dataset {
	result := make([]Dataset, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.datasets[name])
	}
	return result
}

// AllNames returns all registered dataset names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
