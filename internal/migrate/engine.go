package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ethnograph/internal/metrics"
	"ethnograph/internal/model"
	"ethnograph/internal/storage"
)

// Stage names in load order.
const (
	StageRegions        = "regions"
	StageCountries      = "countries"
	StageLanguages      = "languages"
	StageSources        = "sources"
	StageGroups         = "ethnic_groups"
	StagePresences      = "presences"
	StageGroupLanguages = "group_languages"
	StageGroupSources   = "group_sources"
)

// Engine writes a Graph to a storage.Repository.
//
// Writes are issued one at a time. Upsert-or-fetch-existing relies on that:
// two concurrent writers on the same natural key would both miss on lookup
// and race on insert.
type Engine struct {
	repo    storage.Repository
	log     *zap.SugaredLogger
	metrics metrics.Backend
	now     func() time.Time
}

// NewEngine returns an Engine. A nil logger or metrics backend discards output.
func NewEngine(repo storage.Repository, log *zap.SugaredLogger, m metrics.Backend) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Engine{repo: repo, log: log, metrics: m, now: time.Now}
}

// Run creates missing tables, then loads g stage by stage, recording ids in
// lc. Entity failures never stop the run; they are counted in the report.
// Run returns an error only when the schema cannot be ensured.
func (e *Engine) Run(ctx context.Context, g Graph, lc *LoadContext) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), StartedAt: e.now().UTC(), IDs: lc}
	if err := e.repo.EnsureTables(ctx, Tables()); err != nil {
		return rep, fmt.Errorf("ensure tables: %w", err)
	}

	stages := []struct {
		name string
		run  func(context.Context, Graph, *LoadContext) []Outcome
	}{
		{StageRegions, e.loadRegions},
		{StageCountries, e.loadCountries},
		{StageLanguages, e.loadLanguages},
		{StageSources, e.loadSources},
		{StageGroups, e.loadGroups},
		{StagePresences, e.loadPresences},
		{StageGroupLanguages, e.loadGroupLanguages},
		{StageGroupSources, e.loadGroupSources},
	}
	for _, st := range stages {
		start := e.now()
		outcomes := st.run(ctx, g, lc)
		sr := StageReport{Stage: st.name, DurationMS: e.now().Sub(start).Milliseconds()}
		sr.Fold(outcomes)
		rep.Stages = append(rep.Stages, sr)
		rep.Errors += sr.Errors
		e.emit(sr, e.now().Sub(start))
		e.log.Infow("stage loaded", "stage", st.name,
			"created", sr.Created, "updated", sr.Updated, "skipped", sr.Skipped, "errors", sr.Errors)
	}
	rep.FinishedAt = e.now().UTC()
	return rep, nil
}

func (e *Engine) emit(sr StageReport, d time.Duration) {
	for status, n := range map[Status]int{
		StatusCreated: sr.Created,
		StatusUpdated: sr.Updated,
		StatusSkipped: sr.Skipped,
		StatusFailed:  sr.Errors,
	} {
		if n > 0 {
			e.metrics.IncCounter(metrics.StageTotal, float64(n), metrics.Labels{"stage": sr.Stage, "status": string(status)})
		}
	}
	metrics.ObserveStage(e.metrics, sr.Stage, d, sr.Errors > 0)
}

// ensure inserts row. On a natural-key conflict it fetches the existing id by
// key and updates the remaining columns instead.
func (e *Engine) ensure(ctx context.Context, table string, key, row storage.Row) (int64, Status, error) {
	id, err := e.repo.Insert(ctx, table, row)
	if err == nil {
		return id, StatusCreated, nil
	}
	if !errors.Is(err, storage.ErrConflict) {
		return 0, StatusFailed, err
	}
	id, err = e.repo.SelectID(ctx, table, key)
	if err != nil {
		return 0, StatusFailed, fmt.Errorf("fetch existing: %w", err)
	}
	rest := make(storage.Row, len(row))
	for c, v := range row {
		if _, isKey := key[c]; !isKey {
			rest[c] = v
		}
	}
	if err := e.repo.Update(ctx, table, id, rest); err != nil {
		return id, StatusFailed, fmt.Errorf("update existing: %w", err)
	}
	return id, StatusUpdated, nil
}

// upsert writes a relation row keyed on conflict, reporting whether the row
// already existed.
func (e *Engine) upsert(ctx context.Context, table string, row storage.Row, conflict []string) (Status, error) {
	key := make(storage.Row, len(conflict))
	for _, c := range conflict {
		key[c] = row[c]
	}
	status := StatusUpdated
	if _, err := e.repo.SelectID(ctx, table, key); errors.Is(err, storage.ErrNotFound) {
		status = StatusCreated
	} else if err != nil {
		return StatusFailed, err
	}
	if _, err := e.repo.Upsert(ctx, table, row, conflict); err != nil {
		return StatusFailed, err
	}
	return status, nil
}

// record turns a write result into an Outcome, logging failures with the
// driver's code, detail and hint.
func (e *Engine) record(stage, table, key string, status Status, err error) Outcome {
	if err != nil {
		kv := append([]any{"stage", stage, "table", table, "key", key}, storage.Fields(err)...)
		e.log.Errorw("load failed", kv...)
		return failed(key, err)
	}
	return Outcome{Key: key, Status: status}
}

func (e *Engine) loadRegions(ctx context.Context, g Graph, lc *LoadContext) []Outcome {
	out := make([]Outcome, 0, len(g.Regions))
	for _, r := range g.Regions {
		id, st, err := e.ensure(ctx, TableRegions, storage.Row{"code": r.Code}, storage.Row{"code": r.Code, "name": r.Name, "population": r.Population})
		if id != 0 {
			lc.RegionIDs[r.Code] = id
		}
		out = append(out, e.record(StageRegions, TableRegions, r.Code, st, err))
	}
	return out
}

func (e *Engine) loadCountries(ctx context.Context, g Graph, lc *LoadContext) []Outcome {
	out := make([]Outcome, 0, len(g.Countries))
	for _, c := range g.Countries {
		regionID, ok := lc.RegionIDs[c.RegionCode]
		if !ok {
			out = append(out, skipped(c.Slug, "region "+c.RegionCode+" not loaded"))
			continue
		}
		row := storage.Row{
			"slug":                  c.Slug,
			"name":                  c.Name,
			"region_id":             regionID,
			"population":            c.Population,
			"percentage_of_region":  c.PercentageInRegion,
			"percentage_of_africa":  c.PercentageInAfrica,
			"description":           text(c.Description),
			"ancient_names":         jsonList(model.SummaryAncientNames(c.AncientNames, model.SummaryAncientNameLimit)),
			"ethnic_groups_summary": text(c.Summary),
			"notes":                 text(c.Notes),
			"source_schema":         text(string(c.Schema)),
		}
		id, st, err := e.ensure(ctx, TableCountries, storage.Row{"slug": c.Slug}, row)
		if id != 0 {
			lc.CountryIDs[c.Slug] = id
		}
		out = append(out, e.record(StageCountries, TableCountries, c.Slug, st, err))
	}
	return out
}

func (e *Engine) loadLanguages(ctx context.Context, g Graph, lc *LoadContext) []Outcome {
	out := make([]Outcome, 0, len(g.Languages))
	for _, l := range g.Languages {
		id, st, err := e.ensure(ctx, TableLanguages, storage.Row{"code": l.Code}, storage.Row{"code": l.Code, "name": l.Name})
		if id != 0 {
			lc.LanguageIDs[l.Code] = id
		}
		out = append(out, e.record(StageLanguages, TableLanguages, l.Code, st, err))
	}
	return out
}

func (e *Engine) loadSources(ctx context.Context, g Graph, lc *LoadContext) []Outcome {
	out := make([]Outcome, 0, len(g.Sources))
	for _, title := range g.Sources {
		id, st, err := e.ensure(ctx, TableSources, storage.Row{"title": title}, storage.Row{"title": title})
		if id != 0 {
			lc.SourceIDs[title] = id
		}
		out = append(out, e.record(StageSources, TableSources, title, st, err))
	}
	return out
}

// loadGroups writes parents, then subgroups, then standalone groups, so every
// parent_id resolves.
func (e *Engine) loadGroups(ctx context.Context, g Graph, lc *LoadContext) []Outcome {
	out := make([]Outcome, 0, len(g.Groups))
	for _, role := range []Role{RoleParent, RoleSubgroup, RoleStandalone} {
		for _, gr := range g.GroupsByRole(role) {
			var parentID any
			if gr.Role == RoleSubgroup {
				id, ok := lc.GroupIDs[gr.ParentSlug]
				if !ok {
					out = append(out, skipped(gr.Slug, "parent "+gr.ParentSlug+" not loaded"))
					continue
				}
				parentID = id
			}
			row := storage.Row{
				"slug":                 gr.Slug,
				"name":                 gr.Name,
				"parent_id":            parentID,
				"is_parent":            gr.Role == RoleParent,
				"total_population":     gr.TotalPopulation,
				"percentage_in_africa": gr.PercentageInAfrica,
				"ancient_name":         text(gr.AncientName),
				"description":          text(gr.Description),
				"society_type":         text(gr.SocietyType),
				"religion":             text(gr.Religion),
				"linguistic_family":    text(gr.LinguisticFamily),
				"historical_status":    text(gr.HistoricalStatus),
				"regions_present":      jsonList(gr.RegionsPresent),
			}
			id, st, err := e.ensure(ctx, TableGroups, storage.Row{"slug": gr.Slug}, row)
			if id != 0 {
				lc.GroupIDs[gr.Slug] = id
			}
			out = append(out, e.record(StageGroups, TableGroups, gr.Slug, st, err))
		}
	}
	return out
}

func (e *Engine) loadPresences(ctx context.Context, g Graph, lc *LoadContext) []Outcome {
	out := make([]Outcome, 0, len(g.Presences))
	for _, p := range g.Presences {
		key := p.GroupSlug + "@" + p.CountrySlug
		groupID, ok := lc.GroupIDs[p.GroupSlug]
		if !ok {
			out = append(out, skipped(key, "group not loaded"))
			continue
		}
		countryID, ok := lc.CountryIDs[p.CountrySlug]
		if !ok {
			out = append(out, skipped(key, "country not loaded"))
			continue
		}
		st, err := e.upsert(ctx, TablePresence, storage.Row{
			"ethnic_group_id":       groupID,
			"country_id":            countryID,
			"population":            p.Population,
			"percentage_in_country": p.PercentageInCountry,
			"percentage_in_region":  p.PercentageInRegion,
			"percentage_in_africa":  p.PercentageInAfrica,
		}, []string{"ethnic_group_id", "country_id"})
		out = append(out, e.record(StagePresences, TablePresence, key, st, err))
	}
	return out
}

func (e *Engine) loadGroupLanguages(ctx context.Context, g Graph, lc *LoadContext) []Outcome {
	out := make([]Outcome, 0, len(g.GroupLanguages))
	for _, l := range g.GroupLanguages {
		key := l.GroupSlug + "/" + l.LanguageCode
		groupID, gok := lc.GroupIDs[l.GroupSlug]
		langID, lok := lc.LanguageIDs[l.LanguageCode]
		if !gok || !lok {
			out = append(out, skipped(key, "group or language not loaded"))
			continue
		}
		st, err := e.upsert(ctx, TableGroupLanguages, storage.Row{
			"ethnic_group_id": groupID,
			"language_id":     langID,
			"is_primary":      l.IsPrimary,
		}, []string{"ethnic_group_id", "language_id"})
		out = append(out, e.record(StageGroupLanguages, TableGroupLanguages, key, st, err))
	}
	return out
}

func (e *Engine) loadGroupSources(ctx context.Context, g Graph, lc *LoadContext) []Outcome {
	out := make([]Outcome, 0, len(g.GroupSources))
	for _, s := range g.GroupSources {
		key := s.GroupSlug + "/" + s.SourceTitle
		groupID, gok := lc.GroupIDs[s.GroupSlug]
		sourceID, sok := lc.SourceIDs[s.SourceTitle]
		if !gok || !sok {
			out = append(out, skipped(key, "group or source not loaded"))
			continue
		}
		st, err := e.upsert(ctx, TableGroupSources, storage.Row{
			"ethnic_group_id": groupID,
			"source_id":       sourceID,
		}, []string{"ethnic_group_id", "source_id"})
		out = append(out, e.record(StageGroupSources, TableGroupSources, key, st, err))
	}
	return out
}

// text maps "" to NULL.
func text(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonList stores a string list as a JSON array, or NULL when empty.
func jsonList(items []string) any {
	if len(items) == 0 {
		return nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return string(b)
}
