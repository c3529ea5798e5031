package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ethnograph/internal/aggregate"
	"ethnograph/internal/artifact"
	"ethnograph/internal/dossier"
	"ethnograph/internal/match"
	"ethnograph/internal/metrics"
	"ethnograph/internal/migrate"
	"ethnograph/internal/model"
	"ethnograph/internal/parser/csv"
	"ethnograph/internal/records"
	"ethnograph/internal/revalidate"
	"ethnograph/internal/storage"
)

func (a *app) layout() artifact.Layout {
	return artifact.Layout{Root: a.cfg.OutDir}
}

func (a *app) regions() ([]model.Region, error) {
	regions, err := artifact.LoadRegions(a.cfg.DataDir)
	if err != nil {
		return nil, withCode(exitInput, err)
	}
	return regions, nil
}

func (a *app) countRecords(kind string, n int) {
	if n > 0 {
		a.metrics.IncCounter(metrics.RecordsTotal, float64(n), metrics.Labels{"kind": kind})
	}
}

// parseCSV builds one CountryRecord per country CSV and writes the parsed
// artifacts. Unreadable or empty files are skipped with a warning.
func (a *app) parseCSV(regions []model.Region) ([]model.CountryRecord, error) {
	inputs, err := artifact.Discover(a.cfg.DataDir, artifact.CSVDir, regions, ".csv")
	if err != nil {
		return nil, withCode(exitInput, err)
	}

	b := records.NewBuilder(a.log)
	l := a.layout()
	countries := make([]model.CountryRecord, 0, len(inputs))
	ethnicities := 0
	for _, in := range inputs {
		t, err := csv.ReadFile(in.Path)
		if err != nil {
			a.log.Warnw("csv skipped", "file", in.Path, "error", err)
			continue
		}
		if t.Len() == 0 {
			a.log.Warnw("csv skipped: no data rows or unknown header", "file", in.Path, "header", t.Header)
			continue
		}
		c := b.Country(in.Country, in.Region, t)
		c.SourceFile = in.Path
		if err := artifact.WriteJSON(l.Country(artifact.Parsed, c.Slug), c); err != nil {
			return nil, err
		}
		countries = append(countries, c)
		for _, r := range c.Ethnicities {
			ethnicities += 1 + len(r.Subgroups)
		}
		a.log.Debugw("csv parsed", "country", c.Slug, "schema", c.Schema, "records", len(c.Ethnicities))
	}
	if err := artifact.WriteJSON(l.All(artifact.Parsed), countries); err != nil {
		return nil, err
	}
	a.countRecords("countries", len(countries))
	a.countRecords("ethnicities", ethnicities)
	a.log.Infow("csv stage done", "files", len(inputs), "countries", len(countries), "ethnicities", ethnicities)
	return countries, nil
}

// parseDossiers parses every dossier and writes the description artifacts.
func (a *app) parseDossiers(regions []model.Region) ([]model.CountryDescription, error) {
	rules, err := dossier.LoadRules(a.cfg.DossierRules)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	inputs, err := artifact.Discover(a.cfg.DataDir, artifact.DossierDir, regions, ".md", ".txt", ".html", ".htm")
	if err != nil {
		return nil, withCode(exitInput, err)
	}

	p := dossier.NewParser(rules, a.log)
	l := a.layout()
	descs := make([]model.CountryDescription, 0, len(inputs))
	for _, in := range inputs {
		d, err := p.ParseFile(in.Path, in.Country, in.Region)
		if err != nil {
			a.log.Warnw("dossier skipped", "file", in.Path, "error", err)
			continue
		}
		if err := artifact.WriteJSON(l.Country(artifact.Descriptions, d.Key), d); err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	if err := artifact.WriteJSON(l.All(artifact.Descriptions), descs); err != nil {
		return nil, err
	}
	a.countRecords("descriptions", len(descs))
	a.log.Infow("dossier stage done", "files", len(inputs), "descriptions", len(descs))
	return descs, nil
}

// matchAll merges descriptions into countries and writes the matched
// artifacts and the match report.
func (a *app) matchAll(countries []model.CountryRecord, descs []model.CountryDescription) ([]model.CountryRecord, match.Report, error) {
	byKey := make(map[string]*model.CountryDescription, len(descs))
	for i := range descs {
		if _, dup := byKey[descs[i].Key]; dup {
			a.log.Warnw("duplicate dossier; keeping first", "country", descs[i].Key, "file", descs[i].SourceFile)
			continue
		}
		byKey[descs[i].Key] = &descs[i]
	}

	m := match.New(a.log)
	l := a.layout()
	var rep match.Report
	out := make([]model.CountryRecord, 0, len(countries))
	for _, c := range countries {
		merged, st := m.Country(c, byKey[c.Slug])
		if !st.HasDossier {
			a.log.Warnw("no dossier for country", "country", c.Slug)
		}
		for _, w := range aggregate.Check(merged) {
			a.log.Warnw("population check", "country", w.Country, "group", w.Group, "message", w.Message)
		}
		if err := artifact.WriteJSON(l.Country(artifact.Matched, merged.Slug), merged); err != nil {
			return nil, rep, err
		}
		rep.Add(st)
		out = append(out, merged)
	}
	if err := artifact.WriteJSON(l.All(artifact.Matched), out); err != nil {
		return nil, rep, err
	}
	if err := artifact.WriteJSON(l.MatchReport(), rep); err != nil {
		return nil, rep, err
	}
	a.countRecords("matched", rep.Matched)
	a.log.Infow("match stage done", "countries", len(out), "total", rep.Total,
		"matched", rep.Matched, "unmatched", rep.Unmatched, "partial_countries", rep.PartialCountries)
	return out, rep, nil
}

type loadOptions struct {
	dryRun bool
}

// load writes the relational graph. It returns a cliError carrying
// exitEntities when any entity failed; the report is still written.
func (a *app) load(ctx context.Context, regions []model.Region, countries []model.CountryRecord, opts loadOptions) (*migrate.Report, error) {
	scfg := a.cfg.Storage()
	if opts.dryRun {
		scfg = storage.Config{Kind: "memory"}
	} else if err := a.cfg.Validate(); err != nil {
		return nil, withCode(exitUsage, err)
	}
	repo, err := storage.Open(ctx, scfg)
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	defer repo.Close()

	g := migrate.BuildGraph(regions, countries, a.log)
	rep, err := migrate.NewEngine(repo, a.log, a.metrics).Run(ctx, g, migrate.NewLoadContext())
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	rep.Backend = scfg.Kind
	rep.DryRun = opts.dryRun

	switch {
	case rep.Failed():
		rep.Revalidation = "skipped: load had errors"
	case opts.dryRun:
		rep.Revalidation = "skipped: dry run"
	default:
		rep.Revalidation = a.revalidate(ctx)
	}

	if err := artifact.WriteJSON(a.layout().LoadReport(), rep); err != nil {
		return rep, err
	}
	if err := rep.WriteTable(a.stdout); err != nil {
		return rep, err
	}
	if rep.Failed() {
		return rep, withCode(exitEntities, fmt.Errorf("load finished with %d entity errors (run %s)", rep.Errors, rep.RunID))
	}
	return rep, nil
}

// revalidate is best-effort; its outcome is only reported.
func (a *app) revalidate(ctx context.Context) string {
	c := revalidate.New(revalidate.Config{
		BaseURL: a.cfg.RevalidateURL,
		Secret:  a.cfg.RevalidateSecret,
		Tags:    a.cfg.RevalidateTags,
	}, a.log, a.metrics)
	err := c.Call(ctx)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, revalidate.ErrDisabled):
		return "skipped: not configured"
	default:
		return "failed: " + err.Error()
	}
}

// readStage loads a previous stage's aggregate artifact. A missing file is a
// fatal input error.
func readStage[T any](ctx context.Context, path string) ([]T, error) {
	var out []T
	err := artifact.StreamFile(ctx, path, func(v T) error {
		out = append(out, v)
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, withCode(exitInput, fmt.Errorf("%s not found; run the previous stage first", path))
	}
	if err != nil {
		return nil, withCode(exitInput, err)
	}
	return out, nil
}
