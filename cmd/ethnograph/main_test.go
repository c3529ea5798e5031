package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"ethnograph/internal/artifact"
	"ethnograph/internal/migrate"
	"ethnograph/internal/storage"
	"ethnograph/internal/storage/memory"
)

const beninCSV = `Ethnicity_or_Subgroup,pourcentage dans la population du pays,population de l'ethnie estimée dans le pays,pourcentage dans la population totale d'Afrique
Fon/Adja,50,"500,000",0.04
Yoruba,20,200000,0.01
`

const togoCSV = `Group,Sub_group,Population_2025,Percentage_in_country,Percentage_in_Africa,Language,Region,Sources
Ewe,Ewe proper,300000,30,0.02,"Ewe, Français",Maritime,Ethnologue
Ewe,Mina,100000,10,0.01,Mina,Maritime,Ethnologue
Kabye,,200000,20,0.01,Kabiyè,Kara,
`

const beninDossier = `# PAYS : Bénin
## Anciens noms
- **Dahomey** (1600 – 1975)
## Description
Pays d'Afrique de l'Ouest.
# ETHNIES
### Fon
**Description**: Peuple fon.
### Yoruba
**Description**: Peuple yoruba.
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func dataset(t *testing.T) (data, out string) {
	t.Helper()
	root := t.TempDir()
	data, out = filepath.Join(root, "data"), filepath.Join(root, "out")
	writeFile(t, filepath.Join(data, artifact.RegionsFile), `{"regions":[{"code":"west","name":"Afrique de l'Ouest"}]}`)
	writeFile(t, filepath.Join(data, artifact.CSVDir, "west", "Bénin.csv"), beninCSV)
	writeFile(t, filepath.Join(data, artifact.CSVDir, "west", "Togo.csv"), togoCSV)
	writeFile(t, filepath.Join(data, artifact.DossierDir, "west", "Bénin.md"), beninDossier)
	return data, out
}

func exec(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append(args, "--log-mode", "production"), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func loadReport(t *testing.T, out string) migrate.Report {
	t.Helper()
	var rep migrate.Report
	require.NoError(t, artifact.ReadJSON(artifact.Layout{Root: out}.LoadReport(), &rep))
	return rep
}

func TestRun_EndToEndSQLiteIsIdempotent(t *testing.T) {
	t.Setenv("REVALIDATE_URL", "")
	data, out := dataset(t)
	dsn := filepath.Join(t.TempDir(), "ethno.db")
	args := []string{"run", "--data", data, "--out", out, "--storage", "sqlite", "--dsn", dsn}

	code, stdout, stderr := exec(t, args...)
	require.Equal(t, exitOK, code, stderr)
	require.Contains(t, stdout, "ethnic_groups")

	first := loadReport(t, out)
	require.Zero(t, first.Errors)
	require.Equal(t, "sqlite", first.Backend)
	require.Equal(t, "skipped: not configured", first.Revalidation)
	require.Equal(t, 2, first.Stage(migrate.StageCountries).Created)
	require.Equal(t, 7, first.Stage(migrate.StageGroups).Created)

	var benin struct {
		AncientNames []string `json:"ancient_names"`
		Ethnicities  []struct {
			Key         string `json:"key"`
			Description string `json:"description"`
		} `json:"ethnicities"`
	}
	require.NoError(t, artifact.ReadJSON(artifact.Layout{Root: out}.Country(artifact.Matched, "benin"), &benin))
	require.Equal(t, []string{"Dahomey"}, benin.AncientNames)
	require.Equal(t, "Peuple fon.", benin.Ethnicities[0].Description)

	code, _, stderr = exec(t, args...)
	require.Equal(t, exitOK, code, stderr)
	second := loadReport(t, out)
	for _, s := range second.Stages {
		require.Zero(t, s.Created, "stage %s", s.Stage)
	}
	require.NotEqual(t, first.RunID, second.RunID)
}

func TestStagesSeparately(t *testing.T) {
	t.Parallel()

	data, out := dataset(t)
	common := []string{"--data", data, "--out", out}

	for _, stage := range []string{"csv", "dossiers", "match"} {
		code, _, stderr := exec(t, append([]string{stage}, common...)...)
		require.Equal(t, exitOK, code, "%s: %s", stage, stderr)
	}
	l := artifact.Layout{Root: out}
	for _, p := range []string{l.All(artifact.Parsed), l.All(artifact.Descriptions), l.All(artifact.Matched), l.MatchReport()} {
		require.True(t, artifact.Exists(p), p)
	}

	code, stdout, stderr := exec(t, append([]string{"load", "--dry-run"}, common...)...)
	require.Equal(t, exitOK, code, stderr)
	require.Contains(t, stdout, "presences")

	rep := loadReport(t, out)
	require.True(t, rep.DryRun)
	require.Equal(t, "memory", rep.Backend)
	require.Equal(t, "skipped: dry run", rep.Revalidation)
}

func TestMatch_WithoutDescriptions(t *testing.T) {
	t.Parallel()

	data, out := dataset(t)
	code, _, stderr := exec(t, "csv", "--data", data, "--out", out)
	require.Equal(t, exitOK, code, stderr)

	code, _, stderr = exec(t, "match", "--data", data, "--out", out)
	require.Equal(t, exitOK, code, stderr)
}

func TestExitCodes(t *testing.T) {
	t.Parallel()

	data, out := dataset(t)
	empty := t.TempDir()
	emptyOut := filepath.Join(empty, "out")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "missing regions index", args: []string{"run", "--data", empty, "--out", emptyOut, "--storage", "memory"}, want: exitInput},
		{name: "load before match", args: []string{"load", "--data", data, "--out", out, "--storage", "memory"}, want: exitInput},
		{name: "unknown flag", args: []string{"csv", "--nope"}, want: exitUsage},
		{name: "unknown command", args: []string{"frobnicate"}, want: exitUsage},
		{name: "missing dsn", args: []string{"run", "--data", data, "--out", filepath.Join(t.TempDir(), "o"), "--storage", "postgres", "--dsn", ""}, want: exitUsage},
		{name: "unknown storage kind", args: []string{"run", "--data", data, "--out", filepath.Join(t.TempDir(), "o"), "--storage", "nope", "--dsn", "x"}, want: exitDB},
		{name: "probe missing file", args: []string{"probe", filepath.Join(empty, "x.csv")}, want: exitInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := exec(t, tc.args...)
			require.Equal(t, tc.want, code, stderr)
		})
	}

	_, err := os.Stat(emptyOut)
	require.True(t, errors.Is(err, os.ErrNotExist), "fatal input error must not write artifacts")
}

type failCountries struct{ *memory.Repo }

func (f failCountries) Insert(ctx context.Context, table string, row storage.Row) (int64, error) {
	if table == migrate.TableCountries && row["slug"] == "togo" {
		return 0, &storage.DBError{Op: "insert", Table: table, Code: "XX000", Err: errors.New("disk full")}
	}
	return f.Repo.Insert(ctx, table, row)
}

func init() {
	storage.Register("failing-test", func(context.Context, storage.Config) (storage.Repository, error) {
		return failCountries{memory.New()}, nil
	})
}

func TestRun_EntityErrorsExitOne(t *testing.T) {
	t.Parallel()

	data, out := dataset(t)
	code, stdout, stderr := exec(t, "run", "--data", data, "--out", out, "--storage", "failing-test", "--dsn", "x")
	require.Equal(t, exitEntities, code, stderr)
	require.Contains(t, stderr, "entity errors")
	require.Contains(t, stdout, "total errors")

	rep := loadReport(t, out)
	require.Equal(t, 1, rep.Errors)
	require.Equal(t, "skipped: load had errors", rep.Revalidation)
	require.Equal(t, 1, rep.Stage(migrate.StageCountries).Created, "other countries still load")
}

func TestRun_Revalidates(t *testing.T) {
	var (
		hits atomic.Int32
		auth atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		auth.Store(r.Header.Get("Authorization"))
		var body struct{ Tags []string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Tags) == 0 {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	t.Setenv("REVALIDATE_URL", srv.URL)
	t.Setenv("REVALIDATE_SECRET", "shh")
	t.Setenv("REVALIDATE_TAGS", "countries,ethnic-groups")

	data, out := dataset(t)
	code, _, stderr := exec(t, "run", "--data", data, "--out", out, "--storage", "sqlite", "--dsn", filepath.Join(t.TempDir(), "e.db"))
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, "Bearer shh", auth.Load())
	require.Equal(t, "ok", loadReport(t, out).Revalidation)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	data, _ := dataset(t)
	code, stdout, stderr := exec(t, "probe", filepath.Join(data, artifact.CSVDir, "west", "Togo.csv"))
	require.Equal(t, exitOK, code, stderr)
	require.Contains(t, stdout, "schema:\tenriched")
	require.Contains(t, stdout, "Togo (togo, enriched)")
	require.True(t, strings.Contains(stdout, "- Mina"), stdout)
}
