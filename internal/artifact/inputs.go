package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ethnograph/internal/model"
)

const (
	RegionsFile = "regions.json"
	CSVDir      = "csv"
	DossierDir  = "dossiers"
)

// ErrMissingIndex marks an absent or unreadable regions index. Callers abort
// before any write when they see it.
var ErrMissingIndex = errors.New("regions index missing")

// LoadRegions reads <dataDir>/regions.json.
func LoadRegions(dataDir string) ([]model.Region, error) {
	path := filepath.Join(dataDir, RegionsFile)
	var idx model.RegionIndex
	if err := ReadJSON(path, &idx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingIndex, path, err)
	}
	if len(idx.Regions) == 0 {
		return nil, fmt.Errorf("%w: %s lists no regions", ErrMissingIndex, path)
	}
	for i, r := range idx.Regions {
		if strings.TrimSpace(r.Code) == "" {
			return nil, fmt.Errorf("%w: %s: region %d has no code", ErrMissingIndex, path, i)
		}
	}
	return idx.Regions, nil
}

// Input is one per-country source file.
type Input struct {
	Region  string
	Country string
	Path    string
}

// Discover lists <dataDir>/<sub>/<region>/<Country>.<ext> for every region in
// regions, ordered by region index order then file name. A missing region
// directory yields no inputs for it. When a country has several files, the
// extension listed first in exts wins.
func Discover(dataDir, sub string, regions []model.Region, exts ...string) ([]Input, error) {
	rank := make(map[string]int, len(exts))
	for i, e := range exts {
		rank[strings.ToLower(e)] = i
	}

	var out []Input
	for _, r := range regions {
		dir := filepath.Join(dataDir, sub, r.Code)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read dir: %w", err)
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name() < entries[j].Name()
		})

		best := map[string]Input{}
		var order []string
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if _, ok := rank[ext]; !ok {
				continue
			}
			name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			in := Input{Region: r.Code, Country: name, Path: filepath.Join(dir, e.Name())}
			prev, seen := best[name]
			if !seen {
				order = append(order, name)
				best[name] = in
				continue
			}
			if rank[ext] < rank[strings.ToLower(filepath.Ext(prev.Path))] {
				best[name] = in
			}
		}
		for _, name := range order {
			out = append(out, best[name])
		}
	}
	return out, nil
}
