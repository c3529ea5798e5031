package migrate

// LoadContext holds the natural key -> generated id maps built while loading.
// Each stage reads the maps of earlier stages and fills its own. Entries are
// written once per key and never invalidated during a run.
type LoadContext struct {
	RegionIDs   map[string]int64 `json:"regions"`
	CountryIDs  map[string]int64 `json:"countries"`
	LanguageIDs map[string]int64 `json:"languages"`
	SourceIDs   map[string]int64 `json:"sources"`
	GroupIDs    map[string]int64 `json:"ethnic_groups"`
}

// NewLoadContext returns a context with empty maps.
func NewLoadContext() *LoadContext {
	return &LoadContext{
		RegionIDs:   make(map[string]int64),
		CountryIDs:  make(map[string]int64),
		LanguageIDs: make(map[string]int64),
		SourceIDs:   make(map[string]int64),
		GroupIDs:    make(map[string]int64),
	}
}
