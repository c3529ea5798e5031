package migrate

import "ethnograph/internal/storage"

// Table names of the relational sink.
const (
	TableRegions        = "african_regions"
	TableCountries      = "countries"
	TableLanguages      = "languages"
	TableSources        = "sources"
	TableGroups         = "ethnic_groups"
	TablePresence       = "ethnic_group_presence"
	TableGroupLanguages = "ethnic_group_languages"
	TableGroupSources   = "ethnic_group_sources"
)

func notNull() *bool {
	f := false
	return &f
}

func col(name, kind string) storage.ColumnSpec {
	return storage.ColumnSpec{Name: name, Type: kind}
}

func required(name, kind string) storage.ColumnSpec {
	return storage.ColumnSpec{Name: name, Type: kind, Nullable: notNull()}
}

func ref(name, table string, nullable bool) storage.ColumnSpec {
	c := storage.ColumnSpec{Name: name, Type: storage.KindRef, References: table}
	if !nullable {
		c.Nullable = notNull()
	}
	return c
}

func unique(cols ...string) []storage.ConstraintSpec {
	return []storage.ConstraintSpec{{Kind: "unique", Columns: cols}}
}

var serial = &storage.PrimaryKeySpec{Name: storage.IDColumn, Type: "serial"}

// Tables returns the sink schema in creation order; referenced tables come
// first.
func Tables() []storage.TableSpec {
	return []storage.TableSpec{
		{
			Name:       TableRegions,
			PrimaryKey: serial,
			Columns: []storage.ColumnSpec{
				required("code", storage.KindKey),
				required("name", storage.KindText),
				col("population", storage.KindBigint),
			},
			Constraints: unique("code"),
		},
		{
			Name:       TableCountries,
			PrimaryKey: serial,
			Columns: []storage.ColumnSpec{
				required("slug", storage.KindKey),
				required("name", storage.KindText),
				ref("region_id", TableRegions, false),
				col("population", storage.KindBigint),
				col("percentage_of_region", storage.KindFloat),
				col("percentage_of_africa", storage.KindFloat),
				col("description", storage.KindText),
				col("ancient_names", storage.KindText),
				col("ethnic_groups_summary", storage.KindText),
				col("notes", storage.KindText),
				col("source_schema", storage.KindText),
			},
			Constraints: unique("slug"),
		},
		{
			Name:        TableLanguages,
			PrimaryKey:  serial,
			Columns:     []storage.ColumnSpec{required("code", storage.KindKey), required("name", storage.KindText)},
			Constraints: unique("code"),
		},
		{
			Name:        TableSources,
			PrimaryKey:  serial,
			Columns:     []storage.ColumnSpec{required("title", storage.KindKey)},
			Constraints: unique("title"),
		},
		{
			Name:       TableGroups,
			PrimaryKey: serial,
			Columns: []storage.ColumnSpec{
				required("slug", storage.KindKey),
				required("name", storage.KindText),
				ref("parent_id", TableGroups, true),
				required("is_parent", storage.KindBool),
				col("total_population", storage.KindBigint),
				col("percentage_in_africa", storage.KindFloat),
				col("ancient_name", storage.KindText),
				col("description", storage.KindText),
				col("society_type", storage.KindText),
				col("religion", storage.KindText),
				col("linguistic_family", storage.KindText),
				col("historical_status", storage.KindText),
				col("regions_present", storage.KindText),
			},
			Constraints: unique("slug"),
		},
		{
			Name:       TablePresence,
			PrimaryKey: serial,
			Columns: []storage.ColumnSpec{
				ref("ethnic_group_id", TableGroups, false),
				ref("country_id", TableCountries, false),
				col("population", storage.KindBigint),
				col("percentage_in_country", storage.KindFloat),
				col("percentage_in_region", storage.KindFloat),
				col("percentage_in_africa", storage.KindFloat),
			},
			Constraints: unique("ethnic_group_id", "country_id"),
		},
		{
			Name:       TableGroupLanguages,
			PrimaryKey: serial,
			Columns: []storage.ColumnSpec{
				ref("ethnic_group_id", TableGroups, false),
				ref("language_id", TableLanguages, false),
				required("is_primary", storage.KindBool),
			},
			Constraints: unique("ethnic_group_id", "language_id"),
		},
		{
			Name:       TableGroupSources,
			PrimaryKey: serial,
			Columns: []storage.ColumnSpec{
				ref("ethnic_group_id", TableGroups, false),
				ref("source_id", TableSources, false),
			},
			Constraints: unique("ethnic_group_id", "source_id"),
		},
	}
}
