package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ethnograph/internal/storage"
)

func specs() []storage.TableSpec {
	f := false
	return []storage.TableSpec{
		{
			Name:        "countries",
			PrimaryKey:  &storage.PrimaryKeySpec{Name: "id", Type: "serial"},
			Columns:     []storage.ColumnSpec{{Name: "slug", Type: storage.KindKey, Nullable: &f}, {Name: "name", Type: storage.KindText}},
			Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"slug"}}},
		},
		{
			Name:       "presence",
			PrimaryKey: &storage.PrimaryKeySpec{Name: "id", Type: "serial"},
			Columns: []storage.ColumnSpec{
				{Name: "group_id", Type: storage.KindBigint},
				{Name: "country_id", Type: storage.KindBigint},
				{Name: "population", Type: storage.KindBigint},
			},
			Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"group_id", "country_id"}}},
		},
	}
}

func TestRepo_InsertConflictSelect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := New()
	require.NoError(t, r.EnsureTables(ctx, specs()))
	require.NoError(t, r.EnsureTables(ctx, specs()), "EnsureTables must be idempotent")

	id, err := r.Insert(ctx, "countries", storage.Row{"slug": "benin", "name": "Bénin"})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	_, err = r.Insert(ctx, "countries", storage.Row{"slug": "benin", "name": "Benin"})
	require.True(t, errors.Is(err, storage.ErrConflict))
	require.Equal(t, 1, r.Count("countries"))

	got, err := r.SelectID(ctx, "countries", storage.Row{"slug": "benin"})
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = r.SelectID(ctx, "countries", storage.Row{"slug": "togo"})
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, r.Update(ctx, "countries", id, storage.Row{"name": "Benin"}))
	require.Equal(t, "Benin", r.Rows("countries")[0]["name"])
}

func TestRepo_NotNullAndUnknownColumn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := New()
	require.NoError(t, r.EnsureTables(ctx, specs()))

	_, err := r.Insert(ctx, "countries", storage.Row{"name": "No slug"})
	require.Error(t, err)
	require.False(t, errors.Is(err, storage.ErrConflict))

	_, err = r.Insert(ctx, "countries", storage.Row{"slug": "x", "bogus": 1})
	require.Error(t, err)

	_, err = r.Insert(ctx, "missing", storage.Row{"slug": "x"})
	require.Error(t, err)
}

func TestRepo_UpsertComposite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := New()
	require.NoError(t, r.EnsureTables(ctx, specs()))

	conflict := []string{"group_id", "country_id"}
	id1, err := r.Upsert(ctx, "presence", storage.Row{"group_id": int64(1), "country_id": int64(2), "population": int64(10)}, conflict)
	require.NoError(t, err)
	id2, err := r.Upsert(ctx, "presence", storage.Row{"group_id": int64(1), "country_id": int64(2), "population": int64(20)}, conflict)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, 1, r.Count("presence"))
	require.Equal(t, int64(20), r.Rows("presence")[0]["population"])

	_, err = r.Upsert(ctx, "presence", storage.Row{"group_id": int64(1), "country_id": int64(3), "population": int64(5)}, conflict)
	require.NoError(t, err)
	require.Equal(t, 2, r.Count("presence"))
}

func TestRepo_RegisteredKind(t *testing.T) {
	t.Parallel()

	repo, err := storage.Open(context.Background(), storage.Config{Kind: "memory"})
	require.NoError(t, err)
	defer repo.Close()
	require.IsType(t, &Repo{}, repo)
}
