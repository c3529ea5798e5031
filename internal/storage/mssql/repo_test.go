package mssql

import (
	"errors"
	"strings"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"

	"ethnograph/internal/storage"
)

func TestBuildCreateSQL_UsesSizedKeysAndIdentity(t *testing.T) {
	t.Parallel()

	f := false
	ddl, err := buildCreateSQL(storage.TableSpec{
		Name:       "dbo.sources",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "id", Type: "serial"},
		Columns: []storage.ColumnSpec{
			{Name: "title", Type: storage.KindKey, Nullable: &f},
			{Name: "url", Type: storage.KindText},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"title"}}},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	for _, want := range []string{
		"IF OBJECT_ID(N'dbo.sources', N'U') IS NULL",
		"CREATE TABLE [dbo].[sources]",
		"[id] BIGINT IDENTITY(1,1) PRIMARY KEY",
		"[title] NVARCHAR(450) NOT NULL",
		"[url] NVARCHAR(MAX)",
		"UNIQUE ([title])",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q: %s", want, ddl)
		}
	}
}

func TestBuildInsertSQL_OutputsID(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL("countries", storage.Row{"slug": "benin", "name": "Bénin"})
	want := "INSERT INTO [countries] ([name], [slug]) OUTPUT INSERTED.[id] VALUES (@p1, @p2)"
	if q != want {
		t.Fatalf("got  %s\nwant %s", q, want)
	}
	if len(args) != 2 || args[0] != "Bénin" {
		t.Fatalf("args=%v", args)
	}
}

func TestBuildKeyWhere_NullWithoutParameter(t *testing.T) {
	t.Parallel()

	where, args := buildKeyWhere(storage.Row{"parent_id": nil, "slug": "san"})
	if where != "[parent_id] IS NULL AND [slug] = @p1" {
		t.Fatalf("where=%q", where)
	}
	if len(args) != 1 || args[0] != "san" {
		t.Fatalf("args=%v", args)
	}
}

func TestBuildUpdateSQL_IDIsLastParameter(t *testing.T) {
	t.Parallel()

	q, args := buildUpdateSQL("ethnic_groups", 7, storage.Row{"name": "Fon", "description": "x"})
	if q != "UPDATE [ethnic_groups] SET [description] = @p1, [name] = @p2 WHERE [id] = @p3" {
		t.Fatalf("q=%q", q)
	}
	if args[2] != int64(7) {
		t.Fatalf("args=%v", args)
	}
}

func TestWrapErr_DuplicateKeyIsConflict(t *testing.T) {
	t.Parallel()

	for _, n := range []int32{2601, 2627} {
		err := wrapErr("insert", "countries", mssql.Error{Number: n, Message: "Violation of UNIQUE KEY constraint"})
		if !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("number %d: expected ErrConflict, got %v", n, err)
		}
	}
	if err := wrapErr("insert", "countries", mssql.Error{Number: 547}); errors.Is(err, storage.ErrConflict) {
		t.Fatal("FK violation must not be a conflict")
	}
}
