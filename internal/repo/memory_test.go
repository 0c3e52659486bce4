package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runrelay/runrelay/pkg/logger"
)

type note struct {
	Author string `json:"author" bson:"author"`
	Text   string `json:"text"   bson:"text"`
	Stars  int    `json:"stars"  bson:"stars"`
}

func newNotesRepo(t *testing.T) Repo[note] {
	t.Helper()

	db, err := New[note](context.Background(), logger.NewStub(), Config{Storage: StorageMemory}, "notes")
	require.NoError(t, err)
	return db
}

func TestMemoryRepo_InsertSelect(t *testing.T) {
	db := newNotesRepo(t)
	ctx := context.Background()

	first, err := db.Insert(ctx, note{Author: "ann", Text: "hello", Stars: 3})
	require.NoError(t, err)

	second, err := db.Insert(ctx, note{Author: "bob", Text: "bye", Stars: 5})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	type testcase struct {
		name    string
		filters []Filter

		wantTexts []string
	}

	tests := [...]testcase{
		{
			name:      "all",
			wantTexts: []string{"hello", "bye"},
		},
		{
			name:      "by id",
			filters:   []Filter{ByID(first)},
			wantTexts: []string{"hello"},
		},
		{
			name:      "by field",
			filters:   []Filter{ByField("author", "bob")},
			wantTexts: []string{"bye"},
		},
		{
			name:      "by numeric field",
			filters:   []Filter{ByField("stars", 5)},
			wantTexts: []string{"bye"},
		},
		{
			name:      "where",
			filters:   []Filter{Where(func(n note) bool { return n.Stars > 4 })},
			wantTexts: []string{"bye"},
		},
		{
			name:      "no match",
			filters:   []Filter{ByField("author", "cid")},
			wantTexts: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, err := db.Select(ctx, tt.filters...)
			require.NoError(t, err)

			var texts []string
			for _, n := range selected {
				texts = append(texts, n.Text)
			}
			require.Equal(t, tt.wantTexts, texts)
		})
	}
}

func TestMemoryRepo_Update(t *testing.T) {
	db := newNotesRepo(t)
	ctx := context.Background()

	id, err := db.Insert(ctx, note{Author: "ann", Text: "hello"})
	require.NoError(t, err)
	_, err = db.Insert(ctx, note{Author: "bob", Text: "bye"})
	require.NoError(t, err)

	updated, err := db.Update(ctx, func(n *note) { n.Stars = 1 }, ByID(id))
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	selected, err := db.Select(ctx, ByID(id))
	require.NoError(t, err)
	require.Equal(t, 1, selected[0].Stars)

	updated, err = db.Update(ctx, func(n *note) { n.Stars = 9 })
	require.NoError(t, err)
	require.Equal(t, 2, updated)
}

func TestMemoryRepo_Delete(t *testing.T) {
	db := newNotesRepo(t)
	ctx := context.Background()

	id, err := db.Insert(ctx, note{Author: "ann"})
	require.NoError(t, err)

	deleted, err := db.Delete(ctx, id)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = db.Delete(ctx, id)
	require.NoError(t, err)
	require.False(t, deleted)

	selected, err := db.Select(ctx)
	require.NoError(t, err)
	require.Empty(t, selected)
}

func TestRepo_UnknownStorage(t *testing.T) {
	_, err := New[note](context.Background(), logger.NewStub(), Config{Storage: "etcd"}, "notes")
	require.Error(t, err)
}
