package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oxhq/varix/db"
	"github.com/oxhq/varix/models"
	"github.com/oxhq/varix/store"
)

// forest is the shared engine-test fixture: two families with duplicate
// codes, pattern containers and typecoded leaves.
//
//	GP "Getriebepumpen"                     level 0
//	├── [pattern 3]                          level 0
//	│   ├── A12  group Baugröße  pos 1       level 1
//	│   │   ├── [pattern 2]                  level 1
//	│   │   │   ├── K1  group Werkstoff pos 1  level 2
//	│   │   │   │   └── Z9  full "GP A12-K1-Z9"  level 3
//	│   │   │   └── K2  group Werkstoff pos 2  level 2
//	│   │   └── L5  group Lager pos 5          level 2
//	│   └── A25  group Baugröße  pos 2       level 1
//	│       └── K1  group Werkstoff pos 1      level 2
//	└── B30  group Baugröße  pos 3           level 1
//
//	HP "Hydraulikpumpen"                    level 0
//	└── A12  group Baugröße  pos 1           level 1
//	    └── X1  full "HP A12-X1"  pos 1        level 2
type forest struct {
	db *gorm.DB
	s  *store.Store
	e  *Engine

	gp, gpPat3, a12, a12Pat2, k1A12, z9, k2, l5, a25, k1A25, b30 *models.Node
	hp, a12HP, x1                                                *models.Node
}

func seedForest(t *testing.T) *forest {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	s := store.New(gdb)
	f := &forest{db: gdb, s: s, e: New(s, nil)}
	ctx := context.Background()

	f.gp, err = s.CreateFamily(ctx, "GP", "Getriebepumpen", ptr("Gear pumps"))
	require.NoError(t, err)

	f.gpPat3 = mustNode(t, s, store.NodeInput{
		Name: "3-stellig", Label: "3-stellig", Level: 0,
		ParentID: &f.gp.ID, Pattern: ptr(3),
	})
	f.a12 = mustNode(t, s, store.NodeInput{
		Code: ptr("A12"), Name: "A12",
		Label:   "Baugröße: A12 = Nenngröße 12",
		LabelEN: ptr("Size: A12 = nominal size 12"),
		Level:   1, ParentID: &f.gpPat3.ID, Position: 1,
		GroupName: ptr("Baugröße"),
	})
	f.a12Pat2 = mustNode(t, s, store.NodeInput{
		Name: "2-stellig", Label: "2-stellig", Level: 1,
		ParentID: &f.a12.ID, Pattern: ptr(2),
	})
	f.k1A12 = mustNode(t, s, store.NodeInput{
		Code: ptr("K1"), Name: "K1",
		Label: "Kolben: K1 = Stahl",
		Level: 2, ParentID: &f.a12Pat2.ID, Position: 1,
		GroupName: ptr("Werkstoff"),
	})
	f.z9 = mustNode(t, s, store.NodeInput{
		Code: ptr("Z9"), Name: "Z9",
		Label: "Dichtung: Z9 = FKM",
		Level: 3, ParentID: &f.k1A12.ID, Position: 1,
		GroupName: ptr("Werkstoff"),
	})
	f.k2 = mustNode(t, s, store.NodeInput{
		Code: ptr("K2"), Name: "K2",
		Label:   "Kolben: K2 = Keramik",
		LabelEN: ptr("Piston: K2 = ceramic"),
		Level:   2, ParentID: &f.a12Pat2.ID, Position: 2,
		GroupName: ptr("Werkstoff"),
	})
	f.l5 = mustNode(t, s, store.NodeInput{
		Code: ptr("L5"), Name: "L5",
		Label: "Lager: L5 = verstärkt",
		Level: 2, ParentID: &f.a12.ID, Position: 5,
		GroupName: ptr("Lager"),
	})
	f.a25 = mustNode(t, s, store.NodeInput{
		Code: ptr("A25"), Name: "A25",
		Label: "Baugröße: A25 = Nenngröße 25",
		Level: 1, ParentID: &f.gpPat3.ID, Position: 2,
		GroupName: ptr("Baugröße"),
	})
	f.k1A25 = mustNode(t, s, store.NodeInput{
		Code: ptr("K1"), Name: "K1",
		Label: "Kolben: K1 = Stahl",
		Level: 2, ParentID: &f.a25.ID, Position: 1,
		GroupName: ptr("Werkstoff"),
	})
	f.b30 = mustNode(t, s, store.NodeInput{
		Code: ptr("B30"), Name: "B30",
		Label: "Sondergröße: B30 = Sonderbaureihe",
		Level: 1, ParentID: &f.gp.ID, Position: 3,
		GroupName: ptr("Baugröße"),
	})

	f.hp, err = s.CreateFamily(ctx, "HP", "Hydraulikpumpen", nil)
	require.NoError(t, err)
	f.a12HP = mustNode(t, s, store.NodeInput{
		Code: ptr("A12"), Name: "A12",
		Label: "Baugröße: A12 = Nenngröße 12",
		Level: 1, ParentID: &f.hp.ID, Position: 1,
		GroupName: ptr("Baugröße"),
	})
	f.x1 = mustNode(t, s, store.NodeInput{
		Code: ptr("X1"), Name: "X1",
		Label: "Welle: X1 = Standard",
		Level: 2, ParentID: &f.a12HP.ID, Position: 1,
	})

	stampFull(t, gdb, f.z9.ID, "GP A12-K1-Z9", false)
	stampFull(t, gdb, f.k1A12.ID, "GP A12-K1", true)
	stampFull(t, gdb, f.x1.ID, "HP A12-X1", false)

	return f
}

func mustNode(t *testing.T, s *store.Store, in store.NodeInput) *models.Node {
	t.Helper()
	node, err := s.CreateNode(context.Background(), in)
	require.NoError(t, err)
	return node
}

// stampFull sets a node's full typecode the way the importer would.
func stampFull(t *testing.T, gdb *gorm.DB, nodeID uint, full string, intermediate bool) {
	t.Helper()
	err := gdb.Model(&models.Node{}).Where("id = ?", nodeID).Updates(map[string]any{
		"full_typecode":        full,
		"is_intermediate_code": intermediate,
	}).Error
	require.NoError(t, err)
}

func sel(level int, code string, ids ...uint) Selection {
	return Selection{Level: level, Code: code, IDs: ids}
}

func optionCodes(options []AvailableOption) []string {
	codes := make([]string, len(options))
	for i, o := range options {
		codes[i] = o.Code
	}
	return codes
}

func TestSelectionIDSet(t *testing.T) {
	assert.Nil(t, Selection{Level: 1, Code: "A12"}.idSet())
	assert.Equal(t, []uint{7}, Selection{Level: 1, Code: "A12", ID: ptr(uint(7))}.idSet())

	// An explicit set wins over the single id.
	both := Selection{Level: 1, Code: "A12", ID: ptr(uint(7)), IDs: []uint{3, 4}}
	assert.Equal(t, []uint{3, 4}, both.idSet())
}

func TestFamilyCode(t *testing.T) {
	code, ok := familyCode([]Selection{{Level: 2, Code: "K1"}, {Level: 0, Code: "GP"}})
	require.True(t, ok)
	assert.Equal(t, "GP", code)

	_, ok = familyCode([]Selection{{Level: 1, Code: "A12"}})
	assert.False(t, ok)
}

func TestPictureFilter(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	err := f.s.AddPicture(ctx, f.z9.ID, models.Picture{URL: "/uploads/z9.png", UploadedAt: "2024-01-01T00:00:00Z"})
	require.NoError(t, err)

	res, err := f.e.Decode(ctx, "Z9")
	require.NoError(t, err)
	require.Len(t, res.PathSegments, 1)
	require.Len(t, res.PathSegments[0].Pictures, 1)
	assert.Equal(t, "/uploads/z9.png", res.PathSegments[0].Pictures[0].URL)

	// A filter that rejects everything strips pictures from the output.
	drop := New(f.s, func([]models.Picture) []models.Picture { return nil })
	res, err = drop.Decode(ctx, "Z9")
	require.NoError(t, err)
	assert.Empty(t, res.PathSegments[0].Pictures)
}
