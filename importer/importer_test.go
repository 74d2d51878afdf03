package importer

import (
	"context"
	"os"
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

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

// pumpTree is a one-family exchange tree: a pattern container between
// the family and its size options, bilingual labels in both the old
// "label-en" and the new "label_en" spelling, one intermediate and one
// leaf typecode, and a date block on A12.
const pumpTree = `[
  {
    "code": "GP",
    "name": "GP",
    "label": "Getriebepumpen",
    "label_en": "Gear pumps",
    "children": [
      {
        "pattern": 3,
        "name": "",
        "label": "",
        "children": [
          {
            "code": "A12",
            "name": "A12",
            "label": "Baugröße: A12 = Nenngröße 12",
            "label-en": "Size: A12 = nominal size 12",
            "position": 1,
            "group": "Baugröße",
            "date_info": {
              "typecode_count": 4,
              "creation_date": {"earliest": "2015-03-01", "latest": "2022-11-30"}
            },
            "children": [
              {
                "code": "K1",
                "name": "K1",
                "label": "Kolben: K1 = Stahl",
                "label_en": "stale export row",
                "label-en": "Piston: K1 = steel",
                "position": 1,
                "group": "Werkstoff",
                "full_typecode": "GP A12-K1",
                "is_intermediate_code": true,
                "children": [
                  {
                    "code": "Z9",
                    "name": "Z9",
                    "label": "Dichtung: Z9 = FKM",
                    "position": 1,
                    "group": "Werkstoff",
                    "full_typecode": "GP A12-K1-Z9"
                  }
                ]
              }
            ]
          }
        ]
      }
    ]
  }
]`

func TestImportTree(t *testing.T) {
	gdb := openTestDB(t)
	im := New(gdb, nil)
	ctx := context.Background()

	stats, err := im.Import(ctx, writeFixture(t, "tree.json", pumpTree), Options{IncludeDates: true})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.NodesImported)
	assert.Equal(t, 1, stats.ProductFamilies)
	assert.Equal(t, 1, stats.PatternContainers)
	assert.Equal(t, 3, stats.CodeNodes)
	assert.Equal(t, 1, stats.LeafProducts)
	assert.Equal(t, 1, stats.IntermediateProducts)
	assert.Equal(t, 4, stats.LabelSegments)
	assert.Equal(t, 1, stats.DatesImported)
	// 5 self rows plus 1+2+3+4 ancestor rows.
	assert.EqualValues(t, 15, stats.PathsCreated)

	st := store.New(gdb)
	family, err := st.FamilyByCode(ctx, "GP")
	require.NoError(t, err)
	assert.Equal(t, 0, family.Level)
	assert.Equal(t, "Getriebepumpen", family.Label)

	// The pattern container keeps its parent's level.
	var container models.Node
	require.NoError(t, gdb.Where("pattern IS NOT NULL AND code IS NULL").First(&container).Error)
	assert.Equal(t, 0, container.Level)
	require.NotNil(t, container.ParentID)
	assert.Equal(t, family.ID, *container.ParentID)

	a12, err := st.NodeByCode(ctx, "A12")
	require.NoError(t, err)
	assert.Equal(t, 1, a12.Level)
	require.NotNil(t, a12.ParentID)
	assert.Equal(t, container.ID, *a12.ParentID)
	require.NotNil(t, a12.LabelEN)
	assert.Equal(t, "Size: A12 = nominal size 12", *a12.LabelEN)

	k1, err := st.NodeByFullTypecode(ctx, "GP A12-K1")
	require.NoError(t, err)
	assert.Equal(t, 2, k1.Level)
	assert.True(t, k1.IsIntermediateCode)
	require.NotNil(t, k1.LabelEN)
	// When an export carries both spellings the dashed one wins.
	assert.Equal(t, "Piston: K1 = steel", *k1.LabelEN)

	z9, err := st.NodeByFullTypecode(ctx, "GP A12-K1-Z9")
	require.NoError(t, err)
	assert.Equal(t, 3, z9.Level)
	assert.False(t, z9.IsIntermediateCode)
	assert.JSONEq(t, "[]", string(z9.Pictures))

	labels, err := st.LabelSegments(ctx, a12.ID)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "Baugröße", labels[0].Title)
	require.NotNil(t, labels[0].CodeSegment)
	assert.Equal(t, "A12", *labels[0].CodeSegment)
	assert.Equal(t, "Nenngröße 12", labels[0].LabelDE)
	require.NotNil(t, labels[0].LabelEN)
	assert.Equal(t, "nominal size 12", *labels[0].LabelEN)
	require.NotNil(t, labels[0].PositionStart)
	assert.Equal(t, 1, *labels[0].PositionStart)
	assert.Equal(t, 3, *labels[0].PositionEnd)

	dates, err := st.NodeDatesByID(ctx, a12.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, dates.TypecodeCount)
	require.NotNil(t, dates.CreationEarliest)
	assert.Equal(t, "2015-03-01", *dates.CreationEarliest)
	require.NotNil(t, dates.CreationLatest)
	assert.Equal(t, "2022-11-30", *dates.CreationLatest)
	assert.Nil(t, dates.ModificationEarliest)
}

func TestImportRecreate(t *testing.T) {
	gdb := openTestDB(t)
	im := New(gdb, nil)
	ctx := context.Background()

	created, err := im.SeedAdmin(ctx, "admin", "admin@example.com", "s3cret-start")
	require.NoError(t, err)
	assert.True(t, created)

	path := writeFixture(t, "tree.json", pumpTree)
	stats, err := im.Import(ctx, path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DatesImported)

	// A plain re-import duplicates the family, recreate replaces it.
	_, err = im.Import(ctx, path, Options{})
	require.NoError(t, err)
	var count int64
	require.NoError(t, gdb.Model(&models.Node{}).Count(&count).Error)
	assert.EqualValues(t, 10, count)

	stats, err = im.Import(ctx, path, Options{Recreate: true})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.NodesImported)
	assert.EqualValues(t, 15, stats.PathsCreated)
	require.NoError(t, gdb.Model(&models.Node{}).Count(&count).Error)
	assert.EqualValues(t, 5, count)

	// User accounts survive the wipe.
	user, err := store.New(gdb).UserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)
}

func TestDecodeTreeWrapper(t *testing.T) {
	families, err := decodeTree([]byte(`{"children": [{"code": "GP", "label": "Getriebepumpen"}]}`))
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.NotNil(t, families[0].Code)
	assert.Equal(t, "GP", *families[0].Code)
}

func TestDecodeTreeArray(t *testing.T) {
	families, err := decodeTree([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestDecodeTreeRejectsOtherShapes(t *testing.T) {
	_, err := decodeTree([]byte(`{"nodes": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected tree format")

	_, err = decodeTree([]byte(`not json`))
	require.Error(t, err)
}

func TestLoadTreeMissingFile(t *testing.T) {
	_, err := LoadTree(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read tree file")
}
