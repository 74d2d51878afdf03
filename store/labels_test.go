package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/oxhq/varix/models"
)

func seedLabelSegments(t *testing.T, f *forest) {
	t.Helper()
	err := f.s.ReplaceLabelSegments(context.Background(), f.b30.ID, []models.NodeLabel{
		{Title: "Serie", CodeSegment: strPtr("B"), PositionStart: intPtr(1), PositionEnd: intPtr(1),
			LabelDE: "Sonderbaureihe", LabelEN: strPtr("special series"), DisplayOrder: 0},
		{Title: "Größe", CodeSegment: strPtr("30"), PositionStart: intPtr(2), PositionEnd: intPtr(3),
			LabelDE: "30 mm", DisplayOrder: 1},
		{Title: "Hinweis", LabelDE: "nur auf Anfrage", DisplayOrder: 2},
	})
	require.NoError(t, err)
}

func TestLabelSegments(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()
	seedLabelSegments(t, f)

	segments, err := f.s.LabelSegments(ctx, f.b30.ID)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	// Position-less segments sort first, then by code position.
	assert.Equal(t, "Hinweis", segments[0].Title)
	assert.Equal(t, "Serie", segments[1].Title)
	assert.Equal(t, "Größe", segments[2].Title)

	segments, err = f.s.LabelSegments(ctx, f.z9.ID)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestReplaceLabelSegments(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()
	seedLabelSegments(t, f)

	err := f.s.ReplaceLabelSegments(ctx, f.b30.ID, []models.NodeLabel{
		{Title: "Serie", CodeSegment: strPtr("B"), PositionStart: intPtr(1), PositionEnd: intPtr(1), LabelDE: "neu"},
	})
	require.NoError(t, err)

	segments, err := f.s.LabelSegments(ctx, f.b30.ID)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "neu", segments[0].LabelDE)

	// An empty replacement clears the node.
	require.NoError(t, f.s.ReplaceLabelSegments(ctx, f.b30.ID, nil))
	segments, err = f.s.LabelSegments(ctx, f.b30.ID)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestCodeHints(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()
	seedLabelSegments(t, f)

	// Only segments anchored to code positions count as hints.
	hints, err := f.s.CodeHints(ctx, f.b30.ID, "B")
	require.NoError(t, err)
	require.Len(t, hints, 2)
	assert.Equal(t, "B", hints[0].Character)
	assert.True(t, hints[0].Matched)
	assert.Equal(t, "30", hints[1].Character)
	assert.False(t, hints[1].Matched)

	hints, err = f.s.CodeHints(ctx, f.b30.ID, "B30")
	require.NoError(t, err)
	require.Len(t, hints, 2)
	assert.True(t, hints[0].Matched)
	assert.True(t, hints[1].Matched)

	hints, err = f.s.CodeHints(ctx, f.b30.ID, "X30")
	require.NoError(t, err)
	assert.False(t, hints[0].Matched)
	assert.True(t, hints[1].Matched)

	hints, err = f.s.CodeHints(ctx, f.b30.ID, "")
	require.NoError(t, err)
	assert.False(t, hints[0].Matched)
	assert.False(t, hints[1].Matched)
}

func TestSegmentMatches(t *testing.T) {
	cases := []struct {
		name    string
		partial string
		start   int
		end     int
		segment string
		want    bool
	}{
		{"exact", "B30", 1, 1, "B", true},
		{"tail", "B30", 2, 3, "30", true},
		{"mismatch", "X30", 1, 1, "B", false},
		{"past end", "B", 2, 3, "30", false},
		{"truncated input", "B3", 2, 3, "30", false},
		{"zero start", "B30", 0, 1, "B", false},
		{"empty segment never typed", "", 1, 1, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, segmentMatches(tc.partial, tc.start, tc.end, tc.segment))
		})
	}
}

func TestNodeDates(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	dates, err := f.s.NodeDatesByID(ctx, f.z9.ID)
	require.NoError(t, err)
	assert.Nil(t, dates)

	err = f.s.UpsertNodeDates(ctx, models.NodeDates{
		NodeID:           f.z9.ID,
		TypecodeCount:    4,
		CreationEarliest: strPtr("2019-03-01"),
		CreationLatest:   strPtr("2024-11-12"),
	})
	require.NoError(t, err)

	dates, err = f.s.NodeDatesByID(ctx, f.z9.ID)
	require.NoError(t, err)
	require.NotNil(t, dates)
	assert.Equal(t, 4, dates.TypecodeCount)
	require.NotNil(t, dates.CreationEarliest)
	assert.Equal(t, "2019-03-01", *dates.CreationEarliest)

	// Upserting again replaces the row instead of stacking a second one.
	err = f.s.UpsertNodeDates(ctx, models.NodeDates{NodeID: f.z9.ID, TypecodeCount: 7})
	require.NoError(t, err)
	dates, err = f.s.NodeDatesByID(ctx, f.z9.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, dates.TypecodeCount)

	var count int64
	require.NoError(t, f.s.db.Model(&models.NodeDates{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubsegments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	imported, err := s.ReplaceSubsegments(ctx, []models.SegmentSubsegment{
		{FamilyCode: "GP", GroupName: "Werkstoff", Level: 2, PatternString: strPtr("XX"),
			Subsegments: datatypes.JSON(`[{"from":1,"to":1,"title":"Werkstoffklasse"}]`), CreatedBy: "anna"},
		{FamilyCode: "GP", GroupName: "Baugröße", Level: 1,
			Subsegments: datatypes.JSON(`[]`), CreatedBy: "anna"},
		{FamilyCode: "HP", GroupName: "Baugröße", Level: 1,
			Subsegments: datatypes.JSON(`[]`), CreatedBy: "anna"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	entries, err := s.Subsegments(ctx, SubsegmentFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = s.Subsegments(ctx, SubsegmentFilter{FamilyCode: "GP"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Baugröße", entries[0].GroupName)
	assert.Equal(t, "Werkstoff", entries[1].GroupName)

	entries, err = s.Subsegments(ctx, SubsegmentFilter{FamilyCode: "GP", GroupName: "Werkstoff"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].PatternString)
	assert.Equal(t, "XX", *entries[0].PatternString)

	entries, err = s.Subsegments(ctx, SubsegmentFilter{Level: intPtr(1)})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// A fresh import swaps the whole table.
	imported, err = s.ReplaceSubsegments(ctx, []models.SegmentSubsegment{
		{FamilyCode: "GP", GroupName: "Lager", Level: 2, Subsegments: datatypes.JSON(`[]`), CreatedBy: "ben"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	entries, err = s.Subsegments(ctx, SubsegmentFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
