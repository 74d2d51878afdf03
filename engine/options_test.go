package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/varix/fault"
)

func TestOptionsRequiresFamily(t *testing.T) {
	f := seedForest(t)

	_, err := f.e.Options(context.Background(), OptionsQuery{
		TargetLevel: 1,
		Selections:  []Selection{sel(1, "A12", f.a12.ID)},
	})
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestOptionsUnknownFamily(t *testing.T) {
	f := seedForest(t)

	options, err := f.e.Options(context.Background(), OptionsQuery{
		TargetLevel: 1,
		Selections:  []Selection{sel(0, "ZZ")},
	})
	require.NoError(t, err)
	assert.Empty(t, options)
}

func TestOptionsLevelOne(t *testing.T) {
	f := seedForest(t)

	options, err := f.e.Options(context.Background(), OptionsQuery{
		TargetLevel: 1,
		Selections:  []Selection{sel(0, "GP", f.gp.ID)},
	})
	require.NoError(t, err)

	// B30 hangs outside the pattern container and sorts before the
	// pattern-3 block.
	assert.Equal(t, []string{"B30", "A12", "A25"}, optionCodes(options))
	for _, o := range options {
		assert.True(t, o.IsCompatible, o.Code)
	}

	b30 := options[0]
	assert.Nil(t, b30.ParentPattern)
	assert.Equal(t, f.b30.ID, b30.ID)

	a12 := options[1]
	require.NotNil(t, a12.ParentPattern)
	assert.Equal(t, 3, *a12.ParentPattern)
	assert.Equal(t, f.a12.ID, a12.ID)
	assert.Equal(t, []uint{f.a12.ID}, a12.IDs)
	require.NotNil(t, a12.Label)
	assert.Equal(t, "Baugröße: A12 = Nenngröße 12", *a12.Label)
	require.NotNil(t, a12.LabelEN)
	assert.Equal(t, "Size: A12 = nominal size 12", *a12.LabelEN)
	require.NotNil(t, a12.GroupName)
	assert.Equal(t, "Baugröße", *a12.GroupName)
}

func TestOptionsMergesDuplicateCodes(t *testing.T) {
	f := seedForest(t)

	options, err := f.e.Options(context.Background(), OptionsQuery{
		TargetLevel: 2,
		Selections:  []Selection{sel(0, "GP", f.gp.ID)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"K1", "L5", "K2"}, optionCodes(options))

	// Both K1 nodes are reachable; the option carries both ids with the
	// first candidate as representative.
	k1 := options[0]
	assert.Equal(t, f.k1A25.ID, k1.ID)
	assert.Equal(t, []uint{f.k1A25.ID, f.k1A12.ID}, k1.IDs)
	assert.True(t, k1.IsCompatible)
	require.NotNil(t, k1.Label)
	assert.Equal(t, "Kolben: K1 = Stahl", *k1.Label)
	assert.Nil(t, k1.LabelEN)
	require.NotNil(t, k1.Name)
	assert.Equal(t, "K1", *k1.Name)
	require.NotNil(t, k1.GroupName)
	assert.Equal(t, "Werkstoff", *k1.GroupName)
	assert.Nil(t, k1.ParentPattern)

	k2 := options[2]
	require.NotNil(t, k2.ParentPattern)
	assert.Equal(t, 2, *k2.ParentPattern)
}

func TestOptionsPrunesBySelection(t *testing.T) {
	f := seedForest(t)

	options, err := f.e.Options(context.Background(), OptionsQuery{
		TargetLevel: 2,
		Selections: []Selection{
			sel(0, "GP", f.gp.ID),
			sel(1, "A12", f.a12.ID),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"K1", "L5", "K2"}, optionCodes(options))

	// The A25 branch drops out of the K1 group, leaving the single
	// survivor under A12.
	k1 := options[0]
	assert.Equal(t, f.k1A12.ID, k1.ID)
	assert.Equal(t, []uint{f.k1A12.ID}, k1.IDs)
	assert.True(t, k1.IsCompatible)

	for _, o := range options {
		assert.True(t, o.IsCompatible, o.Code)
	}
}

func TestOptionsIncompatibleKeepIDs(t *testing.T) {
	f := seedForest(t)

	options, err := f.e.Options(context.Background(), OptionsQuery{
		TargetLevel: 2,
		Selections: []Selection{
			sel(0, "GP", f.gp.ID),
			sel(1, "B30", f.b30.ID),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"K1", "L5", "K2"}, optionCodes(options))

	// Nothing sits below B30, so every option greys out but keeps its
	// unpruned id set.
	for _, o := range options {
		assert.False(t, o.IsCompatible, o.Code)
	}
	k1 := options[0]
	assert.Equal(t, []uint{f.k1A25.ID, f.k1A12.ID}, k1.IDs)
	require.NotNil(t, k1.Label)
	assert.Equal(t, "Kolben: K1 = Stahl", *k1.Label)
}

func TestOptionsDescendantSelection(t *testing.T) {
	f := seedForest(t)

	options, err := f.e.Options(context.Background(), OptionsQuery{
		TargetLevel: 1,
		Selections: []Selection{
			sel(0, "GP", f.gp.ID),
			sel(3, "Z9", f.z9.ID),
		},
	})
	require.NoError(t, err)

	// Pattern grouping stays ahead of compatibility: B30 keeps its slot
	// even though only A12 leads to Z9.
	assert.Equal(t, []string{"B30", "A12", "A25"}, optionCodes(options))
	assert.False(t, options[0].IsCompatible)
	assert.True(t, options[1].IsCompatible)
	assert.False(t, options[2].IsCompatible)
}

func TestOptionsGroupFilter(t *testing.T) {
	f := seedForest(t)

	options, err := f.e.Options(context.Background(), OptionsQuery{
		TargetLevel: 2,
		GroupFilter: "Werkstoff",
		Selections: []Selection{
			sel(0, "GP", f.gp.ID),
			sel(1, "A12", f.a12.ID),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"K1", "L5", "K2"}, optionCodes(options))
	assert.True(t, options[0].IsCompatible)
	assert.False(t, options[1].IsCompatible, "L5 is in group Lager")
	assert.True(t, options[2].IsCompatible)
}

func TestOptionsSelectionWithoutIDs(t *testing.T) {
	f := seedForest(t)

	// A selection carrying no ids cannot be resolved and is skipped
	// instead of guessed.
	options, err := f.e.Options(context.Background(), OptionsQuery{
		TargetLevel: 2,
		Selections: []Selection{
			sel(0, "GP", f.gp.ID),
			{Level: 1, Code: "A12"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"K1", "L5", "K2"}, optionCodes(options))

	k1 := options[0]
	assert.True(t, k1.IsCompatible)
	assert.Equal(t, []uint{f.k1A25.ID, f.k1A12.ID}, k1.IDs)
}

// Compatibility is direction-free: when a lower-level pick keeps a
// higher code selectable, picking that higher code keeps the lower one
// selectable, and the greyed-out pairs agree the same way.
func TestOptionsCompatibilitySymmetric(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	compatAt := func(selLevel int, selCode string, selID uint, targetLevel int, code string) bool {
		options, err := f.e.Options(ctx, OptionsQuery{
			TargetLevel: targetLevel,
			Selections: []Selection{
				sel(0, "GP", f.gp.ID),
				sel(selLevel, selCode, selID),
			},
		})
		require.NoError(t, err)
		return optionByCode(t, options, code).IsCompatible
	}

	// A12 and K2 share a path.
	assert.True(t, compatAt(1, "A12", f.a12.ID, 2, "K2"))
	assert.True(t, compatAt(2, "K2", f.k2.ID, 1, "A12"))

	// B30 and K2 do not.
	assert.False(t, compatAt(1, "B30", f.b30.ID, 2, "K2"))
	assert.False(t, compatAt(2, "K2", f.k2.ID, 1, "B30"))
}

func optionByCode(t *testing.T, options []AvailableOption, code string) AvailableOption {
	t.Helper()
	for _, o := range options {
		if o.Code == code {
			return o
		}
	}
	t.Fatalf("no option with code %q in %v", code, optionCodes(options))
	return AvailableOption{}
}

func TestOptionsWithSearch(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()
	q := OptionsQuery{
		TargetLevel: 1,
		Selections:  []Selection{sel(0, "GP", f.gp.ID)},
	}

	options, err := f.e.OptionsWithSearch(ctx, q, SearchFilter{Pattern: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"B30", "A12", "A25"}, optionCodes(options))

	options, err = f.e.OptionsWithSearch(ctx, q, SearchFilter{Pattern: ptr(2)})
	require.NoError(t, err)
	assert.Empty(t, options)

	options, err = f.e.OptionsWithSearch(ctx, q, SearchFilter{CodePrefix: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A12", "A25"}, optionCodes(options))

	options, err = f.e.OptionsWithSearch(ctx, q, SearchFilter{LabelSearch: "sonder"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B30"}, optionCodes(options))

	// English labels are searched too.
	options, err = f.e.OptionsWithSearch(ctx, q, SearchFilter{LabelSearch: "nominal"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A12"}, optionCodes(options))
}
