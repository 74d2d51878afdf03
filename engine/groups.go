package engine

import (
	"context"
	"sort"

	"github.com/oxhq/varix/fault"
)

// DerivedGroup reports the group name a partial configuration already
// pins down. The name is unique when every leaf still reachable under
// the selections carries the same group.
type DerivedGroup struct {
	GroupName          *string  `json:"group_name"`
	IsUnique           bool     `json:"is_unique"`
	PossibleGroupNames []string `json:"possible_group_names"`
}

// DerivedGroupName infers the group from the current selections: start
// with every grouped leaf of the family, keep the leaves that descend
// from each selection, and collect the group names of the survivors.
func (e *Engine) DerivedGroupName(ctx context.Context, selections []Selection) (DerivedGroup, error) {
	empty := DerivedGroup{PossibleGroupNames: []string{}}

	family, ok := familyCode(selections)
	if !ok {
		return empty, nil
	}

	familyNode, err := e.store.FamilyByCode(ctx, family)
	if fault.IsKind(err, fault.NotFound) {
		return empty, nil
	}
	if err != nil {
		return empty, err
	}

	leaves, err := e.store.GroupedLeaves(ctx, familyNode.ID)
	if err != nil {
		return empty, err
	}
	if len(leaves) == 0 {
		return empty, nil
	}

	compatible := make([]uint, len(leaves))
	for i, leaf := range leaves {
		compatible[i] = leaf.ID
	}

	for _, sel := range selections {
		if sel.Level == 0 {
			continue
		}
		selIDs := sel.idSet()
		if len(selIDs) == 0 {
			continue
		}
		compatible, err = e.store.FilterDescendants(ctx, selIDs, compatible)
		if err != nil {
			return empty, err
		}
		if len(compatible) == 0 {
			return empty, nil
		}
	}

	keep := make(map[uint]struct{}, len(compatible))
	for _, id := range compatible {
		keep[id] = struct{}{}
	}

	nameSet := map[string]struct{}{}
	for _, leaf := range leaves {
		if _, ok := keep[leaf.ID]; !ok {
			continue
		}
		if leaf.GroupName != nil && *leaf.GroupName != "" {
			nameSet[*leaf.GroupName] = struct{}{}
		}
	}

	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}
	sort.Strings(names)

	if len(names) == 1 {
		return DerivedGroup{GroupName: &names[0], IsUnique: true, PossibleGroupNames: names}, nil
	}
	return DerivedGroup{PossibleGroupNames: names}, nil
}
