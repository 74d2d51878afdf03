package engine

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
	"github.com/oxhq/varix/store"
)

// AvailableOption is one selectable code at the target level. When the
// same code appears at several positions in the forest the option carries
// every id and unions the metadata of the ids still consistent with the
// current path.
type AvailableOption struct {
	ID            uint             `json:"id"`
	IDs           []uint           `json:"ids"`
	Code          string           `json:"code"`
	Label         *string          `json:"label"`
	LabelEN       *string          `json:"label_en"`
	Name          *string          `json:"name"`
	GroupName     *string          `json:"group_name"`
	Level         int              `json:"level"`
	Position      *int             `json:"position"`
	IsCompatible  bool             `json:"is_compatible"`
	ParentPattern *int             `json:"parent_pattern"`
	Pictures      []models.Picture `json:"pictures"`
	Links         []models.Link    `json:"links"`
}

// OptionsQuery asks for the options at one level given the prior picks.
type OptionsQuery struct {
	TargetLevel int         `json:"target_level"`
	Selections  []Selection `json:"previous_selections"`
	GroupFilter string      `json:"group_filter,omitempty"`
}

// SearchFilter narrows resolved options by shape and label text.
type SearchFilter struct {
	Pattern     *int   `json:"pattern,omitempty"`
	CodePrefix  string `json:"code_prefix,omitempty"`
	LabelSearch string `json:"label_search,omitempty"`
}

// codeGroup collects every candidate node sharing one code.
type codeGroup struct {
	code  string
	nodes []store.OptionNode
}

// Options resolves the available options at the target level. Candidates
// are fetched once for the whole family, grouped by code, pruned against
// each selection through the closure table and finally checked for
// compatibility with batched existence queries. Codes that survive no
// path keep their full id set and come back with is_compatible=false so
// the UI can grey them out instead of hiding them.
func (e *Engine) Options(ctx context.Context, q OptionsQuery) ([]AvailableOption, error) {
	family, ok := familyCode(q.Selections)
	if !ok {
		return nil, fault.New(fault.Validation, "no product family (level 0) in selections")
	}

	familyNode, err := e.store.FamilyByCode(ctx, family)
	if fault.IsKind(err, fault.NotFound) {
		return []AvailableOption{}, nil
	}
	if err != nil {
		return nil, err
	}

	candidates, err := e.store.OptionsAtLevel(ctx, familyNode.ID, q.TargetLevel)
	if err != nil {
		return nil, err
	}

	groups := groupByCode(candidates)

	results := make([]AvailableOption, 0, len(groups))
	for _, group := range groups {
		opt, err := e.resolveGroup(ctx, q, group)
		if err != nil {
			return nil, err
		}
		results = append(results, opt)
	}

	sortOptions(results)
	return results, nil
}

// OptionsWithSearch resolves options and then applies the search filter:
// exact code length, code prefix and case-insensitive label substring in
// either language.
func (e *Engine) OptionsWithSearch(ctx context.Context, q OptionsQuery, filter SearchFilter) ([]AvailableOption, error) {
	options, err := e.Options(ctx, q)
	if err != nil {
		return nil, err
	}

	filtered := options
	if filter.Pattern != nil {
		filtered = keepOptions(filtered, func(o AvailableOption) bool {
			return len(o.Code) == *filter.Pattern
		})
	}
	if filter.CodePrefix != "" {
		prefix := strings.ToUpper(filter.CodePrefix)
		filtered = keepOptions(filtered, func(o AvailableOption) bool {
			return strings.HasPrefix(o.Code, prefix)
		})
	}
	if filter.LabelSearch != "" {
		needle := strings.ToLower(filter.LabelSearch)
		filtered = keepOptions(filtered, func(o AvailableOption) bool {
			if o.Label != nil && strings.Contains(strings.ToLower(*o.Label), needle) {
				return true
			}
			return o.LabelEN != nil && strings.Contains(strings.ToLower(*o.LabelEN), needle)
		})
	}
	return filtered, nil
}

func keepOptions(options []AvailableOption, keep func(AvailableOption) bool) []AvailableOption {
	out := make([]AvailableOption, 0, len(options))
	for _, o := range options {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// groupByCode splits the ordered candidate list into per-code groups,
// preserving the first-seen order of the codes.
func groupByCode(candidates []store.OptionNode) []*codeGroup {
	var (
		groups []*codeGroup
		index  = make(map[string]*codeGroup)
	)
	for _, c := range candidates {
		g, ok := index[c.Code]
		if !ok {
			g = &codeGroup{code: c.Code}
			index[c.Code] = g
			groups = append(groups, g)
		}
		g.nodes = append(g.nodes, c)
	}
	return groups
}

// resolveGroup prunes one code group against the selections and assembles
// its option.
func (e *Engine) resolveGroup(ctx context.Context, q OptionsQuery, group *codeGroup) (AvailableOption, error) {
	allIDs := make([]uint, len(group.nodes))
	for i, n := range group.nodes {
		allIDs[i] = n.ID
	}

	// Prune the id set selection by selection. Ids that sit on no path
	// through a selection drop out; when everything drops the group
	// reverts to the unpruned set so incompatible options still carry
	// their ids.
	filtered := append([]uint(nil), allIDs...)
	for _, sel := range q.Selections {
		if sel.Level == q.TargetLevel {
			continue
		}
		selIDs := sel.idSet()
		if len(selIDs) == 0 || len(filtered) == 0 {
			continue
		}

		var (
			survivors []uint
			err       error
		)
		if sel.Level < q.TargetLevel {
			survivors, err = e.store.FilterDescendants(ctx, selIDs, filtered)
		} else {
			survivors, err = e.store.FilterAncestors(ctx, selIDs, filtered)
		}
		if err != nil {
			return AvailableOption{}, err
		}
		filtered = intersectOrdered(filtered, survivors)
	}
	if len(filtered) == 0 {
		filtered = allIDs
	}

	groupCompatible := true
	if q.GroupFilter != "" {
		ok, err := e.store.HasGroupMember(ctx, filtered, q.GroupFilter)
		if err != nil {
			return AvailableOption{}, err
		}
		groupCompatible = ok
	}

	// One batched existence query per selection, stopping at the first
	// selection that no id can reach.
	compatible := true
	for _, sel := range q.Selections {
		if sel.Level == q.TargetLevel {
			continue
		}
		selIDs := sel.idSet()
		if len(selIDs) == 0 {
			continue
		}

		var (
			reachable bool
			err       error
		)
		if sel.Level < q.TargetLevel {
			reachable, err = e.store.BatchPathExists(ctx, selIDs, filtered)
		} else {
			reachable, err = e.store.BatchPathExists(ctx, filtered, selIDs)
		}
		if err != nil {
			return AvailableOption{}, err
		}
		if !reachable {
			compatible = false
			break
		}
	}

	opt := e.buildOption(group, filtered)
	opt.IsCompatible = compatible && groupCompatible
	return opt, nil
}

// buildOption assembles the response entry for a pruned group: direct
// fields when a single node survived, unioned metadata otherwise.
func (e *Engine) buildOption(group *codeGroup, filtered []uint) AvailableOption {
	first := group.nodes[0]
	opt := AvailableOption{
		ID:            filtered[0],
		IDs:           filtered,
		Code:          group.code,
		Level:         first.Level,
		Position:      first.Position,
		ParentPattern: first.ParentPattern,
	}

	if len(filtered) == 1 {
		node := first
		for _, n := range group.nodes {
			if n.ID == filtered[0] {
				node = n
				break
			}
		}
		opt.Label = optString(node.Label)
		opt.LabelEN = node.LabelEN
		opt.Name = optString(node.Name)
		opt.GroupName = node.GroupName
		opt.Pictures = e.presentPictures(node.Pictures)
		opt.Links = store.DecodeLinks(node.Links)
		return opt
	}

	keep := make(map[uint]struct{}, len(filtered))
	for _, id := range filtered {
		keep[id] = struct{}{}
	}

	var (
		labels     = map[string]struct{}{}
		labelsEN   = map[string]struct{}{}
		names      = map[string]struct{}{}
		groupNames = map[string]struct{}{}
		pictures   []models.Picture
		links      []models.Link
	)
	for _, n := range group.nodes {
		if _, ok := keep[n.ID]; !ok {
			continue
		}
		if n.Label != "" {
			labels[n.Label] = struct{}{}
		}
		if n.LabelEN != nil && *n.LabelEN != "" {
			labelsEN[*n.LabelEN] = struct{}{}
		}
		if n.Name != "" {
			names[n.Name] = struct{}{}
		}
		if n.GroupName != nil && *n.GroupName != "" {
			groupNames[*n.GroupName] = struct{}{}
		}
		pictures = append(pictures, e.presentPictures(n.Pictures)...)
		links = append(links, store.DecodeLinks(n.Links)...)
	}

	opt.Label = joinSorted(labels, "\n---\n")
	opt.LabelEN = joinSorted(labelsEN, "\n---\n")
	opt.Name = joinSorted(names, ", ")
	opt.GroupName = joinSorted(groupNames, ", ")
	opt.Pictures = dedupePictures(pictures)
	opt.Links = dedupeLinks(links)
	return opt
}

// joinSorted renders a value set as one sorted, separator-joined string,
// or nil for an empty set.
func joinSorted(set map[string]struct{}, sep string) *string {
	if len(set) == 0 {
		return nil
	}
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return ptr(strings.Join(values, sep))
}

// dedupePictures keeps the first picture per url, preserving order.
func dedupePictures(pictures []models.Picture) []models.Picture {
	seen := make(map[string]struct{}, len(pictures))
	out := make([]models.Picture, 0, len(pictures))
	for _, p := range pictures {
		if _, ok := seen[p.URL]; ok {
			continue
		}
		seen[p.URL] = struct{}{}
		out = append(out, p)
	}
	return out
}

// dedupeLinks keeps the first link per url, preserving order.
func dedupeLinks(links []models.Link) []models.Link {
	seen := make(map[string]struct{}, len(links))
	out := make([]models.Link, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out
}

// intersectOrdered keeps the ids of base that appear in hits, in base
// order. The path filters return ids in storage order; candidate order
// decides the representative, so it must survive the pruning.
func intersectOrdered(base, hits []uint) []uint {
	set := make(map[uint]struct{}, len(hits))
	for _, id := range hits {
		set[id] = struct{}{}
	}
	out := make([]uint, 0, len(hits))
	for _, id := range base {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// sortOptions orders by parent pattern (string order, absent first),
// compatible before incompatible, then position and code.
func sortOptions(options []AvailableOption) {
	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]

		pa, pb := patternKey(a.ParentPattern), patternKey(b.ParentPattern)
		if pa != pb {
			return pa < pb
		}
		if a.IsCompatible != b.IsCompatible {
			return a.IsCompatible
		}
		qa, qb := positionKey(a.Position), positionKey(b.Position)
		if qa != qb {
			return qa < qb
		}
		return a.Code < b.Code
	})
}

func patternKey(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func positionKey(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
