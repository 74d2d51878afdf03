package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
	"github.com/oxhq/varix/store"
	"github.com/oxhq/varix/typecode"
)

// Product type classifications returned by Check and Decode.
const (
	TypeUnknown         = "unknown"
	TypeProductFamily   = "product_family"
	TypeLevelCode       = "level_code"
	TypeCompleteProduct = "complete_product"
	TypePartialCode     = "partial_code"
	TypeWildcardSearch  = "wildcard_search"
)

// CheckResult is the minimal classification of a raw typecode.
type CheckResult struct {
	Exists            bool     `json:"exists"`
	Code              *string  `json:"code"`
	Label             *string  `json:"label"`
	LabelEN           *string  `json:"label_en"`
	Level             *int     `json:"level"`
	Families          []string `json:"families"`
	IsCompleteProduct bool     `json:"is_complete_product"`
	ProductType       string   `json:"product_type"`
}

// PathSegment is one decoded token: the node data behind it plus its
// character span inside the canonical code.
type PathSegment struct {
	Level         int              `json:"level"`
	Code          string           `json:"code"`
	Name          *string          `json:"name"`
	Label         *string          `json:"label"`
	LabelEN       *string          `json:"label_en"`
	PositionStart *int             `json:"position_start"`
	PositionEnd   *int             `json:"position_end"`
	GroupName     *string          `json:"group_name"`
	Pictures      []models.Picture `json:"pictures"`
	Links         []models.Link    `json:"links"`
}

// DecodeResult is the full decoding of a raw typecode into per-token
// segments.
type DecodeResult struct {
	Exists            bool          `json:"exists"`
	OriginalInput     string        `json:"original_input"`
	NormalizedCode    *string       `json:"normalized_code"`
	IsCompleteProduct bool          `json:"is_complete_product"`
	ProductType       string        `json:"product_type"`
	PathSegments      []PathSegment `json:"path_segments"`
	FullTypecode      *string       `json:"full_typecode"`
	Families          []string      `json:"families"`
	GroupName         *string       `json:"group_name"`
}

func unknownCheck() CheckResult {
	return CheckResult{Families: []string{}, ProductType: TypeUnknown}
}

func unknownDecode(raw string) DecodeResult {
	return DecodeResult{
		OriginalInput: raw,
		ProductType:   TypeUnknown,
		PathSegments:  []PathSegment{},
		Families:      []string{},
	}
}

// Check classifies a raw typecode: family, single level code, complete
// product, walkable partial path or wildcard search. A multi-token code
// counts as existing only when every token resolves on one path; "A A12 X"
// never matches just because "X" exists somewhere else.
func (e *Engine) Check(ctx context.Context, raw string) (CheckResult, error) {
	parts := typecode.Split(raw)
	if len(parts) == 0 {
		return unknownCheck(), nil
	}

	if typecode.ContainsWildcard(parts) {
		return e.checkWildcard(ctx, parts)
	}

	if len(parts) == 1 {
		return e.checkSingle(ctx, parts[0])
	}

	full := typecode.Reconstruct(parts)
	if full == "" {
		return unknownCheck(), nil
	}

	// A stored full typecode wins over the path walk.
	node, err := e.store.NodeByFullTypecode(ctx, full)
	if err == nil {
		families, err := e.store.FamiliesOfFullTypecode(ctx, full)
		if err != nil {
			return unknownCheck(), err
		}
		code := node.CodeString()
		if node.FullTypecode != nil {
			code = *node.FullTypecode
		}
		return CheckResult{
			Exists:            true,
			Code:              &code,
			Label:             optString(node.Label),
			LabelEN:           node.LabelEN,
			Level:             &node.Level,
			Families:          families,
			IsCompleteProduct: true,
			ProductType:       TypeCompleteProduct,
		}, nil
	}
	if !fault.IsKind(err, fault.NotFound) {
		return unknownCheck(), err
	}

	// Walk the path level by level from the family root.
	family, err := e.store.FamilyByCode(ctx, parts[0])
	if fault.IsKind(err, fault.NotFound) {
		return unknownCheck(), nil
	}
	if err != nil {
		return unknownCheck(), err
	}

	current := family
	for i, part := range parts[1:] {
		next, err := e.store.DescendantWithCodeAtLevel(ctx, current.ID, part, i+1)
		if fault.IsKind(err, fault.NotFound) {
			return unknownCheck(), nil
		}
		if err != nil {
			return unknownCheck(), err
		}
		current = next
	}

	families := []string{}
	if fam, err := e.store.FamilyOf(ctx, current.ID); err == nil {
		families = []string{fam.CodeString()}
	} else if !fault.IsKind(err, fault.NotFound) {
		return unknownCheck(), err
	}

	complete := current.FullTypecode != nil
	productType := TypePartialCode
	if complete {
		productType = TypeCompleteProduct
	}
	return CheckResult{
		Exists:            true,
		Code:              &full,
		Label:             ptr(current.Label),
		LabelEN:           current.LabelEN,
		Level:             &current.Level,
		Families:          families,
		IsCompleteProduct: complete,
		ProductType:       productType,
	}, nil
}

// checkSingle resolves a lone token: a family match first, then the
// shallowest node anywhere carrying the code. Tie-break is lowest level
// then lowest id.
func (e *Engine) checkSingle(ctx context.Context, code string) (CheckResult, error) {
	family, err := e.store.FamilyByCode(ctx, code)
	if err == nil {
		famCode := family.CodeString()
		return CheckResult{
			Exists:      true,
			Code:        &famCode,
			Label:       optString(family.Label),
			LabelEN:     family.LabelEN,
			Level:       &family.Level,
			Families:    []string{famCode},
			ProductType: TypeProductFamily,
		}, nil
	}
	if !fault.IsKind(err, fault.NotFound) {
		return unknownCheck(), err
	}

	nodes, err := e.store.NodesByCode(ctx, code)
	if err != nil {
		return unknownCheck(), err
	}
	if len(nodes) == 0 {
		return unknownCheck(), nil
	}

	node := nodes[0]
	families, err := e.store.FamiliesOfCode(ctx, code)
	if err != nil {
		return unknownCheck(), err
	}

	productType := TypeLevelCode
	if node.Level == 0 {
		productType = TypeProductFamily
	}
	nodeCode := node.CodeString()
	return CheckResult{
		Exists:      true,
		Code:        &nodeCode,
		Label:       optString(node.Label),
		LabelEN:     node.LabelEN,
		Level:       &node.Level,
		Families:    families,
		ProductType: productType,
	}, nil
}

// checkWildcard validates a wildcard pattern: the family token must be
// literal, and every literal token after it must show up on one node's
// ancestor chain at its slot level or deeper (wildcards may stretch the
// path, never shrink it).
func (e *Engine) checkWildcard(ctx context.Context, parts []string) (CheckResult, error) {
	if parts[0] == typecode.Wildcard {
		return unknownCheck(), nil
	}

	family, err := e.store.FamilyByCode(ctx, parts[0])
	if fault.IsKind(err, fault.NotFound) {
		return unknownCheck(), nil
	}
	if err != nil {
		return unknownCheck(), err
	}
	famCode := family.CodeString()

	type requiredCode struct {
		level int
		code  string
	}
	var required []requiredCode
	for i, part := range parts[1:] {
		if part != typecode.Wildcard {
			required = append(required, requiredCode{level: i + 1, code: part})
		}
	}

	if len(required) == 0 {
		return CheckResult{
			Exists:      true,
			Code:        ptr(wildcardCode(parts)),
			Label:       ptr("Familie gefunden"),
			LabelEN:     ptr("Family found"),
			Level:       ptr(0),
			Families:    []string{famCode},
			ProductType: TypeWildcardSearch,
		}, nil
	}

	// Seed candidates from the last literal token and validate each
	// candidate's ancestor chain against all of them.
	last := required[len(required)-1]
	candidates, err := e.store.FamilyNodesWithCodeAtOrAbove(ctx, family.ID, last.code, last.level)
	if err != nil {
		return unknownCheck(), err
	}
	if len(candidates) == 0 {
		return unknownCheck(), nil
	}

	var valid []models.Node
	for _, candidate := range candidates {
		steps, err := e.store.CodedAncestorSteps(ctx, candidate.ID)
		if err != nil {
			return unknownCheck(), err
		}
		matchesAll := true
		for _, req := range required {
			found := false
			for _, step := range steps {
				if step.Level >= req.level && step.Code == req.code {
					found = true
					break
				}
			}
			if !found {
				matchesAll = false
				break
			}
		}
		if matchesAll {
			valid = append(valid, candidate)
		}
	}
	if len(valid) == 0 {
		return unknownCheck(), nil
	}

	first := valid[0]
	return CheckResult{
		Exists:            true,
		Code:              ptr(wildcardCode(parts)),
		Label:             ptr(fmt.Sprintf("%d Treffer gefunden", len(valid))),
		LabelEN:           ptr(fmt.Sprintf("%d matches found", len(valid))),
		Level:             &first.Level,
		Families:          []string{famCode},
		IsCompleteProduct: first.FullTypecode != nil,
		ProductType:       TypeWildcardSearch,
	}, nil
}

// Decode resolves a raw typecode into per-token segments with labels,
// media and character spans.
func (e *Engine) Decode(ctx context.Context, raw string) (DecodeResult, error) {
	parts := typecode.Split(raw)
	if len(parts) == 0 {
		return unknownDecode(raw), nil
	}

	if typecode.ContainsWildcard(parts) && len(parts) > 1 {
		return e.decodeWildcard(ctx, parts, raw)
	}

	if len(parts) == 1 {
		return e.decodeSingle(ctx, parts[0], raw)
	}

	return e.decodePath(ctx, parts, raw)
}

// decodeSingle decodes a lone token as one segment. Several nodes may
// share the code; their labels and media are unioned like resolver
// groups.
func (e *Engine) decodeSingle(ctx context.Context, code, raw string) (DecodeResult, error) {
	nodes, err := e.store.NodesByCode(ctx, code)
	if err != nil {
		return unknownDecode(raw), err
	}
	if len(nodes) == 0 {
		return unknownDecode(raw), nil
	}

	first := nodes[0]
	families, err := e.store.FamiliesOfCode(ctx, code)
	if err != nil {
		return unknownDecode(raw), err
	}

	segment := PathSegment{
		Level:         first.Level,
		Code:          first.CodeString(),
		PositionStart: ptr(1),
		PositionEnd:   ptr(len(first.CodeString())),
		Pictures:      []models.Picture{},
		Links:         []models.Link{},
	}

	if len(nodes) == 1 {
		segment.Label = optString(first.Label)
		segment.LabelEN = first.LabelEN
		segment.Name = optString(first.Name)
		segment.Pictures = e.presentPictures(first.Pictures)
		segment.Links = store.DecodeLinks(first.Links)
	} else {
		var (
			labels   = map[string]struct{}{}
			labelsEN = map[string]struct{}{}
			names    = map[string]struct{}{}
			pictures []models.Picture
			links    []models.Link
		)
		for _, n := range nodes {
			if n.Label != "" {
				labels[n.Label] = struct{}{}
			}
			if n.LabelEN != nil && *n.LabelEN != "" {
				labelsEN[*n.LabelEN] = struct{}{}
			}
			if n.Name != "" {
				names[n.Name] = struct{}{}
			}
			pictures = append(pictures, e.presentPictures(n.Pictures)...)
			links = append(links, store.DecodeLinks(n.Links)...)
		}
		segment.Label = joinSorted(labels, "\n---\n")
		segment.LabelEN = joinSorted(labelsEN, "\n---\n")
		segment.Name = joinSorted(names, ", ")
		segment.Pictures = dedupePictures(pictures)
		segment.Links = dedupeLinks(links)
	}

	productType := TypeLevelCode
	if first.Level == 0 {
		productType = TypeProductFamily
	}
	return DecodeResult{
		Exists:         true,
		OriginalInput:  raw,
		NormalizedCode: ptr(first.CodeString()),
		ProductType:    productType,
		PathSegments:   []PathSegment{segment},
		FullTypecode:   first.FullTypecode,
		Families:       families,
		GroupName:      first.GroupName,
	}, nil
}

// decodePath walks a literal multi-token code from the family root and
// emits one segment per token.
func (e *Engine) decodePath(ctx context.Context, parts []string, raw string) (DecodeResult, error) {
	full := typecode.Reconstruct(parts)
	if full == "" {
		return unknownDecode(raw), nil
	}

	family, err := e.store.FamilyByCode(ctx, parts[0])
	if fault.IsKind(err, fault.NotFound) {
		return unknownDecode(raw), nil
	}
	if err != nil {
		return unknownDecode(raw), err
	}

	positions := typecode.Positions(parts)
	segments := []PathSegment{{
		Level:         family.Level,
		Code:          family.CodeString(),
		Name:          optString(family.Name),
		Label:         optString(family.Label),
		LabelEN:       family.LabelEN,
		PositionStart: &positions[0].Start,
		PositionEnd:   &positions[0].End,
		Pictures:      e.presentPictures(family.Pictures),
		Links:         store.DecodeLinks(family.Links),
	}}

	// The first grouped node on the path names the product group.
	groupName := family.GroupName
	if groupName != nil && *groupName == "" {
		groupName = nil
	}

	current := family
	for i := 1; i < len(parts); i++ {
		next, err := e.store.DescendantWithCodeAtLevel(ctx, current.ID, parts[i], i)
		if fault.IsKind(err, fault.NotFound) {
			broken := unknownDecode(raw)
			broken.NormalizedCode = &full
			return broken, nil
		}
		if err != nil {
			return unknownDecode(raw), err
		}

		if groupName == nil && next.GroupName != nil && *next.GroupName != "" {
			groupName = next.GroupName
		}

		segments = append(segments, PathSegment{
			Level:         next.Level,
			Code:          next.CodeString(),
			Name:          optString(next.Name),
			Label:         optString(next.Label),
			LabelEN:       next.LabelEN,
			PositionStart: &positions[i].Start,
			PositionEnd:   &positions[i].End,
			Pictures:      e.presentPictures(next.Pictures),
			Links:         store.DecodeLinks(next.Links),
		})
		current = next
	}

	complete := current.FullTypecode != nil
	productType := TypePartialCode
	if complete {
		productType = TypeCompleteProduct
	}
	return DecodeResult{
		Exists:            true,
		OriginalInput:     raw,
		NormalizedCode:    &full,
		IsCompleteProduct: complete,
		ProductType:       productType,
		PathSegments:      segments,
		FullTypecode:      current.FullTypecode,
		Families:          []string{family.CodeString()},
		GroupName:         groupName,
	}, nil
}

// decodeWildcard expands wildcard tokens against a frontier of node ids.
// A literal token narrows the frontier to the matching descendants; a
// wildcard widens it to every coded descendant at that level and emits a
// synthetic segment summarising the codes it saw.
func (e *Engine) decodeWildcard(ctx context.Context, parts []string, raw string) (DecodeResult, error) {
	if parts[0] == typecode.Wildcard {
		return unknownDecode(raw), nil
	}

	family, err := e.store.FamilyByCode(ctx, parts[0])
	if fault.IsKind(err, fault.NotFound) {
		return unknownDecode(raw), nil
	}
	if err != nil {
		return unknownDecode(raw), err
	}
	famCode := family.CodeString()

	segments := []PathSegment{{
		Level:     0,
		Code:      famCode,
		Label:     optString(family.Label),
		LabelEN:   family.LabelEN,
		GroupName: family.GroupName,
		Pictures:  e.presentPictures(family.Pictures),
		Links:     store.DecodeLinks(family.Links),
	}}

	frontier := []uint{family.ID}
	for i := 1; i < len(parts); i++ {
		if len(frontier) == 0 {
			break
		}

		var segment PathSegment
		var nodes []models.Node
		if parts[i] == typecode.Wildcard {
			nodes, err = e.store.CodedDescendantsAtLevel(ctx, frontier, i)
			if err != nil {
				return unknownDecode(raw), err
			}
			if len(nodes) == 0 {
				break
			}
			segment = wildcardSegment(i, nodes)
		} else {
			nodes, err = e.store.DescendantsWithCodeAtLevel(ctx, frontier, parts[i], i)
			if err != nil {
				return unknownDecode(raw), err
			}
			if len(nodes) == 0 {
				break
			}
			segment = e.literalSegment(i, parts[i], nodes)
		}

		segments = append(segments, segment)
		frontier = frontier[:0]
		for _, n := range nodes {
			frontier = append(frontier, n.ID)
		}
	}

	return DecodeResult{
		Exists:         len(segments) > 1,
		OriginalInput:  raw,
		NormalizedCode: ptr(wildcardCode(parts)),
		ProductType:    TypeWildcardSearch,
		PathSegments:   segments,
		Families:       []string{famCode},
		GroupName:      family.GroupName,
	}, nil
}

// wildcardSegment summarises the codes a wildcard token matched: up to
// ten codes, a "+N weitere" suffix beyond that, and the first five
// distinct labels per language.
func wildcardSegment(level int, nodes []models.Node) PathSegment {
	codeSet := map[string]struct{}{}
	labelsDE := map[string]struct{}{}
	labelsEN := map[string]struct{}{}
	for _, n := range nodes {
		codeSet[n.CodeString()] = struct{}{}
		if n.Label != "" {
			labelsDE[n.Label] = struct{}{}
		}
		if n.LabelEN != nil && *n.LabelEN != "" {
			labelsEN[*n.LabelEN] = struct{}{}
		}
	}

	codes := make([]string, 0, len(codeSet))
	for c := range codeSet {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	codeList := strings.Join(codes[:min(len(codes), 10)], ", ")
	if len(codes) > 10 {
		codeList += fmt.Sprintf(" ... (+%d weitere)", len(codes)-10)
	}

	return PathSegment{
		Level:    level,
		Code:     typecode.Wildcard,
		Label:    ptr(wildcardLabel(codeList, labelsDE, "Mögliche Labels:")),
		LabelEN:  ptr(wildcardLabel(codeList, labelsEN, "Possible Labels:")),
		Pictures: []models.Picture{},
		Links:    []models.Link{},
	}
}

func wildcardLabel(codeList string, labels map[string]struct{}, heading string) string {
	base := "Wildcard Match: " + codeList
	if len(labels) == 0 {
		return base
	}
	sorted := make([]string, 0, len(labels))
	for l := range labels {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)
	return base + "\n\n" + heading + "\n" + strings.Join(sorted[:min(len(sorted), 5)], "\n")
}

// literalSegment merges the nodes a literal token matched across several
// open paths into one segment.
func (e *Engine) literalSegment(level int, code string, nodes []models.Node) PathSegment {
	var (
		labelsDE = map[string]struct{}{}
		labelsEN = map[string]struct{}{}
		pictures []models.Picture
		links    []models.Link
	)
	for _, n := range nodes {
		if n.Label != "" {
			labelsDE[n.Label] = struct{}{}
		}
		if n.LabelEN != nil && *n.LabelEN != "" {
			labelsEN[*n.LabelEN] = struct{}{}
		}
		pictures = append(pictures, e.presentPictures(n.Pictures)...)
		links = append(links, store.DecodeLinks(n.Links)...)
	}

	return PathSegment{
		Level:     level,
		Code:      code,
		Label:     joinSorted(labelsDE, "\n"),
		LabelEN:   joinSorted(labelsEN, "\n"),
		GroupName: nodes[0].GroupName,
		Pictures:  dedupePictures(pictures),
		Links:     dedupeLinks(links),
	}
}

// wildcardCode renders wildcard-containing tokens back into canonical
// form; wildcards keep their place.
func wildcardCode(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	code := parts[0] + " " + parts[1]
	if len(parts) > 2 {
		code += "-" + strings.Join(parts[2:], "-")
	}
	return code
}
