package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/oxhq/varix/models"
)

// CodeContentFilter matches codes that contain a value. With a position
// the code must carry the value starting at that 1-based offset, without
// one a plain substring search applies.
type CodeContentFilter struct {
	Position *int   `json:"position"`
	Value    string `json:"value"`
}

// AllowedPattern restricts a slice of the code to a character class. From
// is a 0-based index, To an exclusive bound running to the end when nil.
type AllowedPattern struct {
	From    int    `json:"from"`
	To      *int   `json:"to"`
	Allowed string `json:"allowed"`
}

// PatternSpec describes the shape of a parent code: a length, exact ("3")
// or range ("2-4"), and an optional character class. Clients may still
// send a bare number, which decodes as an exact length.
type PatternSpec struct {
	Length string `json:"length"`
	Type   string `json:"type"`
}

func (p *PatternSpec) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			Length any    `json:"length"`
			Type   string `json:"type"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		p.Length = lengthString(obj.Length)
		p.Type = obj.Type
		return nil
	}
	var bare any
	if err := json.Unmarshal(trimmed, &bare); err != nil {
		return err
	}
	p.Length = lengthString(bare)
	p.Type = ""
	return nil
}

func lengthString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.Itoa(int(t))
	}
	return ""
}

// BulkFilter classifies every code of a family level against a set of
// criteria. Mismatching codes stay in the result flagged incompatible so
// clients can still render them.
type BulkFilter struct {
	Level               int                 `json:"level"`
	FamilyCode          string              `json:"family_code"`
	Code                string              `json:"code,omitempty"`
	CodePrefix          string              `json:"code_prefix,omitempty"`
	CodeContent         *CodeContentFilter  `json:"code_content,omitempty"`
	GroupName           string              `json:"group_name,omitempty"`
	Name                string              `json:"name,omitempty"`
	Pattern             string              `json:"pattern,omitempty"`
	ParentLevelPatterns map[int]PatternSpec `json:"parent_level_patterns,omitempty"`
	ParentLevelOptions  map[int][]string    `json:"parent_level_options,omitempty"`
	AllowedPattern      *AllowedPattern     `json:"allowed_pattern,omitempty"`
}

// BulkFilterResult carries the classified code groups of the level.
type BulkFilterResult struct {
	Nodes []AvailableOption `json:"nodes"`
	Count int               `json:"count"`
}

// BulkFilterNodes loads every code group of the family level and checks
// each against the filter. Group name and name search narrow the result
// set itself; everything else only degrades is_compatible.
func (e *Engine) BulkFilterNodes(ctx context.Context, req BulkFilter) (*BulkFilterResult, error) {
	rows, err := e.store.BulkFilterCandidates(ctx, req.Level, req.FamilyCode, req.GroupName, req.Name)
	if err != nil {
		return nil, err
	}

	nodes := make([]AvailableOption, 0, len(rows))
	for _, row := range rows {
		compatible := true
		if req.Code != "" && row.Code != req.Code {
			compatible = false
		}
		if req.CodePrefix != "" && !strings.HasPrefix(row.Code, req.CodePrefix) {
			compatible = false
		}
		if req.Pattern != "" && !patternMatches(len(row.Code), req.Pattern) {
			compatible = false
		}
		if req.CodeContent != nil && !codeContentOK(row.Code, *req.CodeContent) {
			compatible = false
		}
		if req.AllowedPattern != nil && !allowedPatternOK(row.Code, *req.AllowedPattern) {
			compatible = false
		}

		// Every node sharing the code, for multi path checks and bulk
		// updates alike.
		siblings, err := e.store.NodesByCodeLevel(ctx, row.Code, req.Level, req.FamilyCode)
		if err != nil {
			return nil, err
		}
		allIDs := make([]uint, 0, len(siblings))
		for _, sib := range siblings {
			allIDs = append(allIDs, sib.ID)
		}

		if len(req.ParentLevelPatterns) > 0 || len(req.ParentLevelOptions) > 0 {
			ok, err := e.anyParentChainOK(ctx, allIDs, req.ParentLevelPatterns, req.ParentLevelOptions)
			if err != nil {
				return nil, err
			}
			if !ok {
				compatible = false
			}
		}

		nodes = append(nodes, AvailableOption{
			ID:            row.ID,
			IDs:           allIDs,
			Code:          row.Code,
			Label:         optString(row.Label),
			LabelEN:       row.LabelEN,
			Name:          optString(row.Name),
			GroupName:     row.GroupName,
			Level:         row.Level,
			Position:      row.Position,
			IsCompatible:  compatible,
			ParentPattern: row.ParentPattern,
			Pictures:      []models.Picture{},
			Links:         []models.Link{},
		})
	}

	return &BulkFilterResult{Nodes: nodes, Count: len(nodes)}, nil
}

// anyParentChainOK reports whether at least one of the nodes has an
// ancestor chain satisfying every parent level condition. Codes repeat
// across subtrees, so a single conforming path is enough.
func (e *Engine) anyParentChainOK(ctx context.Context, ids []uint, patterns map[int]PatternSpec, options map[int][]string) (bool, error) {
	for _, id := range ids {
		chain, err := e.store.AncestorCodesByLevel(ctx, id)
		if err != nil {
			return false, err
		}
		if parentChainOK(chain, patterns, options) {
			return true, nil
		}
	}
	return false, nil
}

func parentChainOK(chain map[int]string, patterns map[int]PatternSpec, options map[int][]string) bool {
	for level, spec := range patterns {
		code, ok := chain[level]
		if !ok {
			return false
		}
		if spec.Length != "" && !patternMatches(len(code), spec.Length) {
			return false
		}
		if spec.Type != "" && !charClassOK(code, spec.Type) {
			return false
		}
	}
	for level, allowed := range options {
		code, ok := chain[level]
		if !ok {
			return false
		}
		if !matchesAnyOption(code, allowed) {
			return false
		}
	}
	return true
}

func codeContentOK(code string, filter CodeContentFilter) bool {
	if filter.Position == nil {
		return strings.Contains(code, filter.Value)
	}
	index := *filter.Position - 1
	if index < 0 || index >= len(code) {
		return false
	}
	return strings.HasPrefix(code[index:], filter.Value)
}

// allowedPatternOK checks the configured slice of the code against its
// character class. Separators and special characters never disqualify a
// code, only the presence of the wrong class does.
func allowedPatternOK(code string, cfg AllowedPattern) bool {
	if code == "" {
		return true
	}
	part := slicePart(code, cfg.From, cfg.To)
	if part == "" {
		return false
	}
	hasAlpha, hasDigit := scanAlphaDigit(part)
	switch cfg.Allowed {
	case "alphabetic":
		return hasAlpha && !hasDigit
	case "numeric":
		return hasDigit && !hasAlpha
	case "alphanumeric", "":
		return hasAlpha || hasDigit
	}
	return true
}

// charClassOK classifies a whole code. Unlike allowedPatternOK an unknown
// class rejects, matching how parent pattern types behave.
func charClassOK(code, class string) bool {
	hasAlpha, hasDigit := scanAlphaDigit(code)
	switch class {
	case "alphabetic":
		return hasAlpha && !hasDigit
	case "numeric":
		return hasDigit && !hasAlpha
	case "alphanumeric":
		return hasAlpha || hasDigit
	}
	return false
}

func matchesAnyOption(code string, options []string) bool {
	for _, option := range options {
		if strings.Contains(option, "*") {
			if strings.HasPrefix(code, strings.ReplaceAll(option, "*", "")) {
				return true
			}
			continue
		}
		if code == option {
			return true
		}
	}
	return false
}

func scanAlphaDigit(s string) (hasAlpha, hasDigit bool) {
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasAlpha = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	return hasAlpha, hasDigit
}

func slicePart(code string, from int, to *int) string {
	if from < 0 {
		from = 0
	}
	if from > len(code) {
		from = len(code)
	}
	end := len(code)
	if to != nil {
		end = *to
		if end > len(code) {
			end = len(code)
		}
		if end < from {
			end = from
		}
	}
	return code[from:end]
}
