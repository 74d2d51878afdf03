package importer

import (
	"regexp"
	"strings"

	"github.com/oxhq/varix/models"
)

// Segment is one parsed line of a structured label. Positions are
// 1-based inclusive offsets of the code segment within the node's code,
// or nil when the segment does not occur in it.
type Segment struct {
	Title         string
	CodeSegment   *string
	Label         string
	PositionStart *int
	PositionEnd   *int
	DisplayOrder  int
}

var (
	titleLine = regexp.MustCompile(`^([^:]+):\s*(.*)$`)
	codeLine  = regexp.MustCompile(`(?i)^([A-Z0-9]+)\s*=\s*(.+)$`)
)

// ParseStructuredLabel splits a label text into segments. Blocks are
// separated by blank lines; a "Title: rest" first line names the block,
// and a block without one inherits the previous block's title. Within a
// block only the first "CODE = text" line binds a code segment, later
// lines keep their full text as the label.
func ParseStructuredLabel(text, fullCode string) []Segment {
	if text == "" {
		return nil
	}

	var segments []Segment
	order := 0
	title := ""

	for _, block := range strings.Split(text, "\n\n") {
		var lines []string
		for _, line := range strings.Split(block, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
		if len(lines) == 0 {
			continue
		}

		codeBound := false
		rest := lines
		if m := titleLine.FindStringSubmatch(lines[0]); m != nil {
			title = strings.TrimSpace(m[1])
			if content := strings.TrimSpace(m[2]); content != "" {
				seg := parseContentLine(content, fullCode, true)
				seg.Title = title
				seg.DisplayOrder = order
				segments = append(segments, seg)
				order++
				codeBound = seg.CodeSegment != nil
			}
			rest = lines[1:]
		}

		for _, line := range rest {
			seg := parseContentLine(line, fullCode, !codeBound)
			seg.Title = title
			seg.DisplayOrder = order
			segments = append(segments, seg)
			order++
			if seg.CodeSegment != nil {
				codeBound = true
			}
		}
	}
	return segments
}

func parseContentLine(line, fullCode string, allowCode bool) Segment {
	m := codeLine.FindStringSubmatch(line)
	if m == nil || !allowCode {
		return Segment{Label: line}
	}

	code := m[1]
	seg := Segment{CodeSegment: &code, Label: strings.TrimSpace(m[2])}
	if fullCode != "" {
		if idx := strings.Index(fullCode, code); idx >= 0 {
			start := idx + 1
			end := start + len(code) - 1
			seg.PositionStart, seg.PositionEnd = &start, &end
		}
	}
	return seg
}

// MergeLabelSegments parses the German and English label texts of one
// node and merges them into node_labels rows. English segments attach to
// the German row with the same code segment and positions; unmatched
// English segments become rows of their own.
func MergeLabelSegments(nodeID uint, fullCode, labelDE string, labelEN *string) []models.NodeLabel {
	var rows []models.NodeLabel

	if labelDE != "" {
		for _, seg := range ParseStructuredLabel(labelDE, fullCode) {
			rows = append(rows, models.NodeLabel{
				NodeID:        nodeID,
				Title:         seg.Title,
				CodeSegment:   seg.CodeSegment,
				PositionStart: seg.PositionStart,
				PositionEnd:   seg.PositionEnd,
				LabelDE:       seg.Label,
				DisplayOrder:  seg.DisplayOrder,
			})
		}
	}

	if labelEN != nil && *labelEN != "" {
		for _, seg := range ParseStructuredLabel(*labelEN, fullCode) {
			label := seg.Label
			if row := matchSegment(rows, seg); row != nil {
				row.LabelEN = &label
				continue
			}
			rows = append(rows, models.NodeLabel{
				NodeID:        nodeID,
				Title:         seg.Title,
				CodeSegment:   seg.CodeSegment,
				PositionStart: seg.PositionStart,
				PositionEnd:   seg.PositionEnd,
				LabelEN:       &label,
				DisplayOrder:  seg.DisplayOrder,
			})
		}
	}
	return rows
}

func matchSegment(rows []models.NodeLabel, seg Segment) *models.NodeLabel {
	for i := range rows {
		if strPtrEqual(rows[i].CodeSegment, seg.CodeSegment) &&
			intPtrEqual(rows[i].PositionStart, seg.PositionStart) &&
			intPtrEqual(rows[i].PositionEnd, seg.PositionEnd) {
			return &rows[i]
		}
	}
	return nil
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ReconstructLabel rebuilds the original text from ordered segments,
// preferring the German label of each row. It is the inverse of
// ParseStructuredLabel for well-formed inputs.
func ReconstructLabel(rows []models.NodeLabel) string {
	if len(rows) == 0 {
		return ""
	}

	var blocks []string
	var lines []string
	currentTitle := ""
	open := false

	flush := func() {
		if len(lines) > 0 {
			blocks = append(blocks, strings.Join(lines, "\n"))
			lines = nil
		}
	}

	for _, row := range rows {
		label := row.LabelDE
		if label == "" && row.LabelEN != nil {
			label = *row.LabelEN
		}
		line := label
		if row.CodeSegment != nil {
			line = *row.CodeSegment + " = " + label
		}

		if !open || row.Title != currentTitle {
			flush()
			currentTitle = row.Title
			open = true
			if currentTitle != "" {
				line = currentTitle + ": " + line
			}
		}
		lines = append(lines, line)
	}
	flush()
	return strings.Join(blocks, "\n\n")
}
