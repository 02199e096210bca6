package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

var (
	subjectPattern   = regexp.MustCompile(`<https?://[^>\s]*>`)
	predicatePattern = regexp.MustCompile(`(?s)^(?:<[^>]*>\s+)?(?:[A-Za-z_][\w.-]*)?:([A-Za-z_][\w-]*)\s+(.*?)\s*\.?\s*$`)
)

// registerFields collects the predicates of one record block. Absent or
// unparseable numeric fields stay nil.
type registerFields struct {
	value    *uint64
	register *uint64
	accessed *uint64
	function string
	dataType string
	funcCode string
}

// ParseRegister converts an N-Triples/Turtle style blob into register points in
// document order. Blocks missing value, register or accessed are skipped.
func ParseRegister(blob string) []model.Point {
	body := stripDirectives(blob)
	if strings.TrimSpace(body) == "" {
		return nil
	}

	var points []model.Point
	for i, block := range splitRecordBlocks(body) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		fields := parseRegisterBlock(block)
		if fields.value == nil || fields.register == nil || fields.accessed == nil {
			util.LogWarn("Skip register record with missing fields",
				util.F("block", i),
				util.F("has_value", fields.value != nil),
				util.F("has_register", fields.register != nil),
				util.F("has_accessed", fields.accessed != nil))
			continue
		}

		function := fields.function
		if function == "" {
			function = constants.DefaultRegisterFunction
		}
		points = append(points, model.NewRegisterPoint(
			float64(*fields.value),
			int(*fields.register),
			function,
			int64(*fields.accessed),
		))
	}
	return points
}

// stripDirectives drops @prefix/@base and SPARQL-style PREFIX/BASE lines.
func stripDirectives(blob string) string {
	lines := strings.Split(blob, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "@prefix") || strings.HasPrefix(lower, "@base") ||
			strings.HasPrefix(lower, "prefix ") || strings.HasPrefix(lower, "base ") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// splitRecordBlocks cuts the body before every subject IRI. An IRI is a subject
// when it opens a line or follows a statement terminator, so a block missing
// its closing "." does not swallow the next one. IRIs in object position stay
// inside their block.
func splitRecordBlocks(body string) []string {
	var cuts []int
	for _, loc := range subjectPattern.FindAllStringIndex(body, -1) {
		line := strings.TrimRight(body[:loc[0]], " \t")
		prev := strings.TrimRight(line, "\r\n")
		if prev == "" || strings.HasSuffix(prev, ".") || strings.HasSuffix(line, "\n") {
			cuts = append(cuts, loc[0])
		}
	}
	if len(cuts) == 0 {
		return []string{body}
	}

	blocks := make([]string, 0, len(cuts)+1)
	if head := body[:cuts[0]]; strings.TrimSpace(head) != "" {
		blocks = append(blocks, head)
	}
	for i, start := range cuts {
		end := len(body)
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		blocks = append(blocks, body[start:end])
	}
	return blocks
}

func parseRegisterBlock(block string) registerFields {
	var fields registerFields
	for _, assignment := range splitOutsideQuotes(block, ';') {
		m := predicatePattern.FindStringSubmatch(strings.TrimSpace(assignment))
		if m == nil {
			continue
		}
		predicate, object := m[1], m[2]

		// First occurrence of a predicate wins.
		switch predicate {
		case "value":
			if fields.value == nil {
				fields.value = parseUnsigned(object)
			}
		case "register":
			if fields.register == nil {
				fields.register = parseUnsigned(object)
			}
		case "accessed":
			if fields.accessed == nil {
				fields.accessed = parseUnsigned(object)
			}
		case "function":
			if fields.function == "" {
				fields.function = literalText(object)
			}
		case "type":
			if fields.dataType == "" {
				fields.dataType = literalText(object)
			}
		case "func_code":
			if fields.funcCode == "" {
				fields.funcCode = literalText(object)
			}
		}
	}
	if fields.dataType == "" {
		fields.dataType = constants.DefaultRegisterType
	}
	return fields
}

// splitOutsideQuotes splits s on sep, ignoring separators inside "..." literals.
func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	inQuotes := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inQuotes {
				i++
			}
		case '"':
			inQuotes = !inQuotes
		case sep:
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// literalText returns the lexical form of a literal, dropping quotes,
// datatype and language tags.
func literalText(object string) string {
	object = strings.TrimSpace(object)
	if strings.HasPrefix(object, `"`) {
		if end := strings.Index(object[1:], `"`); end >= 0 {
			return object[1 : end+1]
		}
		return strings.Trim(object, `"`)
	}
	if idx := strings.Index(object, "^^"); idx >= 0 {
		object = object[:idx]
	}
	if fields := strings.Fields(object); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func parseUnsigned(object string) *uint64 {
	text := literalText(object)
	if text == "" {
		return nil
	}
	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
