package extractor

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// stringLiteralValue decodes a Python string literal as written in source.
// Bytes and f-strings are rejected because they never count as docstrings.
func stringLiteralValue(lit string) (string, bool) {
	i := 0
	raw := false
prefix:
	for ; i < len(lit); i++ {
		switch lit[i] {
		case 'r', 'R':
			raw = true
		case 'u', 'U':
		case 'b', 'B', 'f', 'F', 't', 'T':
			return "", false
		default:
			break prefix
		}
	}
	body := lit[i:]
	var q string
	switch {
	case strings.HasPrefix(body, `"""`), strings.HasPrefix(body, `'''`):
		q = body[:3]
	case strings.HasPrefix(body, `"`), strings.HasPrefix(body, `'`):
		q = body[:1]
	default:
		return "", false
	}
	if len(body) < 2*len(q) || !strings.HasSuffix(body, q) {
		return "", false
	}
	body = body[len(q) : len(body)-len(q)]
	if raw {
		return body, true
	}
	return unescape(body), true
}

// unescape applies Python's escape sequences. Unknown escapes and \N{NAME}
// are kept verbatim.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch n := s[i]; n {
		case '\n':
		case '\\', '\'', '"':
			sb.WriteByte(n)
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i + 1
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(s[i:j], 8, 32)
			sb.WriteRune(rune(v))
			i = j - 1
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[n]
			if i+1+width <= len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32); err == nil && utf8.ValidRune(rune(v)) {
					sb.WriteRune(rune(v))
					i += width
					continue
				}
			}
			sb.WriteByte('\\')
			sb.WriteByte(n)
		default:
			sb.WriteByte('\\')
			sb.WriteByte(n)
		}
	}
	return sb.String()
}

// cleanDoc normalizes docstring indentation: tabs are expanded, the first line
// is left-stripped, the common margin of the remaining lines is removed, and
// leading and trailing blank lines are dropped.
func cleanDoc(doc string) string {
	lines := strings.Split(expandTabs(doc, 8), "\n")

	margin := math.MaxInt
	for _, line := range lines[1:] {
		content := strings.TrimLeft(line, " ")
		if content == "" {
			continue
		}
		if indent := len(line) - len(content); indent < margin {
			margin = indent
		}
	}

	lines[0] = strings.TrimLeft(lines[0], " ")
	if margin < math.MaxInt {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) > margin {
				lines[i] = lines[i][margin:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}

	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

func expandTabs(s string, size int) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var sb strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := size - col%size
			sb.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n', '\r':
			sb.WriteRune(r)
			col = 0
		default:
			sb.WriteRune(r)
			col++
		}
	}
	return sb.String()
}
