package rolling

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultDateLayout is used for a bare %d token.
const DefaultDateLayout = "2006-01-02"

// Pattern is a parsed archive file-name pattern. Two tokens are recognised:
//
//	%d{layout}  the period start formatted with a Go time layout
//	%d          same, with DefaultDateLayout
//	%i          collision index, starting at 0
type Pattern struct {
	raw   string
	parts []part
}

type partKind int

const (
	literal partKind = iota
	dateToken
	indexToken
)

type part struct {
	kind partKind
	text string // literal text or date layout
}

// ParsePattern parses a file-name pattern.
func ParsePattern(raw string) (*Pattern, error) {
	p := &Pattern{raw: raw}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			p.parts = append(p.parts, part{kind: literal, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		if raw[i] != '%' || i+1 == len(raw) {
			lit.WriteByte(raw[i])
			continue
		}
		switch raw[i+1] {
		case 'd':
			flush()
			layout := DefaultDateLayout
			i++
			if i+1 < len(raw) && raw[i+1] == '{' {
				end := strings.IndexByte(raw[i+1:], '}')
				if end < 0 {
					return nil, fmt.Errorf("rolling: unterminated %%d{ in pattern %q", raw)
				}
				layout = raw[i+2 : i+1+end]
				if layout == "" {
					return nil, fmt.Errorf("rolling: empty date layout in pattern %q", raw)
				}
				i += end + 1
			}
			p.parts = append(p.parts, part{kind: dateToken, text: layout})
		case 'i':
			flush()
			i++
			p.parts = append(p.parts, part{kind: indexToken})
		case '%':
			i++
			lit.WriteByte('%')
		default:
			lit.WriteByte(raw[i])
		}
	}
	flush()
	return p, nil
}

// String returns the pattern as it was configured.
func (p *Pattern) String() string { return p.raw }

// HasIndex reports whether the pattern carries %i.
func (p *Pattern) HasIndex() bool {
	for _, pt := range p.parts {
		if pt.kind == indexToken {
			return true
		}
	}
	return false
}

// Format expands the pattern for a period start and collision index.
func (p *Pattern) Format(t time.Time, index int) string {
	var b strings.Builder
	for _, pt := range p.parts {
		switch pt.kind {
		case literal:
			b.WriteString(pt.text)
		case dateToken:
			b.WriteString(t.Format(pt.text))
		case indexToken:
			b.WriteString(strconv.Itoa(index))
		}
	}
	return b.String()
}

// Glob returns a filepath.Match pattern matching every expansion.
func (p *Pattern) Glob() string {
	var b strings.Builder
	for _, pt := range p.parts {
		if pt.kind == literal {
			b.WriteString(globEscape(pt.text))
			continue
		}
		b.WriteByte('*')
	}
	return b.String()
}

func globEscape(s string) string {
	if filepath.Separator == '\\' {
		return s
	}
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
