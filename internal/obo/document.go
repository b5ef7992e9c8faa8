package obo

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Document is a parsed OBO file: header clauses followed by frames.
type Document struct {
	Header []Clause
	Frames []*Frame
}

// Frame returns the frame with the given id, or nil.
func (d *Document) Frame(id string) *Frame {
	for _, f := range d.Frames {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// Put replaces the frame with the same id or appends it when absent.
func (d *Document) Put(frame *Frame) {
	for i, f := range d.Frames {
		if f.ID == frame.ID && f.Type == frame.Type {
			d.Frames[i] = frame
			return
		}
	}
	d.Frames = append(d.Frames, frame)
}

// HeaderValue returns the value of the first header clause with the given tag.
func (d *Document) HeaderValue(tag Tag) string {
	for _, c := range d.Header {
		if c.Tag == tag {
			return c.Value
		}
	}
	return ""
}

// Read parses an OBO document.
func Read(r io.Reader) (*Document, error) {
	doc := &Document{}
	var current *Frame

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if current != nil {
				if err := finishFrame(doc, current, lineNo); err != nil {
					return nil, err
				}
			}
			current = &Frame{Type: strings.TrimSpace(line[1 : len(line)-1])}
			continue
		}

		clause, err := parseClause(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if current == nil {
			doc.Header = append(doc.Header, clause)
			continue
		}
		if clause.Tag == TagID {
			current.ID = clause.Value
			continue
		}
		current.Add(clause)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read obo document: %w", err)
	}
	if current != nil {
		if err := finishFrame(doc, current, lineNo); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func finishFrame(doc *Document, frame *Frame, lineNo int) error {
	if frame.ID == "" {
		return fmt.Errorf("line %d: [%s] frame without id", lineNo, frame.Type)
	}
	doc.Frames = append(doc.Frames, frame)
	return nil
}

func parseClause(line string) (Clause, error) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return Clause{}, fmt.Errorf("malformed clause %q", line)
	}
	tag := Tag(strings.TrimSpace(line[:idx]))
	value := strings.TrimSpace(line[idx+1:])

	switch {
	case tag == TagDef:
		text, rest, err := unquote(value)
		if err != nil {
			return Clause{}, fmt.Errorf("def: %w", err)
		}
		return Clause{Tag: tag, Value: text, Xrefs: parseXrefs(rest)}, nil
	case tag == TagSynonym:
		text, rest, err := unquote(value)
		if err != nil {
			return Clause{}, fmt.Errorf("synonym: %w", err)
		}
		qualifier := rest
		var xrefs []string
		if i := strings.Index(rest, "["); i >= 0 {
			qualifier = strings.TrimSpace(rest[:i])
			xrefs = parseXrefs(rest[i:])
		}
		return Clause{Tag: tag, Value: text, Qualifier: qualifier, Xrefs: xrefs}, nil
	case referenceTags[tag]:
		if i := strings.Index(value, " !"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}
		return Clause{Tag: tag, Value: value}, nil
	default:
		return Clause{Tag: tag, Value: value}, nil
	}
}

// unquote reads a leading quoted string and returns it with the remainder.
func unquote(s string) (string, string, error) {
	if !strings.HasPrefix(s, `"`) {
		return "", "", fmt.Errorf("expected quoted string in %q", s)
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '\\':
			if i+1 >= len(s) {
				return "", "", fmt.Errorf("dangling escape in %q", s)
			}
			i++
			if s[i] == 'n' {
				b.WriteByte('\n')
			} else {
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), strings.TrimSpace(s[i+1:]), nil
		default:
			b.WriteByte(ch)
		}
	}
	return "", "", fmt.Errorf("unterminated quoted string in %q", s)
}

func parseXrefs(s string) []string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil
	}
	inner := strings.TrimSpace(s[start+1 : end])
	if inner == "" {
		return nil
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Splice returns text with each frame's stanza replaced by its rendering.
// Frames whose stanza is not in text are appended in order. Every line
// outside a replaced stanza is kept as is, including comments, clause
// order and trailing "! label" annotations the parser drops.
func Splice(text string, frames []*Frame) string {
	lines := strings.SplitAfter(text, "\n")
	type span struct{ start, end int }
	spans := make(map[string]span)

	key := func(frameType, id string) string {
		if frameType == "" {
			frameType = FrameTypeTerm
		}
		return frameType + "\x00" + id
	}
	var (
		frameType string
		start     = -1
		last      int
		id        string
	)
	closeStanza := func() {
		if start >= 0 && id != "" {
			if _, seen := spans[key(frameType, id)]; !seen {
				spans[key(frameType, id)] = span{start, last + 1}
			}
		}
	}
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			closeStanza()
			frameType, start, last, id = strings.TrimSpace(line[1:len(line)-1]), i, i, ""
		case start < 0 || line == "" || strings.HasPrefix(line, "!"):
		default:
			last = i
			if tag, value, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(tag) == string(TagID) && id == "" {
				id, _, _ = strings.Cut(value, " !")
				id = strings.TrimSpace(id)
			}
		}
	}
	closeStanza()

	replaced := make(map[int]string)
	var appended []*Frame
	for _, f := range frames {
		sp, ok := spans[key(f.Type, f.ID)]
		if !ok {
			appended = append(appended, f)
			continue
		}
		replaced[sp.start] = f.Render()
		for i := sp.start + 1; i < sp.end; i++ {
			replaced[i] = ""
		}
	}

	var b strings.Builder
	b.Grow(len(text))
	for i, l := range lines {
		if r, ok := replaced[i]; ok {
			b.WriteString(r)
			continue
		}
		b.WriteString(l)
	}
	for _, f := range appended {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "\n%s", f.Render())
	}
	return b.String()
}
