package content

import "strings"

// SplitLines splits content on \n and \r\n. A trailing line ending does not
// produce an empty last element; a lone \r is kept as content.
func SplitLines(content string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		switch {
		case content[i] == '\n':
			lines = append(lines, content[start:i])
			start = i + 1
		case content[i] == '\r' && i+1 < len(content) && content[i+1] == '\n':
			lines = append(lines, content[start:i])
			start = i + 2
			i++
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}

// Document is text split into lines, remembering how to put it back together.
type Document struct {
	Lines           []string
	EOL             string
	TrailingNewline bool
}

// ParseDocument splits text into lines. The line ending is CRLF when the
// text contains any, otherwise LF.
func ParseDocument(text string) Document {
	eol := "\n"
	if strings.Contains(text, "\r\n") {
		eol = "\r\n"
	}
	return Document{
		Lines:           SplitLines(text),
		EOL:             eol,
		TrailingNewline: strings.HasSuffix(text, "\n"),
	}
}

// String joins the lines with the document's line ending.
func (d Document) String() string {
	if len(d.Lines) == 0 {
		return ""
	}
	out := strings.Join(d.Lines, d.EOL)
	if d.TrailingNewline {
		out += d.EOL
	}
	return out
}
