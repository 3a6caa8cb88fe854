package util

import (
	"fmt"
	"strings"
)

// ParseLocation is a position inside a ParseSourceFile. Line and Col are zero based.
type ParseLocation struct {
	File   *ParseSourceFile
	Offset int
	Line   int
	Col    int
}

func NewParseLocation(file *ParseSourceFile, offset, line, col int) *ParseLocation {
	return &ParseLocation{File: file, Offset: offset, Line: line, Col: col}
}

func (p *ParseLocation) String() string {
	if p.Offset >= 0 {
		return fmt.Sprintf("%s@%d:%d", p.File.URL, p.Line, p.Col)
	}
	return p.File.URL
}

// MoveBy returns a new location delta bytes away, tracking lines in both directions.
func (p *ParseLocation) MoveBy(delta int) *ParseLocation {
	source := p.File.Content
	offset, line, col := p.Offset, p.Line, p.Col

	for offset > 0 && delta < 0 {
		offset--
		delta++
		if source[offset] == '\n' {
			line--
			priorLine := strings.LastIndexByte(source[:offset], '\n')
			col = offset - priorLine - 1
		} else {
			col--
		}
	}
	for offset < len(source) && delta > 0 {
		ch := source[offset]
		offset++
		delta--
		if ch == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return NewParseLocation(p.File, offset, line, col)
}

// SourceContext is the text surrounding a location, used in contextual messages.
type SourceContext struct {
	Before string
	After  string
}

// GetContext collects up to maxChars characters and maxLines lines on each side of the location.
func (p *ParseLocation) GetContext(maxChars, maxLines int) *SourceContext {
	content := p.File.Content
	if p.Offset < 0 || len(content) == 0 {
		return nil
	}
	startOffset := min(p.Offset, len(content)-1)
	endOffset := startOffset

	chars, lines := 0, 0
	for chars < maxChars && startOffset > 0 {
		startOffset--
		chars++
		if content[startOffset] == '\n' {
			lines++
			if lines == maxLines {
				break
			}
		}
	}

	chars, lines = 0, 0
	for chars < maxChars && endOffset < len(content)-1 {
		endOffset++
		chars++
		if content[endOffset] == '\n' {
			lines++
			if lines == maxLines {
				break
			}
		}
	}

	anchor := min(p.Offset, len(content))
	return &SourceContext{
		Before: content[startOffset:anchor],
		After:  content[anchor:min(endOffset+1, len(content))],
	}
}

// ParseSourceFile is a template source and the URL it was loaded from.
type ParseSourceFile struct {
	Content string
	URL     string
}

func NewParseSourceFile(content, url string) *ParseSourceFile {
	return &ParseSourceFile{Content: content, URL: url}
}

// ParseSourceSpan covers [Start, End). FullStart includes leading trivia skipped by the lexer.
type ParseSourceSpan struct {
	Start     *ParseLocation
	End       *ParseLocation
	FullStart *ParseLocation
	Details   *string
}

func NewParseSourceSpan(start, end, fullStart *ParseLocation, details *string) *ParseSourceSpan {
	if fullStart == nil {
		fullStart = start
	}
	return &ParseSourceSpan{Start: start, End: end, FullStart: fullStart, Details: details}
}

// String returns the source text covered by the span.
func (s *ParseSourceSpan) String() string {
	return s.Start.File.Content[s.Start.Offset:s.End.Offset]
}

// ParseErrorLevel is the severity of a diagnostic.
type ParseErrorLevel int

const (
	ParseErrorLevelWarning ParseErrorLevel = iota
	ParseErrorLevelError
)

func (l ParseErrorLevel) String() string {
	if l == ParseErrorLevelWarning {
		return "warning"
	}
	return "error"
}

// ParseError is a recoverable diagnostic about user content.
type ParseError struct {
	Span  *ParseSourceSpan
	Msg   string
	Level ParseErrorLevel
}

func NewParseError(span *ParseSourceSpan, msg string) *ParseError {
	return &ParseError{Span: span, Msg: msg, Level: ParseErrorLevelError}
}

func NewParseWarning(span *ParseSourceSpan, msg string) *ParseError {
	return &ParseError{Span: span, Msg: msg, Level: ParseErrorLevelWarning}
}

func (e *ParseError) Error() string {
	if e.Span == nil || e.Span.Start == nil {
		return e.Msg
	}
	details := ""
	if e.Span.Details != nil {
		details = ", " + *e.Span.Details
	}
	return fmt.Sprintf("%s: %s%s", e.ContextualMessage(), e.Span.Start, details)
}

// ContextualMessage embeds a marker at the error position into the surrounding source.
func (e *ParseError) ContextualMessage() string {
	if e.Span == nil || e.Span.Start == nil {
		return e.Msg
	}
	ctx := e.Span.Start.GetContext(100, 3)
	if ctx == nil {
		return e.Msg
	}
	return fmt.Sprintf(`%s ("%s[%s ->]%s")`, e.Msg, ctx.Before, strings.ToUpper(e.Level.String()), ctx.After)
}

// HasErrors reports whether any diagnostic is error level.
func HasErrors(errs []*ParseError) bool {
	for _, e := range errs {
		if e.Level == ParseErrorLevelError {
			return true
		}
	}
	return false
}
