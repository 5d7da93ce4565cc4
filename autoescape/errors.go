package autoescape

import (
	"fmt"
	"strings"

	"github.com/soyesc/soyesc/errortypes"
)

// ErrorCode classifies an autoescaping failure, per spec §7.
type ErrorCode int

const (
	ErrBranchMerge ErrorCode = iota
	ErrReentry
	ErrUnsafeScheme
	ErrAmbiguousScheme
	ErrPrintInDisallowedContext
	ErrMessageInDisallowedContext
	ErrKindExitMismatch
	ErrStrictCallOfNonStrict
	ErrInvalidTagName
	ErrUnmatchedCloseTag
	ErrCloseTagInRCDATA
	ErrDirectiveNotAllowed
	ErrBadHTML
)

var errorCodeNames = map[ErrorCode]string{
	ErrBranchMerge:                "branch merge failure",
	ErrReentry:                    "reentry mismatch",
	ErrUnsafeScheme:               "unsafe scheme",
	ErrAmbiguousScheme:            "ambiguous scheme",
	ErrPrintInDisallowedContext:   "print in disallowed context",
	ErrMessageInDisallowedContext: "message in disallowed context",
	ErrKindExitMismatch:           "kind exit mismatch",
	ErrStrictCallOfNonStrict:      "strict call of non-strict template",
	ErrInvalidTagName:             "invalid tag name",
	ErrUnmatchedCloseTag:          "unmatched close tag",
	ErrCloseTagInRCDATA:           "close tag in rcdata",
	ErrDirectiveNotAllowed:        "directive not allowed",
	ErrBadHTML:                    "malformed html",
}

func (c ErrorCode) String() string { return errorCodeNames[c] }

// Error is a located autoescaping failure. It implements
// errortypes.ErrFilePos so any caller that already knows how to report that
// interface for other static-analysis passes over a template.Registry (see
// parsepasses) can report these the same way.
type Error struct {
	Code     ErrorCode
	Name     string // fully-qualified template name
	file     string
	line     int
	col      int
	message  string
	Context  string // debug dump of the offending context, if applicable
}

var _ errortypes.ErrFilePos = (*Error)(nil)

func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s:%d:%d: %s: %s (%s)", e.file, e.line, e.col, e.Code, e.message, e.Context)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", e.file, e.line, e.col, e.Code, e.message)
}

func (e *Error) File() string { return e.file }
func (e *Error) Line() int    { return e.line }
func (e *Error) Col() int     { return e.col }

func errorf(code ErrorCode, file string, line, col int, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		file:    file,
		line:    line,
		col:     col,
		message: fmt.Sprintf(format, args...),
	}
}

// Errors joins a batch of autoescaping failures, as returned by Rewrite,
// into a single error for callers that just want pass/fail with a readable
// message (e.g. Bundle.CompileToTofu).
type Errors []*Error

func (e Errors) Error() string {
	var lines = make([]string, len(e))
	for i, err := range e {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}
