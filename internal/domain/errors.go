package domain

import "fmt"

// ErrKind enumerates the transport-agnostic error kinds of §7.
type ErrKind string

const (
	ErrKindNetwork    ErrKind = "NetworkError"
	ErrKindNotFound   ErrKind = "NotFound"
	ErrKindParse      ErrKind = "ParseError"
	ErrKindIO         ErrKind = "IoError"
	ErrKindConfig     ErrKind = "ConfigError"
	ErrKindCancelled  ErrKind = "Cancelled"
)

// Error is the typed error surfaced across every command boundary. It
// always carries an ErrTitle suitable for direct display in the GUI, per §7.
type Error struct {
	Kind     ErrKind
	ErrTitle string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.ErrTitle, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.ErrTitle)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrKind, title string, err error) *Error {
	return &Error{Kind: kind, ErrTitle: title, Err: err}
}

func NewNetworkError(title string, err error) *Error  { return newErr(ErrKindNetwork, title, err) }
func NewNotFoundError(title string, err error) *Error  { return newErr(ErrKindNotFound, title, err) }
func NewParseError(title string, err error) *Error     { return newErr(ErrKindParse, title, err) }
func NewIOError(title string, err error) *Error        { return newErr(ErrKindIO, title, err) }
func NewConfigError(title string) *Error               { return newErr(ErrKindConfig, title, nil) }
func NewCancelledError(title string) *Error            { return newErr(ErrKindCancelled, title, nil) }

// ErrNoUsableFormat is the fatal descriptor error for a file whose
// haswebp/hasavif/hasjxl flags are all false (§9 Open Question: treated
// as fatal at task-creation time rather than failing mid-download).
var ErrNoUsableFormat = NewParseError("gallery file advertises no usable image format", nil)
