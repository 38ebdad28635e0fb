package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error by the part of the pipeline that failed.
// A Kind is itself an error so it can be used as an errors.Is target.
type Kind uint8

const (
	// KindConfiguration reports a missing stage resource or an unknown query binding.
	KindConfiguration Kind = iota + 1
	// KindCompilation reports a pipeline stage that failed while transforming a schema.
	KindCompilation
	// KindValidation reports a compiled validator that failed on an input document.
	KindValidation
	// KindEncoding reports a failure while streaming a report to its destination.
	KindEncoding
	// KindState reports an Instance that was reentered while a validation was running.
	KindState
)

// Sentinels for errors.Is.
var (
	ErrConfiguration error = KindConfiguration
	ErrCompilation   error = KindCompilation
	ErrValidation    error = KindValidation
	ErrEncoding      error = KindEncoding
	ErrState         error = KindState
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindCompilation:
		return "compilation"
	case KindValidation:
		return "validation"
	case KindEncoding:
		return "encoding"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

func (k Kind) Error() string {
	return k.String() + " error"
}

// ErrorCode identifies a specific failure within a Kind.
type ErrorCode string

const (
	// ErrStageMissing indicates a stage program resource does not exist.
	ErrStageMissing ErrorCode = "stage-missing"
	// ErrUnknownQueryBinding indicates the schema declares an unsupported queryBinding.
	ErrUnknownQueryBinding ErrorCode = "unknown-query-binding"
	// ErrNoEngine indicates no transformation engine was configured.
	ErrNoEngine ErrorCode = "no-engine"

	// ErrSchemaParse indicates the schema source is not well-formed XML.
	ErrSchemaParse ErrorCode = "schema-parse"
	// ErrStageCompile indicates a stage program could not be compiled.
	ErrStageCompile ErrorCode = "stage-compile"
	// ErrStageFailed indicates a stage failed while transforming the schema.
	ErrStageFailed ErrorCode = "stage-failed"
	// ErrUnknownPhase indicates the requested phase is not declared by the schema.
	ErrUnknownPhase ErrorCode = "unknown-phase"
	// ErrDebugOutput indicates the compiled artifact could not be written to the debug sink.
	ErrDebugOutput ErrorCode = "debug-output"

	// ErrDocumentParse indicates the instance document is not well-formed XML.
	ErrDocumentParse ErrorCode = "xml-parse-error"
	// ErrDynamic indicates an expression failed while evaluating against a document.
	ErrDynamic ErrorCode = "dynamic-error"

	// ErrUnsupportedEncoding indicates the output encoding name is unknown.
	ErrUnsupportedEncoding ErrorCode = "unsupported-encoding"
	// ErrWrite indicates the report destination rejected a write.
	ErrWrite ErrorCode = "write-error"
	// ErrMalformedEvents indicates writer events arrived out of order.
	ErrMalformedEvents ErrorCode = "malformed-events"

	// ErrInstanceBusy indicates an Instance was reentered during a validation.
	ErrInstanceBusy ErrorCode = "instance-busy"
)

// Error carries a classified failure together with the context needed to
// locate it: the operation, the source system ID, and the stage name.
type Error struct {
	Err          error
	Op           string
	SystemID     string
	Stage        string
	Code         ErrorCode
	Message      string
	Expression   string
	MatchPattern string
	Kind         Kind
}

// Error formats the error as "op systemID: [code] message (stage=..) (expression=..) (matchPattern=..): cause".
func (e *Error) Error() string {
	if e == nil {
		return "schematron error <nil>"
	}

	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.SystemID != "" {
			b.WriteString(" ")
			b.WriteString(e.SystemID)
		}
		b.WriteString(": ")
	} else if e.SystemID != "" {
		b.WriteString(e.SystemID)
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString(fmt.Sprintf("[%s] ", e.Code))
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(e.Kind.Error())
	}
	if e.Stage != "" {
		b.WriteString(fmt.Sprintf(" (stage=%s)", e.Stage))
	}
	if e.Expression != "" {
		b.WriteString(fmt.Sprintf(" (expression=%s)", e.Expression))
	}
	if e.MatchPattern != "" {
		b.WriteString(fmt.Sprintf(" (matchPattern=%s)", e.MatchPattern))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New builds an Error of the given kind and code.
func New(kind Kind, code ErrorCode, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Newf formats a message and builds an Error.
func Newf(kind Kind, code ErrorCode, format string, args ...any) *Error {
	return New(kind, code, fmt.Sprintf(format, args...))
}

// Wrap builds an Error that wraps cause.
func Wrap(kind Kind, code ErrorCode, cause error, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: cause}
}

// Configuration builds a configuration error.
func Configuration(code ErrorCode, format string, args ...any) *Error {
	return Newf(KindConfiguration, code, format, args...)
}

// Compilation wraps cause as a compilation error.
func Compilation(code ErrorCode, cause error, format string, args ...any) *Error {
	return Wrap(KindCompilation, code, cause, fmt.Sprintf(format, args...))
}

// Validation wraps cause as a validation error.
func Validation(code ErrorCode, cause error, format string, args ...any) *Error {
	return Wrap(KindValidation, code, cause, fmt.Sprintf(format, args...))
}

// Encoding wraps cause as an encoding error.
func Encoding(code ErrorCode, cause error, format string, args ...any) *Error {
	return Wrap(KindEncoding, code, cause, fmt.Sprintf(format, args...))
}

// State builds a state error.
func State(format string, args ...any) *Error {
	return Newf(KindState, ErrInstanceBusy, format, args...)
}

// In returns a copy of e annotated with an operation and a system ID.
// Fields already set are kept.
func (e *Error) In(op, systemID string) *Error {
	if e == nil {
		return nil
	}
	out := *e
	if out.Op == "" {
		out.Op = op
	}
	if out.SystemID == "" {
		out.SystemID = systemID
	}
	return &out
}

// AtStage returns a copy of e annotated with a stage name.
func (e *Error) AtStage(stage string) *Error {
	if e == nil {
		return nil
	}
	out := *e
	out.Stage = stage
	return &out
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return 0
}
