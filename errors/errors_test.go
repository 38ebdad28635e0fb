package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		want string
		err  *Error
	}{
		{
			name: "message only",
			err:  &Error{Kind: KindConfiguration, Code: ErrUnknownQueryBinding, Message: "unknown query binding \"xquery\""},
			want: "[unknown-query-binding] unknown query binding \"xquery\"",
		},
		{
			name: "with op and system id",
			err:  &Error{Kind: KindCompilation, Code: ErrStageFailed, Message: "stage failed", Op: "compile", SystemID: "rules.sch"},
			want: "compile rules.sch: [stage-failed] stage failed",
		},
		{
			name: "with stage",
			err:  &Error{Kind: KindCompilation, Code: ErrStageFailed, Message: "stage failed", Stage: "expand"},
			want: "[stage-failed] stage failed (stage=expand)",
		},
		{
			name: "with diagnostics",
			err: &Error{
				Kind:         KindValidation,
				Code:         ErrDynamic,
				Message:      "invalid expression",
				Expression:   "count(",
				MatchPattern: "item",
			},
			want: "[dynamic-error] invalid expression (expression=count() (matchPattern=item)",
		},
		{
			name: "with cause",
			err:  &Error{Kind: KindEncoding, Code: ErrWrite, Message: "write report", Err: io.ErrShortWrite},
			want: "[write-error] write report: short write",
		},
		{
			name: "kind fallback",
			err:  &Error{Kind: KindState},
			want: "state error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIsKind(t *testing.T) {
	err := fmt.Errorf("validate doc.xml: %w", Validation(ErrDynamic, io.EOF, "boom"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("errors.Is(err, ErrValidation) = false")
	}
	if errors.Is(err, ErrEncoding) {
		t.Fatalf("errors.Is(err, ErrEncoding) = true")
	}
	if !errors.Is(err, io.EOF) {
		t.Fatalf("errors.Is(err, io.EOF) = false")
	}
	if got := KindOf(err); got != KindValidation {
		t.Fatalf("KindOf() = %v, want %v", got, KindValidation)
	}
}

func TestAsError(t *testing.T) {
	if _, ok := AsError(nil); ok {
		t.Fatalf("AsError(nil) ok = true")
	}
	if _, ok := AsError(io.EOF); ok {
		t.Fatalf("AsError(io.EOF) ok = true")
	}
	base := Configuration(ErrStageMissing, "stage %s not found", "1.0/include.xml")
	got, ok := AsError(fmt.Errorf("wrapped: %w", base))
	if !ok {
		t.Fatalf("AsError() ok = false")
	}
	if got.Code != ErrStageMissing {
		t.Fatalf("Code = %q, want %q", got.Code, ErrStageMissing)
	}
}

func TestErrorAnnotationsCopy(t *testing.T) {
	base := Compilation(ErrStageFailed, nil, "stage failed")
	annotated := base.In("compile", "a.sch").AtStage("include")
	if base.Op != "" || base.Stage != "" {
		t.Fatalf("annotation mutated receiver: %+v", base)
	}
	if annotated.Op != "compile" || annotated.SystemID != "a.sch" || annotated.Stage != "include" {
		t.Fatalf("annotated = %+v", annotated)
	}
	again := annotated.In("validate", "b.sch")
	if again.Op != "compile" || again.SystemID != "a.sch" {
		t.Fatalf("In() overwrote existing fields: %+v", again)
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindConfiguration: "configuration",
		KindCompilation:   "compilation",
		KindValidation:    "validation",
		KindEncoding:      "encoding",
		KindState:         "state",
		Kind(0):           "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
