package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"transient", NewTransient("timeout", nil), CodeTransientExternal},
		{"wrapped", Wrap(CodeDeadline, "stage overran", stderrors.New("x")), CodeDeadline},
		{"fmt-wrapped", fmt.Errorf("outer: %w", NewCapacity("full")), CodeCapacity},
		{"plain", stderrors.New("plain"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPredicatesUnwrap(t *testing.T) {
	inner := NewTransient("connection reset", stderrors.New("ECONNRESET"))
	outer := fmt.Errorf("call provider: %w", inner)

	if !IsTransient(outer) {
		t.Error("IsTransient must see through fmt wrapping")
	}
	if IsNotFound(outer) {
		t.Error("wrong predicate matched")
	}
}

func TestErrorString(t *testing.T) {
	e := Wrap(CodePermanentExternal, "auth failed", stderrors.New("401"))
	msg := e.Error()
	if !strings.Contains(msg, "PERMANENT_EXTERNAL") || !strings.Contains(msg, "auth failed") || !strings.Contains(msg, "401") {
		t.Errorf("message = %q", msg)
	}

	bare := NewNotFound("memory missing")
	if strings.Contains(bare.Error(), "<nil>") {
		t.Errorf("message = %q", bare.Error())
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := stderrors.New("root")
	e := NewPermanent("wrapper", cause)
	if !stderrors.Is(e, cause) {
		t.Error("cause lost in unwrap chain")
	}
}
