package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidInput, 400},
		{CodeNotFound, 404},
		{CodeTimeout, 504},
		{CodeServiceUnavailable, 503},
		{CodeExternalService, 502},
		{CodeInternal, 500},
		{CodeUnknown, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := New(CodeInvalidInput, "tts.Synthesize", "text is empty")
	if err.Error() != "tts.Synthesize: text is empty" {
		t.Errorf("Error() = %q", err.Error())
	}

	wrapped := Wrap(errors.New("exit status 1"), CodeExternalService, "", "piper failed")
	if wrapped.Error() != "piper failed: exit status 1" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, CodeInternal, "op", "msg") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestGetCode_ThroughChain(t *testing.T) {
	base := errors.New("boom")
	coded := Wrap(base, CodeTimeout, "stt.Recognize", "model timed out")
	outer := fmt.Errorf("transcription failed: %w", coded)

	if GetCode(outer) != CodeTimeout {
		t.Errorf("GetCode() = %v, want %v", GetCode(outer), CodeTimeout)
	}
	if !HasCode(outer, CodeTimeout) {
		t.Error("HasCode() = false, want true")
	}
	if !errors.Is(outer, base) {
		t.Error("errors.Is should find the base error")
	}
	if HTTPStatus(outer) != 504 {
		t.Errorf("HTTPStatus() = %v, want 504", HTTPStatus(outer))
	}
	if GetCode(base) != CodeUnknown {
		t.Errorf("GetCode(plain) = %v, want %v", GetCode(base), CodeUnknown)
	}
	if HasCode(nil, CodeUnknown) {
		t.Error("HasCode(nil) should be false")
	}
}
