package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodePortArity, "port %q requires exactly 1 link", "Camera")

	if err.Code != ErrCodePortArity {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodePortArity)
	}
	if !strings.Contains(err.Error(), "PORT_ARITY") {
		t.Errorf("Error() should contain code, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), `"Camera"`) {
		t.Errorf("Error() should contain formatted message, got %q", err.Error())
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("read mask: no such file")
	err := Wrap(ErrCodeRenderFatal, cause, "mask discovery failed")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if !strings.Contains(err.Error(), "no such file") {
		t.Errorf("Error() should include cause, got %q", err.Error())
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeValueConversion, "weight is not numeric")

	if !Is(err, ErrCodeValueConversion) {
		t.Error("Is should match the error's code")
	}
	if Is(err, ErrCodePortArity) {
		t.Error("Is should not match a different code")
	}
	if Is(fmt.Errorf("plain"), ErrCodeValueConversion) {
		t.Error("Is should not match plain errors")
	}

	// Codes survive wrapping in plain errors
	wrapped := fmt.Errorf("exec: %w", err)
	if !Is(wrapped, ErrCodeValueConversion) {
		t.Error("Is should unwrap standard wrapping")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeConfiguration, "empty pool")); got != ErrCodeConfiguration {
		t.Errorf("GetCode = %v, want %v", got, ErrCodeConfiguration)
	}
	if got := GetCode(fmt.Errorf("plain")); got != "" {
		t.Errorf("GetCode for plain error = %v, want empty", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodePortArity, "port requires exactly 1 link")
	if got := UserMessage(err); got != "port requires exactly 1 link" {
		t.Errorf("UserMessage = %q", got)
	}
	if got := UserMessage(fmt.Errorf("plain")); got != "plain" {
		t.Errorf("UserMessage for plain error = %q", got)
	}
}

func TestAtNode(t *testing.T) {
	err := AtNode(New(ErrCodeValueConversion, "weight is not numeric"), "Weight1", "Weight")

	if !Is(err, ErrCodeValueConversion) {
		t.Error("AtNode should preserve the original code")
	}
	if !strings.Contains(err.Error(), `"Weight1"`) || !strings.Contains(err.Error(), "(Weight)") {
		t.Errorf("AtNode should include node name and type, got %q", err.Error())
	}

	plain := AtNode(fmt.Errorf("boom"), "Render1", "Render")
	if GetCode(plain) != ErrCodeInternal {
		t.Errorf("AtNode on plain error should use INTERNAL_ERROR, got %v", GetCode(plain))
	}
	if AtNode(nil, "x", "y") != nil {
		t.Error("AtNode(nil) should be nil")
	}
}

func TestValidateNodeName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"Placement1", false},
		{"render-node_2", false},
		{"", true},
		{"has/slash", true},
		{"has\\backslash", true},
		{strings.Repeat("x", 129), true},
		{"ctrl\x01char", true},
	}

	for _, tt := range tests {
		err := ValidateNodeName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateNodeName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestValidateSensorName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"RGBCamera", false},
		{"", true},
		{"bad#name", true},
		{"bad/name", true},
		{"glob*", true},
	}

	for _, tt := range tests {
		err := ValidateSensorName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSensorName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestValidateOutputDir(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"out", false},
		{"/tmp/dropstage/run1", false},
		{"", true},
		{"../escape", true},
		{"has\x00null", true},
	}

	for _, tt := range tests {
		err := ValidateOutputDir(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateOutputDir(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
	}
}
