package engine

import "testing"

func TestStatus(t *testing.T) {
	tests := []struct {
		want   string
		status Status
		ok     bool
	}{
		{"NIX_OK", StatusOK, true},
		{"NIX_ERR_UNKNOWN", StatusUnknown, false},
		{"NIX_ERR_OVERFLOW", StatusOverflow, false},
		{"NIX_ERR_KEY", StatusKey, false},
		{"NIX_ERR_NIX_ERROR", StatusNixError, false},
		{"nix_err(-9)", Status(-9), false},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.status), got, tt.want)
		}
		if tt.status.OK() != tt.ok {
			t.Errorf("Status(%d).OK() = %v", int(tt.status), !tt.ok)
		}
	}
}

func TestValueType_String(t *testing.T) {
	tests := []struct {
		want string
		typ  ValueType
	}{
		{"thunk", TypeThunk},
		{"int", TypeInt},
		{"string", TypeString},
		{"set", TypeAttrs},
		{"lambda", TypeFunction},
		{"external", TypeExternal},
		{"type(11)", ValueType(11)},
		{"type(-1)", ValueType(-1)},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("ValueType(%d).String() = %q, want %q", int(tt.typ), got, tt.want)
		}
	}
}

func TestPtr_IsNull(t *testing.T) {
	if !Ptr(0).IsNull() {
		t.Error("zero Ptr should be null")
	}
	if Ptr(8).IsNull() {
		t.Error("non-zero Ptr should not be null")
	}
}

func TestSetLogger_Nil(t *testing.T) {
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Logger() returned nil after SetLogger(nil)")
	}
}
