package schema

import "testing"

func TestNormalizeDefault(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"double wrapped zero", "((0))", "0"},
		{"wrapped function", "((getdate()))", "getdate()"},
		{"single wrapped function", "(getdate())", "getdate()"},
		{"wrapped unicode literal", "(N'x')", "N'x'"},
		{"bare zero", "0", "0"},
		{"bare literal", "'abc'", "'abc'"},
		{"inner parens kept", "(1)+(2)", "(1)+(2)"},
		{"expression with call", "(isnull([a],(0)))", "isnull([a],(0))"},
		{"empty", "", ""},
		{"whitespace", "  ((1))  ", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDefault(tt.input); got != tt.expected {
				t.Errorf("NormalizeDefault(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDefaultsEqual(t *testing.T) {
	if !DefaultsEqual(nil, nil) {
		t.Error("two absent defaults should be equal")
	}
	if DefaultsEqual(&Default{Expression: "0"}, nil) {
		t.Error("present and absent defaults should differ")
	}
	if !DefaultsEqual(&Default{Name: "DF_a", Expression: "((0))"}, &Default{Name: "DF_b", Expression: "0"}) {
		t.Error("defaults should compare by normalized expression, not name")
	}
	if DefaultsEqual(&Default{Expression: "0"}, &Default{Expression: "1"}) {
		t.Error("different expressions should not be equal")
	}
}
