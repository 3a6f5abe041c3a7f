package frame

import (
	"encoding/json"
	"testing"
)

func TestDescriptorKind(t *testing.T) {
	tests := []struct {
		name  string
		frame Descriptor
		kind  Kind
	}{
		{"root", Descriptor{FunctionName: RootName}, KindRoot},
		{"program", Descriptor{FunctionName: ProgramName}, KindVMState},
		{"garbage collector", Descriptor{FunctionName: GCName}, KindVMState},
		{"idle", Descriptor{FunctionName: IdleName}, KindVMState},
		{"regexp", Descriptor{FunctionName: "/^a+b$/gi"}, KindRegExp},
		{"regexp-like name with url", Descriptor{FunctionName: "/a/", URL: "file:///a.js"}, KindFunction},
		{"top level script", Descriptor{URL: "https://example.com/app.js"}, KindScript},
		{"anonymous function", Descriptor{URL: "https://example.com/app.js", LineNumber: 10, ColumnNumber: 3}, KindFunction},
		{"named function", Descriptor{FunctionName: "foo", URL: "https://example.com/app.js"}, KindFunction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if kind := tt.frame.Kind(); kind != tt.kind {
				t.Fatalf("expected %s, got %s", tt.kind, kind)
			}
		})
	}
}

func TestDescriptorDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		frame Descriptor
		want  string
	}{
		{"named", Descriptor{FunctionName: "foo"}, "foo"},
		{"script", Descriptor{URL: "file:///a.js"}, ScriptName},
		{"anonymous", Descriptor{URL: "file:///a.js", LineNumber: 4}, AnonymousFunctionName},
		{"nothing at all", Descriptor{}, UnknownName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.DisplayName(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestScriptIDUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ScriptID
		numeric bool
	}{
		{"number", `{"scriptId": 42}`, "42", true},
		{"numeric string", `{"scriptId": "42"}`, "42", true},
		{"string", `{"scriptId": "abc"}`, "abc", false},
		{"missing", `{}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Descriptor
			if err := json.Unmarshal([]byte(tt.input), &d); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.ScriptID != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, d.ScriptID)
			}
			if _, ok := d.ScriptID.Int(); ok != tt.numeric {
				t.Fatalf("expected numeric=%v", tt.numeric)
			}
		})
	}
}

func TestDescriptorIDIgnoresScriptID(t *testing.T) {
	a := Descriptor{ScriptID: "1", URL: "file:///a.js", FunctionName: "foo", LineNumber: 1, ColumnNumber: 2}
	b := a
	b.ScriptID = "7"
	if a.ID() != b.ID() {
		t.Fatal("ids should not depend on the script id")
	}
	b.LineNumber = 3
	if a.ID() == b.ID() {
		t.Fatal("ids should depend on the position")
	}
}
