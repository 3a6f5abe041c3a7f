package dictionary

import (
	"testing"

	"github.com/getsentry/cpuprof/internal/frame"
	"github.com/getsentry/cpuprof/internal/testutil"
)

func TestResolveCallFrameDeduplication(t *testing.T) {
	d := New()
	a := d.ResolveCallFrame(frame.Descriptor{ScriptID: "1", URL: "file:///app/a.js", FunctionName: "foo", LineNumber: 1, ColumnNumber: 2})
	b := d.ResolveCallFrame(frame.Descriptor{ScriptID: "1", URL: "file:///app/a.js", FunctionName: "foo", LineNumber: 1, ColumnNumber: 2})
	c := d.ResolveCallFrame(frame.Descriptor{ScriptID: "1", URL: "file:///app/a.js", FunctionName: "foo", LineNumber: 5, ColumnNumber: 2})
	e := d.ResolveCallFrame(frame.Descriptor{ScriptID: "2", URL: "file:///app/a.js", FunctionName: "foo", LineNumber: 1, ColumnNumber: 2})

	if a.ID != 1 {
		t.Fatalf("expected the first call frame to have id 1, got %d", a.ID)
	}
	if a.ID != b.ID {
		t.Fatalf("expected identical descriptors to resolve to the same call frame")
	}
	if c.ID == a.ID || e.ID == a.ID || c.ID == e.ID {
		t.Fatalf("expected distinct call frames, got %d %d %d", a.ID, c.ID, e.ID)
	}
	if a.Module != e.Module {
		t.Fatalf("expected frames of the same url to share a module")
	}
	if d.CallFramesSize() != 4 {
		t.Fatalf("expected 3 call frames plus the reserved slot, got %d", d.CallFramesSize())
	}
}

func TestNormalizeScriptID(t *testing.T) {
	d := New()
	tests := []struct {
		input frame.ScriptID
		want  int64
	}{
		{"12", 12},
		{"abc", -1},
		{"def", -2},
		{"abc", -1},
		{"", 0},
	}
	for _, tt := range tests {
		if got := d.NormalizeScriptID(tt.input); got != tt.want {
			t.Fatalf("NormalizeScriptID(%q): expected %d, got %d", tt.input, tt.want, got)
		}
	}
}

func TestResolveCallFramePlaceholders(t *testing.T) {
	d := New()
	anonymous := d.ResolveCallFrame(frame.Descriptor{ScriptID: "3", URL: "https://example.com/app.js", LineNumber: 10, ColumnNumber: 4})
	script := d.ResolveCallFrame(frame.Descriptor{ScriptID: "3", URL: "https://example.com/app.js"})
	unknown := d.ResolveCallFrame(frame.Descriptor{})

	if anonymous.Name != frame.AnonymousFunctionName {
		t.Fatalf("unexpected name %q", anonymous.Name)
	}
	if script.Name != frame.ScriptName || script.Kind != frame.KindScript {
		t.Fatalf("unexpected script frame %+v", script)
	}
	if unknown.Name != frame.UnknownName {
		t.Fatalf("unexpected name %q", unknown.Name)
	}
	if got := d.Category(unknown.Category).Name; got != CategoryEngine {
		t.Fatalf("expected frames without url to land in %q, got %q", CategoryEngine, got)
	}
}

func TestRegisterScriptBackfillsURL(t *testing.T) {
	d := New()
	d.RegisterScript("7", "https://example.com/main.js")
	cf := d.ResolveCallFrame(frame.Descriptor{ScriptID: "7", FunctionName: "run", LineNumber: 3})
	if cf.URL != "https://example.com/main.js" {
		t.Fatalf("expected url to be backfilled, got %q", cf.URL)
	}
	if got := d.Package(cf.Package).Type; got != PackageTypeWebsite {
		t.Fatalf("expected a website package, got %q", got)
	}
}

func TestModuleClassification(t *testing.T) {
	type result struct {
		ModuleType  ModuleType
		ModuleName  string
		PackageType PackageType
		Package     string
		Category    string
	}
	tests := []struct {
		name  string
		frame frame.Descriptor
		want  result
	}{
		{
			"root",
			frame.Descriptor{FunctionName: frame.RootName},
			result{ModuleTypeRoot, frame.RootName, PackageTypeRoot, frame.RootName, CategoryRoot},
		},
		{
			"garbage collector",
			frame.Descriptor{FunctionName: frame.GCName},
			result{ModuleTypeVMState, frame.GCName, PackageTypeGC, frame.GCName, CategoryGC},
		},
		{
			"idle",
			frame.Descriptor{FunctionName: frame.IdleName},
			result{ModuleTypeVMState, frame.IdleName, PackageTypeIdle, frame.IdleName, CategoryIdle},
		},
		{
			"regexp",
			frame.Descriptor{FunctionName: "/a+/g"},
			result{ModuleTypeRegExp, "(regexp)", PackageTypeRegExp, "(regexp)", CategoryRegExp},
		},
		{
			"engine internals",
			frame.Descriptor{FunctionName: "Array.prototype.map"},
			result{ModuleTypeInternals, "(internals)", PackageTypeInternals, "(internals)", CategoryEngine},
		},
		{
			"node builtin",
			frame.Descriptor{FunctionName: "readFileSync", URL: "node:fs"},
			result{ModuleTypeNode, "node:fs", PackageTypeNode, "node", CategoryNode},
		},
		{
			"legacy node builtin",
			frame.Descriptor{FunctionName: "emit", URL: "events.js"},
			result{ModuleTypeNode, "node:events", PackageTypeNode, "node", CategoryNode},
		},
		{
			"node_modules package",
			frame.Descriptor{FunctionName: "handle", URL: "file:///srv/app/node_modules/express/lib/router/index.js"},
			result{ModuleTypeScript, "lib/router/index.js", PackageTypeNPM, "express", CategoryScript},
		},
		{
			"application script",
			frame.Descriptor{FunctionName: "main", URL: "file:///srv/app/index.js"},
			result{ModuleTypeScript, "index.js", PackageTypeScript, "(script)", CategoryScript},
		},
		{
			"cdn package",
			frame.Descriptor{FunctionName: "h", URL: "https://unpkg.com/preact@10.19.2/dist/preact.js"},
			result{ModuleTypeScript, "dist/preact.js", PackageTypeCDN, "preact", CategoryScript},
		},
		{
			"website",
			frame.Descriptor{FunctionName: "render", URL: "https://example.com/static/app.js"},
			result{ModuleTypeScript, "static/app.js", PackageTypeWebsite, "https://example.com", CategoryScript},
		},
		{
			"webpack application",
			frame.Descriptor{FunctionName: "render", URL: "webpack://my-app/./src/index.js"},
			result{ModuleTypeWebpack, "src/index.js", PackageTypeWebpack, "my-app", CategoryScript},
		},
		{
			"webpack node_modules",
			frame.Descriptor{FunctionName: "render", URL: "webpack-internal:///./node_modules/react-dom/cjs/react-dom.development.js"},
			result{ModuleTypeWebpack, "cjs/react-dom.development.js", PackageTypeNPM, "react-dom", CategoryScript},
		},
		{
			"wasm",
			frame.Descriptor{FunctionName: "$func12", URL: "wasm://wasm/8c5a2f3e"},
			result{ModuleTypeWasm, "wasm/8c5a2f3e", PackageTypeWasm, "(wasm)", CategoryWasm},
		},
		{
			"extension",
			frame.Descriptor{FunctionName: "inject", URL: "chrome-extension://abcdef/content.js"},
			result{ModuleTypeExtension, "content.js", PackageTypeExtension, "chrome-extension://abcdef", CategoryExtension},
		},
		{
			"unknown scheme",
			frame.Descriptor{FunctionName: "x", URL: "evalmachine.<anonymous>"},
			result{ModuleTypeUnknown, "evalmachine.<anonymous>", PackageTypeUnknown, "(unknown)", CategoryUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			cf := d.ResolveCallFrame(tt.frame)
			m := d.Module(cf.Module)
			p := d.Package(cf.Package)
			got := result{m.Type, m.DisplayName(), p.Type, p.Name, d.Category(cf.Category).Name}
			if diff := testutil.Diff(got, tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestModuleMemoization(t *testing.T) {
	d := New()
	a := d.ResolveCallFrame(frame.Descriptor{ScriptID: "1", URL: "node:fs", FunctionName: "readFileSync"})
	b := d.ResolveCallFrame(frame.Descriptor{ScriptID: "2", URL: "node:path", FunctionName: "join"})
	c := d.ResolveCallFrame(frame.Descriptor{ScriptID: "1", URL: "node:fs", FunctionName: "statSync"})

	if a.Module != c.Module {
		t.Fatal("expected same url to map to the same module")
	}
	if a.Module == b.Module {
		t.Fatal("expected different urls to map to different modules")
	}
	if a.Package != b.Package {
		t.Fatal("expected node builtins to share the node package")
	}
	if d.ModulesSize() != 3 || d.PackagesSize() != 2 || d.CategoriesSize() != 2 {
		t.Fatalf("unexpected table sizes %d %d %d", d.ModulesSize(), d.PackagesSize(), d.CategoriesSize())
	}
}

func TestProjectionArrays(t *testing.T) {
	d := New()
	root := d.ResolveCallFrame(frame.Descriptor{FunctionName: frame.RootName})
	fs := d.ResolveCallFrame(frame.Descriptor{ScriptID: "1", URL: "node:fs", FunctionName: "readFileSync"})

	modules := d.CallFrameModules()
	if modules[0] != 0 || modules[root.ID] != root.Module || modules[fs.ID] != fs.Module {
		t.Fatalf("unexpected call frame modules %v", modules)
	}
	packages := d.ModulePackages()
	if packages[fs.Module] != fs.Package {
		t.Fatalf("unexpected module packages %v", packages)
	}
	categories := d.PackageCategories()
	if categories[fs.Package] != fs.Category {
		t.Fatalf("unexpected package categories %v", categories)
	}
}

func TestBackfillPackageName(t *testing.T) {
	d := New()
	cf := d.ResolveCallFrame(frame.Descriptor{ScriptID: "1", URL: "https://example.com/app.js", FunctionName: "main"})
	if !d.BackfillPackageName("https://example.com", "Example") {
		t.Fatal("expected the name to be backfilled")
	}
	if d.BackfillPackageName("https://example.com", "Other") {
		t.Fatal("expected the name to be set only once")
	}
	if got := d.Package(cf.Package).Name; got != "Example" {
		t.Fatalf("unexpected package name %q", got)
	}
}

func TestCodes(t *testing.T) {
	d := New()
	cf := d.ResolveCallFrame(frame.Descriptor{ScriptID: "1", URL: "file:///a.js", FunctionName: "hot"})
	if codes := d.Codes(cf.ID); len(codes) != 0 {
		t.Fatalf("expected no codes, got %v", codes)
	}
	d.AddCodes(cf.ID, CodeInfo{Tier: "Ignition"}, CodeInfo{Tier: "Turbofan", Timestamp: 10})
	d.AddCodes(999, CodeInfo{Tier: "Sparkplug"})
	if diff := testutil.Diff(d.Codes(cf.ID), []CodeInfo{{Tier: "Ignition"}, {Tier: "Turbofan", Timestamp: 10}}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}
