package dictionary

import (
	"net/url"
	"path"
	"strings"

	"github.com/getsentry/cpuprof/internal/frame"
	"github.com/getsentry/cpuprof/internal/packageutil"
)

type (
	ModuleType  string
	PackageType string

	Module struct {
		ID      uint32
		Type    ModuleType
		Name    string
		Path    string
		Package uint32
		// PackagePath is the path of the module relative to its package root.
		PackagePath string
	}

	Package struct {
		ID       uint32
		Type     PackageType
		Name     string
		Version  string
		Registry string
		// Ref is the canonical reference the package is memoized by.
		Ref      string
		Category uint32
	}

	Category struct {
		ID   uint32
		Name string
	}
)

const (
	ModuleTypeUnknown   ModuleType = "unknown"
	ModuleTypeScript    ModuleType = "script"
	ModuleTypeNode      ModuleType = "node"
	ModuleTypeWasm      ModuleType = "wasm"
	ModuleTypeWebpack   ModuleType = "webpack"
	ModuleTypeExtension ModuleType = "extension"
	ModuleTypeInternals ModuleType = "internals"
	ModuleTypeRegExp    ModuleType = "regexp"
	ModuleTypeRoot      ModuleType = "root"
	ModuleTypeVMState   ModuleType = "vm-state"

	PackageTypeUnknown   PackageType = "unknown"
	PackageTypeScript    PackageType = "script"
	PackageTypeNPM       PackageType = "npm"
	PackageTypeCDN       PackageType = "cdn"
	PackageTypeWebsite   PackageType = "website"
	PackageTypeNode      PackageType = "node"
	PackageTypeWasm      PackageType = "wasm"
	PackageTypeWebpack   PackageType = "webpack"
	PackageTypeExtension PackageType = "extension"
	PackageTypeInternals PackageType = "internals"
	PackageTypeRegExp    PackageType = "regexp"
	PackageTypeRoot      PackageType = "root"
	PackageTypeProgram   PackageType = "program"
	PackageTypeGC        PackageType = "gc"
	PackageTypeIdle      PackageType = "idle"
	PackageTypeNoSamples PackageType = "no-samples"

	CategoryRoot      = "root"
	CategoryProgram   = "program"
	CategoryGC        = "gc"
	CategoryIdle      = "idle"
	CategoryNoSamples = "no-samples"
	CategoryEngine    = "engine"
	CategoryScript    = "script"
	CategoryNode      = "node"
	CategoryWasm      = "wasm"
	CategoryRegExp    = "regexp"
	CategoryExtension = "extension"
	CategoryUnknown   = "unknown"
)

var packageCategories = map[PackageType]string{
	PackageTypeUnknown:   CategoryUnknown,
	PackageTypeScript:    CategoryScript,
	PackageTypeNPM:       CategoryScript,
	PackageTypeCDN:       CategoryScript,
	PackageTypeWebsite:   CategoryScript,
	PackageTypeWebpack:   CategoryScript,
	PackageTypeNode:      CategoryNode,
	PackageTypeWasm:      CategoryWasm,
	PackageTypeExtension: CategoryExtension,
	PackageTypeInternals: CategoryEngine,
	PackageTypeRegExp:    CategoryRegExp,
	PackageTypeRoot:      CategoryRoot,
	PackageTypeProgram:   CategoryProgram,
	PackageTypeGC:        CategoryGC,
	PackageTypeIdle:      CategoryIdle,
	PackageTypeNoSamples: CategoryNoSamples,
}

var vmStatePackages = map[string]PackageType{
	frame.ProgramName:   PackageTypeProgram,
	frame.IdleName:      PackageTypeIdle,
	frame.GCName:        PackageTypeGC,
	frame.NoSamplesName: PackageTypeNoSamples,
}

// DisplayName returns Name, falling back to Path.
func (m Module) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Path
}

// DisplayName returns the package name with its version when known.
func (p Package) DisplayName() string {
	if p.Version != "" {
		return p.Name + "@" + p.Version
	}
	return p.Name
}

// packageRef identifies a package before it is resolved.
type packageRef struct {
	Type     PackageType
	Name     string
	Version  string
	Registry string
}

func (r packageRef) key() string {
	var b strings.Builder
	b.WriteString(string(r.Type))
	b.WriteByte(':')
	b.WriteString(r.Name)
	if r.Version != "" {
		b.WriteByte('@')
		b.WriteString(r.Version)
	}
	if r.Registry != "" {
		b.WriteString(" (")
		b.WriteString(r.Registry)
		b.WriteByte(')')
	}
	return b.String()
}

// moduleRef is the canonical reference a module is memoized by.
func moduleRef(desc frame.Descriptor, kind frame.Kind) string {
	switch kind {
	case frame.KindRoot, frame.KindVMState:
		return desc.FunctionName
	case frame.KindRegExp:
		return "(regexp)"
	}
	if desc.URL == "" {
		return "(internals)"
	}
	return desc.URL
}

func (d *Dictionary) resolveModule(desc frame.Descriptor, kind frame.Kind) uint32 {
	ref := moduleRef(desc, kind)
	if id, ok := d.moduleIndex[ref]; ok {
		return id
	}

	m, pkg := classifyModule(ref, kind)
	m.ID = uint32(len(d.modules))
	m.Package = d.resolvePackage(pkg)
	d.modules = append(d.modules, m)
	d.moduleIndex[ref] = m.ID
	return m.ID
}

func (d *Dictionary) resolvePackage(ref packageRef) uint32 {
	key := ref.key()
	if id, ok := d.packageIndex[key]; ok {
		return id
	}
	category, ok := packageCategories[ref.Type]
	if !ok {
		category = CategoryUnknown
	}
	p := Package{
		ID:       uint32(len(d.packages)),
		Type:     ref.Type,
		Name:     ref.Name,
		Version:  ref.Version,
		Registry: ref.Registry,
		Ref:      key,
		Category: d.ResolveCategory(category),
	}
	d.packages = append(d.packages, p)
	d.packageIndex[key] = p.ID
	return p.ID
}

// ResolveCategory returns the id of the category with the given name.
func (d *Dictionary) ResolveCategory(name string) uint32 {
	if name == "" {
		name = CategoryUnknown
	}
	if id, ok := d.categoryIndex[name]; ok {
		return id
	}
	c := Category{ID: uint32(len(d.categories)), Name: name}
	d.categories = append(d.categories, c)
	d.categoryIndex[name] = c.ID
	return c.ID
}

// BackfillPackageName sets the display name of the website package serving
// origin, unless it already differs from the origin itself.
func (d *Dictionary) BackfillPackageName(origin, name string) bool {
	if name == "" {
		return false
	}
	id, ok := d.packageIndex[packageRef{Type: PackageTypeWebsite, Name: origin}.key()]
	if !ok || d.packages[id].Name != origin {
		return false
	}
	d.packages[id].Name = name
	return true
}

func classifyModule(ref string, kind frame.Kind) (Module, packageRef) {
	switch kind {
	case frame.KindRoot:
		return Module{Type: ModuleTypeRoot, Name: ref, Path: ref},
			packageRef{Type: PackageTypeRoot, Name: ref}
	case frame.KindVMState:
		t, ok := vmStatePackages[ref]
		if !ok {
			t = PackageTypeUnknown
		}
		return Module{Type: ModuleTypeVMState, Name: ref, Path: ref},
			packageRef{Type: t, Name: ref}
	case frame.KindRegExp:
		return Module{Type: ModuleTypeRegExp, Name: ref, Path: ref},
			packageRef{Type: PackageTypeRegExp, Name: ref}
	}
	if ref == "(internals)" {
		return Module{Type: ModuleTypeInternals, Name: ref, Path: ref},
			packageRef{Type: PackageTypeInternals, Name: ref}
	}
	return classifyURL(ref)
}

func classifyURL(raw string) (Module, packageRef) {
	m := Module{Path: raw}
	lower := strings.ToLower(raw)

	switch {
	case strings.HasPrefix(lower, "node:"):
		m.Type = ModuleTypeNode
		m.Name = raw
		m.PackagePath = raw[len("node:"):]
		return m, packageRef{Type: PackageTypeNode, Name: "node"}

	case strings.HasPrefix(lower, "wasm:"):
		m.Type = ModuleTypeWasm
		m.Name = strings.TrimLeft(raw[len("wasm:"):], "/")
		return m, packageRef{Type: PackageTypeWasm, Name: "(wasm)"}

	case strings.HasPrefix(lower, "webpack-internal:") || strings.HasPrefix(lower, "webpack:"):
		rest := raw[strings.IndexByte(raw, ':')+1:]
		rest = strings.TrimLeft(rest, "/")
		m.Type = ModuleTypeWebpack
		if info := packageutil.ParseNodePackageFromPath("/" + rest); info.Package != "" {
			m.Name = info.Path
			m.PackagePath = info.Path
			return m, packageRef{Type: PackageTypeNPM, Name: info.Package}
		}
		// webpack://<app>/./src/file.js
		app := "(webpack)"
		if i := strings.IndexByte(rest, '/'); i > 0 && !strings.HasPrefix(rest, ".") {
			app = rest[:i]
			rest = rest[i+1:]
		}
		rest = strings.TrimPrefix(rest, "./")
		m.Name = rest
		m.PackagePath = rest
		return m, packageRef{Type: PackageTypeWebpack, Name: app}

	case strings.HasPrefix(lower, "chrome-extension:") || strings.HasPrefix(lower, "moz-extension:"):
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			break
		}
		m.Type = ModuleTypeExtension
		m.Name = strings.TrimPrefix(u.Path, "/")
		m.PackagePath = m.Name
		return m, packageRef{Type: PackageTypeExtension, Name: u.Scheme + "://" + u.Host}

	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			break
		}
		m.Type = ModuleTypeScript
		if match, ok := packageutil.MatchRegistry(u); ok {
			m.Name = match.Path
			m.PackagePath = match.Path
			return m, packageRef{
				Type:     PackageTypeCDN,
				Name:     match.Package,
				Version:  match.Version,
				Registry: match.Registry,
			}
		}
		if info := packageutil.ParseNodePackageFromPath(u.Path); info.Package != "" {
			m.Name = info.Path
			m.PackagePath = info.Path
			return m, packageRef{Type: PackageTypeNPM, Name: info.Package}
		}
		m.Name = strings.TrimPrefix(u.Path, "/")
		m.PackagePath = m.Name
		return m, packageRef{Type: PackageTypeWebsite, Name: u.Scheme + "://" + u.Host}

	case strings.HasPrefix(lower, "file://") || isAbsolutePath(raw):
		p := raw
		if strings.HasPrefix(lower, "file://") {
			if u, err := url.Parse(raw); err == nil {
				p = u.Path
			}
		}
		m.Type = ModuleTypeScript
		if info := packageutil.ParseNodePackageFromPath(p); info.Package != "" {
			m.Name = info.Path
			m.PackagePath = info.Path
			return m, packageRef{Type: PackageTypeNPM, Name: info.Package}
		}
		m.Name = path.Base(p)
		m.PackagePath = p
		return m, packageRef{Type: PackageTypeScript, Name: "(script)"}

	case !strings.Contains(raw, ":") && strings.HasSuffix(lower, ".js"):
		// node before the node: scheme, e.g. internal/timers.js or events.js
		m.Type = ModuleTypeNode
		m.Name = "node:" + strings.TrimSuffix(raw, ".js")
		m.PackagePath = raw
		return m, packageRef{Type: PackageTypeNode, Name: "node"}
	}

	m.Type = ModuleTypeUnknown
	m.Name = raw
	return m, packageRef{Type: PackageTypeUnknown, Name: "(unknown)"}
}

func isAbsolutePath(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	// C:\ or C:/
	return len(p) > 2 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') &&
		(p[0] >= 'a' && p[0] <= 'z' || p[0] >= 'A' && p[0] <= 'Z')
}
