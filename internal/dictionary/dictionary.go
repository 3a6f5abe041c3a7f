package dictionary

import (
	"github.com/rs/zerolog/log"

	"github.com/getsentry/cpuprof/internal/frame"
)

type (
	// CallFrame is a deduplicated call frame. Its ID is 1-based and stable.
	CallFrame struct {
		ID       uint32
		ScriptID int64
		URL      string
		Name     string
		Line     int
		Column   int
		Kind     frame.Kind
		Key      string
		Module   uint32
		Package  uint32
		Category uint32
	}

	// CodeInfo is a compiled code record for a call frame.
	CodeInfo struct {
		Tier      string
		Size      int
		Timestamp int64
	}

	// Dictionary owns every identity resolved for a profile. Entries are
	// append-only: nothing is removed or changed after creation, besides the
	// display name backfill of packages.
	Dictionary struct {
		callFrames []CallFrame
		modules    []Module
		packages   []Package
		categories []Category

		// scriptID -> function name -> (line, column) -> call frame id
		callFrameIndex   map[int64]map[string]map[[2]int]uint32
		syntheticScripts map[string]int64
		scriptURLs       map[int64]string

		moduleIndex   map[string]uint32
		packageIndex  map[string]uint32
		categoryIndex map[string]uint32

		codes map[uint32][]CodeInfo
	}
)

func New() *Dictionary {
	return &Dictionary{
		// index 0 is reserved in every table
		callFrames:       make([]CallFrame, 1),
		modules:          make([]Module, 1),
		packages:         make([]Package, 1),
		categories:       make([]Category, 1),
		callFrameIndex:   make(map[int64]map[string]map[[2]int]uint32),
		syntheticScripts: make(map[string]int64),
		scriptURLs:       make(map[int64]string),
		moduleIndex:      make(map[string]uint32),
		packageIndex:     make(map[string]uint32),
		categoryIndex:    make(map[string]uint32),
		codes:            make(map[uint32][]CodeInfo),
	}
}

// NormalizeScriptID turns a raw script id into a number. Non-numeric ids get
// a stable negative id, in order of first appearance.
func (d *Dictionary) NormalizeScriptID(id frame.ScriptID) int64 {
	if n, ok := id.Int(); ok {
		return n
	}
	if n, ok := d.syntheticScripts[string(id)]; ok {
		return n
	}
	n := -int64(len(d.syntheticScripts) + 1)
	d.syntheticScripts[string(id)] = n
	return n
}

// RegisterScript records the URL of a script. Call frames with no URL pick it
// up when they are resolved.
func (d *Dictionary) RegisterScript(id frame.ScriptID, url string) {
	if url == "" {
		return
	}
	d.scriptURLs[d.NormalizeScriptID(id)] = url
}

// ResolveCallFrame returns the call frame for the descriptor, creating it
// along with its module, package and category the first time it is seen.
func (d *Dictionary) ResolveCallFrame(desc frame.Descriptor) CallFrame {
	scriptID := d.NormalizeScriptID(desc.ScriptID)
	if scriptID == 0 && desc.URL != "" {
		scriptID = d.NormalizeScriptID(frame.ScriptID("url:" + desc.URL))
	}
	if desc.URL == "" {
		if u, ok := d.scriptURLs[scriptID]; ok {
			desc.URL = u
		}
	}

	byName, ok := d.callFrameIndex[scriptID]
	if !ok {
		byName = make(map[string]map[[2]int]uint32)
		d.callFrameIndex[scriptID] = byName
	}
	byPosition, ok := byName[desc.FunctionName]
	if !ok {
		byPosition = make(map[[2]int]uint32)
		byName[desc.FunctionName] = byPosition
	}
	position := [2]int{desc.LineNumber, desc.ColumnNumber}
	if id, ok := byPosition[position]; ok {
		return d.callFrames[id]
	}

	kind := desc.Kind()
	module := d.resolveModule(desc, kind)
	cf := CallFrame{
		ID:       uint32(len(d.callFrames)),
		ScriptID: scriptID,
		URL:      desc.URL,
		Name:     desc.DisplayName(),
		Line:     desc.LineNumber,
		Column:   desc.ColumnNumber,
		Kind:     kind,
		Key:      desc.ID(),
		Module:   module,
		Package:  d.modules[module].Package,
		Category: d.packages[d.modules[module].Package].Category,
	}
	d.callFrames = append(d.callFrames, cf)
	byPosition[position] = cf.ID
	return cf
}

// ResolveCallFrames resolves a list of descriptors which is expected to hold
// distinct call frames, and warns when some of them collapse.
func (d *Dictionary) ResolveCallFrames(descs []frame.Descriptor) []uint32 {
	ids := make([]uint32, len(descs))
	seen := make(map[uint32]struct{}, len(descs))
	for i, desc := range descs {
		ids[i] = d.ResolveCallFrame(desc).ID
		seen[ids[i]] = struct{}{}
	}
	if len(seen) < len(descs) {
		log.Warn().
			Int("call_frames", len(descs)).
			Int("resolved", len(seen)).
			Msg("duplicate call frame descriptors")
	}
	return ids
}

// AddCodes appends compiled code records to a call frame.
func (d *Dictionary) AddCodes(callFrame uint32, codes ...CodeInfo) {
	if callFrame == 0 || int(callFrame) >= len(d.callFrames) || len(codes) == 0 {
		return
	}
	d.codes[callFrame] = append(d.codes[callFrame], codes...)
}

// Codes returns the compiled code history of a call frame, if any.
func (d *Dictionary) Codes(callFrame uint32) []CodeInfo {
	return d.codes[callFrame]
}

func (d *Dictionary) CallFrame(id uint32) CallFrame {
	return d.callFrames[id]
}

func (d *Dictionary) Module(id uint32) Module {
	return d.modules[id]
}

func (d *Dictionary) Package(id uint32) Package {
	return d.packages[id]
}

func (d *Dictionary) Category(id uint32) Category {
	return d.categories[id]
}

// Sizes of the tables, reserved slot included.
func (d *Dictionary) CallFramesSize() int { return len(d.callFrames) }
func (d *Dictionary) ModulesSize() int    { return len(d.modules) }
func (d *Dictionary) PackagesSize() int   { return len(d.packages) }
func (d *Dictionary) CategoriesSize() int { return len(d.categories) }

// CallFrameModules maps every call frame id to its module id.
func (d *Dictionary) CallFrameModules() []uint32 {
	m := make([]uint32, len(d.callFrames))
	for i := 1; i < len(d.callFrames); i++ {
		m[i] = d.callFrames[i].Module
	}
	return m
}

// ModulePackages maps every module id to its package id.
func (d *Dictionary) ModulePackages() []uint32 {
	m := make([]uint32, len(d.modules))
	for i := 1; i < len(d.modules); i++ {
		m[i] = d.modules[i].Package
	}
	return m
}

// PackageCategories maps every package id to its category id.
func (d *Dictionary) PackageCategories() []uint32 {
	m := make([]uint32, len(d.packages))
	for i := 1; i < len(d.packages); i++ {
		m[i] = d.packages[i].Category
	}
	return m
}

// Keys returns the set of call frame keys known to the dictionary.
func (d *Dictionary) Keys() map[string]struct{} {
	keys := make(map[string]struct{}, len(d.callFrames))
	for _, cf := range d.callFrames[1:] {
		keys[cf.Key] = struct{}{}
	}
	return keys
}
