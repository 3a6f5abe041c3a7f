package analysis

import (
	"github.com/getsentry/cpuprof/internal/dictionary"
)

// Label describes a dictionary value of one of the trees.
type Label struct {
	// Key identifies the value across profiles.
	Key     string `json:"key"`
	Name    string `json:"name"`
	Module  string `json:"module,omitempty"`
	Package string `json:"package,omitempty"`
	URL     string `json:"url,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Label returns the label of a value of the named tree.
func (a *Analysis) Label(tree string, value uint32) Label {
	d := a.Dictionary
	switch tree {
	case TreeCallFrames:
		cf := d.CallFrame(value)
		return Label{
			Key:     cf.Key,
			Name:    cf.Name,
			Module:  d.Module(cf.Module).Name,
			Package: d.Package(cf.Package).Name,
			URL:     cf.URL,
			Line:    cf.Line,
			Column:  cf.Column,
		}
	case TreeModules:
		m := d.Module(value)
		return Label{
			Key:     moduleKey(m),
			Name:    m.Name,
			Module:  m.Name,
			Package: d.Package(m.Package).Name,
			URL:     m.Path,
		}
	case TreePackages:
		p := d.Package(value)
		return Label{Key: p.Ref, Name: p.Name, Package: p.Name}
	case TreeCategories:
		c := d.Category(value)
		return Label{Key: c.Name, Name: c.Name}
	}
	return Label{}
}

func moduleKey(m dictionary.Module) string {
	return string(m.Type) + ":" + m.Path
}
