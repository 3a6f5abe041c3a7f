package frame

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
)

// Well-known function names emitted by V8 for synthetic frames.
const (
	RootName      = "(root)"
	ProgramName   = "(program)"
	IdleName      = "(idle)"
	GCName        = "(garbage collector)"
	NoSamplesName = "(no samples)"

	AnonymousFunctionName = "(anonymous function)"
	ScriptName            = "(script)"
	UnknownName           = "(unknown)"
)

type Kind uint8

const (
	KindFunction Kind = iota
	KindScript
	KindRegExp
	KindRoot
	KindVMState
)

var kindNames = [...]string{
	KindFunction: "function",
	KindScript:   "script",
	KindRegExp:   "regexp",
	KindRoot:     "root",
	KindVMState:  "vm-state",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

var regexpFunctionName = regexp.MustCompile(`^/.*/[dgimsuvy]*$`)

type (
	// ScriptID holds a script id as it came in. V8 emits numbers, while some
	// converters emit strings.
	ScriptID string

	// Descriptor is a call frame as it appears in a raw profile.
	Descriptor struct {
		ScriptID     ScriptID `json:"scriptId"`
		URL          string   `json:"url"`
		FunctionName string   `json:"functionName"`
		LineNumber   int      `json:"lineNumber"`
		ColumnNumber int      `json:"columnNumber"`
		CodeType     string   `json:"codeType,omitempty"`
	}
)

func (s *ScriptID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		v, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*s = ScriptID(v)
		return nil
	}
	*s = ScriptID(b)
	return nil
}

func (s ScriptID) MarshalJSON() ([]byte, error) {
	if n, ok := s.Int(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return []byte(strconv.Quote(string(s))), nil
}

// Int returns the numeric value of the script id if it is one.
func (s ScriptID) Int() (int64, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Kind classifies the frame based on its name and location.
func (d Descriptor) Kind() Kind {
	switch d.FunctionName {
	case RootName:
		return KindRoot
	case ProgramName, IdleName, GCName, NoSamplesName:
		return KindVMState
	}
	if d.URL == "" && regexpFunctionName.MatchString(d.FunctionName) {
		return KindRegExp
	}
	if d.FunctionName == "" && d.URL != "" && d.LineNumber <= 0 && d.ColumnNumber <= 0 {
		return KindScript
	}
	return KindFunction
}

// DisplayName returns a non-empty name for the frame.
func (d Descriptor) DisplayName() string {
	if d.FunctionName != "" {
		return d.FunctionName
	}
	if d.Kind() == KindScript {
		return ScriptName
	}
	if d.URL == "" && d.LineNumber <= 0 && d.ColumnNumber <= 0 {
		return UnknownName
	}
	return AnonymousFunctionName
}

// ID returns a stable identifier for the frame that does not depend on the
// script id, since script ids are only meaningful inside one profile.
func (d Descriptor) ID() string {
	hash := md5.Sum([]byte(fmt.Sprintf("%s:%s:%d:%d", d.URL, d.FunctionName, d.LineNumber, d.ColumnNumber)))
	return hex.EncodeToString(hash[:])
}
