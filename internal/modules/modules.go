// Package modules extracts module references from the pipe-delimited module
// table of a processed crash, and reads and writes the flat CSV module list.
package modules

import (
	"iter"
	"strings"

	"symfetch/internal/types"
)

const (
	moduleTag       = "Module"
	fieldCodeFile   = 1
	fieldDebugFile  = 3
	fieldDebugID    = 4
	minModuleFields = fieldDebugID + 1
)

// Module is one module line: the code file (dll) plus the debug reference.
type Module struct {
	CodeFile string
	Ref      types.ModuleRef
}

// ParseLine parses a single module table line. It reports false for lines
// that are not module lines, have too few fields, or carry a ref that is
// unusable as a path.
func ParseLine(line string) (Module, bool) {
	line = strings.TrimRight(line, "\r")
	fields := strings.Split(line, "|")
	if len(fields) < minModuleFields || fields[0] != moduleTag {
		return Module{}, false
	}
	m := Module{
		CodeFile: fields[fieldCodeFile],
		Ref: types.ModuleRef{
			DebugFile: fields[fieldDebugFile],
			DebugID:   fields[fieldDebugID],
		},
	}
	if !m.Ref.Valid() {
		return Module{}, false
	}
	return m, true
}

// Scan lazily yields every valid module line of table in order.
func Scan(table string) iter.Seq[Module] {
	return func(yield func(Module) bool) {
		for len(table) > 0 {
			line := table
			if i := strings.IndexByte(table, '\n'); i >= 0 {
				line, table = table[:i], table[i+1:]
			} else {
				table = ""
			}
			if m, ok := ParseLine(line); ok {
				if !yield(m) {
					return
				}
			}
		}
	}
}

// Extract adds every module ref of table to set and returns how many were new.
func Extract(table string, set *types.CandidateSet) int {
	added := 0
	for m := range Scan(table) {
		if set.Add(m.Ref) {
			added++
		}
	}
	return added
}
