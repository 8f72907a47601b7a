package modules

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"symfetch/internal/types"
)

// ReadCSV reads a "dll,pdb,uuid" module list. The format has no quoting, so
// lines are split on commas directly; rows without exactly three fields, or
// with an unusable ref, are ignored.
func ReadCSV(r io.Reader) ([]Module, error) {
	var mods []Module
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			continue
		}
		m := Module{
			CodeFile: fields[0],
			Ref:      types.ModuleRef{DebugFile: fields[1], DebugID: fields[2]},
		}
		if !m.Ref.Valid() {
			continue
		}
		mods = append(mods, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read module list: %w", err)
	}
	return mods, nil
}

// WriteCSV writes mods in the format ReadCSV accepts.
func WriteCSV(w io.Writer, mods []Module) error {
	bw := bufio.NewWriter(w)
	for _, m := range mods {
		if _, err := fmt.Fprintf(bw, "%s,%s,%s\n", m.CodeFile, m.Ref.DebugFile, m.Ref.DebugID); err != nil {
			return fmt.Errorf("failed to write module list: %w", err)
		}
	}
	return bw.Flush()
}

// CandidatesFrom builds a candidate set from a module list.
func CandidatesFrom(mods []Module) *types.CandidateSet {
	set := types.NewCandidateSet()
	for _, m := range mods {
		set.Add(m.Ref)
	}
	return set
}
