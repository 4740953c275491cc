package llvmir

import (
	"regexp"
	"strconv"
	"strings"
)

// LineSet is an ordered, duplicate-free list of source line numbers taken
// from one snapshot.
type LineSet []int

// Contains reports whether n is in the set.
func (s LineSet) Contains(n int) bool {
	for _, v := range s {
		if v == n {
			return true
		}
	}
	return false
}

// DiffResult partitions a "before" line set against an "after" one. Both
// slices keep the order of the before set.
type DiffResult struct {
	Retained []int `json:"retained" yaml:"retained"`
	Removed  []int `json:"removed" yaml:"removed"`
}

var lineAttrDefRe = regexp.MustCompile(`^!\d+ = .*line: \d`)

// ExtractLineSet returns the live source lines of a snapshot.
//
// Only definitions whose own text carries `line: N` are consulted; no
// scope bubbling happens here. Distinct debug references are taken in
// first-appearance order, mapped through those definitions, and the
// resulting line numbers deduplicated keeping the first occurrence.
// References without a direct line are dropped.
func ExtractLineSet(lines []Line) LineSet {
	direct := make(map[RefID]int)
	var scopes []RefID
	seenScope := make(map[RefID]bool)

	for _, l := range lines {
		if l.ScopeID != "" && !seenScope[l.ScopeID] {
			seenScope[l.ScopeID] = true
			scopes = append(scopes, l.ScopeID)
		}
		if id, n, ok := directLine(l.Text); ok {
			direct[id] = n
		}
	}

	set := LineSet{}
	seenLine := make(map[int]bool)
	for _, id := range scopes {
		n, ok := direct[id]
		if !ok || seenLine[n] {
			continue
		}
		seenLine[n] = true
		set = append(set, n)
	}
	return set
}

// directLine reads `!N = ... line: M...` textually: the id is everything
// before the first " = " and the line is the digits right after the first
// "line: ". Line 0 is not a source location.
func directLine(text string) (RefID, int, bool) {
	if !lineAttrDefRe.MatchString(text) {
		return "", 0, false
	}
	id, _, _ := strings.Cut(text, " = ")
	_, rest, _ := strings.Cut(text, "line: ")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return RefID(id), n, true
}

// Diff classifies every line of before as retained (still live in after) or
// removed. Presence in after only shows that some code still carries the
// line, not that the same instruction survived.
func Diff(before, after LineSet) DiffResult {
	live := make(map[int]bool, len(after))
	for _, n := range after {
		live[n] = true
	}
	res := DiffResult{Retained: []int{}, Removed: []int{}}
	for _, n := range before {
		if live[n] {
			res.Retained = append(res.Retained, n)
		} else {
			res.Removed = append(res.Removed, n)
		}
	}
	return res
}
