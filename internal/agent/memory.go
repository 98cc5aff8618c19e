package agent

import "unicode/utf8"

const failureSummaryLimit = 300

// failureMemory keeps the most recent failures, oldest evicted first.
type failureMemory struct {
	size    int
	entries []MemoryEntry
}

func newFailureMemory(size int) *failureMemory {
	if size < 1 {
		size = 1
	}
	return &failureMemory{size: size}
}

func (m *failureMemory) add(e MemoryEntry) {
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.size; over > 0 {
		m.entries = append([]MemoryEntry(nil), m.entries[over:]...)
	}
}

func (m *failureMemory) list() []MemoryEntry {
	return append([]MemoryEntry(nil), m.entries...)
}

func failureEntry(description, result string) MemoryEntry {
	return MemoryEntry{
		Query:             description,
		ResultRequirement: "Tool failed",
		SolutionSummary:   truncate(result, failureSummaryLimit),
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
