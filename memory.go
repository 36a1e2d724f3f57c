package rtconsole

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is the process-wide key→value store the agent reads and writes
// through tool calls. It outlives any single session: disconnecting does not
// clear it, so a reconnected agent picks up where it left off.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Snapshot returns a copy of the store with keys in sorted order.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// Instructions embeds the current store verbatim into the base instruction
// text. The result is pushed to the agent on every memory change so its
// context always reflects current memory.
func (m *Memory) Instructions(base string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.data) == 0 {
		return base
	}

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nThings you remember about this user:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, m.data[k])
	}

	return b.String()
}
