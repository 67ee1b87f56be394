package state

import "strings"

func pauseKey(module string) []byte {
	return append(append([]byte(nil), pausePrefix...), strings.ToLower(strings.TrimSpace(module))...)
}

// SetPaused toggles the pause flag for module.
func (m *Manager) SetPaused(module string, paused bool) error {
	if !paused {
		return m.KVDelete(pauseKey(module))
	}
	return m.KVPut(pauseKey(module), true)
}

// IsPaused reports whether module has been paused. Read failures are treated
// as paused.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.KVGet(pauseKey(module), &paused)
	if err != nil {
		return true
	}
	return ok && paused
}
