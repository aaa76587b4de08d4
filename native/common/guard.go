package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when the module is paused. A nil view or empty
// module name disables the check so engines can run without pause plumbing.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is an in-memory pause set shared by the node's engines.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauses() *Pauses {
	return &Pauses{paused: make(map[string]bool)}
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[normaliseModule(module)]
}

func (p *Pauses) Set(module string, paused bool) {
	if p == nil {
		return
	}
	name := normaliseModule(module)
	if name == "" {
		return
	}
	p.mu.Lock()
	p.paused[name] = paused
	p.mu.Unlock()
}

func normaliseModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
