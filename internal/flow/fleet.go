package flow

import (
	"sync"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
)

// Fleet holds one flow controller per machine.
type Fleet struct {
	mu          sync.RWMutex
	controllers map[string]*Controller
}

// NewFleet creates an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{
		controllers: make(map[string]*Controller),
	}
}

// Add registers the machine's controller. A second controller for the
// same code replaces the first.
func (f *Fleet) Add(deviceCode string, c *Controller) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controllers[deviceCode] = c
}

// Get returns the machine's controller.
func (f *Fleet) Get(deviceCode string) (*Controller, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c, ok := f.controllers[deviceCode]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "no controller for device %s", deviceCode)
	}
	return c, nil
}

// Codes lists the registered machines.
func (f *Fleet) Codes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	codes := make([]string, 0, len(f.controllers))
	for code := range f.controllers {
		codes = append(codes, code)
	}
	return codes
}
