package nbexport

import (
	"fmt"
	"sync"
)

// BackendRegistry stores backends keyed by capability bit.
type BackendRegistry struct {
	mu       sync.RWMutex
	backends map[Capability]Backend
}

// NewBackendRegistry creates an empty registry.
func NewBackendRegistry() *BackendRegistry {
	return &BackendRegistry{backends: make(map[Capability]Backend)}
}

// Register adds a backend. Each backend must claim exactly one bit of the
// closed capability set; anything else is a programming error surfaced here.
func (r *BackendRegistry) Register(b Backend) error {
	if b == nil {
		return NewError(KindValidation, "backend is required", nil)
	}
	bit := b.Capability()
	if _, known := capabilityNames[bit]; !known {
		return NewError(KindValidation, fmt.Sprintf("backend %q claims unknown capability %v", b.Name(), bit), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[bit]; exists {
		return NewError(KindValidation, fmt.Sprintf("backend for %q already registered", CapabilityName(bit)), nil)
	}
	r.backends[bit] = b
	return nil
}

// Resolve returns the backend registered for a capability bit.
func (r *BackendRegistry) Resolve(bit Capability) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[bit]
	return b, ok
}

// Ordered returns registered backends in fallback priority order: most
// broadly compatible first, least portable last.
func (r *BackendRegistry) Ordered() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, 0, len(r.backends))
	for _, bit := range capabilityOrder {
		if b, ok := r.backends[bit]; ok {
			out = append(out, b)
		}
	}
	return out
}

// SummaryRegistry stores summary renderers by format.
type SummaryRegistry struct {
	mu        sync.RWMutex
	renderers map[Format]SummaryRenderer
}

// NewSummaryRegistry creates a registry.
func NewSummaryRegistry() *SummaryRegistry {
	return &SummaryRegistry{renderers: make(map[Format]SummaryRenderer)}
}

// Register adds a summary renderer for a format.
func (r *SummaryRegistry) Register(format Format, renderer SummaryRenderer) error {
	if format == "" {
		return NewError(KindValidation, "summary format is required", nil)
	}
	if renderer == nil {
		return NewError(KindValidation, "summary renderer is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.renderers[format]; exists {
		return NewError(KindValidation, fmt.Sprintf("summary renderer for %q already registered", format), nil)
	}
	r.renderers[format] = renderer
	return nil
}

// Resolve returns the summary renderer for the format.
func (r *SummaryRegistry) Resolve(format Format) (SummaryRenderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[format]
	return renderer, ok
}
