package testutil

import "github.com/vk/flowloop/internal/registry"

// SimpleModule is a test helper for registering ad-hoc node definitions.
type SimpleModule struct {
	Definitions []registry.Definition
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	for _, def := range m.Definitions {
		r.Register(def)
	}
}
