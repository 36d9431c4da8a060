package caseapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the case-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "case-api",
		Factory:     NewComponent,
		Schema:      caseAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "accord",
		Description: "HTTP endpoints for filing, negotiating and settling dispute cases",
		Version:     "0.1.0",
	})
}
