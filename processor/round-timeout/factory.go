package roundtimeout

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the round-timeout component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "round-timeout",
		Factory:     NewComponent,
		Schema:      timeoutSchema,
		Type:        "processor",
		Protocol:    "internal",
		Domain:      "accord",
		Description: "Resolves negotiation rounds whose selection window has passed",
		Version:     "0.1.0",
	})
}
