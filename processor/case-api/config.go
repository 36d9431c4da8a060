package caseapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/accordhq/accord/llm"
	"github.com/accordhq/accord/model"
	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/proposal"
)

// caseAPISchema defines the configuration schema.
var caseAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the case-api component.
type Config struct {
	// MaxCompromiseRounds caps negotiation rounds before escalation.
	MaxCompromiseRounds int `json:"max_compromise_rounds" schema:"type:int,description:Maximum negotiation rounds before a case escalates,category:basic,default:3"`

	// SelectionWindowSeconds is how long a round stays open; 0 disables
	// deadlines.
	SelectionWindowSeconds int `json:"selection_window_seconds" schema:"type:int,description:Seconds a round accepts selections (0 for no deadline),category:basic,default:0"`

	// DeadlinePolicy is what happens on round expiry: compromise or escalate.
	DeadlinePolicy string `json:"deadline_policy" schema:"type:string,description:Round expiry handling (compromise or escalate),category:basic,default:compromise"`

	// NearAgreementSpread flags disagreements whose amounts are this close.
	NearAgreementSpread float64 `json:"near_agreement_spread" schema:"type:float,description:Relative amount spread flagged as near agreement,category:advanced,default:0.1"`

	// ModelDefault is the preferred model for analysis and synthesis.
	// Empty keeps the registry's stock chain.
	ModelDefault string `json:"model_default" schema:"type:string,description:Preferred model for settlement analysis and synthesis,category:advanced"`

	// ModelEndpoint is the OpenAI-compatible endpoint serving ModelDefault.
	ModelEndpoint string `json:"model_endpoint" schema:"type:string,description:OpenAI-compatible endpoint URL for the preferred model,category:advanced"`

	// ModelTemperature is the sampling temperature for generation; 0 uses
	// the endpoint default.
	ModelTemperature float64 `json:"model_temperature" schema:"type:float,description:Sampling temperature for settlement generation,category:advanced,default:0.2"`

	// ModelTimeoutSeconds bounds one model request; 0 uses the client
	// default.
	ModelTimeoutSeconds int `json:"model_timeout_seconds" schema:"type:int,description:Seconds allowed per model request (0 for client default),category:advanced"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxCompromiseRounds: 3,
		DeadlinePolicy:      string(negotiation.DeadlineCompromise),
		NearAgreementSpread: 0.1,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.SelectionWindowSeconds < 0 {
		return fmt.Errorf("selection_window_seconds must be non-negative")
	}
	return c.engineConfig().Validate()
}

// engineConfig projects the component config onto the engine config.
func (c *Config) engineConfig() negotiation.Config {
	return negotiation.Config{
		MaxCompromiseRounds: c.MaxCompromiseRounds,
		SelectionWindow:     time.Duration(c.SelectionWindowSeconds) * time.Second,
		DeadlinePolicy:      negotiation.DeadlinePolicy(c.DeadlinePolicy),
		NearAgreementSpread: c.NearAgreementSpread,
	}
}

// generator builds the LLM-backed proposal generator from the model
// settings.
func (c *Config) generator(logger *slog.Logger) proposal.Generator {
	clientOpts := []llm.ClientOption{llm.WithLogger(logger)}
	if c.ModelTimeoutSeconds > 0 {
		clientOpts = append(clientOpts, llm.WithHTTPClient(&http.Client{
			Timeout: time.Duration(c.ModelTimeoutSeconds) * time.Second,
		}))
	}

	var genOpts []proposal.GeneratorOption
	if c.ModelTemperature > 0 {
		genOpts = append(genOpts, proposal.WithTemperature(c.ModelTemperature))
	}

	return proposal.NewLLMGenerator(
		llm.NewClient(model.NewRegistryWithDefault(c.ModelDefault, c.ModelEndpoint), clientOpts...),
		logger,
		genOpts...,
	)
}
