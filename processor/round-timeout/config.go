package roundtimeout

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

// timeoutSchema defines the configuration schema.
var timeoutSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the round-timeout component.
type Config struct {
	// CheckIntervalSeconds is how often to scan for expired rounds.
	CheckIntervalSeconds int `json:"check_interval_seconds" schema:"type:int,description:Seconds between scans for expired rounds,category:basic,default:30"`

	// MaxCompromiseRounds caps negotiation rounds before escalation. Must
	// match the case-api setting so both resolve expiry the same way.
	MaxCompromiseRounds int `json:"max_compromise_rounds" schema:"type:int,description:Maximum negotiation rounds before a case escalates,category:basic,default:3"`

	// DeadlinePolicy is what happens on round expiry: compromise or escalate.
	DeadlinePolicy string `json:"deadline_policy" schema:"type:string,description:Round expiry handling (compromise or escalate),category:basic,default:compromise"`

	// NearAgreementSpread flags disagreements whose amounts are this close.
	NearAgreementSpread float64 `json:"near_agreement_spread" schema:"type:float,description:Relative amount spread flagged as near agreement,category:advanced,default:0.1"`

	// ModelDefault is the preferred model for compromise synthesis.
	// Empty keeps the registry's stock chain.
	ModelDefault string `json:"model_default" schema:"type:string,description:Preferred model for compromise synthesis,category:advanced"`

	// ModelEndpoint is the OpenAI-compatible endpoint serving ModelDefault.
	ModelEndpoint string `json:"model_endpoint" schema:"type:string,description:OpenAI-compatible endpoint URL for the preferred model,category:advanced"`

	// ModelTemperature is the sampling temperature for generation; 0 uses
	// the endpoint default.
	ModelTemperature float64 `json:"model_temperature" schema:"type:float,description:Sampling temperature for compromise synthesis,category:advanced,default:0.2"`

	// ModelTimeoutSeconds bounds one model request; 0 uses the client
	// default.
	ModelTimeoutSeconds int `json:"model_timeout_seconds" schema:"type:int,description:Seconds allowed per model request (0 for client default),category:advanced"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		CheckIntervalSeconds: 30,
		MaxCompromiseRounds:  3,
		DeadlinePolicy:       string(negotiation.DeadlineCompromise),
		NearAgreementSpread:  0.1,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("check_interval_seconds must be positive")
	}
	return c.engineConfig().Validate()
}

// checkInterval returns the scan interval as a duration.
func (c *Config) checkInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// engineConfig projects the component config onto the engine config.
func (c *Config) engineConfig() negotiation.Config {
	return negotiation.Config{
		MaxCompromiseRounds: c.MaxCompromiseRounds,
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
