package providers

import (
	"net/http"
	"os"
	"strings"

	"github.com/accordhq/accord/llm"
)

// OpenAIProvider talks to hosted OpenAI-compatible services that require
// bearer auth: api.openai.com itself or an OpenRouter deployment. The wire
// format is the same as Ollama's, so only the URL and headers differ.
type OpenAIProvider struct {
	OllamaProvider // shared chat-completions request/response shape
}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

// Name returns the provider identifier.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// BuildURL resolves the chat-completions URL, defaulting to the hosted
// OpenAI API when the endpoint config leaves the URL empty.
func (o *OpenAIProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}

	return baseURL + "/chat/completions"
}

// SetHeaders adds the bearer token and, when routed through OpenRouter,
// its attribution headers. All values come from the environment so keys
// never live in config files.
func (o *OpenAIProvider) SetHeaders(req *http.Request) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}
