// Package routing implements the LLM proxy's provider routing table: a
// default provider plus a map of provider identifier to ProviderDetails,
// resolved per request by splitting the caller-supplied model string on its
// first '/'.
package routing

// ProviderDetails is the dispatch target for one provider identifier: its
// three OpenAI-shaped endpoints, the credential to present as a bearer
// token, and any additional headers a specific provider's API requires
// (e.g. a ChatGPT-Account-ID header for OpenAI's Codex-backed surface).
type ProviderDetails struct {
	ChatCompletionsEndpoint string            `json:"chat_completions_endpoint" yaml:"chat_completions_endpoint" mapstructure:"chat_completions_endpoint"`
	ResponsesEndpoint       string            `json:"responses_endpoint" yaml:"responses_endpoint" mapstructure:"responses_endpoint"`
	ModelsEndpoint          string            `json:"models_endpoint" yaml:"models_endpoint" mapstructure:"models_endpoint"`
	Credential              string            `json:"credential" yaml:"credential" mapstructure:"credential"`
	ExtraHeaders            map[string]string `json:"extra_headers,omitempty" yaml:"extra_headers,omitempty" mapstructure:"extra_headers"`
}

// Table is a default provider identifier plus a mapping from provider
// identifier to ProviderDetails.
type Table struct {
	DefaultProvider string                     `json:"default_provider" yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderDetails `json:"providers" yaml:"providers" mapstructure:"providers"`
}

// ParseModelSpec splits a caller-supplied model string on its first '/'.
// If the prefix names a known provider, it is returned alongside the
// remainder as the model name proper; otherwise the whole string is
// returned unchanged as the model name, to be dispatched to the default
// provider.
func ParseModelSpec(spec string, known map[string]ProviderDetails) (provider, model string) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '/' {
			prefix, rest := spec[:i], spec[i+1:]
			if _, ok := known[prefix]; ok {
				return prefix, rest
			}
			break
		}
	}
	return "", spec
}
