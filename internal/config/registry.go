package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/chriseon/relay/internal/provider"
)

// openAICompatParams are the adapter settings for OpenAI-protocol
// providers.
type openAICompatParams struct {
	BaseURL string `mapstructure:"base_url"`
}

type anthropicParams struct {
	BaseURL string `mapstructure:"base_url"`
}

type geminiParams struct {
	BaseURL string `mapstructure:"base_url"`
}

type mockParams struct {
	Reply     string `mapstructure:"reply"`
	ChunkSize int    `mapstructure:"chunk_size"`
}

// BuildRegistry constructs the provider registry from the configured
// adapter declarations.
func BuildRegistry(cfg *Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	for _, pc := range cfg.Providers {
		adapter, err := buildAdapter(pc)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		reg.Register(adapter)
	}
	return reg, nil
}

func buildAdapter(pc ProviderConfig) (provider.Adapter, error) {
	name := strings.ToLower(pc.Name)
	if name == "" {
		return nil, fmt.Errorf("provider name is required")
	}

	switch pc.Kind {
	case "openai_compat":
		var params openAICompatParams
		if err := decodeParams(pc.Params, &params); err != nil {
			return nil, err
		}
		baseURL := params.BaseURL
		if baseURL == "" {
			baseURL = provider.OpenAIBaseURL
		}
		return provider.NewOpenAICompat(name, baseURL, nil), nil

	case "anthropic":
		var params anthropicParams
		if err := decodeParams(pc.Params, &params); err != nil {
			return nil, err
		}
		return provider.NewAnthropic(params.BaseURL, nil), nil

	case "gemini":
		var params geminiParams
		if err := decodeParams(pc.Params, &params); err != nil {
			return nil, err
		}
		return provider.NewGemini(params.BaseURL, nil), nil

	case "mock":
		var params mockParams
		if err := decodeParams(pc.Params, &params); err != nil {
			return nil, err
		}
		return &provider.MockAdapter{
			NameOverride: name,
			Reply:        params.Reply,
			ChunkSize:    params.ChunkSize,
		}, nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
}

// decodeParams decodes loosely typed YAML params into a typed adapter
// settings struct, rejecting unknown keys.
func decodeParams(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
