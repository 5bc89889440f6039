package comms

import (
	"context"

	"github.com/fleetforge/conductor/internal/comms/provider"
	"github.com/fleetforge/conductor/pkg/model"
)

// ResolveProvider picks the concrete backend for an endpoint's declared
// Provider field, falling back to the generic JSON-over-HTTP path for an
// unrecognized or empty value (spec.md §6).
func ResolveProvider(endpoint model.ModelEndpoint, pool *Pool) Provider {
	switch endpoint.Provider {
	case "anthropic":
		return provider.NewAnthropic(endpoint.APIKey, endpoint.URL)
	case "openai":
		return provider.NewOpenAI(endpoint.APIKey, endpoint.URL)
	case "bedrock":
		region := endpoint.URL
		if region == "" {
			region = "us-east-1"
		}
		be, err := provider.NewBedrock(context.Background(), region)
		if err != nil {
			return newGenericProvider(endpoint.URL, endpoint.APIKey, pool)
		}
		return be
	default:
		return newGenericProvider(endpoint.URL, endpoint.APIKey, pool)
	}
}
