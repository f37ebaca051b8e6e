package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
)

// RetryWaits are the pauses between attempts, by failure class.
type RetryWaits struct {
	RateLimit   []time.Duration
	ServerError []time.Duration
}

// DefaultRetryWaits keeps the interactive path short: the scorer runs under a per-turn timeout.
var DefaultRetryWaits = RetryWaits{
	RateLimit:   []time.Duration{500 * time.Millisecond, 1 * time.Second},
	ServerError: []time.Duration{250 * time.Millisecond, 750 * time.Millisecond},
}

// CallWithRetry issues a Responses API call, retrying rate-limit and server errors. Waits are cut
// short when ctx is done.
func CallWithRetry(ctx context.Context, client *openai.Client, params responses.ResponseNewParams, waits RetryWaits) (*responses.Response, error) {
	maxRetries := max(len(waits.RateLimit), len(waits.ServerError)) + 1

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := client.Responses.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		var wait []time.Duration
		switch {
		case isRateLimitError(err):
			wait = waits.RateLimit
		case isServerError(err):
			wait = waits.ServerError
		default:
			return nil, err
		}
		if attempt >= len(wait) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(wait[attempt]):
		}
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues", maxRetries)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

// GenerateSchema reflects T into a strict-mode JSON schema.
func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureOpenAICompliance closes every object and marks all of its properties required.
func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}
}
