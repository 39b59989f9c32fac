package client

import (
	"fmt"
	"maps"
	"net/url"
)

// Option keys lifted out of the option map instead of being merged into
// the request body.
const (
	OptionModel             = "model"
	OptionSystemInstruction = "system_instruction"
)

// GenerateOptions describes one generateContent call beyond the prompt.
type GenerateOptions struct {
	// Model overrides Config.DefaultModel when non-empty
	Model string

	// SystemInstruction is sent as system_instruction when non-nil, even
	// when it points at an empty string
	SystemInstruction *string

	// Options are merged verbatim into the top level of the request body,
	// e.g. "generationConfig" or "safetySettings". They win over the
	// fields the client sets itself. "model" and "system_instruction"
	// entries are lifted into Model and SystemInstruction first.
	Options map[string]any
}

// String returns a pointer to s, for GenerateOptions.SystemInstruction.
func String(s string) *string {
	return &s
}

// normalize lifts "model" and "system_instruction" out of Options. The
// dedicated fields win when both are set.
func (o GenerateOptions) normalize() (GenerateOptions, error) {
	_, hasModel := o.Options[OptionModel]
	_, hasSystem := o.Options[OptionSystemInstruction]
	if !hasModel && !hasSystem {
		return o, nil
	}

	lifted, err := ParseGenerateOptions(o.Options)
	if err != nil {
		return GenerateOptions{}, err
	}
	if o.Model != "" {
		lifted.Model = o.Model
	}
	if o.SystemInstruction != nil {
		lifted.SystemInstruction = o.SystemInstruction
	}
	return lifted, nil
}

// ParseGenerateOptions splits a loosely typed option map into model,
// system instruction and the remaining request fields. The input map is
// not modified.
func ParseGenerateOptions(values map[string]any) (GenerateOptions, error) {
	var opts GenerateOptions

	rest := maps.Clone(values)
	if v, ok := rest[OptionModel]; ok {
		s, ok := v.(string)
		if !ok {
			return GenerateOptions{}, newError(KindAPI, "option %q must be a string, got %T", OptionModel, v)
		}
		opts.Model = s
		delete(rest, OptionModel)
	}
	if v, ok := rest[OptionSystemInstruction]; ok {
		s, ok := v.(string)
		if !ok {
			return GenerateOptions{}, newError(KindAPI, "option %q must be a string, got %T", OptionSystemInstruction, v)
		}
		opts.SystemInstruction = &s
		delete(rest, OptionSystemInstruction)
	}
	if len(rest) > 0 {
		opts.Options = rest
	}
	return opts, nil
}

// Part is one piece of content; only text parts are sent.
type Part struct {
	Text string `json:"text"`
}

// Content is a list of parts.
type Content struct {
	Parts []Part `json:"parts"`
}

// buildRequestBody assembles the generateContent body:
//
//	{"contents":[{"parts":[{"text":...}]}], "system_instruction":{"parts":[{"text":...}]}, ...options}
func buildRequestBody(text string, systemInstruction *string, options map[string]any) map[string]any {
	body := map[string]any{
		"contents": []Content{
			{Parts: []Part{{Text: text}}},
		},
	}

	if systemInstruction != nil {
		body["system_instruction"] = Content{Parts: []Part{{Text: *systemInstruction}}}
	}

	for key, value := range options {
		body[key] = value
	}

	return body
}

// endpointURL builds {base}/{version}/models/{model}:generateContent?key={key}.
func endpointURL(baseURL, apiVersion, model, apiKey string) string {
	return fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s", baseURL, apiVersion, model, url.QueryEscape(apiKey))
}
