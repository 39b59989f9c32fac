package client

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FinishReasonSafety marks a candidate stopped by the safety filters.
const FinishReasonSafety = "SAFETY"

// SafetyRating is the typed view of one safetyRatings entry. Fields the
// API adds later are only visible through SafetyRatingsRaw.
type SafetyRating struct {
	Category         string  `json:"category"`
	Probability      string  `json:"probability"`
	ProbabilityScore float64 `json:"probabilityScore,omitempty"`
	Severity         string  `json:"severity,omitempty"`
	SeverityScore    float64 `json:"severityScore,omitempty"`
	Blocked          bool    `json:"blocked,omitempty"`
}

// UsageMetadata is the typed view of usageMetadata.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Response wraps a decoded generateContent payload. Accessors read the
// payload on demand and never fail; a malformed field reads as absent.
type Response struct {
	raw map[string]any
}

// NewResponse wraps payload. A payload carrying an "error" member is
// rejected with a KindAPI error formatted "{message} (code: {code})", or
// "Unknown error" when the member is not an object.
func NewResponse(payload map[string]any) (*Response, error) {
	if errVal, ok := payload["error"]; ok {
		e := &Error{Kind: KindAPI, Message: "Unknown error"}
		if obj, ok := errVal.(map[string]any); ok {
			e.Message = fmt.Sprintf("%s (code: %s)", scalarString(obj["message"]), scalarString(obj["code"]))
			if code, ok := obj["code"].(float64); ok {
				e.StatusCode = int(code)
			}
		}
		return nil, e
	}
	return &Response{raw: payload}, nil
}

// Raw returns the decoded payload.
func (r *Response) Raw() map[string]any {
	return r.raw
}

// Successful reports whether the payload holds a non-empty candidates list.
func (r *Response) Successful() bool {
	return len(r.candidates()) > 0
}

// Text joins the text of every part of the first candidate with a single
// space. The second result is false when the response is not successful
// or the first candidate has no content.
func (r *Response) Text() (string, bool) {
	candidate := r.firstCandidate()
	if candidate == nil {
		return "", false
	}

	content, ok := candidate["content"].(map[string]any)
	if !ok {
		return "", false
	}

	parts, _ := content["parts"].([]any)
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		part, _ := p.(map[string]any)
		text, _ := part["text"].(string)
		texts = append(texts, text)
	}
	return strings.Join(texts, " "), true
}

// FinishReason returns the first candidate's finishReason, or "".
func (r *Response) FinishReason() string {
	reason, _ := r.firstCandidate()["finishReason"].(string)
	return reason
}

// SafetyRatingsRaw returns the first candidate's safetyRatings list as
// decoded, or an empty list when the response is not successful.
func (r *Response) SafetyRatingsRaw() []any {
	if list, ok := r.firstCandidate()["safetyRatings"].([]any); ok {
		return list
	}
	return []any{}
}

// SafetyRatings returns the typed view of SafetyRatingsRaw. Entries that
// are not objects are skipped.
func (r *Response) SafetyRatings() []SafetyRating {
	list := r.SafetyRatingsRaw()
	ratings := make([]SafetyRating, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rating := SafetyRating{}
		rating.Category, _ = obj["category"].(string)
		rating.Probability, _ = obj["probability"].(string)
		rating.ProbabilityScore, _ = obj["probabilityScore"].(float64)
		rating.Severity, _ = obj["severity"].(string)
		rating.SeverityScore, _ = obj["severityScore"].(float64)
		rating.Blocked, _ = obj["blocked"].(bool)
		ratings = append(ratings, rating)
	}
	return ratings
}

// ContentBlocked reports whether the first candidate finished for safety.
func (r *Response) ContentBlocked() bool {
	return r.Successful() && r.FinishReason() == FinishReasonSafety
}

// UsageMetrics returns the usageMetadata object, or an empty map. It does
// not depend on Successful.
func (r *Response) UsageMetrics() map[string]any {
	if usage, ok := r.raw["usageMetadata"].(map[string]any); ok {
		return usage
	}
	return map[string]any{}
}

// Usage returns the token counts from usageMetadata; missing counts are 0.
func (r *Response) Usage() UsageMetadata {
	usage := r.UsageMetrics()
	return UsageMetadata{
		PromptTokenCount:     intField(usage, "promptTokenCount"),
		CandidatesTokenCount: intField(usage, "candidatesTokenCount"),
		TotalTokenCount:      intField(usage, "totalTokenCount"),
	}
}

func (r *Response) candidates() []any {
	list, _ := r.raw["candidates"].([]any)
	return list
}

// firstCandidate returns nil unless the response is successful and the
// first candidate is an object. Indexing a nil map is safe for callers.
func (r *Response) firstCandidate() map[string]any {
	list := r.candidates()
	if len(list) == 0 {
		return nil
	}
	candidate, _ := list[0].(map[string]any)
	return candidate
}

func intField(obj map[string]any, key string) int {
	if n, ok := obj[key].(float64); ok {
		return int(n)
	}
	return 0
}

// scalarString renders a decoded JSON scalar; integral numbers print
// without a fractional part and nil prints as "".
func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
