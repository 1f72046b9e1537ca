// Package suggestion defines the normalized recommendation payload and the
// rules for producing it from the backend's heterogeneous responses.
//
// The backend answers either with a structured JSON object ({text, title,
// use_case}) or with an opaque text body. Both shapes normalize into one
// immutable [Suggestion] whose text has already passed through [Sanitize],
// so downstream consumers never see raw backend artifacts.
package suggestion

import "encoding/json"

// UseCase classifies which kind of request a suggestion answers.
type UseCase string

const (
	UseCaseExisting    UseCase = "existing_user_request"
	UseCaseNonExisting UseCase = "non_existing_user_request"
	UseCaseNotRelevant UseCase = "not_relevant"
	UseCaseUnknown     UseCase = "unknown"
)

// ParseUseCase maps a raw backend value onto a recognised UseCase.
// Absent or unrecognised values map to [UseCaseUnknown].
func ParseUseCase(s string) UseCase {
	switch UseCase(s) {
	case UseCaseExisting, UseCaseNonExisting, UseCaseNotRelevant:
		return UseCase(s)
	}
	return UseCaseUnknown
}

// Suggestion is the normalized recommendation payload for one utterance.
// Values are immutable once constructed.
type Suggestion struct {
	Title   string  `json:"title"`
	Text    string  `json:"text"`
	UseCase UseCase `json:"use_case"`
}

// FromJSON normalizes a structured (JSON) response body. Missing or
// wrong-typed fields default to their type-appropriate empty value; the
// use-case defaults to unknown. A body that is not a JSON object at all is a
// malformed-body transport failure and returns an error.
func FromJSON(body []byte) (Suggestion, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Suggestion{}, err
	}
	return Decode(fields), nil
}

// Decode normalizes an already-parsed JSON object. Tolerant of missing and
// wrong-typed fields, per FromJSON.
func Decode(fields map[string]json.RawMessage) Suggestion {
	return Suggestion{
		Title:   Sanitize(stringField(fields, "title")),
		Text:    Sanitize(stringField(fields, "text")),
		UseCase: ParseUseCase(stringField(fields, "use_case")),
	}
}

// FromText normalizes an opaque text response body: the whole body becomes
// the suggestion text, with no title and a not-relevant use case.
func FromText(body string) Suggestion {
	return Suggestion{
		Text:    Sanitize(body),
		UseCase: UseCaseNotRelevant,
	}
}

// stringField extracts a string-typed field, returning "" when the field is
// absent or not a JSON string.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
