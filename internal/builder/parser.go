package builder

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"appgen-backend/internal/preview"
)

const (
	ModeJSON            = "json"
	ModeFencedJSON      = "fenced_json"
	ModeFieldExtraction = "field_extraction"
	ModePlainText       = "plain_text"
	ModeModelError      = "model_error"
)

const (
	DefaultExplanation   = "I updated your app."
	MalformedExplanation = "I generated code for you, but there was an issue with the response format."
	ApologyExplanation   = "Sorry, I encountered an error processing your request. Please try again."
)

var (
	fencedObjectRe = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")
	objectRe       = regexp.MustCompile(`\{[\s\S]*\}`)
	backtickValue  = regexp.MustCompile("`([^`]*)`")
)

type ParsedResponse struct {
	HTML        string
	CSS         string
	JS          string
	Explanation string
	Mode        string
}

func (p ParsedResponse) HasCode() bool {
	return p.HTML != "" || p.CSS != "" || p.JS != ""
}

func (p ParsedResponse) Preview() preview.Preview {
	return preview.Preview{HTML: p.HTML, CSS: p.CSS, JS: p.JS}
}

type responseObject struct {
	HTML        string `json:"html"`
	CSS         string `json:"css"`
	JS          string `json:"js"`
	Explanation string `json:"explanation"`
}

// ParseResponse never fails: anything that is not a usable JSON object is recovered
// field by field, and text without any object becomes a plain explanation.
func ParseResponse(text string) ParsedResponse {
	candidate := strings.TrimSpace(text)
	fenced := false
	if strings.HasPrefix(candidate, "```") {
		if match := fencedObjectRe.FindStringSubmatch(candidate); match != nil {
			candidate = match[1]
			fenced = true
		}
	}

	object := objectRe.FindString(candidate)
	if object == "" {
		return ParsedResponse{Explanation: text, Mode: ModePlainText}
	}

	var decoded responseObject
	if err := json.Unmarshal([]byte(object), &decoded); err == nil {
		mode := ModeJSON
		if fenced {
			mode = ModeFencedJSON
		}
		explanation := decoded.Explanation
		if explanation == "" {
			explanation = DefaultExplanation
		}
		return ParsedResponse{
			HTML:        decoded.HTML,
			CSS:         decoded.CSS,
			JS:          decoded.JS,
			Explanation: explanation,
			Mode:        mode,
		}
	}

	explanation := ExtractField(object, "explanation")
	if explanation == "" {
		explanation = MalformedExplanation
	}
	return ParsedResponse{
		HTML:        ExtractField(object, "html"),
		CSS:         ExtractField(object, "css"),
		JS:          ExtractField(object, "js"),
		Explanation: explanation,
		Mode:        ModeFieldExtraction,
	}
}

// ExtractField pulls a single string value out of text that failed to decode as JSON.
// Double quoted values are unescaped when they form a valid JSON string. Otherwise the
// first backtick delimited value anywhere after `"field":` is returned as is.
func ExtractField(text, field string) string {
	quoted := regexp.MustCompile(fmt.Sprintf(`"%s"\s*:\s*"((?:[^"\\]|\\.)*)"`, regexp.QuoteMeta(field)))
	if match := quoted.FindStringSubmatch(text); match != nil && match[1] != "" {
		var value string
		if err := json.Unmarshal([]byte(`"`+match[1]+`"`), &value); err == nil {
			return value
		}
		return match[1]
	}

	key := `"` + field + `":`
	if start := strings.Index(text, key); start != -1 {
		if match := backtickValue.FindStringSubmatch(text[start+len(key):]); match != nil && match[1] != "" {
			return match[1]
		}
	}

	return ""
}

// MergePreview applies a parsed response to the current artifact. Fields the response
// left empty keep their current value, and a response without any code leaves the
// artifact unchanged.
func MergePreview(current preview.Preview, parsed ParsedResponse) (preview.Preview, bool) {
	if !parsed.HasCode() {
		return current, false
	}

	merged := current
	if parsed.HTML != "" {
		merged.HTML = parsed.HTML
	}
	if parsed.CSS != "" {
		merged.CSS = parsed.CSS
	}
	if parsed.JS != "" {
		merged.JS = parsed.JS
	}
	return merged, true
}
