package builder

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"appgen-backend/internal/database"
	"appgen-backend/internal/llm"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

const (
	DefaultModel       = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens   = 4000
	DefaultTemperature = 0.7
)

// Profile controls the model parameters and any extra guidelines that are appended to
// the system prompt. A zero value means the defaults are used.
type Profile struct {
	Model           string   `yaml:"model"`
	MaxTokens       int      `yaml:"max_tokens"`
	Temperature     *float64 `yaml:"temperature"`
	ExtraGuidelines []string `yaml:"extra_guidelines"`
}

func DefaultProfile() Profile {
	return Profile{}.withDefaults()
}

func (p Profile) withDefaults() Profile {
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.Temperature == nil {
		t := DefaultTemperature
		p.Temperature = &t
	}
	return p
}

var ErrModelRequired = errors.New("a model must be set for this llm provider")

func parseProfile(data []byte) (Profile, error) {
	var profile Profile
	if err := yaml.UnmarshalStrict(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("error parsing prompt profile: %w", err)
	}
	if profile.Temperature != nil && (*profile.Temperature < 0 || *profile.Temperature > 2) {
		return Profile{}, fmt.Errorf("invalid temperature %v in prompt profile", *profile.Temperature)
	}
	return profile, nil
}

func readProfile(path string) (Profile, error) {
	if path == "" {
		return Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("error reading prompt profile '%s': %w", path, err)
	}
	return parseProfile(data)
}

func ParseProfile(data []byte) (Profile, error) {
	profile, err := parseProfile(data)
	if err != nil {
		return Profile{}, err
	}
	return profile.withDefaults(), nil
}

func LoadProfile(path string) (Profile, error) {
	profile, err := readProfile(path)
	if err != nil {
		return Profile{}, err
	}
	return profile.withDefaults(), nil
}

// LoadProviderProfile loads the profile at path (or the defaults when path is empty)
// for the given llm provider. A non-empty model overrides the profile's model.
// DefaultModel is an anthropic model, so other providers must name a model.
func LoadProviderProfile(path, provider, model string) (Profile, error) {
	profile, err := readProfile(path)
	if err != nil {
		return Profile{}, err
	}

	if model != "" {
		profile.Model = model
	}

	if profile.Model == "" {
		switch provider {
		case "", llm.ProviderAnthropic, llm.ProviderStatic:
		default:
			return Profile{}, fmt.Errorf("%w: provider '%s'", ErrModelRequired, provider)
		}
	}

	return profile.withDefaults(), nil
}

func historyRole(role string) string {
	if role == database.RoleUser {
		return llm.RoleUser
	}
	return llm.RoleAssistant
}

// BuildRequest assembles the model request for one turn of the conversation. The
// history contains every stored message except the current user message, which is
// appended last in trimmed form.
func BuildRequest(app database.App, history []database.Message, currentMessageId uuid.UUID, userMessage string, profile Profile) llm.Request {
	profile = profile.withDefaults()

	messages := make([]llm.Message, 0, len(history)+1)
	for _, msg := range history {
		if msg.Id == currentMessageId {
			continue
		}
		messages = append(messages, llm.Message{Role: historyRole(msg.Role), Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: strings.TrimSpace(userMessage)})

	return llm.Request{
		System:      SystemPrompt(app.Name, app.Html, app.Css, app.Js, profile.ExtraGuidelines...),
		Messages:    messages,
		Model:       profile.Model,
		MaxTokens:   profile.MaxTokens,
		Temperature: *profile.Temperature,
	}
}
