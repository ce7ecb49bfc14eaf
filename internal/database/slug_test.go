package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSlug(t *testing.T) {
	cases := map[string]string{
		"My Cool App!":          "my-cool-app",
		"  Spaces   everywhere ": "spaces-everywhere",
		"snake_case_name":       "snake-case-name",
		"--dashes--":            "dashes",
		"Émoji 🚀 app":           "moji-app",
		"!!!":                   "",
		"Todo List 2":           "todo-list-2",
	}

	for input, expected := range cases {
		assert.Equal(t, expected, GenerateSlug(input), input)
	}
}

func TestEnsureUniqueSlug(t *testing.T) {
	assert.Equal(t, "todo", EnsureUniqueSlug("todo", nil))
	assert.Equal(t, "todo-1", EnsureUniqueSlug("todo", []string{"todo"}))
	assert.Equal(t, "todo-3", EnsureUniqueSlug("todo", []string{"todo", "todo-1", "todo-2"}))
	assert.Equal(t, "todo-1", EnsureUniqueSlug("todo", []string{"todo", "todo-2"}))
	assert.Equal(t, "app", EnsureUniqueSlug("", nil))
	assert.Equal(t, "app-1", EnsureUniqueSlug("", []string{"app"}))
}
