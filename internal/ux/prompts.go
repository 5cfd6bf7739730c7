package ux

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned when a value is missing and prompting is
// not possible.
var ErrNotInteractive = errors.New("input required but prompting is disabled")

// Prompter asks the user for values the command line did not provide.
type Prompter interface {
	// Input asks for a line of text. Secret input is not echoed.
	Input(title string, secret bool) (string, error)
	// Confirm asks a yes/no question.
	Confirm(title string, defaultYes bool) (bool, error)
}

// HuhPrompter prompts on the terminal with charmbracelet/huh
type HuhPrompter struct{}

// Input displays an input field and returns the trimmed value
func (HuhPrompter) Input(title string, secret bool) (string, error) {
	var value string

	input := huh.NewInput().
		Title(title).
		Value(&value).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a value is required")
			}
			return nil
		})
	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}

	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	if secret {
		return value, nil
	}
	return strings.TrimSpace(value), nil
}

// Confirm displays a yes/no confirmation
func (HuhPrompter) Confirm(title string, defaultYes bool) (bool, error) {
	confirmed := defaultYes

	confirm := huh.NewConfirm().
		Title(title).
		Value(&confirmed)

	if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// NoPrompter fails every prompt. Used in CI and when stdin is piped.
type NoPrompter struct{}

// Input always fails
func (NoPrompter) Input(title string, _ bool) (string, error) {
	return "", fmt.Errorf("%s: %w", title, ErrNotInteractive)
}

// Confirm always fails
func (NoPrompter) Confirm(title string, _ bool) (bool, error) {
	return false, fmt.Errorf("%s: %w", title, ErrNotInteractive)
}

// DefaultPrompter returns a terminal prompter when prompting is possible
func DefaultPrompter() Prompter {
	if ShouldPrompt() {
		return HuhPrompter{}
	}
	return NoPrompter{}
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}

	return IsInteractive()
}
