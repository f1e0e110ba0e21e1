// Package prompt provides user interaction primitives using charmbracelet/huh.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrCanceled is returned when the user cancels a prompt.
var ErrCanceled = errors.New("canceled by user")

// Prompter abstracts user interaction for testability.
//
//go:generate go run github.com/matryer/moq@latest -pkg mocks -out mocks/prompter.go . Prompter
type Prompter interface {
	// Confirm prompts for yes/no confirmation.
	Confirm(title, description string) (bool, error)

	// Choice prompts for a selection and returns the 0-based index.
	Choice(title string, options []string) (int, error)

	// Ask prompts for a line of free-form input.
	Ask(title, placeholder string) (string, error)
}

// HuhPrompter implements Prompter using charmbracelet/huh forms.
type HuhPrompter struct{}

// New creates a HuhPrompter for interactive terminal prompts.
func New() *HuhPrompter {
	return &HuhPrompter{}
}

// Confirm prompts for yes/no confirmation.
func (p *HuhPrompter) Confirm(title, description string) (bool, error) {
	var confirmed bool
	field := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed)

	if err := runField("confirm", field); err != nil {
		return false, err
	}
	return confirmed, nil
}

// Choice prompts for a selection and returns the 0-based index.
func (p *HuhPrompter) Choice(title string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options provided")
	}

	opts := make([]huh.Option[int], len(options))
	for i, label := range options {
		opts[i] = huh.NewOption(label, i)
	}

	var selected int
	field := huh.NewSelect[int]().
		Title(title).
		Options(opts...).
		Value(&selected)

	if err := runField("choice", field); err != nil {
		return 0, err
	}
	return selected, nil
}

// Ask prompts for a line of free-form input, trimming whitespace.
func (p *HuhPrompter) Ask(title, placeholder string) (string, error) {
	var value string
	field := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&value)

	if err := runField("ask", field); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// runField runs a single huh field, mapping a user abort to ErrCanceled.
func runField(op string, field interface{ Run() error }) error {
	err := field.Run()
	if err == nil {
		return nil
	}
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrCanceled
	}
	return fmt.Errorf("%s prompt: %w", op, err)
}
