// Package confirmation handles interactive approval of destructive
// migrations and credential prompts.
package confirmation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirmer asks the operator before destructive work proceeds.
type Confirmer struct {
	in          io.Reader
	out         io.Writer
	autoApprove bool
}

// NewConfirmer creates a confirmer over stdin/stdout.
func NewConfirmer(autoApprove bool) *Confirmer {
	return &Confirmer{in: os.Stdin, out: os.Stdout, autoApprove: autoApprove}
}

// NewConfirmerWithStreams creates a confirmer over explicit streams, used
// by tests.
func NewConfirmerWithStreams(in io.Reader, out io.Writer, autoApprove bool) *Confirmer {
	return &Confirmer{in: in, out: out, autoApprove: autoApprove}
}

// Confirm asks a yes/no question. Auto-approve mode answers yes without
// prompting.
func (c *Confirmer) Confirm(question string) (bool, error) {
	if c.autoApprove {
		return true, nil
	}

	fmt.Fprintf(c.out, "%s [y/N]: ", question)
	reader := bufio.NewReader(c.in)
	answer, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// PromptPassword reads a password without echoing when stdin is a
// terminal; piped input is read as a plain line.
func (c *Confirmer) PromptPassword(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)

	if file, ok := c.in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		password, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	reader := bufio.NewReader(c.in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
