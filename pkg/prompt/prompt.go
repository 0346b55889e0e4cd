// Package prompt supplies user input to the interactive workflows.
package prompt

import (
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// ErrInterrupted is returned when the user presses Ctrl-C at a prompt
var ErrInterrupted = errors.New("input interrupted")

// Prompter asks one question and returns the trimmed answer.
// It returns io.EOF once no more input is available.
type Prompter interface {
	Prompt(message string) (string, error)
}

// Console reads answers from a terminal with line editing and history
type Console struct {
	rl *readline.Instance
}

// ConsoleConfig configures a Console. Zero values fall back to the process's standard streams.
type ConsoleConfig struct {
	Stdin       io.ReadCloser
	Stdout      io.Writer
	Stderr      io.Writer
	HistoryFile string
}

// NewConsole creates a readline-backed prompter
func NewConsole(cfg ConsoleConfig) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		Stdin:           cfg.Stdin,
		Stdout:          cfg.Stdout,
		Stderr:          cfg.Stderr,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &Console{rl: rl}, nil
}

// Prompt shows message and reads one line
func (c *Console) Prompt(message string) (string, error) {
	c.rl.SetPrompt(message)
	line, err := c.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Stdout returns the writer that keeps output from clobbering the prompt line
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Close restores the terminal
func (c *Console) Close() error {
	return c.rl.Close()
}

// Scripted replays fixed answers. It records every prompt it was shown.
type Scripted struct {
	answers []string
	next    int
	Prompts []string
}

// NewScripted creates a prompter that answers in order
func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

// Prompt returns the next answer, or io.EOF when the script is used up
func (s *Scripted) Prompt(message string) (string, error) {
	s.Prompts = append(s.Prompts, message)
	if s.next >= len(s.answers) {
		return "", io.EOF
	}
	answer := s.answers[s.next]
	s.next++
	return strings.TrimSpace(answer), nil
}

// Remaining reports how many answers have not been consumed
func (s *Scripted) Remaining() int {
	return len(s.answers) - s.next
}
