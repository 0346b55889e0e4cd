// Package validation checks free-text and year input before it reaches the
// store, re-prompting a bounded number of times.
package validation

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"

	"github.com/ammar0144/kinodb/pkg/prompt"
)

// DefaultMaxAttempts is the number of values checked before giving up
const DefaultMaxAttempts = 3

// ErrUnknownKind is returned when asked to validate against a kind that has no rule
var ErrUnknownKind = errors.New("unknown validation kind")

// FieldKind selects the free-text rule
type FieldKind string

const (
	// KindTitle allows letters, digits and hyphens
	KindTitle FieldKind = "title"
	// KindNameOrGenre allows letters and hyphens
	KindNameOrGenre FieldKind = "name_or_genre"
)

// YearKind selects the year range
type YearKind string

const (
	YearBirth   YearKind = "birth"
	YearRelease YearKind = "release"
)

const (
	letter   = `[A-Za-zА-Яа-яІіЇїЄєҐґЁё]`
	alnum    = `[A-Za-zА-Яа-яІіЇїЄєҐґЁё0-9]`
	titleTok = alnum + `(?:` + alnum + `|-` + alnum + `)+`
	nameTok  = letter + `{2,}(?:-` + letter + `+)*`
)

// Tokens separated by single spaces. A token starts and ends with a letter
// (or digit, in titles), holds at least two of them, and hyphens only join parts.
var textPatterns = map[FieldKind]*regexp.Regexp{
	KindTitle:       regexp.MustCompile(`^` + titleTok + `(?: ` + titleTok + `)*$`),
	KindNameOrGenre: regexp.MustCompile(`^` + nameTok + `(?: ` + nameTok + `)*$`),
}

var textLabels = map[FieldKind]string{
	KindTitle:       "title",
	KindNameOrGenre: "name",
}

// earliest plausible year per kind; the latest is always the current year
var yearFloors = map[YearKind]int{
	YearBirth:   1880,
	YearRelease: 1895,
}

var warn = color.New(color.FgYellow)

// IsExit reports whether input is an exit sentinel ("exit" or "q", any case)
func IsExit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "q":
		return true
	}
	return false
}

// Validator checks values and re-prompts through Prompter when they are rejected
type Validator struct {
	Prompter    prompt.Prompter
	Out         io.Writer
	MaxAttempts int
	Now         func() time.Time
	Logger      hclog.Logger
}

// New creates a validator with the default attempt budget
func New(p prompt.Prompter, out io.Writer, log hclog.Logger) *Validator {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Validator{
		Prompter:    p,
		Out:         out,
		MaxAttempts: DefaultMaxAttempts,
		Now:         time.Now,
		Logger:      log.Named("validation"),
	}
}

func (v *Validator) maxAttempts() int {
	if v.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return v.MaxAttempts
}

func (v *Validator) currentYear() int {
	if v.Now == nil {
		return time.Now().Year()
	}
	return v.Now().Year()
}

// Match checks text against kind's rule once, without re-prompting
func Match(text string, kind FieldKind) (bool, error) {
	pattern, ok := textPatterns[kind]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return pattern.MatchString(text), nil
}

// YearRange returns the inclusive bounds for kind
func (v *Validator) YearRange(kind YearKind) (int, int, error) {
	floor, ok := yearFloors[kind]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return floor, v.currentYear(), nil
}

// ValidateText accepts text or re-prompts until it matches, the attempts run
// out, or an exit sentinel is entered. It returns the accepted text, or the
// last text entered.
func (v *Validator) ValidateText(text string, kind FieldKind) (bool, string, error) {
	if _, err := Match("", kind); err != nil {
		return false, text, err
	}
	label := textLabels[kind]

	text = strings.TrimSpace(text)
	for attempts := 0; ; {
		if IsExit(text) {
			return false, text, nil
		}

		ok, _ := Match(text, kind)
		if ok {
			return true, text, nil
		}

		warn.Fprintf(v.Out, "Invalid %s %q! Use words of at least two letters separated by single spaces.\n", label, text)
		attempts++
		if !v.reportAttempts(attempts) {
			v.Logger.Debug("text rejected", "kind", kind, "attempts", attempts)
			return false, text, nil
		}

		next, err := v.ask(fmt.Sprintf("Please enter the %s again: ", label))
		if err != nil {
			return false, text, err
		}
		text = next
	}
}

// PromptText asks for the first value too, then validates it like ValidateText
func (v *Validator) PromptText(message string, kind FieldKind) (bool, string, error) {
	if _, err := Match("", kind); err != nil {
		return false, "", err
	}
	text, err := v.ask(message)
	if err != nil {
		return false, "", err
	}
	return v.ValidateText(text, kind)
}

// ValidateYear accepts year or re-prompts until it is in range. Each round
// costs one attempt, including rounds where the entry was not a number. An
// exit sentinel returns the last year seen.
func (v *Validator) ValidateYear(year int, kind YearKind) (bool, int, error) {
	return v.yearLoop(year, true, kind)
}

// PromptYear asks for the first value too. An entry that is not a number is
// handled like any other rejected entry.
func (v *Validator) PromptYear(message string, kind YearKind) (bool, int, error) {
	if _, _, err := v.YearRange(kind); err != nil {
		return false, 0, err
	}
	input, err := v.ask(message)
	if err != nil {
		return false, 0, err
	}
	if IsExit(input) {
		return false, 0, nil
	}
	year, convErr := strconv.Atoi(input)
	if convErr != nil {
		warn.Fprintf(v.Out, "%q is not a year.\n", input)
	}
	return v.yearLoop(year, convErr == nil, kind)
}

func (v *Validator) yearLoop(year int, parsed bool, kind YearKind) (bool, int, error) {
	floor, ceiling, err := v.YearRange(kind)
	if err != nil {
		return false, year, err
	}

	for attempts := 0; ; {
		if parsed {
			if year >= floor && year <= ceiling {
				return true, year, nil
			}
			warn.Fprintf(v.Out, "Year %d is out of range for a %s year (%d-%d).\n", year, kind, floor, ceiling)
		}

		attempts++
		if !v.reportAttempts(attempts) {
			v.Logger.Debug("year rejected", "kind", kind, "year", year)
			return false, year, nil
		}

		input, err := v.ask(fmt.Sprintf("Enter a valid %s year (%d-%d): ", kind, floor, ceiling))
		if err != nil {
			return false, year, err
		}
		if IsExit(input) {
			return false, year, nil
		}

		n, convErr := strconv.Atoi(input)
		if convErr != nil {
			warn.Fprintf(v.Out, "%q is not a year.\n", input)
			parsed = false
			continue
		}
		year, parsed = n, true
	}
}

// reportAttempts prints the remaining budget and reports whether another try is allowed
func (v *Validator) reportAttempts(attempts int) bool {
	left := v.maxAttempts() - attempts
	if left <= 0 {
		warn.Fprintln(v.Out, "Maximum attempts reached.")
		return false
	}
	fmt.Fprintf(v.Out, "You have %d attempts left.\n", left)
	return true
}

func (v *Validator) ask(message string) (string, error) {
	if v.Prompter == nil {
		return "", io.EOF
	}
	answer, err := v.Prompter.Prompt(message)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
