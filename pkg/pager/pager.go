// Package pager renders long result lists a page at a time and lets the user
// move between pages or pick one item.
package pager

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/ammar0144/kinodb/pkg/prompt"
)

const (
	DefaultPageSize    = 15
	DefaultMaxAttempts = 3
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	notice  = color.New(color.FgYellow)
)

// Result is the outcome of one browse session. Index is the zero-based
// position of the selected item in the list that was browsed.
type Result struct {
	Index int
	Item  string
	Exit  bool
}

// Selected reports whether the user picked an item
func (r Result) Selected() bool {
	return !r.Exit
}

var exitResult = Result{Index: -1, Exit: true}

// Browser pages through items using a prompter for commands
type Browser struct {
	Prompter    prompt.Prompter
	Out         io.Writer
	PageSize    int
	MaxAttempts int
}

// New creates a browser with the default page size and attempt budget
func New(p prompt.Prompter, out io.Writer) *Browser {
	if out == nil {
		out = io.Discard
	}
	return &Browser{
		Prompter:    p,
		Out:         out,
		PageSize:    DefaultPageSize,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Pages returns how many pages items fill at the browser's page size
func (b *Browser) Pages(n int) int {
	size := b.pageSize()
	return (n + size - 1) / size
}

func (b *Browser) pageSize() int {
	if b.PageSize < 1 {
		return DefaultPageSize
	}
	return b.PageSize
}

func (b *Browser) maxAttempts() int {
	if b.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return b.MaxAttempts
}

// Browse shows items in the order given. Navigation past either end only
// prints a notice; an unrecognized command costs one attempt and running out
// of attempts exits. Input that ends (io.EOF) also exits.
func (b *Browser) Browse(items []string, itemName string, selectable bool) (Result, error) {
	if len(items) == 0 {
		fmt.Fprintf(b.Out, "No %ss to show.\n", itemName)
		return exitResult, nil
	}

	size := b.pageSize()
	pages := b.Pages(len(items))
	page := 1
	attempts := 0

	for {
		start := (page - 1) * size
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		b.render(items, itemName, selectable, page, pages, start, end)

		input, err := b.Prompter.Prompt("Your choice: ")
		if errors.Is(err, io.EOF) {
			return exitResult, nil
		}
		if err != nil {
			return exitResult, err
		}
		action := strings.ToLower(strings.TrimSpace(input))

		switch action {
		case "exit", "q":
			return exitResult, nil
		case "next", "+1":
			if page < pages {
				page++
			} else {
				notice.Fprintln(b.Out, "You are already on the last page.")
			}
			continue
		case "prev", "-1":
			if page > 1 {
				page--
			} else {
				notice.Fprintln(b.Out, "You are already on the first page.")
			}
			continue
		}

		rejection := "Invalid input. Please try again."
		if selectable {
			if n, convErr := strconv.Atoi(action); convErr == nil {
				// Numbers are global, so only this page's range is selectable
				if n > start && n <= end {
					return Result{Index: n - 1, Item: items[n-1]}, nil
				}
				rejection = "Invalid selection. Please try again."
			}
		}
		notice.Fprintln(b.Out, rejection)

		attempts++
		if attempts >= b.maxAttempts() {
			notice.Fprintln(b.Out, "Maximum attempts reached.")
			return exitResult, nil
		}
		fmt.Fprintf(b.Out, "You have %d attempts left.\n", b.maxAttempts()-attempts)
	}
}

func (b *Browser) render(items []string, itemName string, selectable bool, page, pages, start, end int) {
	heading.Fprintf(b.Out, "Page %d of %d\n", page, pages)
	fmt.Fprintf(b.Out, "Showing %ss %d-%d of %d\n", itemName, start+1, end, len(items))

	var hints []string
	if page < pages {
		hints = append(hints, "'next'|'+1' for the next page")
	}
	if page > 1 {
		hints = append(hints, "'prev'|'-1' for the previous page")
	}
	if len(hints) > 0 {
		fmt.Fprintf(b.Out, "Type %s\n", strings.Join(hints, ", "))
	}
	if selectable {
		fmt.Fprintf(b.Out, "Select a %s (%d-%d)\n", itemName, start+1, end)
	}

	for i := start; i < end; i++ {
		fmt.Fprintf(b.Out, "%d. %s\n", i+1, items[i])
	}
	fmt.Fprintln(b.Out, "Type 'exit'/'q' to return to the main menu")
}
