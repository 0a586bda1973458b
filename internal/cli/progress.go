package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Progress runs fn behind a spinner on w. With quiet set fn runs silently.
func Progress(w io.Writer, quiet bool, message string, fn func() error) error {
	if quiet {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	s.Start()
	err := fn()
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("✗ "+message) + "\n"
	}
	s.Stop()
	return err
}

// ParseArgs decodes tool arguments given as a JSON object. An empty string
// yields no arguments.
func ParseArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return args, nil
}
