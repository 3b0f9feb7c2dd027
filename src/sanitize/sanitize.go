// Package sanitize cleans raw CI job logs before excerpt extraction.
// It removes ANSI escape sequences and GitLab's collapsible-section markers
// so that downstream pattern matching sees plain text.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	// GitLab section markers: section_start:1700000000:step_name\r
	sectionMarker = regexp.MustCompile(`section_(?:start|end):\d+:[A-Za-z0-9_.-]+\r?`)

	// C0 control characters other than newline and tab.
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// Strip removes ANSI escape sequences, GitLab section markers, carriage
// returns, and remaining control characters from a log.
func Strip(s string) string {
	s = ansi.Strip(s)
	s = sectionMarker.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = controlChars.ReplaceAllString(s, "")
	return s
}
