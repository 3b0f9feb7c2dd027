// Package junit parses JUnit XML test reports to pull failing test names
// into remediation suggestions.
package junit

import (
	"encoding/xml"
	"fmt"
	"strings"
)

type testSuites struct {
	XMLName xml.Name    `xml:"testsuites"`
	Suites  []testSuite `xml:"testsuite"`
}

type testSuite struct {
	Name  string     `xml:"name,attr"`
	Cases []testCase `xml:"testcase"`
}

type testCase struct {
	Name      string    `xml:"name,attr"`
	ClassName string    `xml:"classname,attr"`
	Failure   *caseFail `xml:"failure"`
	Error     *caseFail `xml:"error"`
}

type caseFail struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// FailedCase is one failed or errored test case.
type FailedCase struct {
	Name      string
	ClassName string
	Suite     string
	Message   string
	// "failure" for assertion failures, "error" for unexpected errors.
	Kind string
}

// FullName returns the class-qualified test name.
func (c FailedCase) FullName() string {
	if c.ClassName != "" {
		return c.ClassName + "::" + c.Name
	}
	return c.Name
}

// Parse extracts failed and errored cases from a JUnit XML report. The root
// may be either <testsuites> or a bare <testsuite>. An all-green report
// yields an empty slice.
func Parse(data []byte) ([]FailedCase, error) {
	var root testSuites
	if err := xml.Unmarshal(data, &root); err == nil && len(root.Suites) > 0 {
		return collect(root.Suites), nil
	}

	var suite testSuite
	if err := xml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parsing junit xml: %w", err)
	}
	return collect([]testSuite{suite}), nil
}

func collect(suites []testSuite) []FailedCase {
	var failed []FailedCase
	for _, suite := range suites {
		for _, tc := range suite.Cases {
			if tc.Failure != nil {
				failed = append(failed, FailedCase{
					Name:      tc.Name,
					ClassName: tc.ClassName,
					Suite:     suite.Name,
					Message:   tc.Failure.Message,
					Kind:      "failure",
				})
			}
			if tc.Error != nil {
				failed = append(failed, FailedCase{
					Name:      tc.Name,
					ClassName: tc.ClassName,
					Suite:     suite.Name,
					Message:   tc.Error.Message,
					Kind:      "error",
				})
			}
		}
	}
	return failed
}

// Summarize renders up to max failed cases as comment bullet lines. Extra
// cases beyond max collapse into a trailing count.
func Summarize(cases []FailedCase, max int) []string {
	if len(cases) == 0 {
		return nil
	}

	lines := make([]string, 0, max+1)
	for i, c := range cases {
		if i == max {
			lines = append(lines, fmt.Sprintf("- ...and %d more", len(cases)-max))
			break
		}
		line := "- " + c.FullName()
		if msg := strings.TrimSpace(c.Message); msg != "" {
			line += ": " + msg
		}
		lines = append(lines, line)
	}
	return lines
}
