package junit

import (
	"strings"
	"testing"
)

const multiSuiteXML = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="unit" tests="3" failures="1" errors="1">
    <testcase classname="pkg.math" name="TestAdd" time="0.01"/>
    <testcase classname="pkg.math" name="TestDivide" time="0.02">
      <failure message="expected 2, got 3" type="AssertionError">trace</failure>
    </testcase>
    <testcase classname="pkg.io" name="TestOpen" time="0.03">
      <error message="connection refused" type="IOError">trace</error>
    </testcase>
  </testsuite>
  <testsuite name="integration" tests="1" failures="0" errors="0">
    <testcase classname="pkg.api" name="TestHealth" time="0.5"/>
  </testsuite>
</testsuites>`

const singleSuiteXML = `<testsuite name="lint" tests="1" failures="1">
  <testcase name="check_style">
    <failure message="line too long"/>
  </testcase>
</testsuite>`

func TestParseMultiSuite(t *testing.T) {
	cases, err := Parse([]byte(multiSuiteXML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("got %d failed cases, want 2", len(cases))
	}

	if got := cases[0].FullName(); got != "pkg.math::TestDivide" {
		t.Errorf("FullName() = %q, want pkg.math::TestDivide", got)
	}
	if cases[0].Kind != "failure" {
		t.Errorf("Kind = %q, want failure", cases[0].Kind)
	}
	if cases[1].Kind != "error" {
		t.Errorf("Kind = %q, want error", cases[1].Kind)
	}
	if cases[1].Suite != "unit" {
		t.Errorf("Suite = %q, want unit", cases[1].Suite)
	}
}

func TestParseSingleSuite(t *testing.T) {
	cases, err := Parse([]byte(singleSuiteXML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cases) != 1 {
		t.Fatalf("got %d failed cases, want 1", len(cases))
	}
	if got := cases[0].FullName(); got != "check_style" {
		t.Errorf("FullName() = %q, want bare test name without class", got)
	}
}

func TestParseAllGreen(t *testing.T) {
	xml := `<testsuite name="unit" tests="1"><testcase name="TestOK"/></testsuite>`
	cases, err := Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cases) != 0 {
		t.Errorf("got %d failed cases, want 0", len(cases))
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte("not xml at all <<")); err == nil {
		t.Error("Parse() expected error for malformed input")
	}
}

func TestSummarize(t *testing.T) {
	cases := []FailedCase{
		{ClassName: "a", Name: "T1", Message: "boom"},
		{ClassName: "a", Name: "T2"},
		{ClassName: "b", Name: "T3"},
	}

	lines := Summarize(cases, 2)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "- a::T1: boom" {
		t.Errorf("lines[0] = %q", lines[0])
	}
	if !strings.Contains(lines[2], "1 more") {
		t.Errorf("lines[2] = %q, want overflow count", lines[2])
	}

	if got := Summarize(nil, 5); got != nil {
		t.Errorf("Summarize(nil) = %v, want nil", got)
	}
}
