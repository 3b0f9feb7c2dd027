package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"guardian-agent/src/config"
	"guardian-agent/src/contracts"
	"guardian-agent/src/gitlab"
)

// stubFetcher returns canned traces per job ID and counts calls.
type stubFetcher struct {
	traces map[int64]string
	errs   map[int64]error
	calls  int
}

func (s *stubFetcher) GetJobTrace(ctx context.Context, projectID, jobID int64) (string, error) {
	s.calls++
	if err, ok := s.errs[jobID]; ok {
		return "", err
	}
	return s.traces[jobID], nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestFetchSegmentsAroundErrors(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 100; i++ {
		if i == 80 {
			sb.WriteString("ERROR: connection refused\n")
			continue
		}
		fmt.Fprintf(&sb, "step %d ok\n", i)
	}

	fetcher := &stubFetcher{traces: map[int64]string{101: sb.String()}}
	n := New(fetcher, testConfig(t))

	excerpts, err := n.Fetch(context.Background(), 7, contracts.FailedJob{JobID: 101})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(excerpts) != 1 {
		t.Fatalf("got %d excerpts, want 1", len(excerpts))
	}
	if !strings.Contains(excerpts[0].Text, "ERROR: connection refused") {
		t.Error("excerpt does not contain the error line")
	}
	if !strings.Contains(excerpts[0].Text, "step 79 ok") {
		t.Error("excerpt missing pre-context")
	}
	if excerpts[0].JobID != 101 {
		t.Errorf("JobID = %d, want 101", excerpts[0].JobID)
	}
}

func TestFetchEmptyLogIsNotAnError(t *testing.T) {
	fetcher := &stubFetcher{traces: map[int64]string{101: "   \n  "}}
	n := New(fetcher, testConfig(t))

	excerpts, err := n.Fetch(context.Background(), 7, contracts.FailedJob{JobID: 101})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(excerpts) != 0 {
		t.Errorf("got %d excerpts, want 0", len(excerpts))
	}
}

func TestFetchNotFoundIsNotAnError(t *testing.T) {
	fetcher := &stubFetcher{errs: map[int64]error{101: gitlab.ErrNotFound}}
	n := New(fetcher, testConfig(t))

	excerpts, err := n.Fetch(context.Background(), 7, contracts.FailedJob{JobID: 101})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if excerpts != nil {
		t.Errorf("excerpts = %v, want nil", excerpts)
	}
	if fetcher.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on not-found)", fetcher.calls)
	}
}

func TestFetchRetriesTransportThenFails(t *testing.T) {
	fetcher := &stubFetcher{errs: map[int64]error{101: gitlab.ErrTransport}}
	n := New(fetcher, testConfig(t))

	_, err := n.Fetch(context.Background(), 7, contracts.FailedJob{JobID: 101})
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("error = %v, want ErrFetch", err)
	}
	if fetcher.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", fetcher.calls)
	}
}

func TestSegmentNoSignalFallsBackToTail(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 200; i++ {
		fmt.Fprintf(&sb, "quiet line %d\n", i)
	}

	n := New(&stubFetcher{}, testConfig(t))
	excerpts := n.Segment(strings.TrimRight(sb.String(), "\n"), 5)
	if len(excerpts) != 1 {
		t.Fatalf("got %d excerpts, want 1", len(excerpts))
	}
	if !strings.Contains(excerpts[0].Text, "quiet line 200") {
		t.Error("fallback excerpt does not end at the log tail")
	}
	if strings.Contains(excerpts[0].Text, "quiet line 1\n") {
		t.Error("fallback excerpt should not span the whole log")
	}
}

func TestSegmentMergesOverlappingWindowsAndCaps(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxExcerpts = 2

	var sb strings.Builder
	// Two adjacent errors merge into one window; errors far apart do not.
	for i := 1; i <= 400; i++ {
		switch i {
		case 50, 52:
			fmt.Fprintf(&sb, "ERROR: first cluster %d\n", i)
		case 200:
			sb.WriteString("ERROR: second cluster\n")
		case 390:
			sb.WriteString("ERROR: third cluster\n")
		default:
			fmt.Fprintf(&sb, "line %d\n", i)
		}
	}

	n := New(&stubFetcher{}, cfg)
	excerpts := n.Segment(sb.String(), 9)
	if len(excerpts) != 2 {
		t.Fatalf("got %d excerpts, want 2 (capped)", len(excerpts))
	}
	// The cap keeps the excerpts closest to the end of the log.
	if !strings.Contains(excerpts[0].Text, "second cluster") {
		t.Errorf("first kept excerpt = %q, want second cluster", excerpts[0].Text[:60])
	}
	if !strings.Contains(excerpts[1].Text, "third cluster") {
		t.Errorf("second kept excerpt should contain third cluster")
	}
}

func TestTailWindow(t *testing.T) {
	text := "first line\nsecond line\nthird line\n"

	if got := tailWindow(text, 1000); got != text {
		t.Errorf("small text should be unchanged")
	}

	got := tailWindow(text, 18)
	if strings.Contains(got, "first") {
		t.Errorf("tailWindow kept too much: %q", got)
	}
	if !strings.HasPrefix(got, "third line") && !strings.HasPrefix(got, "second line") {
		t.Errorf("tailWindow should start at a line boundary, got %q", got)
	}
}
