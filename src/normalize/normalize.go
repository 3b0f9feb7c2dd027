// Package normalize implements the log normalizer: it retrieves raw job
// logs, strips terminal noise, truncates to a bounded tail window, and
// segments the remainder into candidate error excerpts.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guardian-agent/src/config"
	"guardian-agent/src/contracts"
	"guardian-agent/src/gitlab"
	"guardian-agent/src/sanitize"
)

// ErrFetch wraps log retrieval failures that persisted through the retry.
var ErrFetch = errors.New("normalize: log fetch failed")

// retryBackoff is the wait before the single fetch retry.
const retryBackoff = 500 * time.Millisecond

// TraceFetcher is the slice of the CI platform API the normalizer needs.
type TraceFetcher interface {
	GetJobTrace(ctx context.Context, projectID, jobID int64) (string, error)
}

// Normalizer fetches and segments job logs.
type Normalizer struct {
	fetcher      TraceFetcher
	signals      []config.Signal
	tailBytes    int
	maxExcerpts  int
	preContext   int
	postContext  int
	fetchTimeout time.Duration
}

// New creates a Normalizer bound to a trace fetcher and configuration.
func New(fetcher TraceFetcher, cfg *config.Config) *Normalizer {
	return &Normalizer{
		fetcher:      fetcher,
		signals:      cfg.Signals,
		tailBytes:    cfg.LogTailBytes,
		maxExcerpts:  cfg.MaxExcerpts,
		preContext:   cfg.ExcerptPre,
		postContext:  cfg.ExcerptPost,
		fetchTimeout: cfg.FetchTimeout,
	}
}

// Fetch retrieves the log for one failed job and returns its error excerpts.
// A missing or empty log yields an empty slice and no error; downstream
// treats empty evidence as an unknown failure with zero confidence.
// Transport errors are retried once, then reported as ErrFetch.
func (n *Normalizer) Fetch(ctx context.Context, projectID int64, job contracts.FailedJob) ([]contracts.LogExcerpt, error) {
	trace, err := n.fetchTrace(ctx, projectID, job.JobID)
	if err != nil {
		if errors.Is(err, gitlab.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: job %d: %v", ErrFetch, job.JobID, err)
	}

	cleaned := sanitize.Strip(trace)
	if strings.TrimSpace(cleaned) == "" {
		return nil, nil
	}

	tail := tailWindow(cleaned, n.tailBytes)
	return n.Segment(tail, job.JobID), nil
}

// fetchTrace calls the platform with a bounded timeout, retrying transport
// failures once with a short backoff.
func (n *Normalizer) fetchTrace(ctx context.Context, projectID, jobID int64) (string, error) {
	attempt := func() (string, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, n.fetchTimeout)
		defer cancel()
		return n.fetcher.GetJobTrace(fetchCtx, projectID, jobID)
	}

	trace, err := attempt()
	if err == nil || errors.Is(err, gitlab.ErrNotFound) {
		return trace, err
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return attempt()
}

// Segment splits a sanitized log tail into up to maxExcerpts excerpts around
// lines matching the configured error signals. Overlapping context windows
// are merged. When no signal matches a non-empty log, the final window is
// returned as the single excerpt, since failures cluster at the end.
func (n *Normalizer) Segment(text string, jobID int64) []contracts.LogExcerpt {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return nil
	}

	var hits []int
	for i, line := range lines {
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}
		for _, sig := range n.signals {
			if sig.Pattern.MatchString(line) {
				hits = append(hits, i)
				break
			}
		}
	}

	now := time.Now().UTC()

	if len(hits) == 0 {
		start := len(lines) - n.preContext - n.postContext - 1
		if start < 0 {
			start = 0
		}
		return []contracts.LogExcerpt{{
			JobID:       jobID,
			Text:        strings.Join(lines[start:], "\n"),
			LineStart:   start + 1,
			ExtractedAt: now,
		}}
	}

	// Last hits win: excerpts near the end of the log are the most likely
	// to describe the terminal failure.
	windows := mergeWindows(hits, n.preContext, n.postContext, len(lines))
	if len(windows) > n.maxExcerpts {
		windows = windows[len(windows)-n.maxExcerpts:]
	}

	excerpts := make([]contracts.LogExcerpt, 0, len(windows))
	for _, w := range windows {
		excerpts = append(excerpts, contracts.LogExcerpt{
			JobID:       jobID,
			Text:        strings.Join(lines[w.start:w.end], "\n"),
			LineStart:   w.start + 1,
			ExtractedAt: now,
		})
	}
	return excerpts
}

type window struct {
	start, end int // [start, end)
}

// mergeWindows expands each hit line by the context bounds and merges
// overlapping or adjacent windows, preserving order.
func mergeWindows(hits []int, pre, post, total int) []window {
	var windows []window
	for _, h := range hits {
		start := h - pre
		if start < 0 {
			start = 0
		}
		end := h + post + 1
		if end > total {
			end = total
		}
		if len(windows) > 0 && start <= windows[len(windows)-1].end {
			if end > windows[len(windows)-1].end {
				windows[len(windows)-1].end = end
			}
			continue
		}
		windows = append(windows, window{start: start, end: end})
	}
	return windows
}

// tailWindow keeps the last max bytes of text, cutting forward to the first
// complete line so excerpts never start mid-line.
func tailWindow(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := text[len(text)-max:]
	if idx := strings.IndexByte(cut, '\n'); idx >= 0 && idx < len(cut)-1 {
		cut = cut[idx+1:]
	}
	return cut
}
