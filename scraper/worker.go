package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/quizflow/extract"
	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/retry"
)

// runTask executes one pool task end to end: isolated context, stealth,
// cookies, resource blocking, navigation with retry, recursive frame
// collection, extraction.
//
// Ordering constraints (same reasons as any CDP-driven scrape):
//   - stealth JS and resource blocking only take effect for navigations that
//     happen after they are installed, so both precede Navigate;
//   - cookies must be set before Navigate or the first document request goes
//     out without them.
func (s *Scraper) runTask(id string, task Task) models.ScrapeOutcome {
	outcome := models.ScrapeOutcome{URL: task.URL}

	// ── 1. Isolated browsing context ─────────────────────────────────
	// One incognito context per task: no shared cookies or storage across
	// tasks, so a poisoned page cannot leak into a sibling's scrape.
	incognito, err := s.browser.Incognito()
	if err != nil {
		outcome.Err = models.NewQuizError(models.ErrCodeBrowserCrash, "failed to create browsing context", err)
		return outcome
	}
	defer func() {
		_ = proto.TargetDisposeBrowserContext{
			BrowserContextID: incognito.BrowserContextID,
		}.Call(s.browser)
	}()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		outcome.Err = models.NewQuizError(models.ErrCodeBrowserCrash, "failed to create page", err)
		return outcome
	}
	defer func() { _ = page.Close() }()

	// ── 2. Stealth injection (before navigation) ─────────────────────
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth",
			"task_id", id, "error", evalErr)
	}

	// ── 3. Externally supplied cookies ───────────────────────────────
	for _, cookie := range task.Cookies {
		domain := cookie.Domain
		if domain == "" {
			if u, parseErr := url.Parse(task.URL); parseErr == nil {
				domain = u.Host
			}
		}
		path := cookie.Path
		if path == "" {
			path = "/"
		}
		_, _ = proto.NetworkSetCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: domain,
			Path:   path,
		}.Call(page)
	}

	// ── 3b. Referer header ───────────────────────────────────────────
	// A plausible search referer keeps some bot checks quiet.
	if u, parseErr := url.Parse(task.URL); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Referer": "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
			}),
		}.Call(page)
	}

	// ── 4. Mount hijack router (blocks Image/Stylesheet/Font/Media) ──
	router := setupHijack(page, s.scraperCfg.BlockedResourceTypes)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 5. Navigate with bounded retries and fixed backoff ───────────
	navErr := retry.Do(context.Background(), s.scraperCfg.NavigationAttempts, s.scraperCfg.NavigationRetryDelay,
		func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, s.scraperCfg.NavigationTimeout)
			defer cancel()

			p := page.Context(attemptCtx)
			if err := p.Navigate(task.URL); err != nil {
				return err
			}
			// WaitRequestIdle's Fetch-domain listener conflicts with the
			// hijack router on recent Chromium, so DOM stability stands in
			// for network idle; non-convergence is tolerated.
			if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
				slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
					"task_id", id, "error", stableErr)
			}
			return nil
		})
	if navErr != nil {
		outcome.Err = categorizeError(navErr, "navigation to quiz page failed")
		return outcome
	}

	// ── 6. Locate the primary content frame ──────────────────────────
	// Absence is a valid "no quiz on this page" outcome, not an error.
	has, frameEl, err := page.Has(extract.ContentFrameSelector)
	if err != nil {
		outcome.Err = categorizeError(err, "failed to query content frame")
		return outcome
	}
	if !has {
		slog.Info("no content frame on page", "task_id", id, "url", task.URL)
		return outcome
	}

	framePage, err := frameEl.Frame()
	if err != nil {
		outcome.Err = categorizeError(err, "failed to attach to content frame")
		return outcome
	}

	// ── 7. Bounded best-effort wait for frame readiness ──────────────
	s.awaitFrameReady(id, framePage)

	// ── 8. Recursive frame collection, then extraction ───────────────
	frames := collectFrames(framePage, 0)
	outcome.Questions, outcome.Expected = extract.Extract(frames)

	slog.Info("scrape task finished",
		"task_id", id,
		"url", task.URL,
		"frames", len(frames),
		"questions", len(outcome.Questions),
		"expected", outcome.Expected,
	)
	return outcome
}

// awaitFrameReady polls the frame for document completion and a known
// content-marker element, bounded by FrameReadyTimeout. Expiry is tolerated:
// extraction proceeds on a partially-ready frame.
func (s *Scraper) awaitFrameReady(id string, framePage *rod.Page) {
	deadline := time.Now().Add(s.scraperCfg.FrameReadyTimeout)
	for time.Now().Before(deadline) {
		html, err := framePage.HTML()
		if err == nil && extract.HasContentMarker(html) {
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	slog.Debug("frame readiness wait expired, extracting anyway", "task_id", id)
}

// maxFrameDepth bounds the recursive descent. Frame graphs are tree-shaped
// by platform construction so no cycle guard is needed; the depth cap only
// protects against pathological nesting.
const maxFrameDepth = 8

// collectFrames snapshots the frame's rendered HTML and descends depth-first
// into every nested iframe reachable from it. Frames that fail to snapshot
// or attach are skipped, not fatal.
func collectFrames(framePage *rod.Page, depth int) []extract.Frame {
	if depth > maxFrameDepth {
		return nil
	}

	var frames []extract.Frame

	frameURL := ""
	if info, err := framePage.Info(); err == nil {
		frameURL = info.URL
	}

	html, err := framePage.HTML()
	if err != nil {
		slog.Debug("failed to snapshot frame HTML, skipping subtree", "frame_url", frameURL, "error", err)
		return nil
	}
	frames = append(frames, extract.Frame{URL: frameURL, HTML: html})

	nested, err := framePage.Elements("iframe")
	if err != nil {
		return frames
	}
	for _, el := range nested {
		sub, err := el.Frame()
		if err != nil {
			slog.Debug("failed to attach nested frame, skipping", "frame_url", frameURL, "error", err)
			continue
		}
		frames = append(frames, collectFrames(sub, depth+1)...)
	}
	return frames
}

// categorizeError wraps raw errors into typed QuizErrors so upper layers can
// map them to user-visible failure messages.
func categorizeError(err error, msg string) *models.QuizError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewQuizError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewQuizError(models.ErrCodeTimeout, "task canceled", err)
	default:
		return models.NewQuizError(models.ErrCodeNavigation, msg, err)
	}
}
