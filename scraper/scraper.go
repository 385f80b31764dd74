// Package scraper owns the headless browser and the bounded worker pool
// that navigation+extraction tasks run on.
package scraper

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/quizflow/config"
	"github.com/use-agent/quizflow/models"
)

// Scraper manages the browser lifecycle and the worker pool. It is
// constructed once at startup and injected into the orchestrator; there is
// no lazy first-use initialisation. Safe for concurrent use.
type Scraper struct {
	browser    *rod.Browser
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
	pool       *Pool
	startTime  time.Time
}

// New launches a headless browser and initialises the worker pool. The
// browser and pool live for the process lifetime and are reused across all
// sessions; Close tears both down.
func New(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) (*Scraper, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewQuizError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewQuizError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	s := &Scraper{
		browser:    browser,
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
		startTime:  time.Now(),
	}
	s.pool = NewPool(browserCfg.MaxWorkers, s.runTask)
	slog.Info("worker pool created", "maxWorkers", browserCfg.MaxWorkers)

	return s, nil
}

// Pool returns the worker pool tasks are submitted to.
func (s *Scraper) Pool() *Pool {
	return s.pool
}

// Stats returns a snapshot of the pool's current state.
func (s *Scraper) Stats() PoolStats {
	return PoolStats{
		MaxWorkers:    s.browserCfg.MaxWorkers,
		ActiveWorkers: s.pool.Active(),
	}
}

// Close stops the pool dispatcher and kills the browser process. Call on
// graceful shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: closing browser")
	s.pool.Close()
	s.browser.MustClose()
	slog.Info("scraper shutdown complete")
}

// PoolStats is a snapshot of worker pool occupancy.
type PoolStats struct {
	MaxWorkers    int `json:"max_workers"`
	ActiveWorkers int `json:"active_workers"`
}
