package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// ErrNotInteractable reports a locator that resolved to zero elements or to
// one the page will not let us interact with.
var ErrNotInteractable = errors.New("element not interactable")

// maxSummaryLength clamps the extracted page text handed to callers.
const maxSummaryLength = 4000

// Config controls the browser process.
type Config struct {
	Headless bool
	// ActionTimeout bounds every single navigation, interaction and
	// observation. Zero means 60s.
	ActionTimeout time.Duration
}

// Controller drives a single Chrome instance. It is exclusively owned by one
// run at a time; Close releases the browser process.
type Controller struct {
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	actionTimeout time.Duration
	sanitizer     *bluemonday.Policy
	logger        *zap.Logger
}

// New launches the browser and waits for it to be ready.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Controller, error) {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	return &Controller{
		allocCtx:      allocCtx,
		browserCtx:    browserCtx,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		actionTimeout: cfg.ActionTimeout,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger,
	}, nil
}

// run executes chromedp actions under the per-action timeout. The caller's
// context gates entry; the browser context carries the session.
func (c *Controller) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	actionCtx, cancel := context.WithTimeout(c.browserCtx, c.actionTimeout)
	defer cancel()
	return chromedp.Run(actionCtx, actions...)
}

// Navigate loads the URL and waits for the DOM to be ready. Failures are the
// caller's to record; they do not poison the session.
func (c *Controller) Navigate(ctx context.Context, rawURL string) error {
	c.logger.Debug("navigating", zap.String("url", rawURL))
	if err := c.run(ctx, chromedp.Navigate(rawURL)); err != nil {
		return fmt.Errorf("navigate to %s: %w", rawURL, err)
	}
	return nil
}

// exists reports whether the selector matches at least one element right now.
func (c *Controller) exists(ctx context.Context, selector string) (bool, error) {
	var n int
	js := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	if err := c.run(ctx, chromedp.Evaluate(js, &n)); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Click clicks the first element matching the selector.
func (c *Controller) Click(ctx context.Context, selector string) error {
	ok, err := c.exists(ctx, selector)
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("click %q: %w: no matching element", selector, ErrNotInteractable)
	}
	if err := c.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w: %v", selector, ErrNotInteractable, err)
	}
	return nil
}

// Type replaces the content of the matching input with text. An empty string
// clears the field.
func (c *Controller) Type(ctx context.Context, selector, text string) error {
	ok, err := c.exists(ctx, selector)
	if err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("type into %q: %w: no matching element", selector, ErrNotInteractable)
	}
	err = c.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type into %q: %w: %v", selector, ErrNotInteractable, err)
	}
	return nil
}

// Select picks the option with the given value in a <select> element and
// fires the input/change events a real selection would.
func (c *Controller) Select(ctx context.Context, selector, value string) error {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el || el.tagName.toLowerCase() !== 'select') return false;
		const opt = Array.from(el.options).find(o => o.value === %q);
		if (!opt) return false;
		el.value = opt.value;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, selector, value)

	var ok bool
	if err := c.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return fmt.Errorf("select %q in %q: %w", value, selector, err)
	}
	if !ok {
		return fmt.Errorf("select %q in %q: %w: element or option not found", value, selector, ErrNotInteractable)
	}
	return nil
}

// Observe harvests the page's interactive elements and returns a simplified
// snapshot of the visible, enabled ones.
func (c *Controller) Observe(ctx context.Context) ([]Element, error) {
	var raw []rawElement
	if err := c.run(ctx, chromedp.Evaluate(harvestJS, &raw)); err != nil {
		return nil, fmt.Errorf("observing interactive elements: %w", err)
	}
	elements := simplify(raw)
	c.logger.Debug("observed page", zap.Int("elements", len(elements)))
	return elements, nil
}

// PageSummary extracts the readable main content of the current page as
// sanitized plain text, truncated to a bounded length. It is advisory
// context for the oracle; failures return an empty summary, not an error
// that would interrupt a run.
func (c *Controller) PageSummary(ctx context.Context) string {
	var html, location string
	err := c.run(ctx,
		chromedp.Location(&location),
		chromedp.ActionFunc(func(cctx context.Context) error {
			node, err := dom.GetDocument().Do(cctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(cctx)
			return err
		}),
	)
	if err != nil {
		c.logger.Debug("page summary unavailable", zap.Error(err))
		return ""
	}

	pageURL, err := url.Parse(location)
	if err != nil {
		pageURL = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		c.logger.Debug("readability extraction failed", zap.Error(err))
		return ""
	}

	text := strings.TrimSpace(c.sanitizer.Sanitize(article.TextContent))
	return clampText(text, maxSummaryLength)
}

// Close releases the browser process. Safe to call once per controller.
func (c *Controller) Close() error {
	c.browserCancel()
	c.allocCancel()
	c.logger.Debug("browser closed")
	return nil
}
