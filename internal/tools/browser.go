package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/rahul/stepwise/internal/session"
)

const browserActionTimeout = 60 * time.Second

// BrowserTool drives Chrome for browsing steps. Each session gets its own browser, which
// stays open across that session's steps until 'close' or Release.
type BrowserTool struct {
	Headless      bool
	ScreenshotDir string

	mu       sync.Mutex
	sessions map[string]*browserSession
	launch   func() (*browserSession, error)
}

type browserSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBrowserTool(headless bool, screenshotDir string) *BrowserTool {
	if screenshotDir == "" {
		screenshotDir = "screenshots"
	}
	b := &BrowserTool{
		Headless:      headless,
		ScreenshotDir: screenshotDir,
		sessions:      make(map[string]*browserSession),
	}
	b.launch = b.launchChrome
	return b
}

func (b *BrowserTool) Name() string {
	return "browser"
}

func (b *BrowserTool) Description() string {
	return "Control a browser to interact with websites. Actions: 'navigate' (url), 'content', 'text' (selector), 'click' (selector), 'type' (selector, text), 'wait' (selector), 'screenshot', 'close'."
}

func (b *BrowserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"navigate", "content", "text", "click", "type", "wait", "screenshot", "close"},
				"description": "The action to perform.",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to navigate to (required for 'navigate')",
			},
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector for the target element",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "The text to type (required for 'type')",
			},
		},
		"required": []string{"action"},
	}
}

func validateBrowserArgs(args Arguments) error {
	switch action := args.String("action"); action {
	case "navigate":
		return args.Require("url")
	case "text", "click", "wait":
		return args.Require("selector")
	case "type":
		return args.Require("selector", "text")
	case "content", "screenshot", "close":
		return nil
	case "":
		return Failf("action is required")
	default:
		return Failf("invalid action %q", action)
	}
}

// browserFor returns the browser of the session carried by ctx, launching it on first use.
func (b *BrowserTool) browserFor(ctx context.Context) (context.Context, error) {
	id := session.IDFromContext(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[id]; ok {
		if s.ctx.Err() == nil {
			return s.ctx, nil
		}
		s.cancel()
		delete(b.sessions, id)
	}

	s, err := b.launch()
	if err != nil {
		return nil, err
	}
	b.sessions[id] = s
	return s.ctx, nil
}

func (b *BrowserTool) launchChrome() (*browserSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}
	return &browserSession{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

// Release shuts down the browser of one session, if it is running.
func (b *BrowserTool) Release(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[sessionID]; ok {
		s.cancel()
		delete(b.sessions, sessionID)
	}
}

// Close shuts down every running browser.
func (b *BrowserTool) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.sessions {
		s.cancel()
		delete(b.sessions, id)
	}
}

func (b *BrowserTool) Execute(ctx context.Context, args Arguments) (string, error) {
	if err := validateBrowserArgs(args); err != nil {
		return "", err
	}
	action := args.String("action")
	if action == "close" {
		b.Release(session.IDFromContext(ctx))
		return "Successfully closed the browser.", nil
	}

	browserCtx, err := b.browserFor(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to initialize browser: %w", err)
	}

	actionCtx, cancel := context.WithTimeout(browserCtx, browserActionTimeout)
	defer cancel()
	// The browser outlives the step, so the step's cancellation is forwarded by hand.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var result string
	switch action {
	case "navigate":
		url := args.String("url")
		err = chromedp.Run(actionCtx, chromedp.Navigate(url))
		result = fmt.Sprintf("Successfully navigated to %s", url)

	case "content":
		err = chromedp.Run(actionCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			result, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}))
		if len(result) > maxScrapedChars {
			result = result[:maxScrapedChars] + "\n... (truncated)"
		}

	case "text":
		err = chromedp.Run(actionCtx, chromedp.Text(args.String("selector"), &result, chromedp.ByQuery))

	case "click":
		err = chromedp.Run(actionCtx, chromedp.Click(args.String("selector"), chromedp.ByQuery))
		result = fmt.Sprintf("Clicked %s", args.String("selector"))

	case "type":
		err = chromedp.Run(actionCtx, chromedp.SendKeys(args.String("selector"), args.String("text"), chromedp.ByQuery))
		result = fmt.Sprintf("Typed text in %s", args.String("selector"))

	case "wait":
		err = chromedp.Run(actionCtx, chromedp.WaitVisible(args.String("selector"), chromedp.ByQuery))
		result = fmt.Sprintf("Finished waiting for %s", args.String("selector"))

	case "screenshot":
		var buf []byte
		if err = chromedp.Run(actionCtx, chromedp.CaptureScreenshot(&buf)); err == nil {
			result, err = b.saveScreenshot(buf)
		}
	}

	if err != nil {
		return "", Failf("browser action %s failed: %v", action, err)
	}
	return result, nil
}

func (b *BrowserTool) saveScreenshot(buf []byte) (string, error) {
	if err := os.MkdirAll(b.ScreenshotDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(b.ScreenshotDir, fmt.Sprintf("screenshot_%d.png", time.Now().UnixNano()))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	return fmt.Sprintf("Screenshot saved to %s", absPath), nil
}
