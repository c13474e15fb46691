package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	pw "github.com/playwright-community/playwright-go"
)

// Chromium prints documents with a headless Chromium driven by playwright.
type Chromium struct {
	// BrowserPath selects a system Chromium; empty uses the playwright
	// managed browser.
	BrowserPath string
	// Install downloads the playwright driver, and the browser when no
	// BrowserPath is set, on first use.
	Install bool
	Logger  *slog.Logger

	installOnce sync.Once
	installErr  error
}

func (c *Chromium) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

func (c *Chromium) install() error {
	c.installOnce.Do(func() {
		if !c.Install {
			return
		}
		opts := &pw.RunOptions{Browsers: []string{"chromium"}}
		if c.BrowserPath != "" {
			opts.SkipInstallBrowsers = true
		}
		c.logger().Info("playwright_install_started", slog.Bool("skip_browsers", opts.SkipInstallBrowsers))
		c.installErr = pw.Install(opts)
	})
	return c.installErr
}

func (c *Chromium) Rasterize(ctx context.Context, html string, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.install(); err != nil {
		return fmt.Errorf("install playwright: %w", err)
	}

	driver, err := pw.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}
	defer func() { _ = driver.Stop() }()

	launch := pw.BrowserTypeLaunchOptions{Headless: pw.Bool(true)}
	if c.BrowserPath != "" {
		launch.ExecutablePath = pw.String(c.BrowserPath)
	}
	browser, err := driver.Chromium.Launch(launch)
	if err != nil {
		return fmt.Errorf("launch chromium: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.NewPage()
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.SetContent(html, pw.PageSetContentOptions{WaitUntil: pw.WaitUntilStateLoad}); err != nil {
		return fmt.Errorf("load report html: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := page.PDF(pw.PagePdfOptions{
		Path:            pw.String(dest),
		Format:          pw.String("A4"),
		PrintBackground: pw.Bool(true),
	}); err != nil {
		return fmt.Errorf("print pdf: %w", err)
	}
	c.logger().DebugContext(ctx, "report_rasterized", slog.String("path", dest))
	return nil
}
