package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	pdfTimeout = 30 * time.Second
	// Letter, inches.
	pdfPaperWidth  = 8.5
	pdfPaperHeight = 11.0
	pdfMargin      = 0.75
)

var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

// pdfFooter numbers the pages of a printed session.
const pdfFooter = `<div style="font-size:8px;width:100%;text-align:center;color:#777;">` +
	`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`

func chromePath() (string, error) {
	for _, name := range chromeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no chromium or chrome binary on PATH", ErrPDFDependencyMissing)
}

// dataURL percent-encodes the page byte by byte. url.QueryEscape turns spaces
// into '+', which data URLs do not decode.
func dataURL(html string) string {
	const unreserved = "-_.~"
	var b strings.Builder
	b.Grow(len(html) * 3)
	b.WriteString("data:text/html;charset=utf-8,")
	for i := 0; i < len(html); i++ {
		c := html[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') || strings.IndexByte(unreserved, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// exportPDF prints the session page with headless Chrome.
func exportPDF(ctx context.Context, html, title string) (*Result, error) {
	chrome, err := chromePath()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pdfTimeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chrome),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var data []byte
	printPDF := chromedp.ActionFunc(func(ctx context.Context) error {
		out, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(pdfPaperWidth).
			WithPaperHeight(pdfPaperHeight).
			WithMarginTop(pdfMargin).
			WithMarginBottom(pdfMargin).
			WithMarginLeft(pdfMargin).
			WithMarginRight(pdfMargin).
			WithDisplayHeaderFooter(true).
			WithHeaderTemplate("<span></span>").
			WithFooterTemplate(pdfFooter).
			Do(ctx)
		data = out
		return err
	})
	if err := chromedp.Run(browserCtx, chromedp.Navigate(dataURL(html)), chromedp.WaitReady("body"), printPDF); err != nil {
		return nil, fmt.Errorf("print session %q to pdf: %w", title, err)
	}

	return &Result{
		Data:     data,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}
