package nbexportpdf

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/goliatone/go-nbexport/nbexport"
)

const defaultPDFScale = 1.0

var pdfLengthPattern = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]*)\s*$`)

var pdfPageSizesInches = map[string]struct {
	width  float64
	height float64
}{
	"A3":     {width: 11.69, height: 16.54},
	"A4":     {width: 8.27, height: 11.69},
	"A5":     {width: 5.83, height: 8.27},
	"LETTER": {width: 8.5, height: 11},
	"LEGAL":  {width: 8.5, height: 14},
}

// ExternalAssetsPolicy controls whether the print page may fetch remote
// assets. The empty value blocks them, which keeps rendering hermetic.
type ExternalAssetsPolicy string

const (
	ExternalAssetsBlock ExternalAssetsPolicy = "block"
	ExternalAssetsAllow ExternalAssetsPolicy = "allow"
)

// Options configures the Chromium print-to-PDF call. Lengths accept in, cm,
// mm, pt, and px suffixes; a bare number means inches.
type Options struct {
	PageSize          string
	Landscape         *bool
	PrintBackground   *bool
	Scale             float64
	MarginTop         string
	MarginBottom      string
	MarginLeft        string
	MarginRight       string
	PreferCSSPageSize *bool
	BaseURL           string
	ExternalAssets    ExternalAssetsPolicy
}

// ChromiumBackend renders themed notebook HTML to PDF through a shared
// headless Chromium instance. It carries the webpdf capability bit, so the
// output keeps the requested theme.
type ChromiumBackend struct {
	Markup       nbexport.MarkupRenderer
	BrowserPath  string
	Headless     bool
	Timeout      time.Duration
	Args         []string
	Options      Options
	MaxHTMLBytes int64

	initOnce      sync.Once
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

var _ nbexport.Backend = (*ChromiumBackend)(nil)

// NewChromiumBackend returns a webpdf backend with the default markup
// renderer and a headless browser.
func NewChromiumBackend() *ChromiumBackend {
	return &ChromiumBackend{
		Markup:   nbexport.NewHTMLRenderer(),
		Headless: true,
	}
}

func (b *ChromiumBackend) Name() string { return "webpdf" }

func (b *ChromiumBackend) Capability() nbexport.Capability { return nbexport.CapWebPDF }

// Render converts the notebook to themed HTML and prints it to PDF.
func (b *ChromiumBackend) Render(ctx context.Context, in nbexport.RenderInput) (nbexport.BackendResult, error) {
	if b == nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, "chromium backend is nil", nil)
	}
	if b.Markup == nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindValidation, "chromium backend requires a markup renderer", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	htmlBody, err := b.Markup.RenderHTML(ctx, in)
	if err != nil {
		return nbexport.BackendResult{}, err
	}
	if err := checkHTMLSize(htmlBody, b.MaxHTMLBytes); err != nil {
		return nbexport.BackendResult{}, err
	}

	if err := b.ensureBrowser(); err != nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, "chromium backend init failed", err)
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()

	// The tab context descends from the browser, not from the caller, so the
	// caller's deadline has to be bridged onto it by hand.
	execCtx, cancelReq := context.WithCancel(tabCtx)
	defer cancelReq()
	go func() {
		select {
		case <-ctx.Done():
			cancelReq()
		case <-execCtx.Done():
		}
	}()
	if b.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		execCtx, cancelTimeout = context.WithTimeout(execCtx, b.Timeout)
		defer cancelTimeout()
	}

	options := b.pdfOptions()
	htmlInput := injectBaseURL(htmlBody, options.BaseURL)

	var pdf []byte
	actions := []chromedp.Action{}
	if options.ExternalAssets != ExternalAssetsAllow {
		actions = append(actions,
			network.Enable(),
			network.SetBlockedURLs().WithURLPatterns(blockExternalPatterns()),
		)
	}

	actions = append(actions,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(htmlInput)).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			params, err := buildPrintToPDFParams(options)
			if err != nil {
				return err
			}
			pdf, _, err = params.Do(ctx)
			return err
		}),
	)

	if err := chromedp.Run(execCtx, actions...); err != nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, "chromium pdf render failed", err)
	}
	return nbexport.BackendResult{Body: pdf, AppliedTheme: in.Theme}, nil
}

// Close releases Chromium resources if they have been initialized.
func (b *ChromiumBackend) Close() error {
	if b == nil {
		return nil
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

func (b *ChromiumBackend) ensureBrowser() error {
	b.initOnce.Do(func() {
		options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if b.BrowserPath != "" {
			options = append(options, chromedp.ExecPath(b.BrowserPath))
		}
		options = append(options, chromedp.Flag("headless", b.Headless))
		options = append(options, allocatorOptionsFromArgs(b.Args)...)

		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), options...)
		b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)
	})
	if b.allocCtx == nil || b.browserCtx == nil {
		return errors.New("chromium allocator unavailable")
	}
	return nil
}

func (b *ChromiumBackend) pdfOptions() Options {
	options := b.Options
	if options.Scale == 0 {
		options.Scale = defaultPDFScale
	}
	if options.PrintBackground == nil {
		options.PrintBackground = boolPtr(true)
	}
	return options
}

// blockExternalPatterns blocks every http and https fetch so offline renders
// stay deterministic. Inline content (data URIs, set document markup) is
// unaffected.
func blockExternalPatterns() []*network.BlockPattern {
	return []*network.BlockPattern{
		{URLPattern: "http://*:*/*", Block: true},
		{URLPattern: "https://*:*/*", Block: true},
	}
}

func buildPrintToPDFParams(opts Options) (*page.PrintToPDFParams, error) {
	params := page.PrintToPDF()

	scale := opts.Scale
	if scale == 0 {
		scale = defaultPDFScale
	}
	if scale < 0.1 || scale > 2.0 {
		return nil, nbexport.NewError(nbexport.KindValidation, "pdf scale must be between 0.1 and 2.0", nil)
	}
	params = params.WithScale(scale)

	if opts.Landscape != nil {
		params = params.WithLandscape(*opts.Landscape)
	}
	if opts.PrintBackground != nil {
		params = params.WithPrintBackground(*opts.PrintBackground)
	}

	preferCSS := false
	if opts.PreferCSSPageSize != nil {
		preferCSS = *opts.PreferCSSPageSize
	} else if opts.PageSize == "" {
		preferCSS = true
	}
	if preferCSS {
		params = params.WithPreferCSSPageSize(true)
	}

	if opts.PageSize != "" {
		size, ok := pdfPageSizesInches[strings.ToUpper(opts.PageSize)]
		if !ok {
			return nil, nbexport.NewError(nbexport.KindValidation, fmt.Sprintf("unsupported pdf page size: %s", opts.PageSize), nil)
		}
		params = params.WithPaperWidth(size.width).WithPaperHeight(size.height)
	}

	if opts.MarginTop != "" {
		value, err := parseLengthInches(opts.MarginTop)
		if err != nil {
			return nil, err
		}
		params = params.WithMarginTop(value)
	}
	if opts.MarginBottom != "" {
		value, err := parseLengthInches(opts.MarginBottom)
		if err != nil {
			return nil, err
		}
		params = params.WithMarginBottom(value)
	}
	if opts.MarginLeft != "" {
		value, err := parseLengthInches(opts.MarginLeft)
		if err != nil {
			return nil, err
		}
		params = params.WithMarginLeft(value)
	}
	if opts.MarginRight != "" {
		value, err := parseLengthInches(opts.MarginRight)
		if err != nil {
			return nil, err
		}
		params = params.WithMarginRight(value)
	}

	return params, nil
}

func parseLengthInches(value string) (float64, error) {
	matches := pdfLengthPattern.FindStringSubmatch(value)
	if len(matches) != 3 {
		return 0, nbexport.NewError(nbexport.KindValidation, fmt.Sprintf("invalid pdf length: %s", value), nil)
	}

	raw := matches[1]
	unit := strings.ToLower(matches[2])
	if unit == "" {
		unit = "in"
	}

	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, nbexport.NewError(nbexport.KindValidation, fmt.Sprintf("invalid pdf length: %s", value), err)
	}

	switch unit {
	case "in":
		return amount, nil
	case "cm":
		return amount / 2.54, nil
	case "mm":
		return amount / 25.4, nil
	case "pt":
		return amount / 72.0, nil
	case "px":
		return amount / 96.0, nil
	default:
		return 0, nbexport.NewError(nbexport.KindValidation, fmt.Sprintf("unsupported pdf length unit: %s", unit), nil)
	}
}

func injectBaseURL(htmlInput []byte, baseURL string) []byte {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return htmlInput
	}

	lower := strings.ToLower(string(htmlInput))
	if strings.Contains(lower, "<base") {
		return htmlInput
	}

	baseTag := fmt.Sprintf(`<base href="%s">`, html.EscapeString(baseURL))
	if headIdx := strings.Index(lower, "<head"); headIdx >= 0 {
		if end := strings.Index(lower[headIdx:], ">"); end >= 0 {
			insertPos := headIdx + end + 1
			return append(append([]byte{}, htmlInput[:insertPos]...), append([]byte(baseTag), htmlInput[insertPos:]...)...)
		}
	}

	if htmlIdx := strings.Index(lower, "<html"); htmlIdx >= 0 {
		if end := strings.Index(lower[htmlIdx:], ">"); end >= 0 {
			insertPos := htmlIdx + end + 1
			injected := fmt.Sprintf("<head>%s</head>", baseTag)
			return append(append([]byte{}, htmlInput[:insertPos]...), append([]byte(injected), htmlInput[insertPos:]...)...)
		}
	}

	return append([]byte(baseTag), htmlInput...)
}

func allocatorOptionsFromArgs(args []string) []chromedp.ExecAllocatorOption {
	options := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			options = append(options, chromedp.Flag(name, value))
			continue
		}
		options = append(options, chromedp.Flag(arg, true))
	}
	return options
}

func boolPtr(value bool) *bool {
	return &value
}
