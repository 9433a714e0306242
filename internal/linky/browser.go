package linky

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/jgoulah/linkyscraper/internal/config"
)

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// BrowserLogin drives the customer portal in Chrome to obtain a bearer token
type BrowserLogin struct {
	PortalURL string
	Username  string
	Password  string
	Visible   bool
	Timeout   time.Duration

	// Wait is called once the portal is open when no credentials are set.
	// It should block until the user has logged in by hand.
	Wait func()
}

// BrowserCredentials is what a browser login yields
type BrowserCredentials struct {
	Token   string
	Cookies []config.Cookie
}

// Run performs the login and captures the token the portal sends to its API
func (b *BrowserLogin) Run(ctx context.Context) (*BrowserCredentials, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !b.Visible),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(browserUserAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	// Capture the bearer token from the portal's own API calls (only once)
	capture := &tokenCapture{}
	chromedp.ListenTarget(browserCtx, capture.observe)

	if err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(b.PortalURL),
	); err != nil {
		return nil, fmt.Errorf("navigating to portal: %w", err)
	}

	if b.Username != "" && b.Password != "" {
		if err := chromedp.Run(browserCtx,
			chromedp.WaitVisible(`input[type="password"]`, chromedp.ByQuery),
			chromedp.SendKeys(`input[name="username"], input[type="email"]`, b.Username, chromedp.ByQuery),
			chromedp.SendKeys(`input[type="password"]`, b.Password, chromedp.ByQuery),
			chromedp.Sleep(500*time.Millisecond),
			chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
			chromedp.Sleep(5*time.Second), // Wait for redirect and the first API calls
		); err != nil {
			return nil, fmt.Errorf("login failed: %w", err)
		}
	} else if b.Wait != nil {
		b.Wait()
	}

	cookies, err := ExtractCookies(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("extracting cookies: %w", err)
	}

	token := capture.token()
	if token == "" {
		return nil, fmt.Errorf("could not capture auth token from network requests (did the portal load consumption data?)")
	}

	return &BrowserCredentials{Token: token, Cookies: cookies}, nil
}

// tokenCapture keeps the first bearer token seen in outgoing requests.
// chromedp delivers events on its own goroutine.
type tokenCapture struct {
	mu       sync.Mutex
	captured string
}

func (c *tokenCapture) observe(ev interface{}) {
	req, ok := ev.(*network.EventRequestWillBeSent)
	if !ok || req.Request == nil {
		return
	}
	token := bearerFromHeaders(req.Request.Headers)
	if token == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captured == "" {
		c.captured = token
	}
}

func (c *tokenCapture) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captured
}

func bearerFromHeaders(headers network.Headers) string {
	for name, value := range headers {
		if !strings.EqualFold(name, "Authorization") {
			continue
		}
		str, ok := value.(string)
		if !ok {
			continue
		}
		if token, found := strings.CutPrefix(str, "Bearer "); found && token != "" {
			return token
		}
	}
	return ""
}

// ExtractCookies extracts all cookies from the current browser context
func ExtractCookies(ctx context.Context) ([]config.Cookie, error) {
	var cookies []*network.Cookie

	if err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	); err != nil {
		return nil, fmt.Errorf("getting cookies: %w", err)
	}

	result := make([]config.Cookie, 0, len(cookies))
	for _, c := range cookies {
		result = append(result, config.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}

	return result, nil
}
