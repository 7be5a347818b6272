// Package platform talks to the game platform's HTML form endpoints.
package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/entrhq/tzaarbot/pkg/logging"
)

const (
	// DefaultBaseURL is the platform's public address.
	DefaultBaseURL = "http://www.boiteajeux.net/"
	// DefaultUserAgent identifies the bot to the platform.
	DefaultUserAgent = "tzaarbot"

	loginPath    = "gestion.php"
	nextGamePath = "partiesuivante.php"
	joinPagePath = "index.php?p=rejoindre"
	movePath     = "jeux/tza/traitement.php"

	// maxPageSize bounds how much of a response body is read.
	maxPageSize = 4 << 20
)

// Move actions accepted by the move endpoint.
const (
	ActionSource      = "choisirSource"
	ActionDestination = "destination"
	ActionPass        = "passer"
)

// Client keeps the cookie-authenticated connection to the platform. It is not
// safe for concurrent use; requests are strictly sequential.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	username   string
	password   string
	log        *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. A cookie jar is added when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a platform client for the given account.
func NewClient(baseURL, username, password string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid platform URL %q: %w", baseURL, err)
	}
	if username == "" {
		return nil, fmt.Errorf("platform username is required")
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		userAgent:  DefaultUserAgent,
		username:   username,
		password:   password,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}
	if c.log == nil {
		c.log = logging.MustLogger("platform")
	}
	return c, nil
}

// Username returns the account the client logs in as.
func (c *Client) Username() string {
	return c.username
}

// Login submits the account credentials and returns the resulting page.
func (c *Client) Login(ctx context.Context) (string, error) {
	c.log.Infof("logging in as %s", c.username)
	form := url.Values{
		"p":        {"encours"},
		"pAction":  {"login"},
		"username": {c.username},
		"password": {c.password},
	}
	return c.post(ctx, loginPath, form)
}

// NextGame fetches the page of the next game waiting for the bot.
func (c *Client) NextGame(ctx context.Context) (string, error) {
	return c.get(ctx, nextGamePath)
}

// JoinPage fetches the list of games the bot is invited to.
func (c *Client) JoinPage(ctx context.Context) (string, error) {
	return c.get(ctx, joinPagePath)
}

// Join accepts the invitation to game id.
func (c *Client) Join(ctx context.Context, id string) (string, error) {
	form := url.Values{
		"pAction": {"rejoindre"},
		"id":      {id},
	}
	return c.post(ctx, loginPath, form)
}

// PostMove submits one move action. col and row address the board cell; a
// pass uses -1 for both.
func (c *Client) PostMove(ctx context.Context, gameID int, action string, col, row int, token string) (string, error) {
	form := url.Values{
		"pAction": {action},
		"pL":      {strconv.Itoa(col)},
		"pC":      {strconv.Itoa(row)},
		"pIdCoup": {token},
	}
	return c.post(ctx, movePath+"?id="+strconv.Itoa(gameID), form)
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.baseURL.String() + path
	}
	return c.baseURL.ResolveReference(ref).String()
}

func (c *Client) do(req *http.Request) (string, error) {
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s %s failed with status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	c.log.Debugf("%s %s: %d bytes", req.Method, req.URL.Path, len(body))
	return string(body), nil
}
