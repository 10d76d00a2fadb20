package yagna

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golemfacade/internal/logging"
	"golemfacade/internal/services"
)

// DefaultAPIURL is where yagna serves its REST API unless configured otherwise.
const DefaultAPIURL = "http://127.0.0.1:11502"

const unauthorizedHint = "Unauthorized call to yagna daemon - is another instance of yagna running?"

// HTTPDoer describes the HTTP client used by the REST client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Code int
	Path string
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("http call failed (%s) code %d", e.Path, e.Code)
	}
	return fmt.Sprintf("http call failed (%s) code %d: %s", e.Path, e.Code, body)
}

// Client talks to the yagna REST API. It is safe for concurrent use; the app
// key can be swapped with Authorize while requests are in flight.
type Client struct {
	baseURL string
	http    HTTPDoer
	logger  *slog.Logger

	mu     sync.RWMutex
	appKey string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP transport.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithAppKey sets the initial bearer key.
func WithAppKey(key string) Option {
	return func(c *Client) {
		c.appKey = strings.TrimSpace(key)
	}
}

// NewClient constructs a REST client for baseURL.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	c := &Client{
		baseURL: baseURL,
		http:    http.DefaultClient,
		logger:  logging.NewComponentLogger(logger, "yagna-api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Authorize sets the app key sent as bearer token on every request.
func (c *Client) Authorize(key string) {
	c.mu.Lock()
	c.appKey = strings.TrimSpace(key)
	c.mu.Unlock()
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.appKey
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, services.Wrap(services.ErrDecode, "yagna-api", "encode request", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "yagna-api", "build request", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if key := c.key(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

// send performs the request and returns the response when it succeeded. The
// caller owns the body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrTransport, "yagna-api", req.Method, path, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Code: resp.StatusCode, Path: path, Body: string(body)}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, services.Wrap(services.ErrUnauthorized, "yagna-api", req.Method, unauthorizedHint, statusErr)
		case http.StatusNotFound:
			return nil, services.Wrap(services.ErrNotFound, "yagna-api", req.Method, path, statusErr)
		default:
			return nil, services.Wrap(services.ErrTransport, "yagna-api", req.Method, path, statusErr)
		}
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, method, path string, headers http.Header, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	for k, values := range headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrTransport, "yagna-api", "read response", path, err)
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return services.Wrap(services.ErrDecode, "yagna-api", "decode response", path+": empty body", nil)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return services.Wrap(services.ErrDecode, "yagna-api", "decode response", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, nil, out)
}

// FormatTimestamp renders t the way the daemon expects query timestamps.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.0000000Z07:00")
}

func buildPath(path string, args url.Values) string {
	if len(args) == 0 {
		return path
	}
	return path + "?" + args.Encode()
}

func sinceArgs(key string, since time.Time) url.Values {
	if since.IsZero() {
		return nil
	}
	return url.Values{key: []string{FormatTimestamp(since)}}
}

// Me returns the identity the app key belongs to.
func (c *Client) Me(ctx context.Context) (MeInfo, error) {
	var me MeInfo
	err := c.get(ctx, "/me", &me)
	return me, err
}

func (c *Client) Agreement(ctx context.Context, agreementID string) (*Agreement, error) {
	var agreement Agreement
	if err := c.get(ctx, "/market-api/v1/agreements/"+url.PathEscape(agreementID), &agreement); err != nil {
		return nil, err
	}
	return &agreement, nil
}

// AgreementsSince lists agreements created after since; a zero since lists all.
func (c *Client) AgreementsSince(ctx context.Context, since time.Time) ([]AgreementInfo, error) {
	var out []AgreementInfo
	err := c.get(ctx, buildPath("/market-api/v1/agreements", sinceArgs("afterDate", since)), &out)
	return out, err
}

func (c *Client) ActivityState(ctx context.Context, activityID string) (StatePair, error) {
	var pair StatePair
	err := c.get(ctx, "/activity-api/v1/activity/"+url.PathEscape(activityID)+"/state", &pair)
	return pair, err
}

// ActivityAgreement returns the agreement an activity runs under.
func (c *Client) ActivityAgreement(ctx context.Context, activityID string) (string, error) {
	var id string
	err := c.get(ctx, "/activity-api/v1/activity/"+url.PathEscape(activityID)+"/agreement", &id)
	return id, err
}

// ActivitiesForAgreement lists the activity ids opened under an agreement.
func (c *Client) ActivitiesForAgreement(ctx context.Context, agreementID string) ([]string, error) {
	var ids []string
	err := c.get(ctx, buildPath("/activity-api/v1/activity", url.Values{"agreementId": []string{agreementID}}), &ids)
	return ids, err
}

func (c *Client) ActivityUsage(ctx context.Context, activityID string) (ActivityUsage, error) {
	var usage ActivityUsage
	err := c.get(ctx, "/activity-api/v1/activity/"+url.PathEscape(activityID)+"/usage", &usage)
	return usage, err
}

func (c *Client) Invoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	var invoice Invoice
	if err := c.get(ctx, "/payment-api/v1/invoices/"+url.PathEscape(invoiceID), &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (c *Client) InvoicesSince(ctx context.Context, since time.Time) ([]Invoice, error) {
	var out []Invoice
	err := c.get(ctx, buildPath("/payment-api/v1/invoices", sinceArgs("afterTimestamp", since)), &out)
	return out, err
}

// InvoicePayments lists the payments covering an invoice.
func (c *Client) InvoicePayments(ctx context.Context, invoiceID string) ([]Payment, error) {
	var out []Payment
	err := c.get(ctx, "/payment-api/v1/invoices/"+url.PathEscape(invoiceID)+"/payments", &out)
	return out, err
}

func (c *Client) PaymentsSince(ctx context.Context, since time.Time) ([]Payment, error) {
	var out []Payment
	err := c.get(ctx, buildPath("/payment-api/v1/payments", sinceArgs("afterTimestamp", since)), &out)
	return out, err
}

// InvoiceEvents long-polls for invoice lifecycle events after since. The
// server holds the request for up to timeout when nothing is pending.
func (c *Client) InvoiceEvents(ctx context.Context, since time.Time, timeout time.Duration) ([]InvoiceEvent, error) {
	seconds := int(timeout / time.Second)
	if seconds <= 0 {
		seconds = 10
	}
	args := url.Values{
		"timeout":        []string{fmt.Sprint(seconds)},
		"afterTimestamp": []string{FormatTimestamp(since)},
	}
	names := make([]string, 0, len(InvoiceEventTypes))
	for _, t := range InvoiceEventTypes {
		names = append(names, string(t))
	}
	joined := strings.Join(names, ",")
	headers := http.Header{}
	headers.Set("X-Requestor-Events", joined)
	headers.Set("X-Provider-Events", joined)

	var out []InvoiceEvent
	err := c.call(ctx, http.MethodGet, buildPath("/payment-api/v1/invoiceEvents", args), headers, nil, &out)
	return out, err
}

// AgreementEvents lists market agreement events after since.
func (c *Client) AgreementEvents(ctx context.Context, since time.Time) ([]AgreementEvent, error) {
	var out []AgreementEvent
	err := c.get(ctx, buildPath("/market-api/v1/agreementEvents", sinceArgs("afterTimestamp", since)), &out)
	return out, err
}

// TerminationReason returns the event that terminated an agreement.
func (c *Client) TerminationReason(ctx context.Context, agreementID string) (*AgreementEvent, error) {
	var event AgreementEvent
	if err := c.get(ctx, "/market-api/v1/agreements/"+url.PathEscape(agreementID)+"/terminate/reason", &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// TerminateAgreement asks the daemon to end an agreement from the provider side.
func (c *Client) TerminateAgreement(ctx context.Context, agreementID string, reason Reason) error {
	return c.call(ctx, http.MethodPost, "/market-api/v1/agreements/"+url.PathEscape(agreementID)+"/terminate", nil, reason, nil)
}

// DestroyActivity ends an activity on the provider side.
func (c *Client) DestroyActivity(ctx context.Context, activityID string) error {
	return c.call(ctx, http.MethodDelete, "/activity-api/v1/activity/"+url.PathEscape(activityID), nil, nil, nil)
}

// OpenMonitor opens the activity monitor stream. The returned reader yields
// one TrackingEvent payload per message; close it to release the connection.
func (c *Client) OpenMonitor(ctx context.Context) (*MessageReader, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/activity-api/v1/_monitor", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return NewMessageReader(resp.Body, c.logger), nil
}

// IsUnauthorized reports whether err came from a 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, services.ErrUnauthorized)
}
