// Package upstream implements the HTTP client the gateway uses to talk to
// individual OPTIMADE databases.
package upstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// TransportKind classifies a failure to obtain a decodable response.
type TransportKind string

const (
	KindTimeout TransportKind = "timeout"
	KindDNS     TransportKind = "dns"
	KindConnect TransportKind = "connect"
	KindTLS     TransportKind = "tls"
	KindRead    TransportKind = "read"
	KindDecode  TransportKind = "decode"
)

// UpstreamError is a non-2xx answer from an upstream database. Errors holds
// the decoded OPTIMADE error objects when the body carried any; Body is kept
// for diagnostics either way.
type UpstreamError struct {
	Status int
	Errors []optimade.Error
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// TransportError is a failure to reach the upstream or to decode its answer.
type TransportError struct {
	Kind    TransportKind
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %s", e.Kind, e.Message)
}

// Outcome is the result of one upstream fetch. Exactly one of the three
// fields is set.
type Outcome struct {
	Response  *optimade.Response
	Upstream  *UpstreamError
	Transport *TransportError
}

// OK reports whether the fetch produced a decodable 2xx response.
func (o Outcome) OK() bool {
	return o.Response != nil
}

// Client fetches entry listings from upstream OPTIMADE databases. It performs
// no retries; a failed call is reported as-is and folded into the merged
// response by the caller.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates an upstream client. The underlying http.Client carries no
// global timeout; every call is bounded by its context instead.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "optimade-gateway/" + optimade.APIVersion,
	}
}

// Fetch performs one GET against {base_url}/v{major}/{endpoint} with the
// given parameters, bounded by timeout.
func (c *Client) Fetch(ctx context.Context, db storage.DatabaseRecord, endpoint string, params optimade.QueryParams, timeout time.Duration) Outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	url := db.BaseURL + "/" + optimade.VersionPath() + "/" + endpoint
	if query := params.Encode(); query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return transportOutcome(KindConnect, err)
	}
	req.Header.Set("Accept", "application/vnd.api+json, application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportOutcome(classifyDialError(err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if isTimeout(err) {
			return transportOutcome(KindTimeout, err)
		}
		return transportOutcome(KindRead, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upstream := &UpstreamError{Status: resp.StatusCode, Body: truncate(string(body))}
		var decoded optimade.Response
		if json.Unmarshal(body, &decoded) == nil {
			upstream.Errors = decoded.Errors
		}
		return Outcome{Upstream: upstream}
	}

	var decoded optimade.Response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return transportOutcome(KindDecode, err)
	}
	if decoded.Data == nil && decoded.Errors == nil {
		return transportOutcome(KindDecode, errors.New("response has neither data nor errors"))
	}
	return Outcome{Response: &decoded}
}

// EntryOutcome is the result of a single-entry fetch. Exactly one of the
// three fields is set.
type EntryOutcome struct {
	Response  *optimade.SingleResponse
	Upstream  *UpstreamError
	Transport *TransportError
}

// FetchEntry performs one GET against
// {base_url}/v{major}/{endpoint}/{entryID}, bounded by timeout. Single-entry
// responses carry `data` as one object rather than an array, hence the
// separate decode path.
func (c *Client) FetchEntry(ctx context.Context, db storage.DatabaseRecord, endpoint, entryID string, params optimade.QueryParams, timeout time.Duration) EntryOutcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	url := db.BaseURL + "/" + optimade.VersionPath() + "/" + endpoint + "/" + entryID
	if query := params.Encode(); query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return EntryOutcome{Transport: &TransportError{Kind: KindConnect, Message: err.Error()}}
	}
	req.Header.Set("Accept", "application/vnd.api+json, application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return EntryOutcome{Transport: &TransportError{Kind: classifyDialError(err), Message: err.Error()}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		kind := KindRead
		if isTimeout(err) {
			kind = KindTimeout
		}
		return EntryOutcome{Transport: &TransportError{Kind: kind, Message: err.Error()}}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upstream := &UpstreamError{Status: resp.StatusCode, Body: truncate(string(body))}
		var decoded optimade.Response
		if json.Unmarshal(body, &decoded) == nil {
			upstream.Errors = decoded.Errors
		}
		return EntryOutcome{Upstream: upstream}
	}

	var decoded optimade.SingleResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return EntryOutcome{Transport: &TransportError{Kind: KindDecode, Message: err.Error()}}
	}
	return EntryOutcome{Response: &decoded}
}

// maxBodySize caps how much of an upstream body is read. 64 MiB comfortably
// fits any realistic structures page.
const maxBodySize = 64 << 20

func transportOutcome(kind TransportKind, err error) Outcome {
	return Outcome{Transport: &TransportError{Kind: kind, Message: err.Error()}}
}

// classifyDialError maps a request error to a transport kind. Timeouts win
// over everything else; context cancellation counts as a timeout because the
// only cancellations the orchestrator issues are deadline-driven.
func classifyDialError(err error) TransportKind {
	if isTimeout(err) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}
	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &recordErr) {
		return KindTLS
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnect
	}
	return KindConnect
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string) string {
	const limit = 2048
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
