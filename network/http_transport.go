package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/metrics"
	"golang.org/x/net/context/ctxhttp"
)

// HTTPTransport sends partner requests with an http.Client.
type HTTPTransport struct {
	Client *http.Client
	me     metrics.MetricsEngine
}

// NewHTTPTransport builds a transport whose client pools connections per the config.
func NewHTTPTransport(cfg config.HTTPClient, me metrics.MetricsEngine) *HTTPTransport {
	return &HTTPTransport{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxConnsPerHost:     cfg.MaxConnsPerHost,
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     time.Duration(cfg.IdleConnTimeout) * time.Second,
			},
		},
		me: me,
	}
}

// NewHTTPTransportWithClient wraps an existing client, mostly for tests.
func NewHTTPTransportWithClient(client *http.Client, me metrics.MetricsEngine) *HTTPTransport {
	return &HTTPTransport{Client: client, me: me}
}

func (t *HTTPTransport) Send(ctx context.Context, req *Request) Result {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := newHTTPRequest(req)
	if err != nil {
		return Result{Outcome: OutcomeFailure, Err: &errortypes.BadInput{Message: err.Error()}}
	}

	if t.me != nil {
		ctx = t.addClientTrace(ctx, req.PartnerID)
	}

	httpResp, err := ctxhttp.Do(ctx, t.Client, httpReq)
	if err != nil {
		return failedResult(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return failedResult(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 400 {
		return Result{
			Outcome:    OutcomeFailure,
			StatusCode: httpResp.StatusCode,
			Err: &errortypes.BadServerResponse{
				Message: fmt.Sprintf("Server responded with failure status: %d.", httpResp.StatusCode),
			},
		}
	}

	return Result{
		Outcome:    OutcomeSuccess,
		Body:       respBody,
		StatusCode: httpResp.StatusCode,
	}
}

func failedResult(err error) Result {
	if isTimeout(err) {
		return Result{Outcome: OutcomeTimeout, Err: &errortypes.Timeout{Message: err.Error()}}
	}
	return Result{Outcome: OutcomeFailure, Err: &errortypes.TransportFailure{Message: err.Error()}}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newHTTPRequest(req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if method == http.MethodGet {
		if len(req.Data) > 0 {
			query := target.Query()
			if err := encodeQuery(query, req.Data); err != nil {
				return nil, err
			}
			target.RawQuery = query.Encode()
		}
	} else if req.Body != nil {
		body = bytes.NewReader(req.Body)
	} else if len(req.Data) > 0 {
		encoded, err := json.Marshal(req.Data)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequest(method, target.String(), body)
	if err != nil {
		return nil, err
	}
	if req.Headers != nil {
		httpReq.Header = req.Headers.Clone()
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json;charset=utf-8")
	}
	if req.WithCredentials {
		for _, cookie := range req.Cookies {
			httpReq.AddCookie(cookie)
		}
	}
	return httpReq, nil
}

// encodeQuery writes string values as they are and JSON encodes everything else.
func encodeQuery(query url.Values, data map[string]interface{}) error {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			query.Set(key, v)
		case nil:
			continue
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("query parameter %s: %v", key, err)
			}
			query.Set(key, string(encoded))
		}
	}
	return nil
}

// addClientTrace records whether the partner connection was newly created or reused from the pool,
// and how long it took to obtain.
func (t *HTTPTransport) addClientTrace(ctx context.Context, partner string) context.Context {
	var connStart time.Time

	trace := &httptrace.ClientTrace{
		// GetConn is called before a connection is created or retrieved from an idle pool
		GetConn: func(hostPort string) {
			connStart = time.Now()
		},
		// GotConn is called after a successful connection is obtained
		GotConn: func(info httptrace.GotConnInfo) {
			t.me.RecordConnectionReuse(partner, info.Reused, time.Since(connStart))
		},
	}
	return httptrace.WithClientTrace(ctx, trace)
}
