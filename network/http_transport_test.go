package network

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSendGetEncodesData(t *testing.T) {
	var gotQuery map[string][]string
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	transport := NewHTTPTransportWithClient(server.Client(), nil)
	result := transport.Send(context.Background(), &Request{
		URL: server.URL + "/channels?fixed=1",
		Data: map[string]interface{}{
			"url":   "http://example.com/page",
			"sizes": []int{300, 250},
			"skip":  nil,
		},
		Timeout: time.Second,
	})

	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.NoError(t, result.Err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, `{"status":"ok"}`, string(result.Body))
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, []string{"1"}, gotQuery["fixed"])
	assert.Equal(t, []string{"http://example.com/page"}, gotQuery["url"])
	assert.Equal(t, []string{"[300,250]"}, gotQuery["sizes"])
	assert.NotContains(t, gotQuery, "skip")
}

func TestSendPostBody(t *testing.T) {
	var gotBody string
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	transport := NewHTTPTransportWithClient(server.Client(), nil)
	result := transport.Send(context.Background(), &Request{
		URL:    server.URL,
		Method: http.MethodPost,
		Body:   []byte(`{"id":"req-1"}`),
	})

	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, `{"id":"req-1"}`, gotBody)
	assert.Equal(t, "application/json;charset=utf-8", gotContentType)
}

func TestSendForwardsCookiesOnlyWithCredentials(t *testing.T) {
	var cookies []*http.Cookie
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookies = r.Cookies()
	}))
	defer server.Close()
	transport := NewHTTPTransportWithClient(server.Client(), nil)
	userCookie := []*http.Cookie{{Name: "uid", Value: "abc"}}

	transport.Send(context.Background(), &Request{URL: server.URL, Cookies: userCookie})
	assert.Empty(t, cookies)

	transport.Send(context.Background(), &Request{URL: server.URL, Cookies: userCookie, WithCredentials: true})
	require.Len(t, cookies, 1)
	assert.Equal(t, "abc", cookies[0].Value)
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	transport := NewHTTPTransportWithClient(server.Client(), nil)
	result := transport.Send(context.Background(), &Request{URL: server.URL, Timeout: 10 * time.Millisecond})

	assert.Equal(t, OutcomeTimeout, result.Outcome)
	assert.IsType(t, &errortypes.Timeout{}, result.Err)
	assert.Nil(t, result.Body)
}

func TestSendBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("oops"))
	}))
	defer server.Close()

	transport := NewHTTPTransportWithClient(server.Client(), nil)
	result := transport.Send(context.Background(), &Request{URL: server.URL})

	assert.Equal(t, OutcomeFailure, result.Outcome)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.IsType(t, &errortypes.BadServerResponse{}, result.Err)
	assert.Nil(t, result.Body)
}

func TestSendConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	transport := NewHTTPTransport(config.HTTPClient{MaxIdleConns: 1}, nil)
	result := transport.Send(context.Background(), &Request{URL: url, Timeout: time.Second})

	assert.Equal(t, OutcomeFailure, result.Outcome)
	assert.IsType(t, &errortypes.TransportFailure{}, result.Err)
}

func TestSendMalformedURL(t *testing.T) {
	transport := NewHTTPTransportWithClient(http.DefaultClient, nil)
	result := transport.Send(context.Background(), &Request{URL: "://bad"})

	assert.Equal(t, OutcomeFailure, result.Outcome)
	assert.IsType(t, &errortypes.BadInput{}, result.Err)
}

func TestSendRecordsConnectionMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	me := &metrics.MetricsEngineMock{}
	me.On("RecordConnectionReuse", "GrapeshotNob", false, mock.AnythingOfType("time.Duration")).Return().Once()
	me.On("RecordConnectionReuse", "GrapeshotNob", mock.AnythingOfType("bool"), mock.AnythingOfType("time.Duration")).Return()

	transport := NewHTTPTransportWithClient(server.Client(), me)
	transport.Send(context.Background(), &Request{URL: server.URL, PartnerID: "GrapeshotNob"})
	transport.Send(context.Background(), &Request{URL: server.URL, PartnerID: "GrapeshotNob"})

	me.AssertExpectations(t)
	me.AssertNumberOfCalls(t, "RecordConnectionReuse", 2)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "timeout", OutcomeTimeout.String())
	assert.Equal(t, "failure", OutcomeFailure.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
