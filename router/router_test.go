package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prebid/prebid-headertag/config"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) *config.Configuration {
	return &config.Configuration{
		DefaultTimeout: 500,
		StatusResponse: "ok",
		Partners: map[string]config.Partner{
			"ortb": {
				PartnerID:     "GenericOrtb",
				Adapter:       "genericortb",
				Version:       "1.0.0",
				Endpoint:      endpoint,
				TargetingType: "slot",
				Architecture:  config.ArchitectureSRA,
				Mapping:       map[string][]string{"header-1": {"x1"}},
				XSlots:        map[string]map[string]interface{}{"x1": {"tag_id": "top", "sizes": []interface{}{[]interface{}{300, 250}}}},
			},
		},
	}
}

func TestRouterServesRetrieval(t *testing.T) {
	partner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer partner.Close()

	r, err := New(testConfig(partner.URL))
	require.NoError(t, err)
	defer r.Shutdown()

	body := `{"page":"https://publisher.example.com/","slots":[{"name":"header-1","id":"s1"}],"timeout":1000}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/partners/retrieve", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["sessionId"])
}

func TestRouterInfoAndStatus(t *testing.T) {
	r, err := New(testConfig("http://ortb.example.com/bid"))
	require.NoError(t, err)
	defer r.Shutdown()

	testCases := []struct {
		path   string
		status int
		body   string
	}{
		{path: "/status", status: http.StatusOK, body: "ok"},
		{path: "/info/partners", status: http.StatusOK, body: `"GenericOrtb"`},
		{path: "/info/partners/ortb", status: http.StatusOK, body: `"partnerId":"GenericOrtb"`},
		{path: "/info/partners/unknown", status: http.StatusNotFound},
		{path: "/version", status: http.StatusOK, body: `"revision"`},
	}
	for _, tc := range testCases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", tc.path, nil))
		assert.Equal(t, tc.status, rec.Code, tc.path)
		assert.Contains(t, rec.Body.String(), tc.body, tc.path)
	}
}

func TestNewRejectsBadPartners(t *testing.T) {
	cfg := testConfig("http://ortb.example.com/bid")
	cfg.Partners["broken"] = config.Partner{PartnerID: "Broken", Adapter: "nope", Version: "1.0.0", Endpoint: "http://x"}

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRateLimitedRetrieval(t *testing.T) {
	cfg := testConfig("http://ortb.example.com/bid")
	cfg.RateLimit = config.RateLimit{Enabled: true, MaxRequestsPerSecond: 1}
	r, err := New(cfg)
	require.NoError(t, err)
	defer r.Shutdown()

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/partners/retrieve", strings.NewReader(`{"slots":[]}`))
		req.RemoteAddr = "10.0.0.1:5555"
		r.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, http.StatusBadRequest, statuses[0])
	assert.Contains(t, statuses[1:], http.StatusTooManyRequests)
}

func TestNoCache(t *testing.T) {
	handler := NoCache{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
}

func TestSupportCORS(t *testing.T) {
	handler := SupportCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest("OPTIONS", "/partners/retrieve", nil)
	req.Header.Set("Origin", "https://publisher.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://publisher.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestAccessLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := AccessLog{
		Logger: logger,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/fail" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte("hello"))
		}),
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/status", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/fail", nil))

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, http.StatusOK, entries[0].Data["status"])
	assert.Equal(t, 5, entries[0].Data["bytes"])
	assert.Equal(t, "/status", entries[0].Data["path"])
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, http.StatusInternalServerError, entries[1].Data["status"])
}

func TestWithAccessLogDisabled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	wrapped := WithAccessLog(config.AccessLog{}, handler)
	_, isAccessLog := wrapped.(AccessLog)
	assert.False(t, isAccessLog)

	wrapped = WithAccessLog(config.AccessLog{Enabled: true, Level: "debug"}, handler)
	logged, isAccessLog := wrapped.(AccessLog)
	require.True(t, isAccessLog)
	assert.Equal(t, logrus.DebugLevel, logged.Logger.GetLevel())
}

func TestAdminVersion(t *testing.T) {
	rec := httptest.NewRecorder()
	Admin().ServeHTTP(rec, httptest.NewRequest("GET", "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&resp))
	assert.Equal(t, "not-set", resp["version"])
}
