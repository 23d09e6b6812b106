package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/didip/tollbooth"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	analyticsBuild "github.com/prebid/prebid-headertag/analytics/build"
	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/endpoints"
	infoEndpoints "github.com/prebid/prebid-headertag/endpoints/info"
	"github.com/prebid/prebid-headertag/endpoints/retrieve"
	"github.com/prebid/prebid-headertag/errortypes"
	"github.com/prebid/prebid-headertag/exchange"
	"github.com/prebid/prebid-headertag/metrics"
	metricsConf "github.com/prebid/prebid-headertag/metrics/config"
	"github.com/prebid/prebid-headertag/network"
	"github.com/prebid/prebid-headertag/router/aspects"
	storedProfilesConf "github.com/prebid/prebid-headertag/stored_profiles/config"
	"github.com/prebid/prebid-headertag/util/task"
	"github.com/prebid/prebid-headertag/util/uuidutil"
	"github.com/prebid/prebid-headertag/version"
	"github.com/rs/cors"
)

type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// Router serves the wrapper facing endpoints. Shutdown must be called once the servers stopped.
type Router struct {
	*httprouter.Router
	MetricsEngine *metricsConf.DetailedMetricsEngine
	Shutdown      func()
}

func New(cfg *config.Configuration) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
	}

	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg, exchange.PartnerIDs(cfg.Partners))

	analyticsClient := &http.Client{
		Transport: getTransport(cfg),
	}
	bus := analyticsBuild.New(context.Background(), &cfg.Analytics, analyticsClient, clock.New())

	var connectionMetrics metrics.MetricsEngine = r.MetricsEngine
	if cfg.Metrics.Disabled.PartnerConnectionMetrics {
		connectionMetrics = nil
	}
	transport := network.NewHTTPTransport(cfg.Client, connectionMetrics)

	partners, partnerErrs := exchange.BuildPartners(cfg, exchange.PartnerDeps{
		Transport:      transport,
		Bus:            bus,
		Metrics:        r.MetricsEngine,
		IDGenerator:    uuidutil.RandomGenerator{},
		DefaultTimeout: time.Duration(cfg.DefaultTimeout) * time.Millisecond,
		Debug:          cfg.Debug,
	})
	if len(partnerErrs) > 0 {
		bus.Shutdown()
		return nil, errortypes.NewAggregateError("Failed to initialize partners", partnerErrs)
	}

	reloadTask, shutdownProfiles := newProfileReloader(cfg, partners, r.MetricsEngine)

	ex := exchange.NewExchange(partners, uuidutil.RandomGenerator{})

	retrieveEndpoint := aspects.QueuedRequestTimeout(retrieve.NewEndpoint(ex, r.MetricsEngine, nil), cfg.RequestTimeoutHeaders)
	if cfg.RateLimit.Enabled {
		retrieveEndpoint = rateLimited(retrieveEndpoint, cfg.RateLimit)
	}

	r.POST("/partners/retrieve", retrieveEndpoint)
	r.GET("/info/partners", infoEndpoints.NewPartnersEndpoint(partners))
	r.GET("/info/partners/:partnerName", infoEndpoints.NewPartnerDetailsEndpoint(partners))
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))
	r.GET("/version", endpoints.NewVersionEndpoint(version.Ver, version.Rev))

	r.Shutdown = func() {
		if reloadTask != nil {
			reloadTask.Stop()
		}
		shutdownProfiles()
		bus.Shutdown()
	}

	return r, nil
}

// newProfileReloader keeps the partners in sync with the stored profiles, if a database is configured.
func newProfileReloader(cfg *config.Configuration, partners map[string]exchange.AdaptedPartner, me metrics.MetricsEngine) (*task.TickerTask, func()) {
	fetcher, shutdown := storedProfilesConf.NewStoredProfiles(&cfg.StoredProfiles, me)
	if cfg.StoredProfiles.Postgres.ConnectionInfo.Database == "" {
		return nil, shutdown
	}
	reloader := exchange.NewProfileReloader(cfg.Partners, partners, fetcher)
	refreshRate := time.Duration(cfg.StoredProfiles.RefreshRateSeconds) * time.Second
	return exchange.StartProfileReloader(reloader, refreshRate), shutdown
}

func getTransport(cfg *config.Configuration) *http.Transport {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxConnsPerHost: cfg.Client.MaxConnsPerHost,
		IdleConnTimeout: time.Duration(cfg.Client.IdleConnTimeout) * time.Second,
	}

	if cfg.Client.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.Client.MaxIdleConns
	}

	if cfg.Client.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.Client.MaxIdleConnsPerHost
	}

	return transport
}

// rateLimited throttles a handle per client address with a token bucket.
func rateLimited(handle httprouter.Handle, cfg config.RateLimit) httprouter.Handle {
	limiter := tollbooth.NewLimiter(cfg.MaxRequestsPerSecond, nil)
	limiter.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"})
	limiter.SetMessage(fmt.Sprintf("Too many requests. The limit is %v per second.", cfg.MaxRequestsPerSecond))

	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if httpErr := tollbooth.LimitByRequest(limiter, w, r); httpErr != nil {
			if glog.V(2) {
				glog.Infof("rate limited %s: %s", r.URL.Path, httpErr.Message)
			}
			w.Header().Set("Content-Type", limiter.GetMessageContentType())
			w.WriteHeader(httpErr.StatusCode)
			w.Write([]byte(httpErr.Message))
			return
		}
		handle(w, r, ps)
	}
}

// SupportCORS lets every page call the retrieval endpoint with credentials, so that partners
// configured with with_credentials get the wrapper cookies.
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
