package router

import (
	"net/http"
	"net/http/pprof"

	"github.com/prebid/prebid-headertag/endpoints"
	"github.com/prebid/prebid-headertag/version"
)

// Admin serves the profiling handlers and the build version on the admin port.
func Admin() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	versionHandle := endpoints.NewVersionEndpoint(version.Ver, version.Rev)
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		versionHandle(w, r, nil)
	})
	return mux
}
