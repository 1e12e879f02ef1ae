// Package debughttp exposes runtime profiles next to the broadcaster
// endpoints.
package debughttp

import (
	"net/http"
	httppprof "net/http/pprof"
)

// PathPrefix is where the profile index is served.
const PathPrefix = "/debug/pprof/"

// Mount registers the pprof handlers on mux.
func Mount(mux *http.ServeMux) {
	mux.HandleFunc(PathPrefix, httppprof.Index)
	mux.HandleFunc(PathPrefix+"cmdline", httppprof.Cmdline)
	mux.HandleFunc(PathPrefix+"profile", httppprof.Profile)
	mux.HandleFunc(PathPrefix+"symbol", httppprof.Symbol)
	mux.HandleFunc(PathPrefix+"trace", httppprof.Trace)
}
