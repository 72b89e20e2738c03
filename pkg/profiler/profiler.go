package profiler

import (
	"log"
	"net/http"
	"net/http/pprof"
	"time"
)

// DefaultAddress is where the pprof endpoints listen when the caller does
// not request a specific address.
const DefaultAddress = "localhost:19841"

// InitialiseProfiler starts an HTTP server serving net/http/pprof's debug
// endpoints on address, or DefaultAddress when address is empty. It replaces
// http.DefaultServeMux so the gateway's own handlers (registered separately
// by internal/app) never share a mux with pprof.
func InitialiseProfiler(address string) {
	if address == "" {
		address = DefaultAddress
	}
	http.DefaultServeMux = http.NewServeMux()
	go func() {
		server := &http.Server{
			Addr:         address,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		http.HandleFunc("/debug/pprof/", pprof.Index)
		http.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		http.HandleFunc("/debug/pprof/profile", pprof.Profile)
		http.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		http.HandleFunc("/debug/pprof/trace", pprof.Trace)

		log.Println("Profiler is running on", address)
		log.Println(server.ListenAndServe())
	}()
}
