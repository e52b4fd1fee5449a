package httpapi

import (
	"expvar"
	"net/http"
)

// NewRouter wires the full HTTP surface and wraps it with the request-id
// and access-log middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/receive", app.receiveHandler)
	mux.HandleFunc("/find-price/", app.findPriceHandler)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/debug", app.debugHandler)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/openapi.yaml", app.openapiHandler)
	mux.HandleFunc("/docs", app.docsHandler)
	return WithRequestID(WithLogging(mux))
}
