package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairyhunter13/lowest-price-service/internal/cache"
	"github.com/fairyhunter13/lowest-price-service/internal/config"
	httpopenapi "github.com/fairyhunter13/lowest-price-service/internal/http/openapi"
	"github.com/fairyhunter13/lowest-price-service/internal/mirror"
	"github.com/fairyhunter13/lowest-price-service/internal/model"
	"github.com/fairyhunter13/lowest-price-service/internal/obs"
	"github.com/fairyhunter13/lowest-price-service/internal/pricing"
	"github.com/fairyhunter13/lowest-price-service/internal/storage"
)

type App struct {
	Cfg         config.Config
	Coordinator *pricing.Coordinator
	Reader      *pricing.Reader
	Feed        *mirror.Feed
	Engine      storage.Engine
	LocalCache  cache.Cache
	started     time.Time
}

func NewApp(cfg config.Config, coord *pricing.Coordinator, reader *pricing.Reader, feed *mirror.Feed, engine storage.Engine, local cache.Cache) *App {
	return &App{
		Cfg:         cfg,
		Coordinator: coord,
		Reader:      reader,
		Feed:        feed,
		Engine:      engine,
		LocalCache:  local,
		started:     time.Now(),
	}
}

// StartShutdown closes observation intake; the feed flag is atomic so
// in-flight handler goroutines read it safely.
func (a *App) StartShutdown() {
	a.Feed.CloseIntake()
}

// receiveRequest mirrors the ingest payload; pointer fields distinguish
// missing from zero.
type receiveRequest struct {
	SKU      *string          `json:"sku"`
	Retailer *string          `json:"retailer"`
	Price    *decimal.Decimal `json:"price"`
	URL      string           `json:"url"`
	FromDate *time.Time       `json:"from_date"`
	ToDate   *time.Time       `json:"to_date"`
}

func (a *App) receiveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.Feed.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return
	}
	var req receiveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.SKU == nil || strings.TrimSpace(*req.SKU) == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "missing sku")
		return
	}
	if req.Retailer == nil || strings.TrimSpace(*req.Retailer) == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "missing retailer")
		return
	}
	if req.Price == nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "missing price")
		return
	}
	if req.Price.IsNegative() {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "price cannot be negative")
		return
	}

	o := model.Observation{
		SKU:      *req.SKU,
		Retailer: *req.Retailer,
		Price:    *req.Price,
		URL:      req.URL,
		FromDate: req.FromDate,
		ToDate:   req.ToDate,
	}
	if err := a.Coordinator.Receive(r.Context(), o); err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidInput):
			WriteJSONError(w, http.StatusBadRequest, "invalid_observation", err.Error())
		case errors.Is(err, model.ErrStorageUnavailable):
			WriteJSONError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
		default:
			WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}
	obs.Logger.Info("observation_accepted",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("sku", model.CanonicalID(o.SKU)),
		zap.String("retailer", model.CanonicalID(o.Retailer)),
	)
	// nothing to return (the caller never needs the history row id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) findPriceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	prefix := "/find-price/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	sku := strings.TrimPrefix(r.URL.Path, prefix)
	if sku == "" {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	entry, err := a.Reader.FindPrice(r.Context(), sku)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			WriteJSONError(w, http.StatusNotFound, "not_found", "product not found")
		case errors.Is(err, model.ErrTimeout):
			WriteJSONError(w, http.StatusGatewayTimeout, "read_timeout", err.Error())
		case errors.Is(err, model.ErrStorageUnavailable):
			WriteJSONError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
		default:
			WriteJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entry)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// debugHandler dumps the master tables, the local cache, and the feed
// counters. Not meant to be reachable in production.
func (a *App) debugHandler(w http.ResponseWriter, r *http.Request) {
	pub, del, backlog := a.Feed.Metrics()
	out := map[string]any{
		"mirror": map[string]any{
			"published": pub,
			"delivered": del,
			"backlog":   backlog,
		},
		"uptime_sec": time.Since(a.started).Seconds(),
	}
	if d, ok := a.Engine.(storage.Debugger); ok {
		out["storage"] = d.DebugInfo()
	} else {
		out["storage"] = "using external database instead of in-memory"
	}
	if m, ok := a.LocalCache.(*cache.Memory); ok {
		out["cache"] = m.Dump()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
