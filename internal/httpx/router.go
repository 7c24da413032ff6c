package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	docs "WeeklyIngest/internal/docs"
)

type HTTPError struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
	Store  string    `json:"store"`
}

// @title           WeeklyIngest status API
// @version         1.0
// @description     Read-only view of the weekly ingest job: health, recent runs, next fire time.
// @BasePath        /
func NewRouter(d Deps) http.Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler(d))
	mux.HandleFunc("GET /runs/last", lastRunHandler(d))
	mux.HandleFunc("GET /runs", runsHandler(d))
	mux.HandleFunc("GET /schedule", scheduleHandler(d))

	mux.Handle("/swagger/", httpSwagger.WrapHandler)
	mux.HandleFunc("GET /swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
	})

	return LimitMiddleware(NewRateLimiter(d.RatePerMinute), logRequests(d, mux))
}

// Health godoc
// @Summary      Liveness probe
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /healthz [get]
func healthHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "ok",
			Time:   time.Now().In(d.Location),
			Store:  d.Store,
		})
	}
}

func logRequests(d Deps, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		d.Log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("Status request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, HTTPError{Message: msg})
}
