package main

import (
	"net/http"
	"time"

	"busview.transitireland.org/internal/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *api) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		logging.LogHTTPRequest(a.Logger, r.Method, r.URL.Path, recorder.status,
			float64(time.Since(start).Microseconds())/1000.0)
	})
}
