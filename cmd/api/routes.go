package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"busview.transitireland.org/internal/app"
)

type api struct {
	*app.Application
}

func newAPI(application *app.Application) *api {
	return &api{Application: application}
}

func (a *api) routes() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/health", a.healthHandler)
	router.HandlerFunc(http.MethodGet, "/routes", a.listRoutesHandler)
	router.HandlerFunc(http.MethodGet, "/routes/:routeId", a.routeDetailHandler)

	return a.requestLogging(router)
}
