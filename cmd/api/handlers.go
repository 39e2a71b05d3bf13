package main

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"busview.transitireland.org/internal/transit"
	"busview.transitireland.org/transitdb"
)

type routeResponse struct {
	RouteID    string   `json:"route_id"`
	AgencyID   string   `json:"agency_id"`
	ShortName  string   `json:"route_short_name"`
	LongName   string   `json:"route_long_name"`
	RouteType  int      `json:"route_type"`
	VehicleIDs []string `json:"vehicle_ids"`
}

type vehicleResponse struct {
	VehicleID   string  `json:"vehicle_id"`
	TripID      *string `json:"trip_id"`
	StartTime   *int64  `json:"start_time"`
	Status      string  `json:"status"`
	RouteID     string  `json:"route_id"`
	DirectionID int     `json:"direction_id"`
}

type vehicleTimeResponse struct {
	StopSequence         int     `json:"stop_sequence"`
	StopID               string  `json:"stop_id"`
	StopName             *string `json:"stop_name"`
	ScheduleRelationship string  `json:"schedule_relationship"`
	ArrivalDelay         *int64  `json:"arrival_delay"`
	ArrivalTime          *int64  `json:"arrival_time"`
	DepartureDelay       *int64  `json:"departure_delay"`
	DepartureTime        *int64  `json:"departure_time"`
}

type routeDetailResponse struct {
	Route    routeResponse                    `json:"route"`
	Vehicles []vehicleResponse                `json:"vehicles"`
	Times    map[string][]vehicleTimeResponse `json:"stop_times_by_vehicle"`
}

func (a *api) healthHandler(w http.ResponseWriter, r *http.Request) {
	ready := a.Manager.Ready()

	status := http.StatusOK
	message := "OK"
	if !ready {
		status = http.StatusServiceUnavailable
		message = "Initializing data..."
	}

	a.sendJSON(w, status, map[string]any{
		"ready":   ready,
		"message": message,
	})
}

func (a *api) listRoutesHandler(w http.ResponseWriter, r *http.Request) {
	routes, err := a.Manager.ListRoutes(r.Context())
	if err != nil {
		a.errorResponse(w, err)
		return
	}

	response := make([]routeResponse, 0, len(routes))
	for _, route := range routes {
		response = append(response, newRouteResponse(route))
	}
	a.sendJSON(w, http.StatusOK, response)
}

func (a *api) routeDetailHandler(w http.ResponseWriter, r *http.Request) {
	params := httprouter.ParamsFromContext(r.Context())
	routeID := params.ByName("routeId")

	var detail *transit.RouteDetail
	var err error
	if r.URL.Query().Get("full") == "true" {
		detail, err = a.Manager.GetFullRouteDetail(r.Context(), routeID)
	} else {
		detail, err = a.Manager.GetRouteDetail(r.Context(), routeID, time.Now())
	}
	if err != nil {
		a.errorResponse(w, err)
		return
	}

	response := routeDetailResponse{
		Route: newRouteResponse(transitdb.RouteWithVehicles{Route: detail.Route}),
		Times: make(map[string][]vehicleTimeResponse, len(detail.Vehicles)),
	}
	for _, v := range detail.Vehicles {
		response.Vehicles = append(response.Vehicles, vehicleResponse{
			VehicleID:   v.ID,
			TripID:      nullStringPtr(v.TripID),
			StartTime:   nullInt64Ptr(v.StartTime),
			Status:      v.Status,
			RouteID:     v.RouteID,
			DirectionID: v.DirectionID,
		})

		times := detail.StopTimesByVehicle[v.ID]
		converted := make([]vehicleTimeResponse, 0, len(times))
		for _, vt := range times {
			converted = append(converted, vehicleTimeResponse{
				StopSequence:         vt.StopSequence,
				StopID:               vt.StopID,
				StopName:             nullStringPtr(vt.StopName),
				ScheduleRelationship: vt.ScheduleRelationship,
				ArrivalDelay:         nullInt64Ptr(vt.ArrivalDelay),
				ArrivalTime:          nullInt64Ptr(vt.ArrivalTime),
				DepartureDelay:       nullInt64Ptr(vt.DepartureDelay),
				DepartureTime:        nullInt64Ptr(vt.DepartureTime),
			})
		}
		response.Times[v.ID] = converted
	}

	a.sendJSON(w, http.StatusOK, response)
}

func (a *api) errorResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transit.ErrNotReady):
		a.sendJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "data is still loading"})
	case errors.Is(err, transitdb.ErrRouteNotFound):
		a.sendJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
	default:
		a.serverErrorResponse(w, err)
	}
}

func newRouteResponse(route transitdb.RouteWithVehicles) routeResponse {
	vehicleIDs := route.VehicleIDs
	if vehicleIDs == nil {
		vehicleIDs = []string{}
	}
	return routeResponse{
		RouteID:    route.ID,
		AgencyID:   route.AgencyID,
		ShortName:  route.ShortName,
		LongName:   route.LongName,
		RouteType:  route.Type,
		VehicleIDs: vehicleIDs,
	}
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}
