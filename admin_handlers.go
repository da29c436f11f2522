package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"vidrelay/work/logger"
	"vidrelay/work/middleware"
	"vidrelay/work/relay"
	"vidrelay/work/resolver"
)

// curatedPopular is the static fallback list served until a real popularity
// source exists. TODO: back this with play counts from the frontend.
var curatedPopular = []resolver.MediaInfo{
	{
		ID:        "dQw4w9WgXcQ",
		Title:     "Rick Astley - Never Gonna Give You Up",
		Thumbnail: "https://img.youtube.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
		Duration:  213,
		Author:    "Rick Astley",
	},
	{
		ID:        "9bZkp7q19f0",
		Title:     "PSY - GANGNAM STYLE",
		Thumbnail: "https://img.youtube.com/vi/9bZkp7q19f0/maxresdefault.jpg",
		Duration:  252,
		Author:    "officialpsy",
	},
}

// setupAdminRoutes registers the operational surface: cache statistics, cache
// flush and the curated popular list.
func setupAdminRoutes(router *mux.Router, policy *middleware.CORSPolicy, svc *relay.Service) {

	// cache statistics
	router.HandleFunc("/cache/stats", middleware.CORS(policy, func(w http.ResponseWriter, r *http.Request) {
		adminJSON(w, http.StatusOK, svc.Cache().Stats(r.Context()))
	})).Methods("GET", "OPTIONS")

	// cache flush, admin only by deployment policy
	router.HandleFunc("/cache/clear", middleware.CORS(policy, func(w http.ResponseWriter, r *http.Request) {
		if !svc.Cache().Enabled() {
			adminJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Cache not enabled"})
			return
		}
		if err := svc.Cache().Flush(r.Context()); err != nil {
			logger.Error("{admin - clear} Cache flush failed: %v", err)
			adminJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		logger.Info("{admin - clear} Cache cleared")
		adminJSON(w, http.StatusOK, map[string]string{"message": "Cache cleared successfully"})
	})).Methods("DELETE", "OPTIONS")

	// curated popular media
	router.HandleFunc("/popular", middleware.CORS(policy, middleware.Gzip(func(w http.ResponseWriter, r *http.Request) {
		adminJSON(w, http.StatusOK, curatedPopular)
	}))).Methods("GET", "OPTIONS")
}

func adminJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debug("{admin - adminJSON} Encode failed: %v", err)
	}
}
