package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes live under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Conversation routes
		r.Post("/messages", apiHandler.PostMessageHandler)
		r.Get("/messages", apiHandler.GetMessagesHandler)
		r.Post("/chats/new", apiHandler.NewChatHandler)

		// History routes
		r.Get("/history", apiHandler.ListHistoryHandler)
		r.Post("/history/{historyID}/activate", apiHandler.ActivateHistoryHandler)
		r.Delete("/history/{historyID}", apiHandler.DeleteHistoryHandler)
		r.Delete("/history", apiHandler.ClearHistoryHandler)

		// UI preference routes
		r.Get("/preferences/darkmode", apiHandler.GetDarkModeHandler)
		r.Put("/preferences/darkmode", apiHandler.SetDarkModeHandler)

		// Image generation route
		r.Post("/images", apiHandler.GenerateImageHandler)
	})

	return r
}
