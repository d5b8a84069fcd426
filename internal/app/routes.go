package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"marketplace-gateway/internal/bruteforce"
	"marketplace-gateway/internal/handlers"
	"marketplace-gateway/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application. Every request
// passes the general filter; individual routes add their own filters.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, app *App) {
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware)
	router.Use(app.Auth.Middleware)
	router.Use(app.Limiter.General())

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Login: failed attempts count against the email and the caller IP. A
	// locked email is refused before the IP budget is consulted.
	login := chain(http.HandlerFunc(h.Login),
		app.Guard.Middleware(bruteforce.EmailFromJSONBody),
		app.Limiter.Auth(),
	)
	api.Handle("/auth/login", login).Methods("POST")

	api.Handle("/me", app.Limiter.Role()(http.HandlerFunc(h.Me))).Methods("GET")

	uploads := chain(http.HandlerFunc(h.Upload),
		app.Limiter.Upload(),
		app.Limiter.Role(),
	)
	api.Handle("/uploads", uploads).Methods("POST")

	api.Handle("/partner/ping", app.Limiter.APIKey()(http.HandlerFunc(h.PartnerPing))).Methods("GET")

	// Operator endpoints
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/cache/flush", h.FlushCache).Methods("POST")
	admin.HandleFunc("/cache/invalidate", h.InvalidateCache).Methods("POST")
	admin.HandleFunc("/lockouts/{email}", h.GetLockout).Methods("GET")
	admin.HandleFunc("/lockouts/{email}", h.ResetLockout).Methods("DELETE")
}

// chain wraps h so the first middleware listed runs first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Handler builds the routed handler for app.
func (app *App) Handler() http.Handler {
	h := handlers.New(handlers.Deps{
		Auth:        app.Auth,
		Credentials: app.Credentials,
		Cache:       app.Cache,
		Lockouts:    app.Guard,
		Validator:   app.Validator,
		Status:      app.Status,
		AdminToken:  app.Config.AdminToken,
	})

	router := mux.NewRouter()
	SetupRoutes(router, h, app)
	return router
}
