package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/bookings"
	"github.com/MrEthical07/authengine/middleware"
)

// maxRequestBodySize caps JSON request bodies at 1 MiB.
const maxRequestBodySize = 1 << 20

// Options tunes the router.
type Options struct {
	// AllowForceRegister honors the force flag of /user/register. Only
	// trusted bootstrap deployments should set it.
	AllowForceRegister bool
	// TrustForwardedFor takes the client address from X-Forwarded-For.
	TrustForwardedFor bool
	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler
	Logger  zerolog.Logger
}

// API holds the handlers' collaborators.
type API struct {
	engine   *authengine.Engine
	bookings *bookings.Service
	opts     Options
}

// New returns the routed handler. bookingSvc may be nil, in which case the
// booking routes are not mounted.
func New(engine *authengine.Engine, bookingSvc *bookings.Service, opts Options) http.Handler {
	a := &API{engine: engine, bookings: bookingSvc, opts: opts}
	return a.routes()
}

func (a *API) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(a.opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.ClientIP(a.opts.TrustForwardedFor))
	r.Use(limitBody)

	r.Get("/", a.handleRoot)
	if a.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.opts.Metrics)
	}

	r.Route("/user", func(r chi.Router) {
		r.Post("/login", a.handleLogin)
		r.Post("/logout", a.handleLogout)
		r.Post("/register", a.handleRegister)
		r.Post("/get", a.handleGetUser)
		r.Post("/password", a.handleChangePassword)
		r.Post("/level", a.handleSetLevel)
		r.Delete("/delete", a.handleDelete)
	})

	if a.bookings != nil {
		r.Route("/bookings/{owner}", func(r chi.Router) {
			r.Use(middleware.Guard(a.engine))
			r.Get("/", a.handleListBookings)
			r.Post("/", a.handleAddBooking)
			r.Get("/{id}", a.handleGetBooking)
			r.Put("/{id}", a.handleEditBooking)
			r.Delete("/{id}", a.handleDeleteBooking)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorResponse{
			Message:    "Not found.",
			StatusCode: http.StatusNotFound,
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusMethodNotAllowed, middleware.ErrorResponse{
			Message:    "Method not allowed.",
			StatusCode: http.StatusMethodNotAllowed,
		})
	})

	return r
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("[200] API is running correctly."))
}
