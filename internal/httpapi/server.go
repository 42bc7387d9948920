package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/maps"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/rides"
)

// Options carries the wired components. Everything is injected here; there
// are no package-level registries.
type Options struct {
	Logger      *slog.Logger
	Registry    *presence.Registry
	Notifier    *notify.Notifier
	Rides       *rides.Service
	Broadcaster *dispatch.Broadcaster
	Geo         geo.Geo
	Directory   directory.Store
	Geocoder    maps.Geocoder          // optional
	Payments    *payments.StripeClient // optional
	Producer    *ingest.KafkaProducer  // optional
	Verifier    *auth.Verifier
}

type Server struct {
	logger      *slog.Logger
	registry    *presence.Registry
	notifier    *notify.Notifier
	rides       *rides.Service
	broadcaster *dispatch.Broadcaster
	geo         geo.Geo
	dir         directory.Store
	geocoder    maps.Geocoder
	payments    *payments.StripeClient
	producer    *ingest.KafkaProducer
	verifier    *auth.Verifier
	mux         *mux.Router
}

func NewServer(opts Options) *Server {
	s := &Server{
		logger:      opts.Logger,
		registry:    opts.Registry,
		notifier:    opts.Notifier,
		rides:       opts.Rides,
		broadcaster: opts.Broadcaster,
		geo:         opts.Geo,
		dir:         opts.Directory,
		geocoder:    opts.Geocoder,
		payments:    opts.Payments,
		producer:    opts.Producer,
		verifier:    opts.Verifier,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/api/v1/rides", s.handleCreateRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/fare", s.handleFareQuote).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/maps/geocode", s.handleGeocode).Methods("GET")
	s.mux.HandleFunc("/api/v1/maps/suggest", s.handleSuggest).Methods("GET")
	s.mux.HandleFunc("/api/v1/payments/order", s.handlePaymentOrder).Methods("POST")
	s.mux.HandleFunc("/api/v1/payments/webhook", s.handlePaymentWebhook).Methods("POST")
	s.mux.HandleFunc("/internal/captain/locations", s.handleCaptainLocation).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
