package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	healthcontrollers "github.com/scraplink/scraplink-backend/api/controllers/health"
	ordercontrollers "github.com/scraplink/scraplink-backend/api/controllers/orders"
	paymentcontrollers "github.com/scraplink/scraplink-backend/api/controllers/payments"
	refundcontrollers "github.com/scraplink/scraplink-backend/api/controllers/refunds"
	webhookcontrollers "github.com/scraplink/scraplink-backend/api/controllers/webhooks"
	"github.com/scraplink/scraplink-backend/api/middleware"
	internalorders "github.com/scraplink/scraplink-backend/internal/orders"
	internalpayments "github.com/scraplink/scraplink-backend/internal/payments"
	internalrefunds "github.com/scraplink/scraplink-backend/internal/refunds"
	gatewaywebhook "github.com/scraplink/scraplink-backend/internal/webhooks/gateway"
	"github.com/scraplink/scraplink-backend/pkg/config"
	"github.com/scraplink/scraplink-backend/pkg/logger"
	"github.com/scraplink/scraplink-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config          *config.Config
	Logger          *logger.Logger
	DBPinger        healthcontrollers.Pinger
	RedisClient     *redis.Client
	OrdersService   internalorders.Service
	PaymentsService internalpayments.Service
	RefundsService  internalrefunds.Service
	WebhookService  *gatewaywebhook.Service
	MetricsGatherer prometheus.Gatherer
}

const (
	writeRequestsPerMinute = 60
	writeWindow            = time.Minute
)

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", healthcontrollers.Live())
		r.Get("/ready", healthcontrollers.Ready(deps.DBPinger, deps.RedisClient, logg))
	})

	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	// Gateway callbacks authenticate with the shared callback token, not JWT.
	r.Post("/api/v1/payments/webhook", webhookcontrollers.GatewayCallback(deps.WebhookService, cfg.Gateway.CallbackToken, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.RedisClient != nil {
			r.Use(middleware.RateLimit(deps.RedisClient, "api", writeRequestsPerMinute, writeWindow, logg))
		}

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(deps.OrdersService, logg))
			r.Get("/", ordercontrollers.List(deps.OrdersService, logg))
			r.Get("/{orderID}", ordercontrollers.Detail(deps.OrdersService, logg))
			r.Put("/{orderID}/status", ordercontrollers.UpdateStatus(deps.OrdersService, logg))
			r.Post("/{orderID}/cancel", ordercontrollers.Cancel(deps.OrdersService, logg))
			r.Get("/{orderID}/payments", paymentcontrollers.ListForOrder(deps.PaymentsService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", paymentcontrollers.Initiate(deps.PaymentsService, logg))
			r.Get("/{paymentID}", paymentcontrollers.Detail(deps.PaymentsService, logg))
			r.Post("/{paymentID}/refund", refundcontrollers.Create(deps.RefundsService, logg))
			r.Get("/{paymentID}/refunds", refundcontrollers.ListForPayment(deps.RefundsService, logg))
		})
	})

	return r
}
