package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/viaentrega/viaentrega-backend/api/controllers"
	"github.com/viaentrega/viaentrega-backend/api/middleware"
	"github.com/viaentrega/viaentrega-backend/internal/corridas"
	"github.com/viaentrega/viaentrega-backend/internal/extorders"
	"github.com/viaentrega/viaentrega-backend/internal/ledger"
	"github.com/viaentrega/viaentrega-backend/pkg/config"
	"github.com/viaentrega/viaentrega-backend/pkg/logger"
)

// Deps bundles everything the HTTP surface needs. Health pingers may be
// nil when a dependency is not wired in the current deployment.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	PubSub   controllers.Pinger
	Corridas corridas.Service
	Ledger   ledger.Service
	Orders   extorders.Service
	Accounts controllers.AccountDirectory
	Releaser controllers.OrderReleaser
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":     deps.DB,
			"redis":  deps.Redis,
			"pubsub": deps.PubSub,
		}))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ActorContext(logg))

		r.Route("/corridas", func(r chi.Router) {
			r.Post("/", controllers.CorridaCreate(deps.Corridas, logg))
			r.Get("/", controllers.CorridaListMine(deps.Corridas, logg))
			r.Get("/awaiting", controllers.CorridaListAwaiting(deps.Corridas, logg))
			r.Route("/{corridaId}", func(r chi.Router) {
				r.Get("/", controllers.CorridaGet(deps.Corridas, logg))
				r.Post("/accept", controllers.CorridaAccept(deps.Corridas, logg))
				r.Post("/pickup", controllers.CorridaStartPickup(deps.Corridas, logg))
				r.Post("/pickup/confirm", controllers.CorridaConfirmPickup(deps.Corridas, logg))
				r.Post("/stops/{stopId}/confirm", controllers.CorridaConfirmDelivery(deps.Corridas, logg))
				r.Post("/cancel", controllers.CorridaCancel(deps.Corridas, deps.Releaser, logg))
			})
		})

		r.Route("/external-orders", func(r chi.Router) {
			syncWindow := 24 * time.Hour
			if cfg != nil && cfg.Marketplace.SyncWindow > 0 {
				syncWindow = cfg.Marketplace.SyncWindow
			}
			r.Post("/sync", controllers.ExternalOrderSync(deps.Orders, deps.Accounts, syncWindow, logg))
			r.Get("/", controllers.ExternalOrderList(deps.Orders, logg))
			r.Post("/import", controllers.ExternalOrderImport(deps.Orders, logg))
			r.Post("/{orderId}/select", controllers.ExternalOrderSelect(deps.Orders, logg))
		})

		r.Route("/account", func(r chi.Router) {
			r.Get("/balance", controllers.AccountBalance(deps.Ledger, logg))
			r.Get("/statement", controllers.AccountStatement(deps.Ledger, logg))
			r.Post("/deposits", controllers.AccountDeposit(deps.Ledger, logg))
			r.Post("/withdrawals", controllers.AccountWithdraw(deps.Ledger, logg))
		})
	})

	return r
}
