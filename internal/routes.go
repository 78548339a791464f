package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"funnelmetrics/internal/config"
	"funnelmetrics/internal/dashboard"
	"funnelmetrics/internal/http"
	"funnelmetrics/internal/http/middleware"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/pkg/keylock"
)

// apiCORSConfig is the CORS configuration shared by the JSON API.
var apiCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, X-Department",
}

// MountRoutes mounts every route. Writers share locker so that concurrent
// submissions for the same record serialize.
func MountRoutes(srv *cartridge.Server, locker keylock.Locker, clock period.TimeProvider) {
	cfg := config.GetConfig()

	// Rate limiting would interfere with tests, so it only runs in production
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Submissions fan out into one write per day, so they get the tighter budget
	writeRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(30),
		cartridgemiddleware.WithDuration(time.Minute),
	))
	readRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Get dependencies
	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	svc, floors := dashboard.New(db, logger, cfg, locker, clock)
	h := http.NewHandlers(svc, floors, locker)

	readConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{readRateLimiter},
		CORSConfig:       apiCORSConfig,
	}

	writeConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{writeRateLimiter},
		CORSConfig:       apiCORSConfig,
	}

	hierarchyConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CustomMiddleware: []fiber.Handler{
			readRateLimiter,
			middleware.DepartmentFilter(logger),
		},
		CORSConfig: apiCORSConfig,
	}

	// Health checks come from load balancers without browser headers
	healthConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// === HEALTH ===
	srv.Get("/_health", h.HealthIndexAction, healthConfig)
	srv.Head("/_health", h.HealthIndexAction, healthConfig)

	// === HIERARCHY ===
	srv.Get("/api/funnels", http.FunnelsIndexAction, readConfig)
	srv.Post("/api/funnels", http.FunnelsCreateAction, writeConfig)
	srv.Get("/api/entities/:type/:id/children", http.ChildrenIndexAction, readConfig)
	srv.Post("/api/entities/:type/:id/children", http.ChildrenCreateAction, writeConfig)

	// === PERIODS AND METRICS ===
	srv.Get("/api/periods", h.PeriodsShowAction, readConfig)
	srv.Post("/api/metrics", h.SubmitMetricsAction, writeConfig)
	srv.Get("/api/entities/:type/:id/hierarchy", h.HierarchyShowAction, hierarchyConfig)

	// === SETTINGS ===
	srv.Get("/api/settings/significance-floors", h.SignificanceFloorsShowAction, readConfig)
	srv.Post("/api/settings/significance-floors", h.SignificanceFloorsUpdateAction, writeConfig)
}
