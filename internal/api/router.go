package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/quotesync/internal/cache"
	"github.com/charlesng35/quotesync/internal/connectivity"
	"github.com/charlesng35/quotesync/internal/handlers"
	"github.com/charlesng35/quotesync/internal/middleware"
	"github.com/charlesng35/quotesync/internal/migration"
	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/internal/queue"
	"github.com/charlesng35/quotesync/internal/realtime"
	"github.com/charlesng35/quotesync/internal/services"
)

// Deps are the components the local API exposes. Migration, Hub, Monitor and
// Monitoring are optional; their routes are omitted when nil.
type Deps struct {
	Services   *services.Services
	Cache      *cache.Cache
	Queue      *queue.Queue
	Migration  *migration.Manager
	Hub        *realtime.Hub
	Monitor    *connectivity.Monitor
	Monitoring *monitoring.Module

	MigrationDefaults migration.Options
	MetricsEndpoint   string
	DisableHealth     bool
	DisableMetrics    bool
}

// NewRouter builds the Gin engine, wires middleware and registers the data-layer routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	switch {
	case deps.Services == nil:
		return nil, errors.New("api: services must be provided")
	case deps.Cache == nil:
		return nil, errors.New("api: cache must be provided")
	case deps.Queue == nil:
		return nil, errors.New("api: queue must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	registerHealthRoutes(r, deps)

	api := r.Group("/api")
	registerRecordRoutes(api, deps.Services)
	registerCacheRoutes(api, handlers.NewCacheHandler(deps.Cache))
	registerQueueRoutes(api, handlers.NewQueueHandler(deps.Queue))
	if deps.Migration != nil {
		registerMigrationRoutes(api, handlers.NewMigrationHandler(deps.Migration, deps.MigrationDefaults))
	}
	if deps.Monitor != nil {
		connectivityHandler := handlers.NewConnectivityHandler(deps.Monitor)
		api.GET("/connectivity", connectivityHandler.Get)
		api.PUT("/connectivity", connectivityHandler.Put)
	}
	if deps.Hub != nil {
		r.GET("/ws/owners/:owner", handlers.NewRealtimeHandler(deps.Hub).Stream)
	}

	r.NoRoute(middleware.NotFoundHandler)
	return r, nil
}

func registerHealthRoutes(r *gin.Engine, deps Deps) {
	if !deps.DisableHealth {
		r.GET("/health", handlers.Health(deps.Monitoring.Health()))
	}
	if deps.Monitoring != nil && !deps.DisableMetrics {
		endpoint := deps.MetricsEndpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(deps.Monitoring.Handler()))
	}
}

func registerRecordRoutes(api *gin.RouterGroup, svc *services.Services) {
	owners := api.Group("/owners/:owner")

	registerEntity(owners, models.EntityCustomers, handlers.NewRecordHandler(svc.Customers.Service, nil))
	registerEntity(owners, models.EntityItems, handlers.NewRecordHandler(svc.Items.Service, map[string]handlers.Filter[models.Item]{
		"category": svc.Items.ListByCategory,
	}))
	registerEntity(owners, models.EntityQuotes, handlers.NewRecordHandler(svc.Quotes.Service, map[string]handlers.Filter[models.Quote]{
		"status":     svc.Quotes.ListByStatus,
		"customerId": svc.Quotes.ListByCustomer,
	}))

	settings := handlers.NewSettingsHandler(svc.Settings)
	owners.GET("/settings", settings.Get)
	owners.PUT("/settings", settings.Put)

	owners.POST("/preload", handlers.NewPreloadHandler(svc).Preload)
}

func registerEntity[T models.Entity[T]](owners *gin.RouterGroup, entity models.EntityType, handler *handlers.RecordHandler[T]) {
	group := owners.Group("/" + entity.String())
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.PATCH("/:id", handler.Patch)
	group.DELETE("/:id", handler.Delete)
}

func registerCacheRoutes(api *gin.RouterGroup, handler *handlers.CacheHandler) {
	group := api.Group("/cache")
	group.GET("/stats", handler.Stats)
	group.POST("/stats/reset", handler.ResetStats)
	group.DELETE("", handler.Clear)
}

func registerQueueRoutes(api *gin.RouterGroup, handler *handlers.QueueHandler) {
	group := api.Group("/queue")
	group.GET("", handler.List)
	group.POST("/prune", handler.Prune)
	group.PATCH("/:id", handler.Transition)
	group.DELETE("/:id", handler.Remove)
}

func registerMigrationRoutes(api *gin.RouterGroup, handler *handlers.MigrationHandler) {
	owners := api.Group("/owners/:owner")
	owners.GET("/migration", handler.Status)
	owners.POST("/migration", handler.Migrate)
}
