package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/pushgate/internal/channels"
	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/service"
)

// EndpointCache is the read-through endpoint snapshot cache and its invalidation hooks.
// core.EndpointCacheService implements it.
type EndpointCache interface {
	Get(ctx context.Context, id string) (*model.EndpointWithChannel, error)
	Invalidate(ctx context.Context, id string) error
	InvalidateByChannel(ctx context.Context, channelID string) (int, error)
}

// PushLogReader lists recent push outcomes of an endpoint.
type PushLogReader interface {
	ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]*model.PushLog, error)
}

// ChannelCatalog lists the supported providers. channels.Sender implements it.
type ChannelCatalog interface {
	Catalog() []channels.CatalogEntry
}

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Executor service.Executor        // Required
	Groups   service.GroupDispatcher // Required
	Cache    EndpointCache           // Required
	PushLogs PushLogReader           // Optional: push log listing is not routed when nil
	Catalog  ChannelCatalog          // Optional

	// Health probes dependencies for /healthz.
	Health []HealthCheck
	// Metrics serves /metrics when set (Prometheus exposition).
	Metrics http.Handler

	// MaxBodyBytes caps push payloads. Defaults to 1 MiB.
	MaxBodyBytes int64
	Logger       *slog.Logger
}

const defaultMaxBodyBytes = 1 << 20

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := services.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	registerPushRoutes(mux, &PushHandlers{
		Executor:     services.Executor,
		Groups:       services.Groups,
		MaxBodyBytes: maxBody,
		Logger:       logger,
	})
	registerAdminRoutes(mux, &AdminHandlers{
		Cache:    services.Cache,
		PushLogs: services.PushLogs,
		Catalog:  services.Catalog,
		Logger:   logger,
	})

	health := healthHandler(services.Health)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}

	return mux
}

func registerPushRoutes(mux *http.ServeMux, h *PushHandlers) {
	mux.HandleFunc("POST /push/{endpointId}", h.Push)
	mux.HandleFunc("POST /push-group/{groupId}", h.PushGroup)
}

func registerAdminRoutes(mux *http.ServeMux, h *AdminHandlers) {
	mux.HandleFunc("POST /cache/endpoints/{endpointId}/invalidate", h.InvalidateEndpoint)
	mux.HandleFunc("POST /cache/channels/{channelId}/invalidate", h.InvalidateChannel)
	mux.HandleFunc("GET /endpoints/{endpointId}/example-body", h.ExampleBody)
	if h.PushLogs != nil {
		mux.HandleFunc("GET /endpoints/{endpointId}/push-logs", h.ListPushLogs)
	}
	if h.Catalog != nil {
		mux.HandleFunc("GET /channels/catalog", h.ChannelCatalog)
	}
}
