package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/auth"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/catalog"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionContextKey    = "pokedeck_session"
	accountKeyContextKey = "pokedeck_account_key"
	accessTokenQueryKey  = "access_token"
)

var (
	errMissingCatalog       = errors.New("catalog dependency required")
	errMissingDeckService   = errors.New("deck service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// CatalogSource serves the read-only card catalogs.
type CatalogSource interface {
	ListTypes(ctx context.Context) ([]string, error)
	ListCreatures(ctx context.Context, typeFilter string) ([]cards.Card, error)
	ListTrainers(ctx context.Context) ([]cards.Card, error)
	ListEnergy(ctx context.Context) ([]cards.Card, error)
	GetCreatureDetail(ctx context.Context, ref string) (catalog.CreatureDetail, error)
}

type Dependencies struct {
	Catalog           CatalogSource
	DeckService       deck.DeckService
	ProjectionCache   deck.ProjectionCache
	Validator         deck.SessionValidator
	Views             *ViewRegistry
	Realtime          *RealtimeDispatcher
	IDProvider        IDProvider
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}
	if deps.DeckService == nil {
		return nil, errMissingDeckService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	validator := deps.Validator
	if validator == nil {
		validator = auth.NewSessionValidator(auth.SessionValidatorConfig{Clock: clock})
	}
	views := deps.Views
	if views == nil {
		views = NewViewRegistry(clock)
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	idProvider := deps.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	heartbeatInterval := deps.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		catalog:           deps.Catalog,
		deckService:       deps.DeckService,
		projectionCache:   deps.ProjectionCache,
		validator:         validator,
		views:             views,
		realtime:          realtime,
		idProvider:        idProvider,
		heartbeatInterval: heartbeatInterval,
		clock:             clock,
		logger:            logger,
	}

	catalogRoutes := router.Group("/catalog")
	catalogRoutes.GET("/types", handler.handleListTypes)
	catalogRoutes.GET("/creatures", handler.handleListCreatures)
	catalogRoutes.GET("/creatures/detail", handler.handleCreatureDetail)
	catalogRoutes.GET("/trainers", handler.handleListTrainers)
	catalogRoutes.GET("/energy", handler.handleListEnergy)

	protected := router.Group("/views")
	protected.Use(handler.authorizeRequest)
	protected.POST("", handler.handleOpenView)
	protected.GET("/:id", handler.handleGetView)
	protected.DELETE("/:id", handler.handleCloseView)
	protected.POST("/:id/staged", handler.handleStageCard)
	protected.POST("/:id/staged/recommendation", handler.handleStageRecommendation)
	protected.POST("/:id/submit", handler.handleSubmit)
	protected.DELETE("/:id/deck/:category/:card_id", handler.handleDeleteCard)
	protected.GET("/:id/events", handler.handleViewEvents)

	return router, nil
}

// corsMiddleware allows the browser front end to call the View API. An empty
// list or a "*" entry allows every origin without credentials.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	wildcard := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
		}
	}
	if wildcard {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

type httpHandler struct {
	catalog           CatalogSource
	deckService       deck.DeckService
	projectionCache   deck.ProjectionCache
	validator         deck.SessionValidator
	views             *ViewRegistry
	realtime          *RealtimeDispatcher
	idProvider        IDProvider
	heartbeatInterval time.Duration
	clock             func() time.Time
	logger            *zap.Logger
}

// authorizeRequest reads the bearer session from the Authorization header,
// or from the access_token query parameter for EventSource clients.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := strings.TrimSpace(c.Query(accessTokenQueryKey)); token != "" {
			header = "Bearer " + token
		}
	}
	session, err := auth.SessionFromAuthorizationHeader(header)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	if _, err := h.validator.Validate(session); err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.Set(sessionContextKey, session)
	c.Set(accountKeyContextKey, session.AccountKey())
	c.Next()
}

func requestSession(c *gin.Context) (auth.Session, string) {
	session, _ := c.Get(sessionContextKey)
	typed, _ := session.(auth.Session)
	return typed, c.GetString(accountKeyContextKey)
}

func (h *httpHandler) lookupView(c *gin.Context) (*viewSession, bool) {
	_, accountKey := requestSession(c)
	view, err := h.views.lookup(c.Param("id"), accountKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "view_not_found"})
		return nil, false
	}
	return view, true
}

// writeDeckError maps controller failures onto View API responses.
func (h *httpHandler) writeDeckError(c *gin.Context, err error) {
	var capacityErr *deck.CapacityError
	var operationErr *deck.OperationError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	case errors.As(err, &capacityErr) && errors.Is(err, deck.ErrCategoryFull):
		c.JSON(http.StatusConflict, gin.H{"error": "category_full", "category": capacityErr.Category, "limit": capacityErr.Limit})
	case errors.As(err, &capacityErr):
		c.JSON(http.StatusConflict, gin.H{"error": "deck_full", "limit": capacityErr.Limit})
	case errors.Is(err, deck.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "view_not_ready"})
	case errors.Is(err, cards.ErrInvalidCard), errors.Is(err, cards.ErrInvalidCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card"})
	case errors.As(err, &operationErr):
		h.logger.Error("deck operation failed", zap.String("code", operationErr.Code()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": operationResponseCode(operationErr.Code()), "code": operationErr.Code()})
	default:
		h.logger.Error("unexpected deck error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func operationResponseCode(code string) string {
	switch {
	case strings.HasPrefix(code, "deck.submit."):
		return "submit_failed"
	case strings.HasPrefix(code, "deck.delete."):
		return "delete_failed"
	case strings.HasPrefix(code, "deck.load."):
		return "load_failed"
	default:
		return "deck_service_failed"
	}
}
