package v1

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"

	"github.com/duynhne/game-session-service/internal/core/domain"
	"github.com/duynhne/game-session-service/internal/core/geo"
	logicv1 "github.com/duynhne/game-session-service/internal/logic/v1"
	"github.com/duynhne/game-session-service/middleware"
)

// NativeShellHeader is set by the mobile shell so sessions record the mobile platform
// regardless of the embedded browser's user agent.
const NativeShellHeader = "X-Native-Shell"

// LocationResolver turns coordinates into a place.
type LocationResolver interface {
	Resolve(ctx context.Context, q geo.Query) geo.Location
}

// Handler groups HTTP handlers for the game session API v1.
// Dependencies are injected via the constructor, no global state.
type Handler struct {
	sessions *logicv1.SessionManager
	geo      LocationResolver
}

// NewHandler creates a new Handler.
func NewHandler(sessions *logicv1.SessionManager, resolver LocationResolver) *Handler {
	return &Handler{sessions: sessions, geo: resolver}
}

// RegisterRoutes registers the user routes behind requireUser and the admin
// routes behind requireAdmin.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireUser, requireAdmin gin.HandlerFunc) {
	user := rg.Group("", requireUser)
	{
		user.POST("/sessions", h.CreateSession)
		user.GET("/sessions/:id", h.GetSession)
		user.GET("/games/:gameId/session", h.GetActiveSession)
		user.POST("/sessions/:id/activity", h.UpdateActivity)
		user.POST("/sessions/:id/validate", h.ValidateSession)
		user.POST("/sessions/:id/end", h.EndSession)
		user.POST("/sessions/:id/claim", h.ClaimRewards)
		user.GET("/location/reverse", h.ReverseGeocode)
		user.GET("/location/network", h.AssessNetwork)
	}

	admin := rg.Group("/admin", requireAdmin)
	{
		admin.GET("/sessions/stats", h.Stats)
		admin.POST("/sessions/sweep", h.Sweep)
		admin.DELETE("/sessions", h.ClearSessions)
	}
}

type createSessionRequest struct {
	GameID    string `json:"gameId" binding:"required"`
	GameTitle string `json:"gameTitle"`
}

type activityRequest struct {
	Type             string   `json:"type"`
	SessionCoins     *float64 `json:"sessionCoins" binding:"omitempty,gte=0"`
	SessionXP        *float64 `json:"sessionXP" binding:"omitempty,gte=0"`
	MilestoneReached string   `json:"milestoneReached"`
	TaskCompleted    string   `json:"taskCompleted"`
}

type endSessionRequest struct {
	Reason    string   `json:"reason"`
	Coins     *float64 `json:"coins" binding:"omitempty,gte=0"`
	XP        *float64 `json:"xp" binding:"omitempty,gte=0"`
	IsClaimed bool     `json:"isClaimed"`
}

type claimRequest struct {
	Coins *float64 `json:"coins" binding:"omitempty,gte=0"`
	XP    *float64 `json:"xp" binding:"omitempty,gte=0"`
}

func startRequestSpan(c *gin.Context) (context.Context, trace.Span) {
	return middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.FullPath()),
	))
}

// bindOptionalJSON binds the body when there is one. An empty body is allowed.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ownedSession looks up the path session and writes 404 when it is missing or
// belongs to another user.
func (h *Handler) ownedSession(c *gin.Context, span trace.Span) (domain.Session, bool) {
	id := c.Param("id")
	span.SetAttributes(attribute.String("session.id", id))

	s, ok := h.sessions.GetSession(id)
	if !ok || s.UserID != middleware.UserID(c) {
		span.SetAttributes(attribute.Bool("session.found", false))
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return domain.Session{}, false
	}
	return s, true
}

// CreateSession starts a session for the authenticated user.
// POST /api/v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	native, _ := strconv.ParseBool(c.GetHeader(NativeShellHeader))
	id, err := h.sessions.CreateSession(ctx, req.GameID, middleware.UserID(c), domain.GameData{
		Title:       req.GameTitle,
		UserAgent:   c.Request.UserAgent(),
		NativeShell: native,
	})
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Create session failed")

		switch {
		case errors.Is(err, logicv1.ErrInvalidArgument):
			c.JSON(http.StatusBadRequest, gin.H{"error": "gameId and user are required"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	s, _ := h.sessions.GetSession(id)
	c.JSON(http.StatusCreated, gin.H{"sessionId": id, "session": s})
}

// GetSession returns one of the caller's sessions.
// GET /api/v1/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	_, span := startRequestSpan(c)
	defer span.End()

	s, ok := h.ownedSession(c, span)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s)
}

// GetActiveSession returns the caller's active, unclaimed session for a game.
// GET /api/v1/games/:gameId/session
func (h *Handler) GetActiveSession(c *gin.Context) {
	_, span := startRequestSpan(c)
	defer span.End()

	gameID := c.Param("gameId")
	span.SetAttributes(attribute.String("game.id", gameID))

	s, ok := h.sessions.GetActiveSessionForGame(gameID, middleware.UserID(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateActivity records coins, XP, milestones and tasks for a session.
// POST /api/v1/sessions/:id/activity
func (h *Handler) UpdateActivity(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, ok := h.ownedSession(c, span)
	if !ok {
		return
	}

	updated := h.sessions.UpdateSessionActivity(ctx, s.ID, domain.Activity{
		Type:             req.Type,
		SessionCoins:     req.SessionCoins,
		SessionXP:        req.SessionXP,
		MilestoneReached: req.MilestoneReached,
		TaskCompleted:    req.TaskCompleted,
	})
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// ValidateSession checks local liveness and asks the rewards backend.
// POST /api/v1/sessions/:id/validate
func (h *Handler) ValidateSession(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	s, ok := h.ownedSession(c, span)
	if !ok {
		return
	}

	valid := h.sessions.ValidateSession(ctx, s.ID)
	span.SetAttributes(attribute.Bool("session.valid", valid))
	c.JSON(http.StatusOK, gin.H{"isValid": valid})
}

// EndSession ends a session, optionally overriding its final totals.
// POST /api/v1/sessions/:id/end
func (h *Handler) EndSession(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	var req endSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, ok := h.ownedSession(c, span)
	if !ok {
		return
	}

	if !h.sessions.EndSession(ctx, s.ID, req.Reason, domain.ClaimData{Coins: req.Coins, XP: req.XP, IsClaimed: req.IsClaimed}) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": true})
}

// ClaimRewards claims the session's rewards once.
// POST /api/v1/sessions/:id/claim
func (h *Handler) ClaimRewards(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	var req claimRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, ok := h.ownedSession(c, span)
	if !ok {
		return
	}

	result, err := h.sessions.ClaimSessionRewards(ctx, s.ID, domain.ClaimData{Coins: req.Coins, XP: req.XP})
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Str("session_id", s.ID).Msg("Claim failed")

		switch {
		case errors.Is(err, logicv1.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, logicv1.ErrAlreadyClaimed):
			c.JSON(http.StatusConflict, gin.H{"error": "Rewards already claimed for this session"})
		case errors.Is(err, logicv1.ErrClaimInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "Claim already in progress"})
		case errors.Is(err, logicv1.ErrClaimFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Rewards backend rejected the claim"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	logger.Info().Str("session_id", s.ID).Msg("Claim successful")
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"coinsTransferred": result.CoinsTransferred,
		"xpTransferred":    result.XPTransferred,
		"receipt":          result.Raw,
	})
}

// ReverseGeocode resolves coordinates to a city and country.
// GET /api/v1/location/reverse?lat=..&lon=..
func (h *Handler) ReverseGeocode(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon must be numbers"})
		return
	}

	lat, lon, err := geo.ValidateCoordinates(lat, lon)
	if err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.geo.Resolve(ctx, geo.Query{Lat: lat, Lon: lon, ClientIP: c.ClientIP()}))
}

type networkQuery struct {
	Timezone       string   `form:"timezone"`
	ConnectionType string   `form:"type"`
	RTT            *float64 `form:"rtt" binding:"omitempty,gte=0"`
	Downlink       *float64 `form:"downlink" binding:"omitempty,gte=0"`
}

// AssessNetwork scores VPN likelihood and connection quality from the
// request and the connection details the client reports.
// GET /api/v1/location/network?timezone=..&type=..&rtt=..&downlink=..
func (h *Handler) AssessNetwork(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	var q networkQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		pkgzerolog.FromContext(ctx).Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	signals := geo.NetworkSignals{
		UserAgent:      c.Request.UserAgent(),
		Timezone:       q.Timezone,
		ConnectionType: q.ConnectionType,
		Secure:         c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https",
		RTT:            q.RTT,
		Downlink:       q.Downlink,
	}
	vpn := geo.DetectVPN(signals)
	span.SetAttributes(attribute.Int("network.vpn_confidence", vpn.Confidence))

	c.JSON(http.StatusOK, gin.H{"vpn": vpn, "network": geo.AssessNetworkQuality(signals)})
}

// Stats reports aggregate numbers over the live session table.
// GET /api/v1/admin/sessions/stats
func (h *Handler) Stats(c *gin.Context) {
	_, span := startRequestSpan(c)
	defer span.End()

	c.JSON(http.StatusOK, h.sessions.Stats())
}

// Sweep ends expired sessions immediately.
// POST /api/v1/admin/sessions/sweep
func (h *Handler) Sweep(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	c.JSON(http.StatusOK, gin.H{"expired": h.sessions.SweepExpired(ctx)})
}

// ClearSessions drops every session and the stored table.
// DELETE /api/v1/admin/sessions
func (h *Handler) ClearSessions(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	n := h.sessions.ClearAllSessions(ctx)
	pkgzerolog.FromContext(ctx).Warn().Int("sessions", n).Msg("All sessions cleared by admin")
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}
