package assessment

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/safescope/safescope/internal/chains"
)

// Handler provides HTTP handlers for wallet assessments.
type Handler struct {
	engine *Engine
	store  Store
}

// NewHandler creates an assessment handler. store may be nil when no
// audit trail is configured; the history endpoint then returns empty.
func NewHandler(engine *Engine, store Store) *Handler {
	return &Handler{engine: engine, store: store}
}

// RegisterRoutes sets up the assessment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/networks", h.ListNetworks)
	r.GET("/safes/:network/:address/assessment", h.Assess)
	r.GET("/safes/:network/:address/assessments", h.History)
}

// ListNetworks handles GET /networks
func (h *Handler) ListNetworks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"networks": chains.All()})
}

// Assess handles GET /safes/:network/:address/assessment.
//
// It always returns 200 with an Assessment body. Malformed addresses and
// unsupported networks are verdicts, not request errors — the engine is
// the single source of risk decisions.
func (h *Handler) Assess(c *gin.Context) {
	result := h.engine.Assess(c.Request.Context(), c.Param("address"), c.Param("network"))
	c.JSON(http.StatusOK, result)
}

// History handles GET /safes/:network/:address/assessments
func (h *Handler) History(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"assessments": []*Assessment{}})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be an integer between 1 and 100",
			})
			return
		}
		limit = n
	}

	list, err := h.store.ListByWallet(c.Request.Context(), c.Param("network"), c.Param("address"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "history_failed",
			"message": "Failed to load assessment history",
		})
		return
	}
	if list == nil {
		list = []*Assessment{}
	}
	c.JSON(http.StatusOK, gin.H{"assessments": list})
}
