package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradedesk/internal/config"
	"github.com/ajitpratap0/tradedesk/internal/exchange"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
)

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "tradedesk",
		"version": config.GetVersion(),
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleGetHealth is a liveness probe
func (s *Server) handleGetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// handleGetStatus returns the whole session snapshot along with prices and
// favorites, the state a view renders from
func (s *Server) handleGetStatus(c *gin.Context) {
	resp := gin.H{
		"session":      s.session.Snapshot(),
		"prices":       s.session.Prices(),
		"feed_running": s.session.FeedRunning(),
	}
	if s.favorites != nil {
		resp["favorites"] = s.favorites.List()
	}
	if s.inbox != nil {
		resp["notifications"] = gin.H{
			"pending": s.inbox.Len(),
			"dropped": s.inbox.Dropped(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

type connectRequest struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

func (s *Server) handleConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	cred := exchange.Credential{APIKey: req.APIKey, APISecret: req.APISecret}
	if err := s.session.Connect(c.Request.Context(), cred); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.session.Disconnect(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Snapshot())
}

type symbolRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (s *Server) handleSetCurrentSymbol(c *gin.Context) {
	var req symbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	if err := s.session.SetCurrentSymbol(req.Symbol); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current_symbol": s.session.CurrentSymbol()})
}

func (s *Server) handleListBalances(c *gin.Context) {
	balances := s.session.Balances()
	c.JSON(http.StatusOK, gin.H{
		"balances": balances,
		"count":    len(balances),
	})
}

func (s *Server) handleRefreshBalances(c *gin.Context) {
	if err := s.session.RefreshBalances(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	s.handleListBalances(c)
}

func (s *Server) handleListOrders(c *gin.Context) {
	orders := s.session.Orders()
	if c.Query("open") == "true" {
		orders = s.session.OpenOrders()
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req exchange.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	order, err := s.session.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Set("resource_id", order.ID)
	c.JSON(http.StatusCreated, order)
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	order, err := s.session.CancelOrder(c.Request.Context(), c.Param("symbol"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) handleRefreshOrders(c *gin.Context) {
	if err := s.session.RefreshOrders(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	s.handleListOrders(c)
}

func (s *Server) handleListPrices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prices": s.session.Prices()})
}

func (s *Server) handleGetPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	price, ok := s.session.SymbolPrice(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_symbol",
			"message": "symbol is not tracked: " + symbol,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price})
}

func (s *Server) handleListFavorites(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"favorites": s.favorites.List()})
}

func (s *Server) handleAddFavorite(c *gin.Context) {
	added, err := s.favorites.Add(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "favorites": s.favorites.List()})
}

func (s *Server) handleRemoveFavorite(c *gin.Context) {
	removed, err := s.favorites.Remove(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "favorites": s.favorites.List()})
}

func (s *Server) handleToggleFavorite(c *gin.Context) {
	favorite, err := s.favorites.Toggle(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorite": favorite, "favorites": s.favorites.List()})
}

// handleDrainNotifications hands out queued notifications; ?peek=true leaves
// them queued
func (s *Server) handleDrainNotifications(c *gin.Context) {
	var notes []notifications.Notification
	if c.Query("peek") == "true" {
		notes = s.inbox.Peek()
	} else {
		notes = s.inbox.Drain()
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notes,
		"count":         len(notes),
	})
}

// statusFor maps a domain error to its HTTP status
func statusFor(err error) int {
	switch exchange.KindOf(err) {
	case exchange.KindInvalidCredential, exchange.KindInvalidQuantity, exchange.KindInvalidPrice:
		return http.StatusBadRequest
	case exchange.KindOrderNotFound:
		return http.StatusNotFound
	case exchange.KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Intent failed")
	}

	c.JSON(status, gin.H{
		"error":   exchange.KindOf(err),
		"message": err.Error(),
	})
}

func respondBadRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": err.Error(),
	})
}
