package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	intent := s.intentMiddleware()

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.handleGetHealth)
		v1.GET("/status", s.handleGetStatus)

		sess := v1.Group("/session")
		{
			sess.POST("/connect", intent, s.handleConnect)
			sess.POST("/disconnect", intent, s.handleDisconnect)
			sess.PUT("/symbol", s.handleSetCurrentSymbol)
		}

		balances := v1.Group("/balances")
		{
			balances.GET("", s.handleListBalances)
			balances.POST("/refresh", intent, s.handleRefreshBalances)
		}

		orders := v1.Group("/orders")
		{
			orders.GET("", s.handleListOrders)
			orders.POST("", intent, s.handlePlaceOrder)
			orders.POST("/refresh", intent, s.handleRefreshOrders)
			orders.DELETE("/:symbol/:id", intent, s.handleCancelOrder)
		}

		prices := v1.Group("/prices")
		{
			prices.GET("", s.handleListPrices)
			prices.GET("/:symbol", s.handleGetPrice)
		}

		if s.favorites != nil {
			favs := v1.Group("/favorites")
			{
				favs.GET("", s.handleListFavorites)
				favs.PUT("/:symbol", s.handleAddFavorite)
				favs.DELETE("/:symbol", s.handleRemoveFavorite)
				favs.POST("/:symbol/toggle", s.handleToggleFavorite)
			}
		}

		if s.inbox != nil {
			v1.GET("/notifications", s.handleDrainNotifications)
		}
	}

	if s.hub != nil {
		s.router.GET("/ws", s.hub.ServeWS)
	}

	s.router.GET("/", s.handleRoot)
}
