package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lumastream/coinledger/internal/account"
	"github.com/lumastream/coinledger/internal/config"
	apierrors "github.com/lumastream/coinledger/internal/errors"
	"github.com/lumastream/coinledger/internal/gift"
	"github.com/lumastream/coinledger/internal/ledger"
	"github.com/lumastream/coinledger/internal/logging"
	"github.com/lumastream/coinledger/internal/middleware"
	"github.com/lumastream/coinledger/internal/models"
	"github.com/lumastream/coinledger/internal/moderation"
	"github.com/lumastream/coinledger/internal/monitoring"
	"github.com/lumastream/coinledger/internal/payment"
	"github.com/lumastream/coinledger/internal/redemption"
)

// APIServer represents the main API server
type APIServer struct {
	config           *config.Config
	router           *gin.Engine
	db               *pgxpool.Pool
	accounts         *account.Store
	writer           *ledger.Writer
	processor        *payment.Processor
	gifts            *gift.Service
	redemptions      *redemption.Service
	moderation       *moderation.Service
	jwtAuthenticator *middleware.JWTAuthenticator
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	accounts := account.NewStore(db)
	writer := ledger.NewWriter(db, accounts, cfg.Ledger.CoinsPerFiatUnit)
	providerClient := payment.NewClient(&cfg.Provider)
	processor := payment.NewProcessor(db, accounts, writer, providerClient, rdb)
	gifts := gift.NewService(db, accounts, writer, cfg.Ledger.WalletFundedGifts)
	redemptions := redemption.NewService(db, accounts, writer, cfg.Ledger.MinRedemptionCoins, cfg.Ledger.CoinsPerFiatUnit)
	penalties := moderation.NewService(db, accounts, writer)

	srv := &APIServer{
		config:           cfg,
		router:           router,
		db:               db,
		accounts:         accounts,
		writer:           writer,
		processor:        processor,
		gifts:            gifts,
		redemptions:      redemptions,
		moderation:       penalties,
		jwtAuthenticator: middleware.NewJWTAuthenticator(&cfg.JWT),
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		// Coin pack routes
		coins := v1.Group("/coins")
		{
			coins.GET("/packs", s.handleListPacks)
			coins.POST("/purchase-intent", s.jwtAuthenticator.JWTAuth(), s.handleCreateIntent)
		}

		// Payment webhook (public, authenticated by signature)
		v1.POST("/payments/webhook", s.handlePaymentWebhook)

		// Gift routes (protected)
		v1.POST("/gifts", s.jwtAuthenticator.JWTAuth(), s.handleSendGift)

		// Account routes (protected)
		accounts := v1.Group("/accounts")
		accounts.Use(s.jwtAuthenticator.JWTAuth())
		{
			accounts.GET("/:id", s.handleGetAccount)
			accounts.GET("/:id/transactions", s.handleListTransactions)
		}

		// Creator routes (protected)
		creators := v1.Group("/creators")
		creators.Use(s.jwtAuthenticator.JWTAuth())
		{
			creators.GET("/:id/earnings", s.handleGetEarnings)
			creators.GET("/:id/redemptions", s.handleListCreatorRedemptions)
		}

		// Redemption routes
		redemptions := v1.Group("/redemptions")
		redemptions.Use(s.jwtAuthenticator.JWTAuth())
		{
			redemptions.POST("", middleware.RequireCreator(), s.handleRequestRedemption)
			redemptions.GET("", middleware.RequireAdmin(), s.handleListRedemptions)
			redemptions.PATCH("/:id", middleware.RequireAdmin(), s.handleResolveRedemption)
		}

		// Admin routes (protected - requires admin role)
		admin := v1.Group("/admin")
		admin.Use(s.jwtAuthenticator.JWTAuth())
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/receipts/unprocessed", s.handleListUnprocessedReceipts)
			admin.GET("/accounts", s.handleListAccounts)
			admin.POST("/accounts/:id/suspend", s.handleSuspendAccount)
			admin.POST("/accounts/:id/reinstate", s.handleReinstateAccount)
			admin.DELETE("/accounts/:id", s.handleDeleteAccount)
		}
	}
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	if err := s.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "coinledger",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "coinledger",
	})
}

// handleListPacks returns the fixed coin pack catalog
func (s *APIServer) handleListPacks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packs": payment.CoinPacks})
}

// handleCreateIntent creates an outbound charge for a coin pack
func (s *APIServer) handleCreateIntent(c *gin.Context) {
	accountID := middleware.GetAccountIDFromContext(c)
	if accountID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidTokenError)
		return
	}

	var req payment.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.processor.CreateIntent(c.Request.Context(), accountID, s.config.Provider.ReturnURL, &req)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrPackNotFound):
			respondError(c, apierrors.ErrPackNotFoundError)
		case errors.Is(err, payment.ErrAccountNotFound):
			respondError(c, apierrors.ErrAccountNotFoundError)
		case errors.Is(err, payment.ErrProviderUnavailable):
			respondError(c, apierrors.ErrProviderUnavailableError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// handlePaymentWebhook processes inbound payment-confirmation events
func (s *APIServer) handlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Failed to read request body"))
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	if err := s.processor.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidWebhookSig):
			respondError(c, apierrors.ErrForbiddenError)
		case errors.Is(err, payment.ErrInvalidEvent), errors.Is(err, payment.ErrUnknownOutcome):
			respondError(c, apierrors.NewInvalidRequestError("Invalid payment event"))
		default:
			// A non-2xx makes the provider redeliver, which is safe here.
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// handleSendGift delivers a coin gift to a creator
func (s *APIServer) handleSendGift(c *gin.Context) {
	senderID := middleware.GetAccountIDFromContext(c)
	if senderID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidTokenError)
		return
	}

	var req gift.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.gifts.Send(c.Request.Context(), senderID, &req)
	if err != nil {
		switch {
		case errors.Is(err, gift.ErrInsufficientFunds):
			respondError(c, apierrors.ErrInsufficientFundsError)
		case errors.Is(err, gift.ErrInvalidAmount):
			respondError(c, apierrors.NewInvalidRequestError("Gift amount must be positive"))
		case errors.Is(err, gift.ErrSelfGift):
			respondError(c, apierrors.NewInvalidRequestError("Cannot gift to yourself"))
		case errors.Is(err, gift.ErrAccountSuspended):
			respondError(c, apierrors.ErrAccountSuspendedError)
		case errors.Is(err, gift.ErrCreatorNotFound), errors.Is(err, account.ErrAccountNotFound):
			respondError(c, apierrors.ErrAccountNotFoundError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// handleGetAccount returns an account's balances
func (s *APIServer) handleGetAccount(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	acct, err := s.accounts.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			respondError(c, apierrors.ErrAccountNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, acct)
}

// handleListTransactions returns an account's ledger history
func (s *APIServer) handleListTransactions(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	entries, err := s.writer.History(c.Request.Context(), id, limit, offset)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": entries,
		"limit":        limit,
		"offset":       offset,
	})
}

// handleGetEarnings returns a creator's earnings summary
func (s *APIServer) handleGetEarnings(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	info, err := s.redemptions.GetEarningsInfo(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrAccountNotFound):
			respondError(c, apierrors.ErrCreatorNotFoundError)
		case errors.Is(err, redemption.ErrNotCreator):
			respondError(c, apierrors.NewInvalidRequestError("Account is not a creator"))
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, info)
}

// handleListCreatorRedemptions returns a creator's redemption history
func (s *APIServer) handleListCreatorRedemptions(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	requests, err := s.redemptions.ListByCreator(c.Request.Context(), id, limit, offset)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"redemptions": requests,
		"limit":       limit,
		"offset":      offset,
	})
}

// RequestRedemptionBody is the creator-facing redemption request body
type RequestRedemptionBody struct {
	AmountCoins int64 `json:"amount_coins" binding:"required"`
}

// handleRequestRedemption opens a redemption for the calling creator
func (s *APIServer) handleRequestRedemption(c *gin.Context) {
	creatorID := middleware.GetAccountIDFromContext(c)
	if creatorID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidTokenError)
		return
	}

	var body RequestRedemptionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	req, err := s.redemptions.Request(c.Request.Context(), creatorID, body.AmountCoins)
	if err != nil {
		switch {
		case errors.Is(err, redemption.ErrBelowMinimum):
			respondError(c, apierrors.NewBelowMinimumError(s.config.Ledger.MinRedemptionCoins))
		case errors.Is(err, redemption.ErrInsufficientFunds):
			respondError(c, apierrors.ErrInsufficientFundsError)
		case errors.Is(err, redemption.ErrNotCreator):
			respondError(c, apierrors.NewInvalidRequestError("Account is not a creator"))
		case errors.Is(err, redemption.ErrAccountSuspended):
			respondError(c, apierrors.ErrAccountSuspendedError)
		case errors.Is(err, account.ErrAccountNotFound):
			respondError(c, apierrors.ErrAccountNotFoundError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusCreated, req)
}

// handleListRedemptions returns the admin work queue
func (s *APIServer) handleListRedemptions(c *gin.Context) {
	status := models.RedemptionStatus(c.DefaultQuery("status", string(models.RedemptionStatusPending)))
	switch status {
	case models.RedemptionStatusPending, models.RedemptionStatusApproved, models.RedemptionStatusRejected:
	default:
		respondError(c, apierrors.NewInvalidRequestError("Invalid status filter"))
		return
	}

	limit, offset := pagination(c)
	requests, err := s.redemptions.ListByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"redemptions": requests,
		"status":      status,
		"limit":       limit,
		"offset":      offset,
	})
}

// ResolveRedemptionBody is the admin resolution body
type ResolveRedemptionBody struct {
	Status models.RedemptionStatus `json:"status" binding:"required"`
}

// handleResolveRedemption approves or rejects a pending redemption
func (s *APIServer) handleResolveRedemption(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	var body ResolveRedemptionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resolvedBy := middleware.GetHandleFromContext(c)
	resolved, err := s.redemptions.Resolve(c.Request.Context(), id, body.Status, resolvedBy)
	if err != nil {
		switch {
		case errors.Is(err, redemption.ErrNotFound):
			respondError(c, apierrors.ErrRedemptionNotFoundError)
		case errors.Is(err, redemption.ErrAlreadyResolved):
			respondError(c, apierrors.ErrAlreadyResolvedError)
		case errors.Is(err, redemption.ErrInvalidResolution):
			respondError(c, apierrors.NewInvalidRequestError("Status must be approved or rejected"))
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, resolved)
}

// handleListUnprocessedReceipts returns receipts awaiting reconciliation
func (s *APIServer) handleListUnprocessedReceipts(c *gin.Context) {
	limit, _ := pagination(c)
	receipts, err := s.processor.ListUnprocessed(c.Request.Context(), limit)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

// handleListAccounts lists accounts of a given type for moderation review
func (s *APIServer) handleListAccounts(c *gin.Context) {
	accountType := models.AccountType(c.DefaultQuery("type", string(models.AccountTypeCreator)))
	switch accountType {
	case models.AccountTypeUser, models.AccountTypeCreator:
	default:
		respondError(c, apierrors.NewInvalidRequestError("Invalid account type filter"))
		return
	}

	limit, offset := pagination(c)
	accounts, err := s.accounts.ListByType(c.Request.Context(), accountType, limit, offset)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accounts": accounts,
		"type":     accountType,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleSuspendAccount suspends an account
func (s *APIServer) handleSuspendAccount(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	acct, err := s.moderation.Suspend(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			respondError(c, apierrors.ErrAccountNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, acct)
}

// handleReinstateAccount lifts a suspension
func (s *APIServer) handleReinstateAccount(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	acct, err := s.moderation.Reinstate(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrAccountNotFound):
			respondError(c, apierrors.ErrAccountNotFoundError)
		case errors.Is(err, moderation.ErrAlreadyDeleted):
			respondError(c, apierrors.ErrConflictError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, acct)
}

// handleDeleteAccount deletes an account and forfeits its residual coins
func (s *APIServer) handleDeleteAccount(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	acct, err := s.moderation.DeleteAccount(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrAccountNotFound):
			respondError(c, apierrors.ErrAccountNotFoundError)
		case errors.Is(err, moderation.ErrAlreadyDeleted):
			respondError(c, apierrors.ErrConflictError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, acct)
}

func (s *APIServer) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid ID"))
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	requestID, _ := c.Get("request_id")
	reqIDStr, _ := requestID.(string)

	c.JSON(err.HTTPStatus, apierrors.ErrorResponse{
		Error:     *err,
		RequestID: reqIDStr,
	})
}
