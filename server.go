package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"bitbucket.org/mmdatafocus/retailpos_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

func main() {
	_ = godotenv.Load()

	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization",
		"x-business-id", "x-user-id", "x-user-name", "x-storefront-id", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(tenantMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go workflow.StartReservationSweeper(jobCtx, logger, sweepIntervalFromEnv())
	go workflow.StartCartCleanup(jobCtx, logger, workflow.DefaultCartMaxAge)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func sweepIntervalFromEnv() time.Duration {
	v := strings.TrimSpace(os.Getenv("RESERVATION_SWEEP_INTERVAL"))
	if v == "" {
		return workflow.DefaultSweepInterval
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return workflow.DefaultSweepInterval
	}
	return d
}

// tenantMiddleware copies the identity headers into the request context.
// Authentication happens upstream; by the time a request reaches this
// service the gateway has verified the token and stamped the headers.
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if v := c.GetHeader("x-business-id"); v != "" {
			ctx = utils.SetBusinessIdInContext(ctx, v)
		}
		if v := c.GetHeader("x-user-id"); v != "" {
			ctx = utils.SetUserIdInContext(ctx, v)
		}
		if v := c.GetHeader("x-user-name"); v != "" {
			ctx = utils.SetUserNameInContext(ctx, v)
		}
		if v := c.GetHeader("x-storefront-id"); v != "" {
			ctx = utils.SetStorefrontIdInContext(ctx, v)
		}
		if c.GetHeader("x-is-admin") == "true" {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// writeError maps the typed domain errors onto HTTP statuses: conflicts
// from stock/state contention get 409, missing rows 404, bad input 400.
func writeError(c *gin.Context, err error) {
	payload := gin.H{"error": err.Error()}
	if correlationId, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
		payload["correlation_id"] = correlationId
	}
	var (
		insufficient *models.InsufficientStockError
		transition   *models.InvalidStateTransitionError
		overRefund   *models.OverRefundError
		fractional   *models.FractionalQuantityError
		negative     *models.NegativeStockError
	)
	switch {
	case errors.As(err, &insufficient),
		errors.As(err, &transition),
		errors.As(err, &overRefund),
		errors.As(err, &negative):
		c.JSON(http.StatusConflict, payload)
	case errors.As(err, &fractional):
		c.JSON(http.StatusBadRequest, payload)
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, utils.ErrorRecordNotFound):
		payload["error"] = "record not found"
		c.JSON(http.StatusNotFound, payload)
	case errors.Is(err, models.ErrManagerOverrideRequired):
		c.JSON(http.StatusForbidden, payload)
	default:
		c.JSON(http.StatusBadRequest, payload)
	}
	_ = c.Error(err)
}

func registerRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	api.POST("/businesses", func(c *gin.Context) {
		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		business, err := models.CreateBusiness(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, business)
	})
	api.GET("/businesses/:id", func(c *gin.Context) {
		business, err := models.GetBusinessById(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	})

	api.POST("/storefronts", func(c *gin.Context) {
		var input models.NewStorefront
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		storefront, err := models.CreateStorefront(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, storefront)
	})
	api.GET("/storefronts", func(c *gin.Context) {
		rows, err := models.ListStorefronts(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})
	api.GET("/storefronts/:id", func(c *gin.Context) {
		storefront, err := models.GetStorefront(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, storefront)
	})

	api.GET("/storefronts/:id/inventory", func(c *gin.Context) {
		rows, err := models.ListStorefrontInventory(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	api.POST("/products", func(c *gin.Context) {
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	})
	api.GET("/products", func(c *gin.Context) {
		rows, err := models.ListProducts(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})
	api.GET("/products/:id", func(c *gin.Context) {
		product, err := models.GetProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})

	api.POST("/suppliers", func(c *gin.Context) {
		var input struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		supplier, err := models.CreateSupplier(c.Request.Context(), input.Name, input.Phone)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, supplier)
	})

	api.POST("/customers", func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	})
	api.GET("/customers", func(c *gin.Context) {
		rows, err := models.ListCustomers(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})
	api.GET("/customers/:id", func(c *gin.Context) {
		customer, err := models.GetCustomer(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, customer)
	})

	// Warehouse batches.
	api.POST("/stock-products", func(c *gin.Context) {
		var input models.NewStockProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		sp, err := models.CreateStockProduct(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sp)
	})
	api.PUT("/stock-products/:id", func(c *gin.Context) {
		var input models.NewStockProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		sp, err := models.UpdateStockProduct(c.Request.Context(), c.Param("id"), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sp)
	})
	api.GET("/stock-products/:id", func(c *gin.Context) {
		sp, err := models.GetStockProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sp)
	})
	api.GET("/stock-products/:id/available", func(c *gin.Context) {
		available, err := models.AvailableWarehouseStock(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"available": available})
	})

	// Reservations.
	api.POST("/reservations", func(c *gin.Context) {
		var input models.NewStockReservation
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		reservation, err := models.CreateReservation(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, reservation)
	})
	api.POST("/reservations/:id/release", func(c *gin.Context) {
		reservation, err := models.ReleaseReservation(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, reservation)
	})

	// Sales.
	api.POST("/sales", func(c *gin.Context) {
		var input models.NewSale
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		sale, err := models.CreateSale(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sale)
	})
	api.GET("/sales", func(c *gin.Context) {
		sales, err := models.ListSales(c.Request.Context(), models.SaleStatus(c.Query("status")), 0)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sales)
	})
	api.GET("/sales/:id", func(c *gin.Context) {
		sale, err := models.GetSale(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	})
	api.POST("/sales/:id/items", func(c *gin.Context) {
		var input models.NewSaleItem
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		sale, err := models.AddSaleItem(c.Request.Context(), c.Param("id"), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	})
	api.DELETE("/sales/:id/items/:itemId", func(c *gin.Context) {
		sale, err := models.RemoveSaleItem(c.Request.Context(), c.Param("id"), c.Param("itemId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	})
	api.POST("/sales/:id/checkout", func(c *gin.Context) {
		var input models.CheckoutInput
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		sale, err := models.CompleteSale(c.Request.Context(), c.Param("id"), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	})
	api.POST("/sales/:id/payments", func(c *gin.Context) {
		var input struct {
			Amount decimal.Decimal `json:"amount"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		sale, err := models.RecordPayment(c.Request.Context(), c.Param("id"), input.Amount)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	})
	api.POST("/sales/:id/refunds", func(c *gin.Context) {
		var input models.NewRefund
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		refund, err := models.ProcessRefund(c.Request.Context(), c.Param("id"), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, refund)
	})
	api.GET("/sales/:id/refunds", func(c *gin.Context) {
		refunds, err := models.ListRefundsForSale(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, refunds)
	})
	api.GET("/refunds/:id", func(c *gin.Context) {
		refund, err := models.GetRefund(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, refund)
	})
	api.POST("/sales/:id/cancel", func(c *gin.Context) {
		var input struct {
			Restock *bool  `json:"restock"`
			Reason  string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		sale, err := models.CancelSale(c.Request.Context(), c.Param("id"), utils.DereferencePtr(input.Restock, true))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	})

	// Adjustments.
	api.POST("/stock-adjustments", func(c *gin.Context) {
		var input models.NewStockAdjustment
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		adjustment, err := models.CreateStockAdjustment(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, adjustment)
	})
	api.POST("/stock-adjustments/:id/complete", func(c *gin.Context) {
		adjustment, err := models.CompleteStockAdjustment(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, adjustment)
	})
	api.DELETE("/stock-adjustments/:id", func(c *gin.Context) {
		if err := models.DeleteStockAdjustment(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.GET("/stock-adjustments", func(c *gin.Context) {
		rows, err := models.ListStockAdjustments(c.Request.Context(), models.AdjustmentStatus(c.Query("status")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})
	api.GET("/stock-adjustments/:id", func(c *gin.Context) {
		adjustment, err := models.GetStockAdjustment(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, adjustment)
	})

	// Transfers.
	api.POST("/transfer-requests", func(c *gin.Context) {
		var input models.NewTransferRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		request, err := models.CreateTransferRequest(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, request)
	})
	api.GET("/transfer-requests", func(c *gin.Context) {
		rows, err := models.ListTransferRequests(c.Request.Context(), models.TransferRequestStatus(c.Query("status")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})
	api.GET("/transfer-requests/:id", func(c *gin.Context) {
		request, err := models.GetTransferRequest(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	})
	api.POST("/transfer-requests/:id/assign", func(c *gin.Context) {
		var input struct {
			AssigneeId string `json:"assignee_id"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		request, err := models.AssignTransferRequest(c.Request.Context(), c.Param("id"), input.AssigneeId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	})
	api.POST("/transfer-requests/:id/fulfill", func(c *gin.Context) {
		request, err := models.FulfillTransferRequest(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	})
	api.POST("/transfer-requests/:id/reopen", func(c *gin.Context) {
		var input struct {
			ManagerOverride bool `json:"manager_override"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		request, err := models.ReopenTransferRequest(c.Request.Context(), c.Param("id"), input.ManagerOverride)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	})
	api.POST("/transfer-requests/:id/cancel", func(c *gin.Context) {
		request, err := models.CancelTransferRequest(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	})
	api.POST("/transfers/manual", func(c *gin.Context) {
		var input struct {
			StorefrontId   string          `json:"storefront_id"`
			StockProductId string          `json:"stock_product_id"`
			Quantity       decimal.Decimal `json:"quantity"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		request, err := models.FulfillManualTransfer(c.Request.Context(), input.StorefrontId, input.StockProductId, input.Quantity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, request)
	})

	// Reconciliation (read-only over the ledgers).
	api.GET("/reconciliation/products/:id", func(c *gin.Context) {
		report, err := models.ReconcileProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	})
	api.POST("/reconciliation/run", func(c *gin.Context) {
		reports, err := models.RunReconciliationChecks(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, reports)
	})
	api.GET("/reconciliation/reports", func(c *gin.Context) {
		reports, err := models.ListReconciliationReports(c.Request.Context(), 0)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, reports)
	})

	api.GET("/audit-logs", func(c *gin.Context) {
		logs, err := models.ListAuditLogs(c.Request.Context(), c.Query("reference_type"), c.Query("reference_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, logs)
	})
}
