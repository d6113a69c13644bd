package main

import (
	"context"
	"log"

	_ "backend/api/swagger" // swagger docs
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/pdf"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Sales Document Lifecycle API
// @version         1.0
// @description     Quote, sales order and invoice lifecycle with inventory tracking and role governance.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	cfg := config.Load()

	db, err := database.NewConnection(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// PDF renderer for order confirmations and invoices
	renderer, err := pdf.NewRenderer("")
	if err != nil {
		log.Fatalf("PDF renderer setup failed: %v", err)
	}

	// Repositories
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	productRepo := repository.NewProductRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	orderRepo := repository.NewSalesOrderRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	roleRepo := repository.NewRoleRepository(db)

	// Domain engines shared across services
	calculator := service.NewFinancialCalculator()
	states := service.NewDocumentStateMachine()
	governance := service.NewGovernanceEngine()
	ledger := service.NewInventoryLedger(productRepo, movementRepo, cfg.Inventory)

	// Services
	userService := service.NewUserService(userRepo, auditRepo)
	customerService := service.NewCustomerService(customerRepo)
	productService := service.NewProductService(productRepo, movementRepo, auditRepo, txManager, ledger)
	quoteService := service.NewQuoteService(quoteRepo, auditRepo, userRepo, sequenceRepo, txManager, calculator, states, governance)
	orderService := service.NewOrderService(orderRepo, auditRepo, userRepo, txManager, calculator, states, governance, ledger)
	invoiceService := service.NewInvoiceService(invoiceRepo, orderRepo, quoteRepo, auditRepo, userRepo, txManager, calculator, states, governance)
	pipeline := service.NewConversionPipeline(quoteRepo, orderRepo, invoiceRepo, auditRepo, userRepo, sequenceRepo, txManager, calculator, states, governance, ledger, renderer, wsHub)
	auditService := service.NewAuditService(auditRepo)
	statisticsService := service.NewStatisticsService(db, calculator)
	roleService := service.NewRoleService(roleRepo, txManager)

	if err := roleService.SeedDefaultRolesAndPermissions(context.Background()); err != nil {
		log.Fatalf("Role seeding failed: %v", err)
	}

	// Permission middleware reads role grants straight from the database
	middleware.InitPermissionMiddleware(db)

	// Handlers
	userHandler := handler.NewUserHandler(userService)
	customerHandler := handler.NewCustomerHandler(customerService)
	productHandler := handler.NewProductHandler(productService)
	quoteHandler := handler.NewQuoteHandler(quoteService, pipeline)
	orderHandler := handler.NewOrderHandler(orderService, pipeline)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	auditHandler := handler.NewAuditHandler(auditService)
	statisticsHandler := handler.NewStatisticsHandler(statisticsService)
	roleHandler := handler.NewRoleHandler(roleService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// API Routing
	userHandler.RegisterRoutes(router.Group(""))
	customerHandler.RegisterRoutes(router.Group(""))
	productHandler.RegisterRoutes(router.Group(""))
	quoteHandler.RegisterRoutes(router.Group(""))
	orderHandler.RegisterRoutes(router.Group(""))
	invoiceHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	statisticsHandler.RegisterRoutes(router.Group(""))
	roleHandler.RegisterRoutes(router.Group(""))

	log.Printf("Server listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
