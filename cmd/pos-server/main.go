package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	authhandler "github.com/mesapos/mesa-backend/internal/auth/handler"
	"github.com/mesapos/mesa-backend/internal/auth/jwt"
	authmw "github.com/mesapos/mesa-backend/internal/auth/middleware"
	authrepo "github.com/mesapos/mesa-backend/internal/auth/repository"
	authservice "github.com/mesapos/mesa-backend/internal/auth/service"
	billingevents "github.com/mesapos/mesa-backend/internal/billing/events"
	billinghandler "github.com/mesapos/mesa-backend/internal/billing/handler"
	billingrepo "github.com/mesapos/mesa-backend/internal/billing/repository"
	billingservice "github.com/mesapos/mesa-backend/internal/billing/service"
	"github.com/mesapos/mesa-backend/internal/billing/terminal"
	cashierconsumers "github.com/mesapos/mesa-backend/internal/cashier/consumers"
	cashierhandler "github.com/mesapos/mesa-backend/internal/cashier/handler"
	cashierrepo "github.com/mesapos/mesa-backend/internal/cashier/repository"
	cashierservice "github.com/mesapos/mesa-backend/internal/cashier/service"
	cataloghandler "github.com/mesapos/mesa-backend/internal/catalog/handler"
	catalogrepo "github.com/mesapos/mesa-backend/internal/catalog/repository"
	catalogservice "github.com/mesapos/mesa-backend/internal/catalog/service"
	customershandler "github.com/mesapos/mesa-backend/internal/customers/handler"
	customersrepo "github.com/mesapos/mesa-backend/internal/customers/repository"
	customersservice "github.com/mesapos/mesa-backend/internal/customers/service"
	dininghandler "github.com/mesapos/mesa-backend/internal/diningroom/handler"
	diningrepo "github.com/mesapos/mesa-backend/internal/diningroom/repository"
	diningservice "github.com/mesapos/mesa-backend/internal/diningroom/service"
	ordersevents "github.com/mesapos/mesa-backend/internal/orders/events"
	ordershandler "github.com/mesapos/mesa-backend/internal/orders/handler"
	ordersrepo "github.com/mesapos/mesa-backend/internal/orders/repository"
	ordersservice "github.com/mesapos/mesa-backend/internal/orders/service"
	printingconsumers "github.com/mesapos/mesa-backend/internal/printing/consumers"
	printinghandler "github.com/mesapos/mesa-backend/internal/printing/handler"
	printingrepo "github.com/mesapos/mesa-backend/internal/printing/repository"
	printingservice "github.com/mesapos/mesa-backend/internal/printing/service"
	"github.com/mesapos/mesa-backend/internal/printing/transmit"
	safthandler "github.com/mesapos/mesa-backend/internal/saft/handler"
	saftrepo "github.com/mesapos/mesa-backend/internal/saft/repository"
	saftservice "github.com/mesapos/mesa-backend/internal/saft/service"
	tenancyhandler "github.com/mesapos/mesa-backend/internal/tenancy/handler"
	tenancyrepo "github.com/mesapos/mesa-backend/internal/tenancy/repository"
	tenancyservice "github.com/mesapos/mesa-backend/internal/tenancy/service"
	"github.com/mesapos/mesa-backend/pkg/authz"
	"github.com/mesapos/mesa-backend/pkg/config"
	"github.com/mesapos/mesa-backend/pkg/database"
	"github.com/mesapos/mesa-backend/pkg/httputil"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/messaging"
)

func main() {
	cfg, err := config.LoadWithValidation("pos-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("pos-server", cfg.Server.Environment)
	log.Info().Str("environment", cfg.Server.Environment).Msg("starting POS server")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	orderPublisher, err := ordersevents.NewOrderEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create order event publisher")
	}
	billingPublisher, err := billingevents.NewBillingEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create billing event publisher")
	}

	// Repositories
	userRepo := authrepo.New(db)
	tenantRepo := tenancyrepo.New(db)
	catalogRepo := catalogrepo.New(db)
	customerRepo := customersrepo.New(db)
	diningRepo := diningrepo.New(db)
	orderRepo := ordersrepo.New(db)
	paymentRepo := billingrepo.NewPaymentRepository(db)
	fiscalRepo := billingrepo.NewFiscalRepository(db)
	cashierRepo := cashierrepo.New(db)
	printerRepo := printingrepo.New(db)
	auditRepo := saftrepo.New(db)

	// Card terminal. The mock approves everything except the designated
	// decline/timeout/error amounts.
	var term terminal.Terminal
	if cfg.Terminal.Mock {
		term = terminal.NewMock()
		log.Warn().Msg("payment terminal running in mock mode")
	} else {
		log.Fatal().Msg("no hardware terminal gateway configured, set POS_TERMINAL_MOCK=true")
	}

	// Services
	jwtManager := jwt.NewManager(&cfg.JWT)
	authService := authservice.NewAuthService(userRepo, jwtManager, log)
	tenancyService := tenancyservice.New(tenantRepo, log)
	catalogService := catalogservice.New(catalogRepo, log)
	customerService := customersservice.New(customerRepo, log)
	diningService := diningservice.New(diningRepo, log)
	orderService := ordersservice.New(db, orderRepo, catalogRepo, diningService, orderPublisher, log)
	billingService := billingservice.New(db, paymentRepo, fiscalRepo, orderRepo, diningService,
		term, billingPublisher, auditRepo, cfg.Terminal.ChargeTimeout, log)
	cashierService := cashierservice.New(db, cashierRepo, tenantRepo, log)
	printingService := printingservice.New(db, printerRepo, transmit.NewSpool(log),
		cfg.Printing.TransmitTimeout, log)
	saftService := saftservice.New(fiscalRepo, tenantRepo, auditRepo, log)

	// Handlers
	authHandler := authhandler.NewAuthHandler(authService, log)
	tenancyHandler := tenancyhandler.New(tenancyService, log)
	catalogHandler := cataloghandler.New(catalogService, log)
	customerHandler := customershandler.New(customerService, log)
	diningHandler := dininghandler.New(diningService, log)
	orderHandler := ordershandler.New(orderService, log)
	billingHandler := billinghandler.New(billingService, log)
	cashierHandler := cashierhandler.New(cashierService, log)
	printingHandler := printinghandler.New(printingService, log)
	saftHandler := safthandler.New(saftService, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event consumers
	printConsumer, err := messaging.NewConsumer(rmq, "printing.order-confirmed", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create print consumer")
	}
	if err := rmq.DeclareDeadLetterQueue("printing.order-confirmed"); err != nil {
		log.Fatal().Err(err).Msg("failed to declare print dead letter queue")
	}
	if err := printingconsumers.NewOrderConfirmedConsumer(printingService, log).Register(printConsumer); err != nil {
		log.Fatal().Err(err).Msg("failed to register print consumer")
	}
	if err := printConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start print consumer")
	}

	cashConsumer, err := messaging.NewConsumer(rmq, "cashier.payment-completed", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cashier consumer")
	}
	if err := rmq.DeclareDeadLetterQueue("cashier.payment-completed"); err != nil {
		log.Fatal().Err(err).Msg("failed to declare cashier dead letter queue")
	}
	if err := cashierconsumers.NewPaymentConsumer(db, cashierRepo, log).Register(cashConsumer); err != nil {
		log.Fatal().Err(err).Msg("failed to register cashier consumer")
	}
	if err := cashConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start cashier consumer")
	}

	// Background retry of print jobs parked behind WAIT printers.
	go printingService.RunSweeper(ctx, cfg.Printing.SweepInterval)

	limiter := httputil.NewRateLimiter(&cfg.RateLimit)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httputil.TraceID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "X-Trace-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "pos-server",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.Authenticate(jwtManager))
			r.Use(authmw.TenantOverride(cfg.Server.Environment))
			if cfg.RateLimit.Enabled {
				r.Use(limiter.Middleware)
			}

			// Platform administration, no tenant scope.
			r.Route("/tenants", func(r chi.Router) {
				r.Use(authmw.RequireRole(authz.RoleSuperAdmin))
				r.Post("/", tenancyHandler.CreateTenant)
				r.Get("/", tenancyHandler.ListTenants)
				r.Put("/{id}/status", tenancyHandler.SetTenantStatus)
			})

			// Everything below acts within one tenant.
			r.Group(func(r chi.Router) {
				r.Use(authmw.RequireTenant)

				r.Route("/sites", func(r chi.Router) {
					r.Post("/", tenancyHandler.CreateSite)
					r.Get("/", tenancyHandler.ListSites)
				})
				r.Route("/users", func(r chi.Router) {
					r.Post("/", tenancyHandler.CreateUser)
					r.Get("/", tenancyHandler.ListUsers)
					r.Put("/{id}/status", tenancyHandler.SetUserStatus)
				})

				r.Route("/catalog", func(r chi.Router) {
					r.Post("/families", catalogHandler.CreateFamily)
					r.Get("/families", catalogHandler.ListFamilies)
					r.Post("/families/{familyId}/subfamilies", catalogHandler.CreateSubfamily)
					r.Get("/families/{familyId}/subfamilies", catalogHandler.ListSubfamilies)
					r.Post("/items", catalogHandler.CreateItem)
					r.Get("/items", catalogHandler.ListItems)
					r.Get("/items/{id}", catalogHandler.GetItem)
					r.Put("/items/{id}", catalogHandler.UpdateItem)
					r.Put("/items/{id}/availability", catalogHandler.SetItemAvailability)
				})

				r.Route("/customers", func(r chi.Router) {
					r.Post("/", customerHandler.Create)
					r.Get("/search", customerHandler.Search)
					r.Get("/{id}", customerHandler.Get)
					r.Put("/{id}", customerHandler.Update)
					r.Get("/{id}/orders", customerHandler.OrderHistory)
				})

				r.Route("/tables", func(r chi.Router) {
					r.Post("/", diningHandler.CreateTable)
					r.Get("/", diningHandler.ListTables)
					r.Get("/{id}", diningHandler.GetTable)
					r.Put("/{id}/status", diningHandler.SetTableStatus)
					r.Post("/transfer", orderHandler.TransferTable)
				})
				r.Route("/blacklist", func(r chi.Router) {
					r.Post("/", diningHandler.AddBlacklistEntry)
					r.Get("/", diningHandler.ListBlacklist)
					r.Delete("/{id}", diningHandler.RemoveBlacklistEntry)
				})

				r.Route("/orders", func(r chi.Router) {
					r.Post("/", orderHandler.Create)
					r.Get("/", orderHandler.List)
					r.Get("/{id}", orderHandler.Get)
					r.Post("/{id}/lines", orderHandler.AddLine)
					r.Put("/{id}/lines/{lineId}", orderHandler.UpdateLine)
					r.Post("/{id}/lines/{lineId}/void", orderHandler.VoidLine)
					r.Post("/{id}/confirm", orderHandler.Confirm)
					r.Post("/{id}/discount", orderHandler.ApplyDiscount)
					r.Post("/{id}/transfer", orderHandler.Transfer)
					r.Post("/{id}/close", orderHandler.Close)
					r.Post("/{id}/void", orderHandler.Void)

					r.Get("/{orderId}/payments", billingHandler.ListPayments)
					r.Get("/{orderId}/documents", billingHandler.ListFiscalDocuments)
					r.Post("/{orderId}/splits", billingHandler.SplitBill)
					r.Get("/{orderId}/splits", billingHandler.ListSplits)
					r.Get("/{orderId}/subtotal", billingHandler.PrintSubtotal)

					r.Get("/{orderId}/print-jobs", printingHandler.ListJobs)
					r.Post("/{orderId}/reprint", printingHandler.Reprint)
				})

				r.Route("/payments", func(r chi.Router) {
					r.Post("/", billingHandler.ProcessPayment)
					r.Post("/{id}/void", billingHandler.VoidPayment)
				})
				r.Route("/documents", func(r chi.Router) {
					r.Post("/", billingHandler.GenerateFiscalDocument)
					r.Post("/{id}/void", billingHandler.VoidFiscalDocument)
				})

				r.Route("/registers", func(r chi.Router) {
					r.Post("/", cashierHandler.CreateRegister)
					r.Get("/", cashierHandler.ListRegisters)
				})
				r.Route("/sessions", func(r chi.Router) {
					r.Post("/", cashierHandler.OpenSession)
					r.Get("/{id}", cashierHandler.GetSession)
					r.Post("/{id}/movements", cashierHandler.RecordMovement)
					r.Post("/{id}/close", cashierHandler.CloseSession)
				})
				r.Route("/closings", func(r chi.Router) {
					r.Post("/", cashierHandler.CreateClosing)
					r.Get("/", cashierHandler.ListClosings)
					r.Post("/{id}/reprint", cashierHandler.ReprintClosing)
				})

				r.Route("/printers", func(r chi.Router) {
					r.Post("/", printingHandler.CreatePrinter)
					r.Get("/", printingHandler.ListPrinters)
					r.Put("/{id}/status", printingHandler.SetPrinterStatus)
				})
				r.Route("/printer-routes", func(r chi.Router) {
					r.Put("/", printingHandler.SetRoute)
					r.Get("/", printingHandler.ListRoutes)
				})

				r.Route("/saft", func(r chi.Router) {
					r.Get("/export", saftHandler.Export)
					r.Get("/audit-trail", saftHandler.AuditTrail)
				})
			})
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
