package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/busfleet/payroll-backend-go/internal/config"
	appHTTP "github.com/busfleet/payroll-backend-go/internal/handler/http"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
	"github.com/busfleet/payroll-backend-go/internal/pkg/jwt"
	"github.com/busfleet/payroll-backend-go/internal/pkg/migration"
	"github.com/busfleet/payroll-backend-go/internal/repository/postgresql"
	payrollService "github.com/busfleet/payroll-backend-go/internal/service/payroll"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	logger := appHTTP.NewLogger(cfg.App, cfg.SlogLevel(), os.Stdout)
	slog.SetDefault(logger)

	dsn := cfg.DatabaseURL()
	if cfg.Database.AutoMigrate {
		m, err := migration.New(dsn, cfg.Database.MigrationsPath, logger)
		if err != nil {
			logger.Error("Failed to prepare migrations", slog.Any("error", err))
			os.Exit(1)
		}
		err = m.Up()
		m.Close()
		if err != nil {
			logger.Error("Failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	db, err := database.NewPostgreSQLDB(dsn)
	if err != nil {
		logger.Error("Error connecting to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	transactor := postgresql.NewTransactor(db)
	payrollRepo := postgresql.NewPayrollRepository(db)
	bracketRepo := postgresql.NewTaxBracketRepository(db)
	settingRepo := postgresql.NewSettingRepository(db)
	tripRepo := postgresql.NewTripRepository(db)
	deductionRepo := postgresql.NewDeductionRepository(db)
	loanRepo := postgresql.NewLoanRepository(db)
	ledger := postgresql.NewExpenseLedger(db)
	employeeRepo := postgresql.NewEmployeeRepository(db)
	auditRepo := postgresql.NewAuditRepository(db)

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)

	payrollSvc := payrollService.NewPayrollService(
		transactor,
		payrollRepo,
		bracketRepo,
		settingRepo,
		tripRepo,
		deductionRepo,
		loanRepo,
		ledger,
		employeeRepo,
		auditRepo,
		cfg.Payroll,
		logger,
	)

	payrollHandler := appHTTP.NewPayrollHandler(payrollSvc)

	router := appHTTP.NewRouter(cfg.App, logger, JWTService, payrollHandler)

	port := fmt.Sprintf(":%d", cfg.App.Port)
	logger.Info("Server running", slog.String("addr", "http://localhost"+port))
	if err := http.ListenAndServe(port, router); err != nil {
		logger.Error("Server error", slog.Any("error", err))
		os.Exit(1)
	}
}
