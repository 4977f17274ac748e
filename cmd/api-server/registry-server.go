package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"spendregistry/db"
	"spendregistry/db/migrations"
	"spendregistry/internal/handlers"
	"spendregistry/internal/registry"
)

func main() {
	godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	connString := os.Getenv("POSTGRES_CONN")
	if connString == "" {
		log.Error("POSTGRES_CONN env variable is not set")
		os.Exit(1)
	}
	central := os.Getenv("CENTRAL_AUTHORITY")
	if central == "" {
		log.Error("CENTRAL_AUTHORITY env variable is not set")
		os.Exit(1)
	}

	dbConn, err := sqlx.Connect("postgres", connString)
	if err != nil {
		log.Error("cannot connect to DB", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := migrations.Run(dbConn.DB); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	store := db.NewStorage(dbConn)
	reg, err := registry.New(context.Background(), central, store, registry.WithLogger(log))
	if err != nil {
		log.Error("cannot initialize registry", "error", err)
		os.Exit(1)
	}

	h := handlers.NewHandler(reg, log)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		r.Get("/balance", h.BalanceHandler)

		// entity lifecycle
		r.Post("/entities", h.RegisterEntityHandler)
		r.Get("/entities", h.GetEntitiesHandler)
		r.Get("/entities/{address}", h.GetEntityHandler)
		r.Post("/entities/{address}/approve", h.ApproveEntityHandler)
		r.Post("/entities/{address}/reject", h.RejectEntityHandler)
		r.Post("/entities/{address}/deactivate", h.DeactivateEntityHandler)

		// funds and spending
		r.Post("/funds/issue", h.IssueFundsHandler)
		r.Get("/funds/issued", h.GetIssuedFundsHandler)
		r.Post("/spending", h.RecordSpendingHandler)
		r.Get("/spending", h.GetSpendingRecordsHandler)
		r.Get("/entities/{address}/spending", h.GetEntitySpendingHandler)
		r.Post("/spending/{recordId}/micro", h.RecordMicroTransactionHandler)
		r.Get("/spending/{recordId}/micro", h.GetRecordMicroTransactionsHandler)
		r.Get("/micro-transactions", h.GetMicroTransactionsHandler)
		r.Post("/fund-requests", h.RequestFundsHandler)
		r.Get("/fund-requests", h.GetFundRequestsHandler)
		r.Get("/entities/{address}/fund-requests", h.GetEntityFundRequestsHandler)
		r.Post("/fund-requests/{requestId}/approve", h.ApproveFundRequestHandler)
		r.Post("/fund-requests/{requestId}/reject", h.RejectFundRequestHandler)

		// tenders and bids
		r.Post("/tenders", h.IssueTenderHandler)
		r.Get("/tenders", h.GetTendersHandler)
		r.Get("/tenders/{tenderId}", h.GetTenderHandler)
		r.Post("/tenders/{tenderId}/bids", h.PlaceBidHandler)
		r.Get("/tenders/{tenderId}/bids", h.GetBidsHandler)
		r.Post("/tenders/{tenderId}/bids/withdraw", h.WithdrawBidHandler)
		r.Post("/tenders/{tenderId}/award", h.AwardTenderHandler)
		r.Post("/tenders/{tenderId}/cancel", h.CancelTenderHandler)

		// ratings and bonus
		r.Post("/entities/{address}/vote", h.VoteHandler)
		r.Get("/entities/{address}/rating", h.GetEntityRatingHandler)
		r.Get("/ratings", h.GetAllRatingsHandler)
		r.Get("/votes/status", h.VotingStatusHandler)
		r.Get("/bonus/next", h.NextBonusHandler)
		r.Post("/bonus/fund", h.FundBonusPoolHandler)
		r.Post("/bonus/distribute", h.DistributeBonusHandler)
	})

	serverAddr := os.Getenv("SERVER_ADDRESS")
	if serverAddr == "" {
		serverAddr = "0.0.0.0:8080"
	}

	log.Info("starting server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, r); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
