package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/leafplant/farmstock/internal/alerts"
	"github.com/leafplant/farmstock/internal/config"
	"github.com/leafplant/farmstock/internal/database"
	"github.com/leafplant/farmstock/internal/dedup"
	"github.com/leafplant/farmstock/internal/inventory"
	"github.com/leafplant/farmstock/internal/notify"
	"github.com/leafplant/farmstock/internal/orders"
)

type server struct {
	db       *sql.DB
	ledger   *inventory.Ledger
	registry *alerts.Registry
	journal  *orders.Journal
	events   *dedup.EventStore
	discount decimal.Decimal
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	registry := alerts.NewRegistry(db)
	sender := notify.NewWhatsAppSender(&cfg.WhatsApp)
	dispatcher := notify.NewDispatcher(registry, sender)

	ledger := inventory.NewLedger(db, func(ctx context.Context, name string, qty int) {
		if err := dispatcher.DispatchRestock(ctx, name, qty); err != nil {
			log.Printf("restock dispatch for %q: %v", name, err)
		}
	})

	s := &server{
		db:       db,
		ledger:   ledger,
		registry: registry,
		journal:  orders.NewJournal(db, cfg.Sales.CommissionRate),
		events:   dedup.NewEventStore(redisClient, cfg.Redis.EventTTL),
		discount: decimal.NewFromFloat(cfg.Sales.MemberDiscount),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/products", s.handleProducts)
	mux.HandleFunc("/products/", s.handleProductByID)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/orders", s.handleOrders)
	mux.HandleFunc("/orders/", s.handleOrderByID)
	mux.HandleFunc("/customers", s.handleCustomers)
	mux.HandleFunc("/leaders", s.handleLeaders)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func (s *server) handleProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name     string  `json:"name"`
			Price    float64 `json:"price"`
			Quantity int     `json:"quantity"`
			Category string  `json:"category"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		product, err := s.ledger.CreateProduct(ctx, req.Name, req.Category, decimal.NewFromFloat(req.Price), req.Quantity)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusCreated, product)

	case http.MethodGet:
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		if pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}

		result, err := s.ledger.ListProducts(ctx, page, pageSize)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, result)

	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *server) handleProductByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rest := strings.TrimPrefix(r.URL.Path, "/products/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	if action == "adjust" && r.Method == http.MethodPost {
		var req struct {
			Delta int `json:"delta"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		product, err := s.ledger.AdjustQuantity(ctx, id, req.Delta)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, product)
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := s.ledger.GetProduct(ctx, id)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, product)

	case http.MethodPut:
		var req struct {
			Name     *string  `json:"name"`
			Price    *float64 `json:"price"`
			Quantity *int     `json:"quantity"`
			Category *string  `json:"category"`
			Status   string   `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		upd := inventory.ProductUpdate{
			Name:           req.Name,
			Quantity:       req.Quantity,
			Category:       req.Category,
			ExplicitStatus: req.Status,
		}
		if req.Price != nil {
			price := decimal.NewFromFloat(*req.Price)
			upd.Price = &price
		}

		product, err := s.ledger.SetFields(ctx, id, upd)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, product)

	case http.MethodDelete:
		if err := s.ledger.DeleteProduct(ctx, id); err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodPost:
		var req struct {
			Phone       string `json:"phone"`
			ProductName string `json:"product_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Phone == "" || req.ProductName == "" {
			respondError(w, http.StatusBadRequest, "phone and product_name are required")
			return
		}

		alert, err := s.registry.Subscribe(ctx, req.Phone, req.ProductName)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusCreated, alert)

	case http.MethodGet:
		if phone := r.URL.Query().Get("phone"); phone != "" {
			result, err := s.registry.ListByPhone(ctx, phone)
			if err != nil {
				respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			respondJSON(w, http.StatusOK, result)
			return
		}

		product := r.URL.Query().Get("product")
		if product == "" {
			respondError(w, http.StatusBadRequest, "product or phone query parameter required")
			return
		}
		result, err := s.registry.ListPending(ctx, product)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, result)

	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *server) handleOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodPost:
		var req struct {
			MessageID     string  `json:"message_id"`
			CustomerPhone string  `json:"customer_phone"`
			ProductName   string  `json:"product_name"`
			Quantity      int     `json:"quantity"`
			UnitListPrice float64 `json:"unit_list_price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		// The chat transport redelivers webhooks; the same message id must
		// not book the same order twice.
		if req.MessageID != "" {
			first, err := s.events.FirstSeen(ctx, req.MessageID)
			if err != nil {
				respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !first {
				respondJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
				return
			}
		}

		customer, err := orders.GetCustomerByPhone(ctx, s.db, req.CustomerPhone)
		if err != nil {
			respondDomainError(w, err)
			return
		}

		order, err := s.journal.RecordSale(ctx, orders.SaleRequest{
			CustomerID:    customer.ID,
			LeaderID:      customer.LeaderID,
			ProductName:   req.ProductName,
			Quantity:      req.Quantity,
			UnitListPrice: decimal.NewFromFloat(req.UnitListPrice),
			DiscountRate:  s.discount,
		})
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, order)

	case http.MethodGet:
		leaderID, err := strconv.ParseInt(r.URL.Query().Get("leader_id"), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "leader_id query parameter required")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 || limit > 100 {
			limit = 20
		}

		result, err := s.journal.ListOrdersByLeader(ctx, leaderID, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, result)

	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *server) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/orders/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := s.journal.GetOrder(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Email    string `json:"email"`
		LeaderID int64  `json:"leader_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	customer, err := orders.CreateCustomer(r.Context(), s.db, req.Name, req.Phone, req.Email, req.LeaderID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, customer)
}

func (s *server) handleLeaders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Name string `json:"name"`
		Area string `json:"area"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	leader, err := orders.CreateLeader(r.Context(), s.db, req.Name, req.Area)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, leader)
}

func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrCustomerNotFound),
		errors.Is(err, database.ErrLeaderNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrAlertNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrInsufficientStock):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrOptimisticLockFailed), errors.Is(err, database.ErrLockTimeout):
		respondError(w, http.StatusConflict, "concurrent update, please retry")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
