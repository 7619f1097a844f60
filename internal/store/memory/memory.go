package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
	"github.com/GaneshKarthi2007/battery-shop/internal/store"
	"github.com/GaneshKarthi2007/battery-shop/internal/xid"
)

// Store is an in-memory Repository used for dev mode and tests. A single
// mutex serializes every operation, which makes the sale transaction's
// check-then-mutate sequence atomic by construction.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	services        map[string]domain.ServiceJob
	exchanges       map[string]domain.ExchangeRecord
	salesByID       map[string]*domain.Sale
	salesByIdem     map[string]*domain.Sale
	upiPayments     map[string]*domain.UpiPayment
	notifications   []domain.Notification
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		services:        make(map[string]domain.ServiceJob),
		exchanges:       make(map[string]domain.ExchangeRecord),
		salesByID:       make(map[string]*domain.Sale),
		salesByIdem:     make(map[string]*domain.Sale),
		upiPayments:     make(map[string]*domain.UpiPayment),
		notifications:   make([]domain.Notification, 0, 64),
		usersByUsername: seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small battery catalogue for
// dev/demo mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-exide-ml38", Brand: "Exide", Model: "Mileage ML38B20L", Type: "Car", AH: "35", PricePaise: 425000, Stock: 14, MinStock: 4},
		{ID: "prod-amaron-flo", Brand: "Amaron", Model: "FLO 566112060", Type: "Car", AH: "60", PricePaise: 689900, Stock: 8, MinStock: 3},
		{ID: "prod-exide-xp880", Brand: "Exide", Model: "Xpress XP880", Type: "Inverter", AH: "88", PricePaise: 812500, Stock: 6, MinStock: 2},
		{ID: "prod-luminous-rc18", Brand: "Luminous", Model: "Red Charge RC18000", Type: "Inverter", AH: "150", PricePaise: 1249000, Stock: 10, MinStock: 3},
		{ID: "prod-amaron-pro", Brand: "Amaron", Model: "Pro Bike Rider", Type: "Bike", AH: "9", PricePaise: 168000, Stock: 20, MinStock: 5},
		{ID: "prod-sf-f4w0", Brand: "SF Sonic", Model: "Flash Start F4W0", Type: "Bike", AH: "5", PricePaise: 92000, Stock: 16, MinStock: 5},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset
// variables fall back to dev defaults with a warning. These are never used
// in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		name     string
		role     string
	}{
		{"admin", adminPwd, "Shop Owner", domain.RoleAdmin},
		{"staff", staffPwd, "Counter Staff", domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Name:      u.name,
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Brand == products[j].Brand {
			return products[i].Model < products[j].Model
		}
		return products[i].Brand < products[j].Brand
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Brand == "" || product.Model == "" || product.PricePaise < 1 || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Brand == "" || product.Model == "" || product.PricePaise < 1 || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListServices(_ context.Context) ([]domain.ServiceJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]domain.ServiceJob, 0, len(s.services))
	for _, job := range s.services {
		jobs = append(jobs, job)
	}
	sortNewestFirst(jobs, func(j domain.ServiceJob) time.Time { return j.CreatedAt })
	return jobs, nil
}

func (s *Store) CreateService(_ context.Context, job domain.ServiceJob) (*domain.ServiceJob, error) {
	if job.CustomerName == "" || job.ContactNumber == "" || job.VehicleDetails == "" {
		return nil, store.ErrInvalidInput
	}
	if job.ID == "" {
		job.ID = xid.New("svc")
	}
	if job.Status == "" {
		job.Status = domain.ServiceStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[job.ID] = job
	created := job
	return &created, nil
}

func (s *Store) GetService(_ context.Context, id string) (*domain.ServiceJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := job
	return &found, nil
}

func (s *Store) UpdateService(_ context.Context, job domain.ServiceJob) (*domain.ServiceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.services[job.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	job.CreatedAt = existing.CreatedAt
	job.UpdatedAt = time.Now().UTC()
	s.services[job.ID] = job
	updated := job
	return &updated, nil
}

func (s *Store) DeleteService(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.services, id)
	return nil
}

func (s *Store) ListServicesBetween(_ context.Context, from *time.Time, to *time.Time, status string) ([]domain.ServiceJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]domain.ServiceJob, 0, len(s.services))
	for _, job := range s.services {
		if !inRange(job.CreatedAt, from, to) {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		jobs = append(jobs, job)
	}
	sortNewestFirst(jobs, func(j domain.ServiceJob) time.Time { return j.CreatedAt })
	return jobs, nil
}

func (s *Store) ListExchanges(_ context.Context) ([]domain.ExchangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.ExchangeRecord, 0, len(s.exchanges))
	for _, record := range s.exchanges {
		records = append(records, record)
	}
	sortNewestFirst(records, func(r domain.ExchangeRecord) time.Time { return r.CreatedAt })
	return records, nil
}

func (s *Store) ListPendingExchanges(_ context.Context, customerName string) ([]domain.ExchangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(customerName))
	records := make([]domain.ExchangeRecord, 0, len(s.exchanges))
	for _, record := range s.exchanges {
		if record.Status != domain.ExchangeStatusPending {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(record.CustomerName), needle) {
			continue
		}
		records = append(records, record)
	}
	sortNewestFirst(records, func(r domain.ExchangeRecord) time.Time { return r.CreatedAt })
	return records, nil
}

func (s *Store) CreateExchange(_ context.Context, record domain.ExchangeRecord) (*domain.ExchangeRecord, error) {
	if record.CustomerName == "" || record.BatteryBrand == "" || record.ValuationPaise < 1 {
		return nil, store.ErrInvalidInput
	}
	if record.ID == "" {
		record.ID = xid.New("ex")
	}
	if record.Status == "" {
		record.Status = domain.ExchangeStatusPending
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges[record.ID] = record
	created := record
	return &created, nil
}

func (s *Store) GetExchange(_ context.Context, id string) (*domain.ExchangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.exchanges[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := record
	return &found, nil
}

func (s *Store) UpdateExchange(_ context.Context, record domain.ExchangeRecord) (*domain.ExchangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.exchanges[record.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.UpdatedAt = time.Now().UTC()
	s.exchanges[record.ID] = record
	updated := record
	return &updated, nil
}

func (s *Store) DeleteExchange(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exchanges[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.exchanges, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSaleLocked(sale)
}

// createSaleLocked is the sale transaction. The caller must hold s.mu. All
// checks run before any mutation so a failure leaves the store untouched.
func (s *Store) createSaleLocked(sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.IdempotencyKey != "" {
		if existing, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
			found := cloneSale(existing)
			return &found, nil
		}
	}

	if sale.ExchangeRecordID != "" {
		record, ok := s.exchanges[sale.ExchangeRecordID]
		if !ok {
			return nil, fmt.Errorf("%w: exchange record %s", store.ErrNotFound, sale.ExchangeRecordID)
		}
		if record.Status != domain.ExchangeStatusPending {
			return nil, store.ErrExchangeConsumed
		}
	}

	// Stock checks run against working copies so a cart holding the same
	// product on several lines is checked against the running balance, not
	// the stored value.
	working := make(map[string]domain.Product, len(sale.Items))
	resolved := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if (item.ProductID == "") == (item.ServiceID == "") || item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		if item.ProductID != "" {
			product, ok := working[item.ProductID]
			if !ok {
				product, ok = s.products[item.ProductID]
				if !ok {
					return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
				}
			}
			if product.Stock < item.Quantity {
				return nil, fmt.Errorf("%w for product: %s %s", store.ErrInsufficientStock, product.Brand, product.Model)
			}
			product.Stock -= item.Quantity
			working[item.ProductID] = product
			snapshot := product
			item.Product = &snapshot
		}
		if item.ServiceID != "" {
			job, ok := s.services[item.ServiceID]
			if !ok {
				return nil, fmt.Errorf("%w: service %s", store.ErrNotFound, item.ServiceID)
			}
			snapshot := job
			item.Service = &snapshot
		}
		resolved = append(resolved, item)
	}

	// All checks passed; apply every side effect.
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	if sale.ExchangeRecordID != "" {
		record := s.exchanges[sale.ExchangeRecordID]
		record.Status = domain.ExchangeStatusConsumed
		record.UpdatedAt = time.Now().UTC()
		s.exchanges[sale.ExchangeRecordID] = record
	}

	for id, product := range working {
		product.UpdatedAt = time.Now().UTC()
		s.products[id] = product
	}
	sale.Items = resolved

	saved := sale
	s.salesByID[saved.ID] = &saved
	if saved.IdempotencyKey != "" {
		s.salesByIdem[saved.IdempotencyKey] = &saved
	}

	created := cloneSale(&saved)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneSale(sale)
	return &found, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	return s.ListSalesBetween(context.Background(), nil, nil)
}

func (s *Store) ListSalesBetween(_ context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !inRange(sale.CreatedAt, from, to) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	sortNewestFirst(sales, func(sale domain.Sale) time.Time { return sale.CreatedAt })
	return sales, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneSale(sale)
	return &found, nil
}

func (s *Store) CreateUpiPayment(_ context.Context, payment domain.UpiPayment) (*domain.UpiPayment, error) {
	if payment.AmountPaise < 0 {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = xid.New("upi")
	}
	if payment.Status == "" {
		payment.Status = domain.UpiStatusPending
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	saved := payment
	s.upiPayments[saved.ID] = &saved
	created := saved
	return &created, nil
}

func (s *Store) GetUpiPayment(_ context.Context, id string) (*domain.UpiPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.upiPayments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := *payment
	return &found, nil
}

func (s *Store) ConfirmUpiPayment(_ context.Context, id string, upiRef string) (*domain.UpiPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.upiPayments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if payment.Status != domain.UpiStatusPending {
		return nil, store.ErrAlreadyProcessed
	}
	payment.Status = domain.UpiStatusReceived
	payment.UpiRef = upiRef
	payment.UpdatedAt = time.Now().UTC()
	confirmed := *payment
	return &confirmed, nil
}

func (s *Store) FinaliseUpiPayment(_ context.Context, id string, sale domain.Sale) (*domain.UpiPayment, *domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.upiPayments[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	switch payment.Status {
	case domain.UpiStatusReceived:
	case domain.UpiStatusPending:
		return nil, nil, store.ErrNotConfirmed
	default:
		return nil, nil, store.ErrAlreadyProcessed
	}

	created, err := s.createSaleLocked(sale)
	if err != nil {
		// The intent stays at received so the operator can retry.
		return nil, nil, err
	}

	payment.Status = domain.UpiStatusFinalised
	payment.SaleID = created.ID
	payment.UpdatedAt = time.Now().UTC()
	finalised := *payment
	return &finalised, created, nil
}

func (s *Store) GetDashboardStats(_ context.Context, now time.Time) (domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DashboardSummary{
		WeeklySales:   make([]domain.WeeklySalesBucket, 0, 7),
		LowStockItems: make([]domain.Product, 0, 8),
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	weekStart := now.AddDate(0, 0, -7)

	var monthlyRevenue int64
	// One bucket per calendar day, oldest first, labelled with the weekday
	// name. The same weekday can appear twice when the trailing window spans
	// two of them.
	byDay := map[time.Time]*domain.WeeklySalesBucket{}
	days := make([]time.Time, 0, 7)
	for _, sale := range s.salesByID {
		if !sale.CreatedAt.Before(dayStart) {
			summary.TodaySalesPaise += sale.TotalPaise
		}
		if !sale.CreatedAt.Before(monthStart) {
			monthlyRevenue += sale.TotalPaise
		}
		if sale.CreatedAt.After(weekStart) {
			day := time.Date(sale.CreatedAt.Year(), sale.CreatedAt.Month(), sale.CreatedAt.Day(), 0, 0, 0, 0, time.UTC)
			bucket, ok := byDay[day]
			if !ok {
				bucket = &domain.WeeklySalesBucket{Day: day.Weekday().String()}
				byDay[day] = bucket
				days = append(days, day)
			}
			bucket.SalesPaise += sale.TotalPaise
			bucket.Count++
		}
	}
	// Revenue-based profit estimate, pending real cost tracking.
	summary.MonthlyProfitPaise = monthlyRevenue / 5

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	for _, day := range days {
		summary.WeeklySales = append(summary.WeeklySales, *byDay[day])
	}

	for _, product := range s.products {
		summary.TotalStock += product.Stock
		if product.Stock < product.MinStock {
			summary.LowStockItems = append(summary.LowStockItems, product)
		}
	}
	sort.Slice(summary.LowStockItems, func(i, j int) bool {
		return summary.LowStockItems[i].ID < summary.LowStockItems[j].ID
	})

	for _, job := range s.services {
		if job.Status == domain.ServiceStatusPending {
			summary.PendingServices++
		}
	}

	return summary, nil
}

func (s *Store) CreateNotification(_ context.Context, notification domain.Notification) error {
	if notification.ID == "" {
		notification.ID = xid.New("ntf")
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	notifications := make([]domain.Notification, len(s.notifications))
	copy(notifications, s.notifications)
	sortNewestFirst(notifications, func(n domain.Notification) time.Time { return n.CreatedAt })
	if len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].IsRead = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) MarkAllNotificationsRead(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		s.notifications[i].IsRead = true
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByUsername[user.Username]; ok {
		return store.ErrInvalidInput
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(sale *domain.Sale) domain.Sale {
	clone := *sale
	clone.Items = make([]domain.SaleItem, len(sale.Items))
	copy(clone.Items, sale.Items)
	return clone
}

func inRange(at time.Time, from *time.Time, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && !at.Before(*to) {
		return false
	}
	return true
}

func sortNewestFirst[T any](items []T, createdAt func(T) time.Time) {
	sort.Slice(items, func(i, j int) bool {
		return createdAt(items[i]).After(createdAt(items[j]))
	})
}
