package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/GaneshKarthi2007/battery-shop/internal/cache"
	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
	"github.com/GaneshKarthi2007/battery-shop/internal/store"
	"github.com/GaneshKarthi2007/battery-shop/internal/xid"
)

// ErrForbidden marks operations that need the admin role.
var ErrForbidden = errors.New("admin role required")

const (
	dashboardCacheKey = "dashboard:summary"
	dashboardCacheTTL = 2 * time.Minute
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo  store.Repository
	cache cache.DashboardCache
}

func New(repo store.Repository, dashCache cache.DashboardCache) *Service {
	if dashCache == nil {
		dashCache = cache.NoopDashboardCache{}
	}
	return &Service{repo: repo, cache: dashCache}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Brand = strings.TrimSpace(req.Brand)
	req.Model = strings.TrimSpace(req.Model)
	req.Type = strings.TrimSpace(req.Type)
	if req.Brand == "" || req.Model == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PricePaise < 1 || req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Brand:      req.Brand,
		Model:      req.Model,
		Type:       req.Type,
		AH:         req.AH,
		PricePaise: req.PricePaise,
		Stock:      req.Stock,
		MinStock:   req.MinStock,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Brand != nil {
		brand := strings.TrimSpace(*req.Brand)
		if brand == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Brand = brand
	}
	if req.Model != nil {
		model := strings.TrimSpace(*req.Model)
		if model == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Model = model
	}
	if req.Type != nil {
		updated.Type = strings.TrimSpace(*req.Type)
	}
	if req.AH != nil {
		updated.AH = *req.AH
	}
	if req.PricePaise != nil {
		if *req.PricePaise < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PricePaise = *req.PricePaise
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.MinStock = *req.MinStock
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateDashboard(ctx)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	return nil
}

func (s *Service) ListServices(ctx context.Context, from *time.Time, to *time.Time, status string) ([]domain.ServiceJob, error) {
	if from == nil && to == nil && status == "" {
		return s.repo.ListServices(ctx)
	}
	if status != "" && !isServiceStatus(status) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListServicesBetween(ctx, from, to, status)
}

func (s *Service) GetService(ctx context.Context, id string) (domain.ServiceJob, error) {
	job, err := s.repo.GetService(ctx, id)
	if err != nil {
		return domain.ServiceJob{}, err
	}
	return *job, nil
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.ServiceJob, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.ContactNumber = strings.TrimSpace(req.ContactNumber)
	req.VehicleDetails = strings.TrimSpace(req.VehicleDetails)
	if req.CustomerName == "" || req.ContactNumber == "" || req.VehicleDetails == "" {
		return domain.ServiceJob{}, store.ErrInvalidInput
	}
	if req.ServiceChargePaise < 0 {
		return domain.ServiceJob{}, store.ErrInvalidInput
	}
	if req.Status == "" {
		req.Status = domain.ServiceStatusPending
	}
	if !isServiceStatus(req.Status) {
		return domain.ServiceJob{}, store.ErrInvalidInput
	}

	pickup, err := parsePickupDate(req.PickupDate)
	if err != nil {
		return domain.ServiceJob{}, err
	}

	created, err := s.repo.CreateService(ctx, domain.ServiceJob{
		CustomerName:       req.CustomerName,
		ContactNumber:      req.ContactNumber,
		VehicleDetails:     req.VehicleDetails,
		Status:             req.Status,
		ServiceChargePaise: req.ServiceChargePaise,
		BatteryBrand:       req.BatteryBrand,
		BatteryModel:       req.BatteryModel,
		PickupDate:         pickup,
		AssignedTo:         req.AssignedTo,
	})
	if err != nil {
		return domain.ServiceJob{}, err
	}
	return *created, nil
}

func (s *Service) UpdateService(ctx context.Context, id string, req domain.ServiceUpdateRequest) (domain.ServiceJob, error) {
	existing, err := s.repo.GetService(ctx, id)
	if err != nil {
		return domain.ServiceJob{}, err
	}

	updated := *existing
	if req.CustomerName != nil {
		name := strings.TrimSpace(*req.CustomerName)
		if name == "" {
			return domain.ServiceJob{}, store.ErrInvalidInput
		}
		updated.CustomerName = name
	}
	if req.ContactNumber != nil {
		updated.ContactNumber = strings.TrimSpace(*req.ContactNumber)
	}
	if req.VehicleDetails != nil {
		updated.VehicleDetails = strings.TrimSpace(*req.VehicleDetails)
	}
	if req.Status != nil {
		if !isServiceStatus(*req.Status) {
			return domain.ServiceJob{}, store.ErrInvalidInput
		}
		updated.Status = *req.Status
	}
	if req.ServiceChargePaise != nil {
		if *req.ServiceChargePaise < 0 {
			return domain.ServiceJob{}, store.ErrInvalidInput
		}
		updated.ServiceChargePaise = *req.ServiceChargePaise
	}
	if req.BatteryBrand != nil {
		updated.BatteryBrand = *req.BatteryBrand
	}
	if req.BatteryModel != nil {
		updated.BatteryModel = *req.BatteryModel
	}
	if req.PickupDate != nil {
		pickup, err := parsePickupDate(*req.PickupDate)
		if err != nil {
			return domain.ServiceJob{}, err
		}
		updated.PickupDate = pickup
	}
	if req.AssignedTo != nil {
		updated.AssignedTo = *req.AssignedTo
	}

	saved, err := s.repo.UpdateService(ctx, updated)
	if err != nil {
		return domain.ServiceJob{}, err
	}

	s.invalidateDashboard(ctx)
	return *saved, nil
}

func (s *Service) DeleteService(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteService(ctx, id)
}

func (s *Service) ListExchanges(ctx context.Context) ([]domain.ExchangeRecord, error) {
	return s.repo.ListExchanges(ctx)
}

// ListPendingExchanges returns consumable exchange records, optionally
// narrowed by a customer name substring for the checkout lookup box.
func (s *Service) ListPendingExchanges(ctx context.Context, customerName string) ([]domain.ExchangeRecord, error) {
	return s.repo.ListPendingExchanges(ctx, customerName)
}

func (s *Service) GetExchange(ctx context.Context, id string) (domain.ExchangeRecord, error) {
	record, err := s.repo.GetExchange(ctx, id)
	if err != nil {
		return domain.ExchangeRecord{}, err
	}
	return *record, nil
}

func (s *Service) CreateExchange(ctx context.Context, req domain.ExchangeCreateRequest) (domain.ExchangeRecord, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.BatteryBrand = strings.TrimSpace(req.BatteryBrand)
	if req.CustomerName == "" || req.BatteryBrand == "" {
		return domain.ExchangeRecord{}, store.ErrInvalidInput
	}
	if req.ValuationPaise < 1 {
		return domain.ExchangeRecord{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateExchange(ctx, domain.ExchangeRecord{
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		BatteryBrand:    req.BatteryBrand,
		BatteryModel:    req.BatteryModel,
		ValuationPaise:  req.ValuationPaise,
		Status:          domain.ExchangeStatusPending,
	})
	if err != nil {
		return domain.ExchangeRecord{}, err
	}
	return *created, nil
}

func (s *Service) UpdateExchange(ctx context.Context, id string, req domain.ExchangeUpdateRequest) (domain.ExchangeRecord, error) {
	existing, err := s.repo.GetExchange(ctx, id)
	if err != nil {
		return domain.ExchangeRecord{}, err
	}
	// A consumed record is part of a settled sale and stays immutable.
	if existing.Status != domain.ExchangeStatusPending {
		return domain.ExchangeRecord{}, store.ErrExchangeConsumed
	}

	updated := *existing
	if req.CustomerName != nil {
		name := strings.TrimSpace(*req.CustomerName)
		if name == "" {
			return domain.ExchangeRecord{}, store.ErrInvalidInput
		}
		updated.CustomerName = name
	}
	if req.CustomerPhone != nil {
		updated.CustomerPhone = *req.CustomerPhone
	}
	if req.CustomerAddress != nil {
		updated.CustomerAddress = *req.CustomerAddress
	}
	if req.BatteryBrand != nil {
		brand := strings.TrimSpace(*req.BatteryBrand)
		if brand == "" {
			return domain.ExchangeRecord{}, store.ErrInvalidInput
		}
		updated.BatteryBrand = brand
	}
	if req.BatteryModel != nil {
		updated.BatteryModel = *req.BatteryModel
	}
	if req.ValuationPaise != nil {
		if *req.ValuationPaise < 1 {
			return domain.ExchangeRecord{}, store.ErrInvalidInput
		}
		updated.ValuationPaise = *req.ValuationPaise
	}

	saved, err := s.repo.UpdateExchange(ctx, updated)
	if err != nil {
		return domain.ExchangeRecord{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteExchange(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	existing, err := s.repo.GetExchange(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != domain.ExchangeStatusPending {
		return store.ErrExchangeConsumed
	}
	return s.repo.DeleteExchange(ctx, id)
}

// CreateSale runs the whole sale transaction: cart validation, idempotent
// replay detection, the atomic stock/exchange/sale write, then low stock
// notifications and dashboard invalidation.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	if err := validateCart(&req); err != nil {
		return domain.SaleResponse{}, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}

	if existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return domain.SaleResponse{Sale: *existing, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.SaleResponse{}, err
	}

	created, err := s.repo.CreateSale(ctx, saleFromCart(req))
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.afterSale(ctx, created)
	return domain.SaleResponse{Sale: *created}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error) {
	return s.repo.ListSalesBetween(ctx, from, to)
}

// CreateUpiIntent records the cart and amount before any money moves. The
// cart is validated here so a malformed one is rejected at intent time, not
// after the customer has already paid.
func (s *Service) CreateUpiIntent(ctx context.Context, req domain.UpiCreateRequest) (domain.UpiPayment, error) {
	if req.AmountPaise < 1 {
		return domain.UpiPayment{}, store.ErrInvalidInput
	}
	if err := validateCart(&req.SaleData); err != nil {
		return domain.UpiPayment{}, err
	}

	created, err := s.repo.CreateUpiPayment(ctx, domain.UpiPayment{
		AmountPaise:  req.AmountPaise,
		Status:       domain.UpiStatusPending,
		SaleData:     req.SaleData,
		InvoiceState: req.InvoiceState,
	})
	if err != nil {
		return domain.UpiPayment{}, err
	}
	return *created, nil
}

func (s *Service) GetUpiStatus(ctx context.Context, id string) (domain.UpiStatusResponse, error) {
	payment, err := s.repo.GetUpiPayment(ctx, id)
	if err != nil {
		return domain.UpiStatusResponse{}, err
	}
	return domain.UpiStatusResponse{ID: payment.ID, Status: payment.Status}, nil
}

func (s *Service) ConfirmUpiPayment(ctx context.Context, id string, req domain.UpiConfirmRequest) (domain.UpiStatusResponse, error) {
	payment, err := s.repo.ConfirmUpiPayment(ctx, id, strings.TrimSpace(req.UpiRef))
	if err != nil {
		return domain.UpiStatusResponse{}, err
	}
	return domain.UpiStatusResponse{ID: payment.ID, Status: payment.Status}, nil
}

// FinaliseUpiPayment replays the cart stored on the intent as a UPI sale.
// The idempotency key is derived from the intent id so a double finalise can
// never create two sales.
func (s *Service) FinaliseUpiPayment(ctx context.Context, id string) (domain.UpiFinaliseResponse, error) {
	payment, err := s.repo.GetUpiPayment(ctx, id)
	if err != nil {
		return domain.UpiFinaliseResponse{}, err
	}

	sale := saleFromCart(payment.SaleData)
	sale.PaymentMethod = domain.PaymentMethodUPI
	sale.IdempotencyKey = "upi-" + payment.ID

	finalised, created, err := s.repo.FinaliseUpiPayment(ctx, id, sale)
	if err != nil {
		return domain.UpiFinaliseResponse{}, err
	}

	s.afterSale(ctx, created)
	return domain.UpiFinaliseResponse{SaleID: finalised.SaleID, Status: finalised.Status}, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	if cached, ok, err := s.cache.Get(ctx, dashboardCacheKey); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: dashboard cache read failed: %v", err)
	}

	summary, err := s.repo.GetDashboardStats(ctx, time.Now().UTC())
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	if err := s.cache.Set(ctx, dashboardCacheKey, &summary, dashboardCacheTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache write failed: %v", err)
	}
	return summary, nil
}

// Report aggregates invoices in the filter window with the GST portion split
// out of each inclusive total.
func (s *Service) Report(ctx context.Context, filter domain.ReportFilter) (domain.Report, error) {
	sales, err := s.repo.ListSalesBetween(ctx, filter.From, filter.To)
	if err != nil {
		return domain.Report{}, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	report := domain.Report{Invoices: make([]domain.InvoiceRow, 0, len(sales))}
	for _, sale := range sales {
		if filter.Type != "" && !strings.EqualFold(sale.Type, filter.Type) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(sale.CustomerName), search) &&
			!strings.Contains(strings.ToLower(sale.ID), search) {
			continue
		}

		base, gst := splitGST(sale.TotalPaise)
		report.Invoices = append(report.Invoices, domain.InvoiceRow{
			InvoiceNumber: sale.ID,
			Date:          sale.CreatedAt.Format("2006-01-02"),
			CustomerName:  sale.CustomerName,
			Type:          sale.Type,
			ItemsSummary:  summariseItems(sale.Items),
			BasePaise:     base,
			GSTPaise:      gst,
			TotalPaise:    sale.TotalPaise,
		})
		report.Summary.Invoices++
		report.Summary.BasePaise += base
		report.Summary.GSTPaise += gst
		report.Summary.TotalPaise += sale.TotalPaise
	}
	return report, nil
}

func (s *Service) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	return s.repo.ListNotifications(ctx, limit)
}

func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	return s.repo.MarkNotificationRead(ctx, id)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context) error {
	return s.repo.MarkAllNotificationsRead(ctx)
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	staff := make([]domain.StaffMember, 0, len(users))
	for _, user := range users {
		if !user.Active || user.Role != domain.RoleStaff {
			continue
		}
		staff = append(staff, domain.StaffMember{Username: user.Username, Name: user.Name})
	}
	return staff, nil
}

// afterSale runs the post-commit side effects. Failures here never fail the
// sale itself; the money already moved.
func (s *Service) afterSale(ctx context.Context, sale *domain.Sale) {
	s.invalidateDashboard(ctx)

	for _, item := range sale.Items {
		if item.Product == nil {
			continue
		}
		if item.Product.Stock >= item.Product.MinStock {
			continue
		}
		err := s.repo.CreateNotification(ctx, domain.Notification{
			ProductID: item.Product.ID,
			Message: fmt.Sprintf("Low stock: %s %s has %d left (minimum %d)",
				item.Product.Brand, item.Product.Model, item.Product.Stock, item.Product.MinStock),
		})
		if err != nil {
			log.Printf("[service] WARN: low stock notification for %s failed: %v", item.Product.ID, err)
		}
	}
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.cache.Delete(ctx, dashboardCacheKey); err != nil {
		log.Printf("[service] WARN: dashboard cache invalidation failed: %v", err)
	}
}

// validateCart rejects a malformed cart before anything is written. Every
// line must reference exactly one product or service with a positive
// quantity, and the money fields must be non-negative.
func validateCart(req *domain.SaleCreateRequest) error {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return store.ErrInvalidInput
	}
	if req.TotalPaise < 0 || req.ExtraChargesPaise < 0 || req.DiscountPaise < 0 {
		return store.ErrInvalidInput
	}
	if req.Type == "" {
		req.Type = domain.SaleTypeSale
	}
	if req.ExchangeRecordID != "" {
		req.Type = domain.SaleTypeExchange
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodCash
	}
	for _, item := range req.Items {
		if (item.ProductID == "") == (item.ServiceID == "") {
			return store.ErrInvalidInput
		}
		if item.Quantity < 1 || item.PricePaise < 0 {
			return store.ErrInvalidInput
		}
	}
	return nil
}

func saleFromCart(req domain.SaleCreateRequest) domain.Sale {
	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, domain.SaleItem{
			ProductID:  line.ProductID,
			ServiceID:  line.ServiceID,
			Quantity:   line.Quantity,
			PricePaise: line.PricePaise,
		})
	}
	return domain.Sale{
		CustomerName:        req.CustomerName,
		CustomerPhone:       req.CustomerPhone,
		VehicleDetails:      req.VehicleDetails,
		InstallationAddress: req.InstallationAddress,
		ProductCategory:     req.ProductCategory,
		Type:                req.Type,
		TotalPaise:          req.TotalPaise,
		ExtraChargesPaise:   req.ExtraChargesPaise,
		DiscountPaise:       req.DiscountPaise,
		ExchangeRecordID:    req.ExchangeRecordID,
		PaymentMethod:       req.PaymentMethod,
		IdempotencyKey:      req.IdempotencyKey,
		Items:               items,
	}
}

// splitGST breaks a GST-inclusive total into its base and tax portions.
func splitGST(totalPaise int64) (base int64, gst int64) {
	base = int64(math.Round(float64(totalPaise) * 100 / (100 + domain.GSTRatePercent)))
	return base, totalPaise - base
}

func summariseItems(items []domain.SaleItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch {
		case item.Product != nil:
			parts = append(parts, fmt.Sprintf("%s %s x%d", item.Product.Brand, item.Product.Model, item.Quantity))
		case item.Service != nil:
			parts = append(parts, fmt.Sprintf("Service for %s", item.Service.CustomerName))
		case item.ProductID != "":
			parts = append(parts, fmt.Sprintf("%s x%d", item.ProductID, item.Quantity))
		default:
			parts = append(parts, item.ServiceID)
		}
	}
	return strings.Join(parts, "; ")
}

func isServiceStatus(status string) bool {
	switch status {
	case domain.ServiceStatusPending, domain.ServiceStatusInProgress, domain.ServiceStatusCompleted:
		return true
	}
	return false
}

func parsePickupDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, store.ErrInvalidInput
	}
	return &t, nil
}
