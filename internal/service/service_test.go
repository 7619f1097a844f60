package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/GaneshKarthi2007/battery-shop/internal/cache"
	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
	"github.com/GaneshKarthi2007/battery-shop/internal/store"
	"github.com/GaneshKarthi2007/battery-shop/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), cache.NoopDashboardCache{})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func mustCreateProduct(t *testing.T, svc *Service, stock int, minStock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Brand:      "Exide",
		Model:      fmt.Sprintf("Mileage-%d", stock),
		Type:       "Car",
		AH:         "35",
		PricePaise: 425000,
		Stock:      stock,
		MinStock:   minStock,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func cartFor(product domain.Product, qty int) domain.SaleCreateRequest {
	return domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: qty, PricePaise: product.PricePaise},
		},
		TotalPaise: product.PricePaise * int64(qty),
	}
}

func TestCreateSaleDecrementsStock(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 5, 1)

	resp, err := svc.CreateSale(staffCtx(), cartFor(product, 3))
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if resp.Duplicate {
		t.Fatalf("expected fresh sale, got duplicate")
	}

	after, err := svc.GetProduct(staffCtx(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 2 {
		t.Fatalf("expected stock 2 after selling 3 of 5, got %d", after.Stock)
	}
}

func TestCreateSaleInsufficientStockFailsWithoutSideEffects(t *testing.T) {
	svc := newTestService()
	plenty := mustCreateProduct(t, svc, 10, 1)
	scarce := mustCreateProduct(t, svc, 1, 1)

	_, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: plenty.ID, Quantity: 2, PricePaise: plenty.PricePaise},
			{ProductID: scarce.ID, Quantity: 3, PricePaise: scarce.PricePaise},
		},
		TotalPaise: 100000,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	// The failing second line must not leave the first line's decrement behind.
	afterPlenty, _ := svc.GetProduct(staffCtx(), plenty.ID)
	afterScarce, _ := svc.GetProduct(staffCtx(), scarce.ID)
	if afterPlenty.Stock != 10 || afterScarce.Stock != 1 {
		t.Fatalf("expected stock untouched (10, 1), got (%d, %d)", afterPlenty.Stock, afterScarce.Stock)
	}

	sales, err := svc.ListSales(staffCtx(), nil, nil)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sale persisted, got %d", len(sales))
	}
}

func TestCreateSaleRepeatedProductLinesShareStock(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 5, 0)

	// Two lines for the same product must be checked against the combined
	// quantity, not each against the stored stock.
	_, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 3, PricePaise: product.PricePaise},
			{ProductID: product.ID, Quantity: 3, PricePaise: product.PricePaise},
		},
		TotalPaise: product.PricePaise * 6,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	after, _ := svc.GetProduct(staffCtx(), product.ID)
	if after.Stock != 5 {
		t.Fatalf("expected stock untouched at 5, got %d", after.Stock)
	}
	sales, err := svc.ListSales(staffCtx(), nil, nil)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sale persisted, got %d", len(sales))
	}

	// Splitting a quantity that fits across two lines still works.
	resp, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 2, PricePaise: product.PricePaise},
			{ProductID: product.ID, Quantity: 3, PricePaise: product.PricePaise},
		},
		TotalPaise: product.PricePaise * 5,
	})
	if err != nil {
		t.Fatalf("split sale failed: %v", err)
	}
	if resp.Sale.Items[1].Product == nil || resp.Sale.Items[1].Product.Stock != 0 {
		t.Fatalf("expected second line snapshot at stock 0, got %+v", resp.Sale.Items[1].Product)
	}

	after, _ = svc.GetProduct(staffCtx(), product.ID)
	if after.Stock != 0 {
		t.Fatalf("expected stock 0 after selling 5, got %d", after.Stock)
	}
}

func TestCreateSaleConcurrentOversell(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 5, 0)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := cartFor(product, 1)
			req.IdempotencyKey = fmt.Sprintf("concurrent-%d", i)
			if _, err := svc.CreateSale(staffCtx(), req); err == nil {
				succeeded.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if succeeded.Load() != 5 {
		t.Fatalf("expected exactly 5 of 10 concurrent sales to succeed, got %d", succeeded.Load())
	}
	after, _ := svc.GetProduct(staffCtx(), product.ID)
	if after.Stock != 0 {
		t.Fatalf("expected stock 0 after concurrent sellout, got %d", after.Stock)
	}
}

func TestCreateSaleIdempotentReplay(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 5, 1)

	req := cartFor(product, 2)
	req.IdempotencyKey = "replay-key"

	first, err := svc.CreateSale(staffCtx(), req)
	if err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	second, err := svc.CreateSale(staffCtx(), req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected replay to be flagged duplicate")
	}
	if first.Sale.ID != second.Sale.ID {
		t.Fatalf("expected same sale id, got %s and %s", first.Sale.ID, second.Sale.ID)
	}

	after, _ := svc.GetProduct(staffCtx(), product.ID)
	if after.Stock != 3 {
		t.Fatalf("expected a single decrement (stock 3), got %d", after.Stock)
	}
}

func TestCartValidation(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 5, 1)

	cases := []struct {
		name string
		req  domain.SaleCreateRequest
	}{
		{"empty cart", domain.SaleCreateRequest{CustomerName: "Ganesh", TotalPaise: 100}},
		{"missing customer", cartForAnon(product)},
		{"zero quantity", domain.SaleCreateRequest{
			CustomerName: "Ganesh",
			Items:        []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 0, PricePaise: 100}},
			TotalPaise:   100,
		}},
		{"both product and service", domain.SaleCreateRequest{
			CustomerName: "Ganesh",
			Items:        []domain.SaleLineRequest{{ProductID: product.ID, ServiceID: "svc-x", Quantity: 1, PricePaise: 100}},
			TotalPaise:   100,
		}},
		{"neither product nor service", domain.SaleCreateRequest{
			CustomerName: "Ganesh",
			Items:        []domain.SaleLineRequest{{Quantity: 1, PricePaise: 100}},
			TotalPaise:   100,
		}},
		{"negative discount", domain.SaleCreateRequest{
			CustomerName:  "Ganesh",
			Items:         []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1, PricePaise: 100}},
			TotalPaise:    100,
			DiscountPaise: -1,
		}},
	}

	for _, tc := range cases {
		if _, err := svc.CreateSale(staffCtx(), tc.req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func cartForAnon(product domain.Product) domain.SaleCreateRequest {
	req := cartFor(product, 1)
	req.CustomerName = ""
	return req
}

func TestExchangeRecordSingleUse(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 10, 1)

	record, err := svc.CreateExchange(staffCtx(), domain.ExchangeCreateRequest{
		CustomerName:   "Kumar",
		BatteryBrand:   "Amaron",
		ValuationPaise: 50000,
	})
	if err != nil {
		t.Fatalf("create exchange: %v", err)
	}

	req := cartFor(product, 1)
	req.ExchangeRecordID = record.ID
	req.IdempotencyKey = "ex-sale-1"
	resp, err := svc.CreateSale(staffCtx(), req)
	if err != nil {
		t.Fatalf("exchange sale failed: %v", err)
	}
	if resp.Sale.Type != domain.SaleTypeExchange {
		t.Fatalf("expected sale type %q, got %q", domain.SaleTypeExchange, resp.Sale.Type)
	}

	consumed, _ := svc.GetExchange(staffCtx(), record.ID)
	if consumed.Status != domain.ExchangeStatusConsumed {
		t.Fatalf("expected record consumed, got %s", consumed.Status)
	}

	again := cartFor(product, 1)
	again.ExchangeRecordID = record.ID
	again.IdempotencyKey = "ex-sale-2"
	if _, err := svc.CreateSale(staffCtx(), again); !errors.Is(err, store.ErrExchangeConsumed) {
		t.Fatalf("expected ErrExchangeConsumed on reuse, got %v", err)
	}
}

func TestConsumedExchangeIsImmutable(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 5, 1)

	record, err := svc.CreateExchange(staffCtx(), domain.ExchangeCreateRequest{
		CustomerName:   "Kumar",
		BatteryBrand:   "Amaron",
		ValuationPaise: 50000,
	})
	if err != nil {
		t.Fatalf("create exchange: %v", err)
	}

	req := cartFor(product, 1)
	req.ExchangeRecordID = record.ID
	if _, err := svc.CreateSale(staffCtx(), req); err != nil {
		t.Fatalf("exchange sale failed: %v", err)
	}

	newValuation := int64(60000)
	if _, err := svc.UpdateExchange(staffCtx(), record.ID, domain.ExchangeUpdateRequest{
		ValuationPaise: &newValuation,
	}); !errors.Is(err, store.ErrExchangeConsumed) {
		t.Fatalf("expected consumed record to be immutable, got %v", err)
	}
	if err := svc.DeleteExchange(adminCtx(), record.ID); !errors.Is(err, store.ErrExchangeConsumed) {
		t.Fatalf("expected consumed record to be undeletable, got %v", err)
	}
}

func TestListPendingExchangesFiltersByName(t *testing.T) {
	svc := newTestService()

	for _, name := range []string{"Ravi Kumar", "Suresh", "Kumaravel"} {
		if _, err := svc.CreateExchange(staffCtx(), domain.ExchangeCreateRequest{
			CustomerName:   name,
			BatteryBrand:   "Exide",
			ValuationPaise: 40000,
		}); err != nil {
			t.Fatalf("create exchange for %s: %v", name, err)
		}
	}

	matches, err := svc.ListPendingExchanges(staffCtx(), "kumar")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches for 'kumar', got %d", len(matches))
	}
}

func TestUpiIntentValidatesCartUpfront(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateUpiIntent(staffCtx(), domain.UpiCreateRequest{
		AmountPaise: 118000,
		SaleData: domain.SaleCreateRequest{
			CustomerName: "Ganesh",
			Items:        []domain.SaleLineRequest{{Quantity: 1, PricePaise: 100}},
			TotalPaise:   118000,
		},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected malformed cart rejected at intent time, got %v", err)
	}
}

func TestUpiLifecycle(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 5, 1)

	intent, err := svc.CreateUpiIntent(staffCtx(), domain.UpiCreateRequest{
		AmountPaise: 118000,
		SaleData:    cartFor(product, 1),
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.Status != domain.UpiStatusPending {
		t.Fatalf("expected pending intent, got %s", intent.Status)
	}

	// Finalise before the payment arrived must be refused.
	if _, err := svc.FinaliseUpiPayment(staffCtx(), intent.ID); !errors.Is(err, store.ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed before confirm, got %v", err)
	}

	confirmed, err := svc.ConfirmUpiPayment(staffCtx(), intent.ID, domain.UpiConfirmRequest{UpiRef: "UPI-REF-42"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.UpiStatusReceived {
		t.Fatalf("expected received, got %s", confirmed.Status)
	}

	if _, err := svc.ConfirmUpiPayment(staffCtx(), intent.ID, domain.UpiConfirmRequest{}); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected double confirm rejected, got %v", err)
	}

	finalised, err := svc.FinaliseUpiPayment(staffCtx(), intent.ID)
	if err != nil {
		t.Fatalf("finalise: %v", err)
	}
	if finalised.Status != domain.UpiStatusFinalised || finalised.SaleID == "" {
		t.Fatalf("expected finalised with sale id, got %+v", finalised)
	}

	sale, err := svc.GetSale(staffCtx(), finalised.SaleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.PaymentMethod != domain.PaymentMethodUPI {
		t.Fatalf("expected UPI payment method, got %s", sale.PaymentMethod)
	}

	after, _ := svc.GetProduct(staffCtx(), product.ID)
	if after.Stock != 4 {
		t.Fatalf("expected stock 4 after finalise, got %d", after.Stock)
	}

	// A second finalise must not create a second sale.
	if _, err := svc.FinaliseUpiPayment(staffCtx(), intent.ID); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected double finalise rejected, got %v", err)
	}
	sales, _ := svc.ListSales(staffCtx(), nil, nil)
	if len(sales) != 1 {
		t.Fatalf("expected exactly one sale, got %d", len(sales))
	}
}

func TestUpiFinaliseFailureLeavesIntentReceived(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 1, 0)

	intent, err := svc.CreateUpiIntent(staffCtx(), domain.UpiCreateRequest{
		AmountPaise: 118000,
		SaleData:    cartFor(product, 3),
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if _, err := svc.ConfirmUpiPayment(staffCtx(), intent.ID, domain.UpiConfirmRequest{UpiRef: "REF"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := svc.FinaliseUpiPayment(staffCtx(), intent.ID); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock at finalise, got %v", err)
	}

	status, err := svc.GetUpiStatus(staffCtx(), intent.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.UpiStatusReceived {
		t.Fatalf("expected intent to stay received after failed finalise, got %s", status.Status)
	}

	after, _ := svc.GetProduct(staffCtx(), product.ID)
	if after.Stock != 1 {
		t.Fatalf("expected stock untouched, got %d", after.Stock)
	}
}

func TestReportSplitsGST(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 5, 1)

	req := cartFor(product, 1)
	req.TotalPaise = 118000
	if _, err := svc.CreateSale(staffCtx(), req); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	report, err := svc.Report(staffCtx(), domain.ReportFilter{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Invoices) != 1 {
		t.Fatalf("expected one invoice, got %d", len(report.Invoices))
	}
	row := report.Invoices[0]
	if row.BasePaise != 100000 || row.GSTPaise != 18000 {
		t.Fatalf("expected 1180.00 to split into 1000.00 + 180.00, got base=%d gst=%d", row.BasePaise, row.GSTPaise)
	}
	if report.Summary.TotalPaise != 118000 {
		t.Fatalf("expected summary total 118000, got %d", report.Summary.TotalPaise)
	}
}

func TestLowStockNotificationAfterSale(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 3, 3)

	if _, err := svc.CreateSale(staffCtx(), cartFor(product, 1)); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	notifications, err := svc.ListNotifications(staffCtx(), 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected one low stock notification, got %d", len(notifications))
	}
	if notifications[0].ProductID != product.ID {
		t.Fatalf("expected notification for %s, got %s", product.ID, notifications[0].ProductID)
	}
	if notifications[0].IsRead {
		t.Fatalf("expected unread notification")
	}

	if err := svc.MarkNotificationRead(staffCtx(), notifications[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	notifications, _ = svc.ListNotifications(staffCtx(), 10)
	if !notifications[0].IsRead {
		t.Fatalf("expected notification marked read")
	}
}

func TestDashboardSummary(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 2, 5)

	req := cartFor(product, 1)
	req.TotalPaise = 118000
	if _, err := svc.CreateSale(staffCtx(), req); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	summary, err := svc.Dashboard(staffCtx())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if summary.TodaySalesPaise != 118000 {
		t.Fatalf("expected today sales 118000, got %d", summary.TodaySalesPaise)
	}
	if summary.TotalStock != 1 {
		t.Fatalf("expected total stock 1, got %d", summary.TotalStock)
	}
	if len(summary.LowStockItems) != 1 {
		t.Fatalf("expected one low stock item, got %d", len(summary.LowStockItems))
	}
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, 5, 1)

	if _, err := svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{
		Brand: "Amaron", Model: "FLO", PricePaise: 100,
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff create rejected, got %v", err)
	}
	if err := svc.DeleteProduct(staffCtx(), product.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff delete rejected, got %v", err)
	}
	if _, err := svc.ListStaff(staffCtx()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff listing restricted to admin, got %v", err)
	}
}

func TestServiceJobLifecycle(t *testing.T) {
	svc := newTestService()

	job, err := svc.CreateService(staffCtx(), domain.ServiceCreateRequest{
		CustomerName:       "Ravi",
		ContactNumber:      "9876543210",
		VehicleDetails:     "Swift 2019",
		ServiceChargePaise: 35000,
		PickupDate:         "2026-09-02",
	})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if job.Status != domain.ServiceStatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.PickupDate == nil {
		t.Fatalf("expected parsed pickup date")
	}

	bad := "done"
	if _, err := svc.UpdateService(staffCtx(), job.ID, domain.ServiceUpdateRequest{Status: &bad}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown status rejected, got %v", err)
	}

	completed := domain.ServiceStatusCompleted
	updated, err := svc.UpdateService(staffCtx(), job.ID, domain.ServiceUpdateRequest{Status: &completed})
	if err != nil {
		t.Fatalf("update service: %v", err)
	}
	if updated.Status != domain.ServiceStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
}

func TestSaleWithServiceLine(t *testing.T) {
	svc := newTestService()

	job, err := svc.CreateService(staffCtx(), domain.ServiceCreateRequest{
		CustomerName:       "Ravi",
		ContactNumber:      "9876543210",
		VehicleDetails:     "Swift 2019",
		ServiceChargePaise: 35000,
	})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}

	resp, err := svc.CreateSale(staffCtx(), domain.SaleCreateRequest{
		CustomerName: "Ravi",
		Items: []domain.SaleLineRequest{
			{ServiceID: job.ID, Quantity: 1, PricePaise: 35000},
		},
		TotalPaise: 35000,
	})
	if err != nil {
		t.Fatalf("service sale failed: %v", err)
	}
	if len(resp.Sale.Items) != 1 || resp.Sale.Items[0].Service == nil {
		t.Fatalf("expected resolved service line, got %+v", resp.Sale.Items)
	}
}
