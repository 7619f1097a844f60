package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
	"github.com/GaneshKarthi2007/battery-shop/internal/store"
	"github.com/GaneshKarthi2007/battery-shop/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, brand, model, type, ah, price_paise, stock, min_stock, created_at, updated_at
		FROM products
		ORDER BY brand, model
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Brand, &p.Model, &p.Type, &p.AH, &p.PricePaise, &p.Stock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Brand == "" || product.Model == "" || product.PricePaise < 1 || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, brand, model, type, ah, price_paise, stock, min_stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Brand, product.Model, product.Type, product.AH, product.PricePaise, product.Stock, product.MinStock, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, brand, model, type, ah, price_paise, stock, min_stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Brand, &p.Model, &p.Type, &p.AH, &p.PricePaise, &p.Stock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Brand == "" || product.Model == "" || product.PricePaise < 1 || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET brand = $2, model = $3, type = $4, ah = $5, price_paise = $6, stock = $7, min_stock = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Brand, product.Model, product.Type, product.AH, product.PricePaise, product.Stock, product.MinStock)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const serviceColumns = `id, customer_name, contact_number, vehicle_details, COALESCE(battery_brand, ''), COALESCE(battery_model, ''), status, service_charge_paise, pickup_date, assigned_to, created_at, updated_at`

func scanServiceJob(scan func(dest ...any) error) (domain.ServiceJob, error) {
	var job domain.ServiceJob
	var pickup sql.NullTime
	var assigned sql.NullString
	err := scan(&job.ID, &job.CustomerName, &job.ContactNumber, &job.VehicleDetails, &job.BatteryBrand,
		&job.BatteryModel, &job.Status, &job.ServiceChargePaise, &pickup, &assigned, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return domain.ServiceJob{}, err
	}
	if pickup.Valid {
		t := pickup.Time.UTC()
		job.PickupDate = &t
	}
	if assigned.Valid {
		job.AssignedTo = assigned.String
	}
	return job, nil
}

func (s *Store) ListServices(ctx context.Context) ([]domain.ServiceJob, error) {
	return s.queryServices(ctx, `
		SELECT `+serviceColumns+`
		FROM service_jobs
		ORDER BY created_at DESC
	`)
}

func (s *Store) queryServices(ctx context.Context, query string, args ...any) ([]domain.ServiceJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.ServiceJob, 0, 32)
	for rows.Next() {
		job, err := scanServiceJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *Store) CreateService(ctx context.Context, job domain.ServiceJob) (*domain.ServiceJob, error) {
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
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_jobs (id, customer_name, contact_number, vehicle_details, battery_brand, battery_model, status, service_charge_paise, pickup_date, assigned_to, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, job.ID, job.CustomerName, job.ContactNumber, job.VehicleDetails, nullIfEmpty(job.BatteryBrand),
		nullIfEmpty(job.BatteryModel), job.Status, job.ServiceChargePaise, nullTime(job.PickupDate), nullIfEmpty(job.AssignedTo), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	created := job
	return &created, nil
}

func (s *Store) GetService(ctx context.Context, id string) (*domain.ServiceJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+serviceColumns+`
		FROM service_jobs
		WHERE id = $1
	`, id)
	job, err := scanServiceJob(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *Store) UpdateService(ctx context.Context, job domain.ServiceJob) (*domain.ServiceJob, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE service_jobs
		SET customer_name = $2, contact_number = $3, vehicle_details = $4, battery_brand = $5,
			battery_model = $6, status = $7, service_charge_paise = $8, pickup_date = $9, assigned_to = $10, updated_at = now()
		WHERE id = $1
	`, job.ID, job.CustomerName, job.ContactNumber, job.VehicleDetails, nullIfEmpty(job.BatteryBrand),
		nullIfEmpty(job.BatteryModel), job.Status, job.ServiceChargePaise, nullTime(job.PickupDate), nullIfEmpty(job.AssignedTo))
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetService(ctx, job.ID)
}

func (s *Store) DeleteService(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM service_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListServicesBetween(ctx context.Context, from *time.Time, to *time.Time, status string) ([]domain.ServiceJob, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if from != nil {
		args = append(args, from.UTC())
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, to.UTC())
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + serviceColumns + ` FROM service_jobs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	return s.queryServices(ctx, query, args...)
}

const exchangeColumns = `id, customer_name, COALESCE(customer_phone, ''), COALESCE(customer_address, ''), battery_brand, COALESCE(battery_model, ''), valuation_paise, status, created_at, updated_at`

func (s *Store) queryExchanges(ctx context.Context, query string, args ...any) ([]domain.ExchangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ExchangeRecord, 0, 32)
	for rows.Next() {
		var r domain.ExchangeRecord
		if err := rows.Scan(&r.ID, &r.CustomerName, &r.CustomerPhone, &r.CustomerAddress, &r.BatteryBrand,
			&r.BatteryModel, &r.ValuationPaise, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ListExchanges(ctx context.Context) ([]domain.ExchangeRecord, error) {
	return s.queryExchanges(ctx, `
		SELECT `+exchangeColumns+`
		FROM exchange_records
		ORDER BY created_at DESC
	`)
}

func (s *Store) ListPendingExchanges(ctx context.Context, customerName string) ([]domain.ExchangeRecord, error) {
	if name := strings.TrimSpace(customerName); name != "" {
		return s.queryExchanges(ctx, `
			SELECT `+exchangeColumns+`
			FROM exchange_records
			WHERE status = $1 AND customer_name ILIKE $2
			ORDER BY created_at DESC
		`, domain.ExchangeStatusPending, "%"+name+"%")
	}
	return s.queryExchanges(ctx, `
		SELECT `+exchangeColumns+`
		FROM exchange_records
		WHERE status = $1
		ORDER BY created_at DESC
	`, domain.ExchangeStatusPending)
}

func (s *Store) CreateExchange(ctx context.Context, record domain.ExchangeRecord) (*domain.ExchangeRecord, error) {
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
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_records (id, customer_name, customer_phone, customer_address, battery_brand, battery_model, valuation_paise, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, record.ID, record.CustomerName, nullIfEmpty(record.CustomerPhone), nullIfEmpty(record.CustomerAddress),
		record.BatteryBrand, nullIfEmpty(record.BatteryModel), record.ValuationPaise, record.Status, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	created := record
	return &created, nil
}

func (s *Store) GetExchange(ctx context.Context, id string) (*domain.ExchangeRecord, error) {
	var r domain.ExchangeRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT `+exchangeColumns+`
		FROM exchange_records
		WHERE id = $1
	`, id).Scan(&r.ID, &r.CustomerName, &r.CustomerPhone, &r.CustomerAddress, &r.BatteryBrand,
		&r.BatteryModel, &r.ValuationPaise, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) UpdateExchange(ctx context.Context, record domain.ExchangeRecord) (*domain.ExchangeRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE exchange_records
		SET customer_name = $2, customer_phone = $3, customer_address = $4, battery_brand = $5,
			battery_model = $6, valuation_paise = $7, status = $8, updated_at = now()
		WHERE id = $1
	`, record.ID, record.CustomerName, nullIfEmpty(record.CustomerPhone), nullIfEmpty(record.CustomerAddress),
		record.BatteryBrand, nullIfEmpty(record.BatteryModel), record.ValuationPaise, record.Status)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetExchange(ctx, record.ID)
}

func (s *Store) DeleteExchange(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exchange_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	created, err := s.createSaleInTx(ctx, pgTx, sale)
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			existing, lookupErr := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// createSaleInTx runs the sale transaction inside the caller's database
// transaction: it locks and re-checks product stock and the exchange record,
// applies the decrements, consumes the exchange record and inserts the sale
// header plus its line items. The caller owns commit/rollback.
func (s *Store) createSaleInTx(ctx context.Context, pgTx *sql.Tx, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	productIDs := uniqueProductIDs(sale.Items)
	productMap := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) > 0 {
		rows, err := pgTx.QueryContext(ctx, `
			SELECT id, brand, model, type, ah, price_paise, stock, min_stock, created_at, updated_at
			FROM products
			WHERE id = ANY($1)
			ORDER BY id
			FOR UPDATE
		`, productIDs)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var p domain.Product
			if err := rows.Scan(&p.ID, &p.Brand, &p.Model, &p.Type, &p.AH, &p.PricePaise, &p.Stock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
				_ = rows.Close()
				return nil, err
			}
			productMap[p.ID] = p
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}

	if sale.ExchangeRecordID != "" {
		var status string
		err := pgTx.QueryRowContext(ctx, `
			SELECT status
			FROM exchange_records
			WHERE id = $1
			FOR UPDATE
		`, sale.ExchangeRecordID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: exchange record %s", store.ErrNotFound, sale.ExchangeRecordID)
			}
			return nil, err
		}
		if status != domain.ExchangeStatusPending {
			return nil, store.ErrExchangeConsumed
		}
	}

	resolvedItems := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if (item.ProductID == "") == (item.ServiceID == "") || item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}

		if item.ProductID != "" {
			product, exists := productMap[item.ProductID]
			if !exists {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
			}
			if product.Stock < item.Quantity {
				return nil, fmt.Errorf("%w for product: %s %s", store.ErrInsufficientStock, product.Brand, product.Model)
			}
			product.Stock -= item.Quantity
			productMap[item.ProductID] = product
			snapshot := product
			item.Product = &snapshot
		}

		if item.ServiceID != "" {
			var exists bool
			if err := pgTx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM service_jobs WHERE id = $1)
			`, item.ServiceID).Scan(&exists); err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("%w: service %s", store.ErrNotFound, item.ServiceID)
			}
		}

		resolvedItems = append(resolvedItems, item)
	}

	for _, id := range productIDs {
		product := productMap[id]
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = $2, updated_at = now()
			WHERE id = $1
		`, id, product.Stock)
		if err != nil {
			return nil, err
		}
	}

	if sale.ExchangeRecordID != "" {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE exchange_records
			SET status = $2, updated_at = now()
			WHERE id = $1
		`, sale.ExchangeRecordID, domain.ExchangeStatusConsumed)
		if err != nil {
			return nil, err
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Items = resolvedItems

	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, customer_name, customer_phone, vehicle_details, installation_address,
			product_category, type, total_paise, extra_charges_paise, discount_paise,
			exchange_record_id, payment_method, idempotency_key, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.CustomerName, nullIfEmpty(sale.CustomerPhone), nullIfEmpty(sale.VehicleDetails),
		nullIfEmpty(sale.InstallationAddress), nullIfEmpty(sale.ProductCategory), sale.Type,
		sale.TotalPaise, sale.ExtraChargesPaise, sale.DiscountPaise,
		nullIfEmpty(sale.ExchangeRecordID), sale.PaymentMethod, nullIfEmpty(sale.IdempotencyKey), sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for lineNo, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, service_id, quantity, price_paise)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, lineNo, nullIfEmpty(item.ProductID), nullIfEmpty(item.ServiceID), item.Quantity, item.PricePaise)
		if err != nil {
			return nil, err
		}
	}

	created := sale
	return &created, nil
}

const saleColumns = `id, customer_name, COALESCE(customer_phone, ''), COALESCE(vehicle_details, ''),
		COALESCE(installation_address, ''), COALESCE(product_category, ''), type, total_paise,
		extra_charges_paise, discount_paise, COALESCE(exchange_record_id, ''), payment_method,
		COALESCE(idempotency_key, ''), created_at`

func scanSale(scan func(dest ...any) error) (domain.Sale, error) {
	var sale domain.Sale
	err := scan(&sale.ID, &sale.CustomerName, &sale.CustomerPhone, &sale.VehicleDetails,
		&sale.InstallationAddress, &sale.ProductCategory, &sale.Type,
		&sale.TotalPaise, &sale.ExtraChargesPaise, &sale.DiscountPaise, &sale.ExchangeRecordID,
		&sale.PaymentMethod, &sale.IdempotencyKey, &sale.CreatedAt)
	return sale, err
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.attachSaleItems(ctx, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.ListSalesBetween(ctx, nil, nil)
}

func (s *Store) ListSalesBetween(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if from != nil {
		args = append(args, from.UTC())
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, to.UTC())
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows.Scan)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		if err := s.attachSaleItems(ctx, &sales[i]); err != nil {
			return nil, err
		}
	}
	return sales, nil
}

func (s *Store) attachSaleItems(ctx context.Context, sale *domain.Sale) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, i.service_id, i.quantity, i.price_paise,
			p.id, p.brand, p.model, p.type, p.ah, p.price_paise, p.stock, p.min_stock,
			sj.id, sj.customer_name, sj.status, sj.service_charge_paise
		FROM sale_items i
		LEFT JOIN products p ON p.id = i.product_id
		LEFT JOIN service_jobs sj ON sj.id = i.service_id
		WHERE i.sale_id = $1
		ORDER BY i.line_no
	`, sale.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 4)
	for rows.Next() {
		var item domain.SaleItem
		var productID, serviceID sql.NullString
		var pID, pBrand, pModel, pType, pAH sql.NullString
		var pPrice, pStock, pMinStock sql.NullInt64
		var sjID, sjCustomer, sjStatus sql.NullString
		var sjCharge sql.NullInt64
		if err := rows.Scan(&productID, &serviceID, &item.Quantity, &item.PricePaise,
			&pID, &pBrand, &pModel, &pType, &pAH, &pPrice, &pStock, &pMinStock,
			&sjID, &sjCustomer, &sjStatus, &sjCharge); err != nil {
			return err
		}
		item.ProductID = productID.String
		item.ServiceID = serviceID.String
		if pID.Valid {
			item.Product = &domain.Product{
				ID: pID.String, Brand: pBrand.String, Model: pModel.String, Type: pType.String,
				AH: pAH.String, PricePaise: pPrice.Int64, Stock: int(pStock.Int64), MinStock: int(pMinStock.Int64),
			}
		}
		if sjID.Valid {
			item.Service = &domain.ServiceJob{
				ID: sjID.String, CustomerName: sjCustomer.String, Status: sjStatus.String,
				ServiceChargePaise: sjCharge.Int64,
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	sale.Items = items
	return nil
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE idempotency_key = $1
	`, key)
	sale, err := scanSale(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.attachSaleItems(ctx, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

const upiColumns = `id, amount_paise, status, sale_data, COALESCE(invoice_state, 'null'::jsonb),
		COALESCE(upi_ref, ''), COALESCE(sale_id, ''), created_at, updated_at`

func scanUpiPayment(scan func(dest ...any) error) (domain.UpiPayment, error) {
	var payment domain.UpiPayment
	var saleData []byte
	var invoiceState []byte
	err := scan(&payment.ID, &payment.AmountPaise, &payment.Status, &saleData, &invoiceState,
		&payment.UpiRef, &payment.SaleID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return domain.UpiPayment{}, err
	}
	if err := json.Unmarshal(saleData, &payment.SaleData); err != nil {
		return domain.UpiPayment{}, fmt.Errorf("decode stored sale data: %w", err)
	}
	payment.InvoiceState = json.RawMessage(invoiceState)
	return payment, nil
}

func (s *Store) CreateUpiPayment(ctx context.Context, payment domain.UpiPayment) (*domain.UpiPayment, error) {
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
	payment.CreatedAt = now
	payment.UpdatedAt = now

	saleData, err := json.Marshal(payment.SaleData)
	if err != nil {
		return nil, fmt.Errorf("encode sale data: %w", err)
	}
	invoiceState := []byte("null")
	if len(payment.InvoiceState) > 0 {
		invoiceState = payment.InvoiceState
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO upi_payments (id, amount_paise, status, sale_data, invoice_state, upi_ref, sale_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, payment.ID, payment.AmountPaise, payment.Status, saleData, invoiceState,
		nullIfEmpty(payment.UpiRef), nullIfEmpty(payment.SaleID), payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		return nil, err
	}

	created := payment
	return &created, nil
}

func (s *Store) GetUpiPayment(ctx context.Context, id string) (*domain.UpiPayment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+upiColumns+`
		FROM upi_payments
		WHERE id = $1
	`, id)
	payment, err := scanUpiPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *Store) ConfirmUpiPayment(ctx context.Context, id string, upiRef string) (*domain.UpiPayment, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM upi_payments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.UpiStatusPending {
		return nil, store.ErrAlreadyProcessed
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE upi_payments
		SET status = $2, upi_ref = $3, updated_at = now()
		WHERE id = $1
	`, id, domain.UpiStatusReceived, nullIfEmpty(upiRef))
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetUpiPayment(ctx, id)
}

func (s *Store) FinaliseUpiPayment(ctx context.Context, id string, sale domain.Sale) (*domain.UpiPayment, *domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM upi_payments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	switch status {
	case domain.UpiStatusReceived:
	case domain.UpiStatusPending:
		return nil, nil, store.ErrNotConfirmed
	default:
		return nil, nil, store.ErrAlreadyProcessed
	}

	// Sale creation and the status flip commit or roll back together, so a
	// failed sale leaves the intent at received for a retry.
	created, err := s.createSaleInTx(ctx, pgTx, sale)
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			return nil, nil, store.ErrAlreadyProcessed
		}
		return nil, nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE upi_payments
		SET status = $2, sale_id = $3, updated_at = now()
		WHERE id = $1
	`, id, domain.UpiStatusFinalised, created.ID)
	if err != nil {
		return nil, nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}

	payment, err := s.GetUpiPayment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return payment, created, nil
}

func (s *Store) GetDashboardStats(ctx context.Context, now time.Time) (domain.DashboardSummary, error) {
	summary := domain.DashboardSummary{
		WeeklySales:   make([]domain.WeeklySalesBucket, 0, 7),
		LowStockItems: make([]domain.Product, 0, 8),
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	weekStart := now.AddDate(0, 0, -7)

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_paise), 0)
		FROM sales
		WHERE created_at >= $1
	`, dayStart).Scan(&summary.TodaySalesPaise)
	if err != nil {
		return summary, err
	}

	var monthlyRevenue int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_paise), 0)
		FROM sales
		WHERE created_at >= $1
	`, monthStart).Scan(&monthlyRevenue)
	if err != nil {
		return summary, err
	}
	summary.MonthlyProfitPaise = monthlyRevenue / 5

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(stock), 0)
		FROM products
	`).Scan(&summary.TotalStock)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM service_jobs
		WHERE status = $1
	`, domain.ServiceStatusPending).Scan(&summary.PendingServices)
	if err != nil {
		return summary, err
	}

	weekRows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at, 'FMDay'), SUM(total_paise), COUNT(*)
		FROM sales
		WHERE created_at > $1
		GROUP BY to_char(created_at, 'FMDay'), date_trunc('day', created_at)
		ORDER BY date_trunc('day', created_at)
	`, weekStart)
	if err != nil {
		return summary, err
	}
	defer weekRows.Close()
	for weekRows.Next() {
		var bucket domain.WeeklySalesBucket
		if err := weekRows.Scan(&bucket.Day, &bucket.SalesPaise, &bucket.Count); err != nil {
			return summary, err
		}
		bucket.Day = strings.TrimSpace(bucket.Day)
		summary.WeeklySales = append(summary.WeeklySales, bucket)
	}
	if err := weekRows.Err(); err != nil {
		return summary, err
	}

	lowRows, err := s.db.QueryContext(ctx, `
		SELECT id, brand, model, type, ah, price_paise, stock, min_stock, created_at, updated_at
		FROM products
		WHERE stock < min_stock
		ORDER BY id
	`)
	if err != nil {
		return summary, err
	}
	defer lowRows.Close()
	for lowRows.Next() {
		var p domain.Product
		if err := lowRows.Scan(&p.ID, &p.Brand, &p.Model, &p.Type, &p.AH, &p.PricePaise, &p.Stock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return summary, err
		}
		summary.LowStockItems = append(summary.LowStockItems, p)
	}
	if err := lowRows.Err(); err != nil {
		return summary, err
	}

	return summary, nil
}

func (s *Store) CreateNotification(ctx context.Context, notification domain.Notification) error {
	if notification.ID == "" {
		notification.ID = xid.New("ntf")
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, product_id, message, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, notification.ID, nullIfEmpty(notification.ProductID), notification.Message, notification.IsRead, notification.CreatedAt)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(product_id, ''), message, is_read, created_at
		FROM notifications
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.ProductID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = true WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = true WHERE is_read = false`)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, name, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.Username, user.Password, user.Name, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, name, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Name, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, name, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Name, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(items []domain.SaleItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
