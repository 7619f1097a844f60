package domain

import (
	"encoding/json"
	"time"
)

type Product struct {
	ID         string    `json:"id"`
	Brand      string    `json:"brand"`
	Model      string    `json:"model"`
	Type       string    `json:"type"`
	AH         string    `json:"ah"`
	PricePaise int64     `json:"price_paise"`
	Stock      int       `json:"stock"`
	MinStock   int       `json:"min_stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Brand      string `json:"brand"`
	Model      string `json:"model"`
	Type       string `json:"type"`
	AH         string `json:"ah"`
	PricePaise int64  `json:"price_paise"`
	Stock      int    `json:"stock"`
	MinStock   int    `json:"min_stock"`
}

type ProductUpdateRequest struct {
	Brand      *string `json:"brand,omitempty"`
	Model      *string `json:"model,omitempty"`
	Type       *string `json:"type,omitempty"`
	AH         *string `json:"ah,omitempty"`
	PricePaise *int64  `json:"price_paise,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	MinStock   *int    `json:"min_stock,omitempty"`
}

type ServiceJob struct {
	ID                 string     `json:"id"`
	CustomerName       string     `json:"customer_name"`
	ContactNumber      string     `json:"contact_number"`
	VehicleDetails     string     `json:"vehicle_details"`
	Status             string     `json:"status"`
	ServiceChargePaise int64      `json:"service_charge_paise"`
	BatteryBrand       string     `json:"battery_brand,omitempty"`
	BatteryModel       string     `json:"battery_model,omitempty"`
	PickupDate         *time.Time `json:"pickup_date,omitempty"`
	AssignedTo         string     `json:"assigned_to,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type ServiceCreateRequest struct {
	CustomerName       string `json:"customer_name"`
	ContactNumber      string `json:"contact_number"`
	VehicleDetails     string `json:"vehicle_details"`
	Status             string `json:"status,omitempty"`
	ServiceChargePaise int64  `json:"service_charge_paise"`
	BatteryBrand       string `json:"battery_brand,omitempty"`
	BatteryModel       string `json:"battery_model,omitempty"`
	PickupDate         string `json:"pickup_date,omitempty"`
	AssignedTo         string `json:"assigned_to,omitempty"`
}

type ServiceUpdateRequest struct {
	CustomerName       *string `json:"customer_name,omitempty"`
	ContactNumber      *string `json:"contact_number,omitempty"`
	VehicleDetails     *string `json:"vehicle_details,omitempty"`
	Status             *string `json:"status,omitempty"`
	ServiceChargePaise *int64  `json:"service_charge_paise,omitempty"`
	BatteryBrand       *string `json:"battery_brand,omitempty"`
	BatteryModel       *string `json:"battery_model,omitempty"`
	PickupDate         *string `json:"pickup_date,omitempty"`
	AssignedTo         *string `json:"assigned_to,omitempty"`
}

type ExchangeRecord struct {
	ID              string    `json:"id"`
	CustomerName    string    `json:"customer_name"`
	CustomerPhone   string    `json:"customer_phone,omitempty"`
	CustomerAddress string    `json:"customer_address,omitempty"`
	BatteryBrand    string    `json:"battery_brand"`
	BatteryModel    string    `json:"battery_model,omitempty"`
	ValuationPaise  int64     `json:"valuation_paise"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ExchangeCreateRequest struct {
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	CustomerAddress string `json:"customer_address,omitempty"`
	BatteryBrand    string `json:"battery_brand"`
	BatteryModel    string `json:"battery_model,omitempty"`
	ValuationPaise  int64  `json:"valuation_paise"`
}

type ExchangeUpdateRequest struct {
	CustomerName    *string `json:"customer_name,omitempty"`
	CustomerPhone   *string `json:"customer_phone,omitempty"`
	CustomerAddress *string `json:"customer_address,omitempty"`
	BatteryBrand    *string `json:"battery_brand,omitempty"`
	BatteryModel    *string `json:"battery_model,omitempty"`
	ValuationPaise  *int64  `json:"valuation_paise,omitempty"`
}

// SaleLineRequest references exactly one of a product or a service job.
type SaleLineRequest struct {
	ProductID  string `json:"product_id,omitempty"`
	ServiceID  string `json:"service_id,omitempty"`
	Quantity   int    `json:"quantity"`
	PricePaise int64  `json:"price_paise"`
}

// SaleCreateRequest is the cart submitted at checkout. The same structure is
// validated and stored on a UPI payment intent, then replayed at finalise
// time, so malformed carts are rejected before any money moves.
type SaleCreateRequest struct {
	CustomerName        string            `json:"customer_name"`
	CustomerPhone       string            `json:"customer_phone,omitempty"`
	VehicleDetails      string            `json:"vehicle_details,omitempty"`
	InstallationAddress string            `json:"installation_address,omitempty"`
	ProductCategory     string            `json:"product_category,omitempty"`
	Type                string            `json:"type,omitempty"`
	Items               []SaleLineRequest `json:"items"`
	TotalPaise          int64             `json:"total_paise"`
	ExtraChargesPaise   int64             `json:"extra_charges_paise,omitempty"`
	DiscountPaise       int64             `json:"discount_paise,omitempty"`
	ExchangeRecordID    string            `json:"exchange_record_id,omitempty"`
	PaymentMethod       string            `json:"payment_method,omitempty"`
	IdempotencyKey      string            `json:"idempotency_key,omitempty"`
}

type SaleItem struct {
	ProductID  string      `json:"product_id,omitempty"`
	ServiceID  string      `json:"service_id,omitempty"`
	Quantity   int         `json:"quantity"`
	PricePaise int64       `json:"price_paise"`
	Product    *Product    `json:"product,omitempty"`
	Service    *ServiceJob `json:"service,omitempty"`
}

type Sale struct {
	ID                  string     `json:"id"`
	CustomerName        string     `json:"customer_name"`
	CustomerPhone       string     `json:"customer_phone,omitempty"`
	VehicleDetails      string     `json:"vehicle_details,omitempty"`
	InstallationAddress string     `json:"installation_address,omitempty"`
	ProductCategory     string     `json:"product_category,omitempty"`
	Type                string     `json:"type"`
	TotalPaise          int64      `json:"total_paise"`
	ExtraChargesPaise   int64      `json:"extra_charges_paise"`
	DiscountPaise       int64      `json:"discount_paise"`
	ExchangeRecordID    string     `json:"exchange_record_id,omitempty"`
	PaymentMethod       string     `json:"payment_method"`
	IdempotencyKey      string     `json:"idempotency_key,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	Items               []SaleItem `json:"items"`
}

type SaleResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

type UpiPayment struct {
	ID           string            `json:"id"`
	AmountPaise  int64             `json:"amount_paise"`
	Status       string            `json:"status"`
	SaleData     SaleCreateRequest `json:"sale_data"`
	InvoiceState json.RawMessage   `json:"invoice_state,omitempty"`
	UpiRef       string            `json:"upi_ref,omitempty"`
	SaleID       string            `json:"sale_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type UpiCreateRequest struct {
	AmountPaise  int64             `json:"amount_paise"`
	SaleData     SaleCreateRequest `json:"sale_data"`
	InvoiceState json.RawMessage   `json:"invoice_state,omitempty"`
}

type UpiConfirmRequest struct {
	UpiRef string `json:"upi_ref,omitempty"`
}

type UpiStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type UpiFinaliseResponse struct {
	SaleID string `json:"sale_id"`
	Status string `json:"status"`
}

type Notification struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id,omitempty"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type WeeklySalesBucket struct {
	Day        string `json:"day"`
	SalesPaise int64  `json:"sales_paise"`
	Count      int64  `json:"count"`
}

type DashboardSummary struct {
	TodaySalesPaise    int64               `json:"today_sales_paise"`
	TotalStock         int                 `json:"total_stock"`
	PendingServices    int                 `json:"pending_services"`
	MonthlyProfitPaise int64               `json:"monthly_profit_paise"`
	WeeklySales        []WeeklySalesBucket `json:"weekly_sales"`
	LowStockItems      []Product           `json:"low_stock_items"`
}

type InvoiceRow struct {
	InvoiceNumber string `json:"invoice_number"`
	Date          string `json:"date"`
	CustomerName  string `json:"customer_name"`
	Type          string `json:"type"`
	ItemsSummary  string `json:"items_summary"`
	BasePaise     int64  `json:"base_paise"`
	GSTPaise      int64  `json:"gst_paise"`
	TotalPaise    int64  `json:"total_paise"`
}

type ReportSummary struct {
	Invoices   int64 `json:"invoices"`
	BasePaise  int64 `json:"base_paise"`
	GSTPaise   int64 `json:"gst_paise"`
	TotalPaise int64 `json:"total_paise"`
}

type Report struct {
	Invoices []InvoiceRow  `json:"invoices"`
	Summary  ReportSummary `json:"summary"`
}

type ReportFilter struct {
	From   *time.Time
	To     *time.Time
	Type   string
	Search string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffMember struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Name      string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	ServiceStatusPending    = "pending"
	ServiceStatusInProgress = "in-progress"
	ServiceStatusCompleted  = "completed"
)

const (
	ExchangeStatusPending  = "pending"
	ExchangeStatusConsumed = "consumed"
)

const (
	UpiStatusPending   = "pending"
	UpiStatusReceived  = "received"
	UpiStatusFinalised = "finalised"
	// UpiStatusExpired exists in the schema default comment but no
	// transition reaches it.
	UpiStatusExpired = "expired"
)

const (
	SaleTypeSale     = "Sale"
	SaleTypeExchange = "Exchange"
)

const (
	PaymentMethodCash = "Cash"
	PaymentMethodUPI  = "UPI"
)

const GSTRatePercent = 18
