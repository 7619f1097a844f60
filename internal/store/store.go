package store

import (
	"context"
	"errors"
	"time"

	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrExchangeConsumed  = errors.New("exchange record already consumed")
	ErrAlreadyProcessed  = errors.New("payment already processed")
	ErrNotConfirmed      = errors.New("payment not yet confirmed")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListServices(ctx context.Context) ([]domain.ServiceJob, error)
	CreateService(ctx context.Context, job domain.ServiceJob) (*domain.ServiceJob, error)
	GetService(ctx context.Context, id string) (*domain.ServiceJob, error)
	UpdateService(ctx context.Context, job domain.ServiceJob) (*domain.ServiceJob, error)
	DeleteService(ctx context.Context, id string) error
	ListServicesBetween(ctx context.Context, from *time.Time, to *time.Time, status string) ([]domain.ServiceJob, error)

	ListExchanges(ctx context.Context) ([]domain.ExchangeRecord, error)
	ListPendingExchanges(ctx context.Context, customerName string) ([]domain.ExchangeRecord, error)
	CreateExchange(ctx context.Context, record domain.ExchangeRecord) (*domain.ExchangeRecord, error)
	GetExchange(ctx context.Context, id string) (*domain.ExchangeRecord, error)
	UpdateExchange(ctx context.Context, record domain.ExchangeRecord) (*domain.ExchangeRecord, error)
	DeleteExchange(ctx context.Context, id string) error

	// CreateSale persists the sale header, consumes the referenced exchange
	// record, decrements product stock under a row lock and inserts every
	// line item, all inside one transaction. Any failure rolls the whole
	// operation back.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	ListSalesBetween(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)

	CreateUpiPayment(ctx context.Context, payment domain.UpiPayment) (*domain.UpiPayment, error)
	GetUpiPayment(ctx context.Context, id string) (*domain.UpiPayment, error)
	// ConfirmUpiPayment moves a pending intent to received. Any other
	// starting state fails with ErrAlreadyProcessed.
	ConfirmUpiPayment(ctx context.Context, id string, upiRef string) (*domain.UpiPayment, error)
	// FinaliseUpiPayment creates the given sale and moves the intent from
	// received to finalised in a single atomic unit. A pending intent fails
	// with ErrNotConfirmed, a finalised one with ErrAlreadyProcessed; a
	// failed sale creation leaves the intent at received.
	FinaliseUpiPayment(ctx context.Context, id string, sale domain.Sale) (*domain.UpiPayment, *domain.Sale, error)

	GetDashboardStats(ctx context.Context, now time.Time) (domain.DashboardSummary, error)

	CreateNotification(ctx context.Context, notification domain.Notification) error
	ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
