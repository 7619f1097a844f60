package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
	"github.com/GaneshKarthi2007/battery-shop/internal/service"
	"github.com/GaneshKarthi2007/battery-shop/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeaders)

	allowedOrigins := []string{"*"}
	if a.allowedOrigin != "" {
		allowedOrigins = strings.Split(a.allowedOrigin, ",")
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	router.Get("/healthz", a.handleHealth)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleStaff, domain.RoleAdmin))

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Post("/", a.handleCreateProduct)
				r.Get("/{id}", a.handleGetProduct)
				r.Put("/{id}", a.handleUpdateProduct)
				r.Delete("/{id}", a.handleDeleteProduct)
			})

			r.Route("/services", func(r chi.Router) {
				r.Get("/", a.handleListServices)
				r.Post("/", a.handleCreateService)
				r.Get("/{id}", a.handleGetService)
				r.Put("/{id}", a.handleUpdateService)
				r.Delete("/{id}", a.handleDeleteService)
			})

			r.Route("/exchanges", func(r chi.Router) {
				r.Get("/", a.handleListExchanges)
				r.Get("/pending", a.handleListPendingExchanges)
				r.Post("/", a.handleCreateExchange)
				r.Get("/{id}", a.handleGetExchange)
				r.Put("/{id}", a.handleUpdateExchange)
				r.Delete("/{id}", a.handleDeleteExchange)
			})

			r.Route("/sales", func(r chi.Router) {
				r.Get("/", a.handleListSales)
				r.Post("/", a.handleCreateSale)
				r.Get("/{id}", a.handleGetSale)
			})

			r.Route("/upi-payments", func(r chi.Router) {
				r.Post("/", a.handleCreateUpiIntent)
				r.Get("/{id}/status", a.handleUpiStatus)
				r.Post("/{id}/confirm", a.handleConfirmUpi)
				r.Post("/{id}/finalise", a.handleFinaliseUpi)
			})

			r.Get("/dashboard", a.handleDashboard)
			r.Get("/reports/sales", a.handleSalesReport)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", a.handleListNotifications)
				r.Post("/read-all", a.handleMarkAllNotificationsRead)
				r.Post("/{id}/read", a.handleMarkNotificationRead)
			})

			r.Get("/users/staff", a.handleListStaff)
		})
	})

	return router
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		next.ServeHTTP(w, r)
	})
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleListServices(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	jobs, err := a.service.ListServices(r.Context(), from, to, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": jobs})
}

func (a *API) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req domain.ServiceCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job, err := a.service.CreateService(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"service": job})
}

func (a *API) handleGetService(w http.ResponseWriter, r *http.Request) {
	job, err := a.service.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": job})
}

func (a *API) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	var req domain.ServiceUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job, err := a.service.UpdateService(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": job})
}

func (a *API) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteService(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListExchanges(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchanges": records})
}

func (a *API) handleListPendingExchanges(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListPendingExchanges(r.Context(), r.URL.Query().Get("customer_name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchanges": records})
}

func (a *API) handleCreateExchange(w http.ResponseWriter, r *http.Request) {
	var req domain.ExchangeCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := a.service.CreateExchange(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"exchange": record})
}

func (a *API) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	record, err := a.service.GetExchange(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchange": record})
}

func (a *API) handleUpdateExchange(w http.ResponseWriter, r *http.Request) {
	var req domain.ExchangeUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := a.service.UpdateExchange(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchange": record})
}

func (a *API) handleDeleteExchange(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteExchange(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sales, err := a.service.ListSales(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCreateUpiIntent(w http.ResponseWriter, r *http.Request) {
	var req domain.UpiCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payment, err := a.service.CreateUpiIntent(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
}

func (a *API) handleUpiStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetUpiStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleConfirmUpi(w http.ResponseWriter, r *http.Request) {
	var req domain.UpiConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ConfirmUpiPayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleFinaliseUpi(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.FinaliseUpiPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := a.service.Report(r.Context(), domain.ReportFilter{
		From:   from,
		To:     to,
		Type:   r.URL.Query().Get("type"),
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="sales-report.csv"`)
		_, _ = w.Write([]byte(reportToCSV(report)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(reportToPrintableHTML(report)))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100)
	notifications, err := a.service.ListNotifications(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (a *API) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := a.service.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}

func (a *API) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := a.service.MarkAllNotificationsRead(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := a.service.ListStaff(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

// writeServiceError translates the store/service sentinel errors into HTTP
// statuses. Unknown errors surface as a sanitized 500.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrExchangeConsumed),
		errors.Is(err, store.ErrAlreadyProcessed):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotConfirmed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseDateRange turns from/to query params (YYYY-MM-DD) into a half-open
// UTC interval with the to day included.
func parseDateRange(fromRaw string, toRaw string) (*time.Time, *time.Time, error) {
	var from *time.Time
	var to *time.Time

	if s := strings.TrimSpace(fromRaw); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from date: %s", s)
		}
		from = &t
	}
	if s := strings.TrimSpace(toRaw); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to date: %s", s)
		}
		end := t.AddDate(0, 0, 1)
		to = &end
	}
	return from, to, nil
}

type attemptLimiter struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	entries   map[string][]time.Time
	lastSweep time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop keys with no recent attempts so idle clients do not accumulate
	// forever. At most once per window.
	if now.Sub(l.lastSweep) > l.window {
		for k, history := range l.entries {
			live := false
			for _, ts := range history {
				if ts.After(cutoff) {
					live = true
					break
				}
			}
			if !live {
				delete(l.entries, k)
			}
		}
		l.lastSweep = now
	}

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func formatPaise(p int64) string {
	sign := ""
	if p < 0 {
		sign = "-"
		p = -p
	}
	return fmt.Sprintf("%s%d.%02d", sign, p/100, p%100)
}

func csvEscape(field string) string {
	if strings.ContainsAny(field, ",\"\n") {
		return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	return field
}

func reportToCSV(report domain.Report) string {
	var b strings.Builder
	b.WriteString("invoice_number,date,customer,type,items,base,gst,total\n")
	for _, row := range report.Invoices {
		fields := []string{
			row.InvoiceNumber,
			row.Date,
			row.CustomerName,
			row.Type,
			row.ItemsSummary,
			formatPaise(row.BasePaise),
			formatPaise(row.GSTPaise),
			formatPaise(row.TotalPaise),
		}
		for i, field := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(csvEscape(field))
		}
		b.WriteByte('\n')
	}
	b.WriteString(fmt.Sprintf("TOTAL,,,,%d invoices,%s,%s,%s\n",
		report.Summary.Invoices,
		formatPaise(report.Summary.BasePaise),
		formatPaise(report.Summary.GSTPaise),
		formatPaise(report.Summary.TotalPaise)))
	return b.String()
}

// salesReportHTMLTmpl renders the printable sales report. User-controlled
// fields are auto-escaped by html/template.
var salesReportHTMLTmpl = template.Must(template.New("sales-report").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Sales Report</title>
  <style>
    body { font-family: sans-serif; margin: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #444; padding: 4px 8px; text-align: left; }
    tfoot td { font-weight: bold; }
    @media print { body { margin: 0; } }
  </style>
</head>
<body>
  <h1>Sales Report</h1>
  <table>
    <thead>
      <tr><th>Invoice</th><th>Date</th><th>Customer</th><th>Type</th><th>Items</th><th>Base</th><th>GST</th><th>Total</th></tr>
    </thead>
    <tbody>
      {{range .Rows}}
      <tr>
        <td>{{.InvoiceNumber}}</td><td>{{.Date}}</td><td>{{.CustomerName}}</td><td>{{.Type}}</td>
        <td>{{.ItemsSummary}}</td><td>{{.Base}}</td><td>{{.GST}}</td><td>{{.Total}}</td>
      </tr>
      {{end}}
    </tbody>
    <tfoot>
      <tr><td colspan="5">{{.Invoices}} invoices</td><td>{{.Base}}</td><td>{{.GST}}</td><td>{{.Total}}</td></tr>
    </tfoot>
  </table>
</body>
</html>`))

type reportHTMLRow struct {
	InvoiceNumber string
	Date          string
	CustomerName  string
	Type          string
	ItemsSummary  string
	Base          string
	GST           string
	Total         string
}

func reportToPrintableHTML(report domain.Report) string {
	rows := make([]reportHTMLRow, 0, len(report.Invoices))
	for _, row := range report.Invoices {
		rows = append(rows, reportHTMLRow{
			InvoiceNumber: row.InvoiceNumber,
			Date:          row.Date,
			CustomerName:  row.CustomerName,
			Type:          row.Type,
			ItemsSummary:  row.ItemsSummary,
			Base:          formatPaise(row.BasePaise),
			GST:           formatPaise(row.GSTPaise),
			Total:         formatPaise(row.TotalPaise),
		})
	}

	var b strings.Builder
	err := salesReportHTMLTmpl.Execute(&b, map[string]any{
		"Rows":     rows,
		"Invoices": report.Summary.Invoices,
		"Base":     formatPaise(report.Summary.BasePaise),
		"GST":      formatPaise(report.Summary.GSTPaise),
		"Total":    formatPaise(report.Summary.TotalPaise),
	})
	if err != nil {
		return "<!doctype html><html><body>report rendering failed</body></html>"
	}
	return b.String()
}
