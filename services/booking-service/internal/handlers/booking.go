package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/modifier"
)

// Verifier issues and checks customer verification codes.
type Verifier interface {
	Request(ctx context.Context, shopID, recipient string) (time.Time, error)
	Confirm(ctx context.Context, shopID, recipient, code string) error
	Consume(ctx context.Context, shopID, recipient string) (time.Duration, error)
	Restore(ctx context.Context, shopID, recipient string, ttl time.Duration) error
}

type BookingHandler struct {
	engine   *booking.Engine
	verifier Verifier
	logger   *slog.Logger
	// requireVerification makes public bookings spend a confirmed verification of the
	// customer's email (or phone when no email is given).
	requireVerification bool
}

func NewBookingHandler(engine *booking.Engine, verifier Verifier, logger *slog.Logger, requireVerification bool) *BookingHandler {
	return &BookingHandler{
		engine:              engine,
		verifier:            verifier,
		logger:              logger,
		requireVerification: requireVerification && verifier != nil,
	}
}

type serviceSelection struct {
	ServiceID         string   `json:"service_id"`
	ManualModifierIDs []string `json:"manual_modifier_ids"`
}

type customerContext struct {
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone"`
	Tags       map[string]string `json:"tags"`
	Age        *int              `json:"age"`
	FirstVisit bool              `json:"first_visit"`
}

func (c customerContext) modifierContext() modifier.Context {
	return modifier.Context{CustomerTags: c.Tags, CustomerAge: c.Age, IsFirstVisit: c.FirstVisit}
}

type createBookingRequest struct {
	ShopID    string             `json:"shop_id"`
	Date      string             `json:"date"`
	StartTime string             `json:"start_time"`
	Services  []serviceSelection `json:"services"`
	Customer  customerContext    `json:"customer"`
	Notes     string             `json:"notes"`
	LinkToken string             `json:"link_token"`
}

func toSelections(in []serviceSelection) []booking.ServiceSelection {
	out := make([]booking.ServiceSelection, 0, len(in))
	for _, s := range in {
		out = append(out, booking.ServiceSelection{ServiceID: strings.TrimSpace(s.ServiceID), ManualModifierIDs: s.ManualModifierIDs})
	}
	return out
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ShopID = strings.TrimSpace(req.ShopID)
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	if req.ShopID == "" || len(req.Services) == 0 || req.Customer.Name == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	date, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	start, err := interval.ParseClock(strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var recipient string
	var verifiedFor time.Duration
	if h.requireVerification {
		recipient = strings.TrimSpace(req.Customer.Email)
		if recipient == "" {
			recipient = strings.TrimSpace(req.Customer.Phone)
		}
		if recipient == "" {
			http.Error(w, "customer email or phone is required", http.StatusBadRequest)
			return
		}
		// Spent up front so two requests cannot share one verification.
		verifiedFor, err = h.verifier.Consume(ctx, req.ShopID, recipient)
		if err != nil {
			writeError(w, h.logger, "verification check failed", err)
			return
		}
	}

	res, err := h.engine.CreateBooking(ctx, booking.CreateRequest{
		ShopID:         req.ShopID,
		Date:           date,
		StartMinute:    start,
		Services:       toSelections(req.Services),
		Context:        req.Customer.modifierContext(),
		CustomerName:   req.Customer.Name,
		CustomerEmail:  req.Customer.Email,
		CustomerPhone:  req.Customer.Phone,
		Notes:          req.Notes,
		LinkToken:      req.LinkToken,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		if verifiedFor > 0 {
			if rerr := h.verifier.Restore(context.WithoutCancel(ctx), req.ShopID, recipient, verifiedFor); rerr != nil {
				h.logger.Warn("verification restore failed", "shop_id", req.ShopID, "err", rerr)
			}
		}
		writeError(w, h.logger, "failed to create booking", err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toBookingItem(res.Booking))
}

type quoteRequest struct {
	ShopID   string             `json:"shop_id"`
	Services []serviceSelection `json:"services"`
	Customer customerContext    `json:"customer"`
}

type modifierItem struct {
	ModifierID string `json:"modifier_id"`
	Name       string `json:"name,omitempty"`
	Duration   int    `json:"duration"`
	Price      string `json:"price"`
}

type quoteLineItem struct {
	ServiceID         string         `json:"service_id"`
	ServiceName       string         `json:"service_name"`
	BaseDuration      int            `json:"base_duration"`
	BasePrice         string         `json:"base_price"`
	EffectiveDuration int            `json:"effective_duration"`
	EffectivePrice    string         `json:"effective_price"`
	Applied           []modifierItem `json:"applied"`
	Manual            []modifierItem `json:"manual"`
}

type quoteResponse struct {
	DurationMinutes int             `json:"duration_minutes"`
	Price           string          `json:"price"`
	Lines           []quoteLineItem `json:"lines"`
}

func toQuoteResponse(q booking.Quote) quoteResponse {
	resp := quoteResponse{DurationMinutes: q.Duration, Price: q.Price.StringFixed(2), Lines: make([]quoteLineItem, 0, len(q.Lines))}
	for _, line := range q.Lines {
		item := quoteLineItem{
			ServiceID:         line.Service.ID,
			ServiceName:       line.Service.Name,
			BaseDuration:      line.Result.BaseDuration,
			BasePrice:         line.Result.BasePrice.StringFixed(2),
			EffectiveDuration: line.Result.EffectiveDuration,
			EffectivePrice:    line.Result.EffectivePrice.StringFixed(2),
			Applied:           make([]modifierItem, 0, len(line.Result.Applied)),
			Manual:            make([]modifierItem, 0, len(line.Result.Manual)),
		}
		for _, a := range line.Result.Applied {
			item.Applied = append(item.Applied, modifierItem{ModifierID: a.ModifierID, Duration: a.Duration, Price: a.Price.StringFixed(2)})
		}
		for _, m := range line.Result.Manual {
			item.Manual = append(item.Manual, modifierItem{ModifierID: m.ID, Name: m.Name, Duration: m.DurationModifier, Price: m.PriceModifier.StringFixed(2)})
		}
		resp.Lines = append(resp.Lines, item)
	}
	return resp
}

func (h *BookingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req quoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ShopID) == "" || len(req.Services) == 0 {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	q, err := h.engine.Quote(r.Context(), strings.TrimSpace(req.ShopID), toSelections(req.Services), req.Customer.modifierContext())
	if err != nil {
		writeError(w, h.logger, "failed to quote services", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

type availabilityResponse struct {
	ShopID string                    `json:"shop_id"`
	From   string                    `json:"from"`
	To     string                    `json:"to"`
	Days   map[string][]intervalItem `json:"days"`
}

func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	shopID := shopIDFrom(r)
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	free, err := h.engine.GetAvailability(r.Context(), shopID, from, to)
	if err != nil {
		writeError(w, h.logger, "failed to compute availability", err)
		return
	}
	days := make(map[string][]intervalItem, len(free))
	for date, ivs := range free {
		days[date] = intervalItems(ivs)
	}
	writeJSON(w, http.StatusOK, availabilityResponse{ShopID: shopID, From: model.DateKey(from), To: model.DateKey(to), Days: days})
}

type slotsResponse struct {
	ShopID          string   `json:"shop_id"`
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes"`
	Price           string   `json:"price"`
	Slots           []string `json:"slots"`
}

// Slots lists bookable start times. service_id may repeat or be comma separated;
// first_visit, age and tag (key or key:value, repeatable) describe the customer.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	shopID := shopIDFrom(r)
	var selections []booking.ServiceSelection
	for _, raw := range q["service_id"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				selections = append(selections, booking.ServiceSelection{ServiceID: id})
			}
		}
	}
	if shopID == "" || len(selections) == 0 {
		http.Error(w, "shop_id and service_id are required", http.StatusBadRequest)
		return
	}
	date, err := model.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	step := 0
	if raw := strings.TrimSpace(q.Get("step_minutes")); raw != "" {
		if step, err = strconv.Atoi(raw); err != nil || step <= 0 || step > 240 {
			http.Error(w, "invalid step_minutes", http.StatusBadRequest)
			return
		}
	}
	mctx, err := customerFromQuery(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	starts, quote, err := h.engine.Slots(r.Context(), shopID, date, selections, mctx, step)
	if err != nil {
		writeError(w, h.logger, "failed to compute slots", err)
		return
	}
	resp := slotsResponse{
		ShopID:          shopID,
		Date:            model.DateKey(date),
		DurationMinutes: quote.Duration,
		Price:           quote.Price.StringFixed(2),
		Slots:           make([]string, 0, len(starts)),
	}
	for _, s := range starts {
		resp.Slots = append(resp.Slots, interval.FormatClock(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func customerFromQuery(q map[string][]string) (modifier.Context, error) {
	var mctx modifier.Context
	first := ""
	if v := q["first_visit"]; len(v) > 0 {
		first = strings.TrimSpace(v[0])
	}
	if first != "" {
		b, err := strconv.ParseBool(first)
		if err != nil {
			return mctx, errors.New("invalid first_visit")
		}
		mctx.IsFirstVisit = b
	}
	if v := q["age"]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
		age, err := strconv.Atoi(strings.TrimSpace(v[0]))
		if err != nil || age < 0 {
			return mctx, errors.New("invalid age")
		}
		mctx.CustomerAge = &age
	}
	for _, tag := range q["tag"] {
		key, value, _ := strings.Cut(tag, ":")
		if key = strings.TrimSpace(key); key == "" {
			continue
		}
		if mctx.CustomerTags == nil {
			mctx.CustomerTags = make(map[string]string)
		}
		mctx.CustomerTags[key] = strings.TrimSpace(value)
	}
	return mctx, nil
}

type linkResponse struct {
	ShopID        string `json:"shop_id"`
	ExpiresAt     string `json:"expires_at"`
	RemainingUses *int   `json:"remaining_uses,omitempty"`
}

func (h *BookingHandler) ValidateLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	link, err := h.engine.ValidateLink(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, h.logger, "failed to validate link", err)
		return
	}
	resp := linkResponse{ShopID: link.ShopID, ExpiresAt: link.ExpiresAt.UTC().Format(time.RFC3339)}
	if link.MaxUses != nil {
		remaining := *link.MaxUses - link.CurrentUses
		resp.RemainingUses = &remaining
	}
	writeJSON(w, http.StatusOK, resp)
}
