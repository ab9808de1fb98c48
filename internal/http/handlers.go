package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/tour-bookings/internal/booking"
	"github.com/robertarktes/tour-bookings/internal/config"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/idempotency"
	"github.com/robertarktes/tour-bookings/internal/search"
)

type Booker interface {
	Book(ctx context.Context, req booking.Request) (*booking.Confirmation, error)
	Get(ctx context.Context, id uuid.UUID) (domain.BookedTour, error)
	ListByUser(ctx context.Context, userID string) ([]domain.BookedTour, error)
}

type HotelReader interface {
	Hotel(ctx context.Context, id int64) (domain.Hotel, error)
	Hotels(ctx context.Context, ids []int64) ([]domain.Hotel, error)
	Invalidate(ctx context.Context, ids ...int64)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	cfg      *config.Config
	search   *search.Engine
	hotels   HotelReader
	bookings Booker
	idemp    *idempotency.Idempotency
	db       Pinger
	validate *validator.Validate
}

func NewHandlers(cfg *config.Config, engine *search.Engine, hotels HotelReader, bookings Booker, idemp *idempotency.Idempotency, db Pinger) *Handlers {
	return &Handlers{
		cfg:      cfg,
		search:   engine,
		hotels:   hotels,
		bookings: bookings,
		idemp:    idemp,
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handlers) ListTours(w http.ResponseWriter, r *http.Request) {
	results, err := h.search.All(r.Context())
	h.respondTours(w, r, results, err)
}

func (h *Handlers) ActualTours(w http.ResponseWriter, r *http.Request) {
	results, err := h.search.Actual(r.Context(), h.cfg.ActualTourDiscount)
	h.respondTours(w, r, results, err)
}

func (h *Handlers) SearchTours(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := req.criteria()
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := h.search.Collect(r.Context(), c)
	h.respondTours(w, r, results, err)
}

func (h *Handlers) ToursByCountry(w http.ResponseWriter, r *http.Request) {
	results, err := h.search.ByCountry(r.Context(), chi.URLParam(r, "country"))
	h.respondTours(w, r, results, err)
}

func (h *Handlers) ToursByPrice(w http.ResponseWriter, r *http.Request) {
	low, err := decimalParam(r, "min")
	if err != nil {
		writeError(w, r, err)
		return
	}
	high, err := decimalParam(r, "max")
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := h.search.ByPriceRange(r.Context(), low, high)
	h.respondTours(w, r, results, err)
}

func (h *Handlers) ToursByRating(w http.ResponseWriter, r *http.Request) {
	results, err := h.search.ByRating(r.Context(), r.URL.Query().Get("rating"))
	h.respondTours(w, r, results, err)
}

func (h *Handlers) GetHotel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, errors.Mark(errors.Wrap(err, "hotel id"), domain.ErrInvalidInput))
		return
	}
	hotel, err := h.hotels.Hotel(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHotel(hotel))
}

func (h *Handlers) ListHotels(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	for _, part := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			writeError(w, r, errors.Mark(errors.Wrapf(err, "hotel id %q", part), domain.ErrInvalidInput))
			return
		}
		ids = append(ids, id)
	}
	hotels, err := h.hotels.Hotels(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]hotelDTO, 0, len(hotels))
	for _, hotel := range hotels {
		out = append(out, toHotel(hotel))
	}
	writeJSON(w, http.StatusOK, out)
}

// bookingNamespace derives booking ids from idempotency keys, so a retry
// whose first attempt committed without an answer finds that booking.
var bookingNamespace = uuid.MustParse("6f1c2a7e-3b0d-4c52-9a8e-1d7f4e2b9c31")

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	var req bookingRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	fingerprint := req.fingerprint()
	if h.replayed(w, r, key, fingerprint) {
		return
	}

	claimed, err := h.idemp.Begin(r.Context(), key)
	if err != nil {
		writeError(w, r, domain.StorageFailure(err, "claim idempotency key"))
		return
	}
	if !claimed {
		writeError(w, r, errors.Wrap(domain.ErrConflict, "a request with this Idempotency-Key is in progress"))
		return
	}
	defer func() {
		if err := h.idemp.Release(context.WithoutCancel(r.Context()), key); err != nil {
			loggerFrom(r.Context()).WithError(err).Warn("failed to release idempotency key")
		}
	}()
	// The request that held the key before us may have stored its answer
	// after our first read.
	if h.replayed(w, r, key, fingerprint) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.BookingTimeout)
	defer cancel()
	conf, err := h.bookings.Book(ctx, booking.Request{
		ID:      uuid.NewSHA1(bookingNamespace, []byte(key)),
		TourID:  req.TourID,
		HotelID: req.HotelID,
		Persons: req.Persons,
		UserID:  req.UserID,
	})

	status, body := http.StatusCreated, []byte(nil)
	if err != nil {
		status, body = errorBody(err)
		loggerFrom(r.Context()).WithField("reason", domain.Reason(err)).WithError(err).Info("booking rejected")
	} else {
		h.hotels.Invalidate(r.Context(), req.HotelID)
		body, _ = json.Marshal(bookingResponse{
			BookingID:  conf.Booking.ID,
			TotalPrice: conf.Booking.TotalPrice.StringFixed(2),
			UnitPrice:  conf.UnitPrice.StringFixed(2),
			State:      string(conf.State),
		})
		if conf.Replayed {
			w.Header().Set("Idempotent-Replayed", "true")
		}
	}
	writeRaw(w, status, body)

	stored := idempotency.Response{Status: status, Result: body, Fingerprint: fingerprint}
	if serr := h.idemp.Set(context.WithoutCancel(r.Context()), key, stored); serr != nil {
		loggerFrom(r.Context()).WithError(serr).Warn("failed to store idempotent response")
	}
}

// replayed answers from the response stored for key, if there is one. A
// key first used for a different request gets 422.
func (h *Handlers) replayed(w http.ResponseWriter, r *http.Request, key, fingerprint string) bool {
	stored, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, r, domain.StorageFailure(err, "read idempotency key"))
		return true
	}
	if stored == nil {
		return false
	}
	if stored.Fingerprint != "" && stored.Fingerprint != fingerprint {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "idempotency_key_reused",
			Message: "Idempotency-Key was already used for a different request",
		})
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Result)
	return true
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, errors.Mark(errors.Wrap(err, "booking id"), domain.ErrInvalidInput))
		return
	}
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBooking(b))
}

func (h *Handlers) UserBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]bookingDTO, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBooking(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		loggerFrom(r.Context()).WithError(err).Warn("readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) respondTours(w http.ResponseWriter, r *http.Request, results []search.Result, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTours(results))
}

// decode reads a JSON body into v and validates it. Both failures are
// invalid input.
func (h *Handlers) decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Mark(errors.Wrap(err, "decode request"), domain.ErrInvalidInput)
	}
	if err := h.validate.Struct(v); err != nil {
		return errors.Mark(errors.Wrap(err, "validate request"), domain.ErrInvalidInput)
	}
	return nil
}

func decimalParam(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s %q", name, raw), domain.ErrInvalidInput)
	}
	return &d, nil
}

func statusFor(reason string) int {
	switch reason {
	case "invalid_input":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "insufficient_capacity", "conflict":
		return http.StatusConflict
	case "invalid_pricing_input":
		return http.StatusUnprocessableEntity
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	State   string `json:"state,omitempty"`
}

func errorBody(err error) (int, []byte) {
	reason := domain.Reason(err)
	resp := errorResponse{Error: reason, Message: err.Error()}
	var rej *booking.Rejection
	if errors.As(err, &rej) {
		resp.State = string(rej.State)
	}
	if reason == "storage_failure" {
		resp.Message = "temporarily unavailable, retry later"
	}
	body, _ := json.Marshal(resp)
	return statusFor(reason), body
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		loggerFrom(r.Context()).WithError(err).Error("request failed")
	}
	writeRaw(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, buf.Bytes())
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
