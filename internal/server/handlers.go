package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chative-food/server/internal/agent/model"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/store"
	logx "github.com/chative-food/server/pkg/logger"
)

type chatRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type orderRequest struct {
	PhoneNumber    string              `json:"phone_number"`
	RestaurantID   string              `json:"restaurant_id"`
	SelectedDishes []domain.DishDetail `json:"selectedDishes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		phone = s.cfg.DefaultPhone
	}
	if !domain.ValidCustomerPhone(phone) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "A valid phone_number is required"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No message provided"})
		return
	}

	res, err := s.deps.Runner.Invoke(r.Context(), model.QueryInput{ConversationID: phone, Query: req.Message})
	if err != nil {
		if errors.Is(err, errx.ErrValidation) {
			writeError(w, err)
			return
		}
		logx.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Str("conversation_id", phone).Msg("chat turn failed")
		writeJSON(w, errx.StatusOf(err), errorResponse{Error: errx.TurnFailedMessage})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: res.Reply})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Store.Users.Find(r.Context(), store.Filter{}, store.WithPage(page(r), PageSize))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var u domain.User
	if !decodeBody(w, r, &u) {
		return
	}
	u.ID = ""
	u.Normalize()
	if err := u.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Store.Users.Save(r.Context(), &u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) listRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants, err := s.deps.Store.Restaurants.Find(r.Context(), store.Filter{}, store.WithPage(page(r), PageSize))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(restaurants))
}

func (s *Server) createRestaurant(w http.ResponseWriter, r *http.Request) {
	var rest domain.Restaurant
	if !decodeBody(w, r, &rest) {
		return
	}
	rest.ID = ""
	if err := rest.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Store.Restaurants.Save(r.Context(), &rest); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rest)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{}
	if phone := strings.TrimSpace(r.URL.Query().Get("phone_number")); phone != "" {
		filter["customer_details.phone"] = phone
	}
	orders, err := s.deps.Store.Orders.Find(r.Context(), filter, store.WithPage(page(r), PageSize))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.deps.Store.OrderByOrderID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// createOrder places an order outside the chat. A draft the user is building
// in chat is left as is.
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		writeError(w, errx.Validation("phone_number is required"))
		return
	}
	if len(req.SelectedDishes) == 0 {
		writeError(w, errx.Validation("selectedDishes must not be empty"))
		return
	}

	order, err := s.deps.Drafts.Place(r.Context(), phone, strings.TrimSpace(req.RestaurantID), req.SelectedDishes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func page(r *http.Request) int {
	p, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || p < 1 {
		return 1
	}
	return p
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Warn().Err(err).Msg("failed to encode response")
	}
}

// writeError answers with the AppError status. Internal and storage errors
// never leak their cause.
func writeError(w http.ResponseWriter, err error) {
	status := errx.StatusOf(err)
	msg := errx.SystemErrorMessage
	var appErr *errx.AppError
	if errors.As(err, &appErr) && status < http.StatusInternalServerError && appErr.Message != "" {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
