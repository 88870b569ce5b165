package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/keypad-calculator/internal/calculator"
	"github.com/eugenenazirov/keypad-calculator/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	// maxEventsPerRequest bounds how many key presses a single request may carry.
	maxEventsPerRequest = 256
	maxKeysLength       = 1024
	maxRequestBodyBytes = 16 << 10
)

var errInvalidEvent = errors.New("invalid event")

// Handler wires the session store into HTTP handlers.
type Handler struct {
	storage storage.Storage
	logger  *zap.Logger

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		storage: store,
		logger:  zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
		Sessions:  h.storage.Len(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.storage.Create()
	if err != nil {
		if errors.Is(err, storage.ErrTooManySessions) {
			writeError(w, http.StatusTooManyRequests, "Too many sessions", err.Error(), "Delete an unused session or retry later")
			return
		}
		writeInternalError(w, err)
		return
	}

	h.logger.Debug("session created",
		zap.String("session_id", snap.ID),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)
	writeJSON(w, http.StatusCreated, newSessionResponse(snap))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.storage.Get(r.PathValue("id"))
	if err != nil {
		h.writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(snap))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.storage.Delete(id); err != nil {
		h.writeStorageError(w, err)
		return
	}

	h.logger.Debug("session deleted",
		zap.String("session_id", id),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePostEvents(w http.ResponseWriter, r *http.Request) {
	var req eventsRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large",
				fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	events, err := req.toEvents()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid events", err.Error())
		return
	}

	snap, err := h.storage.Apply(r.PathValue("id"), func(e *calculator.Engine) error {
		for i, ev := range events {
			if err := e.Dispatch(ev); err != nil {
				return fmt.Errorf("event %d (%s): %w", i, ev, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			h.writeStorageError(w, err)
			return
		}
		writeCalculationError(w, snap, err)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(snap))
}

func (h *Handler) writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found", err.Error())
		return
	}
	writeInternalError(w, err)
}

func writeCalculationError(w http.ResponseWriter, snap storage.Snapshot, err error) {
	resp := errorResponse{
		Error:   "Calculation error",
		Details: err.Error(),
		Display: snap.Display,
	}
	switch {
	case errors.Is(err, calculator.ErrDivisionByZero), errors.Is(err, calculator.ErrNeedsClear):
		resp.Suggestion = "Send a clear event to reset the calculator"
	case errors.Is(err, calculator.ErrDigitLimit):
		resp.Suggestion = "The operand is full; choose an operator or evaluate"
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// eventsRequest carries either structured events or a keypad string, not both.
type eventsRequest struct {
	Events []eventPayload `json:"events"`
	Keys   string         `json:"keys"`
}

type eventPayload struct {
	Type     string `json:"type"`
	Digit    *int   `json:"digit,omitempty"`
	Operator string `json:"operator,omitempty"`
}

func (req eventsRequest) toEvents() ([]calculator.Event, error) {
	if len(req.Events) > 0 && req.Keys != "" {
		return nil, fmt.Errorf("%w: provide either events or keys", errInvalidEvent)
	}

	if len(req.Keys) > maxKeysLength {
		return nil, fmt.Errorf("%w: keys longer than %d bytes", errInvalidEvent, maxKeysLength)
	}

	var events []calculator.Event
	if req.Keys != "" {
		parsed, err := calculator.ParseKeys(req.Keys)
		if err != nil {
			return nil, err
		}
		events = parsed
	} else {
		events = make([]calculator.Event, 0, len(req.Events))
		for i, p := range req.Events {
			ev, err := p.toEvent()
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
			events = append(events, ev)
		}
	}

	if len(events) == 0 {
		return nil, fmt.Errorf("%w: at least one event is required", errInvalidEvent)
	}
	if len(events) > maxEventsPerRequest {
		return nil, fmt.Errorf("%w: at most %d events per request", errInvalidEvent, maxEventsPerRequest)
	}
	return events, nil
}

func (p eventPayload) toEvent() (calculator.Event, error) {
	switch p.Type {
	case "digit":
		if p.Digit == nil {
			return calculator.Event{}, fmt.Errorf("%w: digit event without digit", errInvalidEvent)
		}
		if *p.Digit < 0 || *p.Digit > 9 {
			return calculator.Event{}, fmt.Errorf("%w: %d", calculator.ErrInvalidDigit, *p.Digit)
		}
		return calculator.DigitEvent(*p.Digit), nil
	case "operator":
		op, err := calculator.ParseOperator(p.Operator)
		if err != nil {
			return calculator.Event{}, err
		}
		return calculator.OperatorEvent(op), nil
	case "evaluate":
		return calculator.EvaluateEvent(), nil
	case "clear":
		return calculator.ClearEvent(), nil
	default:
		return calculator.Event{}, fmt.Errorf("%w: unknown type %q", errInvalidEvent, p.Type)
	}
}

type sessionResponse struct {
	ID              string    `json:"id"`
	Display         string    `json:"display"`
	PendingOperator string    `json:"pendingOperator,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newSessionResponse(snap storage.Snapshot) sessionResponse {
	resp := sessionResponse{
		ID:              snap.ID,
		Display:         snap.Display,
		PendingOperator: snap.Pending.String(),
		CreatedAt:       snap.CreatedAt,
		UpdatedAt:       snap.UpdatedAt,
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	return resp
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Sessions  int       `json:"sessions"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Display    string `json:"display,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
