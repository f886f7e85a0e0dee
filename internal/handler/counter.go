package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hello-counter/internal/model"
)

const (
	greetingMessage = "Hello, World!!!"
	receivedMessage = "POST request received!"
)

// CounterStore is the persistence contract the counter routes depend on.
// *repository.CounterRepo satisfies it.
type CounterStore interface {
	Read(ctx context.Context) (int64, error)
	Increment(ctx context.Context) (int64, error)
}

// CounterHandler serves GET / and POST /. It holds no state of its own;
// every request goes to the store.
type CounterHandler struct {
	Store CounterStore
	Log   *zap.Logger
}

// NewCounterHandler constructs a CounterHandler. A nil logger is replaced
// with a no-op logger.
func NewCounterHandler(store CounterStore, logger *zap.Logger) *CounterHandler {
	if store == nil {
		panic("nil store passed to NewCounterHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterHandler{Store: store, Log: logger}
}

// Hello handles GET /. It returns the greeting together with the current
// number of POST requests.
func (h *CounterHandler) Hello(c echo.Context) error {
	n, err := h.Store.Read(c.Request().Context())
	if err != nil {
		return h.storageError(c, "read counter", err)
	}
	return c.JSON(http.StatusOK, model.CounterResponse{
		Message:          greetingMessage,
		PostRequestCount: n,
	})
}

// Increment handles POST /. It bumps the counter and echoes the new value.
func (h *CounterHandler) Increment(c echo.Context) error {
	n, err := h.Store.Increment(c.Request().Context())
	if err != nil {
		return h.storageError(c, "increment counter", err)
	}
	return c.JSON(http.StatusOK, model.CounterResponse{
		Message:          receivedMessage,
		PostRequestCount: n,
	})
}

// storageError logs err and answers 500 without a count, so a client can
// never mistake a failure for a real value.
func (h *CounterHandler) storageError(c echo.Context, op string, err error) error {
	h.Log.Error(op+" failed",
		zap.Error(err),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
}
