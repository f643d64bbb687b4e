package control

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roach88/mallet/internal/engine"
	"github.com/roach88/mallet/internal/event"
	"github.com/roach88/mallet/internal/view"
)

// ConnectionInfo summarizes one connection.
type ConnectionInfo struct {
	ID       string    `json:"id"`
	Accepted time.Time `json:"accepted"`
	Events   int       `json:"events"`
	Pending  int       `json:"pending"`
	Closed   bool      `json:"closed"`
}

// ResolveResponse is returned by the drop and execute endpoints, also on
// failure, so partial progress is visible.
type ResolveResponse struct {
	Result engine.Result `json:"result"`
	Error  *ErrorBody    `json:"error,omitempty"`
}

// ErrorBody is the JSON error payload.
type ErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ListConnections returns every connection in accept order.
func (s *Server) ListConnections(c echo.Context) error {
	conns := s.registry.List()
	out := make([]ConnectionInfo, 0, len(conns))
	for _, conn := range conns {
		out = append(out, ConnectionInfo{
			ID:       conn.ID,
			Accepted: conn.Accepted,
			Events:   conn.Store.Size(),
			Pending:  conn.Store.PendingCount(),
			Closed:   conn.Store.Retired(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// ListEvents returns the display rows of a connection.
func (s *Server) ListEvents(c echo.Context) error {
	conn, err := s.connection(c)
	if err != nil {
		return err
	}
	rows, err := view.ProjectAll(conn.Store)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

// Drop drops pending events up to ?upto=n, or the next pending event.
func (s *Server) Drop(c echo.Context) error {
	conn, err := s.connection(c)
	if err != nil {
		return err
	}
	upTo, err := parseUpTo(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var res engine.Result
	if upTo == engine.Next {
		res, err = conn.Controller.DropNextEvent(ctx)
	} else {
		res, err = conn.Controller.DropNextEvents(ctx, upTo)
	}
	return s.resolved(c, res, err)
}

// Execute delivers pending events up to ?upto=n, or the next pending event.
func (s *Server) Execute(c echo.Context) error {
	conn, err := s.connection(c)
	if err != nil {
		return err
	}
	upTo, err := parseUpTo(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var res engine.Result
	if upTo == engine.Next {
		res, err = conn.Controller.ExecuteNextEvent(ctx, nil)
	} else {
		res, err = conn.Controller.ExecuteNextEvents(ctx, upTo, nil)
	}
	return s.resolved(c, res, err)
}

// SetMessage replaces a pending message's payload with the request body.
func (s *Server) SetMessage(c echo.Context) error {
	conn, err := s.connection(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
	}

	e, err := conn.Store.Get(index)
	if err != nil {
		return s.fail(c, err)
	}
	msg, ok := e.(*event.MessageEvent)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "event "+strconv.Itoa(index)+" is not a message")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			// body limit exceeded mid-stream
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}
	if err := msg.SetMessage(event.NewBuffer(body)); err != nil {
		// the event did not take the buffer; nothing else holds it
		return s.fail(c, err)
	}
	conn.Store.NotifyUpdated(index, index)
	s.logger.Info("message replaced", "connection", conn.ID, "index", index, "size", len(body))

	row, err := view.Project(conn.Store, index)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, row)
}

// ListJournal returns recorded decisions, filtered by ?connection=id.
func (s *Server) ListJournal(c echo.Context) error {
	if s.journal == nil {
		return echo.NewHTTPError(http.StatusNotFound, "journal disabled")
	}
	entries, err := s.journal.List(c.Request().Context(), c.QueryParam("connection"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// JournalCounts returns decision counts per outcome.
func (s *Server) JournalCounts(c echo.Context) error {
	if s.journal == nil {
		return echo.NewHTTPError(http.StatusNotFound, "journal disabled")
	}
	counts, err := s.journal.Counts(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) connection(c echo.Context) (*engine.Connection, error) {
	conn, ok := s.registry.Get(c.Param("id"))
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "connection not found")
	}
	return conn, nil
}

func parseUpTo(c echo.Context) (int, error) {
	raw := c.QueryParam("upto")
	if raw == "" {
		return engine.Next, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "upto must be a non-negative integer")
	}
	return n, nil
}

// resolved writes a ResolveResponse with the status for err.
func (s *Server) resolved(c echo.Context, res engine.Result, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, ResolveResponse{Result: res})
	}
	s.logger.Warn("resolution failed", "connection", c.Param("id"), "resolved", res.Resolved, "error", err)
	return c.JSON(statusFor(err), ResolveResponse{Result: res, Error: bodyFor(err)})
}

func (s *Server) fail(c echo.Context, err error) error {
	return c.JSON(statusFor(err), map[string]*ErrorBody{"error": bodyFor(err)})
}

// statusFor maps interception error codes to HTTP statuses.
func statusFor(err error) int {
	switch event.CodeOf(err) {
	case event.ErrCodeInvalidIndex:
		return http.StatusNotFound
	case event.ErrCodeAlreadyExecuted, event.ErrCodeEditorCommitFailure:
		return http.StatusConflict
	case event.ErrCodeDeliveryFailure:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func bodyFor(err error) *ErrorBody {
	return &ErrorBody{Code: string(event.CodeOf(err)), Message: err.Error()}
}
