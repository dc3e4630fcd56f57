package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/speedfmt/fmtd/dispatch"
)

// formatRequest is the body of POST /format.
type formatRequest struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	Formatter string `json:"formatter,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// formatResponse is returned when formatting succeeds.
type formatResponse struct {
	FormattedCode   string `json:"formatted_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	FormatterUsed   string `json:"formatter_used"`
	Status          string `json:"status"`
}

// errorResponse is returned for any failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleFormat(c echo.Context) error {
	var req formatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "Invalid request",
			Details: err.Error(),
		})
	}

	done := s.metrics.TrackInFlight()
	defer done()

	s.log.Info(
		"formatting",
		"language", req.Language,
		"formatter", req.Formatter,
		"filename", req.Filename,
		"bytes", len(req.Code),
	)

	start := time.Now()

	res, err := s.dispatcher.Dispatch(c.Request().Context(), dispatch.Request{
		Code:      req.Code,
		Language:  req.Language,
		Formatter: req.Formatter,
		Filename:  req.Filename,
	})

	// measured at the edge so it covers selection, queueing and the run
	elapsed := time.Since(start)

	if err != nil {
		return s.formatError(c, &req, err, elapsed)
	}

	s.metrics.RecordFormat(req.Language, res.FormatterUsed, "success", elapsed)
	s.log.Info("formatted", "formatter", res.FormatterUsed, "duration", elapsed)

	return c.JSON(http.StatusOK, formatResponse{
		FormattedCode:   res.Output,
		ExecutionTimeMs: elapsed.Milliseconds(),
		FormatterUsed:   res.FormatterUsed,
		Status:          "success",
	})
}

// formatError maps dispatch failures onto the wire. Selection failures are
// the caller's fault and carry the selection error verbatim; anything after
// selection is reported as a formatting failure.
func (s *Server) formatError(c echo.Context, req *formatRequest, err error, elapsed time.Duration) error {
	s.log.Errorf("formatting failed: %v", err)

	var (
		unsupported *dispatch.UnsupportedLanguageError
		unknown     *dispatch.UnknownFormatterError
		unmatched   *dispatch.UnmatchedFilenameError
		timeout     *dispatch.TimeoutError
		rejection   *dispatch.RejectionError
	)

	switch {
	case errors.As(err, &unsupported):
		s.metrics.RecordFormat(req.Language, "", "unsupported", elapsed)

		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "Unsupported language",
			Details: err.Error(),
		})

	case errors.As(err, &unknown):
		s.metrics.RecordFormat(req.Language, "", "unsupported", elapsed)

		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "Unknown formatter",
			Details: err.Error(),
		})

	case errors.As(err, &unmatched):
		s.metrics.RecordFormat(req.Language, "", "unsupported", elapsed)

		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "Unsupported filename",
			Details: err.Error(),
		})

	case errors.As(err, &timeout):
		s.metrics.RecordFormat(req.Language, timeout.Formatter, "timeout", elapsed)

		return c.JSON(http.StatusGatewayTimeout, errorResponse{
			Error:   "Formatting timed out",
			Details: err.Error(),
		})

	case errors.As(err, &rejection):
		s.metrics.RecordFormat(req.Language, "", "rejected", elapsed)

		return c.JSON(http.StatusInternalServerError, errorResponse{
			Error:   "Formatting failed",
			Details: err.Error(),
		})

	default:
		s.metrics.RecordFormat(req.Language, "", "error", elapsed)

		return c.JSON(http.StatusInternalServerError, errorResponse{
			Error:   "Formatting failed",
			Details: err.Error(),
		})
	}
}
