package server

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

// the demo page is embedded so the binary remains self-contained
//
//go:embed static/index.html
var indexHTML []byte

func (s *Server) handleIndex(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, indexHTML)
}
