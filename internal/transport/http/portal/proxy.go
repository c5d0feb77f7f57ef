package portal

import (
	"io"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/booking-portal/internal/apiclient"
	"github.com/ErlanBelekov/booking-portal/internal/apierr"
	"github.com/gin-gonic/gin"
)

const maxProxyBody = 10 << 20

// Session transitions go through /auth/* so the manager sees them.
var reservedPaths = map[string]bool{
	apiclient.LoginEndpoint:    true,
	apiclient.RegisterEndpoint: true,
	apiclient.RefreshEndpoint:  true,
	apiclient.LogoutEndpoint:   true,
}

// Proxy forwards /api/v1/* to the backend through the client, so every call
// carries the stored credentials and gets the refresh and backoff behavior.
func (h *Handler) Proxy(c *gin.Context) {
	path := c.Request.URL.Path
	if reservedPaths[path] || reservedPaths[path+"/"] {
		c.JSON(http.StatusNotFound, apierr.Error{Message: "Not found."})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxProxyBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, apierr.Error{Message: "Request body too large."})
		return
	}

	req := &apiclient.Request{
		Method:      c.Request.Method,
		Path:        path,
		Header:      http.Header{},
		Query:       c.Request.URL.Query(),
		Body:        body,
		ContentType: c.GetHeader("Content-Type"),
		Binary:      strings.Contains(c.GetHeader("Accept"), "application/octet-stream"),
	}
	if accept := c.GetHeader("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := h.api.Do(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if loc := location(c); loc != "" {
		c.Header(redirectHeader, loc)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		c.Header("Content-Disposition", cd)
	}
	c.Data(resp.StatusCode, ct, resp.Body)
}
