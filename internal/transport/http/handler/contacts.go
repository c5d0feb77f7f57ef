package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/gin-gonic/gin"
)

const maxContactsUpload = 5 << 20

type contactsUsecaser interface {
	Import(ctx context.Context, userID string, r io.Reader) (*domain.ImportResult, error)
	Export(ctx context.Context, userID string, w io.Writer) error
}

type ContactsHandler struct {
	uc     contactsUsecaser
	logger *slog.Logger
}

func NewContactsHandler(uc contactsUsecaser, logger *slog.Logger) *ContactsHandler {
	return &ContactsHandler{uc: uc, logger: logger.With("component", "contacts_handler")}
}

// POST /api/v1/contacts/import/ (multipart, field "file")
func (h *ContactsHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxContactsUpload)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        errInvalidInput,
			"code":         "validation_error",
			"field_errors": map[string][]string{"file": {"No file was submitted."}},
		})
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer f.Close()

	res, err := h.uc.Import(c.Request.Context(), c.GetString("userID"), f)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// GET /api/v1/contacts/export/
func (h *ContactsHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.uc.Export(c.Request.Context(), c.GetString("userID"), &buf); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="contacts.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
