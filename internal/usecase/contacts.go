package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/repository"
	"github.com/go-playground/validator/v10"
)

var contactHeader = []string{"name", "email", "phone"}

type ContactsUsecase struct {
	repo     repository.ContactRepository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewContactsUsecase(repo repository.ContactRepository, logger *slog.Logger) *ContactsUsecase {
	return &ContactsUsecase{
		repo:     repo,
		validate: validator.New(),
		logger:   logger.With("component", "contacts_usecase"),
	}
}

// Import reads a CSV with a header row naming at least "email". Rows with
// a bad address are skipped and reported; the rest are stored.
func (u *ContactsUsecase) Import(ctx context.Context, userID string, r io.Reader) (*domain.ImportResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadContactsFile, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["email"]; !ok {
		return nil, fmt.Errorf("%w: no email column", domain.ErrBadContactsFile)
	}

	res := &domain.ImportResult{}
	var contacts []domain.Contact
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrBadContactsFile, err)
		}

		ct := domain.Contact{
			Name:  field(rec, cols, "name"),
			Email: field(rec, cols, "email"),
			Phone: field(rec, cols, "phone"),
		}
		if err := u.validate.Var(ct.Email, "required,email"); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: invalid email %q", line, ct.Email))
			continue
		}
		if ct.Name == "" {
			ct.Name = ct.Email
		}
		contacts = append(contacts, ct)
	}

	if len(contacts) > 0 {
		if err := u.repo.Upsert(ctx, userID, contacts); err != nil {
			return nil, err
		}
	}
	res.Imported = len(contacts)

	u.logger.InfoContext(ctx, "contacts imported", "user_id", userID, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}

// Export writes every contact of the user as CSV with a header row.
func (u *ContactsUsecase) Export(ctx context.Context, userID string, w io.Writer) error {
	contacts, err := u.repo.List(ctx, userID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(contactHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, ct := range contacts {
		if err := cw.Write([]string{ct.Name, ct.Email, ct.Phone}); err != nil {
			return fmt.Errorf("write contact: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
