package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/expense-scanner/internal/auth"
	"github.com/zombor/expense-scanner/internal/scanning"
)

const minPasswordLength = 8

var (
	// ErrEmailTaken is returned when registering an email that already has an account
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidRegistration is returned when an email or password is not acceptable
	ErrInvalidRegistration = errors.New("invalid registration")

	// ErrInvalidCredentials is returned when an email and password do not match
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrInvalidExpense is returned when expense fields fail validation
	ErrInvalidExpense = errors.New("invalid expense")
)

// Extractor turns receipt bytes into an extraction result
type Extractor interface {
	Extract(ctx context.Context, data []byte, mediaType string, name string) (*scanning.ExtractionResult, error)
}

// TokenIssuer issues and verifies bearer tokens whose subject is the user email
type TokenIssuer interface {
	Issue(subject string) (string, error)
	Verify(token string) (string, error)
}

// IDGenerator generates unique IDs for users and expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service handles accounts, expenses and receipt scanning
type Service struct {
	db           DB
	extractor    Extractor
	tokens       TokenIssuer
	passwordCost int
	idGenerator  IDGenerator
	timeSource   TimeSource
}

// NewService creates a new Service with UUID IDs and the wall clock
func NewService(db DB, extractor Extractor, tokens TokenIssuer, passwordCost int) *Service {
	return NewServiceWithDeps(db, extractor, tokens, passwordCost, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, tokens TokenIssuer, passwordCost int, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:           db,
		extractor:    extractor,
		tokens:       tokens,
		passwordCost: passwordCost,
		idGenerator:  idGen,
		timeSource:   timeSrc,
	}
}

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces  = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up an uploaded filename for display, keeping the
// extension and truncating long phone-generated names
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeNameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// Register creates an account for email
func (s *Service) Register(email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email must contain @", ErrInvalidRegistration)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRegistration, minPasswordLength)
	}

	hash, err := auth.HashPassword(password, s.passwordCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           s.idGenerator.Generate(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.timeSource.Now(),
	}
	if err := s.db.CreateUser(user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("saving user: %w", err)
	}
	slog.Info("Registered user", "id", user.ID)
	return user, nil
}

// Login checks the credentials and returns a bearer token
func (s *Service) Login(email, password string) (string, error) {
	user, err := s.db.GetUserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("looking up user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}

// Authenticate resolves a bearer token to its user
func (s *Service) Authenticate(token string) (*User, error) {
	email, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return user, nil
}

func validateExpense(e *Expense) error {
	switch {
	case strings.TrimSpace(e.Description) == "":
		return fmt.Errorf("%w: description is required", ErrInvalidExpense)
	case !e.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidExpense)
	case strings.TrimSpace(e.Category) == "":
		return fmt.Errorf("%w: category is required", ErrInvalidExpense)
	case e.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidExpense)
	}
	return nil
}

// CreateExpense records a new expense for owner
func (s *Service) CreateExpense(owner *User, input ExpenseInput) (*Expense, error) {
	now := s.timeSource.Now()
	expense := &Expense{
		ID:          s.idGenerator.Generate(),
		OwnerID:     owner.ID,
		Description: strings.TrimSpace(input.Description),
		Amount:      input.Amount,
		Category:    strings.TrimSpace(input.Category),
		Date:        input.Date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateExpense(expense); err != nil {
		return nil, err
	}

	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns owner's expenses, most recent date first
func (s *Service) ListExpenses(owner *User) ([]*Expense, error) {
	expenses, err := s.db.ListExpenses(owner.ID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Date.After(expenses[j].Date)
	})
	return expenses, nil
}

// ownedExpense loads an expense, hiding ones that belong to someone else
func (s *Service) ownedExpense(owner *User, id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	if expense.OwnerID != owner.ID {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return expense, nil
}

// UpdateExpense applies the non-nil fields of update
func (s *Service) UpdateExpense(owner *User, id string, update ExpenseUpdate) (*Expense, error) {
	expense, err := s.ownedExpense(owner, id)
	if err != nil {
		return nil, err
	}

	if update.Description != nil {
		expense.Description = strings.TrimSpace(*update.Description)
	}
	if update.Amount != nil {
		expense.Amount = *update.Amount
	}
	if update.Category != nil {
		expense.Category = strings.TrimSpace(*update.Category)
	}
	if update.Date != nil {
		expense.Date = *update.Date
	}
	if err := validateExpense(expense); err != nil {
		return nil, err
	}

	expense.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

// DeleteExpense removes one of owner's expenses
func (s *Service) DeleteExpense(owner *User, id string) error {
	if _, err := s.ownedExpense(owner, id); err != nil {
		return err
	}
	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	return nil
}

// Summary totals owner's spending overall and since the start of the current UTC month
func (s *Service) Summary(owner *User) (*Summary, error) {
	expenses, err := s.db.ListExpenses(owner.ID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}

	now := s.timeSource.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	summary := &Summary{
		TotalExpenses:    decimal.Zero,
		MonthExpenses:    decimal.Zero,
		TransactionCount: len(expenses),
	}
	for _, e := range expenses {
		summary.TotalExpenses = summary.TotalExpenses.Add(e.Amount)
		if !e.Date.Before(monthStart) {
			summary.MonthExpenses = summary.MonthExpenses.Add(e.Amount)
		}
	}
	return summary, nil
}

// SpendingByCategory totals owner's spending per category
func (s *Service) SpendingByCategory(owner *User) (map[string]decimal.Decimal, error) {
	expenses, err := s.db.ListExpenses(owner.ID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}

	totals := make(map[string]decimal.Decimal)
	for _, e := range expenses {
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}
	return totals, nil
}

// ScanReceipt extracts suggested expense fields from a receipt image. Nothing
// is persisted; the caller creates the expense once the user confirms.
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, mediaType string) (*scanning.ExtractionResult, error) {
	result, err := s.extractor.Extract(ctx, data, mediaType, sanitizeFilename(filename))
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", mediaType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}
	return result, nil
}
