package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is an account that owns expenses
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"hashed_password"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expense is a single recorded spend
type Expense struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ExpenseInput holds the fields needed to record an expense
type ExpenseInput struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
}

// ExpenseUpdate is a partial update; nil fields are left untouched
type ExpenseUpdate struct {
	Description *string          `json:"description,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Date        *time.Time       `json:"date,omitempty"`
}

// Summary is the dashboard overview of a user's spending
type Summary struct {
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	MonthExpenses    decimal.Decimal `json:"month_expenses"`
	TransactionCount int             `json:"transaction_count"`
}
