package fieldcrypt

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/pocketledger/fieldcrypt/internal/schema"
)

// Model is implemented by the typed result of each registered record model.
type Model interface {
	ModelName() string
}

// Transaction is a decrypted transaction.
type Transaction struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId,omitempty"`
	AccountID   string  `json:"accountId,omitempty"`
	CategoryID  string  `json:"categoryId,omitempty"`
	Type        string  `json:"type,omitempty"`
	Date        string  `json:"date,omitempty"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
	Notes       string  `json:"notes,omitempty"`
}

type Account struct {
	ID             string  `json:"id"`
	UserID         string  `json:"userId,omitempty"`
	Name           string  `json:"name,omitempty"`
	Type           string  `json:"type,omitempty"`
	Balance        float64 `json:"balance"`
	InitialBalance float64 `json:"initialBalance"`
}

type CreditCard struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId,omitempty"`
	Name           string    `json:"name,omitempty"`
	ClosingDay     int       `json:"closingDay,omitempty"`
	DueDay         int       `json:"dueDay,omitempty"`
	Limit          float64   `json:"limit"`
	AvailableLimit float64   `json:"availableLimit"`
	Invoices       []Invoice `json:"invoices,omitempty"`
}

type Invoice struct {
	ID           string     `json:"id"`
	CreditCardID string     `json:"creditCardId,omitempty"`
	Month        int        `json:"month,omitempty"`
	Year         int        `json:"year,omitempty"`
	Status       string     `json:"status,omitempty"`
	Total        float64    `json:"total"`
	PaidAmount   float64    `json:"paidAmount"`
	Purchases    []Purchase `json:"purchases,omitempty"`
}

type Purchase struct {
	ID           string  `json:"id"`
	InvoiceID    string  `json:"invoiceId,omitempty"`
	Date         string  `json:"date,omitempty"`
	Installments int     `json:"installments,omitempty"`
	Value        float64 `json:"value"`
	Description  string  `json:"description"`
}

type Budget struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId,omitempty"`
	CategoryID string  `json:"categoryId,omitempty"`
	Month      int     `json:"month,omitempty"`
	Year       int     `json:"year,omitempty"`
	Amount     float64 `json:"amount"`
	Spent      float64 `json:"spent"`
}

type RecurringExpense struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId,omitempty"`
	Frequency   string  `json:"frequency,omitempty"`
	DueDay      int     `json:"dueDay,omitempty"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}

type Goal struct {
	ID            string             `json:"id"`
	UserID        string             `json:"userId,omitempty"`
	Name          string             `json:"name,omitempty"`
	Deadline      string             `json:"deadline,omitempty"`
	TargetValue   float64            `json:"targetValue"`
	CurrentValue  float64            `json:"currentValue"`
	Contributions []GoalContribution `json:"contributions,omitempty"`
}

type GoalContribution struct {
	ID     string  `json:"id"`
	GoalID string  `json:"goalId,omitempty"`
	Date   string  `json:"date,omitempty"`
	Value  float64 `json:"value"`
}

type Investment struct {
	ID            string                `json:"id"`
	UserID        string                `json:"userId,omitempty"`
	Ticker        string                `json:"ticker,omitempty"`
	Type          string                `json:"type,omitempty"`
	Quantity      float64               `json:"quantity"`
	AveragePrice  float64               `json:"averagePrice"`
	TotalInvested float64               `json:"totalInvested"`
	CurrentValue  float64               `json:"currentValue"`
	Operations    []InvestmentOperation `json:"operations,omitempty"`
}

type InvestmentOperation struct {
	ID           string  `json:"id"`
	InvestmentID string  `json:"investmentId,omitempty"`
	Type         string  `json:"type,omitempty"`
	Date         string  `json:"date,omitempty"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	Total        float64 `json:"total"`
	Fees         float64 `json:"fees"`
}

func (Transaction) ModelName() string         { return schema.ModelTransaction }
func (Account) ModelName() string             { return schema.ModelAccount }
func (CreditCard) ModelName() string          { return schema.ModelCreditCard }
func (Invoice) ModelName() string             { return schema.ModelInvoice }
func (Purchase) ModelName() string            { return schema.ModelPurchase }
func (Budget) ModelName() string              { return schema.ModelBudget }
func (RecurringExpense) ModelName() string    { return schema.ModelRecurringExpense }
func (Goal) ModelName() string                { return schema.ModelGoal }
func (GoalContribution) ModelName() string    { return schema.ModelGoalContribution }
func (Investment) ModelName() string          { return schema.ModelInvestment }
func (InvestmentOperation) ModelName() string { return schema.ModelInvestmentOperation }

// DecryptTyped decrypts rec as T's model and decodes it into T.
func DecryptTyped[T Model](ctx context.Context, c *Crypto, rec Record) (T, error) {
	var out T
	dec, err := c.DecryptRecord(ctx, rec, out.ModelName())
	if err != nil {
		return out, err
	}
	return decodeRecord[T](dec)
}

// DecryptTypedFields is DecryptTyped restricted to the named fields.
func DecryptTypedFields[T Model](ctx context.Context, c *Crypto, rec Record, fields ...string) (T, error) {
	var out T
	dec, err := c.DecryptFields(ctx, rec, out.ModelName(), fields...)
	if err != nil {
		return out, err
	}
	return decodeRecord[T](dec)
}

// DecryptTypedArray decrypts and decodes every record, preserving order.
func DecryptTypedArray[T Model](ctx context.Context, c *Crypto, recs []Record) ([]T, error) {
	var zero T
	decs, err := c.DecryptRecords(ctx, recs, zero.ModelName())
	if err != nil {
		return nil, err
	}
	out := make([]T, len(decs))
	for i, dec := range decs {
		v, err := decodeRecord[T](dec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// DecryptTypedNested runs DecryptNested and decodes the result, children
// included, into T. cfg.Model defaults to T's model.
func DecryptTypedNested[T Model](ctx context.Context, c *Crypto, rec Record, cfg NestedConfig) (T, error) {
	var out T
	if cfg.Model == "" {
		cfg.Model = out.ModelName()
	}
	dec, err := c.DecryptNested(ctx, rec, cfg)
	if err != nil {
		return out, err
	}
	return decodeRecord[T](dec)
}

// decodeRecord maps record keys onto T's json tags. Numeric and string
// fields are coerced, so plaintext passed through with encryption disabled
// decodes the same way as decrypted values.
func decodeRecord[T any](rec Record) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(rec)); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}
