package fieldcrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecryptTyped_Transaction(t *testing.T) {
	c := NewTestCrypto(t)
	ctx := t.Context()

	enc, err := c.EncryptRecord(ctx, Record{
		"id":          "tx-1",
		"accountId":   "acc-1",
		"value":       -82.4,
		"description": "Electricity",
		"date":        "2026-02-10",
	}, "Transaction")
	require.NoError(t, err)

	tx, err := DecryptTyped[Transaction](ctx, c, enc)
	require.NoError(t, err)
	assert.Equal(t, Transaction{
		ID:          "tx-1",
		AccountID:   "acc-1",
		Value:       -82.4,
		Description: "Electricity",
		Date:        "2026-02-10",
	}, tx)
}

func TestDecryptTyped_DisabledCoercesPlaintext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	c := NewTestCryptoWithConfig(t, cfg)

	acc, err := DecryptTyped[Account](t.Context(), c, Record{"id": "a", "balance": "10.5", "initialBalance": 3})
	require.NoError(t, err)
	assert.Equal(t, 10.5, acc.Balance)
	assert.Equal(t, 3.0, acc.InitialBalance)
}

func TestDecryptTypedFields(t *testing.T) {
	c := NewTestCrypto(t)
	ctx := t.Context()

	enc, err := c.EncryptRecord(ctx, Record{"id": "b-1", "amount": 500.0, "spent": 120.0}, "Budget")
	require.NoError(t, err)

	_, err = DecryptTypedFields[Budget](ctx, c, enc, "amount")
	assert.Error(t, err, "spent is still a token and does not decode as a number")

	b, err := DecryptTypedFields[Budget](ctx, c, enc, "amount", "spent")
	require.NoError(t, err)
	assert.Equal(t, 500.0, b.Amount)
	assert.Equal(t, 120.0, b.Spent)
}

func TestDecryptTypedArray(t *testing.T) {
	c := NewTestCrypto(t)
	ctx := t.Context()

	enc, err := c.EncryptRecords(ctx, []Record{
		{"id": "r-1", "value": 49.9, "description": "Streaming", "frequency": "monthly"},
		{"id": "r-2", "value": 1200.0, "description": "Insurance", "frequency": "yearly"},
	}, "RecurringExpense")
	require.NoError(t, err)

	out, err := DecryptTypedArray[RecurringExpense](ctx, c, enc)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Streaming", out[0].Description)
	assert.Equal(t, 49.9, out[0].Value)
	assert.Equal(t, "yearly", out[1].Frequency)
	assert.Equal(t, 1200.0, out[1].Value)
}

func TestDecryptTypedNested_CreditCard(t *testing.T) {
	c := NewTestCrypto(t)

	cfg, ok := LookupNestedConfig(CardWithInvoicesAndPurchases)
	require.True(t, ok)

	card, err := DecryptTypedNested[CreditCard](t.Context(), c, encryptCard(t, c), cfg)
	require.NoError(t, err)

	assert.Equal(t, "cc-1", card.ID)
	assert.Equal(t, 5000.0, card.Limit)
	require.Len(t, card.Invoices, 1)
	assert.Equal(t, 155.9, card.Invoices[0].Total)
	assert.Equal(t, 3, card.Invoices[0].Month)
	require.Len(t, card.Invoices[0].Purchases, 2)
	assert.Equal(t, Purchase{ID: "p-1", Value: 120.0, Description: "Shoes"}, card.Invoices[0].Purchases[0])
}

func TestDecryptTypedNested_DefaultsModel(t *testing.T) {
	c := NewTestCrypto(t)
	ctx := t.Context()

	enc, err := c.EncryptRecord(ctx, Record{"id": "g-1", "targetValue": 10000.0, "currentValue": 2500.0}, "Goal")
	require.NoError(t, err)
	contribution, err := c.EncryptRecord(ctx, Record{"id": "gc-1", "value": 250.0}, "GoalContribution")
	require.NoError(t, err)
	enc["contributions"] = []Record{contribution}

	cfg := NewNestedConfig("", map[string]NestedConfig{
		"contributions": NewNestedConfig("GoalContribution", nil),
	})
	goal, err := DecryptTypedNested[Goal](ctx, c, enc, cfg)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, goal.TargetValue)
	require.Len(t, goal.Contributions, 1)
	assert.Equal(t, 250.0, goal.Contributions[0].Value)
}

func TestModelNames(t *testing.T) {
	models := []Model{
		Transaction{}, Account{}, CreditCard{}, Invoice{}, Purchase{}, Budget{},
		RecurringExpense{}, Goal{}, GoalContribution{}, Investment{}, InvestmentOperation{},
	}
	reg := DefaultRegistry()
	for _, m := range models {
		assert.NotEmpty(t, reg.Fields(m.ModelName()), m.ModelName())
	}
}
