package schema

// Built-in finance models.
const (
	ModelTransaction         = "Transaction"
	ModelAccount             = "Account"
	ModelCreditCard          = "CreditCard"
	ModelInvoice             = "Invoice"
	ModelPurchase            = "Purchase"
	ModelBudget              = "Budget"
	ModelRecurringExpense    = "RecurringExpense"
	ModelGoal                = "Goal"
	ModelGoalContribution    = "GoalContribution"
	ModelInvestment          = "Investment"
	ModelInvestmentOperation = "InvestmentOperation"
)

var defaultRegistry = New(map[string][]Field{
	ModelTransaction: {
		{Name: "value", Type: Number},
		{Name: "description", Type: String},
		{Name: "notes", Type: String},
	},
	ModelAccount: {
		{Name: "balance", Type: Number},
		{Name: "initialBalance", Type: Number},
	},
	ModelCreditCard: {
		{Name: "limit", Type: Number},
		{Name: "availableLimit", Type: Number},
	},
	ModelInvoice: {
		{Name: "total", Type: Number},
		{Name: "paidAmount", Type: Number},
	},
	ModelPurchase: {
		{Name: "value", Type: Number},
		{Name: "description", Type: String},
	},
	ModelBudget: {
		{Name: "amount", Type: Number},
		{Name: "spent", Type: Number},
	},
	ModelRecurringExpense: {
		{Name: "value", Type: Number},
		{Name: "description", Type: String},
	},
	ModelGoal: {
		{Name: "targetValue", Type: Number},
		{Name: "currentValue", Type: Number},
	},
	ModelGoalContribution: {
		{Name: "value", Type: Number},
	},
	ModelInvestment: {
		{Name: "quantity", Type: Number},
		{Name: "averagePrice", Type: Number},
		{Name: "totalInvested", Type: Number},
		{Name: "currentValue", Type: Number},
	},
	ModelInvestmentOperation: {
		{Name: "quantity", Type: Number},
		{Name: "price", Type: Number},
		{Name: "total", Type: Number},
		{Name: "fees", Type: Number},
	},
})

// Default returns the built-in registry.
func Default() *Registry {
	return defaultRegistry
}
