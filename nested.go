package fieldcrypt

import (
	"context"
	"fmt"
	"sort"

	"github.com/pocketledger/fieldcrypt/internal/schema"
)

// NestedConfig describes a record and the child keys to decrypt with it.
// Keys not listed in Children are never traversed.
type NestedConfig struct {
	Model    string
	Children map[string]NestedConfig
}

// NewNestedConfig builds a NestedConfig. children may be nil.
func NewNestedConfig(model string, children map[string]NestedConfig) NestedConfig {
	cfg := NestedConfig{Model: model}
	if len(children) > 0 {
		cfg.Children = make(map[string]NestedConfig, len(children))
		for k, v := range children {
			cfg.Children[k] = v
		}
	}
	return cfg
}

// MergeNestedConfigs returns base overlaid with ext. ext's model wins when
// set, and each child key of ext replaces base's entry for that key whole;
// grandchildren are not merged.
func MergeNestedConfigs(base, ext NestedConfig) NestedConfig {
	merged := NewNestedConfig(base.Model, base.Children)
	if ext.Model != "" {
		merged.Model = ext.Model
	}
	if len(ext.Children) > 0 && merged.Children == nil {
		merged.Children = make(map[string]NestedConfig, len(ext.Children))
	}
	for k, v := range ext.Children {
		merged.Children[k] = v
	}
	return merged
}

// Names of the preset nested configs.
const (
	CardWithInvoices             = "CardWithInvoices"
	CardWithInvoicesAndPurchases = "CardWithInvoicesAndPurchases"
	InvoiceWithPurchases         = "InvoiceWithPurchases"
	GoalWithContributions        = "GoalWithContributions"
	InvestmentWithOperations     = "InvestmentWithOperations"
)

var invoiceWithPurchases = NewNestedConfig(schema.ModelInvoice, map[string]NestedConfig{
	"purchases": NewNestedConfig(schema.ModelPurchase, nil),
})

var nestedConfigs = map[string]NestedConfig{
	CardWithInvoices: NewNestedConfig(schema.ModelCreditCard, map[string]NestedConfig{
		"invoices": NewNestedConfig(schema.ModelInvoice, nil),
	}),
	CardWithInvoicesAndPurchases: NewNestedConfig(schema.ModelCreditCard, map[string]NestedConfig{
		"invoices": invoiceWithPurchases,
	}),
	InvoiceWithPurchases: invoiceWithPurchases,
	GoalWithContributions: NewNestedConfig(schema.ModelGoal, map[string]NestedConfig{
		"contributions": NewNestedConfig(schema.ModelGoalContribution, nil),
	}),
	InvestmentWithOperations: NewNestedConfig(schema.ModelInvestment, map[string]NestedConfig{
		"operations": NewNestedConfig(schema.ModelInvestmentOperation, nil),
	}),
}

// LookupNestedConfig returns a preset by name.
func LookupNestedConfig(name string) (NestedConfig, bool) {
	cfg, ok := nestedConfigs[name]
	return cfg, ok
}

// NestedConfigNames lists the presets in sorted order.
func NestedConfigNames() []string {
	names := make([]string, 0, len(nestedConfigs))
	for n := range nestedConfigs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DecryptNested decrypts rec as cfg.Model, then each child named in
// cfg.Children: arrays element by element, objects recursively. Missing
// and nil children are skipped and every other key is left as it is.
func (c *Crypto) DecryptNested(ctx context.Context, rec Record, cfg NestedConfig) (Record, error) {
	if !c.config.Enabled || rec == nil {
		return rec, nil
	}

	out, err := c.DecryptRecord(ctx, rec, cfg.Model)
	if err != nil {
		return nil, err
	}

	for key, childCfg := range cfg.Children {
		child, ok := out[key]
		if !ok || child == nil {
			continue
		}
		decrypted, err := c.decryptChild(ctx, child, childCfg)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", cfg.Model, key, err)
		}
		out[key] = decrypted
	}
	return out, nil
}

// DecryptNestedArray applies DecryptNested to every record.
func (c *Crypto) DecryptNestedArray(ctx context.Context, recs []Record, cfg NestedConfig) ([]Record, error) {
	if !c.config.Enabled {
		return recs, nil
	}
	out := make([]Record, len(recs))
	for i, rec := range recs {
		dec, err := c.DecryptNested(ctx, rec, cfg)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

// DecryptWithConfig is DecryptNested with a preset config.
func (c *Crypto) DecryptWithConfig(ctx context.Context, rec Record, name string) (Record, error) {
	cfg, ok := LookupNestedConfig(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNestedConfig, name)
	}
	return c.DecryptNested(ctx, rec, cfg)
}

// DecryptArrayWithConfig is DecryptNestedArray with a preset config.
func (c *Crypto) DecryptArrayWithConfig(ctx context.Context, recs []Record, name string) ([]Record, error) {
	cfg, ok := LookupNestedConfig(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNestedConfig, name)
	}
	return c.DecryptNestedArray(ctx, recs, cfg)
}

// decryptChild handles the shapes a child can take after JSON decoding or
// when built by hand. Values of any other type are returned unchanged.
func (c *Crypto) decryptChild(ctx context.Context, child any, cfg NestedConfig) (any, error) {
	switch v := child.(type) {
	case Record:
		return c.DecryptNested(ctx, v, cfg)
	case map[string]any:
		return c.DecryptNested(ctx, Record(v), cfg)
	case []Record:
		return c.DecryptNestedArray(ctx, v, cfg)
	case []map[string]any:
		out := make([]Record, len(v))
		for i, m := range v {
			dec, err := c.DecryptNested(ctx, Record(m), cfg)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = dec
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			dec, err := c.decryptChild(ctx, elem, cfg)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = dec
		}
		return out, nil
	default:
		return child, nil
	}
}
