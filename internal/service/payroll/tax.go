package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/busfleet/payroll-backend-go/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// round2 rounds half away from zero.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// TaxTable is the active bracket set for one currency.
type TaxTable struct {
	Currency string
	Brackets []payroll.TaxBracket
}

// Tax returns the PAYE amount for gross. An empty table yields zero and a
// configuration error. Gross outside every bracket yields zero.
func (t TaxTable) Tax(gross decimal.Decimal) (decimal.Decimal, error) {
	if len(t.Brackets) == 0 {
		return decimal.Zero, &payroll.ConfigurationError{
			Code:    payroll.WarningTaxTableMissing,
			Message: fmt.Sprintf("no tax table configured for currency %s", t.Currency),
		}
	}
	for _, b := range t.Brackets {
		if b.Contains(gross) {
			over := gross.Sub(b.MinAmount)
			return round2(b.FixedAmount.Add(over.Mul(b.Rate).Div(hundred))), nil
		}
	}
	return decimal.Zero, nil
}

// Contribution is the flat social-security rate. An unconfigured rate
// yields zero and a configuration error.
type Contribution struct {
	Rate       decimal.Decimal
	Configured bool
	SettingKey string
}

func (c Contribution) Amount(gross decimal.Decimal) (decimal.Decimal, error) {
	if !c.Configured {
		return decimal.Zero, &payroll.ConfigurationError{
			Code:    payroll.WarningContributionMissing,
			Message: fmt.Sprintf("contribution rate setting %q is not configured", c.SettingKey),
		}
	}
	return round2(gross.Mul(c.Rate).Div(hundred)), nil
}

// TaxCalculator loads statutory reference data.
type TaxCalculator struct {
	brackets   payroll.TaxBracketRepository
	settings   payroll.SettingRepository
	settingKey string
}

func NewTaxCalculator(brackets payroll.TaxBracketRepository, settings payroll.SettingRepository, contributionSettingKey string) *TaxCalculator {
	return &TaxCalculator{
		brackets:   brackets,
		settings:   settings,
		settingKey: contributionSettingKey,
	}
}

// LoadTable reads the active brackets for currency ordered by lower bound.
func (c *TaxCalculator) LoadTable(ctx context.Context, currency string) (TaxTable, error) {
	brackets, err := c.brackets.ListActiveByCurrency(ctx, currency)
	if err != nil {
		return TaxTable{}, fmt.Errorf("failed to load tax brackets: %w", err)
	}
	sort.SliceStable(brackets, func(i, j int) bool {
		return brackets[i].MinAmount.LessThan(brackets[j].MinAmount)
	})
	return TaxTable{Currency: currency, Brackets: brackets}, nil
}

// LoadContribution reads the contribution rate setting. A missing or
// unparsable value is reported through Contribution.Configured.
func (c *TaxCalculator) LoadContribution(ctx context.Context) (Contribution, error) {
	contribution := Contribution{SettingKey: c.settingKey}
	raw, err := c.settings.GetSetting(ctx, c.settingKey)
	if err != nil {
		if errors.Is(err, payroll.ErrSettingNotFound) {
			return contribution, nil
		}
		return contribution, fmt.Errorf("failed to load contribution rate: %w", err)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || rate.IsNegative() {
		return contribution, nil
	}
	contribution.Rate = rate
	contribution.Configured = true
	return contribution, nil
}

// CalculateTax loads the table for currency and applies it to gross.
func (c *TaxCalculator) CalculateTax(ctx context.Context, gross decimal.Decimal, currency string) (decimal.Decimal, error) {
	table, err := c.LoadTable(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return table.Tax(gross)
}

// CalculateContribution loads the rate and applies it to gross.
func (c *TaxCalculator) CalculateContribution(ctx context.Context, gross decimal.Decimal) (decimal.Decimal, error) {
	contribution, err := c.LoadContribution(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return contribution.Amount(gross)
}
