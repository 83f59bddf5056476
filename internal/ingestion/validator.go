package ingestion

import (
	"fmt"

	"github.com/ratevault/pipeline/internal/model"
	"github.com/ratevault/pipeline/internal/rules"
)

// RangeConfig carries the configurable field-range bounds from the
// "ingestion" config category. Every bound is required
// at load time — there is no silent fallback.
type RangeConfig struct {
	AERRateMin      float64
	AERRateMax      float64
	TermMonthsMin   int
	TermMonthsMax   int
	NoticePeriodMin int
	NoticePeriodMax int
}

// RateThresholds maps an account type to its configured minimum AER rate
// floor, used by the rate-threshold filter.
type RateThresholds map[model.AccountType]float64

// Validator evaluates one product against the declarative rules engine and
// the configured range/rate-threshold checks.
type Validator struct {
	ranges            RangeConfig
	thresholds        RateThresholds
	rateFilterEnabled bool
	rulesEngine       *rules.Engine
}

// NewValidator constructs a Validator. rulesEngine may be nil, in which
// case only the range and rate-threshold checks run (used by tests that
// don't need the declarative layer).
func NewValidator(ranges RangeConfig, thresholds RateThresholds, rateFilterEnabled bool, rulesEngine *rules.Engine) *Validator {
	return &Validator{
		ranges:            ranges,
		thresholds:        thresholds,
		rateFilterEnabled: rateFilterEnabled,
		rulesEngine:       rulesEngine,
	}
}

// Outcome is the result of validating one product.
type Outcome struct {
	Errors       []string
	RateFiltered bool
}

// Rejected reports whether the product should be dropped from the raw
// table — either for a validation failure or a rate-filter match. The two
// are tracked separately because rate-filtered products do not count
// toward the corruption fuse.
func (o Outcome) Rejected() bool {
	return len(o.Errors) > 0 || o.RateFiltered
}

// Validate runs the full ingestion validation chain against a product that
// has already had its account type and platform normalized.
func (v *Validator) Validate(raw RawProductInput, accountType model.AccountType, platform string) Outcome {
	var out Outcome

	if raw.AERRate == nil {
		out.Errors = append(out.Errors, "aer_rate is required")
		return out // nothing further to check without a rate
	}

	aer := *raw.AERRate

	if !accountType.IsValid() {
		out.Errors = append(out.Errors, fmt.Sprintf("invalid account_type %q", raw.AccountType))
	}

	if aer < v.ranges.AERRateMin || aer > v.ranges.AERRateMax {
		out.Errors = append(out.Errors, fmt.Sprintf("aer_rate %.4f outside configured range [%.4f, %.4f]",
			aer, v.ranges.AERRateMin, v.ranges.AERRateMax))
	}

	switch accountType {
	case model.AccountFixedTerm:
		if raw.TermMonths == nil || *raw.TermMonths < v.ranges.TermMonthsMin || *raw.TermMonths > v.ranges.TermMonthsMax {
			out.Errors = append(out.Errors, "term_months missing or outside configured range")
		}
	case model.AccountNotice:
		if raw.NoticePeriodDays == nil || *raw.NoticePeriodDays < v.ranges.NoticePeriodMin || *raw.NoticePeriodDays > v.ranges.NoticePeriodMax {
			out.Errors = append(out.Errors, "notice_period_days missing or outside configured range")
		}
	}

	if v.rulesEngine != nil {
		facts := v.buildFacts(raw, accountType, platform, aer)

		events, err := v.rulesEngine.Evaluate("ingestion", facts)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("rules evaluation failed: %v", err))
		}

		for _, ev := range events {
			switch ev.EventType {
			case "reject_product", "flag_validation_error":
				out.Errors = append(out.Errors, fmt.Sprintf("rule fired: %s", ev.EventType))
			}
		}
	}

	if len(out.Errors) > 0 {
		return out
	}

	if v.rateFilterEnabled {
		if floor, ok := v.thresholds[accountType]; ok && aer < floor {
			out.RateFiltered = true
		}
	}

	return out
}

func (v *Validator) buildFacts(raw RawProductInput, accountType model.AccountType, platform string, aer float64) map[string]any {
	floor, hasFloor := v.thresholds[accountType]
	if !hasFloor {
		floor = 0
	}

	return map[string]any{
		"aer_rate":                 aer,
		"account_type":             string(accountType),
		"platform":                 platform,
		"bank_name":                raw.BankName,
		"min_deposit":              derefFloat(raw.MinDeposit),
		"term_months":              derefInt(raw.TermMonths),
		"notice_period_days":       derefInt(raw.NoticePeriodDays),
		"min_rate_threshold":       floor,
		"required_fields_complete": raw.BankName != "" && raw.AccountType != "",
	}
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}

	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}

	return *p
}
