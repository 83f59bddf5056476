package dedup

import (
	"fmt"

	"github.com/ratevault/pipeline/internal/canonicalization"
	"github.com/ratevault/pipeline/internal/model"
)

// BusinessKey generates the FSCS-safe grouping key for a product (spec
// §4.6): normalize(bankName) | normalize(accountType) | [term_X] |
// [notice_Y]. Platform, FRN, deposit bounds, and rate are deliberately
// excluded — rate comparison happens within a business-key group, not in
// the key itself (spec invariant 4), which is what prevents a legitimate
// rate change from fragmenting a product's history across two keys.
func BusinessKey(p model.EnrichedProduct, bankCfg canonicalization.BankNameConfig) string {
	raw := p.Parsed.Raw

	normalizedBank := canonicalization.NormalizeBankName(raw.BankName, bankCfg)

	key := fmt.Sprintf("%s|%s", normalizedBank, string(raw.AccountType))

	switch raw.AccountType {
	case model.AccountFixedTerm:
		if raw.TermMonths != nil {
			key += fmt.Sprintf("|term_%d", *raw.TermMonths)
		}
	case model.AccountNotice:
		if raw.NoticePeriodDays != nil {
			key += fmt.Sprintf("|notice_%d", *raw.NoticePeriodDays)
		}
	}

	return key
}
