// Package rules compiles and evaluates the declarative business rules held
// in unified_business_rules. Conditions are jq filter expressions (via
// github.com/itchyny/gojq) evaluated against a flat facts record; a rule
// fires when its filter evaluates truthy.
package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/itchyny/gojq"
)

// Event is what a fired rule contributes to the caller (ingestion validation
// or any future rule-gated stage). EventType is declarative
// ("reject_product", "flag_validation_error", ...); Params carries whatever
// the rule author attached in event_params_json.
type Event struct {
	RuleCategory string
	EventType    string
	Params       map[string]any
}

// Rule is one compiled row of unified_business_rules.
type Rule struct {
	Category  string
	EventType string
	Params    map[string]any
	Priority  int
	Enabled   bool

	query *gojq.Query
	raw   string
}

// Engine holds the compiled rule set for one or more categories and
// evaluates facts records against them.
type Engine struct {
	logger *slog.Logger
	rules  map[string][]*Rule // category -> rules, priority-sorted ascending
}

// NewEngine constructs an empty Engine. Use Load to populate it from the
// store.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{logger: logger, rules: make(map[string][]*Rule)}
}

// Load reads every enabled row of unified_business_rules for category,
// compiles its conditions_json as a jq filter, and installs it into the
// engine. A rule whose filter fails to parse logs a warning and is
// skipped — it does not abort the load.
func (e *Engine) Load(ctx context.Context, db *sql.DB, category string) error {
	rows, err := db.QueryContext(ctx,
		`SELECT conditions_json, event_type, event_params_json, priority
		   FROM unified_business_rules
		  WHERE rule_category = ? AND enabled = 1`, category)
	if err != nil {
		return fmt.Errorf("rules: query category %q: %w", category, err)
	}
	defer rows.Close()

	var compiled []*Rule

	for rows.Next() {
		var conditionsJSON, eventType, paramsJSON string

		var priority int
		if err := rows.Scan(&conditionsJSON, &eventType, &paramsJSON, &priority); err != nil {
			return fmt.Errorf("rules: scan category %q: %w", category, err)
		}

		rule, err := compileRule(category, conditionsJSON, eventType, paramsJSON, priority)
		if err != nil {
			e.logger.Warn("skipping rule with invalid conditions",
				slog.String("category", category),
				slog.String("event_type", eventType),
				slog.String("error", err.Error()))

			continue
		}

		compiled = append(compiled, rule)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rules: iterate category %q: %w", category, err)
	}

	// Stable sort by priority so evaluation order is deterministic and
	// lower-priority-number rules (higher precedence) are evaluated first.
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority < compiled[j].Priority
	})

	e.rules[category] = compiled

	return nil
}

func compileRule(category, conditionsJSON, eventType, paramsJSON string, priority int) (*Rule, error) {
	query, err := gojq.Parse(conditionsJSON)
	if err != nil {
		return nil, fmt.Errorf("parse conditions %q: %w", conditionsJSON, err)
	}

	var params map[string]any
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return nil, fmt.Errorf("parse event params %q: %w", paramsJSON, err)
		}
	}

	return &Rule{
		Category:  category,
		EventType: eventType,
		Params:    params,
		Priority:  priority,
		Enabled:   true,
		query:     query,
		raw:       conditionsJSON,
	}, nil
}

// Evaluate runs every compiled rule for category against facts, in priority
// order, and returns the events fired by rules whose condition evaluated
// truthy. facts must already be JSON-shaped (map[string]any, []any,
// strings, float64s, bools, nil) — json.Marshal/Unmarshal the struct first
// if building facts from a typed struct.
func (e *Engine) Evaluate(category string, facts map[string]any) ([]Event, error) {
	var events []Event

	for _, rule := range e.rules[category] {
		fired, err := rule.fires(facts)
		if err != nil {
			e.logger.Warn("rule evaluation error, treating as not fired",
				slog.String("category", category),
				slog.String("conditions", rule.raw),
				slog.String("error", err.Error()))

			continue
		}

		if fired {
			events = append(events, Event{
				RuleCategory: category,
				EventType:    rule.EventType,
				Params:       rule.Params,
			})
		}
	}

	return events, nil
}

// fires runs the rule's compiled jq query against facts and interprets the
// first emitted value truthily: jq's own falsy set (false, null) is falsy,
// everything else — including zero and empty string, which jq itself treats
// as truthy — fires the rule.
func (r *Rule) fires(facts map[string]any) (bool, error) {
	iter := r.query.Run(facts)

	v, ok := iter.Next()
	if !ok {
		return false, nil
	}

	if err, isErr := v.(error); isErr {
		return false, err
	}

	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	default:
		return true, nil
	}
}
