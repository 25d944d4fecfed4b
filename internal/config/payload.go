// Package config defines the job payload schema, its defaults (mirroring
// the reference implementation's get_user_payload), and ingress validation.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/riverglen/backreplay/internal/indicator"
)

// TakeProfitType selects how the take-profit trigger is computed.
type TakeProfitType string

const (
	TakeProfitPercentageTotal TakeProfitType = "percentage-total"
	TakeProfitPercentageBase  TakeProfitType = "percentage-base"
)

// Payload is one backtest job's full configuration. Field names and
// defaults mirror the reference Python implementation's get_user_payload
// so that a payload omitting a field behaves exactly as one stating its
// default.
type Payload struct {
	StrategyName    string `json:"strategy_name" yaml:"strategy_name" validate:"required"`
	BenchmarkSymbol string `json:"benchmark_symbol" yaml:"benchmark_symbol"`

	Pairs     []string `json:"pairs" yaml:"pairs" validate:"required,min=1,dive,required"`
	StartDate string   `json:"start_date" yaml:"start_date" validate:"required"`
	EndDate   string   `json:"end_date" yaml:"end_date" validate:"required"`
	BaseTimeframe string `json:"base_timeframe" yaml:"base_timeframe"` // defaults to "1h"

	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance" validate:"gt=0"`
	BaseOrderSize  float64 `json:"base_order_size" yaml:"base_order_size" validate:"gt=0"`
	TradingFee     float64 `json:"trading_fee" yaml:"trading_fee" validate:"gte=0"`       // percent, e.g. 0.1 == 0.1%
	ReinvestProfit float64 `json:"reinvest_profit" yaml:"reinvest_profit" validate:"gte=0,lte=100"`
	RiskReduction  float64 `json:"risk_reduction" yaml:"risk_reduction" validate:"gte=0,lte=100"`

	MaxActiveDeals        int     `json:"max_active_deals" yaml:"max_active_deals" validate:"gte=0"`
	CooldownBetweenDeals  int     `json:"cooldown_between_deals" yaml:"cooldown_between_deals" validate:"gte=0"`
	MinDailyVolume        float64 `json:"min_daily_volume" yaml:"min_daily_volume" validate:"gte=0"`

	EntryConditions  []indicator.Predicate `json:"entry_conditions" yaml:"entry_conditions" validate:"dive"`
	SafetyConditions []indicator.Predicate `json:"safety_conditions" yaml:"safety_conditions" validate:"dive"`
	ExitConditions   []indicator.Predicate `json:"exit_conditions" yaml:"exit_conditions" validate:"dive"`

	SafetyOrderToggle      bool    `json:"safety_order_toggle" yaml:"safety_order_toggle"`
	SafetyOrderSize        float64 `json:"safety_order_size" yaml:"safety_order_size" validate:"gte=0"`
	PriceDeviation         float64 `json:"price_deviation" yaml:"price_deviation" validate:"gte=0"` // percent
	MaxSafetyOrdersCount   int     `json:"max_safety_orders_count" yaml:"max_safety_orders_count" validate:"gte=0"`
	SafetyOrderVolumeScale float64 `json:"safety_order_volume_scale" yaml:"safety_order_volume_scale"`
	SafetyOrderStepScale   float64 `json:"safety_order_step_scale" yaml:"safety_order_step_scale"`

	StopLossToggle   bool    `json:"stop_loss_toggle" yaml:"stop_loss_toggle"`
	StopLossValue    float64 `json:"stop_loss_value" yaml:"stop_loss_value"` // percent
	StopLossTimeout  int     `json:"stop_loss_timeout" yaml:"stop_loss_timeout"` // minutes

	TargetProfit         float64        `json:"target_profit" yaml:"target_profit"` // percent
	TakeProfitType       TakeProfitType `json:"take_profit_type" yaml:"take_profit_type" validate:"omitempty,oneof=percentage-total percentage-base"`
	PriceChangeActive    bool           `json:"price_change_active" yaml:"price_change_active"`
	MinProfitToggle      bool           `json:"minprof_toggle" yaml:"minprof_toggle"`
	MinimalProfit        float64        `json:"minimal_profit" yaml:"minimal_profit"` // percent
	CloseDealAfterTimeout int           `json:"close_deal_after_timeout" yaml:"close_deal_after_timeout"` // minutes

	// Reserved: read and validated but never consulted by the kernel.
	TrailingToggle    bool    `json:"trailing_toggle" yaml:"trailing_toggle"`
	TrailingDeviation float64 `json:"trailing_deviation" yaml:"trailing_deviation"`

	// EarlyStop configures the optional drawdown breaker. Zero means
	// disabled, matching the reference implementation's default.
	EarlyStop EarlyStopConfig `json:"early_stop" yaml:"early_stop"`
}

// EarlyStopConfig is the policy-hook threshold pair for the drawdown
// breaker, disabled (zero) unless a payload explicitly sets it.
type EarlyStopConfig struct {
	KernelDrawdown     float64 `json:"kernel_drawdown" yaml:"kernel_drawdown" validate:"gte=0,lte=1"`
	AccountantDrawdown float64 `json:"accountant_drawdown" yaml:"accountant_drawdown" validate:"gte=0,lte=1"`
}

// Defaults returns a Payload with every field at the reference
// implementation's documented default, ready to have a payload decoded onto
// it (as LoadFile does) so that omitted fields keep these values.
func Defaults() Payload {
	return Payload{
		BaseTimeframe:          "1h",
		MaxActiveDeals:         1,
		CooldownBetweenDeals:   0,
		MinDailyVolume:         0,
		SafetyOrderToggle:      false,
		SafetyOrderVolumeScale: 1,
		SafetyOrderStepScale:   1,
		StopLossToggle:         false,
		TakeProfitType:         TakeProfitPercentageTotal,
		PriceChangeActive:      true,
		MinProfitToggle:        false,
		TrailingToggle:         false,
	}
}

// ApplyDefaults fills the fields whose zero value is never a meaningful
// setting: BaseTimeframe and TakeProfitType when empty, the two safety-order
// scales when zero, and BenchmarkSymbol from the first pair. Booleans and
// MaxActiveDeals are left as given, since false and 0 are valid explicit
// values; LoadFile and the REST handler decode onto Defaults() so that an
// omitted field still gets its default there.
func ApplyDefaults(p Payload) Payload {
	d := Defaults()
	if p.BaseTimeframe == "" {
		p.BaseTimeframe = d.BaseTimeframe
	}
	if p.TakeProfitType == "" {
		p.TakeProfitType = d.TakeProfitType
	}
	if p.SafetyOrderVolumeScale == 0 {
		p.SafetyOrderVolumeScale = d.SafetyOrderVolumeScale
	}
	if p.SafetyOrderStepScale == 0 {
		p.SafetyOrderStepScale = d.SafetyOrderStepScale
	}
	if p.BenchmarkSymbol == "" && len(p.Pairs) > 0 {
		p.BenchmarkSymbol = p.Pairs[0]
	}
	return p
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("knownfamily", validateFamily)
	return v
}

func validateFamily(fl validator.FieldLevel) bool {
	fam := indicator.Family(fl.Field().String())
	for _, k := range indicator.KnownFamilies {
		if k == fam {
			return true
		}
	}
	return false
}

// Validate runs struct-tag validation over the whole payload and additional
// semantic checks that validator tags can't express cleanly (each
// predicate's family must be one this build's evaluator knows about).
// It returns every violation in one ConfigError rather than stopping at the
// first.
func Validate(p Payload) error {
	var problems []string

	if err := validate.Struct(p); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if _, err := ParseDate(p.StartDate); err != nil {
		problems = append(problems, fmt.Sprintf("start_date: %v", err))
	}
	if _, err := ParseDate(p.EndDate); err != nil {
		problems = append(problems, fmt.Sprintf("end_date: %v", err))
	}

	if len(problems) == 0 {
		return nil
	}
	return &ConfigError{Problems: problems}
}

// ConfigError reports a payload rejected before any data is loaded,
// carrying every violation found.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid job payload: " + strings.Join(e.Problems, "; ")
}
