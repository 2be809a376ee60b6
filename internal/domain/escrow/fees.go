package escrow

import (
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Две разные комиссии платформы: с продажи и с вывода средств. Не объединять.
var (
	SalePlatformFeePercent = decimal.RequireFromString("0.05")
	WithdrawalFeePercent   = decimal.RequireFromString("0.02")
)

type MethodFeeType string

const (
	MethodFeeFlat       MethodFeeType = "flat"
	MethodFeePercentage MethodFeeType = "percentage"
)

// MethodFee - комиссия способа оплаты/вывода.
// Для percentage Value задаётся в процентах (1.5 = 1.5%).
type MethodFee struct {
	Type  MethodFeeType   `mapstructure:"type" json:"type"`
	Value decimal.Decimal `mapstructure:"value" json:"value"`
}

func (m MethodFee) Validate() error {
	switch m.Type {
	case MethodFeeFlat, MethodFeePercentage:
	case "":
		return nil
	default:
		return apperror.Validation("неизвестный тип комиссии способа оплаты")
	}
	if m.Value.IsNegative() {
		return apperror.Validation("комиссия способа оплаты не может быть отрицательной")
	}
	return nil
}

func (m MethodFee) compute(amount decimal.Decimal) decimal.Decimal {
	switch m.Type {
	case MethodFeeFlat:
		return valueobject.Round(m.Value)
	case MethodFeePercentage:
		return valueobject.Percent(amount, m.Value.Div(decimal.NewFromInt(100)))
	default:
		return decimal.Zero
	}
}

type FeeSchedule struct {
	PlatformPercent decimal.Decimal
	Method          MethodFee
}

// SaleSchedule - удержание платформы при завершении продажи.
func SaleSchedule(percent decimal.Decimal) FeeSchedule {
	return FeeSchedule{PlatformPercent: percent}
}

// WithdrawalSchedule - комиссия при выводе средств выбранным способом.
func WithdrawalSchedule(percent decimal.Decimal, method MethodFee) FeeSchedule {
	return FeeSchedule{PlatformPercent: percent, Method: method}
}

type FeeBreakdown struct {
	Amount      decimal.Decimal `json:"amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	MethodFee   decimal.Decimal `json:"method_fee"`
	TotalFees   decimal.Decimal `json:"total_fees"`
	NetAmount   decimal.Decimal `json:"net_amount"`
}

// ComputeFees считает комиссии. Если комиссии не меньше суммы, возвращает ErrAmountTooLow
// и нетто не вычисляется.
func ComputeFees(amount decimal.Decimal, schedule FeeSchedule) (FeeBreakdown, error) {
	if !amount.IsPositive() {
		return FeeBreakdown{}, apperror.Validation("сумма должна быть положительной")
	}
	if schedule.PlatformPercent.IsNegative() || schedule.PlatformPercent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return FeeBreakdown{}, apperror.Validation("некорректный процент комиссии платформы")
	}
	if err := schedule.Method.Validate(); err != nil {
		return FeeBreakdown{}, err
	}

	amount = valueobject.Round(amount)
	platformFee := valueobject.Percent(amount, schedule.PlatformPercent)
	methodFee := schedule.Method.compute(amount)
	total := platformFee.Add(methodFee)
	if total.GreaterThanOrEqual(amount) {
		return FeeBreakdown{}, apperror.ErrAmountTooLow
	}

	return FeeBreakdown{
		Amount:      amount,
		PlatformFee: platformFee,
		MethodFee:   methodFee,
		TotalFees:   total,
		NetAmount:   amount.Sub(total),
	}, nil
}
