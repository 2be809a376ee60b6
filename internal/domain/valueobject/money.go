package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// MoneyScale - количество знаков после запятой для денежных сумм.
const MoneyScale = 2

const DefaultCurrency = "NGN"

type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, apperror.Validation("сумма не может быть отрицательной")
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: Round(amount), Currency: currency}, nil
}

// NewPositiveMoney отклоняет нулевые суммы: платёжная ссылка на ноль не имеет смысла.
func NewPositiveMoney(amount decimal.Decimal, currency string) (Money, error) {
	if !amount.IsPositive() {
		return Money{}, apperror.Validation("сумма должна быть положительной")
	}
	return NewMoney(amount, currency)
}

// Round округляет сумму до копеек (half away from zero).
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyScale)
}

// Percent возвращает долю суммы, округлённую до копеек.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, m.Amount.StringFixed(MoneyScale))
}
