package utils

import (
	"fmt"
	"strings"
)

// math.go - денежная арифметика в минорных единицах
//
// Назначение:
// Все суммы в системе - int64 минорных единиц (копейки для фиата,
// сатоши/микро-USDT для активов). Функции чистые, без float в
// расчётах: float64 допустим только на входе процентов.
//
// Функции:
// - CeilDiv: деление с округлением вверх
// - PctMinor: процент от суммы с округлением вверх
// - ConvertMinor: конвертация фиата в актив по курсу
// - FormatFiatMinor / FormatAssetMinor: вывод для чата

// CeilDiv возвращает ceil(a / b) для неотрицательных a и положительных b
func CeilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// PctMinor возвращает pct процентов от суммы, округляя вверх
// (в пользу сервиса). Проценты заданы с точностью до сотых.
//
// Пример:
//
//	PctMinor(150000, 4.0) // 6000 копеек с 1500 руб
func PctMinor(amountMinor int64, pct float64) int64 {
	if amountMinor <= 0 || pct <= 0 {
		return 0
	}
	// pct с точностью 0.01% → базис 10000
	bps := int64(pct * 100)
	return CeilDiv(amountMinor*bps, 10000)
}

// ConvertMinor конвертирует сумму фиата в минорные единицы актива.
//
// Параметры:
//   - fiatMinor: сумма в копейках
//   - assetMinorPerUnit: минорных единиц актива в одной целой (1e8 для BTC)
//   - priceMinor: цена одной целой единицы актива в копейках
//
// Округление вниз: пользователь не получает больше, чем оплатил.
func ConvertMinor(fiatMinor, assetMinorPerUnit, priceMinor int64) int64 {
	if fiatMinor <= 0 || assetMinorPerUnit <= 0 || priceMinor <= 0 {
		return 0
	}
	return fiatMinor * assetMinorPerUnit / priceMinor
}

// FormatFiatMinor форматирует копейки в строку для чата:
// целые рубли без дробной части, иначе две цифры после точки.
//
// Примеры:
//
//	FormatFiatMinor(150000)  // "1 500"
//	FormatFiatMinor(150050)  // "1 500.50"
func FormatFiatMinor(minor int64) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}

	whole := minor / 100
	frac := minor % 100

	s := groupThousands(whole)
	if frac != 0 {
		s = fmt.Sprintf("%s.%02d", s, frac)
	}
	if negative {
		s = "-" + s
	}
	return s
}

// FormatAssetMinor форматирует минорные единицы актива:
// сатоши выводятся как есть, с группировкой тысяч.
//
// Пример:
//
//	FormatAssetMinor(1234567) // "1 234 567"
func FormatAssetMinor(minor int64) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}
	s := groupThousands(minor)
	if negative {
		s = "-" + s
	}
	return s
}

// groupThousands разбивает число на группы по три цифры пробелами
func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// AbsInt64 возвращает абсолютное значение
func AbsInt64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// MinInt64 возвращает минимум из двух чисел
func MinInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// MaxInt64 возвращает максимум из двух чисел
func MaxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// ClampInt64 ограничивает значение диапазоном [min, max]
func ClampInt64(value, min, max int64) int64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
