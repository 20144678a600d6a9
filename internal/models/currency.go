package models

import "cryptodesk/pkg/utils"

// Валюты и сети. Каталог фиксированный: выбор сети зависит от валюты,
// у биткоина быстрая сеть (lightning) и базовая (onchain).
const (
	CurrencyBTC  = "BTC"
	CurrencyUSDT = "USDT"
)

const (
	NetworkLightning = "lightning"
	NetworkOnchain   = "onchain"
	NetworkTRC20     = "trc20"
)

// Способы оплаты
const (
	MethodSBP  = "sbp"  // перевод по СБП
	MethodCard = "card" // перевод на карту
)

// NetworkSpec описывает параметры сети для расчёта комиссий и лимитов
type NetworkSpec struct {
	Network         string
	CommissionPct   float64 // комиссия сервиса, %
	PartnerFeeMinor int64   // фиксированная комиссия партнёра, копейки
	MinAmountMinor  int64   // минимальная сумма, копейки
	MaxAmountMinor  int64   // максимальная сумма, копейки
}

// networks - каталог сетей по валютам.
// Lightning дешевле и быстрее, лимиты у него ниже.
var networks = map[string][]NetworkSpec{
	CurrencyBTC: {
		{
			Network:         NetworkLightning,
			CommissionPct:   4.0,
			PartnerFeeMinor: 3000,     // 30 руб
			MinAmountMinor:  50000,    // 500 руб
			MaxAmountMinor:  10000000, // 100 000 руб
		},
		{
			Network:         NetworkOnchain,
			CommissionPct:   5.0,
			PartnerFeeMinor: 15000,    // 150 руб (сетевая комиссия)
			MinAmountMinor:  500000,   // 5 000 руб
			MaxAmountMinor:  50000000, // 500 000 руб
		},
	},
	CurrencyUSDT: {
		{
			Network:         NetworkTRC20,
			CommissionPct:   5.0,
			PartnerFeeMinor: 10000,
			MinAmountMinor:  100000,
			MaxAmountMinor:  30000000,
		},
	},
}

// Минорные единицы актива на одну целую единицу (sat/BTC и т.п.)
var assetMinorPerUnit = map[string]int64{
	CurrencyBTC:  100_000_000, // сатоши
	CurrencyUSDT: 1_000_000,
}

// AssetMinorPerUnit возвращает число минорных единиц в одной единице актива
func AssetMinorPerUnit(currency string) int64 {
	if v, ok := assetMinorPerUnit[currency]; ok {
		return v
	}
	return 1
}

// SupportedCurrencies возвращает список поддерживаемых валют
func SupportedCurrencies() []string {
	return []string{CurrencyBTC, CurrencyUSDT}
}

// IsSupportedCurrency проверяет валюту по каталогу
func IsSupportedCurrency(currency string) bool {
	_, ok := networks[currency]
	return ok
}

// NetworksFor возвращает доступные сети для валюты
func NetworksFor(currency string) []NetworkSpec {
	return networks[currency]
}

// NetworkSpecFor возвращает спецификацию сети или nil, если связка не поддерживается
func NetworkSpecFor(currency, network string) *NetworkSpec {
	for _, spec := range networks[currency] {
		if spec.Network == network {
			s := spec
			return &s
		}
	}
	return nil
}

// Quote - расчёт комиссий для суммы в минорных единицах.
// Чистые функции без состояния, вся арифметика целочисленная.
type Quote struct {
	FiatAmountMinor int64
	CommissionMinor int64
	PartnerFeeMinor int64
	// Сумма после вычета комиссий - из неё считается объём выплаты
	NetFiatMinor int64
}

// QuoteFor считает комиссии по спецификации сети.
// Процентная комиссия округляется вверх (в пользу сервиса).
func QuoteFor(amountMinor int64, spec *NetworkSpec) Quote {
	commission := utils.PctMinor(amountMinor, spec.CommissionPct)

	return Quote{
		FiatAmountMinor: amountMinor,
		CommissionMinor: commission,
		PartnerFeeMinor: spec.PartnerFeeMinor,
		NetFiatMinor:    amountMinor - commission - spec.PartnerFeeMinor,
	}
}
