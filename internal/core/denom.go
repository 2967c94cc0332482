package core

import "fmt"

// BillDenom is a closed enumeration of bill denominations accepted and
// dispensed by the kiosk, partitioned by currency.
type BillDenom string

const (
	PHP20   BillDenom = "PHP_20"
	PHP50   BillDenom = "PHP_50"
	PHP100  BillDenom = "PHP_100"
	PHP200  BillDenom = "PHP_200"
	PHP500  BillDenom = "PHP_500"
	PHP1000 BillDenom = "PHP_1000"
	USD10   BillDenom = "USD_10"
	USD50   BillDenom = "USD_50"
	USD100  BillDenom = "USD_100"
	EUR5    BillDenom = "EUR_5"
	EUR10   BillDenom = "EUR_10"
	EUR20   BillDenom = "EUR_20"
)

// CoinDenom is a closed enumeration of coin denominations, local currency
// only.
type CoinDenom int

const (
	Coin1  CoinDenom = 1
	Coin5  CoinDenom = 5
	Coin10 CoinDenom = 10
	Coin20 CoinDenom = 20
)

// SortSlot identifies one of the 8 physical storage compartments behind the
// sorter rail.
type SortSlot int

const (
	Slot1 SortSlot = iota + 1
	Slot2
	Slot3
	Slot4
	Slot5
	Slot6
	Slot7 // USD (all denominations)
	Slot8 // EUR (all denominations)
)

// Currency identifies the currency family a bill denomination belongs to.
type Currency string

const (
	CurrencyPHP Currency = "PHP"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// denomToSlot maps each bill denomination to its static sort slot.
var denomToSlot = map[BillDenom]SortSlot{
	PHP20: Slot1, PHP50: Slot2, PHP100: Slot3,
	PHP200: Slot4, PHP500: Slot5, PHP1000: Slot6,
	USD10: Slot7, USD50: Slot7, USD100: Slot7,
	EUR5: Slot8, EUR10: Slot8, EUR20: Slot8,
}

// slotPositions maps each sort slot to its stepper position, equidistant
// travel from home.
var slotPositions = map[SortSlot]int{
	Slot1: 2920, Slot2: 8760, Slot3: 14600, Slot4: 20440,
	Slot5: 26280, Slot6: 32120, Slot7: 37960, Slot8: 43800,
}

// billDenomValues maps each bill denomination to its integer face value.
var billDenomValues = map[BillDenom]int{
	PHP20: 20, PHP50: 50, PHP100: 100, PHP200: 200, PHP500: 500, PHP1000: 1000,
	USD10: 10, USD50: 50, USD100: 100,
	EUR5: 5, EUR10: 10, EUR20: 20,
}

// coinDenomValues maps each coin denomination to its integer face value.
var coinDenomValues = map[CoinDenom]int{
	Coin1: 1, Coin5: 5, Coin10: 10, Coin20: 20,
}

// billDenomCurrency maps each bill denomination to its currency family.
var billDenomCurrency = map[BillDenom]Currency{
	PHP20: CurrencyPHP, PHP50: CurrencyPHP, PHP100: CurrencyPHP,
	PHP200: CurrencyPHP, PHP500: CurrencyPHP, PHP1000: CurrencyPHP,
	USD10: CurrencyUSD, USD50: CurrencyUSD, USD100: CurrencyUSD,
	EUR5: CurrencyEUR, EUR10: CurrencyEUR, EUR20: CurrencyEUR,
}

// currencyBillsByValue lists, per currency, the bill denominations keyed by
// integer face value — the inverse of the frontend/protocol conversion the
// UI and change calculator rely on.
var currencyBillsByValue = map[Currency]map[int]BillDenom{
	CurrencyPHP: {20: PHP20, 50: PHP50, 100: PHP100, 200: PHP200, 500: PHP500, 1000: PHP1000},
	CurrencyUSD: {10: USD10, 50: USD50, 100: USD100},
	CurrencyEUR: {5: EUR5, 10: EUR10, 20: EUR20},
}

// dispenserUnits maps a physical dispenser unit index to the bill
// denomination it is loaded with.
var dispenserUnits = map[int]BillDenom{
	1: PHP20, 2: PHP50, 3: PHP100, 4: PHP200, 5: PHP500, 6: PHP1000,
	7: USD10, 8: USD50, 9: USD100, 10: EUR5, 11: EUR10, 12: EUR20,
}

// SlotOf returns the sort slot a bill denomination is routed to.
func SlotOf(d BillDenom) (SortSlot, bool) {
	s, ok := denomToSlot[d]
	return s, ok
}

// StepperPosition returns the stepper travel position for a sort slot.
func StepperPosition(s SortSlot) (int, bool) {
	p, ok := slotPositions[s]
	return p, ok
}

// BillValue returns the integer face value of a bill denomination.
func BillValue(d BillDenom) int {
	return billDenomValues[d]
}

// CoinValue returns the integer face value of a coin denomination.
func CoinValue(d CoinDenom) int {
	return coinDenomValues[d]
}

// CurrencyOf returns the currency family a bill denomination belongs to.
func CurrencyOf(d BillDenom) (Currency, bool) {
	c, ok := billDenomCurrency[d]
	return c, ok
}

// StorageKey returns the consumables storage-group key for a bill
// denomination: PHP denominations use a per-denomination key, USD and EUR
// are aggregated because they share a sort slot.
func StorageKey(d BillDenom) string {
	cur, ok := CurrencyOf(d)
	if !ok {
		return string(d)
	}
	if cur == CurrencyPHP {
		return string(d)
	}
	return string(cur)
}

// ValueToDenomString converts an integer face value, under the given
// currency, to its protocol denomination string. Unknown (value, currency)
// pairs fall back to a synthesized "<currency>_<value>" string so the
// conversion is total.
func ValueToDenomString(value int, currency Currency) BillDenom {
	if byValue, ok := currencyBillsByValue[currency]; ok {
		if d, ok := byValue[value]; ok {
			return d
		}
	}
	return BillDenom(fmt.Sprintf("%s_%d", currency, value))
}

// DenomStringToValue extracts the integer face value from a protocol
// denomination string. It is the left inverse of ValueToDenomString over the
// closed catalog.
func DenomStringToValue(d BillDenom) int {
	return billDenomValues[d]
}

// DispenserUnit returns the bill denomination loaded into dispenser unit
// index idx.
func DispenserUnit(idx int) (BillDenom, bool) {
	d, ok := dispenserUnits[idx]
	return d, ok
}

// AllBillDenoms returns the closed catalog of bill denominations.
func AllBillDenoms() []BillDenom {
	return []BillDenom{PHP20, PHP50, PHP100, PHP200, PHP500, PHP1000, USD10, USD50, USD100, EUR5, EUR10, EUR20}
}

// AllCoinDenoms returns the closed catalog of coin denominations.
func AllCoinDenoms() []CoinDenom {
	return []CoinDenom{Coin1, Coin5, Coin10, Coin20}
}
