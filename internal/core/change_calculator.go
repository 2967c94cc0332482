package core

// DispensePlanItem is a single payout unit within a DispensePlan.
type DispensePlanItem struct {
	Denom   string // bill denomination string, or "PHP_<value>" for a coin
	Kind    string // "bill" or "coin"
	Count   int
	PerUnit int
}

// DispensePlan is the ordered sequence of payout units computed from a
// target amount, available inventory, and optional user preferences. Bill
// items always precede coin items.
type DispensePlan struct {
	Items       []DispensePlanItem
	TotalAmount int
	IsExact     bool
}

// billDenomOrder is the PHP bill catalog sorted descending by face value.
var billDenomOrder = []struct {
	Denom BillDenom
	Value int
}{
	{PHP1000, 1000}, {PHP500, 500}, {PHP200, 200}, {PHP100, 100}, {PHP50, 50}, {PHP20, 20},
}

// coinDenomOrder is the coin catalog sorted descending by face value.
var coinDenomOrder = []struct {
	Denom CoinDenom
	Value int
}{
	{Coin20, 20}, {Coin10, 10}, {Coin5, 5}, {Coin1, 1},
}

// CalculateChange computes a DispensePlan for amount using the available
// bill and coin inventories (keyed by protocol denomination string and
// integer face value respectively). Caller-owned maps are never mutated.
//
// The algorithm is greedy by descending face value, bills before coins. When
// preferredDenoms is non-empty, within each group the preferred values
// (intersected with the catalog, descending) are tried before the rest of
// the catalog (descending).
//
// amount == 0 returns an empty exact plan. amount < 0 returns an empty plan
// with TotalAmount 0 (not exact). Only CurrencyPHP is supported; any other
// currency is a configuration error.
func CalculateChange(amount int, availableBills map[string]int, availableCoins map[int]int, preferredDenoms []int, currency Currency) (DispensePlan, error) {
	if currency != CurrencyPHP {
		return DispensePlan{}, &TransactionError{Message: "unsupported currency for change calculation: " + string(currency)}
	}
	if amount == 0 {
		return DispensePlan{Items: nil, TotalAmount: 0, IsExact: true}, nil
	}
	if amount < 0 {
		return DispensePlan{Items: nil, TotalAmount: 0, IsExact: false}, nil
	}

	remaining := amount
	var items []DispensePlanItem

	billsAvail := make(map[string]int, len(availableBills))
	for k, v := range availableBills {
		billsAvail[k] = v
	}
	coinsAvail := make(map[int]int, len(availableCoins))
	for k, v := range availableCoins {
		coinsAvail[k] = v
	}

	for _, entry := range orderedBillDenoms(preferredDenoms) {
		if remaining <= 0 {
			break
		}
		key := string(entry.Denom)
		avail := billsAvail[key]
		if avail <= 0 || entry.Value > remaining {
			continue
		}
		count := remaining / entry.Value
		if count > avail {
			count = avail
		}
		if count > 0 {
			items = append(items, DispensePlanItem{Denom: key, Kind: "bill", Count: count, PerUnit: entry.Value})
			remaining -= count * entry.Value
			billsAvail[key] = avail - count
		}
	}

	for _, entry := range orderedCoinDenoms(preferredDenoms) {
		if remaining <= 0 {
			break
		}
		avail := coinsAvail[entry.Value]
		if avail <= 0 || entry.Value > remaining {
			continue
		}
		count := remaining / entry.Value
		if count > avail {
			count = avail
		}
		if count > 0 {
			items = append(items, DispensePlanItem{Denom: coinKey(entry.Value), Kind: "coin", Count: count, PerUnit: entry.Value})
			remaining -= count * entry.Value
			coinsAvail[entry.Value] = avail - count
		}
	}

	dispensed := amount - remaining
	if remaining > 0 {
		return DispensePlan{}, &InsufficientInventory{Requested: amount, Available: dispensed, Shortfall: remaining}
	}

	return DispensePlan{Items: items, TotalAmount: dispensed, IsExact: true}, nil
}

func coinKey(value int) string {
	return string(ValueToDenomString(value, CurrencyPHP))
}

// orderedBillDenoms returns the PHP bill catalog ordered for greedy
// dispensing: preferred face values (intersected with the catalog,
// descending) first, then the remaining catalog entries descending.
func orderedBillDenoms(preferred []int) []struct {
	Denom BillDenom
	Value int
} {
	if len(preferred) == 0 {
		return billDenomOrder
	}
	prefSet := make(map[int]bool, len(preferred))
	for _, v := range preferred {
		prefSet[v] = true
	}
	var head, tail []struct {
		Denom BillDenom
		Value int
	}
	for _, e := range billDenomOrder {
		if prefSet[e.Value] {
			head = append(head, e)
		} else {
			tail = append(tail, e)
		}
	}
	return append(head, tail...)
}

// orderedCoinDenoms mirrors orderedBillDenoms for the coin catalog.
func orderedCoinDenoms(preferred []int) []struct {
	Denom CoinDenom
	Value int
} {
	if len(preferred) == 0 {
		return coinDenomOrder
	}
	prefSet := make(map[int]bool, len(preferred))
	for _, v := range preferred {
		prefSet[v] = true
	}
	var head, tail []struct {
		Denom CoinDenom
		Value int
	}
	for _, e := range coinDenomOrder {
		if prefSet[e.Value] {
			head = append(head, e)
		} else {
			tail = append(tail, e)
		}
	}
	return append(head, tail...)
}
