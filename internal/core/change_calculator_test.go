package core

import "testing"

func TestCalculateChangeZeroAmount(t *testing.T) {
	plan, err := CalculateChange(0, nil, nil, nil, CurrencyPHP)
	if err != nil {
		t.Fatalf("CalculateChange(0): %v", err)
	}
	if len(plan.Items) != 0 || plan.TotalAmount != 0 || !plan.IsExact {
		t.Fatalf("expected empty exact plan, got %+v", plan)
	}
}

func TestCalculateChangeNegativeAmount(t *testing.T) {
	plan, err := CalculateChange(-50, nil, nil, nil, CurrencyPHP)
	if err != nil {
		t.Fatalf("CalculateChange(-50): %v", err)
	}
	if len(plan.Items) != 0 || plan.TotalAmount != 0 || plan.IsExact {
		t.Fatalf("expected empty inexact plan for negative amount, got %+v", plan)
	}
}

func TestCalculateChangeGreedyBillsBeforeCoins(t *testing.T) {
	bills := map[string]int{string(PHP500): 10, string(PHP100): 10}
	coins := map[int]int{20: 10, 10: 10}

	plan, err := CalculateChange(530, bills, coins, nil, CurrencyPHP)
	if err != nil {
		t.Fatalf("CalculateChange: %v", err)
	}
	if !plan.IsExact || plan.TotalAmount != 530 {
		t.Fatalf("expected exact plan totalling 530, got %+v", plan)
	}
	if plan.Items[0].Kind != "bill" || plan.Items[len(plan.Items)-1].Kind != "coin" {
		t.Fatalf("expected bills to precede coins: %+v", plan.Items)
	}
	sum := 0
	for _, it := range plan.Items {
		sum += it.Count * it.PerUnit
	}
	if sum != plan.TotalAmount {
		t.Fatalf("item sum %d does not match total_amount %d", sum, plan.TotalAmount)
	}
}

// Preferred denominations are tried first, in descending face value:
// amount=250 with a preference for [50, 200] yields {PHP_200,1} then
// {PHP_50,1} even though PHP_100 is available.
func TestCalculateChangePreferredOrder(t *testing.T) {
	bills := map[string]int{
		string(PHP1000): 50, string(PHP500): 50, string(PHP200): 50,
		string(PHP100): 50, string(PHP50): 50,
	}
	coins := map[int]int{}

	plan, err := CalculateChange(250, bills, coins, []int{50, 200}, CurrencyPHP)
	if err != nil {
		t.Fatalf("CalculateChange: %v", err)
	}
	if len(plan.Items) != 2 {
		t.Fatalf("expected 2 items, got %+v", plan.Items)
	}
	if plan.Items[0].Denom != string(PHP200) || plan.Items[0].Count != 1 {
		t.Fatalf("expected first item PHP_200 x1, got %+v", plan.Items[0])
	}
	if plan.Items[1].Denom != string(PHP50) || plan.Items[1].Count != 1 {
		t.Fatalf("expected second item PHP_50 x1, got %+v", plan.Items[1])
	}
}

func TestCalculateChangeInsufficientInventory(t *testing.T) {
	bills := map[string]int{string(PHP100): 1}
	coins := map[int]int{}

	_, err := CalculateChange(300, bills, coins, nil, CurrencyPHP)
	if err == nil {
		t.Fatal("expected InsufficientInventory error")
	}
	insufficient, ok := err.(*InsufficientInventory)
	if !ok {
		t.Fatalf("expected *InsufficientInventory, got %T", err)
	}
	if insufficient.Requested != 300 || insufficient.Available != 100 || insufficient.Shortfall != 200 {
		t.Fatalf("unexpected insufficiency fields: %+v", insufficient)
	}
}

func TestCalculateChangeUnsupportedCurrency(t *testing.T) {
	_, err := CalculateChange(100, nil, nil, nil, CurrencyUSD)
	if err == nil {
		t.Fatal("expected configuration error for unsupported currency")
	}
}

func TestCalculateChangeDoesNotMutateCallerMaps(t *testing.T) {
	bills := map[string]int{string(PHP100): 5}
	coins := map[int]int{20: 5}

	if _, err := CalculateChange(100, bills, coins, nil, CurrencyPHP); err != nil {
		t.Fatalf("CalculateChange: %v", err)
	}
	if bills[string(PHP100)] != 5 {
		t.Fatalf("expected caller's bill map untouched, got %d", bills[string(PHP100)])
	}
	if coins[20] != 5 {
		t.Fatalf("expected caller's coin map untouched, got %d", coins[20])
	}
}

func TestDenomStringRoundTrip(t *testing.T) {
	for cur, byValue := range currencyBillsByValue {
		for value, denom := range byValue {
			if got := ValueToDenomString(value, cur); got != denom {
				t.Fatalf("ValueToDenomString(%d, %s) = %s, want %s", value, cur, got, denom)
			}
			if got := DenomStringToValue(denom); got != value {
				t.Fatalf("DenomStringToValue(%s) = %d, want %d", denom, got, value)
			}
		}
	}
}
