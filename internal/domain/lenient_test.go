package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAmountCoercesNonNumericToZero(t *testing.T) {
	cases := map[string]string{
		`{"buyPrice": 12.5}`:  "12.5",
		`{"buyPrice": "40"}`:  "40",
		`{"buyPrice": "abc"}`: "0",
		`{"buyPrice": null}`:  "0",
		`{"buyPrice": true}`:  "0",
		`{}`:                  "0",
		`{"buyPrice": " 7 "}`: "7",
	}
	for body, want := range cases {
		var req ItemRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		if !req.BuyPrice.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("%s: expected %s, got %s", body, want, req.BuyPrice.String())
		}
	}
}

func TestRefIDAcceptsNumericStrings(t *testing.T) {
	cases := map[string]RefID{
		`{"saleId": 3}`:    3,
		`{"saleId": "4"}`:  4,
		`{"saleId": 5.0}`:  5,
		`{"saleId": -1}`:   0,
		`{"saleId": "x"}`:  0,
		`{"saleId": null}`: 0,
		`{"saleId": 2.5}`:  0,
	}
	for body, want := range cases {
		var req PaymentCreateRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		if req.SaleID != want {
			t.Fatalf("%s: expected %d, got %d", body, want, req.SaleID)
		}
	}
}

func TestMoneyMarshalsAsNumber(t *testing.T) {
	payload, err := json.Marshal(Item{ID: 1, Name: "Ring", BuyPrice: decimal.RequireFromString("10.50"), SellPrice: decimal.NewFromInt(15)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":1,"name":"Ring","buyPrice":10.5,"sellPrice":15}`
	if string(payload) != want {
		t.Fatalf("expected %s, got %s", want, payload)
	}
}
