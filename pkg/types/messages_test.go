package types

import (
	"encoding/json"
	"testing"
)

func TestInt64UnmarshalVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{`123`, 123, false},
		{`"123"`, 123, false},
		{`-5`, -5, false},
		{`"-5"`, -5, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
		{`1.5`, 0, true},
	}

	for _, tt := range tests {
		var v Int64
		err := json.Unmarshal([]byte(tt.in), &v)
		if tt.wantErr {
			if err == nil {
				t.Errorf("unmarshal %s: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("unmarshal %s: %v", tt.in, err)
			continue
		}
		if v.Int() != tt.want {
			t.Errorf("unmarshal %s = %d, want %d", tt.in, v, tt.want)
		}
	}
}

func TestStreamMessageDecodeTicker(t *testing.T) {
	t.Parallel()

	frame := `{"channel":"d5f06780-30a8-4a48-a2f8-7ed181b4a13f","op":"private",` +
		`"ticker":{"buy":{"value_int":"1000000","currency":"USD"},` +
		`"sell":{"value_int":1010000,"currency":"USD"}}}`

	var msg StreamMessage
	if err := json.Unmarshal([]byte(frame), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Ticker == nil {
		t.Fatal("ticker key not decoded")
	}
	if msg.Ticker.Buy.ValueInt.Int() != 1000000 {
		t.Errorf("buy = %d, want 1000000", msg.Ticker.Buy.ValueInt)
	}
	if msg.Ticker.Sell.ValueInt.Int() != 1010000 {
		t.Errorf("sell = %d, want 1010000", msg.Ticker.Sell.ValueInt)
	}
	if msg.Depth != nil || msg.Trade != nil || msg.UserOrder != nil {
		t.Error("unrelated keys must stay nil")
	}
}

func TestStreamMessageDecodeDepth(t *testing.T) {
	t.Parallel()

	frame := `{"op":"private","depth":{"currency":"USD","type_str":"ask",` +
		`"price_int":"1010000","volume_int":"100000000","total_volume_int":"100000000"}}`

	var msg StreamMessage
	if err := json.Unmarshal([]byte(frame), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d := msg.Depth
	if d == nil {
		t.Fatal("depth key not decoded")
	}
	if d.TypeStr != Ask {
		t.Errorf("type_str = %q, want ask", d.TypeStr)
	}
	if d.PriceInt.Int() != 1010000 || d.TotalVolumeInt.Int() != 100000000 {
		t.Errorf("price/total = %d/%d", d.PriceInt, d.TotalVolumeInt)
	}
}

func TestStreamMessageDecodeUserOrderRemoval(t *testing.T) {
	t.Parallel()

	frame := `{"op":"private","user_order":{"oid":"abc-123"}}`

	var msg StreamMessage
	if err := json.Unmarshal([]byte(frame), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.UserOrder == nil {
		t.Fatal("user_order key not decoded")
	}
	if msg.UserOrder.Price != nil {
		t.Error("removal message must have nil price")
	}
	if msg.UserOrder.OID != "abc-123" {
		t.Errorf("oid = %q", msg.UserOrder.OID)
	}
}

func TestStreamMessageDecodeRemark(t *testing.T) {
	t.Parallel()

	frame := `{"op":"remark","id":"orders","success":false,"message":"Method not found"}`

	var msg StreamMessage
	if err := json.Unmarshal([]byte(frame), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Op != "remark" || msg.ID != "orders" {
		t.Errorf("op/id = %q/%q", msg.Op, msg.ID)
	}
	if msg.Success == nil || *msg.Success {
		t.Error("success must decode to false")
	}
}

func TestRestResultEnvelope(t *testing.T) {
	t.Parallel()

	body := `{"result":"success","return":{"asks":[{"price_int":"1005000","amount_int":"50000000"}],` +
		`"bids":[{"price_int":"1000000","amount_int":"25000000"}]}}`

	var res RestResult[DepthSnapshot]
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.OK() {
		t.Fatal("expected success envelope")
	}
	if len(res.Return.Asks) != 1 || res.Return.Asks[0].PriceInt.Int() != 1005000 {
		t.Errorf("asks = %+v", res.Return.Asks)
	}
	if len(res.Return.Bids) != 1 || res.Return.Bids[0].AmountInt.Int() != 25000000 {
		t.Errorf("bids = %+v", res.Return.Bids)
	}

	var fail RestResult[string]
	if err := json.Unmarshal([]byte(`{"result":"error","error":"Identification required"}`), &fail); err != nil {
		t.Fatalf("unmarshal failure envelope: %v", err)
	}
	if fail.OK() {
		t.Error("error envelope must not report OK")
	}
}
