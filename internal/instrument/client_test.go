package instrument

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/auth"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

const testDump = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
256265,1001,NIFTY 50,NIFTY 50,24500.2,,0,0.05,1,EQ,INDICES,NSE
9604354,37517,NIFTY24AUG22400CE,NIFTY,120.5,2024-08-22,22400,0.05,25,CE,NFO-OPT,NFO
9604610,37518,NIFTY24AUG22400PE,NIFTY,88.1,2024-08-22,22400,0.05,25,PE,NFO-OPT,NFO
13368834,52222,NIFTY24AUGFUT,NIFTY,24510,2024-08-29,0,0.05,25,FUT,NFO-FUT,NFO
notanumber,1,BROKEN,BROKEN,0,,0,0.05,1,CE,NFO-OPT,NFO
`

func TestInstruments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token testkey:tok-1" {
			t.Errorf("Authorization = %q, want %q", got, "token testkey:tok-1")
		}
		if r.URL.Path != "/instruments/NFO" {
			t.Errorf("path = %q, want /instruments/NFO", r.URL.Path)
		}
		fmt.Fprint(w, testDump)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "testkey", auth.NewTokenSource("tok-1"))

	instruments, err := client.Instruments(context.Background(), "NFO")
	if err != nil {
		t.Fatalf("Instruments failed: %v", err)
	}
	if len(instruments) != 4 {
		t.Fatalf("got %d instruments, want 4 (broken row skipped)", len(instruments))
	}

	call := instruments[1]
	if call.Token != 9604354 {
		t.Errorf("Token = %d, want 9604354", call.Token)
	}
	if call.TradingSymbol != "NIFTY24AUG22400CE" {
		t.Errorf("TradingSymbol = %q, want %q", call.TradingSymbol, "NIFTY24AUG22400CE")
	}
	if call.Kind != model.KindCall {
		t.Errorf("Kind = %v, want KindCall", call.Kind)
	}
	if call.Strike != 22400 {
		t.Errorf("Strike = %v, want 22400", call.Strike)
	}
	if call.Expiry.Format("2006-01-02") != "2024-08-22" {
		t.Errorf("Expiry = %s, want 2024-08-22", call.Expiry.Format("2006-01-02"))
	}
	if call.LotSize != 25 {
		t.Errorf("LotSize = %d, want 25", call.LotSize)
	}

	spot := instruments[0]
	if spot.Kind != model.KindSpot || !spot.Expiry.IsZero() {
		t.Errorf("spot row parsed as %+v, want KindSpot with zero expiry", spot)
	}
}

func TestInstrumentsEmptyDump(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange\n")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "testkey", auth.NewTokenSource("tok-1"))

	_, err := client.Instruments(context.Background(), "NFO")
	if !errors.Is(err, ErrEmptyDump) {
		t.Errorf("error = %v, want ErrEmptyDump", err)
	}
}

func TestInstrumentsAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"error","message":"Invalid token","error_type":"TokenException"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "testkey", auth.NewTokenSource("stale"))

	_, err := client.Instruments(context.Background(), "NFO")
	if !errors.Is(err, auth.ErrAuthRejected) {
		t.Errorf("error = %v, want ErrAuthRejected", err)
	}
}

func TestLTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote/ltp" {
			t.Errorf("path = %q, want /quote/ltp", r.URL.Path)
		}
		if got := r.URL.Query()["i"]; len(got) != 2 {
			t.Errorf("query i = %v, want two instruments", got)
		}
		fmt.Fprint(w, `{"status":"success","data":{`+
			`"NSE:NIFTY 50":{"instrument_token":256265,"last_price":24501.35},`+
			`"NSE:NIFTY BANK":{"instrument_token":260105,"last_price":51320.9}}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "testkey", auth.NewTokenSource("tok-1"))

	prices, err := client.LTP(context.Background(), "NSE:NIFTY 50", "NSE:NIFTY BANK")
	if err != nil {
		t.Fatalf("LTP failed: %v", err)
	}
	if prices["NSE:NIFTY 50"] != 24501.35 {
		t.Errorf(`prices["NSE:NIFTY 50"] = %v, want 24501.35`, prices["NSE:NIFTY 50"])
	}
	if prices["NSE:NIFTY BANK"] != 51320.9 {
		t.Errorf(`prices["NSE:NIFTY BANK"] = %v, want 51320.9`, prices["NSE:NIFTY BANK"])
	}
}

func TestFindSpot(t *testing.T) {
	universe := []model.Instrument{
		{Token: 1, Exchange: "NFO", TradingSymbol: "NIFTY24AUGFUT"},
		{Token: 256265, Exchange: "NSE", TradingSymbol: "NIFTY 50"},
	}

	spot, ok := FindSpot(universe, "NSE", "NIFTY 50")
	if !ok || spot.Token != 256265 {
		t.Errorf("FindSpot = %+v, %v; want token 256265", spot, ok)
	}

	if _, ok := FindSpot(universe, "NSE", "MISSING"); ok {
		t.Error("FindSpot found a symbol that does not exist")
	}
}
