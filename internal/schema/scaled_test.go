package schema

import (
	"testing"
)

func TestPriceFormat(t *testing.T) {
	cases := []struct {
		price Price
		scale int
		want  string
	}{
		{Price(1234500), 2, "12345.00"},
		{Price(1234500), 4, "123.4500"},
		{Price(50), 4, "0.0050"},
		{Price(-987), 2, "-9.87"},
		{Price(42), 0, "42"},
		{Price(0), 3, "0.000"},
	}
	for _, c := range cases {
		if got := c.price.Format(c.scale); got != c.want {
			t.Fatalf("Format(%d, scale %d) = %q, want %q", c.price, c.scale, got, c.want)
		}
	}
}

func TestAppendStringReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 32)
	buf = Price(104_0000).AppendString(4, buf)
	buf = append(buf, ' ')
	buf = Quantity(25).AppendString(0, buf)
	if got := string(buf); got != "104.0000 25" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}

func TestParseScaled(t *testing.T) {
	cases := []struct {
		in    string
		scale int
		want  int64
	}{
		{"104.5", 4, 1045000},
		{"104.56789", 4, 1045678},
		{"-0.01", 2, -1},
		{".5", 2, 50},
		{"+7", 0, 7},
	}
	for _, c := range cases {
		got, err := ParseScaled(c.in, c.scale)
		if err != nil {
			t.Fatalf("ParseScaled(%q, %d), err: %+v", c.in, c.scale, err)
		}
		if got != c.want {
			t.Fatalf("ParseScaled(%q, %d) = %d, want %d", c.in, c.scale, got, c.want)
		}
	}

	for _, in := range []string{"", ".", "abc", "1.2.3"} {
		if _, err := ParseScaled(in, 2); err == nil {
			t.Fatalf("ParseScaled(%q) should fail", in)
		}
	}
}

func TestMulNotionalOverflow(t *testing.T) {
	n, overflow := MulNotional(Price(1045000), 10)
	if overflow {
		t.Fatal("unexpected overflow")
	}
	if n != 10450000 {
		t.Fatalf("notional = %d, want 10450000", n)
	}

	if _, overflow := MulNotional(Price(maxInt64/2), 3); !overflow {
		t.Fatal("expected overflow")
	}
	if n, overflow := MulNotional(0, 1<<62); overflow || n != 0 {
		t.Fatalf("zero price must not overflow, got %d, %v", n, overflow)
	}
}

func TestPositionPnL(t *testing.T) {
	long := Position{Direction: DirectionLong, Qty: 10, EntryPrice: 1000}
	if pnl := long.UnrealizedPnL(1050); pnl != 500 {
		t.Fatalf("long unrealized = %d, want 500", pnl)
	}
	short := Position{Direction: DirectionShort, Qty: 5, EntryPrice: 1000, ExitPrice: 900, ExitTs: 1}
	if pnl := short.RealizedPnL(); pnl != 500 {
		t.Fatalf("short realized = %d, want 500", pnl)
	}
	if pnl := long.UnrealizedPnL(0); pnl != 0 {
		t.Fatalf("zero mark must yield zero pnl, got %d", pnl)
	}
}
