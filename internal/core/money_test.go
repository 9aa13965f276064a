package core

import "testing"

func TestParseRupiah(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 1, true},
		{"1.500.000", 1500000, true},
		{"Rp 20.000", 20000, true},
		{" 2 500 ", 2500, true},
		{"1000000000000", MaxAmount, true},
		{"1000000000001", MaxAmount, true},
		{"99999999999999999999999", MaxAmount, true}, // overflows int64, still clamped
		{"0", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseRupiah(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %d", tc.in, got)
		}
	}
}

func TestFormatRupiah(t *testing.T) {
	cases := map[int64]string{
		0:          "0",
		999:        "999",
		1000:       "1.000",
		1500000:    "1.500.000",
		MaxAmount:  "1.000.000.000.000",
		1234567890: "1.234.567.890",
	}
	for in, want := range cases {
		if got := FormatRupiah(in); got != want {
			t.Errorf("FormatRupiah(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatInput(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"abc", ""},
		{"0", "0"},
		{"150000", "150.000"},
		{"150.0001", "1.500.001"},
		{"5000000000000", "1.000.000.000.000"},
	}
	for _, tc := range cases {
		if got := FormatInput(tc.in); got != tc.want {
			t.Errorf("FormatInput(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMoneyString(t *testing.T) {
	if got := (Money{Amount: 200000}).String(); got != "Rp 200.000" {
		t.Fatalf("got %q", got)
	}
	if got := (Money{Amount: -5000}).String(); got != "-Rp 5.000" {
		t.Fatalf("got %q", got)
	}
}
