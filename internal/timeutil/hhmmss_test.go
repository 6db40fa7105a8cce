package timeutil

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for s := 0; s < 86400; s += 37 {
		got := Decode(Encode(s))
		if got != s {
			t.Fatalf("decode(encode(%d)) = %d, want %d", s, got, s)
		}
	}
}

func TestEncode(t *testing.T) {
	cases := []struct {
		seconds int
		want    int
	}{
		{0, 0},
		{3661, 10101},
		{86399, 235959},
	}
	for _, c := range cases {
		if got := Encode(c.seconds); got != c.want {
			t.Errorf("Encode(%d) = %d, want %d", c.seconds, got, c.want)
		}
	}
}
