package commission

import (
	"errors"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name           string
		gross          int64
		rate           int
		wantCommission int64
		wantNet        int64
	}{
		{"even split", 10000, 15, 1500, 8500},
		{"remainder stays in net", 10001, 15, 1500, 8501},
		{"typical job", 45000, 15, 6750, 38250},
		{"zero rate", 5000, 0, 0, 5000},
		{"full rate", 5000, 100, 5000, 0},
		{"one cent", 1, 15, 0, 1},
		{"floor not round", 199, 50, 99, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commission, net, err := Split(tt.gross, tt.rate)
			if err != nil {
				t.Fatalf("Split(%d, %d) failed: %v", tt.gross, tt.rate, err)
			}
			if commission != tt.wantCommission {
				t.Errorf("commission = %d, want %d", commission, tt.wantCommission)
			}
			if net != tt.wantNet {
				t.Errorf("net = %d, want %d", net, tt.wantNet)
			}
			if commission+net != tt.gross {
				t.Errorf("commission %d + net %d != gross %d", commission, net, tt.gross)
			}
		})
	}
}

func TestSplit_InvalidInput(t *testing.T) {
	if _, _, err := Split(0, 15); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Split(0, 15) = %v, want ErrInvalidAmount", err)
	}
	if _, _, err := Split(-100, 15); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Split(-100, 15) = %v, want ErrInvalidAmount", err)
	}
	if _, _, err := Split(100, -1); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("Split(100, -1) = %v, want ErrInvalidRate", err)
	}
	if _, _, err := Split(100, 101); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("Split(100, 101) = %v, want ErrInvalidRate", err)
	}
}

func TestSplit_Conservation(t *testing.T) {
	// Exhaustive check over a range of amounts and all legal rates.
	for gross := int64(1); gross <= 1000; gross++ {
		for rate := 0; rate <= 100; rate++ {
			commission, net, err := Split(gross, rate)
			if err != nil {
				t.Fatalf("Split(%d, %d) failed: %v", gross, rate, err)
			}
			if commission+net != gross {
				t.Fatalf("Split(%d, %d): %d + %d != %d", gross, rate, commission, net, gross)
			}
			if commission > gross*int64(rate)/100 {
				t.Fatalf("Split(%d, %d): commission %d exceeds floor", gross, rate, commission)
			}
		}
	}
}
