package ownership

import (
	"context"
	"testing"
)

func TestStaticResolver_Resolve(t *testing.T) {
	r := NewStaticResolver(map[string][]string{
		"eth": {"ou_eth_1", "ou_eth_2"},
		"*":   {"ou_any"},
	}, []string{"ou_default"})
	ctx := context.Background()

	tests := []struct {
		network string
		want    []string
	}{
		{"ETH", []string{"ou_eth_1", "ou_eth_2"}},
		{"Eth", []string{"ou_eth_1", "ou_eth_2"}},
		{"BTC", []string{"ou_any"}},
	}
	for _, tt := range tests {
		got, err := r.Resolve(ctx, tt.network)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.network, err)
		}
		if len(got) != len(tt.want) || got[0] != tt.want[0] {
			t.Errorf("Resolve(%s) = %v, want %v", tt.network, got, tt.want)
		}
	}

	got, _ := r.Resolve(ctx, "ETH")
	got[0] = "mutated"
	again, _ := r.Resolve(ctx, "ETH")
	if again[0] != "ou_eth_1" {
		t.Error("Resolve must return a copy")
	}

	r = NewStaticResolver(nil, []string{"ou_default"})
	if got, _ := r.Resolve(ctx, "SOL"); len(got) != 1 || got[0] != "ou_default" {
		t.Errorf("default: got %v", got)
	}
	if got, _ := (StubResolver{}).Resolve(ctx, "SOL"); got != nil {
		t.Errorf("stub: got %v", got)
	}
}
