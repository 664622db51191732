package addrmgr

import (
	"context"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

func TestSeedFromDNS(t *testing.T) {
	params := chaincfg.MainNetParams
	params.DNSSeeds = []string{"seed-a.example", "seed-b.example", "seed-broken.example"}

	lookup := func(ctx context.Context, host string) ([]net.IP, error) {
		switch host {
		case "seed-a.example":
			return []net.IP{net.ParseIP("1.2.3.4"), net.ParseIP("5.6.7.8")}, nil
		case "seed-b.example":
			return []net.IP{net.ParseIP("9.10.11.12")}, nil
		}
		return nil, errors.New("no such host")
	}

	addrs, err := SeedFromDNS(context.Background(), &params, wire.SFNodeNetwork, lookup)
	if err != nil {
		t.Fatalf("SeedFromDNS unexpectedly failed: %s", err)
	}

	keys := make([]string, len(addrs))
	for i, na := range addrs {
		keys[i] = na.Key()
		if na.Services != wire.SFNodeNetwork {
			t.Errorf("seeded address %s has services %s", keys[i], na.Services)
		}
		age := time.Since(na.Timestamp)
		if age < 3*24*time.Hour || age > 7*24*time.Hour {
			t.Errorf("seeded address %s has timestamp %s", keys[i], na.Timestamp)
		}
	}
	sort.Strings(keys)
	expected := []string{"1.2.3.4:9999", "5.6.7.8:9999", "9.10.11.12:9999"}
	if len(keys) != len(expected) {
		t.Fatalf("expected %d addresses, got %v", len(expected), keys)
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("address #%d: got %s, want %s", i, keys[i], expected[i])
		}
	}
}

func TestSeedFromDNSCanceled(t *testing.T) {
	params := chaincfg.MainNetParams
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lookup := func(ctx context.Context, host string) ([]net.IP, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	addrs, err := SeedFromDNS(ctx, &params, wire.SFNodeNetwork, lookup)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(addrs) != 0 {
		t.Errorf("expected no addresses, got %d", len(addrs))
	}
}
