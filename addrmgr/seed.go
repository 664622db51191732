// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"context"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/wire"
	"golang.org/x/sync/errgroup"
)

const (
	// These constants are used by the DNS seed code to pick a random last
	// seen time.
	secondsIn3Days int32 = 24 * 60 * 60 * 3
	secondsIn4Days int32 = 24 * 60 * 60 * 4
)

// LookupFunc resolves a host name into its IP addresses.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// DefaultLookup resolves host names with the system resolver.
func DefaultLookup(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

// SeedFromDNS uses DNS seeding to populate the address manager with peers.
// Every seed of the network is queried concurrently. A seed that fails to
// resolve is logged and skipped. The returned error is non-nil only when ctx
// is canceled before all seeds answered.
func SeedFromDNS(ctx context.Context, params *chaincfg.Params, reqServices wire.ServiceFlag,
	lookup LookupFunc) ([]*wire.NetAddress, error) {

	port, err := strconv.ParseUint(params.DefaultPort, 10, 16)
	if err != nil {
		return nil, err
	}

	var mtx sync.Mutex
	var addresses []*wire.NetAddress
	group, groupCtx := errgroup.WithContext(ctx)
	for _, dnsseed := range params.DNSSeeds {
		host := dnsseed
		group.Go(func() error {
			randSource := rand.New(rand.NewSource(time.Now().UnixNano()))

			seedpeers, err := lookup(groupCtx, host)
			if err != nil {
				log.Infof("DNS discovery failed on seed %s: %s", host, err)
				return nil
			}
			numPeers := len(seedpeers)

			log.Infof("%d addresses found from DNS seed %s", numPeers, host)

			if numPeers == 0 {
				return nil
			}
			seeded := make([]*wire.NetAddress, len(seedpeers))
			for i, peer := range seedpeers {
				// bitcoind seeds with addresses from
				// a time randomly selected between 3
				// and 7 days ago.
				seeded[i] = wire.NewNetAddressTimestamp(
					time.Now().Add(-1*time.Second*time.Duration(secondsIn3Days+
						randSource.Int31n(secondsIn4Days))),
					reqServices, peer, uint16(port))
			}

			mtx.Lock()
			defer mtx.Unlock()
			addresses = append(addresses, seeded...)
			return nil
		})
	}

	_ = group.Wait()
	return addresses, ctx.Err()
}
