// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"encoding/json"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/dbaccess"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

const (
	// maxAddresses is the maximum number of addresses kept in memory.
	maxAddresses = 4096

	// needAddressThreshold is the number of addresses under which the
	// address manager will claim to need more addresses.
	needAddressThreshold = 1000

	// dumpAddressInterval is the interval used to dump the address
	// cache to disk for future use.
	dumpAddressInterval = time.Minute * 10

	// DefaultBanDuration is how long a misbehaving address is kept out of
	// the selection pool.
	DefaultBanDuration = 24 * time.Hour

	// serializationVersion is the current version of the persisted peers
	// state.
	serializationVersion = 1
)

// ErrAddressNotFound is an error returned from some functions when a
// given address is not found in the address manager
var ErrAddressNotFound = errors.New("address not found")

// Config holds the configuration of an AddrManager.
type Config struct {
	// Params selects the network whose address rules apply.
	Params *chaincfg.Params

	// DatabaseContext persists the known and banned addresses between
	// runs. A nil context disables persistence.
	DatabaseContext *dbaccess.DatabaseContext

	// BanDuration overrides DefaultBanDuration when non-zero.
	BanDuration time.Duration
}

// AddrManager provides a concurrency safe address manager for caching potential
// peers on the Dash network.
type AddrManager struct {
	cfg       *Config
	mtx       sync.Mutex
	rand      *rand.Rand
	addrIndex map[string]*KnownAddress
	banned    map[string]time.Time
	started   int32
	shutdown  int32
	wg        sync.WaitGroup
	quit      chan struct{}
}

type serializedKnownAddress struct {
	Addr        string
	Services    wire.ServiceFlag
	Timestamp   int64
	Attempts    int
	LastAttempt int64
	LastSuccess int64
	Tried       bool
}

type serializedBan struct {
	IP    string
	Until int64
}

type serializedAddrManager struct {
	Version   int
	Addresses []*serializedKnownAddress
	Banned    []*serializedBan
}

// New returns a new Dash address manager.
// Use Start to begin processing asynchronous address updates.
func New(cfg *Config) *AddrManager {
	if cfg.BanDuration == 0 {
		cfg.BanDuration = DefaultBanDuration
	}
	return &AddrManager{
		cfg:       cfg,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		addrIndex: make(map[string]*KnownAddress),
		banned:    make(map[string]time.Time),
		quit:      make(chan struct{}),
	}
}

// Start begins the core address handler which manages a pool of known
// addresses, timeouts, and interval based writes.
func (a *AddrManager) Start() error {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return nil
	}

	log.Trace("Starting address manager")

	// Load peers we already know about from the database.
	err := a.loadPeers()
	if err != nil {
		return err
	}

	// Start the address ticker to save addresses periodically.
	a.wg.Add(1)
	spawn("addressHandler", a.addressHandler)
	return nil
}

// Stop gracefully shuts down the address manager by stopping the main handler.
func (a *AddrManager) Stop() error {
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Warnf("Address manager is already in the process of " +
			"shutting down")
		return nil
	}

	log.Infof("Address manager shutting down")
	close(a.quit)
	a.wg.Wait()
	return a.savePeers()
}

// addressHandler is the main handler for the address manager. It must be run
// as a goroutine.
func (a *AddrManager) addressHandler() {
	dumpAddressTicker := time.NewTicker(dumpAddressInterval)
	defer dumpAddressTicker.Stop()

out:
	for {
		select {
		case <-dumpAddressTicker.C:
			err := a.savePeers()
			if err != nil {
				log.Errorf("Failed to save peers: %s", err)
			}

		case <-a.quit:
			break out
		}
	}
	a.wg.Done()
	log.Trace("Address handler done")
}

// savePeers saves all the known addresses to the database so they can be
// read back in at next run.
func (a *AddrManager) savePeers() error {
	if a.cfg.DatabaseContext == nil {
		return nil
	}

	serializedPeersState, err := a.serializePeersState()
	if err != nil {
		return err
	}

	return dbaccess.StorePeersState(a.cfg.DatabaseContext.NoTx(), serializedPeersState)
}

func (a *AddrManager) serializePeersState() ([]byte, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	sam := &serializedAddrManager{
		Version:   serializationVersion,
		Addresses: make([]*serializedKnownAddress, 0, len(a.addrIndex)),
		Banned:    make([]*serializedBan, 0, len(a.banned)),
	}
	for key, ka := range a.addrIndex {
		sam.Addresses = append(sam.Addresses, &serializedKnownAddress{
			Addr:        key,
			Services:    ka.na.Services,
			Timestamp:   ka.na.Timestamp.Unix(),
			Attempts:    ka.attempts,
			LastAttempt: ka.lastattempt.Unix(),
			LastSuccess: ka.lastsuccess.Unix(),
			Tried:       ka.tried,
		})
	}
	for ip, until := range a.banned {
		sam.Banned = append(sam.Banned, &serializedBan{IP: ip, Until: until.Unix()})
	}

	return json.Marshal(sam)
}

// loadPeers loads the known address from the database. If missing,
// just don't load anything and start fresh.
func (a *AddrManager) loadPeers() error {
	if a.cfg.DatabaseContext == nil {
		return nil
	}

	serializedPeersState, err := dbaccess.FetchPeersState(a.cfg.DatabaseContext.NoTx())
	if dbaccess.IsNotFoundError(err) {
		log.Info("No peers state was found in the database. Created a new one")
		return nil
	}
	if err != nil {
		return err
	}

	err = a.deserializePeersState(serializedPeersState)
	if err != nil {
		return err
	}

	log.Infof("Loaded %d addresses from database", a.NumAddresses())
	return nil
}

func (a *AddrManager) deserializePeersState(serializedPeerState []byte) error {
	var sam serializedAddrManager
	err := json.Unmarshal(serializedPeerState, &sam)
	if err != nil {
		return errors.Wrap(err, "error deserializing peers state")
	}

	if sam.Version != serializationVersion {
		return errors.Errorf("unknown version %d in serialized "+
			"peers state", sam.Version)
	}

	a.mtx.Lock()
	defer a.mtx.Unlock()

	for _, v := range sam.Addresses {
		na, err := a.hostToNetAddress(v.Addr, v.Services)
		if err != nil {
			return errors.Wrapf(err, "failed to deserialize netaddress "+
				"%s", v.Addr)
		}
		na.Timestamp = time.Unix(v.Timestamp, 0)
		ka := &KnownAddress{
			na:       na,
			attempts: v.Attempts,
			tried:    v.Tried,
		}
		if v.LastAttempt > 0 {
			ka.lastattempt = time.Unix(v.LastAttempt, 0)
		}
		if v.LastSuccess > 0 {
			ka.lastsuccess = time.Unix(v.LastSuccess, 0)
		}
		a.addrIndex[na.Key()] = ka
	}
	for _, ban := range sam.Banned {
		a.banned[ban.IP] = time.Unix(ban.Until, 0)
	}

	return nil
}

// hostToNetAddress parses a "host:port" string into a NetAddress.
func (a *AddrManager) hostToNetAddress(addr string, services wire.ServiceFlag) (*wire.NetAddress, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, errors.Errorf("invalid ip address %s", host)
	}
	return wire.NewNetAddressIPPort(ip, uint16(port), services), nil
}

// updateAddress is a helper function to either update an address already known
// to the address manager, or to add the address if not already known.
func (a *AddrManager) updateAddress(netAddr *wire.NetAddress) {
	// Filter out non-routable addresses. Note that non-routable
	// also includes invalid and local addresses.
	if !IsRoutable(netAddr, a.cfg.Params.AcceptUnroutable) {
		return
	}
	if a.isBannedNoLock(netAddr) {
		return
	}

	key := netAddr.Key()
	ka, ok := a.addrIndex[key]
	if ok {
		// Update the last seen time and services.
		// note that to prevent causing excess garbage on getaddr
		// messages the netaddresses in addrmanager are *immutable*,
		// if we need to change them then we replace the pointer with a
		// new copy so that we don't have to copy every na for getaddr.
		if netAddr.Timestamp.After(ka.na.Timestamp) ||
			(ka.na.Services&netAddr.Services) != netAddr.Services {

			naCopy := *ka.na
			naCopy.Timestamp = netAddr.Timestamp
			naCopy.AddService(netAddr.Services)
			ka.na = &naCopy
		}
		return
	}

	if len(a.addrIndex) >= maxAddresses {
		a.expireNoLock()
	}

	a.addrIndex[key] = &KnownAddress{na: netAddr}
	log.Tracef("Added new address %s for a total of %d addresses", key,
		len(a.addrIndex))
}

// expireNoLock removes the worst address to make room for a new one. Bad
// addresses go first, then the one with the most failed attempts.
func (a *AddrManager) expireNoLock() {
	var worst *KnownAddress
	for _, ka := range a.addrIndex {
		if ka.isBad() {
			worst = ka
			break
		}
		if worst == nil || ka.attempts > worst.attempts {
			worst = ka
		}
	}
	if worst != nil {
		log.Tracef("Expiring address %s", worst.na.Key())
		delete(a.addrIndex, worst.na.Key())
	}
}

// AddAddresses adds new addresses to the address manager. It enforces a max
// number of addresses and silently ignores duplicate addresses. It is
// safe for concurrent access.
func (a *AddrManager) AddAddresses(addrs []*wire.NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	for _, na := range addrs {
		a.updateAddress(na)
	}
}

// AddAddress adds a new address to the address manager. It enforces a max
// number of addresses and silently ignores duplicate addresses. It is
// safe for concurrent access.
func (a *AddrManager) AddAddress(addr *wire.NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.updateAddress(addr)
}

// AddAddressByIP adds an address where we are given an ip:port and not a
// wire.NetAddress.
func (a *AddrManager) AddAddressByIP(addrIP string) error {
	na, err := a.hostToNetAddress(addrIP, 0)
	if err != nil {
		return errors.Wrapf(err, "invalid address %s", addrIP)
	}
	a.AddAddress(na)
	return nil
}

// NumAddresses returns the number of addresses known to the address manager.
func (a *AddrManager) NumAddresses() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return len(a.addrIndex)
}

// NeedMoreAddresses returns whether or not the address manager needs more
// addresses.
func (a *AddrManager) NeedMoreAddresses() bool {
	return a.NumAddresses() < needAddressThreshold
}

// GetAddress returns a single address that should be routable. It picks a
// random one from the known addresses, weighted by how likely a connection
// to it is to succeed. Banned and bad addresses are never returned. It
// returns nil when no candidate exists.
func (a *AddrManager) GetAddress() *KnownAddress {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	candidates := make([]*KnownAddress, 0, len(a.addrIndex))
	for _, ka := range a.addrIndex {
		if a.isBannedNoLock(ka.na) || ka.isBad() {
			continue
		}
		candidates = append(candidates, ka)
	}
	if len(candidates) == 0 {
		return nil
	}

	// Use a 50% chance for choosing between tried addresses first, the
	// same way bitcoind balances its tried and new tables.
	if a.rand.Intn(2) == 0 {
		tried := candidates[:0:0]
		for _, ka := range candidates {
			if ka.tried {
				tried = append(tried, ka)
			}
		}
		if len(tried) > 0 {
			candidates = tried
		}
	}

	large := 1 << 30
	factor := 1.0
	for {
		ka := candidates[a.rand.Intn(len(candidates))]
		randval := a.rand.Intn(large)
		if float64(randval) < (factor * ka.chance() * float64(large)) {
			log.Tracef("Selected %s from address pool", ka.na.Key())
			return ka
		}
		factor *= 1.2
	}
}

func (a *AddrManager) find(addr *wire.NetAddress) *KnownAddress {
	return a.addrIndex[addr.Key()]
}

// Attempt increases the given address' attempt counter and updates
// the last attempt time.
func (a *AddrManager) Attempt(addr *wire.NetAddress) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	ka := a.find(addr)
	if ka == nil {
		return errors.Wrapf(ErrAddressNotFound, "address %s", addr.Key())
	}
	// set last tried time to now
	ka.attempts++
	ka.lastattempt = time.Now()
	return nil
}

// Connected marks the given address as currently connected and working at the
// current time. The address must already be known to AddrManager else it will
// be ignored.
func (a *AddrManager) Connected(addr *wire.NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	ka := a.find(addr)
	if ka == nil {
		return
	}

	// Update the time as long as it has been 20 minutes since last we did
	// so.
	now := time.Now()
	if now.After(ka.na.Timestamp.Add(time.Minute * 20)) {
		// ka.na is immutable, so replace it.
		naCopy := *ka.na
		naCopy.Timestamp = now
		ka.na = &naCopy
	}
}

// Good marks the given address as good. To be called after a successful
// connection and version exchange. If the address is unknown to the address
// manager it will be ignored.
func (a *AddrManager) Good(addr *wire.NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	ka := a.find(addr)
	if ka == nil {
		return
	}

	now := time.Now()
	ka.lastsuccess = now
	ka.lastattempt = now
	ka.attempts = 0
	ka.tried = true
}

// Ban keeps every address sharing the IP of addr out of the selection pool
// for the configured ban duration.
func (a *AddrManager) Ban(addr *wire.NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	ip := addr.IP.String()
	a.banned[ip] = time.Now().Add(a.cfg.BanDuration)
	log.Infof("Banned %s until %s", ip, a.banned[ip].Format(time.RFC3339))
}

// Unban removes the ban of the IP of addr.
func (a *AddrManager) Unban(addr *wire.NetAddress) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	ip := addr.IP.String()
	if _, ok := a.banned[ip]; !ok {
		return errors.Wrapf(ErrAddressNotFound, "address %s "+
			"is not registered with the address manager as banned", ip)
	}
	delete(a.banned, ip)
	return nil
}

// IsBanned returns true if the IP of addr is currently banned.
func (a *AddrManager) IsBanned(addr *wire.NetAddress) bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.isBannedNoLock(addr)
}

// isBannedNoLock lifts expired bans as it goes.
func (a *AddrManager) isBannedNoLock(addr *wire.NetAddress) bool {
	ip := addr.IP.String()
	until, ok := a.banned[ip]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(a.banned, ip)
		return false
	}
	return true
}
