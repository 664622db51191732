package netsync

import (
	"github.com/dashpay/dashspv/infrastructure/metrics"
	"github.com/dashpay/dashspv/peer"
	"github.com/dashpay/dashspv/util/random"
	"github.com/pkg/errors"
)

func randomTweak() (uint32, error) {
	tweak, err := random.Uint32()
	if err != nil {
		return 0, errors.Wrap(err, "failed generating a bloom filter tweak")
	}
	return tweak, nil
}

// rebuildFilter replaces the filter with one covering the current wallet
// addresses and unspent outputs.
func (m *Manager) rebuildFilter() error {
	// The generation is read first so that addresses derived while the
	// filter is built trigger another rebuild.
	generation := m.wallet.FilterGeneration()
	filter, err := m.wallet.BloomFilter(m.falsePositiveRate, m.filterTweak)
	if err != nil {
		return err
	}
	m.filter = filter
	m.filterGeneration = generation
	m.filterElements = uint32(len(m.wallet.Addresses()) + len(m.wallet.UTXOs()))
	log.Debugf("Built bloom filter of generation %d with %d elements",
		generation, m.filterElements)
	return nil
}

// loadFilter sends the wallet's bloom filter to p.
func (m *Manager) loadFilter(p *peer.Peer) error {
	if m.filter == nil || m.filterGeneration != m.wallet.FilterGeneration() {
		err := m.rebuildFilter()
		if err != nil {
			return err
		}
	}
	m.pushFilter(p)
	return nil
}

func (m *Manager) pushFilter(p *peer.Peer) {
	p.PushFilterLoad(m.filter.MsgFilterLoad())
	if state, exists := m.peerStates[p]; exists {
		state.filterLoaded = true
	}
	metrics.FilterLoads.Inc()
}

// refreshFilterIfNeeded rebuilds the filter and sends it to every peer once
// the wallet derived addresses the filter misses, or once the outputs the
// peers added to their copies degraded its false positive rate.
func (m *Manager) refreshFilterIfNeeded() {
	if m.filter == nil {
		return
	}
	generationChanged := m.filterGeneration != m.wallet.FilterGeneration()
	degraded := m.filter.FalsePositiveRate(m.filterElements) >
		m.falsePositiveRate*filterRefreshFactor
	if !generationChanged && !degraded {
		return
	}

	err := m.rebuildFilter()
	if err != nil {
		log.Errorf("Failed rebuilding the bloom filter: %s", err)
		return
	}
	log.Infof("Sending a refreshed bloom filter to %d peers", len(m.peerStates))
	for p := range m.peerStates {
		m.pushFilter(p)
	}
}
