package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// NetworkFlags holds the network configuration, that is which network is selected.
type NetworkFlags struct {
	Testnet               bool   `long:"testnet" description:"Use the test network"`
	RegressionTest        bool   `long:"regtest" description:"Use the regression test network"`
	Devnet                bool   `long:"devnet" description:"Use the development test network"`
	OverrideNetParamsFile string `long:"override-net-params-file" description:"Overrides network params (allowed only on devnet)"`

	ActiveNetParams *chaincfg.Params
}

type overrideNetParamsConfig struct {
	DefaultPort              *string   `json:"defaultPort"`
	DNSSeeds                 *[]string `json:"dnsSeeds"`
	AcceptUnroutable         *bool     `json:"acceptUnroutable"`
	DGWHeight                *int32    `json:"dgwHeight"`
	AllowMinDifficultyBlocks *bool     `json:"allowMinDifficultyBlocks"`
	NoRetargeting            *bool     `json:"noRetargeting"`
}

// ResolveNetwork parses the network command line argument and sets NetParams accordingly.
// It returns error if more than one network was selected, nil otherwise.
func (networkFlags *NetworkFlags) ResolveNetwork(parser *flags.Parser) error {
	//NetParams holds the selected network parameters. Default value is main-net.
	networkFlags.ActiveNetParams = &chaincfg.MainNetParams
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	// default net is main net
	// Count number of network flags passed; assign active network params
	// while we're at it
	if networkFlags.Testnet {
		numNets++
		networkFlags.ActiveNetParams = &chaincfg.TestNetParams
	}
	if networkFlags.RegressionTest {
		numNets++
		networkFlags.ActiveNetParams = &chaincfg.RegressionNetParams
	}
	if networkFlags.Devnet {
		numNets++
		networkFlags.ActiveNetParams = &chaincfg.DevNetParams
	}
	if numNets > 1 {
		message := "Multiple networks parameters (testnet, regtest, devnet, etc.) cannot be used " +
			"together. Please choose only one network"
		err := errors.New(message)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return err
	}

	err := networkFlags.overrideNetParams()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	return nil
}

// NetParams returns the ActiveNetParams
func (networkFlags *NetworkFlags) NetParams() *chaincfg.Params {
	return networkFlags.ActiveNetParams
}

func (networkFlags *NetworkFlags) overrideNetParams() error {
	if networkFlags.OverrideNetParamsFile == "" {
		return nil
	}

	if !networkFlags.Devnet {
		return errors.Errorf("override-net-params-file is allowed only when using devnet")
	}

	overrideNetParamsFile, err := os.Open(networkFlags.OverrideNetParamsFile)
	if err != nil {
		return err
	}
	defer overrideNetParamsFile.Close()

	decoder := json.NewDecoder(overrideNetParamsFile)
	config := &overrideNetParamsConfig{}
	err = decoder.Decode(config)
	if err != nil {
		return err
	}

	// The registered devnet params stay untouched.
	params := *networkFlags.ActiveNetParams
	networkFlags.ActiveNetParams = &params

	if config.DefaultPort != nil {
		params.DefaultPort = *config.DefaultPort
	}

	if config.DNSSeeds != nil {
		params.DNSSeeds = *config.DNSSeeds
	}

	if config.AcceptUnroutable != nil {
		params.AcceptUnroutable = *config.AcceptUnroutable
	}

	if config.DGWHeight != nil {
		if *config.DGWHeight < 1 {
			return errors.Errorf("dgwHeight must be positive, got %d", *config.DGWHeight)
		}
		params.DGWHeight = *config.DGWHeight
	}

	if config.AllowMinDifficultyBlocks != nil {
		params.AllowMinDifficultyBlocks = *config.AllowMinDifficultyBlocks
	}

	if config.NoRetargeting != nil {
		params.NoRetargeting = *config.NoRetargeting
	}

	return nil
}
