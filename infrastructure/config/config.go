// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/go-socks/socks"
	"github.com/dashpay/dashspv/infrastructure/logger"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/util/address"
	"github.com/dashpay/dashspv/version"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultConfigFilename   = "dashspv.conf"
	defaultDataDirname      = "data"
	defaultLogLevel         = "info"
	defaultLogDirname       = "logs"
	defaultLogFilename      = "dashspv.log"
	defaultErrLogFilename   = "dashspv_err.log"
	defaultMaxPeers         = 3
	defaultBanDuration      = time.Hour * 24
	defaultBanThreshold     = 100
	defaultHandshakeTimeout = time.Second * 10
	defaultPingInterval     = time.Second * 30
	defaultPingTimeout      = time.Second * 30
	defaultRelayTimeout     = time.Second * 15
	defaultFeePerKb         = 1e-5 // 1 duff per byte
	defaultExternalGapLimit = 10
	defaultInternalGapLimit = 5
	defaultWalletID         = "default"

	// DefaultConnectTimeout is the default connection timeout when dialing
	// through a proxy.
	DefaultConnectTimeout = time.Second * 30
)

var (
	// DefaultAppDir is the default home directory for dashspv.
	DefaultAppDir = btcutil.AppDataDir("dashspv", false)

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
)

//go:embed sample-dashspv.conf
var sampleConfig string

// Flags defines the configuration options for dashspv.
//
// See loadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion       bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile        string        `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDir            string        `short:"A" long:"appdir" description:"Application home directory"`
	DataDir           string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir            string        `long:"logdir" description:"Directory to log output."`
	DebugLevel        string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	ConnectPeers      []string      `long:"connect" description:"Connect only to the specified peers at startup"`
	MaxPeers          int           `long:"maxpeers" description:"Number of peers to stay connected to"`
	BanDuration       time.Duration `long:"banduration" description:"How long to ban misbehaving peers. Valid time units are {s, m, h}. Minimum 1 second"`
	BanThreshold      uint32        `long:"banthreshold" description:"Maximum allowed ban score before disconnecting and banning misbehaving peers."`
	DisableDNSSeed    bool          `long:"nodnsseed" description:"Disable DNS seeding for peers"`
	Proxy             string        `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050) -- NOTE: DNS seeding is disabled when a proxy is used"`
	ProxyUser         string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass         string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	TorIsolation      bool          `long:"torisolation" description:"Enable Tor stream isolation by randomizing user credentials for each connection."`
	HandshakeTimeout  time.Duration `long:"handshaketimeout" description:"How long to wait for a peer to complete the version handshake"`
	PingInterval      time.Duration `long:"pinginterval" description:"How often peers are pinged"`
	PingTimeout       time.Duration `long:"pingtimeout" description:"How long to wait for a pong before disconnecting a peer"`
	RelayTimeout      time.Duration `long:"relaytimeout" description:"How long to wait for peers to relay a published transaction"`
	UserAgentComments []string      `long:"uacomment" description:"Comment to add to the user agent -- See BIP 14 for more information."`
	FeePerKb          float64       `long:"feeperkb" description:"Fee rate in DASH/kB used for new transactions"`
	ExternalGapLimit  uint32        `long:"externalgaplimit" description:"Number of unused receive addresses to watch"`
	InternalGapLimit  uint32        `long:"internalgaplimit" description:"Number of unused change addresses to watch"`
	WalletID          string        `long:"walletid" description:"Identifier of the wallet in the database"`
	Create            bool          `long:"create" description:"Create a new wallet with a fresh mnemonic"`
	Restore           bool          `long:"restore" description:"Restore a wallet from an existing mnemonic"`
	PayTo             string        `long:"payto" description:"Send --amount to this address once synced"`
	Amount            float64       `long:"amount" description:"Amount in DASH to send with --payto"`
	MetricsListen     string        `long:"metricslisten" description:"Serve prometheus metrics on this interface/port (eg. 127.0.0.1:9090)"`
	NetworkFlags
}

// Config defines the configuration options for dashspv.
//
// See loadConfig for details on the configuration load process.
type Config struct {
	*Flags
	Dial     func(ctx context.Context, addr net.Addr) (net.Conn, error)
	FeePerKb util.Amount
	PayTo    address.Address
	Amount   util.Amount
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultAppDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

func defaultFlags() Flags {
	return Flags{
		ConfigFile:       defaultConfigFile,
		AppDir:           DefaultAppDir,
		DebugLevel:       defaultLogLevel,
		MaxPeers:         defaultMaxPeers,
		BanDuration:      defaultBanDuration,
		BanThreshold:     defaultBanThreshold,
		HandshakeTimeout: defaultHandshakeTimeout,
		PingInterval:     defaultPingInterval,
		PingTimeout:      defaultPingTimeout,
		RelayTimeout:     defaultRelayTimeout,
		FeePerKb:         defaultFeePerKb,
		ExternalGapLimit: defaultExternalGapLimit,
		InternalGapLimit: defaultInternalGapLimit,
		WalletID:         defaultWalletID,
	}
}

// LoadConfig loads the configuration from the config file and the command
// line, and initializes logging.
func LoadConfig() (*Config, error) {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized, the
	// logger variables may be used.
	logger.InitLog(filepath.Join(cfg.LogDir, defaultLogFilename), filepath.Join(cfg.LogDir, defaultErrLogFilename))
	return cfg, nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
// 	1) Start with a default config with sane settings
// 	2) Pre-parse the command line to check for an alternative config file
// 	3) Load configuration file overwriting defaults with any specified options
// 	4) Parse CLI options and overwrite/add any specified options
//
// The above results in dashspv functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options. Command line options always take precedence.
func loadConfig(args []string) (*Config, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// A custom application directory moves the default config file with it.
	configFile := preCfg.ConfigFile
	if preCfg.AppDir != DefaultAppDir && configFile == defaultConfigFile {
		configFile = filepath.Join(cleanAndExpandPath(preCfg.AppDir), defaultConfigFilename)
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfgFlags, flags.Default)
	cfg := &Config{
		Flags: &cfgFlags,
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		err := createDefaultConfigFile(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a "+
				"default config file: %s\n", err)
		}
	}

	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config "+
				"file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, err
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	cfg.AppDir = cleanAndExpandPath(cfg.AppDir)
	err = os.MkdirAll(cfg.AppDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = errors.Errorf(str, e.Path, link)
			}
		}

		str := "%s: Failed to create home directory: %s"
		err := errors.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	err = cfg.ResolveNetwork(parser)
	if err != nil {
		return nil, err
	}

	// Append the network type to the data and log directories so they
	// are "namespaced" per network. The wallet, the chain and the known
	// peer addresses all belong to a single network.
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.AppDir, defaultDataDirname)
	}
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DataDir = filepath.Join(cfg.DataDir, cfg.NetParams().Name)

	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.AppDir, defaultLogDirname)
	}
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.NetParams().Name)

	// Parse, validate, and set debug log level(s).
	if cfg.DebugLevel != "show" {
		if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
			err := errors.Errorf("%s: %s", funcName, err.Error())
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// Don't allow ban durations that are too short.
	if cfg.BanDuration < time.Second {
		str := "%s: The banduration option may not be less than 1s -- parsed [%s]"
		err := errors.Errorf(str, funcName, cfg.BanDuration)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	if cfg.MaxPeers < 1 {
		str := "%s: The maxpeers option may not be less than 1 -- parsed [%d]"
		err := errors.Errorf(str, funcName, cfg.MaxPeers)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	if cfg.ExternalGapLimit == 0 || cfg.InternalGapLimit == 0 {
		str := "%s: The gap limits must be greater than 0 -- parsed [%d, %d]"
		err := errors.Errorf(str, funcName, cfg.ExternalGapLimit, cfg.InternalGapLimit)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Validate the the fee rate.
	cfg.FeePerKb, err = util.NewAmount(cfg.Flags.FeePerKb)
	if err != nil {
		str := "%s: invalid feeperkb: %s"
		err := errors.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Disallow 0 and negative fee rates.
	if cfg.FeePerKb <= 0 {
		str := "%s: The feeperkb option must be greater than 0 -- parsed [%d]"
		err := errors.Errorf(str, funcName, cfg.FeePerKb)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	if cfg.Create && cfg.Restore {
		str := "%s: create and restore cannot be used together -- choose only one"
		err := errors.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	if cfg.Flags.PayTo != "" {
		cfg.PayTo, err = address.DecodeAddress(cfg.Flags.PayTo, cfg.NetParams())
		if err != nil {
			str := "%s: payto address '%s' failed to decode: %s"
			err := errors.Errorf(str, funcName, cfg.Flags.PayTo, err)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
		cfg.Amount, err = util.NewAmount(cfg.Flags.Amount)
		if err != nil || cfg.Amount <= 0 {
			str := "%s: payto requires a positive amount -- parsed [%f]"
			err := errors.Errorf(str, funcName, cfg.Flags.Amount)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// Add default port to all connect peers if needed and remove duplicate
	// addresses.
	cfg.ConnectPeers, err = normalizeAddresses(cfg.ConnectPeers, cfg.NetParams().DefaultPort)
	if err != nil {
		str := "%s: invalid connect peer: %s"
		err := errors.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Tor stream isolation requires a proxy to be set.
	if cfg.TorIsolation && cfg.Proxy == "" {
		str := "%s: Tor stream isolation requires proxy to be set"
		err := errors.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Setup dial function depending on the specified options. The
	// default is to let the engine dial directly. When a proxy is
	// specified, every peer connection goes through it and DNS seeding
	// is turned off so that no lookup leaks outside the proxy.
	if cfg.Proxy != "" {
		_, _, err := net.SplitHostPort(cfg.Proxy)
		if err != nil {
			str := "%s: Proxy address '%s' is invalid: %s"
			err := errors.Errorf(str, funcName, cfg.Proxy, err)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}

		// Tor isolation flag means proxy credentials will be overridden.
		if cfg.TorIsolation &&
			(cfg.ProxyUser != "" || cfg.ProxyPass != "") {
			fmt.Fprintln(os.Stderr, "Tor isolation set -- "+
				"overriding specified proxy user credentials")
		}

		proxy := &socks.Proxy{
			Addr:         cfg.Proxy,
			Username:     cfg.ProxyUser,
			Password:     cfg.ProxyPass,
			TorIsolation: cfg.TorIsolation,
		}
		cfg.Dial = proxyDialer(proxy)
		cfg.DisableDNSSeed = true
	}

	return cfg, nil
}

// proxyDialer adapts a SOCKS5 proxy to the context based dialer used for
// peer connections.
func proxyDialer(proxy *socks.Proxy) func(ctx context.Context, addr net.Addr) (net.Conn, error) {
	return func(ctx context.Context, addr net.Addr) (net.Conn, error) {
		timeout := DefaultConnectTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		return proxy.DialTimeout(addr.Network(), addr.String(), timeout)
	}
}

// normalizeAddresses returns a new slice with all the passed peer addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) ([]string, error) {
	result := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, defaultPort)
			// SplitHostPort may fail for reasons other than a missing
			// port, so the joined address is checked again.
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return nil, err
			}
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result, nil
}

// createDefaultConfigFile copies the sample config to the given destination
// path.
func createDefaultConfigFile(destinationPath string) error {
	// Create the destination directory if it does not exists
	err := os.MkdirAll(filepath.Dir(destinationPath), 0700)
	if err != nil {
		return err
	}

	dest, err := os.OpenFile(destinationPath,
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = dest.WriteString(sampleConfig)
	return err
}
