package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/util/address"
	"github.com/jessevdk/go-flags"
)

func newTestAppDir(t *testing.T) string {
	return t.TempDir()
}

func TestLoadConfigDefaults(t *testing.T) {
	appDir := newTestAppDir(t)
	cfg, err := loadConfig([]string{"--appdir", appDir, "--regtest"})
	if err != nil {
		t.Fatalf("loadConfig unexpectedly failed: %s", err)
	}

	if cfg.NetParams() != &chaincfg.RegressionNetParams {
		t.Errorf("unexpected network %s", cfg.NetParams().Name)
	}
	expectedDataDir := filepath.Join(appDir, defaultDataDirname, "regtest")
	if cfg.DataDir != expectedDataDir {
		t.Errorf("unexpected data dir: got %s, want %s", cfg.DataDir, expectedDataDir)
	}
	expectedLogDir := filepath.Join(appDir, defaultLogDirname, "regtest")
	if cfg.LogDir != expectedLogDir {
		t.Errorf("unexpected log dir: got %s, want %s", cfg.LogDir, expectedLogDir)
	}
	if cfg.MaxPeers != defaultMaxPeers {
		t.Errorf("unexpected max peers %d", cfg.MaxPeers)
	}
	if cfg.FeePerKb != 1000 {
		t.Errorf("unexpected fee rate %d", cfg.FeePerKb)
	}
	if cfg.Dial != nil {
		t.Errorf("a dialer was set without a proxy")
	}
	if cfg.WalletID != defaultWalletID {
		t.Errorf("unexpected wallet ID %s", cfg.WalletID)
	}

	if _, err := os.Stat(filepath.Join(appDir, defaultConfigFilename)); err != nil {
		t.Errorf("default config file was not created: %s", err)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	appDir := newTestAppDir(t)
	configFile := filepath.Join(appDir, defaultConfigFilename)
	content := "[Application Options]\nmaxpeers=5\nfeeperkb=0.0002\nconnect=10.0.0.1\n"
	err := os.WriteFile(configFile, []byte(content), 0600)
	if err != nil {
		t.Fatalf("Failed writing the config file: %v", err)
	}

	cfg, err := loadConfig([]string{"--appdir", appDir, "--testnet", "--maxpeers", "7"})
	if err != nil {
		t.Fatalf("loadConfig unexpectedly failed: %s", err)
	}
	if cfg.MaxPeers != 7 {
		t.Errorf("command line did not take precedence: got %d peers", cfg.MaxPeers)
	}
	if cfg.FeePerKb != util.Amount(20000) {
		t.Errorf("unexpected fee rate %d", cfg.FeePerKb)
	}
	expectedPeers := []string{"10.0.0.1:19999"}
	if !reflect.DeepEqual(cfg.ConnectPeers, expectedPeers) {
		t.Errorf("unexpected connect peers: got %v, want %v", cfg.ConnectPeers, expectedPeers)
	}
}

func TestLoadConfigProxy(t *testing.T) {
	appDir := newTestAppDir(t)
	cfg, err := loadConfig([]string{"--appdir", appDir, "--proxy", "127.0.0.1:9050", "--torisolation"})
	if err != nil {
		t.Fatalf("loadConfig unexpectedly failed: %s", err)
	}
	if cfg.Dial == nil {
		t.Errorf("the proxy did not set a dialer")
	}
	if !cfg.DisableDNSSeed {
		t.Errorf("DNS seeding stays enabled behind a proxy")
	}
}

func TestLoadConfigPayTo(t *testing.T) {
	payTo, err := address.NewAddressPubKeyHash(make([]byte, 20), &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash unexpectedly failed: %s", err)
	}

	appDir := newTestAppDir(t)
	cfg, err := loadConfig([]string{"--appdir", appDir, "--regtest",
		"--payto", payTo.String(), "--amount", "1.5"})
	if err != nil {
		t.Fatalf("loadConfig unexpectedly failed: %s", err)
	}
	if cfg.PayTo.String() != payTo.String() {
		t.Errorf("unexpected payto address %s", cfg.PayTo)
	}
	if cfg.Amount != util.Amount(150000000) {
		t.Errorf("unexpected amount %d", cfg.Amount)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	payTo, err := address.NewAddressPubKeyHash(make([]byte, 20), &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash unexpectedly failed: %s", err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{name: "multiple networks", args: []string{"--testnet", "--regtest"}},
		{name: "create and restore", args: []string{"--create", "--restore"}},
		{name: "short ban duration", args: []string{"--banduration", "100ms"}},
		{name: "no peers", args: []string{"--maxpeers", "0"}},
		{name: "zero fee rate", args: []string{"--feeperkb", "0"}},
		{name: "zero gap limit", args: []string{"--externalgaplimit", "0"}},
		{name: "invalid proxy", args: []string{"--proxy", "nope"}},
		{name: "tor isolation without proxy", args: []string{"--torisolation"}},
		{name: "payto without amount", args: []string{"--regtest", "--payto", payTo.String()}},
		{name: "payto on another network", args: []string{"--payto", payTo.String(), "--amount", "1"}},
		{name: "override outside devnet", args: []string{"--testnet", "--override-net-params-file", "params.json"}},
		{name: "unknown debug level", args: []string{"--debuglevel", "loud"}},
	}
	for _, test := range tests {
		appDir := newTestAppDir(t)
		args := append([]string{"--appdir", appDir}, test.args...)
		_, err := loadConfig(args)
		if err == nil {
			t.Errorf("%s: loadConfig unexpectedly succeeded", test.name)
		}
	}
}

func TestOverrideNetParams(t *testing.T) {
	appDir := newTestAppDir(t)
	paramsFile := filepath.Join(appDir, "params.json")
	content := `{"defaultPort": "29999", "dnsSeeds": ["seed.devnet.test"], "dgwHeight": 10}`
	err := os.WriteFile(paramsFile, []byte(content), 0600)
	if err != nil {
		t.Fatalf("Failed writing the params file: %v", err)
	}

	cfg, err := loadConfig([]string{"--appdir", appDir, "--devnet", "--override-net-params-file", paramsFile})
	if err != nil {
		t.Fatalf("loadConfig unexpectedly failed: %s", err)
	}
	params := cfg.NetParams()
	if params.DefaultPort != "29999" || params.DGWHeight != 10 {
		t.Errorf("params were not overridden: port %s, DGW height %d", params.DefaultPort, params.DGWHeight)
	}
	if !reflect.DeepEqual(params.DNSSeeds, []string{"seed.devnet.test"}) {
		t.Errorf("unexpected DNS seeds %v", params.DNSSeeds)
	}
	if chaincfg.DevNetParams.DefaultPort == "29999" {
		t.Errorf("the registered devnet params were modified")
	}
}

func TestNormalizeAddresses(t *testing.T) {
	tests := []struct {
		addrs    []string
		expected []string
	}{
		{
			addrs:    []string{"1.2.3.4", "1.2.3.4:9999", "5.6.7.8:1234"},
			expected: []string{"1.2.3.4:9999", "5.6.7.8:1234"},
		},
		{
			addrs:    []string{"::1", "[::1]:9999"},
			expected: []string{"[::1]:9999"},
		},
		{
			addrs:    nil,
			expected: []string{},
		},
	}
	for i, test := range tests {
		normalized, err := normalizeAddresses(test.addrs, "9999")
		if err != nil {
			t.Fatalf("test %d: normalizeAddresses unexpectedly failed: %s", i, err)
		}
		if !reflect.DeepEqual(normalized, test.expected) {
			t.Errorf("test %d: got %v, want %v", i, normalized, test.expected)
		}
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	appDir := newTestAppDir(t)
	testpath := filepath.Join(appDir, "nested", "test.conf")

	err := createDefaultConfigFile(testpath)
	if err != nil {
		t.Fatalf("Failed to create a default config file: %v", err)
	}
	content, err := os.ReadFile(testpath)
	if err != nil {
		t.Fatalf("Failed reading the default config file: %v", err)
	}
	if !strings.HasPrefix(string(content), "[Application Options]") {
		t.Errorf("the default config file does not hold the sample config")
	}
}

func TestResolveNetworkMultiple(t *testing.T) {
	networkFlags := &NetworkFlags{Testnet: true, Devnet: true}
	parser := flags.NewParser(networkFlags, flags.None)
	err := networkFlags.ResolveNetwork(parser)
	if err == nil {
		t.Fatalf("ResolveNetwork unexpectedly succeeded")
	}
	expected := "Multiple networks parameters (testnet, regtest, devnet, etc.) cannot be used " +
		"together. Please choose only one network"
	if err.Error() != expected {
		t.Errorf("unexpected error %q", err)
	}
}
