package main

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/dbaccess"
	"github.com/dashpay/dashspv/infrastructure/config"
	"github.com/dashpay/dashspv/keychain/bip32"
	"github.com/dashpay/dashspv/keychain/bip39"
	"github.com/dashpay/dashspv/wallet"
	"github.com/dashpay/dashspv/wallet/keystore"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// mnemonicEntropyBits gives 12 word mnemonics.
const mnemonicEntropyBits = 128

// getPassword was adapted from https://gist.github.com/jlinoff/e8e26b4ffa38d379c7f1891fd174a6d0#file-getpassword2-go
func getPassword(prompt string) ([]byte, error) {
	// Get the initial state of the terminal.
	initialTermState, err := term.GetState(int(syscall.Stdin))
	if err != nil {
		return nil, err
	}

	// Restore it in the event of an interrupt.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		if _, ok := <-c; ok {
			_ = term.Restore(int(syscall.Stdin), initialTermState)
			os.Exit(1)
		}
	}()
	defer func() {
		// Stop looking for ^C on the channel.
		signal.Stop(c)
		close(c)
	}()

	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	return password, err
}

func getNewPassword() ([]byte, error) {
	password, err := getPassword("Enter password for the wallet: ")
	if err != nil {
		return nil, err
	}
	confirmPassword, err := getPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(password, confirmPassword) != 1 {
		return nil, errors.New("Passwords are not identical")
	}
	return password, nil
}

func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// openWallet returns the keystore of the configured wallet, creating or
// restoring it first if asked to.
func openWallet(cfg *config.Config, databaseContext *dbaccess.DatabaseContext) (*keystore.Keystore, error) {
	exists, err := dbaccess.HasKeystore(databaseContext.NoTx(), cfg.WalletID)
	if err != nil {
		return nil, err
	}

	switch {
	case exists && (cfg.Create || cfg.Restore):
		return nil, errors.Errorf("wallet %s already exists", cfg.WalletID)
	case exists:
		return keystore.Load(databaseContext.NoTx(), cfg.WalletID)
	case cfg.Create:
		mnemonic, err := bip39.NewMnemonic(mnemonicEntropyBits)
		if err != nil {
			return nil, err
		}
		fmt.Println("Your wallet mnemonic is:")
		fmt.Println()
		fmt.Println(mnemonic)
		fmt.Println()
		fmt.Println("Write it down and keep it safe. It is the only way to restore the wallet.")
		return createKeystore(cfg, databaseContext, mnemonic, time.Now())
	case cfg.Restore:
		mnemonic, err := readLine("Enter the wallet mnemonic: ")
		if err != nil {
			return nil, err
		}
		mnemonic = bip39.Normalize(mnemonic)
		if !bip39.IsValid(mnemonic) {
			return nil, errors.New("invalid mnemonic")
		}
		// The wallet may have been used at any time, so the whole chain
		// is scanned.
		return createKeystore(cfg, databaseContext, mnemonic, time.Time{})
	default:
		return nil, errors.Errorf("wallet %s does not exist -- use --create or --restore", cfg.WalletID)
	}
}

func createKeystore(cfg *config.Config, databaseContext *dbaccess.DatabaseContext,
	mnemonic string, earliestKeyTime time.Time) (*keystore.Keystore, error) {

	accountKey, err := accountKeyFromMnemonic(mnemonic, cfg.NetParams())
	if err != nil {
		return nil, err
	}
	password, err := getNewPassword()
	if err != nil {
		return nil, err
	}
	ks, err := keystore.New(mnemonic, password, accountKey.String(), earliestKeyTime, keystore.DefaultKDFParams)
	if err != nil {
		return nil, err
	}
	err = keystore.Save(databaseContext.NoTx(), cfg.WalletID, ks)
	if err != nil {
		return nil, err
	}
	log.Infof("Created wallet %s", cfg.WalletID)
	return ks, nil
}

func accountKeyFromMnemonic(mnemonic string, params *chaincfg.Params) (*bip32.ExtendedKey, error) {
	seed, err := bip39.Seed(mnemonic, "")
	if err != nil {
		return nil, err
	}
	return wallet.AccountKeyFromSeed(seed, params, 0)
}

// seedSource asks for the wallet password and decrypts the seed whenever a
// transaction is signed.
func seedSource(ks *keystore.Keystore) wallet.SeedSource {
	return func() ([]byte, error) {
		password, err := getPassword("Enter the wallet password to sign: ")
		if err != nil {
			return nil, err
		}
		mnemonic, err := ks.Mnemonic(password)
		if err != nil {
			return nil, err
		}
		return bip39.Seed(mnemonic, "")
	}
}
