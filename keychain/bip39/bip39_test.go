package bip39

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/keychain/bip32"
	"github.com/dashpay/dashspv/util/address"
	"github.com/pkg/errors"
)

const abandonPhrase = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

func TestSeed(t *testing.T) {
	tests := []struct {
		phrase     string
		passphrase string
		want       string
	}{
		{abandonPhrase, "", "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc1" +
			"9a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"},
		{abandonPhrase, "TREZOR", "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e5349553" +
			"1f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04"},
		{"  Abandon abandon abandon abandon abandon abandon\tabandon abandon abandon abandon abandon ABOUT ",
			"", "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc1" +
				"9a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"},
	}
	for i, test := range tests {
		seed, err := Seed(test.phrase, test.passphrase)
		if err != nil {
			t.Fatalf("#%d: Seed: %+v", i, err)
		}
		if got := hex.EncodeToString(seed); got != test.want {
			t.Errorf("#%d: got %s want %s", i, got, test.want)
		}
	}
}

func TestEncodeEntropy(t *testing.T) {
	phrase, err := EncodeEntropy(make([]byte, 16))
	if err != nil {
		t.Fatalf("EncodeEntropy: %+v", err)
	}
	if phrase != abandonPhrase {
		t.Fatalf("got %q want %q", phrase, abandonPhrase)
	}

	entropy, err := DecodeMnemonic(phrase)
	if err != nil {
		t.Fatalf("DecodeMnemonic: %+v", err)
	}
	if !bytes.Equal(entropy, make([]byte, 16)) {
		t.Fatalf("DecodeMnemonic: got %x", entropy)
	}
}

func TestNewMnemonic(t *testing.T) {
	phrase, err := NewMnemonic(DefaultEntropyBits)
	if err != nil {
		t.Fatalf("NewMnemonic: %+v", err)
	}
	if words := strings.Fields(phrase); len(words) != 12 {
		t.Fatalf("got %d words want 12", len(words))
	}
	if !IsValid(phrase) {
		t.Fatalf("fresh phrase %q is not valid", phrase)
	}
	if _, err := NewMnemonic(100); err == nil {
		t.Fatalf("NewMnemonic(100): expected an error")
	}
}

func TestDecodeMnemonicErrors(t *testing.T) {
	badChecksum := strings.Repeat("abandon ", 11) + "abandon"
	if _, err := DecodeMnemonic(badChecksum); !errors.Is(err, ErrChecksumInvalid) {
		t.Errorf("checksum: got %v want %v", err, ErrChecksumInvalid)
	}

	unknown := strings.Repeat("abandon ", 11) + "dashcoin"
	if _, err := DecodeMnemonic(unknown); !errors.Is(err, ErrUnknownWord) {
		t.Errorf("unknown word: got %v want %v", err, ErrUnknownWord)
	}

	if IsWordKnown("dashcoin") || !IsWordKnown("zoo") {
		t.Errorf("IsWordKnown gives wrong answers")
	}
	if _, err := Seed(badChecksum, ""); err == nil {
		t.Errorf("Seed: expected an error for a bad phrase")
	}
}

// TestPhraseToAddress derives the first external BIP44 address of the
// all-abandon phrase.
func TestPhraseToAddress(t *testing.T) {
	tests := []struct {
		net  *chaincfg.Params
		path string
		want string
	}{
		{&chaincfg.MainNetParams, "m/44'/5'/0'/0/0", "XoJA8qE3N2Y3jMLEtZ3vcN42qseZ8LvFf5"},
		{&chaincfg.MainNetParams, "m/44'/5'/0'/0/1", "XbctnEsgWTn5j1co3emZynemxSFPqkLRKZ"},
		{&chaincfg.MainNetParams, "m/44'/5'/0'/1/0", "XeBdurzVrhrFtgqf9SxzQqvhHodb53njW4"},
		{&chaincfg.TestNetParams, "m/44'/1'/0'/0/0", "yRd4FhXfVGHXpsuZXPNkMrfD9GVj46pnjt"},
	}

	seed, err := Seed(abandonPhrase, "")
	if err != nil {
		t.Fatalf("Seed: %+v", err)
	}
	for _, test := range tests {
		key, err := bip32.NewMasterWithPath(seed, test.net.HDPrivateKeyID, test.path)
		if err != nil {
			t.Fatalf("%s: NewMasterWithPath: %+v", test.path, err)
		}
		addr, err := address.NewAddressPubKey(key.PublicKey().SerializeCompressed(), test.net)
		if err != nil {
			t.Fatalf("%s: NewAddressPubKey: %+v", test.path, err)
		}
		if got := addr.EncodeAddress(); got != test.want {
			t.Errorf("%s: got %s want %s", test.path, got, test.want)
		}
	}
}
