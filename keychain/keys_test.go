package keychain

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

func keyOne(t *testing.T) *PrivateKey {
	keyBytes := make([]byte, PrivateKeySize)
	keyBytes[PrivateKeySize-1] = 1
	key, err := PrivateKeyFromBytes(keyBytes)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %+v", err)
	}
	return key
}

func TestPrivateKeyFromBytesRange(t *testing.T) {
	order, _ := hex.DecodeString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	tests := []struct {
		name string
		key  []byte
	}{
		{"zero", make([]byte, PrivateKeySize)},
		{"group order", order},
		{"short", []byte{1, 2, 3}},
	}
	for _, test := range tests {
		_, err := PrivateKeyFromBytes(test.key)
		if !errors.Is(err, ErrInvalidPrivateKey) {
			t.Errorf("%s: got %v want %v", test.name, err, ErrInvalidPrivateKey)
		}
	}
}

func TestPublicKeyHash160(t *testing.T) {
	pub := keyOne(t).PublicKey()
	want := "751e76e8199196d454941c45d1b3a323f1433bd6"
	hash := pub.Hash160()
	if got := hex.EncodeToString(hash[:]); got != want {
		t.Fatalf("Hash160: got %s want %s", got, want)
	}

	parsed, err := ParsePublicKey(pub.SerializeCompressed())
	if err != nil {
		t.Fatalf("ParsePublicKey: %+v", err)
	}
	if !parsed.IsEqual(pub) {
		t.Fatalf("parsed key differs from the original")
	}

	if _, err := ParsePublicKey([]byte{0x02, 0x01}); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("ParsePublicKey: got %v want %v", err, ErrInvalidPublicKey)
	}
}

func TestSignVerify(t *testing.T) {
	for i := 0; i < 5; i++ {
		key, err := GeneratePrivateKey()
		if err != nil {
			t.Fatalf("GeneratePrivateKey: %+v", err)
		}
		pub := key.PublicKey()
		hash := chainhash.DoubleHashH([]byte{byte(i), 'd', 'a', 's', 'h'})

		sig := key.Sign(&hash)
		if !pub.Verify(&hash, sig) {
			t.Fatalf("#%d: valid signature failed to verify", i)
		}

		// Deterministic nonces give the same signature every time.
		if again := key.Sign(&hash); !bytes.Equal(again, sig) {
			t.Fatalf("#%d: signing is not deterministic", i)
		}

		for bit := 0; bit < len(sig)*8; bit++ {
			flipped := make([]byte, len(sig))
			copy(flipped, sig)
			flipped[bit/8] ^= 1 << uint(bit%8)
			if pub.Verify(&hash, flipped) {
				t.Fatalf("#%d: signature with bit %d flipped verified", i, bit)
			}
		}

		other := chainhash.DoubleHashH([]byte("other"))
		if pub.Verify(&other, sig) {
			t.Fatalf("#%d: signature verified for another digest", i)
		}
	}
}

func TestVerifyMalformed(t *testing.T) {
	pub := keyOne(t).PublicKey()
	hash := chainhash.DoubleHashH([]byte("x"))
	for _, sig := range [][]byte{nil, {0x30}, {0x30, 0x02, 0x02, 0x01}, bytes.Repeat([]byte{0xff}, 72)} {
		if pub.Verify(&hash, sig) {
			t.Fatalf("malformed signature %x verified", sig)
		}
	}
}

func TestRecoverCompact(t *testing.T) {
	key := keyOne(t)
	hash := chainhash.DoubleHashH([]byte("recover me"))
	sig := key.SignCompact(&hash)
	if len(sig) != CompactSignatureSize {
		t.Fatalf("SignCompact: got length %d want %d", len(sig), CompactSignatureSize)
	}

	recovered, err := RecoverCompact(sig, &hash)
	if err != nil {
		t.Fatalf("RecoverCompact: %+v", err)
	}
	if !recovered.IsEqual(key.PublicKey()) {
		t.Fatalf("RecoverCompact: recovered a different key")
	}

	if _, err := RecoverCompact(sig[1:], &hash); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("RecoverCompact short: got %v want %v", err, ErrInvalidSignature)
	}
	bad := make([]byte, CompactSignatureSize)
	bad[0] = 27
	if _, err := RecoverCompact(bad, &hash); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("RecoverCompact zero: got %v want %v", err, ErrInvalidSignature)
	}
}

func TestSignMessage(t *testing.T) {
	key := keyOne(t)
	signature := SignMessage(key, "hello dash")

	ok, err := VerifyMessage(key.PublicKey().Hash160(), signature, "hello dash")
	if err != nil {
		t.Fatalf("VerifyMessage: %+v", err)
	}
	if !ok {
		t.Fatalf("VerifyMessage: signature did not verify")
	}

	ok, err = VerifyMessage(key.PublicKey().Hash160(), signature, "hello bitcoin")
	if err == nil && ok {
		t.Fatalf("VerifyMessage: signature verified for a different message")
	}

	if _, err := VerifyMessage(chainhash.Hash160{}, "not base64!", "x"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("VerifyMessage: got %v want %v", err, ErrInvalidSignature)
	}
}

func TestWIF(t *testing.T) {
	key := keyOne(t)
	tests := []struct {
		net      *chaincfg.Params
		compress bool
		want     string
	}{
		{&chaincfg.MainNetParams, true, "XBHddvWWiMu3nZhhpTXBQWJMmdz5JNKJD85b9fgKAckCT2coW3Y4"},
		{&chaincfg.TestNetParams, true, "cMahea7zqjxrtgAbB7LSGbcQUr1uX1ojuat9jZodMN87JcbXMTcA"},
		{&chaincfg.MainNetParams, false, "7qYrzJZWqnyCWMYswFcqaRJypGdVceudXPSxmZKsngN7fyo7aAV"},
	}
	for i, test := range tests {
		wif := NewWIF(key, test.net, test.compress)
		if got := wif.String(); got != test.want {
			t.Errorf("#%d: got %s want %s", i, got, test.want)
			continue
		}
		decoded, err := DecodeWIF(test.want)
		if err != nil {
			t.Errorf("#%d: DecodeWIF: %+v", i, err)
			continue
		}
		if !decoded.IsForNet(test.net) || decoded.CompressPubKey != test.compress ||
			!bytes.Equal(decoded.PrivKey.Serialize(), key.Serialize()) {
			t.Errorf("#%d: decoded WIF does not match", i)
		}
	}

	if _, err := DecodeWIF("XBHddvWWiMu3nZhhpTXBQWJMmdz5JNKJD85b9fgKAckCT2coW3Y5"); !errors.Is(err, ErrMalformedPrivateKey) {
		t.Fatalf("DecodeWIF bad checksum: got %v want %v", err, ErrMalformedPrivateKey)
	}
}
