package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestFromEnvWithHexKey(t *testing.T) {
	t.Setenv(EnvPrivateKey, "0x"+testKeyHex)
	t.Setenv(EnvPrivateKeyFile, "")
	t.Setenv(EnvKeystorePath, "")

	s, err := FromEnv(KeySourceEnv)
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	pk, _ := crypto.HexToECDSA(testKeyHex)
	want := crypto.PubkeyToAddress(pk.PublicKey)
	if s.Address() != want {
		t.Fatalf("address = %s, want %s", s.Address(), want)
	}
}

func TestFromEnvWithKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.hex")
	if err := os.WriteFile(path, []byte(testKeyHex+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvPrivateKeyFile, path)

	s, err := FromEnv(KeySourceFile)
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if s.Address() == (LocalSigner{}).address {
		t.Fatalf("expected derived address")
	}
}

func TestFromEnvRejectsUnknownSource(t *testing.T) {
	if _, err := FromEnv("vault"); err == nil || !strings.Contains(err.Error(), "unsupported key source") {
		t.Fatalf("expected unsupported source error, got %v", err)
	}
}

func TestFromEnvMissingKey(t *testing.T) {
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvPrivateKeyFile, "")
	t.Setenv(EnvKeystorePath, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if _, err := FromEnv(KeySourceAuto); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestSignTxProducesSignedTransaction(t *testing.T) {
	t.Setenv(EnvPrivateKey, testKeyHex)
	s, err := FromEnv(KeySourceEnv)
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	chainID := big.NewInt(1320)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
	})
	signed, err := s.SignTx(chainID, tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != s.Address() {
		t.Fatalf("sender = %s, want %s", sender, s.Address())
	}
}
