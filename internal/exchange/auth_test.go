package exchange

import (
	"math"
	"math/big"
	"testing"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/pkg/types"
)

// Well-known anvil/hardhat test key #0. Never funded on mainnet.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	cfg := config.Config{}
	cfg.Wallet.PrivateKey = testPrivateKey
	cfg.Wallet.ChainID = 137
	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return auth
}

func TestNewAuthDerivesAddress(t *testing.T) {
	t.Parallel()
	auth := newTestAuth(t)

	if auth.Address().Hex() != testAddress {
		t.Errorf("Address = %s, want %s", auth.Address().Hex(), testAddress)
	}
	// No funder configured: funder defaults to the signer.
	if auth.FunderAddress() != auth.Address() {
		t.Errorf("FunderAddress = %s, want %s", auth.FunderAddress().Hex(), auth.Address().Hex())
	}
	if auth.ChainID().Cmp(big.NewInt(137)) != 0 {
		t.Errorf("ChainID = %s, want 137", auth.ChainID())
	}
}

func TestNewAuthStripsHexPrefix(t *testing.T) {
	t.Parallel()
	cfg := config.Config{}
	cfg.Wallet.PrivateKey = "0x" + testPrivateKey
	cfg.Wallet.ChainID = 137

	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	if auth.Address().Hex() != testAddress {
		t.Errorf("Address = %s, want %s", auth.Address().Hex(), testAddress)
	}
}

func TestNewAuthRejectsBadKey(t *testing.T) {
	t.Parallel()
	cfg := config.Config{}
	cfg.Wallet.PrivateKey = "not-a-key"
	cfg.Wallet.ChainID = 137

	if _, err := NewAuth(cfg); err == nil {
		t.Fatal("expected error for invalid private key")
	}
}

func TestL1HeadersComplete(t *testing.T) {
	t.Parallel()
	auth := newTestAuth(t)

	headers, err := auth.L1Headers(0)
	if err != nil {
		t.Fatalf("L1Headers: %v", err)
	}

	for _, key := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_NONCE"} {
		if headers[key] == "" {
			t.Errorf("header %s is empty", key)
		}
	}
	if headers["POLY_ADDRESS"] != testAddress {
		t.Errorf("POLY_ADDRESS = %s, want %s", headers["POLY_ADDRESS"], testAddress)
	}
	// 65-byte signature hex-encoded with 0x prefix
	if len(headers["POLY_SIGNATURE"]) != 2+130 {
		t.Errorf("POLY_SIGNATURE length = %d, want 132", len(headers["POLY_SIGNATURE"]))
	}
}

func TestL2HeadersComplete(t *testing.T) {
	t.Parallel()
	auth := newTestAuth(t)
	auth.SetCredentials(Credentials{
		ApiKey:     "test-key",
		Secret:     "dGVzdC1zZWNyZXQ=", // base64 "test-secret"
		Passphrase: "test-pass",
	})

	headers, err := auth.L2Headers("POST", "/order", `{"order":{}}`)
	if err != nil {
		t.Fatalf("L2Headers: %v", err)
	}

	for _, key := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_API_KEY", "POLY_PASSPHRASE"} {
		if headers[key] == "" {
			t.Errorf("header %s is empty", key)
		}
	}
	if headers["POLY_API_KEY"] != "test-key" {
		t.Errorf("POLY_API_KEY = %s, want test-key", headers["POLY_API_KEY"])
	}
}

func TestHMACDeterministic(t *testing.T) {
	t.Parallel()
	auth := newTestAuth(t)
	auth.SetCredentials(Credentials{Secret: "dGVzdC1zZWNyZXQ="})

	sig1, err := auth.buildHMAC("1700000000", "GET", "/data/orders", "")
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	sig2, err := auth.buildHMAC("1700000000", "GET", "/data/orders", "")
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	if sig1 != sig2 {
		t.Errorf("same inputs produced different signatures: %s vs %s", sig1, sig2)
	}

	sig3, err := auth.buildHMAC("1700000001", "GET", "/data/orders", "")
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	if sig1 == sig3 {
		t.Error("different timestamps produced identical signatures")
	}
}

func TestHasL2Credentials(t *testing.T) {
	t.Parallel()
	auth := newTestAuth(t)

	if auth.HasL2Credentials() {
		t.Error("HasL2Credentials = true with no creds configured")
	}
	auth.SetCredentials(Credentials{ApiKey: "k", Secret: "s", Passphrase: "p"})
	if !auth.HasL2Credentials() {
		t.Error("HasL2Credentials = false after SetCredentials")
	}
}

func TestAPIKeyPrefix(t *testing.T) {
	t.Parallel()
	auth := newTestAuth(t)

	auth.SetCredentials(Credentials{ApiKey: "short"})
	if got := auth.APIKeyPrefix(); got != "short" {
		t.Errorf("APIKeyPrefix = %q, want %q", got, "short")
	}

	auth.SetCredentials(Credentials{ApiKey: "0123456789abcdef"})
	if got := auth.APIKeyPrefix(); got != "01234567..." {
		t.Errorf("APIKeyPrefix = %q, want %q", got, "01234567...")
	}
}

func TestRoundDown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		val      float64
		decimals int
		want     float64
	}{
		{"truncate 2 decimals", 1.2345, 2, 1.23},
		{"truncate 4 decimals", 0.55559, 4, 0.5555},
		{"exact value unchanged", 0.55, 2, 0.55},
		{"zero", 0.0, 2, 0.0},
		{"whole number", 5.0, 2, 5.0},
		{"zero decimals", 3.99, 0, 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := roundDown(tt.val, tt.decimals)
			if math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("roundDown(%v, %d) = %v, want %v", tt.val, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestPriceToAmounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		price   float64
		size    float64
		side    types.Side
		tick    float64
		wantMkr int64 // expected makerAmount (6 decimal USDC)
		wantTkr int64 // expected takerAmount (6 decimal USDC)
	}{
		{
			name:    "BUY at 0.50, size 100",
			price:   0.50,
			size:    100.0,
			side:    types.BUY,
			tick:    0.01,
			wantMkr: 50_000_000,  // 100 * 0.50 = 50 USDC
			wantTkr: 100_000_000, // 100 tokens
		},
		{
			name:    "SELL at 0.50, size 100",
			price:   0.50,
			size:    100.0,
			side:    types.SELL,
			tick:    0.01,
			wantMkr: 100_000_000, // 100 tokens
			wantTkr: 50_000_000,  // 100 * 0.50 = 50 USDC
		},
		{
			name:    "BUY at 0.75, size 10",
			price:   0.75,
			size:    10.0,
			side:    types.BUY,
			tick:    0.01,
			wantMkr: 7_500_000,  // 10 * 0.75 = 7.5 USDC
			wantTkr: 10_000_000, // 10 tokens
		},
		{
			name:    "BUY at 0.125 with finer tick",
			price:   0.125,
			size:    8.0,
			side:    types.BUY,
			tick:    0.001,
			wantMkr: 1_000_000, // 8 * 0.125 = 1 USDC
			wantTkr: 8_000_000,
		},
		{
			name:    "fractional size truncated to 2 decimals",
			price:   0.50,
			size:    10.567,
			side:    types.BUY,
			tick:    0.01,
			wantMkr: 5_280_000,  // 10.56 * 0.50 = 5.28 USDC
			wantTkr: 10_560_000, // 10.56 tokens
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mkr, tkr := PriceToAmounts(tt.price, tt.size, tt.side, tt.tick)
			if mkr.Int64() != tt.wantMkr {
				t.Errorf("makerAmount = %d, want %d", mkr.Int64(), tt.wantMkr)
			}
			if tkr.Int64() != tt.wantTkr {
				t.Errorf("takerAmount = %d, want %d", tkr.Int64(), tt.wantTkr)
			}
		})
	}
}
