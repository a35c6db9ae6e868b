package escrow

import (
	"context"
	"encoding/json"
	"math/big"

	"escrowscan/rpc"
)

// defaultTokenDecimals is the hard fallback used by the live balance
// resolver. Deliberately different from defaultDisplayDecimals (2); see the
// comment there before touching either.
const defaultTokenDecimals uint32 = 7

// maxTokenDecimals caps resolved token decimals on the live balance path.
const maxTokenDecimals uint32 = 12

// mismatchPrecisionCap bounds the precision at which stored and live
// balances are compared.
const mismatchPrecisionCap = 6

// simulationSource is the null account used as the source of read-only
// simulation envelopes. It never signs anything.
const simulationSource = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"

// LiveBalance is the outcome of reconciling the stored balance against a
// live token-contract query. All fields may be empty: the resolver fails
// open on any parse or transport problem.
type LiveBalance struct {
	LedgerBalance *string `json:"ledgerBalance"`
	Decimals      *uint32 `json:"decimals"`
	Mismatch      bool    `json:"mismatch"`
}

// ResolveLiveBalance fetches the escrow's live token balance by simulating a
// read-only call against the trustline's token contract, reconciles decimal
// scaling, and flags a mismatch against the stored balance. It is a no-op
// when the escrow carries no trustline metadata or no token contract can be
// derived, and it never propagates an error: any failure yields an empty
// result.
func ResolveLiveBalance(ctx context.Context, client *rpc.Client, contractID string, data EscrowMap) LiveBalance {
	trustline := trustlineMap(data)
	if trustline == nil {
		return LiveBalance{}
	}
	tokenID := tokenContractID(trustline, client.Passphrase())
	if tokenID == "" {
		return LiveBalance{}
	}

	decimals := resolveTokenDecimals(ctx, client, trustline, tokenID)

	raw, ok := fetchLiveBalance(ctx, client, tokenID, contractID)
	if !ok {
		// The host redacted the return value or the call failed; report the
		// resolved decimals but no balance.
		return LiveBalance{Decimals: &decimals}
	}

	scaled := formatScaled(raw, decimals)
	out := LiveBalance{LedgerBalance: &scaled, Decimals: &decimals}

	if storedRaw, okStored := data.Get("balance"); okStored {
		if stored, okInt := storedRaw.BigInt(); okInt {
			out.Mismatch = balancesMismatch(stored, raw, decimals)
		}
	}
	return out
}

func trustlineMap(data EscrowMap) EscrowMap {
	raw, ok := data.Get("trustline")
	if !ok || raw.Kind != KindMap {
		return nil
	}
	return mapToEscrowMap(raw)
}

// tokenContractID returns the trustline's explicit token contract id, or
// derives one from a fungible asset code+issuer pair. Empty when neither is
// available.
func tokenContractID(trustline EscrowMap, passphrase string) string {
	for _, key := range []string{"address", "contract_id"} {
		if val, ok := trustline.Get(key); ok {
			if text, ok := val.Text(); ok && text != "" {
				return text
			}
		}
	}
	code, okCode := trustline.Get("code")
	issuer, okIssuer := trustline.Get("issuer")
	if !okCode || !okIssuer {
		return ""
	}
	codeText, _ := code.Text()
	issuerText, _ := issuer.Text()
	derived, err := AssetContractID(codeText, issuerText, passphrase)
	if err != nil {
		return ""
	}
	return derived
}

// resolveTokenDecimals resolves the token's decimal count in priority order:
// escrow metadata (auto-detecting whether the recorded value is an exponent
// or an already-expanded scale factor), an on-chain query of the token's
// decimals entry point, then the hard default.
func resolveTokenDecimals(ctx context.Context, client *rpc.Client, trustline EscrowMap, tokenID string) uint32 {
	if raw, ok := trustline.Get("decimals"); ok {
		if n, ok := raw.BigInt(); ok && n.Sign() >= 0 {
			return clampTokenDecimals(normalizeDecimals(n))
		}
	}
	if queried, ok := queryTokenDecimals(ctx, client, tokenID); ok {
		return clampTokenDecimals(queried)
	}
	return defaultTokenDecimals
}

// normalizeDecimals converts an already-expanded scale factor (1000, 10000,
// ...) back to its exponent. Values below 1000 are taken as exponents as-is.
func normalizeDecimals(n *big.Int) uint64 {
	if n.Cmp(big.NewInt(1000)) >= 0 {
		if exp, ok := exactPowerOfTen(n); ok {
			return exp
		}
	}
	if !n.IsUint64() {
		return uint64(maxTokenDecimals)
	}
	return n.Uint64()
}

func exactPowerOfTen(n *big.Int) (uint64, bool) {
	ten := big.NewInt(10)
	v := new(big.Int).Set(n)
	var exp uint64
	for v.Cmp(big.NewInt(1)) > 0 {
		q, r := new(big.Int).QuoRem(v, ten, new(big.Int))
		if r.Sign() != 0 {
			return 0, false
		}
		v = q
		exp++
	}
	return exp, v.Cmp(big.NewInt(1)) == 0
}

func clampTokenDecimals(v uint64) uint32 {
	if v > uint64(maxTokenDecimals) {
		return maxTokenDecimals
	}
	return uint32(v)
}

func queryTokenDecimals(ctx context.Context, client *rpc.Client, tokenID string) (uint64, bool) {
	val, ok := simulateCall(ctx, client, tokenID, "decimals", nil)
	if !ok {
		return 0, false
	}
	n, ok := val.BigInt()
	if !ok || n.Sign() < 0 || !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}

func fetchLiveBalance(ctx context.Context, client *rpc.Client, tokenID, escrowID string) (*big.Int, bool) {
	arg, err := json.Marshal(ScVal{Kind: KindAddr, Addr: escrowID})
	if err != nil {
		return nil, false
	}
	val, ok := simulateCall(ctx, client, tokenID, "balance", []json.RawMessage{arg})
	if !ok {
		return nil, false
	}
	return val.BigInt()
}

// simulateCall runs one read-only invocation and decodes its return value. A
// missing return value (host redacted it) reports (zero, false) like any
// other soft failure.
func simulateCall(ctx context.Context, client *rpc.Client, contract, function string, args []json.RawMessage) (ScVal, bool) {
	latest, err := client.GetLatestLedger(ctx)
	if err != nil {
		return ScVal{}, false
	}
	res, err := client.SimulateTransaction(ctx, rpc.InvokeRequest{
		Contract:       contract,
		Function:       function,
		Args:           args,
		Source:         simulationSource,
		SequenceNumber: latest.Sequence,
	})
	if err != nil || res.Error != "" || len(res.Results) == 0 {
		return ScVal{}, false
	}
	raw := res.Results[0].ReturnValueJSON
	if len(raw) == 0 {
		return ScVal{}, false
	}
	var val ScVal
	if err := json.Unmarshal(raw, &val); err != nil || val.Void() {
		return ScVal{}, false
	}
	return val, true
}

// balancesMismatch compares the stored and live raw balances at
// min(decimals, 6) precision; a difference of one unit or more at that
// precision is a mismatch.
func balancesMismatch(stored, live *big.Int, decimals uint32) bool {
	precision := int(decimals)
	if precision > mismatchPrecisionCap {
		precision = mismatchPrecisionCap
	}
	a := scaledUnits(stored, decimals, precision)
	b := scaledUnits(live, decimals, precision)
	if a == nil || b == nil {
		return false
	}
	diff := new(big.Int).Abs(new(big.Int).Sub(a, b))
	return diff.Sign() > 0
}
