package escrow

import (
	"math/big"
	"strconv"
	"strings"
)

// defaultDisplayDecimals is the scale assumed by the display mapper when an
// escrow carries no trustline decimals metadata. The live balance resolver
// assumes defaultTokenDecimals (7) instead; the two paths historically
// rendered different output for escrows without metadata and unifying them
// would change what users see, so both constants stay.
const defaultDisplayDecimals uint32 = 2

// maxDisplayDecimals caps trustline-declared scales in the display mapper.
const maxDisplayDecimals uint32 = 18

// EscrowType distinguishes the two structural escrow variants.
type EscrowType string

const (
	// TypeSingleRelease escrows release their whole balance at once.
	TypeSingleRelease EscrowType = "single-release"
	// TypeMultiRelease escrows carry per-milestone amounts and flags.
	TypeMultiRelease EscrowType = "multi-release"
)

// Milestone is one deliverable unit projected into the display model. The
// amount, release flags, signer and approver fields are only populated for
// multi-release escrows.
type Milestone struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Approved    bool   `json:"approved"`
	Amount      string `json:"amount,omitempty"`
	Released    bool   `json:"released,omitempty"`
	Disputed    bool   `json:"disputed,omitempty"`
	Resolved    bool   `json:"resolved,omitempty"`
	Signer      string `json:"signer,omitempty"`
	Approver    string `json:"approver,omitempty"`
}

// Organized is the stable display model derived from one escrow's on-chain
// state. It is never persisted; each fetch rebuilds it from scratch.
type Organized struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Properties  map[string]string `json:"properties"`
	Roles       map[string]string `json:"roles"`
	Flags       map[string]string `json:"flags"`
	Milestones  []Milestone       `json:"milestones"`
	Progress    float64           `json:"progress"`
	EscrowType  EscrowType        `json:"escrowType"`
}

// Organize converts a fetched escrow state into the display model. A nil map
// propagates as nil ("not found" / "not loaded"); anything else always
// produces a model -- missing or mistyped fields degrade to sentinels, they
// never fail the transform.
func Organize(data EscrowMap, contractID string, mobile bool) *Organized {
	if data == nil {
		return nil
	}

	decimals := displayDecimals(data)
	milestonesVal, _ := data.Get("milestones")
	escrowType := DetectEscrowType(milestonesVal)
	milestones := parseMilestones(milestonesVal, escrowType, decimals)

	out := &Organized{
		Title:       textOrNA(data, "title"),
		Description: textOrNA(data, "description"),
		Properties:  extractProperties(data, contractID, milestones, escrowType, decimals),
		Roles:       extractRoles(data, mobile),
		Flags:       extractFlags(data),
		Milestones:  milestones,
		Progress:    progress(milestones),
		EscrowType:  escrowType,
	}
	return out
}

// DetectEscrowType infers the escrow variant from milestone shape: an escrow
// is multi-release iff at least one milestone carries an amount or a release
// style flag field. The plain approval flag belongs to both variants and does
// not count. The heuristic is isolated here so a declared discriminator can
// replace it without touching callers.
func DetectEscrowType(milestones ScVal) EscrowType {
	if milestones.Kind != KindVec {
		return TypeSingleRelease
	}
	for _, item := range milestones.Vec {
		if item.Kind != KindMap {
			continue
		}
		for _, entry := range item.Map {
			key, ok := entry.Key.Text()
			if !ok {
				continue
			}
			if key == "amount" {
				return TypeMultiRelease
			}
			if strings.HasSuffix(key, "flag") && key != "approved_flag" {
				return TypeMultiRelease
			}
		}
	}
	return TypeSingleRelease
}

func displayDecimals(data EscrowMap) uint32 {
	trustline, ok := data.Get("trustline")
	if !ok || trustline.Kind != KindMap {
		return defaultDisplayDecimals
	}
	sub := mapToEscrowMap(trustline)
	raw, ok := sub.Get("decimals")
	if !ok {
		return defaultDisplayDecimals
	}
	n, ok := raw.BigInt()
	if !ok || n.Sign() < 0 {
		return defaultDisplayDecimals
	}
	if !n.IsUint64() || n.Uint64() > uint64(maxDisplayDecimals) {
		return maxDisplayDecimals
	}
	return uint32(n.Uint64())
}

func parseMilestones(milestones ScVal, escrowType EscrowType, decimals uint32) []Milestone {
	if milestones.Kind != KindVec {
		return []Milestone{}
	}
	out := make([]Milestone, 0, len(milestones.Vec))
	for i, item := range milestones.Vec {
		fields := mapToEscrowMap(item)
		ms := Milestone{
			ID:          i,
			Title:       fieldText(fields, "title", defaultMilestoneName(i)),
			Description: fieldText(fields, "description", defaultMilestoneName(i)),
			Status:      fieldText(fields, "status", "pending"),
			Approved:    fieldBool(fields, "approved", "approved_flag"),
		}
		if escrowType == TypeMultiRelease {
			if raw, ok := fields.Get("amount"); ok {
				if n, ok := raw.BigInt(); ok {
					ms.Amount = roundScaled(n, decimals, 2)
				} else {
					ms.Amount = NotAvailable
				}
			}
			ms.Released = fieldBool(fields, "released", "release_flag")
			ms.Disputed = fieldBool(fields, "disputed", "dispute_flag")
			ms.Resolved = fieldBool(fields, "resolved", "resolved_flag")
			ms.Signer = fieldText(fields, "signer", "")
			ms.Approver = fieldText(fields, "approver", "")
		}
		out = append(out, ms)
	}
	return out
}

// defaultMilestoneName numbers milestones 1-based for display even though
// their ids stay 0-based.
func defaultMilestoneName(index int) string {
	return "Milestone " + strconv.Itoa(index+1)
}

func progress(milestones []Milestone) float64 {
	if len(milestones) == 0 {
		return 0
	}
	approved := 0
	for _, ms := range milestones {
		if ms.Approved {
			approved++
		}
	}
	return 100 * float64(approved) / float64(len(milestones))
}

func extractProperties(data EscrowMap, contractID string, milestones []Milestone, escrowType EscrowType, decimals uint32) map[string]string {
	props := map[string]string{
		"escrow_id":     contractID,
		"engagement_id": textOrNA(data, "engagement_id"),
		"trustline":     trustlineLabel(data),
	}

	total := totalAmount(data, escrowType)
	if total != nil {
		props["amount"] = roundScaled(total, decimals, 0)
	} else {
		props["amount"] = NotAvailable
	}

	props["balance"] = storedBalance(data, decimals)

	if raw, ok := data.Get("platform_fee"); ok {
		if fee, ok := raw.BigInt(); ok {
			// Basis points, not token units: scale by 100 regardless of the
			// trustline decimals.
			props["platform_fee"] = formatScaled(fee, 2) + "%"
		} else {
			props["platform_fee"] = NotAvailable
		}
	} else {
		props["platform_fee"] = NotAvailable
	}

	return props
}

// totalAmount starts from the declared top-level amount and, for
// multi-release escrows, prefers the sum of milestone amounts whenever that
// sum is positive. The override is an intentional reconciliation, not a
// cross-check.
func totalAmount(data EscrowMap, escrowType EscrowType) *big.Int {
	var total *big.Int
	if raw, ok := data.Get("amount"); ok {
		if n, ok := raw.BigInt(); ok {
			total = n
		}
	}
	if escrowType != TypeMultiRelease {
		return total
	}
	sum := big.NewInt(0)
	if raw, ok := data.Get("milestones"); ok && raw.Kind == KindVec {
		for _, item := range raw.Vec {
			fields := mapToEscrowMap(item)
			if amountRaw, ok := fields.Get("amount"); ok {
				if n, ok := amountRaw.BigInt(); ok {
					sum.Add(sum, n)
				}
			}
		}
	}
	if sum.Sign() > 0 {
		return sum
	}
	return total
}

// storedBalance prefers the 128-bit balance field scaled by the trustline
// decimals; a pre-formatted string value is only used as a fallback.
func storedBalance(data EscrowMap, decimals uint32) string {
	raw, ok := data.Get("balance")
	if !ok {
		return NotAvailable
	}
	if n, ok := raw.BigInt(); ok && raw.Kind == KindInt128 {
		return roundScaled(n, decimals, 2)
	}
	if text, ok := raw.Text(); ok && strings.TrimSpace(text) != "" {
		if n, ok := raw.BigInt(); ok {
			return roundScaled(n, decimals, 2)
		}
		return text
	}
	return NotAvailable
}

func extractRoles(data EscrowMap, mobile bool) map[string]string {
	out := map[string]string{}
	raw, ok := data.Get("roles")
	if !ok || raw.Kind != KindMap {
		return out
	}
	for _, entry := range mapToEscrowMap(raw) {
		addr := entry.Val.Display()
		if mobile {
			addr = truncateAddress(addr)
		}
		out[entry.Key] = addr
	}
	return out
}

// extractFlags projects the three escrow status flags, accepting both naming
// conventions observed on chain. Unset flags render the N/A sentinel; set
// flags render "True"/"False".
func extractFlags(data EscrowMap) map[string]string {
	out := map[string]string{
		"dispute_flag":  NotAvailable,
		"release_flag":  NotAvailable,
		"resolved_flag": NotAvailable,
	}
	raw, ok := data.Get("flags")
	if !ok || raw.Kind != KindMap {
		return out
	}
	sub := mapToEscrowMap(raw)
	assign := func(target string, names ...string) {
		for _, name := range names {
			if val, ok := sub.Get(name); ok && val.Kind == KindBool {
				if val.Bool {
					out[target] = "True"
				} else {
					out[target] = "False"
				}
				return
			}
		}
	}
	assign("dispute_flag", "disputed", "dispute_flag")
	assign("release_flag", "released", "release_flag")
	assign("resolved_flag", "resolved", "resolved_flag")
	return out
}

func trustlineLabel(data EscrowMap) string {
	raw, ok := data.Get("trustline")
	if !ok || raw.Kind != KindMap {
		return NotAvailable
	}
	sub := mapToEscrowMap(raw)
	if code, ok := sub.Get("code"); ok {
		if text, ok := code.Text(); ok && text != "" {
			return text
		}
	}
	for _, key := range []string{"address", "contract_id"} {
		if val, ok := sub.Get(key); ok {
			if text, ok := val.Text(); ok && text != "" {
				return text
			}
		}
	}
	return NotAvailable
}

// truncateAddress shortens an address for narrow viewports. The full value is
// always preserved for copy targets and links; only the rendered form shrinks.
func truncateAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func textOrNA(data EscrowMap, key string) string {
	raw, ok := data.Get(key)
	if !ok {
		return NotAvailable
	}
	if text, ok := raw.Text(); ok && text != "" {
		return text
	}
	return NotAvailable
}

func fieldText(fields EscrowMap, key, fallback string) string {
	if raw, ok := fields.Get(key); ok {
		if text, ok := raw.Text(); ok && text != "" {
			return text
		}
	}
	return fallback
}

func fieldBool(fields EscrowMap, names ...string) bool {
	for _, name := range names {
		if raw, ok := fields.Get(name); ok && raw.Kind == KindBool {
			return raw.Bool
		}
	}
	return false
}

