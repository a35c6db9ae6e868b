package escrow

import (
	"encoding/json"
	"strings"
	"testing"
)

func escrowState(t *testing.T, raw string) EscrowMap {
	t.Helper()
	var v ScVal
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if v.Kind != KindMap {
		t.Fatalf("state must be a map, got kind %d", v.Kind)
	}
	return mapToEscrowMap(v)
}

const testContractID = "CAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func TestOrganizeNilPropagates(t *testing.T) {
	if got := Organize(nil, testContractID, false); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestOrganizeEmptyStateDegradesToSentinels(t *testing.T) {
	out := Organize(EscrowMap{}, testContractID, false)
	if out == nil {
		t.Fatal("empty state must still organize")
	}
	if out.Progress != 0 {
		t.Fatalf("expected progress 0, got %v", out.Progress)
	}
	if len(out.Milestones) != 0 {
		t.Fatalf("expected no milestones, got %d", len(out.Milestones))
	}
	if out.EscrowType != TypeSingleRelease {
		t.Fatalf("expected single-release, got %s", out.EscrowType)
	}
	for _, key := range []string{"amount", "balance", "platform_fee", "engagement_id", "trustline"} {
		if out.Properties[key] != NotAvailable {
			t.Fatalf("property %s: expected %q, got %q", key, NotAvailable, out.Properties[key])
		}
	}
	for _, key := range []string{"dispute_flag", "release_flag", "resolved_flag"} {
		if out.Flags[key] != NotAvailable {
			t.Fatalf("flag %s: expected %q, got %q", key, NotAvailable, out.Flags[key])
		}
	}
	if out.Properties["escrow_id"] != testContractID {
		t.Fatalf("escrow_id not carried through")
	}
}

func TestDetectEscrowType(t *testing.T) {
	single := decodeVal(t, `{"vec":[
		{"map":[
			{"key":{"sym":"title"},"val":{"str":"Design"}},
			{"key":{"sym":"description"},"val":{"str":"Design work"}},
			{"key":{"sym":"status"},"val":{"str":"pending"}},
			{"key":{"sym":"approved_flag"},"val":{"bool":false}}
		]}
	]}`)
	if got := DetectEscrowType(single); got != TypeSingleRelease {
		t.Fatalf("expected single-release, got %s", got)
	}

	withAmount := decodeVal(t, `{"vec":[
		{"map":[
			{"key":{"sym":"title"},"val":{"str":"Design"}},
			{"key":{"sym":"amount"},"val":{"i128":"100"}}
		]}
	]}`)
	if got := DetectEscrowType(withAmount); got != TypeMultiRelease {
		t.Fatalf("expected multi-release for amount field, got %s", got)
	}

	withFlag := decodeVal(t, `{"vec":[
		{"map":[
			{"key":{"sym":"release_flag"},"val":{"bool":true}}
		]}
	]}`)
	if got := DetectEscrowType(withFlag); got != TypeMultiRelease {
		t.Fatalf("expected multi-release for flag field, got %s", got)
	}

	if got := DetectEscrowType(ScVal{}); got != TypeSingleRelease {
		t.Fatalf("absent milestones default to single-release, got %s", got)
	}
}

func TestOrganizeProgress(t *testing.T) {
	data := escrowState(t, `{"map":[
		{"key":{"sym":"milestones"},"val":{"vec":[
			{"map":[{"key":{"sym":"approved_flag"},"val":{"bool":true}}]},
			{"map":[{"key":{"sym":"approved_flag"},"val":{"bool":true}}]},
			{"map":[{"key":{"sym":"approved_flag"},"val":{"bool":false}}]},
			{"map":[{"key":{"sym":"approved_flag"},"val":{"bool":false}}]}
		]}}
	]}`)
	out := Organize(data, testContractID, false)
	if out.Progress != 50 {
		t.Fatalf("expected progress 50, got %v", out.Progress)
	}

	allApproved := escrowState(t, `{"map":[
		{"key":{"sym":"milestones"},"val":{"vec":[
			{"map":[{"key":{"sym":"approved_flag"},"val":{"bool":true}}]}
		]}}
	]}`)
	if got := Organize(allApproved, testContractID, false).Progress; got != 100 {
		t.Fatalf("expected progress 100, got %v", got)
	}
}

func TestOrganizeMilestoneDefaults(t *testing.T) {
	data := escrowState(t, `{"map":[
		{"key":{"sym":"milestones"},"val":{"vec":[
			{"map":[]},
			{"map":[{"key":{"sym":"title"},"val":{"str":"Ship it"}}]}
		]}}
	]}`)
	out := Organize(data, testContractID, false)
	if len(out.Milestones) != 2 {
		t.Fatalf("expected 2 milestones, got %d", len(out.Milestones))
	}
	first := out.Milestones[0]
	if first.ID != 0 || first.Title != "Milestone 1" || first.Status != "pending" || first.Approved {
		t.Fatalf("unexpected defaults: %+v", first)
	}
	second := out.Milestones[1]
	if second.ID != 1 || second.Title != "Ship it" || second.Description != "Milestone 2" {
		t.Fatalf("unexpected second milestone: %+v", second)
	}
}

func TestOrganizeDisplayedAmountUsesZeroDecimals(t *testing.T) {
	data := escrowState(t, `{"map":[
		{"key":{"sym":"amount"},"val":{"i128":{"hi":0,"lo":500000000}}},
		{"key":{"sym":"trustline"},"val":{"map":[
			{"key":{"sym":"code"},"val":{"str":"USDC"}},
			{"key":{"sym":"decimals"},"val":{"u32":7}}
		]}}
	]}`)
	out := Organize(data, testContractID, false)
	if out.Properties["amount"] != "50" {
		t.Fatalf("expected displayed amount 50, got %q", out.Properties["amount"])
	}
	if out.Properties["trustline"] != "USDC" {
		t.Fatalf("expected trustline USDC, got %q", out.Properties["trustline"])
	}
}

func TestOrganizeBalancePrefersRawInteger(t *testing.T) {
	data := escrowState(t, `{"map":[
		{"key":{"sym":"balance"},"val":{"i128":{"hi":0,"lo":501234567}}},
		{"key":{"sym":"trustline"},"val":{"map":[
			{"key":{"sym":"decimals"},"val":{"u32":7}}
		]}}
	]}`)
	out := Organize(data, testContractID, false)
	if out.Properties["balance"] != "50.12" {
		t.Fatalf("expected balance 50.12, got %q", out.Properties["balance"])
	}
}

func TestOrganizeDefaultDecimalsIsTwo(t *testing.T) {
	// No trustline metadata: amounts scale at the display default of 2.
	data := escrowState(t, `{"map":[
		{"key":{"sym":"amount"},"val":{"i128":"4200"}}
	]}`)
	out := Organize(data, testContractID, false)
	if out.Properties["amount"] != "42" {
		t.Fatalf("expected 42 at default scale, got %q", out.Properties["amount"])
	}
}

func TestOrganizePlatformFeeIsBasisPoints(t *testing.T) {
	data := escrowState(t, `{"map":[
		{"key":{"sym":"platform_fee"},"val":{"i128":"500"}},
		{"key":{"sym":"trustline"},"val":{"map":[
			{"key":{"sym":"decimals"},"val":{"u32":7}}
		]}}
	]}`)
	out := Organize(data, testContractID, false)
	if out.Properties["platform_fee"] != "5.00%" {
		t.Fatalf("expected 5.00%%, got %q", out.Properties["platform_fee"])
	}
}

func TestOrganizeMultiReleaseTotalsPreferMilestoneSum(t *testing.T) {
	data := escrowState(t, `{"map":[
		{"key":{"sym":"amount"},"val":{"i128":"100000000"}},
		{"key":{"sym":"trustline"},"val":{"map":[
			{"key":{"sym":"decimals"},"val":{"u32":7}}
		]}},
		{"key":{"sym":"milestones"},"val":{"vec":[
			{"map":[{"key":{"sym":"amount"},"val":{"i128":"30000000"}}]},
			{"map":[{"key":{"sym":"amount"},"val":{"i128":"20000000"}}]}
		]}}
	]}`)
	out := Organize(data, testContractID, false)
	if out.EscrowType != TypeMultiRelease {
		t.Fatalf("expected multi-release, got %s", out.EscrowType)
	}
	if out.Properties["amount"] != "5" {
		t.Fatalf("expected milestone sum 5 to override declared total, got %q", out.Properties["amount"])
	}
	if out.Milestones[0].Amount != "3.00" {
		t.Fatalf("expected milestone amount 3.00, got %q", out.Milestones[0].Amount)
	}
}

func TestExtractFlagsAcceptsBothConventions(t *testing.T) {
	short := escrowState(t, `{"map":[
		{"key":{"sym":"flags"},"val":{"map":[
			{"key":{"sym":"disputed"},"val":{"bool":true}}
		]}}
	]}`)
	long := escrowState(t, `{"map":[
		{"key":{"sym":"flags"},"val":{"map":[
			{"key":{"sym":"dispute_flag"},"val":{"bool":true}}
		]}}
	]}`)
	a := Organize(short, testContractID, false)
	b := Organize(long, testContractID, false)
	if a.Flags["dispute_flag"] != "True" || b.Flags["dispute_flag"] != "True" {
		t.Fatalf("both conventions must map to True: %q vs %q", a.Flags["dispute_flag"], b.Flags["dispute_flag"])
	}
	if a.Flags["release_flag"] != NotAvailable {
		t.Fatalf("unset flag must stay %s, got %q", NotAvailable, a.Flags["release_flag"])
	}
}

func TestExtractRolesTruncatesOnMobile(t *testing.T) {
	addr := "GDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD"
	data := escrowState(t, `{"map":[
		{"key":{"sym":"roles"},"val":{"map":[
			{"key":{"sym":"approver"},"val":{"address":"`+addr+`"}}
		]}}
	]}`)
	full := Organize(data, testContractID, false)
	if full.Roles["approver"] != addr {
		t.Fatalf("desktop must keep the full address, got %q", full.Roles["approver"])
	}
	mobile := Organize(data, testContractID, true)
	truncated := mobile.Roles["approver"]
	if truncated == addr || !strings.Contains(truncated, "...") {
		t.Fatalf("mobile must truncate, got %q", truncated)
	}
	if !strings.HasPrefix(truncated, addr[:6]) || !strings.HasSuffix(truncated, addr[len(addr)-4:]) {
		t.Fatalf("truncation must keep both ends, got %q", truncated)
	}
}

func TestOrganizeMultiReleaseMilestoneFlags(t *testing.T) {
	data := escrowState(t, `{"map":[
		{"key":{"sym":"milestones"},"val":{"vec":[
			{"map":[
				{"key":{"sym":"amount"},"val":{"i128":"100"}},
				{"key":{"sym":"release_flag"},"val":{"bool":true}},
				{"key":{"sym":"signer"},"val":{"address":"GSIGNER"}},
				{"key":{"sym":"approver"},"val":{"address":"GAPPROVER"}}
			]}
		]}}
	]}`)
	out := Organize(data, testContractID, false)
	ms := out.Milestones[0]
	if !ms.Released || ms.Disputed || ms.Resolved {
		t.Fatalf("unexpected milestone flags: %+v", ms)
	}
	if ms.Signer != "GSIGNER" || ms.Approver != "GAPPROVER" {
		t.Fatalf("signer/approver not carried: %+v", ms)
	}
}
