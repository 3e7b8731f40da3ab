package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

const seedYAML = `deals:
  - target_name: "VMware, Inc."
    target_cik: "0001124610"
    acquirer_name: "Broadcom Inc."
    acquirer_cik: "0001730168"
    state: CLOSED
    is_sponsor_backed: false
    announcement_date: "2022-05-26"
    deal_value_usd: 61000000000

  - target_name: "Twitter, Inc."
    target_cik: "0001418091"
    acquirer_name: "X Holdings Corp."
    state: LOCKED
    announcement_date: "2022-04-25"
    deal_value_usd: 44000000000

  - target_name: "Widget Corp."
    acquirer_name: "Gadget Holdings, Inc."
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed_deals.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSeedDeals(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	path := writeSeedFile(t, seedYAML)

	created, err := SeedDeals(ctx, st, path)
	if err != nil {
		t.Fatalf("SeedDeals: %v", err)
	}
	if created != 3 {
		t.Fatalf("created = %d, want 3", created)
	}

	vmware, err := st.DealByKey(ctx, "cik:0001730168:cik:0001124610")
	if err != nil {
		t.Fatalf("vmware deal missing: %v", err)
	}
	if vmware.State != models.DealClosed {
		t.Errorf("state = %s, want CLOSED", vmware.State)
	}
	if vmware.DealValueUSD != 61e9 {
		t.Errorf("deal value = %v", vmware.DealValueUSD)
	}
	if vmware.IsSponsorBacked == nil || *vmware.IsSponsorBacked {
		t.Error("strategic deal should carry is_sponsor_backed=false")
	}
	if vmware.AnnouncementDate == nil || vmware.AnnouncementDate.Format("2006-01-02") != "2022-05-26" {
		t.Errorf("announcement date = %v", vmware.AnnouncementDate)
	}
	if vmware.TargetNameNormalized != "vmware" {
		t.Errorf("target normalized = %q", vmware.TargetNameNormalized)
	}

	twitter, err := st.DealByKey(ctx, "name:x holdings:name:twitter")
	if err != nil {
		t.Fatalf("twitter deal missing: %v", err)
	}
	if twitter.State != models.DealLocked {
		t.Errorf("declared LOCKED state not honored: %s", twitter.State)
	}

	widget, err := st.DealByKey(ctx, "name:gadget holdings:name:widget")
	if err != nil {
		t.Fatalf("widget deal missing: %v", err)
	}
	if widget.State != models.DealNeedsReview {
		t.Errorf("name-only seed without a state should need review, got %s", widget.State)
	}
}

func TestSeedDealsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	path := writeSeedFile(t, seedYAML)

	if _, err := SeedDeals(ctx, st, path); err != nil {
		t.Fatal(err)
	}
	created, err := SeedDeals(ctx, st, path)
	if err != nil {
		t.Fatal(err)
	}
	if created != 0 {
		t.Errorf("second seed created %d deals, want 0", created)
	}

	deals, err := st.ListDeals(ctx, store.DealFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(deals) != 3 {
		t.Errorf("got %d deals, want 3", len(deals))
	}
}

func TestSeedDealsRejectsKeylessEntry(t *testing.T) {
	st := store.NewMemoryStore()
	path := writeSeedFile(t, "deals:\n  - target_name: \"Orphan Co.\"\n")
	if _, err := SeedDeals(context.Background(), st, path); err == nil {
		t.Error("entry without a clustering key must fail")
	}
}
