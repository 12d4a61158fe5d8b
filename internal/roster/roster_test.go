package roster

import (
	"context"
	"errors"
	"testing"

	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/jira"
)

type fakeResolver struct {
	accounts map[string]jira.Account
	failOn   string
}

func (f *fakeResolver) ResolveAccountID(_ context.Context, name string) (jira.Account, bool, error) {
	if name == f.failOn {
		return jira.Account{}, false, errors.New("lookup failed")
	}
	account, ok := f.accounts[name]
	return account, ok, nil
}

func TestBuildSkipsUnresolvedAndFailedNames(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		accounts: map[string]jira.Account{
			"Alice":   {AccountID: "acc-1", DisplayName: "Alice Ramos"},
			"Bruno":   {AccountID: "acc-2", DisplayName: "Bruno Diaz"},
			"Carmen":  {AccountID: "acc-3", DisplayName: "Carmen Soto"},
			"Support": {AccountID: "acc-4", DisplayName: "Support Bot"},
		},
		failOn: "Bruno",
	}

	groups := Build(context.Background(), resolver, config.TeamsConfig{
		Developers: []string{"Alice", "Bruno", "Nadie"},
		QA:         []string{"Carmen"},
		Internal:   []string{"Support"},
	}, nil)

	if len(groups.Developers) != 1 {
		t.Fatalf("len(Developers) = %d, want 1", len(groups.Developers))
	}
	if got := groups.Developers["acc-1"]; got != "Alice Ramos" {
		t.Fatalf("Developers[acc-1] = %q", got)
	}
	if len(groups.QA) != 1 || len(groups.PM) != 0 {
		t.Fatalf("QA=%d PM=%d, want 1 and 0", len(groups.QA), len(groups.PM))
	}
	if groups.Empty() {
		t.Fatal("Empty() = true with resolved members")
	}
}

func TestIsInternalCoversAllGroupsAndFallsBackToName(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		accounts: map[string]jira.Account{
			"Alice":   {AccountID: "acc-1", DisplayName: "Alice Ramos"},
			"Carmen":  {AccountID: "acc-3", DisplayName: "Carmen Soto"},
			"Support": {AccountID: "acc-4", DisplayName: "Support Bot"},
		},
	}
	groups := Build(context.Background(), resolver, config.TeamsConfig{
		Developers: []string{"Alice"},
		QA:         []string{"Carmen"},
		Internal:   []string{"Support"},
	}, nil)

	testCases := []struct {
		name        string
		accountID   string
		displayName string
		want        bool
	}{
		{"developer_by_id", "acc-1", "", true},
		{"qa_by_id", "acc-3", "", true},
		{"internal_extra_by_id", "acc-4", "", true},
		{"fallback_by_display_name", "", "Alice Ramos", true},
		{"external_author", "ext-1", "Cliente", false},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := groups.IsInternal(tc.accountID, tc.displayName); got != tc.want {
				t.Fatalf("IsInternal(%q, %q) = %t, want %t", tc.accountID, tc.displayName, got, tc.want)
			}
		})
	}
}
