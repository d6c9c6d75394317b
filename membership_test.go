package goTenant

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMembershipListMineCachedUntilMutation(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()
	calls := func() int { return fx.env.backend.Calls("ListMyOrganizations") }
	before := calls()

	orgs, err := fx.alice.Memberships.ListMine(ctx)
	if err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != fx.orgID || !orgs[0].Roles.IsAdmin() {
		t.Fatalf("expected alice to administer Acme, got %+v", orgs)
	}
	if _, err := fx.alice.Memberships.ListMine(ctx); err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}
	if calls() != before+1 {
		t.Fatalf("expected cached second list, got %d backend calls", calls()-before)
	}

	if _, err := fx.alice.Memberships.Create(ctx, "Beta"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	orgs, err = fx.alice.Memberships.ListMine(ctx)
	if err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}
	if len(orgs) != 2 || calls() != before+2 {
		t.Fatalf("expected refetch after create, got %d orgs and %d calls", len(orgs), calls()-before)
	}
}

func TestMembershipCreateRefusals(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()

	if _, err := fx.alice.Memberships.Create(ctx, "   "); !errors.Is(err, ErrInvalidOrgName) {
		t.Fatalf("expected ErrInvalidOrgName, got %v", err)
	}
	if n := fx.env.backend.Calls("CreateOrganization"); n != 1 {
		t.Fatalf("expected blank name to skip the backend, got %d calls", n)
	}
	if got := fx.alice.Memberships.Notice(); got.Kind != NoticeError {
		t.Fatalf("expected error notice, got %+v", got)
	}

	_, err := fx.alice.Memberships.Create(ctx, "acme")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}
	if got := UserMessage(err); got != "Organization with this name already exists" {
		t.Fatalf("expected backend message, got %q", got)
	}
}

func TestMembershipListJoinable(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()
	carol, _ := fx.env.user("carol@example.com", "carol", "Carol")

	orgs, err := carol.Memberships.ListJoinable(ctx)
	if err != nil {
		t.Fatalf("ListJoinable failed: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != fx.orgID || orgs[0].MemberCount != 2 {
		t.Fatalf("expected Acme with 2 members, got %+v", orgs)
	}

	orgs, err = fx.bob.Memberships.ListJoinable(ctx)
	if err != nil {
		t.Fatalf("ListJoinable failed: %v", err)
	}
	if len(orgs) != 0 {
		t.Fatalf("expected nothing joinable for a member, got %+v", orgs)
	}

	if _, err := fx.bob.Memberships.Join(ctx, fx.orgID); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
}

func TestLeaveRequiresSecondRequestWithinWindow(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()

	out, err := fx.bob.Memberships.Leave(ctx, fx.orgID)
	if err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if out != LeaveArmed {
		t.Fatalf("expected %s, got %s", LeaveArmed, out)
	}
	st := fx.bob.Memberships.LeaveState(fx.orgID)
	if st.Phase != ConfirmArmed || !st.Deadline.Equal(fx.env.clock.Now().Add(5*time.Second)) {
		t.Fatalf("expected armed for 5s, got %+v", st)
	}
	if fx.env.backend.Calls("LeaveOrganization") != 0 {
		t.Fatal("expected arming to skip the backend")
	}

	fx.env.clock.Advance(3 * time.Second)
	out, err = fx.bob.Memberships.Leave(ctx, fx.orgID)
	if err != nil {
		t.Fatalf("confirming Leave failed: %v", err)
	}
	if out != LeaveDone {
		t.Fatalf("expected %s, got %s", LeaveDone, out)
	}
	if _, member := fx.env.backend.Roles(fx.orgID, fx.bobID); member {
		t.Fatal("expected bob to be removed")
	}
	if st := fx.bob.Memberships.LeaveState(fx.orgID); st.Phase != ConfirmUnarmed {
		t.Fatalf("expected disarmed after leaving, got %+v", st)
	}

	orgs, err := fx.bob.Memberships.ListMine(ctx)
	if err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}
	if len(orgs) != 0 {
		t.Fatalf("expected no organizations after leaving, got %+v", orgs)
	}

	m := fx.bob.MetricsSnapshot()
	if m.Counters[MetricOrgLeaveArmed] != 1 || m.Counters[MetricOrgLeft] != 1 {
		t.Fatalf("unexpected leave counters %+v", m.Counters)
	}
}

func TestLeaveWindowExpires(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()

	if out, err := fx.bob.Memberships.Leave(ctx, fx.orgID); err != nil || out != LeaveArmed {
		t.Fatalf("expected armed, got %s, %v", out, err)
	}
	fx.env.clock.Advance(5 * time.Second)

	if st := fx.bob.Memberships.LeaveState(fx.orgID); st.Phase != ConfirmUnarmed {
		t.Fatalf("expected window to lapse, got %+v", st)
	}
	out, err := fx.bob.Memberships.Leave(ctx, fx.orgID)
	if err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if out != LeaveArmed {
		t.Fatalf("expected a lapsed window to re-arm, got %s", out)
	}
	if fx.env.backend.Calls("LeaveOrganization") != 0 {
		t.Fatal("expected no leave call")
	}
}

func TestLeaveRefusedForAdmin(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()

	_, err := fx.alice.Memberships.Leave(ctx, fx.orgID)
	if !errors.Is(err, ErrLastAdminLeave) {
		t.Fatalf("expected ErrLastAdminLeave, got %v", err)
	}
	if Classify(err) != KindAuthorization {
		t.Fatalf("expected authorization kind, got %s", Classify(err))
	}
	if st := fx.alice.Memberships.LeaveState(fx.orgID); st.Phase != ConfirmUnarmed {
		t.Fatalf("expected refusal not to arm, got %+v", st)
	}
	if fx.env.backend.Calls("LeaveOrganization") != 0 {
		t.Fatal("expected refusal to skip the backend")
	}
	if got := fx.alice.MetricsSnapshot().Counters[MetricLeaveRefused]; got != 1 {
		t.Fatalf("expected 1 refused leave, got %d", got)
	}
}

func TestLeaveRefusedOutsideOrganization(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()
	carol, _ := fx.env.user("carol@example.com", "carol", "Carol")

	for _, orgID := range []ID{fx.orgID, "does-not-exist"} {
		out, err := carol.Memberships.Leave(ctx, orgID)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Leave(%s): expected ErrNotFound, got outcome=%s err=%v", orgID, out, err)
		}
		if st := carol.Memberships.LeaveState(orgID); st.Phase != ConfirmUnarmed {
			t.Fatalf("Leave(%s): expected nothing armed, got %+v", orgID, st)
		}
	}
	if fx.env.backend.Calls("LeaveOrganization") != 0 {
		t.Fatal("expected no leave call")
	}
}

func TestMembershipPermissions(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()
	carol, _ := fx.env.user("carol@example.com", "carol", "Carol")

	tests := []struct {
		name string
		cl   *Client
		want OrgPermissions
	}{
		{
			name: "admin",
			cl:   fx.alice,
			want: OrgPermissions{IsMember: true, IsAdmin: true, CanEditRoles: true, CanManageInvites: true, CanRemoveMembers: true},
		},
		{
			name: "member",
			cl:   fx.bob,
			want: OrgPermissions{IsMember: true, CanLeave: true},
		},
		{
			name: "outsider",
			cl:   carol,
			want: OrgPermissions{},
		},
	}

	for _, tt := range tests {
		got, err := tt.cl.Memberships.Permissions(ctx, fx.orgID)
		if err != nil {
			t.Fatalf("%s: Permissions failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %+v, got %+v", tt.name, tt.want, got)
		}
	}
}

func TestMembershipMemberControls(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()

	rows, err := fx.alice.Memberships.Members(ctx, fx.orgID)
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 members, got %d", len(rows))
	}
	for _, row := range rows {
		got := fx.alice.Memberships.MemberControls(fx.aliceID, row)
		switch row.PrincipalID {
		case fx.aliceID:
			if got != (MemberControls{}) {
				t.Fatalf("expected no controls on own row, got %+v", got)
			}
		case fx.bobID:
			if !got.CanEditRoles || !got.CanKick {
				t.Fatalf("expected full controls on member row, got %+v", got)
			}
		}
	}

	bobRows, err := fx.bob.Memberships.Members(ctx, fx.orgID)
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	for _, row := range bobRows {
		if got := fx.bob.Memberships.MemberControls(fx.bobID, row); got != (MemberControls{}) {
			t.Fatalf("expected no controls for a non-admin viewer, got %+v", got)
		}
	}
}

func TestMembershipRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	cl := env.client(clientTestConfig())
	ctx := context.Background()

	if _, err := cl.Memberships.ListMine(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := cl.Memberships.Leave(ctx, "1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated from Leave, got %v", err)
	}
	if got := cl.Memberships.Notice(); got.Message != UserMessage(ErrNotAuthenticated) {
		t.Fatalf("unexpected notice %+v", got)
	}
	if env.backend.Calls("ListMyOrganizations") != 0 {
		t.Fatal("expected no backend call without a session")
	}
}

func TestMembershipInvalidateDropsInFlightFill(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()
	before := fx.env.backend.Calls("ListMyOrganizations")

	started, release := blockOp(t, fx.env.backend, "ListMyOrganizations")
	errCh := make(chan error, 1)
	go func() {
		_, err := fx.alice.Memberships.ListMine(ctx)
		errCh <- err
	}()
	<-started

	fx.alice.Memberships.Invalidate()
	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}

	if _, err := fx.alice.Memberships.ListMine(ctx); err != nil {
		t.Fatalf("ListMine failed: %v", err)
	}
	if got := fx.env.backend.Calls("ListMyOrganizations") - before; got != 2 {
		t.Fatalf("expected the superseded fill not to be cached, got %d calls", got)
	}
}

func TestMembershipCloseDiscardsInFlightCall(t *testing.T) {
	fx := newOrgFixture(t)
	ctx := context.Background()

	started, release := blockOp(t, fx.env.backend, "ListMyOrganizations")
	errCh := make(chan error, 1)
	go func() {
		_, err := fx.alice.Memberships.ListMine(ctx)
		errCh <- err
	}()
	<-started

	fx.alice.Memberships.Close()
	close(release)

	if err := <-errCh; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	counters := fx.alice.MetricsSnapshot().Counters
	if counters[MetricStaleResultDiscarded] != 1 || counters[MetricMembershipResultDiscarded] != 1 {
		t.Fatalf("expected 1 discarded membership result, got %+v", counters)
	}
	if counters[MetricAuthResultDiscarded] != 0 {
		t.Fatal("discard must be booked to the membership component")
	}
}
