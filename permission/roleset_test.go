package permission

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewRoleSetRejectsDuplicates(t *testing.T) {
	if _, err := NewRoleSet(RoleMember, "ops", RoleMember); !errors.Is(err, ErrRoleDuplicate) {
		t.Fatalf("expected ErrRoleDuplicate, got %v", err)
	}
}

func TestNewRoleSetRejectsInvalidTags(t *testing.T) {
	cases := []string{"", " admin", "ops ", string(make([]byte, maxTagLength+1))}
	for _, tag := range cases {
		if _, err := NewRoleSet(tag); !errors.Is(err, ErrRoleInvalid) {
			t.Fatalf("tag %q: expected ErrRoleInvalid, got %v", tag, err)
		}
	}
}

func TestParseRoleSetIsLenient(t *testing.T) {
	rs := ParseRoleSet([]string{"admin", " admin", "", "member", "ops"})
	want := []string{"admin", "member", "ops"}
	got := rs.Tags()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRoleSetAddAndRemove(t *testing.T) {
	rs := MustRoleSet(RoleMember)

	next, err := rs.Add("custom")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if rs.Has("custom") {
		t.Fatal("Add must not mutate the receiver")
	}
	if _, err := next.Add("custom"); !errors.Is(err, ErrRoleDuplicate) {
		t.Fatalf("expected ErrRoleDuplicate, got %v", err)
	}

	removed := next.Remove(RoleMember)
	if removed.Has(RoleMember) || !removed.Has("custom") {
		t.Fatalf("unexpected set after Remove: %v", removed)
	}
	if got := removed.Remove("absent"); !got.Equal(removed) {
		t.Fatal("removing an absent tag should be a no-op")
	}
}

func TestRoleSetEqualIgnoresOrder(t *testing.T) {
	a := MustRoleSet(RoleMember, RoleAdmin, "custom")
	b := MustRoleSet("custom", RoleAdmin, RoleMember)
	if !a.Equal(b) {
		t.Fatal("expected sets to be equal")
	}
	if a.Equal(MustRoleSet(RoleMember, RoleAdmin)) {
		t.Fatal("expected sets of different size to differ")
	}
}

func TestRoleSetJSON(t *testing.T) {
	data, err := json.Marshal(MustRoleSet(RoleAdmin, "custom"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `["admin","custom"]` {
		t.Fatalf("unexpected json %s", data)
	}

	var empty RoleSet
	data, _ = json.Marshal(empty)
	if string(data) != "[]" {
		t.Fatalf("expected empty array, got %s", data)
	}

	var rs RoleSet
	if err := json.Unmarshal([]byte(`["member","member","ops"]`), &rs); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if rs.Len() != 2 {
		t.Fatalf("expected duplicates collapsed, got %v", rs)
	}
}

func TestCustomExcludesReserved(t *testing.T) {
	rs := MustRoleSet(RoleMember, "ops", RoleAdmin, "billing")
	got := rs.Custom()
	if len(got) != 2 || got[0] != "ops" || got[1] != "billing" {
		t.Fatalf("unexpected custom tags %v", got)
	}
}
