package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// table is anything a command prints. The value itself is encoded for
// json and yaml output; Header and Rows drive the table layout.
type table interface {
	Header() []string
	Rows() [][]string
}

type printer struct {
	format string
	w      io.Writer
}

func newPrinter(format string, w io.Writer) (*printer, error) {
	switch format {
	case "table", "json", "yaml":
		return &printer{format: format, w: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s (supported: table, json, yaml)", format)
	}
}

func (p *printer) print(v table) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	if h := v.Header(); len(h) > 0 {
		fmt.Fprintln(tw, strings.Join(h, "\t"))
	}
	for _, row := range v.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// message is a single line of feedback, such as "Signed in".
type message struct {
	Message string `json:"message" yaml:"message"`
}

func (m message) Header() []string { return nil }
func (m message) Rows() [][]string { return [][]string{{m.Message}} }

type profileView struct {
	ID       string   `json:"id" yaml:"id"`
	Email    string   `json:"email" yaml:"email"`
	Username string   `json:"username" yaml:"username"`
	FullName string   `json:"full_name" yaml:"full_name"`
	Provider string   `json:"provider" yaml:"provider"`
	Linked   []string `json:"linked,omitempty" yaml:"linked,omitempty"`
}

func (p profileView) Header() []string { return []string{"FIELD", "VALUE"} }

func (p profileView) Rows() [][]string {
	return [][]string{
		{"id", p.ID},
		{"email", p.Email},
		{"username", p.Username},
		{"name", p.FullName},
		{"provider", p.Provider},
		{"linked", dash(strings.Join(p.Linked, ", "))},
	}
}

type orgRow struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Members int      `json:"members" yaml:"members"`
	Roles   []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

type orgRows []orgRow

func (o orgRows) Header() []string { return []string{"ID", "NAME", "MEMBERS", "ROLES"} }

func (o orgRows) Rows() [][]string {
	out := make([][]string, 0, len(o))
	for _, r := range o {
		out = append(out, []string{r.ID, r.Name, fmt.Sprint(r.Members), dash(strings.Join(r.Roles, ","))})
	}
	return out
}

type memberRow struct {
	UserID   string   `json:"user_id" yaml:"user_id"`
	Username string   `json:"username" yaml:"username"`
	FullName string   `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Roles    []string `json:"roles" yaml:"roles"`
	CanEdit  bool     `json:"can_edit_roles" yaml:"can_edit_roles"`
	CanKick  bool     `json:"can_remove" yaml:"can_remove"`
}

type memberRows []memberRow

func (m memberRows) Header() []string {
	return []string{"USER ID", "USERNAME", "NAME", "ROLES", "EDIT", "REMOVE"}
}

func (m memberRows) Rows() [][]string {
	out := make([][]string, 0, len(m))
	for _, r := range m {
		out = append(out, []string{
			r.UserID, r.Username, dash(r.FullName), strings.Join(r.Roles, ","), yesNo(r.CanEdit), yesNo(r.CanKick),
		})
	}
	return out
}

type roleView struct {
	UserID string   `json:"user_id" yaml:"user_id"`
	Roles  []string `json:"roles" yaml:"roles"`
	Known  []string `json:"known_tags,omitempty" yaml:"known_tags,omitempty"`
}

func (r roleView) Header() []string { return []string{"USER ID", "ROLES", "KNOWN TAGS"} }

func (r roleView) Rows() [][]string {
	return [][]string{{r.UserID, strings.Join(r.Roles, ","), dash(strings.Join(r.Known, ","))}}
}

type inviteRow struct {
	ID      string `json:"id" yaml:"id"`
	OrgID   string `json:"org_id" yaml:"org_id"`
	Code    string `json:"code" yaml:"code"`
	Target  string `json:"target,omitempty" yaml:"target,omitempty"`
	Uses    int    `json:"uses" yaml:"uses"`
	MaxUses int    `json:"max_uses" yaml:"max_uses"`
	Expires string `json:"expires" yaml:"expires"`
}

type inviteRows []inviteRow

func (v inviteRows) Header() []string {
	return []string{"ID", "ORG", "CODE", "TARGET", "USES", "EXPIRES"}
}

func (v inviteRows) Rows() [][]string {
	out := make([][]string, 0, len(v))
	for _, r := range v {
		target := r.Target
		if target == "" {
			target = "anyone"
		}
		out = append(out, []string{r.ID, r.OrgID, r.Code, target, fmt.Sprintf("%d/%d", r.Uses, r.MaxUses), r.Expires})
	}
	return out
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
