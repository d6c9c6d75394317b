package gatewaytest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/goTenant/gateway"
	"github.com/MrEthical07/goTenant/permission"
)

type detail struct {
	Detail string       `json:"detail"`
	Code   gateway.Code `json:"code,omitempty"`
}

type authResponse struct {
	Token string           `json:"token"`
	User  *gateway.Profile `json:"user"`
}

// Handler serves gw over the JSON REST routes HTTPGateway speaks, so the
// HTTP client can be exercised end to end against an in-process backend.
func Handler(gw gateway.Gateway) http.Handler {
	mux := http.NewServeMux()
	s := &server{gw: gw}

	mux.HandleFunc("GET /check-email", s.checkEmail)
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("POST /signup", s.signup)
	mux.HandleFunc("POST /verify-email", s.verifyEmail)
	mux.HandleFunc("POST /resend-verification", s.resend)
	mux.HandleFunc("POST /forgot-password", s.forgotPassword)
	mux.HandleFunc("POST /reset-password", s.resetPassword)
	mux.HandleFunc("POST /auth/{provider}", s.federated)
	mux.HandleFunc("POST /link/{provider}", s.link)
	mux.HandleFunc("POST /unlink/{provider}", s.unlink)
	mux.HandleFunc("GET /me", s.me)
	mux.HandleFunc("POST /update-info", s.updateInfo)
	mux.HandleFunc("POST /change-password", s.changePassword)

	mux.HandleFunc("GET /organizations/me", s.myOrganizations)
	mux.HandleFunc("GET /organizations/me/invites", s.incomingInvites)
	mux.HandleFunc("POST /organizations/invites/accept", s.acceptInvite)
	mux.HandleFunc("GET /organizations/{$}", s.listOrganizations)
	mux.HandleFunc("POST /organizations/{$}", s.createOrganization)
	mux.HandleFunc("POST /organizations/{id}/join", s.join)
	mux.HandleFunc("POST /organizations/{id}/leave", s.leave)
	mux.HandleFunc("GET /organizations/{id}/members", s.members)
	mux.HandleFunc("PATCH /organizations/{id}/members/{uid}", s.setRoles)
	mux.HandleFunc("DELETE /organizations/{id}/members/{uid}", s.removeMember)
	mux.HandleFunc("GET /organizations/{id}/invites", s.listInvites)
	mux.HandleFunc("POST /organizations/{id}/invites", s.createInvite)
	mux.HandleFunc("DELETE /organizations/{id}/invites/{iid}", s.revokeInvite)

	return withBearer(mux)
}

func withBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			r = r.WithContext(gateway.WithBearer(r.Context(), strings.TrimPrefix(h, "Bearer ")))
		}
		next.ServeHTTP(w, r)
	})
}

type server struct {
	gw gateway.Gateway
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		writeJSON(w, http.StatusInternalServerError, detail{Detail: err.Error()})
		return
	}
	status := gwErr.Status
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, detail{Detail: gwErr.Message, Code: gwErr.Code})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, detail{Detail: "invalid request body", Code: gateway.CodeValidation})
		return false
	}
	return true
}

func reply(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func done(w http.ResponseWriter, msg string, err error) {
	reply(w, detail{Detail: msg}, err)
}

func authReply(w http.ResponseWriter, s gateway.Session, err error) {
	reply(w, authResponse{Token: s.Token, User: s.Profile}, err)
}

func (s *server) checkEmail(w http.ResponseWriter, r *http.Request) {
	st, err := s.gw.CheckEmail(r.Context(), r.URL.Query().Get("email"))
	reply(w, st, err)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var body struct{ Email, Password string }
	if !decode(w, r, &body) {
		return
	}
	sess, err := s.gw.Login(r.Context(), body.Email, body.Password)
	authReply(w, sess, err)
}

func (s *server) signup(w http.ResponseWriter, r *http.Request) {
	var req gateway.SignupRequest
	if !decode(w, r, &req) {
		return
	}
	done(w, "Verification code sent", s.gw.Signup(r.Context(), req))
}

func (s *server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct{ Email, Code string }
	if !decode(w, r, &body) {
		return
	}
	sess, err := s.gw.VerifyEmail(r.Context(), body.Email, body.Code)
	if err != nil || sess == nil {
		done(w, "Email verified", err)
		return
	}
	authReply(w, *sess, nil)
}

func (s *server) resend(w http.ResponseWriter, r *http.Request) {
	var body struct{ Email string }
	if !decode(w, r, &body) {
		return
	}
	done(w, "Verification code sent", s.gw.ResendVerificationCode(r.Context(), body.Email))
}

func (s *server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct{ Email string }
	if !decode(w, r, &body) {
		return
	}
	done(w, "Reset link sent", s.gw.SendPasswordResetEmail(r.Context(), body.Email))
}

func (s *server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &body) {
		return
	}
	done(w, "Password reset", s.gw.ResetPassword(r.Context(), body.Code, body.NewPassword))
}

func (s *server) federated(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
		Code  string `json:"code"`
	}
	if !decode(w, r, &body) {
		return
	}
	credential := body.Token
	if credential == "" {
		credential = body.Code
	}
	sess, err := s.gw.FederatedAuth(r.Context(), gateway.Provider(r.PathValue("provider")), credential)
	authReply(w, sess, err)
}

func (s *server) link(w http.ResponseWriter, r *http.Request) {
	var body struct{ Credential string }
	if !decode(w, r, &body) {
		return
	}
	done(w, "Account linked", s.gw.LinkAccount(r.Context(), gateway.Provider(r.PathValue("provider")), body.Credential))
}

func (s *server) unlink(w http.ResponseWriter, r *http.Request) {
	var body struct{ Email string }
	if !decode(w, r, &body) {
		return
	}
	done(w, "Account unlinked", s.gw.UnlinkAccount(r.Context(), gateway.Provider(r.PathValue("provider")), body.Email))
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	p, err := s.gw.Me(r.Context())
	reply(w, p, err)
}

func (s *server) updateInfo(w http.ResponseWriter, r *http.Request) {
	var upd gateway.ProfileUpdate
	if !decode(w, r, &upd) {
		return
	}
	p, err := s.gw.UpdateProfile(r.Context(), upd)
	reply(w, struct {
		Detail string          `json:"detail"`
		User   gateway.Profile `json:"user"`
	}{"User info updated successfully", p}, err)
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Old string `json:"old_password"`
		New string `json:"new_password"`
	}
	if !decode(w, r, &body) {
		return
	}
	done(w, "Password changed successfully", s.gw.ChangePassword(r.Context(), body.Old, body.New))
}

func (s *server) myOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.gw.ListMyOrganizations(r.Context())
	reply(w, orgs, err)
}

func (s *server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.gw.ListJoinableOrganizations(r.Context())
	reply(w, orgs, err)
}

func (s *server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var body struct{ Name string }
	if !decode(w, r, &body) {
		return
	}
	o, err := s.gw.CreateOrganization(r.Context(), body.Name)
	reply(w, o, err)
}

func orgID(r *http.Request) gateway.ID { return gateway.ID(r.PathValue("id")) }

func (s *server) join(w http.ResponseWriter, r *http.Request) {
	_, err := s.gw.JoinOrganization(r.Context(), orgID(r))
	done(w, "Joined organization", err)
}

func (s *server) leave(w http.ResponseWriter, r *http.Request) {
	done(w, "Left organization", s.gw.LeaveOrganization(r.Context(), orgID(r)))
}

func (s *server) members(w http.ResponseWriter, r *http.Request) {
	m, err := s.gw.Members(r.Context(), orgID(r))
	reply(w, m, err)
}

func (s *server) setRoles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Roles permission.RoleSet `json:"roles"`
	}
	if !decode(w, r, &body) {
		return
	}
	_, err := s.gw.SetMemberRoles(r.Context(), orgID(r), gateway.ID(r.PathValue("uid")), body.Roles)
	done(w, "Roles updated", err)
}

func (s *server) removeMember(w http.ResponseWriter, r *http.Request) {
	done(w, "Member removed", s.gw.RemoveMember(r.Context(), orgID(r), gateway.ID(r.PathValue("uid"))))
}

func (s *server) listInvites(w http.ResponseWriter, r *http.Request) {
	inv, err := s.gw.ListInvites(r.Context(), orgID(r))
	reply(w, inv, err)
}

func (s *server) createInvite(w http.ResponseWriter, r *http.Request) {
	var req gateway.InviteRequest
	if !decode(w, r, &req) {
		return
	}
	inv, err := s.gw.CreateInvite(r.Context(), orgID(r), req)
	reply(w, inv, err)
}

func (s *server) revokeInvite(w http.ResponseWriter, r *http.Request) {
	done(w, "Invite revoked", s.gw.RevokeInvite(r.Context(), orgID(r), gateway.ID(r.PathValue("iid"))))
}

func (s *server) incomingInvites(w http.ResponseWriter, r *http.Request) {
	inv, err := s.gw.ListIncomingInvites(r.Context())
	reply(w, inv, err)
}

func (s *server) acceptInvite(w http.ResponseWriter, r *http.Request) {
	var body struct{ Code string }
	if !decode(w, r, &body) {
		return
	}
	m, err := s.gw.RedeemInvite(r.Context(), body.Code)
	reply(w, struct {
		Detail string `json:"detail"`
		gateway.Membership
	}{"Joined organization", m}, err)
}
