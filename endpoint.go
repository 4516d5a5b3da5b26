package smbcore

import "fmt"

// AuthMode selects how an Endpoint authenticates against the server.
type AuthMode int

const (
	// AuthAnonymous is guest/anonymous access: no credentials presented.
	AuthAnonymous AuthMode = iota
	// AuthNTLM authenticates via NTLMSSP username/password.
	AuthNTLM
	// AuthKerberos authenticates via a Kerberos ticket cache.
	AuthKerberos
)

func (m AuthMode) String() string {
	switch m {
	case AuthNTLM:
		return "ntlmssp"
	case AuthKerberos:
		return "krb5cc"
	default:
		return "anonymous"
	}
}

// Credentials bundles the inputs a given AuthMode needs. Only the fields
// relevant to the Endpoint's AuthMode are populated.
type Credentials struct {
	Username   string
	Password   string
	Domain     string
	CCachePath string // resolved Kerberos credential cache path (AuthKerberos)
}

// Endpoint is the immutable identity of a connection target: server, port,
// share, auth mode, and credential bundle. Two Endpoints with identical
// fields are the same Endpoint — Endpoint is a plain comparable struct so it
// can be used directly as a map key by the Context Pool.
type Endpoint struct {
	Server string
	Port   int
	Share  string
	Auth   AuthMode
	Creds  Credentials
}

// String renders a human-readable, credential-free identifier, suitable for
// logging and for the ConnectFailed error message.
func (e Endpoint) String() string {
	return fmt.Sprintf("smb://%s:%d/%s", e.Server, e.Port, e.Share)
}

// addr is the TCP dial target for this Endpoint.
func (e Endpoint) addr() string {
	return fmt.Sprintf("%s:%d", e.Server, e.Port)
}
