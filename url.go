package smbcore

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

const defaultPort = 445

// ParseURL decodes a connection URL into an Endpoint and selects a security
// mode, per the grammar:
//
//	smb://[domain;][user[:password]@]host[:port]/share[/path][?sec=ntlmssp|krb5cc]
//
// The share/path portion is returned separately as the path relative to the
// share root (joined by callers via the Path Resolver); ParseURL itself only
// produces the Endpoint plus that relative path.
//
// Recognized query keys: sec=ntlmssp|krb5cc (absent means anonymous unless
// credentials are present, in which case ntlmssp is assumed). For sec=krb5cc,
// SMB_USER, SMB_PASSWORD and SMB_DOMAIN are read from the environment and a
// Kerberos ticket cache path is resolved (see resolveCCachePath in
// kerberos.go). ParseURL fails with KindInvalidURL on an unparseable URL and
// KindInvalidAuth if the requested mode lacks required inputs.
func ParseURL(raw string) (Endpoint, PathRef, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, PathRef{}, invalidURLError(raw, err)
	}
	if u.Scheme != "smb" {
		return Endpoint{}, PathRef{}, invalidURLError(raw, errKindString("scheme must be \"smb\", got %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return Endpoint{}, PathRef{}, invalidURLError(raw, errKindString("missing host"))
	}

	ep := Endpoint{
		Server: u.Hostname(),
		Port:   defaultPort,
		Auth:   AuthAnonymous,
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, PathRef{}, invalidURLError(raw, errKindString("invalid port %q", p))
		}
		ep.Port = port
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return Endpoint{}, PathRef{}, invalidURLError(raw, errKindString("missing share name"))
	}
	share, err := url.PathUnescape(segments[0])
	if err != nil {
		return Endpoint{}, PathRef{}, invalidURLError(raw, err)
	}
	ep.Share = share

	rel := PathRef{}
	for _, seg := range segments[1:] {
		if seg == "" {
			continue
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return Endpoint{}, PathRef{}, invalidURLError(raw, err)
		}
		rel, err = rel.Join(decoded)
		if err != nil {
			return Endpoint{}, PathRef{}, invalidURLError(raw, err)
		}
	}

	if u.User != nil {
		ep.Creds.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			ep.Creds.Password = pw
		}
		ep.Auth = AuthNTLM
	}
	if semi := strings.Index(ep.Creds.Username, ";"); semi >= 0 {
		ep.Creds.Domain, ep.Creds.Username = ep.Creds.Username[:semi], ep.Creds.Username[semi+1:]
	}

	switch sec := u.Query().Get("sec"); sec {
	case "":
		// keep whatever was inferred from the presence of credentials
	case "ntlmssp":
		ep.Auth = AuthNTLM
	case "krb5cc":
		ep.Auth = AuthKerberos
	default:
		return Endpoint{}, PathRef{}, invalidURLError(raw, errKindString("unrecognized sec=%q", sec))
	}

	if ep.Auth == AuthKerberos {
		ep.Creds.Username = os.Getenv("SMB_USER")
		ep.Creds.Password = os.Getenv("SMB_PASSWORD")
		ep.Creds.Domain = os.Getenv("SMB_DOMAIN")
		ccache, err := resolveCCachePath(os.Getenv("KRB5CCNAME"))
		if err != nil {
			return Endpoint{}, PathRef{}, invalidAuthError("krb5cc: " + err.Error())
		}
		ep.Creds.CCachePath = ccache
	}

	if ep.Auth == AuthNTLM && ep.Creds.Username == "" {
		return Endpoint{}, PathRef{}, invalidAuthError("ntlmssp requires a username")
	}

	return ep, rel, nil
}

func errKindString(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
