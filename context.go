package smbcore

import (
	"context"
	"net"
	"sync"
	"time"

	smb2 "github.com/cloudsoda/go-smb2"
)

// Logger is the minimal logging surface this package accepts; a nil Logger
// means silent operation.
type Logger interface {
	Printf(format string, v ...interface{})
}

// SmbContext (§3, §4.B) is one live mount of one Endpoint's share: a TCP
// connection, an authenticated Session, a mounted Share, and the dedicated
// driver goroutine all SMB2 calls against it are funneled through. It is
// refcounted by the Pool and torn down once idle past the pool's TTL.
type SmbContext struct {
	endpoint Endpoint

	mu       sync.Mutex
	refs     int
	lastUsed time.Time

	netConn net.Conn
	session smbSession
	share   smbShare
	drv     *driver
}

// dialSmbContext opens a new TCP connection, authenticates, and mounts the
// endpoint's share, selecting an Initiator from the endpoint's AuthMode
// (§4.A). On any failure the partially-built connection is torn down before
// returning.
func dialSmbContext(ctx context.Context, ep Endpoint, connTimeout time.Duration, logger Logger) (*SmbContext, error) {
	dialer := &net.Dialer{Timeout: connTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", ep.addr())
	if err != nil {
		if logger != nil {
			logger.Printf("smbcore: dial %s failed: %v", ep.addr(), err)
		}
		return nil, connectFailedError(ep.String(), err)
	}

	d := &smb2.Dialer{}
	switch ep.Auth {
	case AuthNTLM:
		d.Initiator = &smb2.NTLMInitiator{
			User:     ep.Creds.Username,
			Password: ep.Creds.Password,
			Domain:   ep.Creds.Domain,
		}
	case AuthKerberos:
		cl, err := defaultKerberosFactory.getClient(ep.Creds.CCachePath)
		if err != nil {
			nc.Close()
			return nil, invalidAuthError("krb5cc: " + err.Error())
		}
		d.Initiator = &smb2.Krb5Initiator{
			Client:    cl,
			TargetSPN: "cifs/" + ep.Server,
		}
	case AuthAnonymous:
		d.Initiator = &smb2.NTLMInitiator{User: "", Password: ""}
	}

	session, err := d.DialConn(ctx, nc, ep.addr())
	if err != nil {
		nc.Close()
		if logger != nil {
			logger.Printf("smbcore: session setup with %s failed: %v", ep.addr(), err)
		}
		return nil, connectFailedError(ep.String(), err)
	}

	share, err := session.Mount(ep.Share)
	if err != nil {
		session.Logoff()
		nc.Close()
		if logger != nil {
			logger.Printf("smbcore: mount %q on %s failed: %v", ep.Share, ep.addr(), err)
		}
		return nil, connectFailedError(ep.String(), err)
	}

	return &SmbContext{
		endpoint: ep,
		refs:     1,
		lastUsed: time.Now(),
		netConn:  nc,
		session:  session,
		share:    realShare{sh: share},
		drv:      newDriver(),
	}, nil
}

func (c *SmbContext) acquire() {
	c.mu.Lock()
	c.refs++
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

// release decrements the refcount and returns the count remaining.
func (c *SmbContext) release() int {
	c.mu.Lock()
	c.refs--
	c.lastUsed = time.Now()
	n := c.refs
	c.mu.Unlock()
	return n
}

func (c *SmbContext) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

func (c *SmbContext) inUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs > 0
}

// close tears the context down: stops the driver and logs off the session.
// Must only be called once the Pool has removed the context from rotation.
func (c *SmbContext) close() error {
	c.drv.stop()
	if err := c.share.Umount(); err != nil {
		// best effort: still proceed to Logoff/Close
	}
	err := c.session.Logoff()
	if c.netConn != nil {
		if cerr := c.netConn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// echo issues a cheap liveness probe against the session (§4 "Connection
// health probing"), run through the driver like any other call so it can
// never race a call already in flight.
func (c *SmbContext) echo(ctx context.Context) error {
	_, err := c.drv.submit(ctx, func() (any, error) { return nil, c.session.Echo() })
	return err
}

// run submits fn to this context's driver and blocks for the result,
// translating driver-level errors to the package's error taxonomy (§4.D).
func (c *SmbContext) run(ctx context.Context, op, path string, fn func() (any, error)) (any, error) {
	v, err := c.drv.submit(ctx, fn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelledError(op)
		}
		return nil, convertSmbError(op, path, err)
	}
	return v, nil
}
