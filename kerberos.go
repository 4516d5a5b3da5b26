package smbcore

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
)

// kerberosFactory caches gokrb5 clients by resolved ticket-cache path,
// refreshing whenever the cache file's mtime moves (§4.A, sec=krb5cc).
type kerberosFactory struct {
	clientCache  sync.Map // map[string]*client.Client
	errCache     sync.Map // map[string]error
	modTimeCache sync.Map // map[string]time.Time

	loadCCache func(string) (*credentials.CCache, error)
	newClient  func(*credentials.CCache, *config.Config, ...func(*client.Settings)) (*client.Client, error)
	loadConfig func() (*config.Config, error)
}

var defaultKerberosFactory = &kerberosFactory{
	loadCCache: credentials.LoadCCache,
	newClient:  client.NewFromCCache,
	loadConfig: defaultLoadKerberosConfig,
}

// getClient returns a cached Kerberos client for ccachePath or builds one,
// invalidating the cache when the underlying ticket file has changed.
func (kf *kerberosFactory) getClient(ccachePath string) (*client.Client, error) {
	resolved, err := resolveCCachePath(ccachePath)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(resolved)
	if err != nil {
		kf.errCache.Store(resolved, err)
		return nil, err
	}
	mtime := stat.ModTime()

	if prev, ok := kf.modTimeCache.Load(resolved); ok {
		if prevTime, ok := prev.(time.Time); ok && prevTime.Equal(mtime) {
			if errVal, ok := kf.errCache.Load(resolved); ok {
				return nil, errVal.(error)
			}
			if clVal, ok := kf.clientCache.Load(resolved); ok {
				return clVal.(*client.Client), nil
			}
		}
	}

	cfg, err := kf.loadConfig()
	if err != nil {
		kf.errCache.Store(resolved, err)
		return nil, err
	}
	ccache, err := kf.loadCCache(resolved)
	if err != nil {
		kf.errCache.Store(resolved, err)
		return nil, err
	}
	cl, err := kf.newClient(ccache, cfg)
	if err != nil {
		kf.errCache.Store(resolved, err)
		return nil, err
	}

	kf.clientCache.Store(resolved, cl)
	kf.errCache.Delete(resolved)
	kf.modTimeCache.Store(resolved, mtime)
	return cl, nil
}

// resolveCCachePath resolves a KRB5CCNAME-style value to a concrete file
// path: a bare path is used as-is, "FILE:path" strips the prefix, "DIR:path"
// reads the directory's "primary" pointer file, and an empty value falls
// back to the per-uid default /tmp/krb5cc_<uid>.
func resolveCCachePath(ccachePath string) (string, error) {
	switch {
	case strings.Contains(ccachePath, ":"):
		parts := strings.SplitN(ccachePath, ":", 2)
		prefix, path := parts[0], parts[1]
		switch prefix {
		case "FILE":
			return path, nil
		case "DIR":
			primary, err := os.ReadFile(filepath.Join(path, "primary"))
			if err != nil {
				return "", err
			}
			return filepath.Join(path, strings.TrimSpace(string(primary))), nil
		default:
			return "", fmt.Errorf("unsupported KRB5CCNAME prefix %q", prefix)
		}
	case ccachePath == "":
		u, err := user.Current()
		if err != nil {
			return "", err
		}
		return "/tmp/krb5cc_" + u.Uid, nil
	default:
		return ccachePath, nil
	}
}

// defaultLoadKerberosConfig loads krb5.conf from KRB5_CONFIG or the system
// default location.
func defaultLoadKerberosConfig() (*config.Config, error) {
	cfgPath := os.Getenv("KRB5_CONFIG")
	if cfgPath == "" {
		cfgPath = "/etc/krb5.conf"
	}
	return config.Load(cfgPath)
}
