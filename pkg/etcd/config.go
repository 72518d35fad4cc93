package etcd

import (
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"cfbridge/pkg/util"
)

var (
	defaultConfig = Config{
		Config: clientv3.Config{
			DialTimeout: 1000 * time.Millisecond,
		},
		RequestTimeout:     util.Duration{Duration: 1 * time.Second},
		MaxConnectAttempts: 5,
		MaxConnectBackoff:  10,
		EtcdKeyPrefix:      "cfbridge.",
	}
)

// Config is the client configuration. Keys are stored under
// EtcdKeyPrefix followed by the cluster name.
type Config struct {
	clientv3.Config
	RequestTimeout     util.Duration
	MaxConnectAttempts int
	// upper bound of the connect backoff, in seconds
	MaxConnectBackoff int
	EtcdKeyPrefix     string
}

func DefaultConfig() Config {
	return defaultConfig
}

func NewConfig(addrs ...string) (cfg *Config) {
	cfg = &Config{}
	*cfg = defaultConfig
	cfg.Config.Endpoints = append(cfg.Config.Endpoints, addrs...)
	return cfg
}

// Validate fills unset timeouts and limits with the defaults and rejects a
// config without endpoints.
func (c *Config) Validate() error {
	var endpoints []string
	for _, ep := range c.Endpoints {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("etcd: no endpoints")
	}
	c.Endpoints = endpoints
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultConfig.DialTimeout
	}
	if c.RequestTimeout.Duration <= 0 {
		c.RequestTimeout = defaultConfig.RequestTimeout
	}
	if c.MaxConnectAttempts < 1 {
		c.MaxConnectAttempts = 1
	}
	if c.MaxConnectBackoff < 1 {
		c.MaxConnectBackoff = defaultConfig.MaxConnectBackoff
	}
	if c.EtcdKeyPrefix == "" {
		c.EtcdKeyPrefix = defaultConfig.EtcdKeyPrefix
	}
	return nil
}
