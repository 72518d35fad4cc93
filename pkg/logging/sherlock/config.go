package sherlock

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

type Config struct {
	Enabled bool
	// seconds between two reports
	Resolution uint32
	// prefix of every metric name
	Profile   string
	AuthToken string

	DatapointEndpoint   string
	EventEndpoint       string
	MainWriteQueueSize  uint32
	RetryWriteQueueSize uint32
	RetryCount          uint32
	RmCount             uint32
	MaxBackoff          time.Duration
	Timeout             time.Duration
}

func (c *Config) Validate() error {
	if c.Enabled && len(c.DatapointEndpoint) == 0 {
		c.Enabled = false
		return fmt.Errorf("sherlock: DatapointEndpoint is required")
	}
	return nil
}

func (c *Config) Default() {
	if c.Resolution == 0 {
		c.Resolution = 60
	}
	if c.MainWriteQueueSize == 0 {
		c.MainWriteQueueSize = 20000
	}
	if c.RetryWriteQueueSize == 0 {
		c.RetryWriteQueueSize = 20000
	}
	if c.RetryCount == 0 {
		c.RetryCount = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 1 * time.Second
	}
	if c.RmCount == 0 {
		c.RmCount = 1000
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 1 * time.Second
	}
}

func (c *Config) Dump() {
	glog.Infof("Sherlock Enabled: %v", c.Enabled)
	glog.Infof("Sherlock Profile: %s", c.Profile)
	glog.Infof("Sherlock Resolution: %v", c.Resolution)
	glog.Infof("Sherlock DatapointEndpoint: %s", c.DatapointEndpoint)
}
