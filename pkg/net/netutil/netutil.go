
package netutil

import (
	"net"
	"strconv"

	"github.com/golang/glog"
	xnetutil "golang.org/x/net/netutil"
)

var (
	localIPMap       map[string]bool = make(map[string]bool)
	localIPv4Address net.IP
)

func init() {
	if addrs, err := net.InterfaceAddrs(); err == nil {

		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				if localIPv4Address == nil {
					if !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
						localIPv4Address = ipnet.IP.To4()
					}
				}
				localIPMap[ipnet.IP.String()] = true
			}
		}
	} else {
		glog.Warningln(err)
	}
	if localIPv4Address == nil {
		localIPv4Address = net.ParseIP("127.0.0.1").To4()
	}
}

func IsLocalAddress(addr string) bool {
	if net.ParseIP(addr) != nil {
		return IsLocalIPAddress(addr)
	}

	if ips, err := net.LookupIP(addr); err == nil {
		for _, ip := range ips {
			if IsLocalIPAddress(ip.String()) {
				return true
			}
		}
	}
	return false
}

func IsLocalIPAddress(ipAddr string) bool {
	if _, found := localIPMap[ipAddr]; found {
		return true
	}
	return false
}

func GetLocalIPv4Address() net.IP {
	return localIPv4Address
}

// NormalizeAddress turns a bare port number into ":port".
func NormalizeAddress(addr string) string {
	if _, err := strconv.Atoi(addr); err == nil {
		return ":" + addr
	}
	return addr
}

// Listen listens on a TCP address, accepting at most maxConns simultaneous
// connections when maxConns is positive.
func Listen(addr string, maxConns int) (net.Listener, error) {
	ln, err := net.Listen("tcp", NormalizeAddress(addr))
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		ln = xnetutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}
