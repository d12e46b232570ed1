package printer

import (
	"context"
	"net"
	"time"

	"github.com/grandcat/zeroconf"

	logInternal "github.com/philpem/printer-driver-ptouch/log"
)

// pdlService is the mDNS service of network printers accepting a raw
// command stream on port 9100.
const pdlService = "_pdl-datastream._tcp"

// Endpoint is one discovered network printer.
type Endpoint struct {
	Name string
	Host string
	Addr net.IP
	Port int
}

// Discover browses mDNS for raw-port network printers until the
// timeout elapses and returns every endpoint found.
func Discover(ctx context.Context, timeout time.Duration) ([]Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var found []Endpoint
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			ep := Endpoint{
				Name: entry.Instance,
				Host: entry.HostName,
				Port: entry.Port,
			}
			if len(entry.AddrIPv4) > 0 {
				ep.Addr = entry.AddrIPv4[0]
			} else if len(entry.AddrIPv6) > 0 {
				ep.Addr = entry.AddrIPv6[0]
			}
			logInternal.Debugf("discovered %q at %s:%d", ep.Name, ep.Addr, ep.Port)
			found = append(found, ep)
		}
	}()

	if err := resolver.Browse(ctx, pdlService, "local.", entries); err != nil {
		return nil, err
	}
	<-ctx.Done()
	<-done
	return found, nil
}

// NewNetworkPrinter connects to a discovered endpoint's raw port.
func NewNetworkPrinter(ep Endpoint) (*Printer, error) {
	addr := net.JoinHostPort(ep.Addr.String(), "9100")
	if ep.Port != 0 {
		addr = (&net.TCPAddr{IP: ep.Addr, Port: ep.Port}).String()
	}
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return NewPrinter(conn)
}
