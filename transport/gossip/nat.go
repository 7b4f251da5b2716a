package gossip

import (
	"fmt"
	"net"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/dcps/internetgateway2"
)

// MapPort attempts to open a port on the local NAT gateway for
// lifetime, trying UPnP IGDv2 first and falling back to NAT-PMP; a node
// behind a home router needs one of the two to be reachable by peers
// that only have its public address. Returns the external IP the
// gateway reports, if either protocol reports one.
func MapPort(internalPort int, lifetime time.Duration) (externalIP net.IP, err error) {
	if ip, err := mapUPnP(internalPort, lifetime); err == nil {
		return ip, nil
	}
	if ip, err := mapNATPMP(internalPort, lifetime); err == nil {
		return ip, nil
	}
	return nil, fmt.Errorf("gossip: no UPnP or NAT-PMP gateway responded")
}

func mapUPnP(internalPort int, lifetime time.Duration) (net.IP, error) {
	clients, _, err := internetgateway2.NewWANIPConnection2Clients()
	if err != nil || len(clients) == 0 {
		clients1, _, err1 := internetgateway2.NewWANIPConnection1Clients()
		if err1 != nil || len(clients1) == 0 {
			return nil, fmt.Errorf("gossip: upnp: no WANIPConnection service found")
		}
		return mapUPnP1(clients1[0], internalPort, lifetime)
	}
	client := clients[0]
	if err := client.AddPortMapping(
		"", uint16(internalPort), "UDP", uint16(internalPort), goupnp.LocalIPv4Address(), true,
		"blockkey", uint32(lifetime.Seconds()),
	); err != nil {
		return nil, fmt.Errorf("gossip: upnp: add port mapping: %w", err)
	}
	ipStr, err := client.GetExternalIPAddress()
	if err != nil {
		return nil, nil
	}
	return net.ParseIP(ipStr), nil
}

func mapUPnP1(client *internetgateway2.WANIPConnection1, internalPort int, lifetime time.Duration) (net.IP, error) {
	if err := client.AddPortMapping(
		"", uint16(internalPort), "UDP", uint16(internalPort), goupnp.LocalIPv4Address(), true,
		"blockkey", uint32(lifetime.Seconds()),
	); err != nil {
		return nil, fmt.Errorf("gossip: upnp: add port mapping: %w", err)
	}
	ipStr, err := client.GetExternalIPAddress()
	if err != nil {
		return nil, nil
	}
	return net.ParseIP(ipStr), nil
}

func mapNATPMP(internalPort int, lifetime time.Duration) (net.IP, error) {
	gateway, err := defaultGateway()
	if err != nil {
		return nil, err
	}
	client := natpmp.NewClient(gateway)
	if _, err := client.AddPortMapping("udp", internalPort, internalPort, int(lifetime.Seconds())); err != nil {
		return nil, fmt.Errorf("gossip: nat-pmp: add port mapping: %w", err)
	}
	resp, err := client.GetExternalAddress()
	if err != nil {
		return nil, nil
	}
	return net.IP(resp.ExternalIPAddress[:]), nil
}

func defaultGateway() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.To4() == nil || ipNet.IP.IsLoopback() {
			continue
		}
		gw := ipNet.IP.Mask(ipNet.Mask)
		gw[len(gw)-1] |= 1 // the conventional .1 host on the local subnet
		return gw, nil
	}
	return nil, fmt.Errorf("gossip: nat-pmp: no usable local interface found")
}
