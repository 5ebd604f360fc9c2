package util

import (
	"errors"
	"net"
)

// IfaceReady reports whether a named network interface exists, is up and
// carries at least one address. Captures over a dead interface only produce
// noise, so the scheduler skips them.
func IfaceReady(ifaceName string) error {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return err
	}
	if !IsUp(iface) {
		return errors.New("interface is down")
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return errors.New("interface has no addresses")
	}

	return nil
}

func IsUp(nif *net.Interface) bool { return nif.Flags&net.FlagUp != 0 }
