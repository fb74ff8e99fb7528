//go:build !linux

package driver

import "fmt"

func newRawInjector(iface string) (PacketInjector, error) {
	return nil, fmt.Errorf("raw injection only supported on linux")
}
