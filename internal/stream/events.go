package stream

import (
	c "loopio/internal"

	"net/netip"

	"golang.org/x/sys/unix"
)

// HandleType tags a resource descriptor transferred over an ipc pipe
// alongside read data.
type HandleType uint8

const (
	HandleNone HandleType = iota
	HandleTCP
	HandlePipe
)

// Addr is peer address metadata on connection-bearing events, tagged by one
// of the two fixed family discriminants.
type Addr struct {
	Family	string
	IP		string
	Port	int
}

func AddrFrom(sa unix.Sockaddr) *Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &Addr{
			Family: c.FAMILY_IPV4,
			IP: 	netip.AddrFrom4(v.Addr).String(),
			Port: 	v.Port,
		}
	case *unix.SockaddrInet6:
		return &Addr{
			Family: c.FAMILY_IPV6,
			IP: 	netip.AddrFrom16(v.Addr).String(),
			Port: 	v.Port,
		}
	}
	return nil
}

// Event is one typed stream notification. ReadData, Read2Data and
// IncomingConnection recur for the lifetime of the stream; the *Completed
// events are one-shot per submitted operation and return the submitter's
// Context value unchanged. Closed is terminal.
type Event interface{ event() }

type ReadData struct {
	Code	unix.Errno	// 0 on success
	Data	[]byte
}

type Read2Data struct {
	Code	unix.Errno
	Data	[]byte
	Pending	HandleType
}

type WriteCompleted struct {
	Code	unix.Errno
	Context	any
}

type ShutdownCompleted struct {
	Code	unix.Errno
	Context	any
}

type ConnectCompleted struct {
	Code	unix.Errno
	Context	any
}

type IncomingConnection struct {
	Code	unix.Errno
	Peer	*Addr
}

type Closed struct{}

func (ReadData) event()           {}
func (Read2Data) event()          {}
func (WriteCompleted) event()     {}
func (ShutdownCompleted) event()  {}
func (ConnectCompleted) event()   {}
func (IncomingConnection) event() {}
func (Closed) event()             {}
