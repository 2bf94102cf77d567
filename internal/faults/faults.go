// Package faults is the error taxonomy every outbound call site classifies
// its outcome through: connection faults, service faults, and everything
// else. Nothing from the sync core is allowed to escape unclassified.
package faults

import (
	"errors"
	"fmt"

	"github.com/loteria-online/client/internal/protocol"
)

// Kind buckets an error for the composition layer.
type Kind int

const (
	// KindConnection is a transport-level fault or close of the duplex
	// channel. Never retried automatically by the core.
	KindConnection Kind = iota
	// KindService is a business-rule rejection carried in a response fault
	// payload. Reported to the user, never propagated past the caller.
	KindService
	// KindUnexpected is anything else. The channel's integrity is not
	// trusted after one of these; callers recreate the transport.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindService:
		return "service"
	default:
		return "unexpected"
	}
}

// ServiceFault is a server-side business rejection with an enumerated code.
type ServiceFault struct {
	Code    string
	Message string
}

func (f *ServiceFault) Error() string {
	return fmt.Sprintf("service fault %s: %s", f.Code, f.Message)
}

// ConnectionFault wraps a transport-level failure of the duplex channel.
type ConnectionFault struct {
	Cause error
}

func (f *ConnectionFault) Error() string {
	return fmt.Sprintf("connection fault: %v", f.Cause)
}

func (f *ConnectionFault) Unwrap() error { return f.Cause }

// FromProtocol lifts a wire fault payload into a ServiceFault.
func FromProtocol(pf *protocol.Fault) *ServiceFault {
	return &ServiceFault{Code: pf.Code, Message: pf.Message}
}

// Connection wraps cause as a ConnectionFault.
func Connection(cause error) *ConnectionFault {
	return &ConnectionFault{Cause: cause}
}

// Classify buckets err into the taxonomy. A nil err panics; call sites only
// classify failures.
func Classify(err error) Kind {
	if err == nil {
		panic("faults: classify nil error")
	}
	var sf *ServiceFault
	if errors.As(err, &sf) {
		return KindService
	}
	var cf *ConnectionFault
	if errors.As(err, &cf) {
		return KindConnection
	}
	return KindUnexpected
}

// AsService extracts a ServiceFault from err's chain.
func AsService(err error) (*ServiceFault, bool) {
	var sf *ServiceFault
	if errors.As(err, &sf) {
		return sf, true
	}
	return nil, false
}

// IsCode reports whether err is a ServiceFault carrying the given code.
func IsCode(err error, code string) bool {
	sf, ok := AsService(err)
	return ok && sf.Code == code
}
