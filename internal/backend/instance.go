package backend

import (
	"net"
	"strconv"
)

// ServiceInstance is a downstream host and port. It is a snapshot value
// produced by a Resolver.
type ServiceInstance struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address returns the instance as host:port.
func (s ServiceInstance) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// String implements fmt.Stringer.
func (s ServiceInstance) String() string {
	return s.Address()
}

// IsZero reports whether s is the zero instance.
func (s ServiceInstance) IsZero() bool {
	return s.Host == "" && s.Port == 0
}
