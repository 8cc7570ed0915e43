package models

import (
	"net"
	"strconv"

	"github.com/google/uuid"
)

// Address identifies a node's HTTP endpoint.
type Address struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// String returns the address in host:port form.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// RegisterResponse tells a registering node where to forward messages.
type RegisterResponse struct {
	NextHost      string `json:"nextHost" yaml:"nextHost"`
	NextPort      int    `json:"nextPort" yaml:"nextPort"`
	Timeout       int    `json:"timeout" yaml:"timeout"` // forward timeout in milliseconds
	GameTimestamp int    `json:"xGameTimestamp" yaml:"xGameTimestamp"`
}

// Next returns the forwarding target carried by the response.
func (r RegisterResponse) Next() Address {
	return Address{Host: r.NextHost, Port: r.NextPort}
}

// RegisteredNode is a chain member as seen by the registry.
type RegisteredNode struct {
	Name                 string           `json:"name,omitempty" yaml:"name,omitempty"`
	Host                 string           `json:"host" yaml:"host"`
	Port                 int              `json:"port" yaml:"port"`
	UUID                 uuid.UUID        `json:"uuid" yaml:"uuid"`
	Salt                 string           `json:"-" yaml:"-"`
	LastRegisterResponse RegisterResponse `json:"lastRegisterResponse" yaml:"lastRegisterResponse"`
}

// Address returns the node's own endpoint.
func (n RegisteredNode) Address() Address {
	return Address{Host: n.Host, Port: n.Port}
}
