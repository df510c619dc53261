package mqttsvc

import (
	"fmt"
	"strings"
)

// ConnectionRole controls which directions of traffic a client may use
type ConnectionRole int

const (
	roleUnset ConnectionRole = iota
	// RolePublisher can only publish
	RolePublisher
	// RoleSubscriber can only subscribe and receive
	RoleSubscriber
	// RolePubSub can do both
	RolePubSub
)

var roleNames = map[ConnectionRole]string{
	RolePublisher:  "publisher",
	RoleSubscriber: "subscriber",
	RolePubSub:     "pubsub",
}

func (r ConnectionRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ConnectionRole(%d)", int(r))
}

// Valid reports whether the role is set to a known value
func (r ConnectionRole) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// CanReceive reports whether the role may subscribe to topic filters
func (r ConnectionRole) CanReceive() bool {
	return r == RoleSubscriber || r == RolePubSub
}

// CanPublish reports whether the role may publish messages
func (r ConnectionRole) CanPublish() bool {
	return r == RolePublisher || r == RolePubSub
}

// MarshalText implements encoding.TextMarshaler
func (r ConnectionRole) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, validationErrorf("connection role %d is not set", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so roles can be read
// from configuration files
func (r *ConnectionRole) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for role, n := range roleNames {
		if n == name {
			*r = role
			return nil
		}
	}
	return validationErrorf("unknown connection role %q", string(text))
}

// ClientIdentity identifies a client towards the broker
type ClientIdentity struct {
	ClientID string
	Role     ConnectionRole
}

// Validate checks that the client id is not blank and the role is set
func (id ClientIdentity) Validate() error {
	if strings.TrimSpace(id.ClientID) == "" {
		return validationErrorf("client id must be set")
	}
	if !id.Role.Valid() {
		return validationErrorf("connection role must be set for client %s", id.ClientID)
	}
	return nil
}
