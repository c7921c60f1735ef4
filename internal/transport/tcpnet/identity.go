package tcpnet

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrInvalidIdentity = errors.New("tcpnet: invalid identity")

// FormatIdentity joins a peer id and its dialable address as "<id>@<host:port>".
func FormatIdentity(id, addr string) string {
	return id + "@" + addr
}

// ParseIdentity splits a tcpnet identity into its id and address.
func ParseIdentity(identity string) (id string, addr string, err error) {
	identity = strings.TrimSpace(identity)
	at := strings.LastIndexByte(identity, '@')
	if at <= 0 || at == len(identity)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}
	id, addr = identity[:at], identity[at+1:]
	if strings.Contains(id, "@") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrInvalidIdentity, identity, err)
	}
	return id, addr, nil
}
