package transport

import (
	"fmt"
	"time"
)

const DefaultAddress = "localhost:50051"

// Dial returns a Client for the given transport kind ("grpc" or "http").
// maxMessageBytes bounds gRPC messages; zero keeps DefaultMaxMessageBytes.
func Dial(kind, addr string, timeout time.Duration, maxMessageBytes int) (Client, error) {
	if addr == "" {
		addr = DefaultAddress
	}
	switch kind {
	case "", "grpc":
		if maxMessageBytes <= 0 {
			maxMessageBytes = DefaultMaxMessageBytes
		}
		c, err := DialGRPC(addr, MessageLimit(maxMessageBytes))
		if err != nil {
			return nil, err
		}
		return c, nil
	case "http":
		return NewHTTPClient(addr, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", kind)
	}
}
