package storage

import (
	"os"
	"strconv"

	"github.com/google/uuid"
)

// GenerateInstanceID returns an identifier for this process (hostname+pid+random).
// Job claims are locked by it so records left behind by a dead process can be told apart.
func GenerateInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}

	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.NewString()[:8]
}
