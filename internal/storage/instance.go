package storage

import (
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

var (
	instanceOnce sync.Once
	instanceID   string
)

// InstanceID identifies this process in journal records (hostname-pid-random).
// It is stable for the lifetime of the process.
func InstanceID() string {
	instanceOnce.Do(func() {
		host, _ := os.Hostname()
		instanceID = host + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.NewString()[:8]
	})

	return instanceID
}
