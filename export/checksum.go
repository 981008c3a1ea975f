package export

import (
	"fmt"

	"github.com/minio/highwayhash"
)

var checksumKey = []byte("attackmetrics-export-checksum-k1")

// Checksum returns the HighwayHash-64 of data.
func Checksum(data []byte) (uint64, error) {
	hash, err := highwayhash.New64(checksumKey)
	if err != nil {
		return 0, err
	}
	_, err = hash.Write(data)
	return hash.Sum64(), err
}

// FormatChecksum renders a checksum as fixed-width hex.
func FormatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
