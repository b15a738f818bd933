package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "<prefix>_<unix millis hex><random hex>". Ids from the same
// process sort by creation time.
func New(prefix string) string {
	buf := make([]byte, 6)
	stamp := time.Now().UTC().UnixMilli()
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s_%011x", prefix, stamp)
	}
	return fmt.Sprintf("%s_%011x%s", prefix, stamp, hex.EncodeToString(buf))
}
