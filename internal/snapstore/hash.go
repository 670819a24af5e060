package snapstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// contentHash digests the row's order and fields. encoding/json emits map keys
// in sorted order, so equal rows always hash equally.
func contentHash(row Row) (hash string, fields string, err error) {
	encoded, err := json.Marshal(row.Fields)
	if err != nil {
		return "", "", fmt.Errorf("encode fields of %s: %w", row.Key, err)
	}
	d := xxhash.New()
	_, _ = d.WriteString(strconv.Itoa(row.Order))
	_, _ = d.WriteString("\x00")
	_, _ = d.Write(encoded)
	return strconv.FormatUint(d.Sum64(), 16), string(encoded), nil
}
