package models

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRequestNumber renders BR-<base36 epoch millis>-<5 random base36 chars>, uppercased.
func NewRequestNumber(now time.Time) string {
	var suffix [5]byte
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	return strings.ToUpper("BR-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + string(suffix[:]))
}
