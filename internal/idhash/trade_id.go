package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputePositionID computes a deterministic position id using SHA256.
// Formula: SHA256(portfolio|symbol|entry_time|seq)
// Returns hex-encoded hash (64 characters).
func ComputePositionID(portfolio, symbol string, entryTime int64, seq int) string {
	data := fmt.Sprintf("%s|%s|%d|%d", portfolio, symbol, entryTime, seq)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeOrderID derives the id of the order closing positionID.
// Formula: SHA256(position_id|order)
func ComputeOrderID(positionID string) string {
	hash := sha256.Sum256([]byte(positionID + "|order"))
	return hex.EncodeToString(hash[:])
}

// ComputeRunID computes a deterministic id for one parameterized run.
// Formula: SHA256(strategy|param_1|...|param_n)
// Params are expected in a caller-defined stable order.
func ComputeRunID(strategy string, params ...string) string {
	data := strategy
	if len(params) > 0 {
		data += "|" + strings.Join(params, "|")
	}

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
