// Package probe turns raw router ping replies into a single status record.
package probe

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize summarizes records into a Result. Packet loss is measured against
// sent, the number of probes requested, not the number of replies received.
func Normalize(records []Record, sent int, target string) Result {
	result := Result{TargetAddress: target}

	if len(records) == 0 {
		result.Status = StatusError
		result.Message = "no results obtained"
		return result
	}

	received := 0
	total := 0
	for _, r := range records {
		if !r.Succeeded {
			continue
		}
		received++
		total += r.RTTMillis
	}

	result.Success = true

	if received == 0 {
		loss := 100.0
		result.Status = StatusOffline
		result.PacketLossPercent = &loss
		result.Message = fmt.Sprintf("%d packets sent, 0 received (100%% loss)", sent)
		return result
	}

	loss := 100 * float64(sent-received) / float64(sent)
	latency := int(math.Round(float64(total) / float64(received)))
	result.Status = StatusOnline
	result.PacketLossPercent = &loss
	result.LatencyMillis = &latency
	result.Message = fmt.Sprintf("%d/%d packets received, latency: %dms", received, sent, latency)
	return result
}

// ParseMillis extracts a millisecond count from a router time value by
// dropping every non-digit character ("12ms" → 12). Values without digits
// yield 0.
func ParseMillis(s string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}
