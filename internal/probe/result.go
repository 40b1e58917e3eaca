package probe

// Status is the normalized outcome of a ping from a router.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Record is a single probe reply as returned by the router.
// RTTMillis is only meaningful when Succeeded is true.
type Record struct {
	Succeeded bool
	RTTMillis int
}

// ConnectionInfo describes the PPPoE interface of a subscriber, as reported
// by the router that terminates it.
type ConnectionInfo struct {
	LastLinkUpTime *string `json:"lastLinkUpTime"`
	Uptime         *string `json:"uptime"`
	LinkDowns      int64   `json:"linkDowns"`
	RxBytes        int64   `json:"rxBytes"`
	TxBytes        int64   `json:"txBytes"`
	Running        bool    `json:"running"`
	Disabled       bool    `json:"disabled"`
}

// Result is the public response of a ping request.
type Result struct {
	Success           bool            `json:"success"`
	Status            Status          `json:"status"`
	LatencyMillis     *int            `json:"latencyMillis,omitempty"`
	PacketLossPercent *float64        `json:"packetLossPercent,omitempty"`
	TargetAddress     string          `json:"targetAddress"`
	Message           string          `json:"message"`
	ConnectionInfo    *ConnectionInfo `json:"connectionInfo,omitempty"`
}

// Failed returns the result reported when the router could not be reached or
// refused the command.
func Failed(target string, err error) Result {
	return Result{
		Success:       false,
		Status:        StatusError,
		TargetAddress: target,
		Message:       err.Error(),
	}
}
