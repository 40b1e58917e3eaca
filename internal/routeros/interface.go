package routeros

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazz-dev/pingproxy/internal/probe"
)

var linkUpLayouts = []string{
	"2006-01-02 15:04:05",
	"Jan/02/2006 15:04:05",
}

// connectionInfo looks up the PPPoE server interface of user. It tries the
// dynamic "<pppoe-user>" name first and then the bare "pppoe-user" name.
// A nil info with a nil error means no interface matched.
func (c *Client) connectionInfo(sess Session, user string) (*probe.ConnectionInfo, error) {
	name := cleanPPPUser(user)

	for _, candidate := range []string{"<pppoe-" + name + ">", "pppoe-" + name} {
		ifaces, err := sess.Run("/interface/print", "?name="+candidate)
		if err != nil {
			return nil, fmt.Errorf("interface print %q: %w", candidate, err)
		}
		if len(ifaces) > 0 {
			return c.toConnectionInfo(ifaces[0]), nil
		}
	}
	return nil, nil
}

func cleanPPPUser(user string) string {
	user = strings.TrimPrefix(user, "<")
	user = strings.TrimPrefix(user, "pppoe-")
	return strings.TrimSuffix(user, ">")
}

func (c *Client) toConnectionInfo(iface map[string]string) *probe.ConnectionInfo {
	info := &probe.ConnectionInfo{
		LinkDowns: parseCounter(iface["link-downs"]),
		RxBytes:   parseCounter(iface["rx-byte"]),
		TxBytes:   parseCounter(iface["tx-byte"]),
		Running:   iface["running"] == "true",
		Disabled:  iface["disabled"] == "true",
	}

	if up := iface["last-link-up-time"]; up != "" {
		info.LastLinkUpTime = &up
		if since, ok := parseLinkUp(up); ok {
			uptime := formatUptime(c.now().Sub(since))
			info.Uptime = &uptime
		}
	}
	return info
}

func parseCounter(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseLinkUp reads a router timestamp in the router's local time.
func parseLinkUp(s string) (time.Time, bool) {
	for _, layout := range linkUpLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	mins := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, mins)
}
