package audit

import (
	"github.com/mssola/useragent"
)

// NewClientSnapshot builds a ClientSnapshot from raw request metadata,
// parsing the user agent once so downstream consumers get structured
// browser/OS fields.
func NewClientSnapshot(ip, rawUA, requestID string) ClientSnapshot {
	snap := ClientSnapshot{
		IP:        ip,
		UserAgent: rawUA,
		RequestID: requestID,
	}
	if rawUA == "" {
		return snap
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name != "" {
		snap.Browser = name
		if version != "" {
			snap.Browser = name + "/" + version
		}
	}
	snap.OS = ua.OS()
	snap.Mobile = ua.Mobile()
	return snap
}
