package media

import (
	"strconv"
	"strings"
)

// WebContentsDeviceScheme prefixes tab-capture device ids internally
const WebContentsDeviceScheme = "web-contents-media-stream://"

// AppendWebContentsDeviceScheme prefixes id with the tab-capture scheme
func AppendWebContentsDeviceScheme(id string) string {
	return WebContentsDeviceScheme + id
}

// StripWebContentsDeviceScheme removes the tab-capture scheme if present
func StripWebContentsDeviceScheme(id string) string {
	return strings.TrimPrefix(id, WebContentsDeviceScheme)
}

// ExtractTabCaptureTarget decodes "<scheme><process>:<view>" into the target
// render process and view ids.
func ExtractTabCaptureTarget(id string) (processID, viewID int, ok bool) {
	if !strings.HasPrefix(id, WebContentsDeviceScheme) {
		return 0, 0, false
	}
	rest := strings.TrimPrefix(id, WebContentsDeviceScheme)

	procStr, viewStr, found := strings.Cut(rest, ":")
	if !found {
		return 0, 0, false
	}

	p, err := strconv.Atoi(procStr)
	if err != nil || p < 0 {
		return 0, 0, false
	}
	v, err := strconv.Atoi(viewStr)
	if err != nil || v < 0 {
		return 0, 0, false
	}

	return p, v, true
}
