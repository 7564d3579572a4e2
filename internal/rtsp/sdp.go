// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MJPEGPayloadType is the fixed RTP payload type advertised in SDP and
// used on the wire; see internal/rtp.PayloadTypeMJPEG.
const MJPEGPayloadType = 26

// BuildSDP renders the DESCRIBE response body: session metadata plus
// the fixed MJPEG media line, frame rate, and playable range.
func BuildSDP(clientIP string, frameRate, duration float64) []byte {
	ntp := ntpTimestamp(time.Now())
	lines := []string{
		"v=0",
		fmt.Sprintf("o=- %d %d IN IP4 %s", ntp, ntp, clientIP),
		"s=RTSP Session",
		fmt.Sprintf("m=video 0 RTP/AVP %d", MJPEGPayloadType),
		fmt.Sprintf("a=rtpmap:%d mjpeg", MJPEGPayloadType),
		fmt.Sprintf("a=framerate:%s", formatNumber(frameRate)),
		fmt.Sprintf("a=range:npt=0-%s", formatNumber(duration)),
	}
	return []byte(strings.Join(lines, "\n"))
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ntpTimestamp returns seconds elapsed since the NTP epoch
// (1900-01-01), the conventional o= line origin timestamp.
func ntpTimestamp(t time.Time) int64 {
	const ntpEpochOffset = 2208988800 // seconds between 1900-01-01 and 1970-01-01
	return t.Unix() + ntpEpochOffset
}

// ParseNPTRange parses an NPT range header value, e.g. "npt=4.0-" or
// "npt=4.0-10.0". A missing end means open-ended (end == nil); both
// forms are accepted on parse.
func ParseNPTRange(s string) (begin float64, end *float64, err error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "npt=")
	parts := strings.SplitN(s, "-", 2)
	if len(parts) == 0 || parts[0] == "" {
		return 0, nil, fmt.Errorf("%w: bad npt range %q", ErrMalformed, s)
	}

	begin, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: bad npt begin %q", ErrMalformed, parts[0])
	}

	if len(parts) == 2 && parts[1] != "" {
		e, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: bad npt end %q", ErrMalformed, parts[1])
		}
		end = &e
	}

	return begin, end, nil
}

// FormatNPTRange renders an open-ended NPT range header value, the
// only form this implementation emits on requests.
func FormatNPTRange(begin float64) string {
	return fmt.Sprintf("npt=%s-", formatNumber(begin))
}

// ParseDurationFromSDP extracts the duration advertised in an
// "a=range:npt=0-<D>" SDP line, returning 0 if absent.
func ParseDurationFromSDP(sdp []byte) float64 {
	for _, line := range strings.Split(string(sdp), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "a=range:") {
			_, end, err := ParseNPTRange(strings.TrimPrefix(line, "a=range:"))
			if err == nil && end != nil {
				return *end
			}
		}
	}
	return 0
}

// ParseFrameRateFromSDP extracts the rate advertised in an
// "a=framerate:<F>" SDP line, returning 0 if absent.
func ParseFrameRateFromSDP(sdp []byte) float64 {
	for _, line := range strings.Split(string(sdp), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "a=framerate:") {
			v, err := strconv.ParseFloat(strings.TrimPrefix(line, "a=framerate:"), 64)
			if err == nil {
				return v
			}
		}
	}
	return 0
}
