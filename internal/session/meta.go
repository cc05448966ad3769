package session

import "time"

// StopReason records why a generation ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopEOT
	StopMaxLength
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopEOT:
		return "stop"
	case StopMaxLength:
		return "length"
	case StopCancelled:
		return "cancelled"
	default:
		return ""
	}
}

// MetaInfo collects the accounting for one client turn. The caller creates it
// and fills LoadDuration and TotalDuration; Insert and Generate fill the rest.
type MetaInfo struct {
	PromptTokens     int
	GeneratedTokens  int
	StopReason       StopReason
	PrefillDuration  time.Duration
	DecodingDuration time.Duration
	LoadDuration     time.Duration
	TotalDuration    time.Duration
}
