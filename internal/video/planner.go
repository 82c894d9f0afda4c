package video

import (
	"math"
	"time"
)

// SliceEpsilon is the container rounding slack allowed on slice bounds.
const SliceEpsilon = 0.01

// Window is the evidence window around the ticket offset.
type Window struct {
	BeforeSeconds float64
	AfterSeconds  float64
}

// DefaultWindow is 20 seconds before and 40 seconds after the ticket offset.
var DefaultWindow = Window{BeforeSeconds: 20, AfterSeconds: 40}

// Width returns the total window length.
func (w Window) Width() float64 {
	return w.BeforeSeconds + w.AfterSeconds
}

// Plan chooses the slice of a video most likely to show the ticket event.
// It is a pure function of its inputs.
//
// Without auto slicing or a ticket time the whole video is used. With an
// embedded creation time the window is placed around the ticket offset.
// Without one, the window is anchored to the end of the clip on the
// assumption the user stopped recording shortly after the event. The window
// is shifted inward to fit the video before it is clamped, so a wrong ticket
// time still yields the nearest evidence rather than an error.
func Plan(meta Metadata, ticket *time.Time, autoSlice bool, window Window) SliceInfo {
	duration := meta.DurationSeconds
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		duration = 0
	}
	full := SliceInfo{
		OriginalDurationSeconds: duration,
		StartSeconds:            0,
		DurationSeconds:         floorMillis(duration),
		Method:                  MethodFullVideo,
	}
	width := window.Width()
	if !autoSlice || ticket == nil || duration <= 0 || width <= 0 {
		return full
	}

	var start float64
	var method SliceMethod
	if meta.VideoTimestamp != nil {
		offset := ticket.Sub(*meta.VideoTimestamp).Seconds()
		start = offset - window.BeforeSeconds
		method = MethodTimestampOnly
		if meta.HasGPS {
			method = MethodGPSAndTimestamp
		}
	} else {
		start = duration - width
		method = MethodFixedWindow
	}

	start, end := fitWindow(start, width, duration)
	info := SliceInfo{
		OriginalDurationSeconds: duration,
		StartSeconds:            roundMillis(start),
		Method:                  method,
	}
	info.DurationSeconds = floorMillis(math.Min(end, duration) - info.StartSeconds)
	if info.DurationSeconds <= 0 {
		return full
	}
	return info
}

// fitWindow shifts [start, start+width) inward until it lies inside
// [0, duration], then clamps it when the window is longer than the video.
func fitWindow(start, width, duration float64) (float64, float64) {
	if width >= duration {
		return 0, duration
	}
	if math.IsNaN(start) || start < 0 {
		start = 0
	}
	if start+width > duration {
		start = duration - width
	}
	return start, start + width
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func floorMillis(v float64) float64 {
	return math.Floor(v*1000+1e-9) / 1000
}
