package orchestrator

import "thirdcoast.systems/reelfeed/internal/video"

// DefaultLadder is the rendition ladder submitted when a transcode request
// does not carry an explicit one. Three tiers keep the adaptive switch cheap
// on mobile while still covering poor connections.
func DefaultLadder() []video.RenditionSpec {
	return []video.RenditionSpec{
		{Tier: video.TierLow, Width: 640, Height: 360, BitrateKbps: 800},
		{Tier: video.TierMedium, Width: 960, Height: 540, BitrateKbps: 1600},
		{Tier: video.TierHigh, Width: 1280, Height: 720, BitrateKbps: 3200},
	}
}
