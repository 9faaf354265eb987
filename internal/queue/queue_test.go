package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/reelfeed/internal/video"
)

func TestDecodeTranscodeRequest(t *testing.T) {
	req := TranscodeRequest{
		VideoID:   uuid.MustParse("10d6a7aa-02a4-4a33-bbc1-8a5a6a1d9e40"),
		SourceKey: "uploads/10d6a7aa-02a4-4a33-bbc1-8a5a6a1d9e40.mp4",
		Renditions: []video.RenditionSpec{
			{Tier: video.TierLow, Width: 480, Height: 854, BitrateKbps: 800},
		},
		EnqueuedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	body, err := req.Encode()
	require.NoError(t, err)

	got, err := DecodeTranscodeRequest(body)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestDecodeTranscodeRequest_Malformed(t *testing.T) {
	_, err := DecodeTranscodeRequest([]byte(`{"video_id": not-json`))
	require.Error(t, err)
}

func TestDecodeTranscodeRequest_MissingVideoID(t *testing.T) {
	_, err := DecodeTranscodeRequest([]byte(`{"s3_key": "uploads/a.mp4"}`))
	require.ErrorContains(t, err, "video_id")
}
