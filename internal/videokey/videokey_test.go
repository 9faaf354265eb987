package videokey

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNamespaceUUIDForBucket_Pinned(t *testing.T) {
	ns := NamespaceUUIDForBucket("reelfeed-media")
	require.Equal(t, uuid.MustParse("a6445a92-ae91-5665-a197-dbe32fd35d31"), ns)
}

func TestVideoUUID_Deterministic(t *testing.T) {
	s := NewScheme("reelfeed-media", "uploads/", "renditions/")
	id := s.VideoUUID("uploads/cat-skateboard.mp4")
	require.Equal(t, uuid.MustParse("ec0e8916-5ddb-5486-a274-a301779371d3"), id)
	require.Equal(t, id, s.VideoUUID("uploads/cat-skateboard.mp4"))
}

func TestNamespaceUUIDForBucket_CaseInsensitive(t *testing.T) {
	require.Equal(t, NamespaceUUIDForBucket("Reelfeed-Media"), NamespaceUUIDForBucket("reelfeed-media"))
}

func TestValidateUploadKey(t *testing.T) {
	s := NewScheme("reelfeed-media", "uploads/", "renditions/")

	require.NoError(t, s.ValidateUploadKey("uploads/a.mp4"))
	require.NoError(t, s.ValidateUploadKey("uploads/nested/b.MOV"))
	require.NoError(t, s.ValidateUploadKey("uploads/c.webm"))

	require.Error(t, s.ValidateUploadKey(""))
	require.Error(t, s.ValidateUploadKey("uploads/"))
	require.Error(t, s.ValidateUploadKey("uploads/readme.txt"))
	require.Error(t, s.ValidateUploadKey("renditions/abc/master.m3u8"))
	require.Error(t, s.ValidateUploadKey("other/a.mp4"))
}

func TestOutputKeys(t *testing.T) {
	s := NewScheme("reelfeed-media", "uploads/", "renditions/")
	id := uuid.MustParse("ec0e8916-5ddb-5486-a274-a301779371d3")

	require.Equal(t, "renditions/ec0e8916-5ddb-5486-a274-a301779371d3/", s.VideoOutputPrefix(id))
	require.Equal(t, "renditions/ec0e8916-5ddb-5486-a274-a301779371d3/low/index.m3u8", s.RenditionManifestKey(id, "low"))
	require.Equal(t, "renditions/ec0e8916-5ddb-5486-a274-a301779371d3/master.m3u8", s.MasterManifestKey(id))
	require.Equal(t, "renditions/ec0e8916-5ddb-5486-a274-a301779371d3/thumbnail.jpg", s.ThumbnailKey(id))
}
