package sniffer

import (
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jpegHead = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngHead  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d}
	webpHead = []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
	avifHead = []byte("\x00\x00\x00\x20ftypavif\x00\x00\x00\x00")
	gifHead  = []byte("GIF89a\x01\x00")
)

func TestDetectHead(t *testing.T) {
	cases := map[string]struct {
		head []byte
		want MediaType
	}{
		"jpeg": {jpegHead, TypeJPEG},
		"png":  {pngHead, TypePNG},
		"webp": {webpHead, TypeWEBP},
		"avif": {avifHead, TypeAVIF},
		"gif":  {gifHead, TypeGIF},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := DetectHead(tc.head)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Type)
		})
	}
}

func TestDetectHeadUnknown(t *testing.T) {
	for _, head := range [][]byte{nil, []byte("hello"), []byte("<svg xmlns=...>")} {
		_, err := DetectHead(head)
		assert.ErrorIs(t, err, ErrUnknownType)
	}
}

func TestCheckDeclaredType(t *testing.T) {
	header := textproto.MIMEHeader{}

	header.Set("Content-Type", "image/png")
	_, err := Check(jpegHead, header)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	header.Set("Content-Type", "image/jpeg; charset=binary")
	got, err := Check(jpegHead, header)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", got.MIME)

	header.Set("Content-Type", "image/jpg")
	_, err = Check(jpegHead, header)
	assert.NoError(t, err)

	header.Set("Content-Type", "application/octet-stream")
	got, err = Check(pngHead, header)
	require.NoError(t, err)
	assert.Equal(t, TypePNG, got.Type)
}
