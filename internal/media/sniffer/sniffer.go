// Package sniffer identifies photo formats from their leading bytes.
package sniffer

import (
	"bytes"
	"errors"
	"mime"
	"net/textproto"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeAVIF MediaType = "avif"
)

// HeadSize is how many leading bytes DetectHead needs at most.
const HeadSize = 512

var (
	ErrUnknownType  = errors.New("unknown media type")
	ErrTypeMismatch = errors.New("declared content type does not match file")
)

type Result struct {
	Type MediaType
	MIME string
}

func DetectHead(head []byte) (Result, error) {
	switch {
	case len(head) == 0:
		return Result{}, ErrUnknownType
	case isJPEG(head):
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	case isWEBP(head):
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	case isAVIF(head):
		return Result{Type: TypeAVIF, MIME: "image/avif"}, nil
	}
	return Result{}, ErrUnknownType
}

// Check detects the type of head and, when the client declared a specific
// image type, requires the two to agree. Generic declarations such as
// application/octet-stream are ignored.
func Check(head []byte, header textproto.MIMEHeader) (Result, error) {
	result, err := DetectHead(head)
	if err != nil {
		return Result{}, err
	}
	declared := DeclaredType(header)
	if strings.HasPrefix(declared, "image/") && declared != result.MIME {
		if !(declared == "image/jpg" && result.Type == TypeJPEG) {
			return Result{}, ErrTypeMismatch
		}
	}
	return result, nil
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func isPNG(head []byte) bool {
	return bytes.HasPrefix(head, pngMagic)
}

func isGIF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a"))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

func isAVIF(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	return string(head[4:8]) == "ftyp" && bytes.Contains(head[8:], []byte("avif"))
}

// DeclaredType returns the bare media type of the part's Content-Type.
func DeclaredType(header textproto.MIMEHeader) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
