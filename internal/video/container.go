package video

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Container identifies a supported container family by its byte signature.
type Container string

const (
	ContainerUnknown   Container = ""
	ContainerMP4       Container = "mp4"
	ContainerQuickTime Container = "mov"
	Container3GP       Container = "3gp"
	ContainerMatroska  Container = "matroska"
	ContainerWebM      Container = "webm"
	ContainerAVI       Container = "avi"
	ContainerMPEGTS    Container = "mpegts"
	ContainerMPEGPS    Container = "mpegps"
)

const (
	sniffBytes    = 512
	tsPacketSize  = 188
	m2tsPacketLen = 192
)

// family groups containers that share a parser so extension checks accept
// e.g. a .mov holding an mp4 brand.
func (c Container) family() string {
	switch c {
	case ContainerMP4, ContainerQuickTime, Container3GP:
		return "isobmff"
	case ContainerMatroska, ContainerWebM:
		return "matroska"
	default:
		return string(c)
	}
}

// MimeType returns the canonical MIME type for the container.
func (c Container) MimeType() string {
	switch c {
	case ContainerMP4:
		return "video/mp4"
	case ContainerQuickTime:
		return "video/quicktime"
	case Container3GP:
		return "video/3gpp"
	case ContainerMatroska:
		return "video/x-matroska"
	case ContainerWebM:
		return "video/webm"
	case ContainerAVI:
		return "video/x-msvideo"
	case ContainerMPEGTS:
		return "video/mp2t"
	case ContainerMPEGPS:
		return "video/mpeg"
	default:
		return "application/octet-stream"
	}
}

var extensionFamilies = map[string]string{
	".mp4":  "isobmff",
	".m4v":  "isobmff",
	".mov":  "isobmff",
	".qt":   "isobmff",
	".3gp":  "isobmff",
	".3g2":  "isobmff",
	".mkv":  "matroska",
	".webm": "matroska",
	".avi":  "avi",
	".ts":   "mpegts",
	".mts":  "mpegts",
	".m2ts": "mpegts",
	".mpg":  "mpegps",
	".mpeg": "mpegps",
	".vob":  "mpegps",
}

// SupportedExtension reports whether ext (with leading dot) names a supported
// video container.
func SupportedExtension(ext string) bool {
	_, ok := extensionFamilies[strings.ToLower(ext)]
	return ok
}

var isoBoxTypes = [][]byte{
	[]byte("ftyp"), []byte("moov"), []byte("mdat"), []byte("wide"), []byte("free"), []byte("skip"), []byte("pnot"),
}

// Sniff reads the head of path and identifies its container. It never
// invokes the toolchain.
func Sniff(path string) (Container, error) {
	file, err := os.Open(path)
	if err != nil {
		return ContainerUnknown, err
	}
	defer file.Close()

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return ContainerUnknown, fmt.Errorf("read header: %w", err)
	}
	return detect(head[:n]), nil
}

func detect(head []byte) Container {
	if len(head) < 12 {
		return ContainerUnknown
	}
	for _, box := range isoBoxTypes {
		if bytes.Equal(head[4:8], box) {
			return isoBrand(head)
		}
	}
	if bytes.HasPrefix(head, []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		if bytes.Contains(head[:min(len(head), 64)], []byte("webm")) {
			return ContainerWebM
		}
		return ContainerMatroska
	}
	if bytes.HasPrefix(head, []byte("RIFF")) && bytes.Equal(head[8:12], []byte("AVI ")) {
		return ContainerAVI
	}
	if bytes.HasPrefix(head, []byte{0x00, 0x00, 0x01, 0xBA}) {
		return ContainerMPEGPS
	}
	if head[0] == 0x47 && (len(head) <= tsPacketSize || head[tsPacketSize] == 0x47) {
		return ContainerMPEGTS
	}
	if len(head) > m2tsPacketLen+4 && head[4] == 0x47 && head[m2tsPacketLen+4] == 0x47 {
		return ContainerMPEGTS
	}
	return ContainerUnknown
}

func isoBrand(head []byte) Container {
	if !bytes.Equal(head[4:8], []byte("ftyp")) || len(head) < 12 {
		return ContainerQuickTime
	}
	brand := string(head[8:12])
	switch {
	case brand == "qt  ":
		return ContainerQuickTime
	case strings.HasPrefix(brand, "3g"):
		return Container3GP
	default:
		return ContainerMP4
	}
}

// declaredFamily returns the container family implied by the file extension,
// "" when there is no extension, and ok=false for an unsupported extension.
func declaredFamily(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "", true
	}
	family, ok := extensionFamilies[ext]
	return family, ok
}
