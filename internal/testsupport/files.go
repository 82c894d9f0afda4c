package testsupport

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteMP4Fixture writes a file that sniffs as an ISO base media container:
// an ftyp box with the given major brand followed by filler. The payload is
// not decodable; pair it with a fake toolchain.
func WriteMP4Fixture(t testing.TB, path, brand string) {
	t.Helper()

	if len(brand) != 4 {
		t.Fatalf("brand %q must be four bytes", brand)
	}
	box := make([]byte, 0, 32)
	box = binary.BigEndian.AppendUint32(box, 24)
	box = append(box, "ftyp"...)
	box = append(box, brand...)
	box = binary.BigEndian.AppendUint32(box, 0x200)
	box = append(box, "isomiso2"...)
	payload := append(box, make([]byte, 1024)...)
	writeBytes(t, path, payload)
}

// WriteMatroskaFixture writes a file carrying the EBML signature. When webm
// is true the doctype string is included so it sniffs as WebM.
func WriteMatroskaFixture(t testing.TB, path string, webm bool) {
	t.Helper()

	payload := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01, 0x42, 0x82, 0x84}
	if webm {
		payload = append(payload, "webm"...)
	} else {
		payload = append(payload, "matroska"...)
	}
	payload = append(payload, make([]byte, 1024)...)
	writeBytes(t, path, payload)
}

// WriteGarbage writes bytes that match no known container signature.
func WriteGarbage(t testing.TB, path string) {
	t.Helper()

	payload := []byte("this is definitely not a video file, just some text\n")
	for len(payload) < 2048 {
		payload = append(payload, payload...)
	}
	writeBytes(t, path, payload)
}

func writeBytes(t testing.TB, path string, payload []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// MP4Bytes returns the contents of an MP4 fixture for streaming uploads.
func MP4Bytes(t testing.TB) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.mp4")
	WriteMP4Fixture(t, path, "isom")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}
