package yenc

import (
	"bytes"
	"testing"
)

// encodeLine is the inverse of decodeLine, used to build fixtures.
func encodeLine(data []byte) string {
	var out []byte
	for _, b := range data {
		e := b + 42
		switch e {
		case 0x00, 0x0A, 0x0D, '=':
			out = append(out, '=', e+64)
		default:
			out = append(out, e)
		}
	}
	return string(out)
}

func TestDecodePrefix(t *testing.T) {
	// trailing bytes 0xd6, 0xe0, 0x13 encode to the critical characters
	// NUL, LF and '=' and so exercise the escape path
	payload := []byte("Rar!\x1a\x07\x00some archive bytes\xd6\xe0\x13")
	lines := []string{
		"some header noise",
		"=ybegin part=1 total=50 line=128 size=1048576 name=3f1c9a8e7d6b5a49.part01.rar",
		"=ypart begin=1 end=1048576",
		encodeLine(payload),
		"=yend size=1048576 part=1",
	}

	res := DecodePrefix(lines, 10240)
	if !res.HaveHeader {
		t.Fatal("expected =ybegin header")
	}
	if res.Header.Name != "3f1c9a8e7d6b5a49.part01.rar" {
		t.Errorf("name = %q", res.Header.Name)
	}
	if res.Header.Part != 1 || res.Header.Total != 50 {
		t.Errorf("part/total = %d/%d, want 1/50", res.Header.Part, res.Header.Total)
	}
	if !bytes.Equal(res.Data, payload) {
		t.Errorf("decoded data mismatch:\n got %q\nwant %q", res.Data, payload)
	}
}

func TestDecodePrefixByteCap(t *testing.T) {
	big := bytes.Repeat([]byte{0x41}, 4096)
	lines := []string{
		"=ybegin part=1 total=2 line=128 size=8192 name=big.bin",
		encodeLine(big),
		encodeLine(big),
		"=yend size=8192",
	}
	res := DecodePrefix(lines, 100)
	if len(res.Data) != 100 {
		t.Errorf("len(Data) = %d, want 100", len(res.Data))
	}
}

func TestDecodePrefixNoHeader(t *testing.T) {
	res := DecodePrefix([]string{"plain text", "more text"}, 10240)
	if res.HaveHeader {
		t.Error("unexpected header")
	}
	if len(res.Data) != 0 {
		t.Errorf("unexpected data: %q", res.Data)
	}
}

func TestDecodePrefixMultiLine(t *testing.T) {
	first := []byte("first chunk ")
	second := []byte("second chunk")
	lines := []string{
		"=ybegin part=3 total=9 line=128 size=24 name=file.bin",
		encodeLine(first),
		encodeLine(second),
		"=yend size=24",
	}
	res := DecodePrefix(lines, 10240)
	want := append(append([]byte{}, first...), second...)
	if !bytes.Equal(res.Data, want) {
		t.Errorf("decoded = %q, want %q", res.Data, want)
	}
	if res.Header.Part != 3 || res.Header.Total != 9 {
		t.Errorf("part/total = %d/%d", res.Header.Part, res.Header.Total)
	}
}
