package cmd

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/vision"
)

func TestNameFromFile(t *testing.T) {
	tests := []struct {
		path      string
		wantFirst string
		wantLast  string
		wantOK    bool
	}{
		{"photos/Alice_Smith.jpg", "Alice", "Smith", true},
		{"Mary_Ann_Jones.png", "Mary Ann", "Jones", true},
		{"Cher.jpeg", "Cher", "", true},
		{"__Bob__Lee_.jpg", "Bob", "Lee", true},
		{"___.jpg", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			first, last, ok := nameFromFile(tt.path)
			if ok != tt.wantOK || first != tt.wantFirst || last != tt.wantLast {
				t.Errorf("nameFromFile(%q) = %q, %q, %v; want %q, %q, %v",
					tt.path, first, last, ok, tt.wantFirst, tt.wantLast, tt.wantOK)
			}
		})
	}
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_b.JPG", "a_a.png", "notes.txt", "c_c.bmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o700); err != nil {
		t.Fatal(err)
	}

	files, err := listImages(dir)
	if err != nil {
		t.Fatalf("listImages() error: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	if got := strings.Join(names, ","); got != "a_a.png,b_b.JPG,c_c.bmp" {
		t.Errorf("unexpected files %s", got)
	}

	if _, err := listImages(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestReadFrameFile(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 5, 3))); err != nil {
		t.Fatal(err)
	}
	encoded := filepath.Join(dir, "frame.png")
	raw := filepath.Join(dir, "frame.raw")
	if err := os.WriteFile(encoded, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(raw, make([]byte, 4*2*3), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := readFrameFile(encoded, "", 0, 0)
	if err != nil {
		t.Fatalf("encoded: %v", err)
	}
	if f.Width != 5 || f.Height != 3 {
		t.Errorf("expected 5x3, got %dx%d", f.Width, f.Height)
	}

	f, err = readFrameFile(raw, "bgr", 4, 2)
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if f.Order != vision.OrderBGR {
		t.Errorf("expected bgr, got %v", f.Order)
	}

	if _, err := readFrameFile(raw, "rgb", 5, 5); !errors.Is(err, vision.ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame for wrong size, got %v", err)
	}
	if _, err := readFrameFile(filepath.Join(dir, "nope"), "", 0, 0); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPrintMembers(t *testing.T) {
	var out bytes.Buffer
	printMembers(&out, nil)
	if !strings.Contains(out.String(), "No members found") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	printMembers(&out, []database.Template{
		{MemberID: 7, FirstName: "Alice", LastName: "Smith", LabID: 1, CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	})
	for _, want := range []string{"Alice Smith", "2024-03-01", "Total: 1 members"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintEvents(t *testing.T) {
	id := int64(7)
	dist := 0.1234
	var out bytes.Buffer
	printEvents(&out, []database.AccessEvent{
		{LabID: 1, MemberID: &id, Decision: database.DecisionGranted, Reason: "Matched", Distance: &dist, OccurredAt: time.Now()},
		{LabID: 2, Decision: database.DecisionDenied, Reason: "NoFaceDetected", OccurredAt: time.Now()},
	})
	s := out.String()
	for _, want := range []string{"granted", "0.1234", "NoFaceDetected"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestParseMemberID(t *testing.T) {
	if id, err := parseMemberID("42"); err != nil || id != 42 {
		t.Errorf("parseMemberID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"0", "-3", "abc"} {
		if _, err := parseMemberID(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
