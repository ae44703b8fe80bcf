package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/filedrop"
	"github.com/opd-ai/filedrop/compression"
	"github.com/opd-ai/filedrop/history"
	simulation "github.com/opd-ai/filedrop/testing"
	"github.com/opd-ai/filedrop/transport"
	"github.com/sirupsen/logrus"
)

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	tests := []struct {
		name      string
		level     string
		format    string
		wantErr   bool
		wantLevel logrus.Level
	}{
		{"debug text", "debug", "text", false, logrus.DebugLevel},
		{"warn json", "warn", "json", false, logrus.WarnLevel},
		{"upper case level", "ERROR", "", false, logrus.ErrorLevel},
		{"bad level", "loud", "text", true, 0},
		{"bad format", "info", "xml", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := configureLogging(tt.level, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logrus.GetLevel() != tt.wantLevel {
				t.Errorf("expected level %v, got %v", tt.wantLevel, logrus.GetLevel())
			}
		})
	}
}

func TestValidateSendFlags(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		flags       SendFlags
		wantErr     bool
		errContains string
	}{
		{"valid", SendFlags{FilePath: existing, WaitForPeer: time.Second}, false, ""},
		{"no wait", SendFlags{FilePath: existing}, false, ""},
		{"missing path", SendFlags{}, true, "required"},
		{"nonexistent", SendFlags{FilePath: filepath.Join(dir, "nope")}, true, "cannot read"},
		{"directory", SendFlags{FilePath: dir}, true, "directory"},
		{"negative wait", SendFlags{FilePath: existing, WaitForPeer: -time.Second}, true, "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSendFlags(&tt.flags)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateSendFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q should contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestValidateReceiveFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   ReceiveFlags
		wantErr bool
	}{
		{"valid", ReceiveFlags{Dir: "inbox"}, false},
		{"with count", ReceiveFlags{Dir: ".", Count: 3}, false},
		{"empty dir", ReceiveFlags{}, true},
		{"traversal", ReceiveFlags{Dir: "../outside"}, true},
		{"negative count", ReceiveFlags{Dir: ".", Count: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateReceiveFlags(&tt.flags)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateReceiveFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShortDigest(t *testing.T) {
	if got := shortDigest("abc"); got != "abc" {
		t.Errorf("expected short digest unchanged, got %q", got)
	}
	long := strings.Repeat("ab", 32)
	if got := shortDigest(long); got != long[:16] {
		t.Errorf("expected %q, got %q", long[:16], got)
	}
}

func TestPrintHistory(t *testing.T) {
	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	defer store.Close()

	var buf bytes.Buffer
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := printHistory(context.Background(), store, 0, &buf, now); err != nil {
		t.Fatalf("printHistory failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No files received yet") {
		t.Errorf("unexpected empty output: %q", buf.String())
	}

	rec := history.NewRecord("alice", "photo.jpg", make([]byte, 2048), "/in/photo.jpg", now.Add(-time.Hour))
	if err := store.Add(context.Background(), rec); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	buf.Reset()
	if err := printHistory(context.Background(), store, 0, &buf, now); err != nil {
		t.Fatalf("printHistory failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"RECEIVED", "alice", "photo.jpg", "2.0 kB", "1 hour ago", rec.Digest[:16]} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReceiverSavesAndRecords(t *testing.T) {
	hub := simulation.NewSimulatedHub(nil)
	alice := hub.Join("alice")
	defer alice.Close()

	opts := filedrop.NewOptions()
	opts.Channel = hub.Join("bob")
	bob, err := filedrop.New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bob.Close()

	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	defer store.Close()

	dir := t.TempDir()
	var out bytes.Buffer
	r := newReceiver(bob, dir, store, 1, &out)
	r.attach()

	payload := []byte("quarterly numbers")
	if err := alice.Broadcast(transport.Encode(transport.PacketFileName, []byte("q3.txt"))); err != nil {
		t.Fatal(err)
	}
	if err := alice.Broadcast(transport.Encode(transport.PacketFileData, compression.Compress(payload))); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("receiver did not reach its file limit")
	}

	got, err := os.ReadFile(filepath.Join(dir, "q3.txt"))
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("saved content mismatch: %q", got)
	}

	if _, ok := bob.Transfer(alice.SelfID()); ok {
		t.Error("saved transfer should be discarded from memory")
	}

	records, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].SenderName != "alice" || records[0].Digest != history.Digest(payload) {
		t.Errorf("unexpected history: %+v", records)
	}
	if !strings.Contains(out.String(), "alice is sending q3.txt") {
		t.Errorf("missing announcement in output: %q", out.String())
	}
}

func TestReceiverReportsLostConnection(t *testing.T) {
	hub := simulation.NewSimulatedHub(nil)

	opts := filedrop.NewOptions()
	opts.Channel = hub.Join("bob")
	bob, err := filedrop.New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bob.Close()

	r := newReceiver(bob, t.TempDir(), nil, 0, io.Discard)
	r.attach()

	hub.Disconnect(bob.SelfID(), io.ErrUnexpectedEOF)

	err = r.run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "lost connection") {
		t.Errorf("expected lost connection error, got %v", err)
	}
}

func TestSendFileOverSimulation(t *testing.T) {
	hub := simulation.NewSimulatedHub(nil)

	join := func(name string) *filedrop.FileDrop {
		opts := filedrop.NewOptions()
		opts.Channel = hub.Join(name)
		fd, err := filedrop.New(context.Background(), opts)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		t.Cleanup(func() { fd.Close() })
		return fd
	}
	alice := join("alice")
	join("bob")

	if !waitForPeer(context.Background(), alice, time.Second) {
		t.Fatal("bob should already be visible")
	}

	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := sendFile(context.Background(), alice, path, &out, io.Discard); err != nil {
		t.Fatalf("sendFile failed: %v", err)
	}
	if want := "Sent note.txt (5 B) to 1 participant(s)"; !strings.Contains(out.String(), want) {
		t.Errorf("expected %q in output, got %q", want, out.String())
	}
}

func TestWaitForPeerTimesOut(t *testing.T) {
	hub := simulation.NewSimulatedHub(nil)
	opts := filedrop.NewOptions()
	opts.Channel = hub.Join("alone")
	fd, err := filedrop.New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer fd.Close()

	if waitForPeer(context.Background(), fd, 150*time.Millisecond) {
		t.Error("expected no peer to show up")
	}
}
