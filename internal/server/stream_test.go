package server

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"testing"
	"time"
)

func TestNextChunkCoversPayloadOnce(t *testing.T) {
	payload := make([]byte, 3*sendChunkSize-1234)
	for i := range payload {
		payload[i] = byte(i)
	}

	c := testConn()
	c.arm(payload)

	var got []byte
	chunks := 0
	for {
		chunk := c.nextChunk()
		if len(chunk) == 0 {
			break
		}
		if len(chunk) > sendChunkSize {
			t.Fatalf("chunk %d is %d bytes, cap is %d", chunks, len(chunk), sendChunkSize)
		}
		got = append(got, chunk...)
		chunks++
	}

	if !bytes.Equal(got, payload) {
		t.Fatalf("reassembled %d bytes, want %d byte payload intact", len(got), len(payload))
	}
	if chunks != 3 {
		t.Errorf("chunk count = %d, want 3", chunks)
	}
}

func TestNextChunkEndOfStreamRevertsToText(t *testing.T) {
	c := testConn()
	c.arm([]byte("abc"))

	if c.mode != modeBinaryStreaming {
		t.Fatal("arm did not switch mode")
	}

	c.nextChunk()
	if chunk := c.nextChunk(); len(chunk) != 0 {
		t.Fatalf("expected end-of-stream, got %d bytes", len(chunk))
	}

	if c.mode != modeText {
		t.Error("end-of-stream did not revert to text framing")
	}
	if c.payload != nil {
		t.Error("payload not released at end of stream")
	}
}

func TestNextChunkInTextModeIsEmpty(t *testing.T) {
	c := testConn()
	if chunk := c.nextChunk(); chunk != nil {
		t.Errorf("nextChunk in text mode = %v, want nil", chunk)
	}
}

// Drives a full session through handle over an in-memory connection:
// text commands, a streamed image larger than one chunk, and a clean
// return to text framing afterwards.
func TestHandleSession(t *testing.T) {
	payload := make([]byte, 2*sendChunkSize+321)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	s, _ := newTestServer(numericInfo(), &stubAcquirer{data: payload})

	client, srv := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		s.handle(newConn(srv))
		close(done)
	}()

	reader := bufio.NewReader(client)
	send := func(line string) {
		t.Helper()
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := client.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("write %q: %v", line, err)
		}
	}
	recvLine := func() string {
		t.Helper()
		client.SetReadDeadline(time.Now().Add(5 * time.Second))
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		return line[:len(line)-1]
	}

	send("etime 2.5")
	if got := recvLine(); got != ". etime 2.500" {
		t.Fatalf("etime response = %q", got)
	}

	send("image")
	if got := recvLine(); got != fmt.Sprintf(". %d", len(payload)) {
		t.Fatalf("image response = %q", got)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(reader, got); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("streamed payload corrupted")
	}

	// Back in text mode after the stream.
	send("gain 42")
	if got := recvLine(); got != ". gain 42" {
		t.Fatalf("post-stream response = %q", got)
	}

	send("quit")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not exit on disconnect keyword")
	}
}
