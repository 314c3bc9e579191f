// callsim simulates the call platform's media-stream leg: it connects to the
// bridge's /ws endpoint, streams caller audio from a file in real time, and
// plays whatever the agent answers through sox.
package main

import (
	"encoding/base64"
	"flag"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/callbridge/telephony"
)

// AudioPlayer streams audio via sox
type AudioPlayer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	closed bool
}

func NewAudioPlayer() *AudioPlayer {
	cmd := exec.Command("sox",
		"-t", "raw",
		"-r", "24000",
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
		"-d",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Println("sox stdin error:", err)
		return nil
	}

	if err := cmd.Start(); err != nil {
		log.Println("sox start error:", err)
		return nil
	}

	return &AudioPlayer{cmd: cmd, stdin: stdin}
}

func (p *AudioPlayer) Play(audioData []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.stdin == nil {
		return
	}
	p.stdin.Write(audioData)
}

func (p *AudioPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Wait()
	}
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "media-stream WebSocket URL")
	audioFile := flag.String("file", "examples/caller.pcm", "caller audio to send (PCM24k mono or WAV)")
	holdFor := flag.Duration("hold", 60*time.Second, "how long to stay on the call after sending audio")
	flag.Parse()

	log.Printf("connecting to %s...", *serverURL)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("connected")

	player := NewAudioPlayer()
	if player == nil {
		log.Fatal("failed to create audio player (is sox installed?)")
	}
	defer player.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})

	// Read agent audio from the bridge
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				log.Println("read error:", err)
				return
			}

			msg, err := telephony.Decode(raw)
			if err != nil {
				log.Println("parse error:", err)
				continue
			}

			switch msg.Kind {
			case telephony.KindAudioData:
				audioBytes, err := base64.StdEncoding.DecodeString(msg.Data)
				if err == nil {
					player.Play(audioBytes)
				}
			case telephony.KindStopAudio:
				log.Println("--- agent interrupted, flushing playback ---")
			default:
				log.Printf("frame: %s", msg.Kind)
			}
		}
	}()

	// Let the greeting turn play before the caller speaks
	time.Sleep(2 * time.Second)

	log.Printf("sending caller audio: %s", *audioFile)

	audioData, err := loadAudioFile(*audioFile)
	if err != nil {
		log.Fatalf("failed to load audio: %v", err)
	}

	// 100ms chunks of PCM16 mono at 24kHz, paced like a live call
	chunkSize := 4800
	for i := 0; i < len(audioData); i += chunkSize {
		end := i + chunkSize
		if end > len(audioData) {
			end = len(audioData)
		}

		frame, err := telephony.EncodeAudio(base64.StdEncoding.EncodeToString(audioData[i:end]))
		if err != nil {
			log.Fatalf("encode error: %v", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("send error: %v", err)
			break
		}

		time.Sleep(100 * time.Millisecond)
	}

	log.Println("caller audio sent, staying on the line...")

	select {
	case <-done:
		log.Println("connection closed")
	case <-interrupt:
		log.Println("interrupted, hanging up")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-time.After(*holdFor):
		log.Println("hold time elapsed, hanging up")
	}
}

// loadAudioFile loads PCM or WAV file and returns raw PCM bytes
func loadAudioFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Check if it's a WAV file (starts with "RIFF")
	if len(data) > 44 && string(data[0:4]) == "RIFF" {
		log.Println("detected WAV file, skipping header")
		return data[44:], nil
	}

	log.Println("detected raw PCM file")
	return data, nil
}
