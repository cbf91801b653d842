// Command test-live is a standalone integration harness for the live
// transport and the TTS providers. It drives the duplex session with
// synthetic speech-shaped audio and measures latency to first host
// audio, without touching real audio hardware.
//
// Usage:
//
//	GEMINI_API_KEY=... go run ./cmd/test-live --loops 3
//	GEMINI_API_KEY=... go run ./cmd/test-live --tts "Welcome to the show"
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trivialabs/go-trivialive/internal/config"
	"github.com/trivialabs/go-trivialive/internal/log"
	"github.com/trivialabs/go-trivialive/pkg/live"
	"github.com/trivialabs/go-trivialive/pkg/tts"
)

func main() {
	config.Load()

	loops := flag.Int("loops", 3, "Number of test loops to run")
	duration := flag.Duration("duration", 2*time.Second, "Synthetic audio duration per loop")
	ttsText := flag.String("tts", "", "Instead of the live test, synthesize this text and report timings")
	debug := flag.Bool("debug", false, "Enable debug output")
	flag.Parse()

	if *debug {
		log.Init("debug")
	} else {
		log.Init("warn")
	}

	key := config.APIKeyRequired()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *ttsText != "" {
		runTTSTest(ctx, key, *ttsText)
		return
	}

	fmt.Println("🎤 Live Transport Integration Test")
	fmt.Printf("Loops: %d, audio per loop: %s\n\n", *loops, *duration)

	var results []result
	for i := 1; i <= *loops; i++ {
		select {
		case <-ctx.Done():
			printSummary(results)
			return
		default:
		}

		fmt.Printf("📝 Test %d/%d\n", i, *loops)
		r := runLoop(ctx, key, *duration)
		results = append(results, r)
		if r.err != nil {
			fmt.Printf("   ❌ %v\n", r.err)
		} else {
			fmt.Printf("   📊 First audio: %s, received %d bytes\n", r.firstAudio.Round(time.Millisecond), r.bytesReceived)
		}

		if i < *loops {
			time.Sleep(2 * time.Second)
		}
	}

	printSummary(results)
}

type result struct {
	firstAudio    time.Duration
	bytesReceived int
	err           error
}

// runLoop dials a fresh session, streams synthetic speech in real-time
// sized frames, and waits for the host's reply.
func runLoop(ctx context.Context, key string, duration time.Duration) result {
	sess, err := live.Dial(ctx, live.Options{
		APIKey:      key,
		Model:       config.LiveModel(),
		Voice:       config.HostVoice(),
		Instruction: "You are a test responder. When you hear any audio, immediately reply with a very short greeting.",
	})
	if err != nil {
		return result{err: err}
	}
	defer sess.Close()

	const sampleRate = 16000
	frameDur := 100 * time.Millisecond
	frameSamples := int(sampleRate * frameDur.Seconds())
	frames := int(duration / frameDur)

	for i := 0; i < frames; i++ {
		select {
		case <-ctx.Done():
			return result{err: ctx.Err()}
		default:
		}
		if err := sess.SendAudio(speechFrame(frameSamples, sampleRate, i)); err != nil {
			return result{err: err}
		}
		time.Sleep(frameDur)
	}
	sent := time.Now()

	var r result
	timeout := time.After(30 * time.Second)
	for {
		select {
		case <-ctx.Done():
			r.err = ctx.Err()
			return r
		case <-timeout:
			if r.bytesReceived == 0 {
				r.err = fmt.Errorf("timeout waiting for host audio")
			}
			return r
		case ev, ok := <-sess.Events():
			if !ok {
				if r.bytesReceived == 0 {
					r.err = fmt.Errorf("session closed before any audio")
				}
				return r
			}
			switch ev.Kind {
			case live.EventAudioChunk:
				if r.bytesReceived == 0 {
					r.firstAudio = time.Since(sent)
				}
				r.bytesReceived += len(ev.Chunk.Data)
			case live.EventTurnComplete:
				if r.bytesReceived > 0 {
					return r
				}
			case live.EventError:
				r.err = ev.Err
				return r
			}
		}
	}
}

// speechFrame generates a speech-shaped PCM16 frame: a pitched tone
// with harmonics and a syllable-rate envelope, enough to trigger the
// host's voice activity detection.
func speechFrame(samples, sampleRate, frameIndex int) []byte {
	baseFreq := 200.0 + float64(frameIndex%5)*50
	amplitude := 8000.0

	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(sampleRate)

		sample := math.Sin(2 * math.Pi * baseFreq * t)
		sample += 0.5 * math.Sin(2*math.Pi*baseFreq*2*t)
		sample += 0.25 * math.Sin(2*math.Pi*baseFreq*3*t)
		sample *= 0.5 + 0.5*math.Sin(2*math.Pi*4*t)

		v := int16(sample * amplitude)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return pcm
}

// runTTSTest exercises the announcement chain: Gemini first, silent
// mock as fallback, and reports what spoke and how fast.
func runTTSTest(ctx context.Context, key, text string) {
	gemini, err := tts.NewGemini(tts.WithAPIKey(key))
	if err != nil {
		fmt.Fprintf(os.Stderr, "TTS setup failed: %v\n", err)
		os.Exit(1)
	}

	chain, err := tts.NewChain(gemini, tts.NewMock())
	if err != nil {
		fmt.Fprintf(os.Stderr, "TTS setup failed: %v\n", err)
		os.Exit(1)
	}
	defer chain.Close()

	result, err := chain.Synthesize(ctx, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Synthesis failed: %v\n", err)
		os.Exit(1)
	}

	buf := result.Buffer()
	fmt.Println("🔊 Synthesis complete")
	fmt.Printf("   Audio: %d bytes, %dHz, %v\n", len(result.Audio), buf.SampleRate, result.Duration.Round(time.Millisecond))
	fmt.Printf("   Latency: %dms for %d chars\n", result.LatencyMs, result.CharCount)
}

func printSummary(results []result) {
	fmt.Println("\n📊 Results Summary")
	var ok int
	var total time.Duration
	for _, r := range results {
		if r.err == nil {
			ok++
			total += r.firstAudio
		}
	}
	if ok == 0 {
		fmt.Println("❌ All loops failed.")
		return
	}
	fmt.Printf("Success: %d/%d, avg first-audio latency: %s\n", ok, len(results), (total / time.Duration(ok)).Round(time.Millisecond))
}
