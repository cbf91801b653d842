// Package live owns the duplex websocket connection to the Gemini Live
// API for a voice trivia session.
//
// A Session is single-use: Dial establishes exactly one connection,
// sends the setup message (audio-only response modality, host voice,
// one-time persona instruction) followed by the synthetic start turn,
// and then delivers inbound traffic as an ordered event stream. The
// remote side never speaks first on its own; the start turn is what
// kicks off the host's opening line.
//
// Events arrive strictly in receipt order on the channel returned by
// Events: audio chunks, the barge-in interruption signal, turn
// completion, and terminal close/error events. Reconnection is out of
// scope; a severed session surfaces a TransportError and the caller may
// start a new one.
//
//	sess, err := live.Dial(ctx, live.Options{
//	    APIKey:      key,
//	    Voice:       "Zephyr",
//	    Instruction: persona,
//	})
//	if err != nil { ... }
//	defer sess.Close()
//
//	for ev := range sess.Events() {
//	    switch ev.Kind {
//	    case live.EventAudioChunk:
//	        schedule(ev.Chunk)
//	    case live.EventInterrupted:
//	        flushPlayback()
//	    }
//	}
package live
