// Package session implements the command surface of the display.
//
// A Session owns one transport and serializes every command issued through
// it. Commands that arrive while another command or a video playback holds
// the session fail immediately with pkg.ErrDeviceBusy.
//
// # Device State
//
// The session tracks what the display is doing:
//
//	Idle ──send-image──▶ DisplayingImage ──clear-image──▶ Idle
//	Idle ──send-video──▶ PlayingVideo ──stop-play / end──▶ Idle
//	any ──upload──▶ Uploading ──▶ previous state
//
// State changes only after the device acknowledges the command that causes
// them. A transfer that aborts part way leaves the display in an unknown
// condition; the session records this with the Undefined flag and refuses
// further transfers until ClearImage, StopPlay or Reset clears it.
//
// # Video Playback
//
// StartVideo streams an H264 elementary stream as a background task and
// returns a Playback handle. The stream is cut only at chunk boundaries:
// Playback.Stop, StopPlay, Close and cancellation of the parent context all
// let the chunk in flight complete before the end-of-stream command is sent.
//
// # Errors
//
// Every error returned by a command is a *pkg.CommandError naming the
// command. Parameter validation happens before any frame is sent.
package session
