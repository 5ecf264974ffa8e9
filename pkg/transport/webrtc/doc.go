// Package webrtc bridges browser peers to the audio pipeline. A
// Broadcaster peer accepts the streamer's SDP offer and decodes inbound
// Opus into the session; Listener peers encode paced PCM frames back to
// Opus and write them out over RTP.
package webrtc
