package texttospeech

import (
	"context"
	"fmt"
)

// Player renders synthesized audio. Mark calls back once everything sent
// before it has been played.
type Player interface {
	SendAudio(audio []byte) error
	Mark(name string, callback func(string)) error
	ClearBuffer()
}

// AwaitPlayback blocks until player has played everything sent so far. When
// ctx ends first the buffered audio is dropped.
func AwaitPlayback(ctx context.Context, player Player, name string) error {
	played := make(chan struct{})
	if err := player.Mark(name, func(string) { close(played) }); err != nil {
		return fmt.Errorf("failed to mark playback: %w", err)
	}

	select {
	case <-played:
		return nil
	case <-ctx.Done():
		player.ClearBuffer()
		return ctx.Err()
	}
}
