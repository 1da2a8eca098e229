package events

import (
	"context"
	"time"
)

// Debounce coalesces bursts of store changes. The returned channel
// emits the most recent event once the input has been quiet for the
// given window. The notifier itself never coalesces; debouncing is the
// consumer's concern.
//
// The output channel is closed when ctx is cancelled or the input
// channel is closed (after flushing a pending event).
func Debounce(ctx context.Context, in <-chan StoreChange, window time.Duration) <-chan StoreChange {
	out := make(chan StoreChange, 1)

	go func() {
		defer close(out)

		var timer *time.Timer
		var timerCh <-chan time.Time
		var pending StoreChange

		stopTimer := func() {
			if timer != nil {
				timer.Stop()
			}
		}

		emit := func() {
			select {
			case out <- pending:
			case <-ctx.Done():
			}
			timerCh = nil
		}

		for {
			select {
			case <-ctx.Done():
				stopTimer()
				return

			case ev, ok := <-in:
				if !ok {
					stopTimer()
					if timerCh != nil {
						emit()
					}
					return
				}
				pending = ev
				if timer == nil {
					timer = time.NewTimer(window)
					timerCh = timer.C
				} else {
					if timerCh == nil {
						timerCh = timer.C
					}
					stopTimer()
					// drain a fired-but-unread timer before reuse
					select {
					case <-timer.C:
					default:
					}
					timer.Reset(window)
				}

			case <-timerCh:
				emit()
			}
		}
	}()

	return out
}
