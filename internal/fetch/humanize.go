package fetch

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
)

// simulateHumanInteraction nudges the mouse through a few random waypoints
// and scrolls the page in small increments. Reserved for storefronts in
// config.FetcherConfig.DifficultDomains known to fingerprint pointer/scroll
// behavior as a bot signal; most sites never need the added fetch latency.
func simulateHumanInteraction(ctx context.Context, page *rod.Page) {
	moves := 3 + rand.Intn(5) // 3-7 moves
	for i := 0; i < moves; i++ {
		if ctx.Err() != nil {
			return
		}
		x := 100 + rand.Float64()*800
		y := 100 + rand.Float64()*500
		_ = page.Mouse.Move(x, y, 5+rand.Intn(10))
		time.Sleep(time.Duration(150+rand.Intn(250)) * time.Millisecond)
	}

	scrolls := 2 + rand.Intn(3) // 2-4 scroll increments
	for i := 0; i < scrolls; i++ {
		if ctx.Err() != nil {
			return
		}
		dy := 200 + rand.Float64()*400
		_ = page.Mouse.Scroll(0, dy, 8)
		time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
	}
}
