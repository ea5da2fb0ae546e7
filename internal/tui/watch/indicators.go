package watch

import (
	"strings"
	"time"
)

// Ticker alternates frames on every UI tick. A frozen frame means the
// program stopped receiving ticks.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"◐", "◓", "◑", "◒"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

const activityDots = 5

// Activity lights up on every event and fades one dot every two seconds.
type Activity struct {
	lastEvent time.Time
	dots      int
}

func (a *Activity) OnEvent(at time.Time) {
	a.lastEvent = at
	a.dots = activityDots
}

func (a *Activity) Decay(now time.Time) {
	if a.lastEvent.IsZero() {
		return
	}
	faded := int(now.Sub(a.lastEvent) / (2 * time.Second))
	a.dots = max(activityDots-faded, 0)
}

func (a Activity) Dots() int { return a.dots }

func (a Activity) LastEvent() time.Time { return a.lastEvent }

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range activityDots {
		if i < a.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}
