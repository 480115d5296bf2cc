package tracking

import "time"

// DefaultAnimationDuration is how long a marker takes to glide to a new position.
const DefaultAnimationDuration = 4500 * time.Millisecond

// Animation is an in-flight interpolation between two positions.
type Animation struct {
	From      LatLng
	To        LatLng
	StartedAt time.Time
	Duration  time.Duration
}

// Progress returns the elapsed fraction of the animation, clamped to [0, 1].
func (a Animation) Progress(now time.Time) float64 {
	if a.Duration <= 0 {
		return 1
	}
	return clamp(float64(now.Sub(a.StartedAt))/float64(a.Duration), 0, 1)
}

// At returns the interpolated position at `now`. It is exactly To once the animation is over.
func (a Animation) At(now time.Time) LatLng {
	p := a.Progress(now)
	if p >= 1 {
		return a.To
	}
	return Lerp(a.From, a.To, p)
}

// Interpolator moves the rendered position of one entity smoothly towards its latest
// reported position. It holds at most one Animation, whose continuation is a frame
// callback; the handle of that callback is cancelled before any new animation starts.
//
// An Interpolator must only be used from the goroutine running its Scheduler.
type Interpolator struct {
	sched    Scheduler
	clock    Clock
	duration time.Duration
	onMove   func(LatLng)

	pos    LatLng
	placed bool
	anim   *Animation
	frame  FrameID
	closed bool
}

// NewInterpolator returns an Interpolator with nothing rendered yet.
// onMove, if not nil, is called every time the rendered position changes.
func NewInterpolator(sched Scheduler, clock Clock, duration time.Duration, onMove func(LatLng)) *Interpolator {
	return &Interpolator{
		sched:    sched,
		clock:    clock,
		duration: duration,
		onMove:   onMove,
	}
}

// MoveTo handles a new authoritative position.
func (ip *Interpolator) MoveTo(target LatLng) {
	if ip.closed {
		return
	}

	// first position: no animation
	if !ip.placed {
		ip.placed = true
		ip.pos = target
		if ip.onMove != nil {
			ip.onMove(target)
		}
		return
	}

	now := ip.clock.Now()
	if ip.anim != nil {
		// restart from where the marker is right now, not from the old start or target
		ip.sched.CancelFrame(ip.frame)
		ip.frame = 0
		from := ip.anim.At(now)
		ip.anim = nil
		ip.setPos(from)
	}
	if ip.pos == target {
		return
	}

	ip.anim = &Animation{
		From:      ip.pos,
		To:        target,
		StartedAt: now,
		Duration:  ip.duration,
	}
	ip.frame = ip.sched.RequestFrame(ip.step)
}

func (ip *Interpolator) step(now time.Time) {
	ip.frame = 0
	if ip.closed || ip.anim == nil {
		return
	}

	anim := *ip.anim
	if anim.Progress(now) >= 1 {
		ip.anim = nil
		ip.setPos(anim.To)
		return
	}
	ip.frame = ip.sched.RequestFrame(ip.step)
	ip.setPos(anim.At(now))
}

func (ip *Interpolator) setPos(p LatLng) {
	changed := ip.pos != p
	ip.pos = p
	if changed && ip.onMove != nil {
		ip.onMove(p)
	}
}

// Position returns the rendered position; ok is false until a first position is received.
func (ip *Interpolator) Position() (pos LatLng, ok bool) {
	return ip.pos, ip.placed
}

// Animation returns the in-flight animation, if any.
func (ip *Interpolator) Animation() (anim Animation, ok bool) {
	if ip.anim == nil {
		return Animation{}, false
	}
	return *ip.anim, true
}

func (ip *Interpolator) Animating() bool {
	return ip.anim != nil
}

// Close cancels the in-flight animation. A closed Interpolator never moves again.
func (ip *Interpolator) Close() {
	if ip.closed {
		return
	}
	ip.closed = true
	if ip.frame != 0 {
		ip.sched.CancelFrame(ip.frame)
		ip.frame = 0
	}
	ip.anim = nil
}
