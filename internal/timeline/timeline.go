// Package timeline models the year slider of the ignition map and the
// animation that steps through it.
package timeline

import (
	"context"
	"time"
)

// State is a position on the slider. The zero value is not usable; build
// states with New.
type State struct {
	First    int  `json:"first" doc:"First selectable year" example:"2003"`
	Last     int  `json:"last" doc:"Last selectable year" example:"2023"`
	Year     int  `json:"year" doc:"Selected year" example:"2003"`
	Playing  bool `json:"playing" doc:"Whether the animation is running"`
	Finished bool `json:"finished" doc:"Whether the animation reached the last year (reset is offered)"`
}

// New returns a paused state on the first year.
func New(first, last int) State {
	if last < first {
		first, last = last, first
	}
	return State{First: first, Last: last, Year: first}
}

// Set moves to year, clamped into [First, Last].
func (s State) Set(year int) State {
	switch {
	case year < s.First:
		year = s.First
	case year > s.Last:
		year = s.Last
	}
	s.Year = year
	return s
}

// Next advances one year. Reaching or standing on the last year stops the
// animation and marks the state finished.
func (s State) Next() State {
	if s.Year < s.Last {
		s.Year++
		return s
	}
	s.Playing = false
	s.Finished = true
	return s
}

// Prev steps back one year, never before First.
func (s State) Prev() State {
	if s.Year > s.First {
		s.Year--
	}
	return s
}

// Toggle starts or pauses the animation.
func (s State) Toggle() State {
	s.Playing = !s.Playing
	return s
}

// Reset returns to the first year and hides the reset control.
func (s State) Reset() State {
	s.Year = s.First
	s.Finished = false
	return s
}

// Apply runs a named slider action: next, prev, reset or toggle.
func (s State) Apply(action string) (State, bool) {
	switch action {
	case "next":
		return s.Next(), true
	case "prev":
		return s.Prev(), true
	case "reset":
		return s.Reset(), true
	case "toggle":
		return s.Toggle(), true
	}
	return s, false
}

// Play advances s every interval while it is playing, reporting each new
// state to emit. It returns the final state when the last year is passed or
// when ctx is done.
func Play(ctx context.Context, s State, interval time.Duration, emit func(State)) State {
	if !s.Playing {
		s.Playing = true
		s.Finished = false
	}
	emit(s)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Playing = false
			return s
		case <-ticker.C:
			s = s.Next()
			emit(s)
			if !s.Playing {
				return s
			}
		}
	}
}
