// Package cartpole is the classic cart-pole balancing task used by the
// built-in rollout generator.
package cartpole

import (
	"math"
	"math/rand"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	length         = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * length
	forceMax       = 10.0
	tau            = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0

	DefaultMaxSteps = 500
	ObsDim          = 4
	NumActions      = 2
)

type State struct {
	X        float64
	XDot     float64
	Theta    float64
	ThetaDot float64
}

func (s State) Observation() []float64 {
	return []float64{s.X, s.XDot, s.Theta, s.ThetaDot}
}

// Transition is the outcome of one Step. Truncated marks episodes cut off at
// the step limit rather than failed.
type Transition struct {
	Next      State
	Reward    float64
	Done      bool
	Truncated bool
}

type Env struct {
	state    State
	steps    int
	maxSteps int
	rng      *rand.Rand
}

func NewEnv(rng *rand.Rand, maxSteps int) *Env {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	env := &Env{rng: rng, maxSteps: maxSteps}
	env.Reset()
	return env
}

func (e *Env) Reset() State {
	e.state = State{
		X:        e.rng.Float64()*0.1 - 0.05,
		XDot:     e.rng.Float64()*0.1 - 0.05,
		Theta:    e.rng.Float64()*0.1 - 0.05,
		ThetaDot: e.rng.Float64()*0.1 - 0.05,
	}
	e.steps = 0
	return e.state
}

func (e *Env) State() State {
	return e.state
}

func (e *Env) Step(action int) Transition {
	force := forceMax
	if action == 0 {
		force = -forceMax
	}

	s := e.state
	cosTheta := math.Cos(s.Theta)
	sinTheta := math.Sin(s.Theta)

	temp := (force + poleMassLength*s.ThetaDot*s.ThetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) / (length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	e.state = State{
		X:        s.X + tau*s.XDot,
		XDot:     s.XDot + tau*xAcc,
		Theta:    s.Theta + tau*s.ThetaDot,
		ThetaDot: s.ThetaDot + tau*thetaAcc,
	}
	e.steps++

	failed := e.state.X < -xThreshold || e.state.X > xThreshold ||
		e.state.Theta < -thetaThreshold || e.state.Theta > thetaThreshold
	truncated := !failed && e.steps >= e.maxSteps

	reward := 1.0
	if failed {
		reward = 0.0
	}
	return Transition{
		Next:      e.state,
		Reward:    reward,
		Done:      failed || truncated,
		Truncated: truncated,
	}
}
