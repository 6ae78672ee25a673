// Package handlers binds session operations to dispatcher commands.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/towsim/pushback/internal/dispatcher"
	"github.com/towsim/pushback/internal/geo"
	"github.com/towsim/pushback/internal/logging"
	"github.com/towsim/pushback/internal/sim"
	"github.com/towsim/pushback/internal/util"
)

// Command names.
const (
	CmdDrive  = ":DRIVE:"
	CmdTick   = ":TICK:"
	CmdRun    = ":RUN:"
	CmdDraw   = ":DRAW:"
	CmdStatus = ":STATUS:"
	CmdLog    = ":LOG:"
)

// ErrArgs is returned when a command has the wrong number or form of arguments.
var ErrArgs = errors.New("invalid arguments")

// logBufferSize bounds queued :LOG: lines.
const logBufferSize = 500

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Session    *sim.Session
	LogManager *logging.SlogManager
	// DefaultDt is used by :TICK: and :RUN: without a dt argument.
	DefaultDt float64
}

// Service provides handler methods for the truck commands
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if !(deps.DefaultDt > 0) {
		deps.DefaultDt = 0.05
	}
	return &Service{deps: deps}
}

// Register adds every command to d. Truck commands run synchronously on the
// dispatching goroutine; only :LOG: is queued, and a full queue makes the
// caller wait rather than lose lines.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdDrive, s.Drive, dispatcher.Logged())
	d.Register(CmdTick, s.Tick)
	d.Register(CmdRun, s.Run, dispatcher.Logged())
	d.Register(CmdDraw, s.Draw)
	d.Register(CmdStatus, s.Status)
	d.Register(CmdLog, s.Log, dispatcher.Buffered(logBufferSize), dispatcher.Blocking())
}

// Drive handles :DRIVE:|x|y|hdg.
func (s *Service) Drive(e dispatcher.Event) (any, error) {
	if len(e.Args) < 2 || len(e.Args) > 3 {
		return nil, fmt.Errorf("%w: want x|y|hdg, got %d args", ErrArgs, len(e.Args))
	}
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = util.CleanArg(a)
	}
	dst, hdg, err := geo.ParsePose(strings.Join(args, ","))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArgs, err)
	}
	if err := s.deps.Session.Drive(dst, hdg); err != nil {
		return nil, err
	}
	return s.deps.Session.Status(), nil
}

// Tick handles :TICK:|dt.
func (s *Service) Tick(e dispatcher.Event) (any, error) {
	dt, err := s.dtArg(e.Args, 0)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Session.Step(dt); err != nil {
		return nil, err
	}
	return s.deps.Session.Status(), nil
}

// Run handles :RUN:|dt|maxSteps and returns the number of steps taken.
func (s *Service) Run(e dispatcher.Event) (any, error) {
	dt, err := s.dtArg(e.Args, 0)
	if err != nil {
		return nil, err
	}
	maxSteps := 0
	if len(e.Args) > 1 && util.CleanArg(e.Args[1]) != "" {
		maxSteps, err = strconv.Atoi(util.CleanArg(e.Args[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: max steps %q", ErrArgs, e.Args[1])
		}
	}
	return s.deps.Session.RunUntilIdle(context.Background(), dt, maxSteps)
}

// Draw handles :DRAW:.
func (s *Service) Draw(dispatcher.Event) (any, error) {
	if err := s.deps.Session.Draw(); err != nil {
		return nil, err
	}
	return "drawn", nil
}

// Status handles :STATUS:.
func (s *Service) Status(dispatcher.Event) (any, error) {
	return s.deps.Session.Status(), nil
}

// Log handles :LOG:|function|level|message from scripts.
func (s *Service) Log(e dispatcher.Event) (any, error) {
	if len(e.Args) < 3 {
		return nil, fmt.Errorf("%w: want function|level|message", ErrArgs)
	}
	msg := make([]string, 0, len(e.Args)-2)
	for _, a := range e.Args[2:] {
		msg = append(msg, util.CleanArg(a))
	}
	s.deps.LogManager.WriteLog(util.CleanArg(e.Args[0]), strings.Join(msg, "|"), util.CleanArg(e.Args[1]))
	return nil, nil
}

func (s *Service) dtArg(args []string, i int) (float64, error) {
	if len(args) <= i || util.CleanArg(args[i]) == "" {
		return s.deps.DefaultDt, nil
	}
	dt, err := strconv.ParseFloat(util.CleanArg(args[i]), 64)
	if err != nil || !(dt > 0) {
		return 0, fmt.Errorf("%w: time step %q", ErrArgs, args[i])
	}
	return dt, nil
}
