// Command praefd launches a single praefectus node, printing a color-coded
// status line every 64 frames the way an operations tool would.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/praefectus-go/praef/internal/bus"
	"github.com/praefectus-go/praef/internal/praeflog"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/system"
)

var (
	app  = kingpin.New("praefd", "A praefectus peer-to-peer simulation node.")
	name = app.Flag("name", "this node's bus identity").Required().String()
	join = app.Flag("join", "an already-live peer's bus identity to request admission from; omit to found a new system").String()

	stdLatency = app.Flag("std-latency", "estimated typical one-way latency, in ticks").Default("4").Uint32()
	lax        = app.Flag("lax", "use the lax configuration profile instead of strict").Bool()

	clockObsolescence = app.Flag("clock-obsolescence-interval", "").Uint32()
	clockTolerance    = app.Flag("clock-tolerance", "").Uint32()
	commitInterval    = app.Flag("commit-interval", "").Uint32()
	maxCommitLag      = app.Flag("max-commit-lag", "").Uint32()
	maxValidatedLag   = app.Flag("max-validated-lag", "").Uint32()
	maxLiveNodes      = app.Flag("max-live-nodes", "").Int()
	proposeGrant      = app.Flag("propose-grant-interval", "").Uint32()
	voteDeny          = app.Flag("vote-deny-interval", "").Uint32()
	voteChmodOffset   = app.Flag("vote-chmod-offset", "").Uint32()
)

func statusColor(s system.Status) *color.Color {
	switch s {
	case system.StatusOK:
		return color.New(color.FgGreen)
	case system.StatusAnonymous:
		return color.New(color.FgYellow)
	case system.StatusPartitioned, system.StatusKicked, system.StatusOOM, system.StatusOverflow:
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := praeflog.NewLogrus()
	cfg := system.DefaultConfig(pcontext.Instant(*stdLatency))
	if *lax {
		cfg.Lax(pcontext.Instant(*stdLatency))
	} else {
		cfg.Strict()
	}
	applyOverrides(cfg)

	b := bus.NewRelt(*name, log)

	var sys *system.System
	var err error
	if *join == "" {
		sys, err = system.NewBootstrap(cfg, log, b, bus.NetID(*name))
	} else {
		sys, err = system.NewJoiner(cfg, log, b, bus.NetID(*name), bus.NetID(*join))
	}
	if err != nil {
		log.Errorf("praefd: failed to start: %v", err)
		os.Exit(1)
	}
	sys.SetCallbacks(&system.Callbacks{
		Log: func(msg string) { log.Infof("praefd: %s", msg) },
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	frame := 0
	for {
		select {
		case <-stop:
			if err := sys.Shutdown(); err != nil {
				log.Errorf("praefd: shutdown: %v", err)
			}
			return
		default:
		}

		sys.Step()
		frame++
		if frame%64 == 0 {
			c := statusColor(sys.Status())
			c.Fprintf(os.Stdout, "[%s] frame=%d status=%s\n", *name, frame, sys.Status())
		}
	}
}

func applyOverrides(cfg *system.Config) {
	set := func(flag uint32, dst *pcontext.Instant) {
		if flag != 0 {
			*dst = pcontext.Instant(flag)
		}
	}
	set(*clockObsolescence, &cfg.ClockObsolescenceInterval)
	set(*clockTolerance, &cfg.ClockTolerance)
	set(*commitInterval, &cfg.CommitInterval)
	set(*maxCommitLag, &cfg.MaxCommitLag)
	set(*maxValidatedLag, &cfg.MaxValidatedLag)
	set(*proposeGrant, &cfg.ProposeGrantInterval)
	set(*voteDeny, &cfg.VoteDenyInterval)
	set(*voteChmodOffset, &cfg.VoteChmodOffset)
	if *maxLiveNodes != 0 {
		cfg.MaxLiveNodes = *maxLiveNodes
	}
}
