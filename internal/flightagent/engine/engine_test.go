package engine

import (
	"context"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/autopeer-io/flightpeer/internal/flightagent/actuation"
	"github.com/autopeer-io/flightpeer/internal/flightagent/command"
	"github.com/autopeer-io/flightpeer/internal/flightagent/confirm"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/hal"
	"github.com/autopeer-io/flightpeer/internal/flightagent/reasoning"
	"github.com/autopeer-io/flightpeer/internal/flightagent/safety"
	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
)

const (
	takeoffReply     = `{"commands":[{"action":"takeoff"}],"rationale":"lift off"}`
	landReply        = `{"commands":[{"action":"land"}],"rationale":"set down"}`
	upThenFarForward = `{"commands":[{"action":"up","distance":50},{"action":"forward","distance":300}],"rationale":"climb and cross"}`
)

// answers is a confirmer with fixed answers.
type answers struct {
	ok   bool
	asks []core.ConfirmRequest
}

func (a *answers) Confirm(_ context.Context, req core.ConfirmRequest) (bool, error) {
	a.asks = append(a.asks, req)
	return a.ok, nil
}

type collector struct {
	reports []*session.Report
}

func (c *collector) Report(_ context.Context, r *session.Report) error {
	c.reports = append(c.reports, r)
	return nil
}

func testConfig() Config {
	return Config{
		VehicleID: "sim-001",
		Policy: safety.Config{
			MaxHeight:        300,
			MaxDistance:      200,
			BatteryThreshold: 20,
			AirborneEpsilon:  10,
		},
		MaxReplanCycles:     3,
		DefaultSpeed:        30,
		ConfirmationTimeout: time.Second,
	}
}

func commandStrings(cmds []command.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.String()
	}
	return out
}

func newTestEngine(sim *hal.Sim, reasoner core.Reasoner, confirmer core.Confirmer, cfg Config, opts ...Option) *Engine {
	act := actuation.NewGateway(sim, actuation.GatewayConfig{
		Timeout:    30 * time.Millisecond,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})
	gw := reasoning.NewGateway(reasoner, reasoning.GatewayConfig{
		Timeout:    2 * time.Second,
		MaxRetries: 0,
		Backoff:    time.Millisecond,
	})
	return New(gw, act, confirmer, cfg, opts...)
}

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		cfg      Config
		sim      *hal.Sim
		scripted *reasoning.ScriptedReasoner
		decider  *answers
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = testConfig()
		decider = &answers{}
	})

	Context("when the battery is below the takeoff threshold", func() {
		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 15})
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: takeoffReply})
		})

		It("should reject the takeoff and still complete", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "take off")
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Outcome).To(Equal(session.OutcomeComplete))
			Expect(report.Executed()).To(BeEmpty())
			Expect(report.EventsOf(session.EventSafetyRejection)).To(HaveLen(1))
			Expect(report.Plans[0].Commands[0].Result).To(Equal(session.ResultRejected))
			Expect(sim.Calls()).To(BeEmpty())
		})
	})

	Context("when a command needs confirmation and the operator declines", func() {
		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 80})
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: upThenFarForward})
		})

		It("should execute the first command and skip the declined one", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "climb and cross the field")
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Outcome).To(Equal(session.OutcomeComplete))
			Expect(report.Executed()).To(HaveLen(1))
			Expect(report.Executed()[0].Action()).To(Equal(command.Up))
			Expect(report.EventsOf(session.EventConfirmationDeclined)).To(HaveLen(1))
			Expect(report.Plans[0].Commands[1].Result).To(Equal(session.ResultDeclined))

			Expect(decider.asks).To(HaveLen(1))
			Expect(decider.asks[0].SessionID).To(Equal(report.ID))
		})

		It("should execute the held command once confirmed", func() {
			decider.ok = true
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "climb and cross the field")
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Outcome).To(Equal(session.OutcomeComplete))
			Expect(report.Executed()).To(HaveLen(2))
			Expect(report.EventsOf(session.EventConfirmationGranted)).To(HaveLen(1))
		})

		It("should read the operator's answer from the terminal", func() {
			term := confirm.NewTerminal(io.Discard)
			go func() {
				defer GinkgoRecover()
				Eventually(term.Waiting).Should(BeTrue())
				Expect(term.Offer("n")).To(BeTrue())
			}()
			report, err := newTestEngine(sim, scripted, term, cfg).
				Execute(ctx, "climb and cross the field")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.EventsOf(session.EventConfirmationDeclined)).To(HaveLen(1))
		})
	})

	Context("when a plan runs to completion", func() {
		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 80})
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: `{"commands":[
				{"action":"takeoff"},
				{"action":"up","distance":50},
				{"action":"forward","distance":100,"speed":50},
				{"action":"rotate_cw","direction":90},
				{"action":"down","distance":30},
				{"action":"land"}],"rationale":"survey and return"}`})
		})

		It("should send every command to the vehicle in plan order", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "survey the yard")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome).To(Equal(session.OutcomeComplete))

			planned := report.Plans[0].Plan.Commands()
			Expect(commandStrings(sim.Calls())).To(Equal(commandStrings(planned)))
			Expect(commandStrings(report.Executed())).To(Equal(commandStrings(planned)))
			Expect(report.MaxInFlight).To(Equal(1))
		})

		It("should leave no command pending and end with the telemetry of the last command", func() {
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: `{"commands":[{"action":"takeoff"},{"action":"up","distance":50}]}`})
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "climb")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome).To(Equal(session.OutcomeComplete))

			for _, p := range report.Plans {
				for _, c := range p.Commands {
					Expect(c.Result).NotTo(Equal(session.ResultPending), "command %d", c.Index)
				}
			}
			Expect(report.FinalTelemetry.Height).To(Equal(hal.SimTakeoffHeight + 50))
		})
	})

	Context("when the plan holds a move beyond the hardware ceiling", func() {
		BeforeEach(func() {
			cfg.Policy.MaxDistance = command.HardDistanceCeiling
			sim = hal.NewSim(hal.SimConfig{Battery: 80})
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: `{"commands":[{"action":"takeoff"},{"action":"forward","distance":600}]}`})
		})

		It("should issue the move clamped to the ceiling", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "fly across the lake")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome).To(Equal(session.OutcomeComplete))

			Expect(report.EventsOf(session.EventOutOfRange)).To(HaveLen(1))
			Expect(report.EventsOf(session.EventClamp)).To(HaveLen(1))

			calls := sim.Calls()
			Expect(calls).To(HaveLen(2))
			d, _ := calls[1].Distance()
			Expect(d).To(Equal(command.HardDistanceCeiling))

			issued := report.Plans[0].Commands[1].Issued
			Expect(issued).NotTo(BeNil())
			Expect(issued.String()).To(Equal(calls[1].String()))
		})
	})

	Context("when the plan names an unknown action", func() {
		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 80})
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: `{"commands":[{"action":"takeoff"},{"action":"flip"},{"action":"up","distance":40}]}`})
		})

		It("should report it and run the remaining commands in order", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "do a trick")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome).To(Equal(session.OutcomeComplete))
			Expect(report.EventsOf(session.EventUnknownAction)).To(HaveLen(1))
			Expect(commandStrings(sim.Calls())).To(Equal([]string{"takeoff", "up 40cm @30cm/s"}))
		})
	})

	Context("when a move is shorter than the vehicle accepts", func() {
		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 80})
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: `{"commands":[{"action":"takeoff"},{"action":"up","distance":10},{"action":"forward","distance":50}]}`})
		})

		It("should raise it to the minimum distance", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "nudge up")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome).To(Equal(session.OutcomeComplete))
			Expect(report.EventsOf(session.EventClamp)).To(HaveLen(1))

			d, _ := sim.Calls()[1].Distance()
			Expect(d).To(Equal(command.HardDistanceFloor))
		})

		It("should skip a command the vehicle refuses and carry on", func() {
			sim.FailNext(nil, errors.New("error Out of range"))
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "nudge up")
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Outcome).To(Equal(session.OutcomeComplete))
			Expect(report.Failure).To(Equal(session.FailureNone))
			Expect(report.FailSafe.Attempted).To(BeFalse())
			Expect(report.EventsOf(session.EventVehicleRefusal)).To(HaveLen(1))

			refused := report.Plans[0].Commands[1]
			Expect(refused.Result).To(Equal(session.ResultRejected))
			Expect(refused.Attempts).To(Equal(1))

			Expect(sim.Calls()).To(HaveLen(3))
			Expect(sim.Calls()[2].Action()).To(Equal(command.Forward))
		})
	})

	Context("when the reasoning service keeps answering with garbage", func() {
		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 80})
			scripted = reasoning.NewScriptedReasoner(
				reasoning.Step{Reply: "I would rather not."},
				reasoning.Step{Reply: `{"commands": "up"}`},
			)
		})

		It("should re-prompt once and then abort", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "go up")
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Outcome).To(Equal(session.OutcomeAborted))
			Expect(report.Failure).To(Equal(session.FailurePlanUnparseable))
			Expect(report.EventsOf(session.EventCorrectiveReprompt)).To(HaveLen(1))

			requests := scripted.Requests()
			Expect(requests).To(HaveLen(2))
			Expect(requests[0].Correction).To(BeEmpty())
			Expect(requests[1].Correction).NotTo(BeEmpty())
			Expect(sim.Calls()).To(BeEmpty())
		})
	})

	Context("when the vehicle stops answering while airborne", func() {
		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 80, Height: 100})
			sim.HangNext(3)
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: landReply})
		})

		It("should abort and land as a fail-safe", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "land")
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Outcome).To(Equal(session.OutcomeAborted))
			Expect(report.Failure).To(Equal(session.FailureActuationFailed))
			Expect(report.Plans[0].Commands[0].Attempts).To(Equal(3))
			Expect(report.FailSafe.Attempted).To(BeTrue())
			Expect(report.FailSafe.Succeeded).To(BeTrue())
			Expect(report.EventsOf(session.EventEmergencyLand)).To(HaveLen(1))
			Expect(report.FinalTelemetry.Height).To(BeZero())
			Expect(sim.Calls()).To(HaveLen(4))
		})
	})

	Context("when the link is down before the first command", func() {
		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 80})
			sim.SetConnected(false)
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: `{"commands":[{"action":"up","distance":20}]}`})
		})

		It("should abort with connectivity lost", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "go up")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome).To(Equal(session.OutcomeAborted))
			Expect(report.Failure).To(Equal(session.FailureConnectivityLost))
			Expect(sim.Calls()).To(BeEmpty())
		})
	})

	Context("when the reasoning service reports nothing to do", func() {
		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 80})
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: `{"commands":[],"rationale":"already there","goal_reached":true}`})
		})

		It("should complete without touching the vehicle", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "stay")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome).To(Equal(session.OutcomeComplete))
			Expect(report.EventsOf(session.EventGoalReached)).To(HaveLen(1))
			Expect(sim.Calls()).To(BeEmpty())
		})
	})

	Context("in closed-loop mode", func() {
		BeforeEach(func() {
			cfg.ClosedLoop = true
			sim = hal.NewSim(hal.SimConfig{Battery: 80})
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: takeoffReply})
		})

		It("should ask again with the session history until the goal is reached", func() {
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "take off")
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Outcome).To(Equal(session.OutcomeComplete))
			Expect(report.ReplanCycles).To(Equal(1))
			Expect(report.Plans).To(HaveLen(2))

			requests := scripted.Requests()
			Expect(requests).To(HaveLen(2))
			Expect(requests[1].History).NotTo(BeNil())
			Expect(requests[1].History.Executed).To(ConsistOf("takeoff"))
		})

		It("should stop at the replan budget", func() {
			cfg.MaxReplanCycles = 1
			scripted = reasoning.NewScriptedReasoner(
				reasoning.Step{Reply: takeoffReply},
				reasoning.Step{Reply: `{"commands":[{"action":"up","distance":20}]}`},
			)
			report, err := newTestEngine(sim, scripted, decider, cfg).Execute(ctx, "climb slowly")
			Expect(err).NotTo(HaveOccurred())

			Expect(report.Outcome).To(Equal(session.OutcomeComplete))
			Expect(report.ReplanCycles).To(Equal(1))
			Expect(report.EventsOf(session.EventReplanBudgetExhausted)).To(HaveLen(1))
			Expect(report.MaxInFlight).To(Equal(1))
		})
	})

	Context("while a session is running", func() {
		var (
			engine *Engine
			done   chan *session.Report
		)

		BeforeEach(func() {
			sim = hal.NewSim(hal.SimConfig{Battery: 80, Height: 100})
			scripted = reasoning.NewScriptedReasoner(reasoning.Step{Reply: landReply, Delay: 5 * time.Second})
			engine = newTestEngine(sim, scripted, decider, cfg)

			done = make(chan *session.Report, 1)
			go func() {
				defer GinkgoRecover()
				report, err := engine.Execute(ctx, "land")
				Expect(err).NotTo(HaveOccurred())
				done <- report
			}()
			Eventually(engine.Busy).Should(BeTrue())
		})

		It("should refuse a second utterance", func() {
			_, err := engine.Execute(ctx, "take off")
			Expect(err).To(MatchError(ErrBusy))
			Expect(engine.Stop()).To(BeTrue())
			Eventually(done).Should(Receive())
		})

		It("should abort on stop and land the vehicle", func() {
			Expect(engine.Stop()).To(BeTrue())

			var report *session.Report
			Eventually(done).Should(Receive(&report))
			Expect(report.Outcome).To(Equal(session.OutcomeAborted))
			Expect(report.Failure).To(Equal(session.FailureCancelled))
			Expect(report.Error).To(ContainSubstring(ErrCancelled.Error()))
			Expect(report.EventsOf(session.EventEmergencyStop)).To(HaveLen(1))
			Expect(report.FailSafe.Succeeded).To(BeTrue())
			Expect(engine.Busy()).To(BeFalse())
		})
	})

	It("should refuse an empty utterance", func() {
		sim = hal.NewSim(hal.SimConfig{Battery: 80})
		_, err := newTestEngine(sim, reasoning.NewScriptedReasoner(), decider, cfg).Execute(ctx, "   ")
		Expect(err).To(MatchError(ErrEmptyUtterance))
	})

	It("should report every closed session and announce validated plans", func() {
		sim = hal.NewSim(hal.SimConfig{Battery: 80})
		sink := &collector{}
		var planned []command.Plan
		engine := newTestEngine(sim, reasoning.NewScriptedReasoner(), decider, cfg,
			WithReporter(sink),
			WithPlanHook(func(_ *session.Session, p command.Plan) { planned = append(planned, p) }))

		report, err := engine.Execute(ctx, "take off")
		Expect(err).NotTo(HaveOccurred())
		Expect(sink.reports).To(ConsistOf(report))
		Expect(planned).To(HaveLen(1))
		Expect(planned[0].At(0).Action()).To(Equal(command.Takeoff))
	})

	It("should apply new thresholds to the next session", func() {
		sim = hal.NewSim(hal.SimConfig{Battery: 80})
		engine := newTestEngine(sim, reasoning.NewScriptedReasoner(), decider, cfg)

		p := engine.Policy()
		p.BatteryThreshold = 90
		p.AirborneEpsilon = 0
		engine.SetPolicy(p)
		Expect(engine.Policy().BatteryThreshold).To(Equal(90))
		Expect(engine.Policy().AirborneEpsilon).To(Equal(10))

		report, err := engine.Execute(ctx, "take off")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.EventsOf(session.EventSafetyRejection)).To(HaveLen(1))
	})
})
