package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/patientflow"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/platform/agent"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/pkg/clock"
)

type simOptions struct {
	NHSNumber      string
	Step           time.Duration
	MaxSteps       int
	PlanOnDispatch bool
}

func simulateCmd() *cobra.Command {
	opts := simOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the critical-patient path on a simulated clock",
		Long: "Dispatches an ambulance for a severity 10 patient, then walks the record " +
			"through responder report, plan approval, both transit legs and the theatre " +
			"handover, printing every transition.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := runSimulation(cmd.Context(), cmd.OutOrStdout(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "final status: %s\n", p.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.NHSNumber, "nhs", "9912003071", "NHS number of the simulated patient")
	cmd.Flags().DurationVar(&opts.Step, "step", time.Second, "Simulated time between engine passes")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 600, "Give up after this many passes per stage")
	cmd.Flags().BoolVar(&opts.PlanOnDispatch, "plan-on-dispatch", false, "Request the resource plan as soon as the ambulance is dispatched")
	return cmd
}

// simulation drives the engine by hand on a managed clock.
type simulation struct {
	ctx    context.Context
	clk    *clock.Managed
	engine *patientflow.Engine
	svc    *patientflow.Service
	opts   simOptions
}

// runSimulation plays the critical path with the rule-based agents and
// returns the patient as it ended up.
func runSimulation(ctx context.Context, w io.Writer, opts simOptions) (patientflow.Patient, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Step <= 0 {
		opts.Step = time.Second
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 600
	}

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewManaged(start)
	engine := patientflow.NewEngine(patientflow.NewStore(clk), clk, patientflow.DefaultConfig(), zerolog.Nop())
	agents := agent.Rules{}
	svc := patientflow.NewService(engine, patientflow.DemoDirectory(), agents, agents, agents, patientflow.ServiceConfig{
		HospitalID:     patientflow.DefaultHospitalID,
		PlanOnDispatch: opts.PlanOnDispatch,
	}, zerolog.Nop())

	engine.Subscribe(patientflow.PublisherFunc(func(_ context.Context, n patientflow.Notification) error {
		ev := n.Event
		fmt.Fprintf(w, "%8s  %-22s -> %-22s %s\n", formatElapsed(ev.At.Sub(start)), ev.From, ev.To, ev.Rule)
		return nil
	}))

	sim := &simulation{ctx: ctx, clk: clk, engine: engine, svc: svc, opts: opts}
	return sim.run(w)
}

func (s *simulation) run(w io.Writer) (patientflow.Patient, error) {
	out, err := s.svc.ConfirmDispatch(s.ctx, patientflow.DispatchRequest{
		NHSNumber:     s.opts.NHSNumber,
		Symptoms:      "face drooping on one side, slurred speech",
		VideoFilename: "stroke_symptoms.mp4",
		Severity:      10,
		TriageNotes:   "Suspected stroke symptoms.",
	})
	if err != nil {
		return patientflow.Patient{}, fmt.Errorf("dispatch: %w", err)
	}
	id := out.Patient.QueueID
	fmt.Fprintf(w, "dispatched %s (%s)\nfirst aid: %s\n", out.Patient.PatientName, id, out.FirstAid)
	s.svc.Wait()

	p, err := s.until(id, "ambulance at scene", func(p patientflow.Patient) bool { return p.AmbulanceAtScene })
	if err != nil {
		return p, err
	}

	if _, err := s.svc.SubmitResponderUpdate(s.ctx, id, patientflow.ResponderUpdate{
		Symptoms:     "Left-sided facial droop, arm weakness",
		ActionsTaken: "Oxygen administered, FAST positive",
		Notes:        "Onset under one hour",
	}); err != nil {
		return p, fmt.Errorf("responder update: %w", err)
	}
	if _, err := s.svc.ApprovePlan(s.ctx, id, nil); err != nil {
		return p, fmt.Errorf("plan approval: %w", err)
	}

	s.svc.SetPrepContext(s.ctx, true)
	defer s.svc.SetPrepContext(s.ctx, false)

	return s.until(id, "theatre handover", func(p patientflow.Patient) bool {
		return p.Status == patientflow.StatusInTheatre
	})
}

// until advances the clock one step per engine pass until done holds for
// the patient.
func (s *simulation) until(id uuid.UUID, stage string, done func(patientflow.Patient) bool) (patientflow.Patient, error) {
	for i := 0; i < s.opts.MaxSteps; i++ {
		if err := s.ctx.Err(); err != nil {
			return patientflow.Patient{}, err
		}
		s.clk.Advance(s.opts.Step)
		s.engine.Tick(s.ctx)

		p, err := s.svc.GetPatient(id)
		if err != nil {
			return p, err
		}
		if done(p) {
			return p, nil
		}
	}
	p, _ := s.svc.GetPatient(id)
	return p, fmt.Errorf("%s not reached after %d steps (status %s)", stage, s.opts.MaxSteps, p.Status)
}

// formatElapsed renders d as +M:SS.
func formatElapsed(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("+%d:%02d", secs/60, secs%60)
}
