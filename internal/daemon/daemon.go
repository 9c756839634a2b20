// Package daemon wires the collectors, drift monitor, detectors,
// normalizer, correlator, policy engine, responder, reporter, and
// optional LLM agent into a single long-running process.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opensecagent/agent/internal/agent"
	"github.com/opensecagent/agent/internal/collector"
	"github.com/opensecagent/agent/internal/config"
	"github.com/opensecagent/agent/internal/correlator"
	"github.com/opensecagent/agent/internal/detector"
	"github.com/opensecagent/agent/internal/drift"
	"github.com/opensecagent/agent/internal/model"
	"github.com/opensecagent/agent/internal/normalizer"
	"github.com/opensecagent/agent/internal/policy"
	"github.com/opensecagent/agent/internal/queue"
	"github.com/opensecagent/agent/internal/reporter"
	"github.com/opensecagent/agent/internal/responder"
	"github.com/opensecagent/agent/internal/sdnotify"
	"github.com/opensecagent/agent/internal/sink"
	"github.com/opensecagent/agent/internal/threatregistry"
)

// Version is set at build time.
var Version = "0.1.0"

// Daemon orchestrates one run of the detection-and-response pipeline.
type Daemon struct {
	cfg    *config.Config
	logger *log.Logger

	hostCollector   *collector.HostCollector
	dockerCollector *collector.DockerCollector
	drift           *drift.Monitor

	authDetector     *detector.AuthFailureDetector
	resourceDetector *detector.ResourceDetector
	networkDetector  *detector.NetworkDetector
	nginxDetector    *detector.NginxAuditDetector
	firewallDetector *detector.FirewallAuditDetector
	npmDetector      *detector.NpmAuditDetector
	phpDetector      *detector.PhpScanDetector

	snap     *correlator.Snapshots
	pol      model.Policy
	resp     *responder.Responder
	q        *queue.EventQueue
	audit    *sink.AuditSink
	activity *sink.ActivitySink
	rep      *reporter.Reporter
	threats  *threatregistry.Registry
	pdf      reporter.VulnerabilityReportRenderer
	llm      *agent.Agent   // nil when llm_agent.enabled is false
	advisor  *agent.Advisor // nil when llm.enabled is false

	// Diff-detector prior sets are owned exclusively by the single producer
	// goroutine that fills them (collectHost or collectDocker), so they need
	// no lock. They are distinct from correlator.Snapshots, which the
	// consumer goroutine owns independently.
	lastPorts      map[string]bool
	lastSudoUsers  map[string]bool
	lastContainers map[string]bool

	wg sync.WaitGroup
}

// New builds a Daemon from cfg. Callers still need to call Run to start it.
func New(cfg *config.Config, logger *log.Logger) (*Daemon, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[opensecagentd] ", log.LstdFlags)
	}

	if err := os.MkdirAll(cfg.Agent.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	auditPath := cfg.Audit.File
	if auditPath == "" {
		auditPath = filepath.Join(cfg.Agent.DataDir, "audit.jsonl")
	}
	audit, err := sink.OpenAudit(auditPath)
	if err != nil {
		return nil, err
	}

	activityPath := cfg.Activity.File
	if activityPath == "" {
		activityPath = filepath.Join(cfg.Agent.DataDir, "activity.jsonl")
	}
	activity, err := sink.OpenActivity(activityPath, cfg.Activity.Enabled)
	if err != nil {
		return nil, err
	}

	threatsDir := filepath.Join(cfg.Agent.DataDir, "threats")
	threats, err := threatregistry.New(threatsDir, logger)
	if err != nil {
		return nil, err
	}

	baselinePath := filepath.Join(cfg.Agent.DataDir, "drift_baseline.json")
	driftMonitor := drift.New(cfg.Collector.CriticalFiles, baselinePath)

	immediateSeverities := make([]model.Severity, 0, len(cfg.Notifications.ImmediateSeverities))
	for _, s := range cfg.Notifications.ImmediateSeverities {
		immediateSeverities = append(immediateSeverities, model.ParseSeverity(s))
	}
	rep := reporter.New(
		&noopMailer{logger: logger},
		immediateSeverities,
		reporter.DigestConfig{
			Enabled: cfg.Notifications.Digest.Enabled,
			HourUTC: cfg.Notifications.Digest.HourUTC,
			Minute:  cfg.Notifications.Digest.Minute,
		},
		logger,
	)

	pol := model.Policy{ActionTierMax: model.ActionTier(cfg.ActionTierMax)}
	for _, w := range cfg.MaintenanceWindows {
		pol.MaintenanceWindows = append(pol.MaintenanceWindows, model.MaintenanceWindow{Start: w.Start, End: w.End})
	}

	resp := &responder.Responder{
		Docker:   responder.CLIContainerStopper{},
		Audit:    audit,
		Activity: activity,
		Logger:   logger,
	}

	d := &Daemon{
		cfg:             cfg,
		logger:          logger,
		hostCollector:   collector.NewHostCollector(),
		dockerCollector: collector.NewDockerCollector(),
		drift:           driftMonitor,
		authDetector: &detector.AuthFailureDetector{
			Threshold: cfg.Detector.AuthFailureThreshold,
			WindowSec: cfg.Detector.AuthFailureWindowSec,
		},
		resourceDetector: &detector.ResourceDetector{
			CPUPercent:    cfg.Detector.ResourceCPUPercent,
			MemoryPercent: cfg.Detector.ResourceMemoryPercent,
		},
		networkDetector:  &detector.NetworkDetector{ThresholdMBPerSec: cfg.Detector.NetworkMBPerSecThreshold},
		nginxDetector:    &detector.NginxAuditDetector{ConfigPaths: cfg.Detector.NginxConfigPaths, CheckSecurity: cfg.Detector.NginxCheckSecurity},
		firewallDetector: &detector.FirewallAuditDetector{RequireActive: cfg.Detector.FirewallRequireActive},
		npmDetector: &detector.NpmAuditDetector{
			Roots:          cfg.Detector.NpmAuditPaths,
			MaxDepth:       cfg.Detector.NpmAuditMaxDepth,
			MaxDirectories: 50,
		},
		phpDetector: &detector.PhpScanDetector{
			Roots:    cfg.Detector.PhpScanPaths,
			MaxDepth: cfg.Detector.PhpScanMaxDepth,
			MaxFiles: cfg.Detector.PhpScanMaxFiles,
			MaxBytes: cfg.Detector.PhpScanMaxBytes,
		},
		snap:           correlator.NewSnapshots(),
		pol:            pol,
		resp:           resp,
		q:              queue.New(256),
		audit:          audit,
		activity:       activity,
		rep:            rep,
		threats:        threats,
		pdf:            reporter.TextFallbackRenderer{},
		lastPorts:      map[string]bool{},
		lastSudoUsers:  map[string]bool{},
		lastContainers: map[string]bool{},
	}

	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		chat := buildChat(cfg)
		d.advisor = &agent.Advisor{
			Chat:      chat,
			Scrubber:  agent.NewScrubber(cfg.LLM.RedactPatterns),
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		}
		if cfg.LLMAgent.Enabled {
			d.llm = buildAgent(cfg, chat, logger)
		}
	}

	return d, nil
}

func buildChat(cfg *config.Config) agent.Chat {
	switch cfg.LLM.Provider {
	case "anthropic":
		return agent.NewAnthropicChat(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	default:
		return agent.NewOpenAIChat(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	}
}

func buildAgent(cfg *config.Config, chat agent.Chat, logger *log.Logger) *agent.Agent {
	return &agent.Agent{
		Chat:          chat,
		Whitelist:     agent.NewWhitelist(),
		Budget:        agent.NewBudget(agent.DefaultBudgetConfig()),
		Scrubber:      agent.NewScrubber(cfg.LLM.RedactPatterns),
		Executor:      agent.ShellExecutor{RunAs: cfg.Execution.RunAs},
		MaxIterations: cfg.LLMAgent.AgentMaxIterations,
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Logger:        logger,
	}
}

// Run blocks until ctx is canceled, then drains in-flight work and returns.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Printf("opensecagentd v%s starting (env=%s, action_tier_max=%d)", Version, d.cfg.Environment, d.cfg.ActionTierMax)

	if err := sdnotify.Ready(); err != nil {
		d.logger.Printf("sd_notify READY failed: %v", err)
	}

	intervals := d.cfg.EffectiveIntervals()

	d.wg.Add(1)
	go func() { defer d.wg.Done(); d.runTicked(ctx, "host", intervals.HostIntervalSec, d.collectHost) }()

	d.wg.Add(1)
	go func() { defer d.wg.Done(); d.runTicked(ctx, "docker", intervals.DockerIntervalSec, d.collectDocker) }()

	d.wg.Add(1)
	go func() { defer d.wg.Done(); d.runTicked(ctx, "drift", intervals.DriftIntervalSec, d.checkDrift) }()

	d.wg.Add(1)
	go func() { defer d.wg.Done(); d.runTicked(ctx, "detectors", intervals.DetectorIntervalSec, d.runDetectors) }()

	d.wg.Add(1)
	go func() { defer d.wg.Done(); d.rep.RunDigestLoop(ctx) }()

	d.wg.Add(1)
	go func() { defer d.wg.Done(); d.consumeEvents(ctx) }()

	if d.llm != nil && !d.cfg.LLMAgent.RunOnIncident {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.runTicked(ctx, "llm_scan", intervals.LLMScanIntervalSec, d.runLLMScan)
		}()
	}

	watchdog := time.NewTicker(30 * time.Second)
	defer watchdog.Stop()
	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case <-watchdog.C:
			_ = sdnotify.Watchdog()
		}
	}
}

func (d *Daemon) shutdown() error {
	d.logger.Println("shutting down")
	_ = sdnotify.Stopping()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Println("all goroutines drained")
	case <-time.After(30 * time.Second):
		d.logger.Println("goroutine drain timed out after 30s")
	}

	d.audit.Close()
	d.activity.Close()
	return nil
}

// runTicked runs fn immediately and then every intervalSec seconds until
// ctx is canceled. A non-positive interval disables the task.
func (d *Daemon) runTicked(ctx context.Context, name string, intervalSec int, fn func(context.Context)) {
	if intervalSec <= 0 {
		return
	}
	fn(ctx)
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (d *Daemon) collectHost(ctx context.Context) {
	start := time.Now()
	inv := d.hostCollector.Collect(ctx)
	now := time.Now()

	if ev := detector.NewPortsEvent(inv, d.lastPorts, now); ev != nil {
		d.q.Enqueue(ctx, *ev)
	}
	if ev := detector.NewAdminEvent(inv, d.lastSudoUsers, now); ev != nil {
		d.q.Enqueue(ctx, *ev)
	}
	d.lastPorts = detector.CurrentPortSet(inv)
	d.lastSudoUsers = detector.CurrentSudoUserSet(inv)

	ev := normalizer.HostInventoryEvent(inv, now)
	if err := d.q.Enqueue(ctx, ev); err != nil {
		d.logger.Printf("host inventory enqueue failed: %v", err)
	}
	d.activity.LogCollectorRun("host", time.Since(start).Milliseconds(), nil)
}

func (d *Daemon) collectDocker(ctx context.Context) {
	start := time.Now()
	inv := d.dockerCollector.Collect(ctx)
	now := time.Now()

	if !inv.Available {
		d.activity.LogCollectorRun("docker", time.Since(start).Milliseconds(), nil)
		return
	}

	if cev := detector.NewContainerEvent(inv, d.lastContainers, now); cev != nil {
		d.q.Enqueue(ctx, *cev)
	}
	d.lastContainers = detector.CurrentRunningContainerSet(inv)

	if ev, ok := normalizer.DockerInventoryEvent(inv, now); ok {
		if err := d.q.Enqueue(ctx, ev); err != nil {
			d.logger.Printf("docker inventory enqueue failed: %v", err)
		}
	}
	d.activity.LogCollectorRun("docker", time.Since(start).Milliseconds(), nil)
}

func (d *Daemon) checkDrift(ctx context.Context) {
	events, err := d.drift.Check(time.Now())
	if err != nil {
		d.logger.Printf("drift check failed: %v", err)
		return
	}
	for _, ev := range events {
		d.q.Enqueue(ctx, ev)
	}
}

func (d *Daemon) runDetectors(ctx context.Context) {
	start := time.Now()
	if ev := d.authDetector.Check(time.Now()); ev != nil {
		d.q.Enqueue(ctx, *ev)
	}
	for _, ev := range d.resourceDetector.Check(time.Now()) {
		d.q.Enqueue(ctx, ev)
	}
	if cfg := d.cfg.Detector; cfg.NetworkMBPerSecThreshold > 0 {
		if ev := d.networkDetector.Check(time.Now()); ev != nil {
			d.q.Enqueue(ctx, *ev)
		}
	}
	if ev := d.nginxDetector.Check(ctx, time.Now()); ev != nil {
		d.q.Enqueue(ctx, *ev)
	}
	if ev := d.firewallDetector.Check(ctx, time.Now()); ev != nil {
		d.q.Enqueue(ctx, *ev)
	}
	for _, ev := range d.npmDetector.Check(ctx, time.Now()) {
		d.q.Enqueue(ctx, ev)
	}
	for _, ev := range d.phpDetector.Check(time.Now()) {
		d.q.Enqueue(ctx, ev)
	}
	d.activity.LogDetectorRun("all", 0, time.Since(start).Milliseconds())
}

// consumeEvents is the single correlator consumer: it dequeues events,
// classifies them, and runs the policy/responder/reporter chain on the
// resulting incidents.
func (d *Daemon) consumeEvents(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		ev, ok := d.q.Dequeue(ctx)
		if !ok {
			continue
		}

		inc, produced := correlator.Correlate(ev, d.snap, time.Now())
		if !produced {
			continue
		}

		if d.advisor != nil {
			if summary, err := d.advisor.Summarize(ctx, inc); err != nil {
				d.logger.Printf("llm incident summary failed for %s: %v", inc.IncidentID, err)
			} else {
				inc.AppendLLMSummary(summary)
			}
		}

		d.audit.LogIncident(inc)
		actions := policy.AllowedActions(inc, d.pol, time.Now())
		d.activity.LogPolicyDecision(inc.IncidentID, actions)
		for _, action := range actions {
			d.resp.Dispatch(ctx, action, inc)
		}
		d.rep.ReportIncident(ctx, inc, actions)

		if d.llm != nil && d.cfg.LLMAgent.RunOnIncident && isContainable(inc.Severity) {
			d.runLLMResolve(ctx, inc)
		}
	}
}

func isContainable(s model.Severity) bool {
	return s == model.SeverityP1 || s == model.SeverityP2
}

// runLLMScan runs one bounded discovery pass and, if the model reports a
// finding, records it in the threat registry and alerts immediately.
func (d *Daemon) runLLMScan(ctx context.Context) {
	threatContext := d.threats.LoadRecent(d.cfg.LLMAgent.ThreatContextLimit)
	sysPrompt := agent.SystemPrompt("scan", threatContext, d.cfg.Prompts)

	result, err := d.llm.Run(ctx, sysPrompt, "Begin scanning this host for security issues.")
	if err != nil {
		d.logger.Printf("llm scan failed: %v", err)
		return
	}
	d.activity.LogAgentIteration("scan", result.Iterations, summarizeResult(result))

	if result.VulnerabilityFound && result.Finding != nil {
		evidence := map[string]interface{}{"iterations": result.Iterations}
		threatID, err := d.threats.Store(
			result.Finding.Title, result.Finding.Description, result.Finding.Severity,
			evidence, nil,
		)
		if err != nil {
			d.logger.Printf("storing threat record failed: %v", err)
			return
		}

		reportPath := reporter.ReportPath(d.cfg.Agent.DataDir, threatID)
		finding := &model.ThreatFinding{
			Title:       result.Finding.Title,
			Description: result.Finding.Description,
			Severity:    result.Finding.Severity,
			Evidence:    evidence,
		}
		if err := d.pdf.Render(threatID, finding, reportPath); err != nil {
			d.logger.Printf("rendering vulnerability report failed: %v", err)
		}

		if err := d.rep.SendVulnerabilityAlert(ctx, threatID, result.Finding.Title, result.Finding.Description, result.Finding.Severity); err != nil {
			d.logger.Printf("sending vulnerability alert failed: %v", err)
		}
	}
}

// runLLMResolve asks the model to remediate a specific incident, recording
// a resolved threat and notifying on completion.
func (d *Daemon) runLLMResolve(ctx context.Context, inc *model.Incident) {
	threatContext := d.threats.LoadRecent(d.cfg.LLMAgent.ThreatContextLimit)
	sysPrompt := agent.SystemPrompt("resolve", threatContext, d.cfg.Prompts)
	userMsg := fmt.Sprintf("Incident: %s\nSeverity: %s\n%s", inc.Title, inc.Severity, inc.Narrative)

	// Store before the loop runs so every resolve attempt is auditable even
	// if the loop errors, times out, or never sets done:true.
	threatID, err := d.threats.Store(inc.Title, inc.Narrative, string(inc.Severity), inc.EvidenceSummary, nil)
	if err != nil {
		d.logger.Printf("storing threat record failed for incident %s: %v", inc.IncidentID, err)
		return
	}

	result, err := d.llm.Run(ctx, sysPrompt, userMsg)
	if err != nil {
		d.logger.Printf("llm resolve failed for incident %s: %v", inc.IncidentID, err)
		return
	}
	d.activity.LogAgentIteration("resolve", result.Iterations, summarizeResult(result))

	actionsTaken := make([]string, 0, len(result.ExecutedCommands))
	for _, c := range result.ExecutedCommands {
		actionsTaken = append(actionsTaken, c.Cmd)
	}
	inc.AppendLLMSummary(fmt.Sprintf("agent ran %d command(s) over %d iteration(s)", len(actionsTaken), result.Iterations))

	if !result.Done || len(actionsTaken) == 0 {
		return
	}
	if err := d.threats.MarkResolved(threatID, actionsTaken); err != nil {
		d.logger.Printf("marking threat resolved failed for %s: %v", threatID, err)
		return
	}
	if err := d.rep.SendResolutionNotification(ctx, threatID, actionsTaken); err != nil {
		d.logger.Printf("sending resolution notification failed: %v", err)
	}
}

func summarizeResult(r agent.Result) string {
	if r.Finding != nil {
		return r.Finding.Title
	}
	return fmt.Sprintf("%d command(s) executed", len(r.ExecutedCommands))
}

// noopMailer is the default Mailer until a concrete SMTP/Resend transport
// is configured; it logs what would have been sent.
type noopMailer struct {
	logger *log.Logger
}

func (m *noopMailer) Send(ctx context.Context, subject, body string) error {
	m.logger.Printf("notification (no transport configured): %s", subject)
	return nil
}
