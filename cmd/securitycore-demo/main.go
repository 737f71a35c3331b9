// Command securitycore-demo wires every registry together and walks
// through the end-to-end scenarios a deployment is expected to
// exercise at least once: a clean audit chain, tamper detection, a
// role upgrade, a brute-force lockout, a tool-call escalation, and a
// fully-hardened compliance score.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gatewayops/securitycore/internal/apikey"
	"github.com/gatewayops/securitycore/internal/audit"
	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/compliance"
	"github.com/gatewayops/securitycore/internal/config"
	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/gatewayops/securitycore/internal/identity"
	"github.com/gatewayops/securitycore/internal/rbac"
	"github.com/gatewayops/securitycore/internal/sso"
	"github.com/gatewayops/securitycore/internal/team"
	"github.com/gatewayops/securitycore/internal/threat"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// setupLogger configures zerolog based on the loaded configuration.
func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Logging.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger
}

func main() {
	yamlPath := ""
	if len(os.Args) > 1 {
		yamlPath = os.Args[1]
	}

	cfg, err := config.Load(yamlPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	cfg.Logging.Format = "console"
	logger := setupLogger(cfg)
	clk := clock.Real{}

	ledgerDir, err := os.MkdirTemp("", "securitycore-ledger-*")
	if err != nil {
		logger.Fatal().Err(err).Msg("create ledger dir")
	}
	defer os.RemoveAll(ledgerDir)
	cfg.Ledger.Dir = ledgerDir

	ledger, err := audit.NewLogger(logger.With().Str("component", "audit").Logger(), clk, cfg.Ledger.Dir)
	if err != nil {
		logger.Fatal().Err(err).Msg("init audit ledger")
	}

	// rbac and identity depend on each other through narrow interfaces;
	// rbac is constructed first with a nil RoleUsers since DeleteRole is
	// the only call site that needs it and it tolerates nil.
	roles := rbac.NewService(logger.With().Str("component", "rbac").Logger(), nil)
	users := identity.NewStore(logger.With().Str("component", "identity").Logger(), clk, cfg.Identity, roles)
	keys := apikey.NewService(logger.With().Str("component", "apikey").Logger(), clk)
	broker := sso.NewBroker(logger.With().Str("component", "sso").Logger(), clk, cfg.SSO)
	teams := team.NewRegistry(logger.With().Str("component", "team").Logger(), clk, cfg.Team.DefaultMaxMembers)
	detector := threat.NewDetector(logger.With().Str("component", "threat").Logger(), clk, cfg.Threat)

	hardened := cfg.Compliance
	hardened.SandboxEnabled = true
	hardened.PolicyEngineEnabled = true
	hardened.CanaryTokensEnabled = true
	hardened.EgressFilteringEnabled = true
	hardened.AuditLoggingEnabled = true
	hardened.SkillSignatureRequired = true
	reporter := compliance.NewReporter(hardened, ledger, clk)

	broker.RegisterProvider(&sso.Provider{
		Name: "okta", Type: sso.ProviderOIDC,
		ClientID: "demo-client", IssuerURL: "https://example.okta.com",
	})

	fmt.Println("=== scenario 1: audit chain sanity ===")
	runChainSanity(ledger)

	fmt.Println("\n=== scenario 2: tamper detection ===")
	runTamperDetection(ledger)

	fmt.Println("\n=== scenario 3: RBAC role upgrade ===")
	runRBAC(users, roles)

	fmt.Println("\n=== scenario 4: brute-force lockout ===")
	runBruteForce(detector)

	fmt.Println("\n=== scenario 5: tool-call escalation ===")
	runToolEscalation(detector)

	fmt.Println("\n=== scenario 6: compliance posture (fully hardened) ===")
	runCompliance(reporter)

	fmt.Println("\n=== scenario 7: team ownership transfer ===")
	runTeamOwnershipTransfer(teams)

	fmt.Println("\n=== scenario 8: api key issuance and revocation ===")
	runAPIKeyLifecycle(keys)
}

func runChainSanity(ledger *audit.Logger) {
	if _, err := ledger.Append("chat.send", domain.ActorUser, "conversation:1", domain.DecisionAllow, "default", nil, "web"); err != nil {
		fmt.Println("append 1 failed:", err)
		return
	}
	if _, err := ledger.Append("tools.execute", domain.ActorAgent, "tool:shell_exec", domain.DecisionAskUser, "sandboxed_tools", map[string]any{"tool": "shell_exec"}, "web"); err != nil {
		fmt.Println("append 2 failed:", err)
		return
	}
	if _, err := ledger.Append("admin.users", domain.ActorUser, "user:42", domain.DecisionDeny, "rbac", nil, "api"); err != nil {
		fmt.Println("append 3 failed:", err)
		return
	}

	today := time.Now().UTC().Format("2006-01-02")
	verification, err := ledger.VerifyDate(today)
	if err != nil {
		fmt.Println("verify failed:", err)
		return
	}
	fmt.Printf("chain valid=%v entries=%d reason=%q\n", verification.Valid, verification.EntriesCheck, verification.Reason)
}

func runTamperDetection(ledger *audit.Logger) {
	today := time.Now().UTC().Format("2006-01-02")
	entries, err := ledger.Read(today)
	if err != nil || len(entries) == 0 {
		fmt.Println("read failed:", err)
		return
	}

	tampered := make([]domain.AuditEntry, len(entries))
	copy(tampered, entries)
	tampered[0].Resource = "conversation:TAMPERED"

	verification := ledger.Verify(tampered)
	fmt.Printf("tampered chain valid=%v broken_at=%d reason=%q\n", verification.Valid, verification.BrokenAt, verification.Reason)
}

func runRBAC(users *identity.Store, roles *rbac.Service) {
	user, err := users.CreateUser("avery", "avery@example.com", "correct horse battery staple", "viewer")
	if err != nil {
		fmt.Println("create user failed:", err)
		return
	}
	fmt.Println("viewer can send chat:", roles.Check(user, domain.PermChatSend))
	fmt.Println("viewer can execute tools:", roles.Check(user, domain.PermToolsExecute))

	if err := users.ChangeRole(user.ID, "operator"); err != nil {
		fmt.Println("change role failed:", err)
		return
	}
	user, _ = users.GetByID(user.ID)
	fmt.Println("operator can execute tools:", roles.Check(user, domain.PermToolsExecute))
	fmt.Println("operator can administer users:", roles.Check(user, domain.PermUsersAdmin))

	if _, err := users.Authenticate("avery", "wrong password"); err != nil {
		fmt.Println("authenticate with wrong password:", err)
	}
	if _, err := users.Authenticate("avery", "correct horse battery staple"); err == nil {
		fmt.Println("authenticate with correct password: ok")
	}
}

func runBruteForce(detector *threat.Detector) {
	source := "203.0.113.7"
	for i := 0; i < 5; i++ {
		event := detector.CheckAuth(source, false, "avery")
		if event != nil {
			fmt.Printf("failure %d raised %s at level %s\n", i+1, event.Category, event.Level)
		}
	}
	fmt.Println("source blocked:", detector.IsBlocked(source))
}

func runToolEscalation(detector *threat.Detector) {
	user := "avery"
	sequence := []string{"shell_exec", "file_write", "network_request"}
	var last *domain.ThreatEvent
	for _, tool := range sequence {
		last = detector.CheckTool(user, tool, map[string]any{"tool": tool})
	}
	if last != nil {
		fmt.Printf("detected %s at level %s: %s\n", last.Category, last.Level, last.Descriptor)
	} else {
		fmt.Println("no escalation detected")
	}
}

func runCompliance(reporter *compliance.Reporter) {
	posture := reporter.SecurityPosture()
	fmt.Printf("score=%d grade=%s owasp=%s\n", posture.Score, posture.Grade, posture.OWASPAgentic.Score)
	if posture.AuditIntegrity != nil {
		fmt.Printf("audit chain valid at report time: %v\n", posture.AuditIntegrity.ChainValid)
	}

	path := os.Getenv("SECURITYCORE_REPORT_PATH")
	if path == "" {
		return
	}
	if err := compliance.Export(path, posture); err != nil {
		fmt.Println("export report failed:", err)
		return
	}
	fmt.Println("report written to", path)
}

func runTeamOwnershipTransfer(teams *team.Registry) {
	owner := uuid.New()
	admin := uuid.New()
	t := teams.Create("platform-security", "core platform security working group", owner)

	if err := teams.AddMember(t.ID, admin, domain.TeamRoleAdmin, owner); err != nil {
		fmt.Println("add member failed:", err)
		return
	}
	if err := teams.TransferOwnership(t.ID, admin); err != nil {
		fmt.Println("transfer ownership failed:", err)
		return
	}

	updated, err := teams.Get(t.ID)
	if err != nil {
		fmt.Println("get team failed:", err)
		return
	}
	fmt.Println("new owner:", updated.OwnerID == admin)
}

func runAPIKeyLifecycle(keys *apikey.Service) {
	userID := uuid.New()

	raw, info, err := keys.Generate(userID, "ci-pipeline", 30)
	if err != nil {
		fmt.Println("generate key failed:", err)
		return
	}
	fmt.Println("issued key with prefix:", raw[:3], "expires_at:", info.ExpiresAt)

	if _, err := keys.Validate(raw); err != nil {
		fmt.Println("validate failed:", err)
		return
	}
	fmt.Println("key validated")

	keys.Revoke(raw)
	if _, err := keys.Validate(raw); err != nil {
		fmt.Println("key correctly rejected after revocation:", err)
	}
}
