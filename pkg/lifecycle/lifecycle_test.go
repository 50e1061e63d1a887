package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openlift/openlift/pkg/configtool"
	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/locks"
	"github.com/openlift/openlift/pkg/render"
	"github.com/openlift/openlift/pkg/steps"
	"github.com/openlift/openlift/pkg/stores"
)

// fakeProvisioner scripts the provisioner adapter.
type fakeProvisioner struct {
	applyErr   error
	destroyErr error
	address    string

	initCalls    int
	planCalls    int
	applyCalls   int
	destroyCalls int
}

func (f *fakeProvisioner) Init(ctx context.Context, workdir string) error {
	f.initCalls++
	return nil
}

func (f *fakeProvisioner) Plan(ctx context.Context, workdir string) error {
	f.planCalls++
	return nil
}

func (f *fakeProvisioner) Apply(ctx context.Context, workdir string) error {
	f.applyCalls++
	return f.applyErr
}

func (f *fakeProvisioner) Destroy(ctx context.Context, workdir string) error {
	f.destroyCalls++
	return f.destroyErr
}

func (f *fakeProvisioner) Output(ctx context.Context, workdir, name string) (string, error) {
	if f.address == "" {
		return "", fmt.Errorf("output %q not declared", name)
	}
	return f.address, nil
}

// fakeConfigTool records playbook runs.
type fakeConfigTool struct {
	err  error
	runs []string
}

func (f *fakeConfigTool) RunPlaybook(ctx context.Context, playbook string, target configtool.Target) error {
	f.runs = append(f.runs, playbook)
	return f.err
}

// fakeTransport scripts the SSH transport.
type fakeTransport struct {
	connectErr error
	execErr    error
	execOut    string
	bootDone   bool

	commands []string
	uploads  []string
}

func (f *fakeTransport) TestConnectivity(ctx context.Context, address string, creds environment.SSHCredentials) error {
	return f.connectErr
}

func (f *fakeTransport) ExecuteCommand(ctx context.Context, address string, creds environment.SSHCredentials, cmd string) (string, error) {
	f.commands = append(f.commands, cmd)
	return f.execOut, f.execErr
}

func (f *fakeTransport) UploadFile(ctx context.Context, address string, creds environment.SSHCredentials, localPath, remotePath string) error {
	f.uploads = append(f.uploads, localPath+" -> "+remotePath)
	return nil
}

func (f *fakeTransport) FileExists(ctx context.Context, address string, creds environment.SSHCredentials, remotePath string) (bool, error) {
	return f.bootDone, nil
}

// fakeRenderer records render calls without touching templates.
type fakeRenderer struct {
	err   error
	calls int
}

func (f *fakeRenderer) Render(sourceDir, destDir string, env environment.Environment) error {
	f.calls++
	return f.err
}

// fixture bundles a handler with its fakes and temp dirs.
type fixture struct {
	handler     *Handler
	store       stores.Store
	provisioner *fakeProvisioner
	configTool  *fakeConfigTool
	transport   *fakeTransport
	renderer    *fakeRenderer
	clock       *steps.FakeClock
	dataDir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dataDir := t.TempDir()
	envDir := filepath.Join(dataDir, "environments")
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		t.Fatalf("failed to create env dir: %v", err)
	}

	fileStore, err := stores.NewFileStore(envDir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	f := &fixture{
		store:       fileStore,
		provisioner: &fakeProvisioner{address: "192.0.2.10"},
		configTool:  &fakeConfigTool{},
		transport:   &fakeTransport{bootDone: true},
		renderer:    &fakeRenderer{},
		clock:       steps.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		dataDir:     dataDir,
	}

	handler, err := New(Deps{
		Store:       f.store,
		Locker:      locks.NewLocker(envDir, locks.WithTimeout(time.Second)),
		Renderer:    f.renderer,
		Provisioner: f.provisioner,
		ConfigTool:  f.configTool,
		Transport:   f.transport,
		Clock:       f.clock,
		SourceDir:   filepath.Join(dataDir, "source"),
		EnvDataRoot: filepath.Join(dataDir, "env"),
		BuildRoot:   filepath.Join(dataDir, "build"),
		Service:     "myapp",
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	f.handler = handler
	return f
}

func (f *fixture) creds(t *testing.T) environment.SSHCredentials {
	t.Helper()
	keyPath := filepath.Join(f.dataDir, "id_rsa")
	if err := os.WriteFile(keyPath, []byte("key"), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return environment.SSHCredentials{User: "deploy", PrivateKeyPath: keyPath, Port: 22}
}

// initEnv creates an environment record in the created phase.
func (f *fixture) initEnv(t *testing.T, name string) environment.Name {
	t.Helper()
	res, err := f.handler.Init(context.Background(), name, f.creds(t))
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseCreated {
		t.Fatalf("phase after init = %q, want created", res.Environment.Phase)
	}
	return res.Environment.Name
}

// loadEnv reads the persisted record.
func (f *fixture) loadEnv(t *testing.T, name environment.Name) environment.Environment {
	t.Helper()
	env, err := f.store.Load(context.Background(), name)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return env
}

func TestInitRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.initEnv(t, "web")

	_, err := f.handler.Init(context.Background(), "web", f.creds(t))
	if err == nil {
		t.Fatal("expected duplicate init to fail")
	}
	if ClassOf(err) != ClassConflict {
		t.Errorf("class = %q, want conflict", ClassOf(err))
	}
}

func TestInitRejectsBadName(t *testing.T) {
	f := newFixture(t)
	_, err := f.handler.Init(context.Background(), "9bad!", f.creds(t))
	if err == nil {
		t.Fatal("expected init to reject the name")
	}
	if ClassOf(err) != ClassValidation {
		t.Errorf("class = %q, want validation", ClassOf(err))
	}
	if HintOf(err) == "" {
		t.Error("validation error should carry a hint")
	}
}

func TestProvisionHappyPath(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")

	res, err := f.handler.Provision(context.Background(), name)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseProvisioned {
		t.Errorf("phase = %q, want provisioned", res.Environment.Phase)
	}
	if res.Environment.Outputs.InstanceAddress != "192.0.2.10" {
		t.Errorf("address = %q, want 192.0.2.10", res.Environment.Outputs.InstanceAddress)
	}
	if f.provisioner.initCalls != 1 || f.provisioner.planCalls != 1 || f.provisioner.applyCalls != 1 {
		t.Errorf("provisioner calls = %d/%d/%d, want 1/1/1",
			f.provisioner.initCalls, f.provisioner.planCalls, f.provisioner.applyCalls)
	}
	if f.renderer.calls != 1 {
		t.Errorf("render calls = %d, want 1", f.renderer.calls)
	}

	persisted := f.loadEnv(t, name)
	if persisted.Phase != environment.PhaseProvisioned {
		t.Errorf("persisted phase = %q, want provisioned", persisted.Phase)
	}
}

func TestProvisionApplyFailurePersistsFailedPhase(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	f.provisioner.applyErr = errors.New("quota exceeded")

	_, err := f.handler.Provision(context.Background(), name)
	if err == nil {
		t.Fatal("expected provision to fail")
	}
	if ClassOf(err) != ClassStep {
		t.Errorf("class = %q, want step", ClassOf(err))
	}

	persisted := f.loadEnv(t, name)
	if persisted.Phase != environment.PhaseProvisionFailed {
		t.Errorf("persisted phase = %q, want provision_failed", persisted.Phase)
	}
	if !strings.Contains(persisted.FailureCause(), "provisioner-apply") {
		t.Errorf("failure cause %q should name the failed step", persisted.FailureCause())
	}
	if !strings.Contains(persisted.FailureCause(), "quota exceeded") {
		t.Errorf("failure cause %q should carry the root cause", persisted.FailureCause())
	}
}

func TestProvisionRetriesAfterFailure(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	f.provisioner.applyErr = errors.New("quota exceeded")

	if _, err := f.handler.Provision(context.Background(), name); err == nil {
		t.Fatal("expected first provision to fail")
	}

	f.provisioner.applyErr = nil
	res, err := f.handler.Provision(context.Background(), name)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseProvisioned {
		t.Errorf("phase = %q, want provisioned", res.Environment.Phase)
	}
	if res.Environment.FailureCause() != "" {
		t.Errorf("failure cause should be cleared, got %q", res.Environment.FailureCause())
	}
}

func TestProvisionIsIdempotentWhenProvisioned(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")

	if _, err := f.handler.Provision(context.Background(), name); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	calls := f.provisioner.applyCalls

	res, err := f.handler.Provision(context.Background(), name)
	if err != nil {
		t.Fatalf("second provision failed: %v", err)
	}
	if !res.NoOp {
		t.Error("second provision should be a no-op")
	}
	if f.provisioner.applyCalls != calls {
		t.Error("no-op provision must not invoke the provisioner")
	}
}

func TestPhaseMismatchLeavesRecordUnchanged(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	before := f.loadEnv(t, name)

	// configure from created is illegal
	_, err := f.handler.Configure(context.Background(), name)
	if err == nil {
		t.Fatal("expected configure from created to fail")
	}
	if ClassOf(err) != ClassValidation {
		t.Errorf("class = %q, want validation", ClassOf(err))
	}

	after := f.loadEnv(t, name)
	if after.Phase != before.Phase {
		t.Errorf("phase changed from %q to %q on a rejected operation", before.Phase, after.Phase)
	}
	if !after.LastTransitionAt.Equal(before.LastTransitionAt) {
		t.Error("transition timestamp changed on a rejected operation")
	}
	if f.configTool.runs != nil {
		t.Error("rejected configure must not run the playbook")
	}
}

func TestConfigureRunsPlaybook(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	if _, err := f.handler.Provision(context.Background(), name); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	res, err := f.handler.Configure(context.Background(), name)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseConfigured {
		t.Errorf("phase = %q, want configured", res.Environment.Phase)
	}
	if len(f.configTool.runs) != 1 || !strings.HasSuffix(f.configTool.runs[0], "site.yml") {
		t.Errorf("playbook runs = %v, want one run of site.yml", f.configTool.runs)
	}
}

func TestConfigureFailurePersistsFailedPhase(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	if _, err := f.handler.Provision(context.Background(), name); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	f.configTool.err = errors.New("playbook blew up")

	_, err := f.handler.Configure(context.Background(), name)
	if err == nil {
		t.Fatal("expected configure to fail")
	}

	persisted := f.loadEnv(t, name)
	if persisted.Phase != environment.PhaseConfigureFailed {
		t.Errorf("persisted phase = %q, want configure_failed", persisted.Phase)
	}
	if !strings.Contains(persisted.FailureCause(), "playbook blew up") {
		t.Errorf("failure cause %q should carry the root cause", persisted.FailureCause())
	}
}

func TestReleaseUploadsArtifactAndRestarts(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	ctx := context.Background()
	if _, err := f.handler.Provision(ctx, name); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := f.handler.Configure(ctx, name); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	res, err := f.handler.Release(ctx, name, ReleaseOptions{Artifact: "/tmp/app.tar.gz"})
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseReleased {
		t.Errorf("phase = %q, want released", res.Environment.Phase)
	}
	if len(f.transport.uploads) != 1 || !strings.HasPrefix(f.transport.uploads[0], "/tmp/app.tar.gz") {
		t.Errorf("uploads = %v, want one upload of the artifact", f.transport.uploads)
	}
	found := false
	for _, cmd := range f.transport.commands {
		if strings.Contains(cmd, "systemctl restart myapp") {
			found = true
		}
	}
	if !found {
		t.Errorf("commands = %v, expected a service restart", f.transport.commands)
	}

	// Releasing again from released is legal.
	if _, err := f.handler.Release(ctx, name, ReleaseOptions{}); err != nil {
		t.Fatalf("re-release failed: %v", err)
	}
}

func TestRunPersistsRunningOnHealthyService(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	ctx := context.Background()
	if _, err := f.handler.Provision(ctx, name); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := f.handler.Configure(ctx, name); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := f.handler.Release(ctx, name, ReleaseOptions{}); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	res, err := f.handler.Run(ctx, name)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseRunning {
		t.Errorf("phase = %q, want running", res.Environment.Phase)
	}
}

func TestRunFailureLeavesReleased(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	ctx := context.Background()
	if _, err := f.handler.Provision(ctx, name); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := f.handler.Configure(ctx, name); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := f.handler.Release(ctx, name, ReleaseOptions{}); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	f.transport.execErr = errors.New("inactive")

	_, err := f.handler.Run(ctx, name)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	persisted := f.loadEnv(t, name)
	if persisted.Phase != environment.PhaseReleased {
		t.Errorf("phase = %q, want released after failed run", persisted.Phase)
	}
}

func TestDestroyFullLifecycle(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	ctx := context.Background()
	if _, err := f.handler.Provision(ctx, name); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	res, err := f.handler.Destroy(ctx, name, DestroyOptions{})
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseDestroyed {
		t.Errorf("phase = %q, want destroyed", res.Environment.Phase)
	}
	if f.provisioner.destroyCalls != 1 {
		t.Errorf("destroy calls = %d, want 1", f.provisioner.destroyCalls)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	ctx := context.Background()

	if _, err := f.handler.Destroy(ctx, name, DestroyOptions{}); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	calls := f.provisioner.destroyCalls

	res, err := f.handler.Destroy(ctx, name, DestroyOptions{})
	if err != nil {
		t.Fatalf("second destroy failed: %v", err)
	}
	if !res.NoOp {
		t.Error("second destroy should be a no-op")
	}
	if f.provisioner.destroyCalls != calls {
		t.Error("no-op destroy must not invoke the provisioner")
	}
}

func TestDestroyRefusesExternallyRegistered(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	ctx := context.Background()

	if _, err := f.handler.Register(ctx, name, "192.0.2.20"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := f.handler.Destroy(ctx, name, DestroyOptions{})
	if err == nil {
		t.Fatal("expected destroy of a registered environment to fail")
	}
	if ClassOf(err) != ClassConflict {
		t.Errorf("class = %q, want conflict", ClassOf(err))
	}
	if HintOf(err) == "" {
		t.Error("refusal should carry a hint")
	}

	// Force drops the record but never calls the provisioner.
	res, err := f.handler.Destroy(ctx, name, DestroyOptions{Force: true})
	if err != nil {
		t.Fatalf("forced destroy failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseDestroyed {
		t.Errorf("phase = %q, want destroyed", res.Environment.Phase)
	}
	if f.provisioner.destroyCalls != 0 {
		t.Error("forced destroy of a registered environment must not run the provisioner")
	}
}

func TestDestroyPurgeRemovesRecord(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	ctx := context.Background()

	if _, err := f.handler.Provision(ctx, name); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := f.handler.Destroy(ctx, name, DestroyOptions{Purge: true}); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := f.store.Load(ctx, name); !errors.Is(err, stores.ErrNotFound) {
		t.Errorf("expected record to be purged, got %v", err)
	}
}

func TestDestroyOfNeverProvisionedSkipsProvisioner(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")

	res, err := f.handler.Destroy(context.Background(), name, DestroyOptions{})
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseDestroyed {
		t.Errorf("phase = %q, want destroyed", res.Environment.Phase)
	}
	if f.provisioner.destroyCalls != 0 {
		t.Error("destroy of a never-provisioned environment must not run the provisioner")
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	ctx := context.Background()

	res, err := f.handler.Register(ctx, name, "192.0.2.20")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.Environment.Phase != environment.PhaseProvisioned {
		t.Errorf("phase = %q, want provisioned", res.Environment.Phase)
	}
	if !res.Environment.IsExternallyRegistered() {
		t.Error("registered environment should be marked external")
	}

	persisted := f.loadEnv(t, name)
	if persisted.Outputs.InstanceAddress != "192.0.2.20" {
		t.Errorf("address = %q, want 192.0.2.20", persisted.Outputs.InstanceAddress)
	}
	if !persisted.IsExternallyRegistered() {
		t.Error("external marker should survive a round-trip")
	}
}

func TestRegisterIsIdempotentForSameAddress(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	ctx := context.Background()

	if _, err := f.handler.Register(ctx, name, "192.0.2.20"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	before := f.loadEnv(t, name)

	res, err := f.handler.Register(ctx, name, "192.0.2.20")
	if err != nil {
		t.Fatalf("re-register failed: %v", err)
	}
	if !res.NoOp {
		t.Error("re-registering the same address should be a no-op")
	}
	after := f.loadEnv(t, name)
	if !after.LastTransitionAt.Equal(before.LastTransitionAt) {
		t.Error("no-op re-register must leave the record untouched")
	}

	// A different address is still a phase conflict, not a silent update.
	if _, err := f.handler.Register(ctx, name, "192.0.2.99"); err == nil {
		t.Fatal("re-register with a different address should fail")
	}
	if f.loadEnv(t, name).Outputs.InstanceAddress != "192.0.2.20" {
		t.Error("failed re-register must not change the recorded address")
	}
}

func TestRegisterUnreachableHostStillPersistsWithWarning(t *testing.T) {
	f := newFixture(t)
	name := f.initEnv(t, "web")
	f.transport.connectErr = errors.New("connection refused")

	res, err := f.handler.Register(context.Background(), name, "192.0.2.20")
	if err != nil {
		t.Fatalf("Register should succeed despite the failed check: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", res.Warnings)
	}
	if f.loadEnv(t, name).Phase != environment.PhaseProvisioned {
		t.Error("registration should persist despite the failed check")
	}
}

func TestStatusAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initEnv(t, "alpha")
	f.initEnv(t, "beta")

	env, err := f.handler.Status(ctx, environment.MustName("alpha"))
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if env.Phase != environment.PhaseCreated {
		t.Errorf("phase = %q, want created", env.Phase)
	}

	all, err := f.handler.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("list length = %d, want 2", len(all))
	}

	_, err = f.handler.Status(ctx, environment.MustName("missing"))
	if err == nil {
		t.Fatal("expected status of unknown environment to fail")
	}
	if ClassOf(err) != ClassValidation {
		t.Errorf("class = %q, want validation", ClassOf(err))
	}
}

var _ render.Renderer = (*fakeRenderer)(nil)
