package supervisor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/memmon"
	"github.com/lambda-feedback/shepherd/internal/notify"
	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/restart"
	"github.com/lambda-feedback/shepherd/util"
)

const waitFor = 5 * time.Second

type MockSampler struct {
	mock.Mock
}

func (m *MockSampler) RSS(ctx context.Context, pid int) (uint64, error) {
	args := m.Called(ctx, pid)
	return args.Get(0).(uint64), args.Error(1)
}

func testConfig() Config {
	return Config{
		StopTimeout: time.Second,
		Restart: restart.Config{
			BaseDelay:       10 * time.Millisecond,
			MaxDelay:        50 * time.Millisecond,
			StabilityWindow: 30 * time.Second,
			FlapWindow:      time.Minute,
			MaxCrashes:      100,
		},
		Memory: memmon.Config{Interval: 20 * time.Millisecond},
	}
}

func newTestSupervisor(t *testing.T, config Config, sampler memmon.Sampler, notifier notify.Notifier) *Supervisor {
	if sampler == nil {
		s := new(MockSampler)
		s.On("RSS", mock.Anything, mock.Anything).Return(uint64(1024), nil)
		sampler = s
	}

	sv := New(Params{
		Config:   config,
		Notifier: notifier,
		Sampler:  sampler,
		Log:      zaptest.NewLogger(t),
	})

	t.Cleanup(func() {
		_ = sv.Shutdown(context.Background())
	})

	return sv
}

func testDescriptor(t *testing.T, name, script string, args ...string) *descriptor.Descriptor {
	dir := t.TempDir()
	return &descriptor.Descriptor{
		Name:        name,
		Cwd:         dir,
		Script:      script,
		Args:        args,
		Env:         map[string]string{},
		Instances:   1,
		AutoRestart: true,
		Logs: descriptor.LogPaths{
			Out: filepath.Join(dir, name+"-out.log"),
			Err: filepath.Join(dir, name+"-error.log"),
		},
	}
}

func load(t *testing.T, sv *Supervisor, descs ...*descriptor.Descriptor) *ReloadResult {
	result, err := sv.Reload(context.Background(), descs)
	require.NoError(t, err)
	return result
}

func status(t *testing.T, sv *Supervisor, name string) process.Snapshot {
	snapshots, err := sv.Status(name)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	return snapshots[0]
}

func TestSupervisor_Start_ReportsRunning(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)
	load(t, sv, testDescriptor(t, "api", "sleep", "30"))

	s := status(t, sv, "api")
	assert.Equal(t, process.Running, s.State)
	assert.NotZero(t, s.PID)
	assert.True(t, util.IsProcessAlive(s.PID))

	// starting a running app is a no-op
	require.NoError(t, sv.Start(context.Background(), "api"))
	assert.Equal(t, s.PID, status(t, sv, "api").PID)
}

func TestSupervisor_UnknownApp(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)

	assert.ErrorIs(t, sv.Start(context.Background(), "ghost"), ErrAppNotFound)
	assert.ErrorIs(t, sv.Stop(context.Background(), "ghost"), ErrAppNotFound)
	assert.ErrorIs(t, sv.Restart(context.Background(), "ghost"), ErrAppNotFound)

	_, err := sv.Status("ghost")
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestSupervisor_Stop_IsIdempotent(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)
	load(t, sv, testDescriptor(t, "api", "sleep", "30"))

	pid := status(t, sv, "api").PID

	require.NoError(t, sv.Stop(context.Background(), "api"))
	assert.Equal(t, process.Stopped, status(t, sv, "api").State)
	assert.False(t, util.IsProcessAlive(pid))

	require.NoError(t, sv.Stop(context.Background(), "api"))
	assert.Equal(t, process.Stopped, status(t, sv, "api").State)
}

func TestSupervisor_Start_MissingCwd(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)

	desc := testDescriptor(t, "api", "sleep", "30")
	desc.Cwd = filepath.Join(desc.Cwd, "missing")

	_, err := sv.Reload(context.Background(), []*descriptor.Descriptor{desc})

	var configErr *descriptor.ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "cwd", configErr.Field)
	assert.Equal(t, process.Stopped, status(t, sv, "api").State)
}

func TestSupervisor_Restart_SpawnsNewProcess(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)
	load(t, sv, testDescriptor(t, "api", "sleep", "30"))

	pid := status(t, sv, "api").PID

	require.NoError(t, sv.Restart(context.Background(), "api"))

	s := status(t, sv, "api")
	assert.Equal(t, process.Running, s.State)
	assert.NotEqual(t, pid, s.PID)
	assert.Equal(t, 1, s.Restarts)
}

func TestSupervisor_Crash_RestartsProcess(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)

	// crashes on the first run only
	desc := testDescriptor(t, "api", "sh", "-c", "if [ -f marker ]; then sleep 30; else touch marker; exit 1; fi")
	load(t, sv, desc)

	require.Eventually(t, func() bool {
		s := status(t, sv, "api")
		return s.State == process.Running && s.Restarts == 1
	}, waitFor, 10*time.Millisecond)

	s := status(t, sv, "api")
	require.NotNil(t, s.LastExit)
	require.NotNil(t, s.LastExit.Code)
	assert.Equal(t, 1, *s.LastExit.Code)
}

func TestSupervisor_Crash_AutoRestartDisabled(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)

	desc := testDescriptor(t, "job", "sh", "-c", "exit 2")
	desc.AutoRestart = false
	load(t, sv, desc)

	require.Eventually(t, func() bool {
		return status(t, sv, "job").State == process.Stopped
	}, waitFor, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, status(t, sv, "job").Restarts)
}

func TestSupervisor_Crash_GivesUpWhenFlapping(t *testing.T) {
	config := testConfig()
	config.Restart.MaxCrashes = 3

	var (
		mu       sync.Mutex
		notified []error
	)
	notifier := notify.Func(func(app string, err error) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, err)
	})

	sv := newTestSupervisor(t, config, nil, notifier)
	load(t, sv, testDescriptor(t, "api", "sh", "-c", "exit 1"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 1
	}, waitFor, 10*time.Millisecond)

	s := status(t, sv, "api")
	assert.Equal(t, process.Stopped, s.State)
	assert.Equal(t, 3, s.Restarts)
	assert.Contains(t, s.LastError, restart.ErrFlapDetected.Error())

	mu.Lock()
	assert.ErrorIs(t, notified[0], restart.ErrFlapDetected)
	mu.Unlock()
}

func TestSupervisor_Crash_PerAppMaxRestarts(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)

	desc := testDescriptor(t, "api", "sh", "-c", "exit 1")
	desc.MaxRestarts = 1
	load(t, sv, desc)

	require.Eventually(t, func() bool {
		s := status(t, sv, "api")
		return s.State == process.Stopped && s.LastError != "" && s.Restarts == 1
	}, waitFor, 10*time.Millisecond)
}

func TestSupervisor_Memory_RestartIsNotACrash(t *testing.T) {
	config := testConfig()
	config.Restart.MaxCrashes = 1

	sampler := new(MockSampler)
	sampler.On("RSS", mock.Anything, mock.Anything).Return(uint64(64<<20), nil)

	sv := newTestSupervisor(t, config, sampler, nil)

	desc := testDescriptor(t, "api", "sleep", "30")
	desc.MaxMemory = 32 << 20
	load(t, sv, desc)

	require.Eventually(t, func() bool {
		return status(t, sv, "api").Restarts >= 3
	}, waitFor, 10*time.Millisecond)

	sv.mu.RLock()
	a := sv.apps["api"]
	sv.mu.RUnlock()

	assert.Zero(t, a.list()[0].history.Crashes())
	assert.NotContains(t, status(t, sv, "api").LastError, restart.ErrFlapDetected.Error())
}

func TestSupervisor_Memory_RecordsSamples(t *testing.T) {
	sampler := new(MockSampler)
	sampler.On("RSS", mock.Anything, mock.Anything).Return(uint64(4096), nil)

	sv := newTestSupervisor(t, testConfig(), sampler, nil)

	desc := testDescriptor(t, "api", "sleep", "30")
	desc.MaxMemory = 1 << 30
	load(t, sv, desc)

	require.Eventually(t, func() bool {
		return status(t, sv, "api").Memory == 4096
	}, waitFor, 10*time.Millisecond)

	assert.Zero(t, status(t, sv, "api").Restarts)
}

func TestSupervisor_Instances(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)

	desc := testDescriptor(t, "worker", "sleep", "30")
	desc.Instances = 3
	load(t, sv, desc)

	snapshots, err := sv.Status("worker")
	require.NoError(t, err)
	require.Len(t, snapshots, 3)

	pids := map[int]bool{}
	for i, s := range snapshots {
		assert.Equal(t, i, s.Instance)
		assert.Equal(t, process.Running, s.State)
		pids[s.PID] = true
	}
	assert.Len(t, pids, 3)
}

func TestSupervisor_StatusAll_IsSorted(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)
	load(t, sv,
		testDescriptor(t, "web", "sleep", "30"),
		testDescriptor(t, "api", "sleep", "30"),
	)

	snapshots := sv.StatusAll()
	require.Len(t, snapshots, 2)
	assert.Equal(t, "api", snapshots[0].Name)
	assert.Equal(t, "web", snapshots[1].Name)
}

func TestSupervisor_ConcurrentOperations(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)
	load(t, sv, testDescriptor(t, "api", "sleep", "30"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = sv.Restart(context.Background(), "api")
		}()
		go func() {
			defer wg.Done()
			_ = sv.Stop(context.Background(), "api")
		}()
	}
	wg.Wait()

	s := status(t, sv, "api")
	assert.Contains(t, []process.State{process.Running, process.Stopped}, s.State)
	if s.State == process.Running {
		assert.True(t, util.IsProcessAlive(s.PID))
	}
}

func TestSupervisor_Shutdown_StopsAllApps(t *testing.T) {
	sv := newTestSupervisor(t, testConfig(), nil, nil)
	load(t, sv,
		testDescriptor(t, "api", "sleep", "30"),
		testDescriptor(t, "web", "sleep", "30"),
	)

	var pids []int
	for _, s := range sv.StatusAll() {
		pids = append(pids, s.PID)
	}

	require.NoError(t, sv.Shutdown(context.Background()))

	for _, pid := range pids {
		assert.False(t, util.IsProcessAlive(pid))
	}

	assert.ErrorIs(t, sv.Start(context.Background(), "api"), ErrShutdown)

	_, err := sv.Reload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrShutdown)
}

func assertNothingRunning(t *testing.T, sv *Supervisor) {
	t.Helper()

	for _, s := range sv.StatusAll() {
		assert.NotEqual(t, process.Running, s.State, "%s/%d", s.Name, s.Instance)
		assert.Zero(t, s.PID, "%s/%d", s.Name, s.Instance)
	}
}

func TestSupervisor_Shutdown_RacingReload(t *testing.T) {
	for i := 0; i < 25; i++ {
		sv := newTestSupervisor(t, testConfig(), nil, nil)

		descs := []*descriptor.Descriptor{
			testDescriptor(t, "a", "sleep", "30"),
			testDescriptor(t, "b", "sleep", "30"),
			testDescriptor(t, "c", "sleep", "30"),
			testDescriptor(t, "d", "sleep", "30"),
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = sv.Reload(context.Background(), descs)
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Duration(i%3) * time.Millisecond)
			assert.NoError(t, sv.Shutdown(context.Background()))
		}()
		wg.Wait()

		assertNothingRunning(t, sv)
	}
}

func TestSupervisor_Shutdown_RacingStart(t *testing.T) {
	for i := 0; i < 25; i++ {
		sv := newTestSupervisor(t, testConfig(), nil, nil)

		desc := testDescriptor(t, "api", "sleep", "30")
		load(t, sv, desc)
		require.NoError(t, sv.Stop(context.Background(), "api"))

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = sv.Start(context.Background(), "api")
		}()
		go func() {
			defer wg.Done()
			_ = sv.Restart(context.Background(), "api")
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Duration(i%3) * time.Millisecond)
			assert.NoError(t, sv.Shutdown(context.Background()))
		}()
		wg.Wait()

		assertNothingRunning(t, sv)
	}
}
