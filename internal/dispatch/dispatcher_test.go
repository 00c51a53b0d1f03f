package dispatch

import (
	"context"
	"github.com/pgvanniekerk/ezbalance/internal/executor"
	"github.com/stretchr/testify/suite"
	"sync"
	"testing"
	"time"
)

// testTask is a minimal worker.Task used to observe routing.
type testTask struct {
	ctx    context.Context
	fn     func()
	mu     sync.Mutex
	ran    bool
	failed error
}

func newTestTask(ctx context.Context, fn func()) *testTask {
	return &testTask{ctx: ctx, fn: fn}
}

func (t *testTask) Run() {
	if t.fn != nil {
		t.fn()
	}
	t.mu.Lock()
	t.ran = true
	t.mu.Unlock()
}

func (t *testTask) Fail(err error) {
	t.mu.Lock()
	t.failed = err
	t.mu.Unlock()
}

func (t *testTask) Context() context.Context {
	return t.ctx
}

func (t *testTask) state() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ran, t.failed
}

// TestDispatcher_TestSuite executes the test suite for the Dispatcher type.
func TestDispatcher_TestSuite(t *testing.T) {
	suite.Run(t, new(Dispatcher_TestSuite))
}

// Dispatcher_TestSuite tests the Dispatcher type.
type Dispatcher_TestSuite struct {
	suite.Suite

	workers []*executor.Worker
	d       *Dispatcher
}

// newWorkers creates n unstarted workers with the given threshold.
func (s *Dispatcher_TestSuite) newWorkers(n, threshold int) {
	s.workers = make([]*executor.Worker, n)
	for i := range s.workers {
		s.workers[i] = executor.New(i, executor.Options{})
		s.Require().NoError(s.workers[i].SetThreshold(threshold))
	}

	d, err := New(s.workers, Options{})
	s.Require().NoError(err)
	s.d = d
}

// start starts every worker and the dispatcher.
func (s *Dispatcher_TestSuite) start() {
	for _, w := range s.workers {
		s.Require().NoError(w.Start())
	}
	s.Require().NoError(s.d.Start())
}

// shutdown drains the dispatcher first, then every worker.
func (s *Dispatcher_TestSuite) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.Require().NoError(s.d.StopAndJoin(ctx))
	for _, w := range s.workers {
		s.Require().NoError(w.StopAndJoin(ctx))
	}
}

// gate submits a blocking task directly to w and waits until it is running.
func (s *Dispatcher_TestSuite) gate(w *executor.Worker) func() {
	started := make(chan struct{})
	release := make(chan struct{})
	w.Submit(newTestTask(context.Background(), func() {
		close(started)
		<-release
	}))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		s.FailNow("gate task never started")
	}
	return func() { close(release) }
}

// TestDispatcher_RequiresWorkers ensures an empty routing table is rejected.
func (s *Dispatcher_TestSuite) TestDispatcher_RequiresWorkers() {
	_, err := New(nil, Options{})
	s.Require().ErrorIs(err, ErrNoWorkers)
}

// TestDispatcher_InitialPermits ensures the semaphore starts with one permit per worker.
func (s *Dispatcher_TestSuite) TestDispatcher_InitialPermits() {
	s.newWorkers(4, 2)
	s.Require().Equal(int64(4), s.d.PermitsAvailable())
}

// TestDispatcher_LeastLoaded ensures the shortest queue wins and ties go to the
// lowest index.
func (s *Dispatcher_TestSuite) TestDispatcher_LeastLoaded() {
	s.newWorkers(3, 0)

	s.Require().Equal(0, s.d.leastLoaded())

	s.workers[0].Submit(newTestTask(context.Background(), nil))
	s.Require().Equal(1, s.d.leastLoaded())

	s.workers[1].Submit(newTestTask(context.Background(), nil))
	s.Require().Equal(2, s.d.leastLoaded())

	s.workers[2].Submit(newTestTask(context.Background(), nil))
	s.Require().Equal(0, s.d.leastLoaded())

	s.workers[0].Submit(newTestTask(context.Background(), nil))
	s.workers[2].Submit(newTestTask(context.Background(), nil))
	s.Require().Equal(1, s.d.leastLoaded())
}

// TestDispatcher_RoutesEveryTask ensures every submitted task is routed and run.
func (s *Dispatcher_TestSuite) TestDispatcher_RoutesEveryTask() {
	s.newWorkers(4, 2)
	s.start()

	tasks := make([]*testTask, 200)
	for i := range tasks {
		tasks[i] = newTestTask(context.Background(), nil)
		s.d.Submit(tasks[i])
	}

	s.shutdown()

	for i, task := range tasks {
		ran, err := task.state()
		s.Require().True(ran, "task %d did not run", i)
		s.Require().NoError(err)
	}
	s.Require().Equal(uint64(200), s.d.Routed())
	s.Require().Equal(uint64(0), s.d.Dropped())

	var executed uint64
	for _, w := range s.workers {
		executed += w.Stats().Executed
	}
	s.Require().Equal(uint64(200), executed)
}

// TestDispatcher_Backpressure ensures routing stalls once every worker is full
// and resumes once a worker drains.
func (s *Dispatcher_TestSuite) TestDispatcher_Backpressure() {
	s.newWorkers(2, 1)
	s.start()

	release0 := s.gate(s.workers[0])
	release1 := s.gate(s.workers[1])

	a := newTestTask(context.Background(), nil)
	b := newTestTask(context.Background(), nil)
	c := newTestTask(context.Background(), nil)
	s.d.Submit(a)
	s.d.Submit(b)
	s.d.Submit(c)

	// a fills worker 0, b fills worker 1 and the dispatcher then waits for a permit.
	s.Require().Eventually(func() bool {
		return s.workers[0].QueueDepth() == 1 && s.workers[1].QueueDepth() == 1
	}, 5*time.Second, time.Millisecond)

	s.Require().Never(func() bool {
		return s.d.Routed() > 1
	}, 100*time.Millisecond, 5*time.Millisecond)
	s.Require().Equal(1, s.d.QueueDepth())

	release0()
	release1()

	s.shutdown()

	for _, task := range []*testTask{a, b, c} {
		ran, err := task.state()
		s.Require().True(ran)
		s.Require().NoError(err)
	}
	s.Require().Equal(uint64(3), s.d.Routed())
}

// TestDispatcher_DropOnCancelledContext ensures a task whose context ends while
// waiting for a permit is failed instead of being left pending.
func (s *Dispatcher_TestSuite) TestDispatcher_DropOnCancelledContext() {
	s.newWorkers(2, 1)

	// Take every permit so routing has to wait.
	s.Require().True(s.d.permits.TryAcquire())
	s.Require().True(s.d.permits.TryAcquire())

	s.start()

	ctx, cancel := context.WithCancel(context.Background())
	task := newTestTask(ctx, nil)
	s.d.Submit(task)

	time.Sleep(20 * time.Millisecond)
	cancel()

	s.Require().Eventually(func() bool {
		_, err := task.state()
		return err != nil
	}, 5*time.Second, time.Millisecond)

	ran, err := task.state()
	s.Require().False(ran)
	s.Require().ErrorIs(err, ErrDispatchAborted)
	s.Require().ErrorIs(err, context.Canceled)
	s.Require().Equal(uint64(1), s.d.Dropped())

	s.d.permits.Release()
	s.d.permits.Release()
	s.shutdown()
}

// TestDispatcher_ManyTasksSmallPool ensures heavy oversubscription of a tiny pool
// still completes.
func (s *Dispatcher_TestSuite) TestDispatcher_ManyTasksSmallPool() {
	s.newWorkers(2, 1)
	s.start()

	const n = 10 * 1 * 2 * 50
	tasks := make([]*testTask, n)
	for i := range tasks {
		tasks[i] = newTestTask(context.Background(), nil)
		s.d.Submit(tasks[i])
	}

	s.shutdown()

	for i, task := range tasks {
		ran, _ := task.state()
		s.Require().True(ran, "task %d did not run", i)
	}
}
