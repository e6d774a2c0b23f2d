package irq

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/test"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/testutils"
	"github.com/sholes/drivers/workqueue"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}

func newInterrupt(name string) *board.BasicDigitalInterrupt {
	return board.NewBasicDigitalInterrupt(board.DigitalInterruptConfig{Name: name, Pin: "1"})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTriggerFromString(t *testing.T) {
	for input, expected := range map[string]Trigger{"": TriggerRising, "Rising": TriggerRising, "falling": TriggerFalling, "both": TriggerBoth} {
		trigger, err := TriggerFromString(input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, trigger, test.ShouldEqual, expected)
	}
	_, err := TriggerFromString("level")
	test.That(t, errors.Is(err, driver.ErrInvalidArgument), test.ShouldBeTrue)
}

func TestNoInterruptIsNotPresent(t *testing.T) {
	_, err := NewLine("lm3530", nil, TriggerRising, logging.NewTestLogger(t))
	test.That(t, errors.Is(err, driver.ErrNotPresent), test.ShouldBeTrue)
}

func TestLineFiltersEdges(t *testing.T) {
	ctx := context.Background()
	interrupt := newInterrupt("mag_int")
	line, err := NewLine("akm8973", interrupt, TriggerRising, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	var calls atomic.Int32
	test.That(t, line.Request(func(l *Line) { calls.Inc() }), test.ShouldBeNil)
	defer line.Free()

	test.That(t, interrupt.Tick(ctx, false, 1), test.ShouldBeNil)
	test.That(t, interrupt.Tick(ctx, true, 2), test.ShouldBeNil)
	waitFor(t, func() bool { return calls.Load() == 1 })
	test.That(t, interrupt.Tick(ctx, false, 3), test.ShouldBeNil)
	test.That(t, interrupt.Tick(ctx, true, 4), test.ShouldBeNil)
	waitFor(t, func() bool { return calls.Load() == 2 })
	test.That(t, line.Handled(), test.ShouldEqual, uint64(2))
}

func TestMaskedEdgeIsReplayedOnEnable(t *testing.T) {
	ctx := context.Background()
	interrupt := newInterrupt("als_int")
	line, err := NewLine("lm3530", interrupt, TriggerFalling, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	var calls atomic.Int32
	test.That(t, line.Request(func(l *Line) { calls.Inc() }), test.ShouldBeNil)
	defer line.Free()

	line.DisableNosync()
	line.DisableNosync()
	test.That(t, line.Masked(), test.ShouldBeTrue)
	test.That(t, interrupt.Tick(ctx, false, 1), test.ShouldBeNil)
	test.That(t, interrupt.Tick(ctx, false, 2), test.ShouldBeNil)
	waitFor(t, func() bool {
		line.mu.Lock()
		defer line.mu.Unlock()
		return line.pending
	})

	line.Enable()
	test.That(t, line.Masked(), test.ShouldBeTrue)
	time.Sleep(10 * time.Millisecond)
	test.That(t, calls.Load(), test.ShouldEqual, int32(0))

	// Both masked edges collapse into one delivery.
	line.Enable()
	waitFor(t, func() bool { return calls.Load() == 1 })
	time.Sleep(10 * time.Millisecond)
	test.That(t, calls.Load(), test.ShouldEqual, int32(1))

	// An extra enable is ignored.
	line.Enable()
	test.That(t, line.Masked(), test.ShouldBeFalse)
}

func TestRequestTwiceIsBusy(t *testing.T) {
	interrupt := newInterrupt("shared")
	logger := logging.NewTestLogger(t)
	first, err := NewLine("akm8973", interrupt, TriggerRising, logger)
	test.That(t, err, test.ShouldBeNil)
	second, err := NewLine("lm3530", interrupt, TriggerRising, logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, first.Request(func(*Line) {}), test.ShouldBeNil)
	err = second.Request(func(*Line) {})
	test.That(t, errors.Is(err, driver.ErrBusy), test.ShouldBeTrue)

	first.Free()
	first.Free()
	test.That(t, second.Request(func(*Line) {}), test.ShouldBeNil)
	second.Free()
}

func TestPipelineBalancesMask(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	interrupt := newInterrupt("als_int")
	line, err := NewLine("lm3530", interrupt, TriggerRising, logger)
	test.That(t, err, test.ShouldBeNil)

	q := workqueue.NewQueue("als_wq", logger)
	defer q.Destroy()

	release := make(chan struct{})
	var runs atomic.Int32
	var maskedDuringWork atomic.Bool
	p := NewPipeline(line, q, func(ctx context.Context) {
		maskedDuringWork.Store(line.Masked())
		runs.Inc()
		<-release
	})
	test.That(t, p.Request(), test.ShouldBeNil)
	defer line.Free()

	test.That(t, interrupt.Tick(ctx, true, 1), test.ShouldBeNil)
	waitFor(t, func() bool { return runs.Load() == 1 })
	test.That(t, maskedDuringWork.Load(), test.ShouldBeTrue)

	// Edges while the work runs are held by the mask.
	test.That(t, interrupt.Tick(ctx, true, 2), test.ShouldBeNil)
	close(release)
	q.Flush()
	waitFor(t, func() bool { return runs.Load() == 2 })
	q.Flush()
	test.That(t, line.Masked(), test.ShouldBeFalse)

	p.Kick()
	q.Flush()
	test.That(t, runs.Load(), test.ShouldEqual, int32(3))
	test.That(t, line.Masked(), test.ShouldBeFalse)
}

func TestPipelineCancelReleasesMask(t *testing.T) {
	logger := logging.NewTestLogger(t)
	line, err := NewLine("lm3530", newInterrupt("als_int"), TriggerRising, logger)
	test.That(t, err, test.ShouldBeNil)
	q := workqueue.NewQueue("als_wq", logger)
	defer q.Destroy()

	entered := make(chan struct{})
	release := make(chan struct{})
	blocker := q.NewWork(func(ctx context.Context) {
		close(entered)
		<-release
	})
	blocker.Queue()
	<-entered

	var ran atomic.Bool
	p := NewPipeline(line, q, func(ctx context.Context) { ran.Store(true) })
	p.Kick()
	p.Kick()
	test.That(t, line.Masked(), test.ShouldBeTrue)
	p.CancelSync()
	test.That(t, line.Masked(), test.ShouldBeFalse)
	close(release)
	q.Flush()
	test.That(t, ran.Load(), test.ShouldBeFalse)
}
