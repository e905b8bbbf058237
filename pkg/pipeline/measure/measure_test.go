package measure_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-evalpipeline/pkg/pipeline/measure"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

func TestDefaultMeasure(t *testing.T) {
	t.Parallel()

	msr := measure.NewDefaultMeasure()
	assert.Nil(t, msr.GetMetric("deploy"))

	mt := msr.AddMetric("deploy")
	mt.AddDuration(1500 * time.Microsecond)
	mt.AddDuration(1500 * time.Microsecond)

	assert.Equal(t, int64(2), msr.GetMetric("deploy").Runs())
	assert.Equal(t, 3*time.Millisecond, msr.GetMetric("deploy").Duration())
	assert.Equal(t, 2*time.Millisecond, msr.GetMetric("deploy").Last())
	assert.Len(t, msr.AllMetrics(), 1)
}

func TestNamesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	msr := measure.NewDefaultMeasure()
	for _, name := range []string{"preprocess", "deploy_b", "deploy_a", "preprocess"} {
		msr.AddMetric(name)
	}

	assert.Equal(t, []string{"preprocess", "deploy_b", "deploy_a"}, msr.Names())
}

func TestDurationRounding(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		elapsed time.Duration
		want    time.Duration
	}{
		"hours":        {elapsed: 2*time.Hour + 10*time.Second, want: 2 * time.Hour},
		"seconds":      {elapsed: 3*time.Second + 400*time.Millisecond, want: 3 * time.Second},
		"milliseconds": {elapsed: 5*time.Millisecond + 200*time.Microsecond, want: 5 * time.Millisecond},
		"nanoseconds":  {elapsed: 12, want: 12},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			msr := measure.NewDefaultMeasure()
			msr.AddMetric("step").AddDuration(tc.elapsed)
			assert.Equal(t, tc.want, msr.GetMetric("step").Duration())
		})
	}
}

func TestPipelineMeasure(t *testing.T) {
	t.Parallel()

	msr := measure.NewDefaultMeasure()
	opt := measure.PipelineMeasure(msr)
	step := &model.StepInfo{Name: "evaluation_a"}

	require.NoError(t, opt.New())
	require.NoError(t, opt.PrepareStep(nil, step))
	require.NotNil(t, msr.GetMetric("evaluation_a"))
	assert.Equal(t, int64(0), msr.GetMetric("evaluation_a").Runs())

	require.NoError(t, opt.OnStepDone(step, time.Second))
	require.NoError(t, opt.OnStepDone(&model.StepInfo{Name: "unprepared"}, time.Second))
	require.NoError(t, opt.Finish())

	assert.Equal(t, int64(1), msr.GetMetric("evaluation_a").Runs())
	assert.Equal(t, time.Second, msr.GetMetric("unprepared").Duration())
}
