package fallback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

func recordWith(fields ...string) entity.ExtractionRecord {
	rec := entity.NewRecord(constants.SourceOCR, 1)
	for _, f := range fields {
		rec.Set(f, entity.FieldValue{Value: 1.0})
	}
	return rec
}

func replies(rs ...func() ([]byte, error)) (Extractor, *atomic.Int32) {
	var calls atomic.Int32
	return ExtractorFunc(func(ctx context.Context, in Input) ([]byte, error) {
		n := int(calls.Add(1)) - 1
		if n >= len(rs) {
			n = len(rs) - 1
		}
		return rs[n]()
	}), &calls
}

func reply(s string) func() ([]byte, error) { return func() ([]byte, error) { return []byte(s), nil } }
func failure(err error) func() ([]byte, error) { return func() ([]byte, error) { return nil, err } }

func fast(opts ...Option) []Option {
	return append([]Option{WithInitialBackoff(time.Millisecond)}, opts...)
}

func TestDefaults(t *testing.T) {
	o := New(nil)
	assert.Equal(t, 0.70, o.Threshold())
	assert.Equal(t, 0.70, DefaultThreshold)
	assert.Equal(t, 3, DefaultMaxRetries)
}

func TestShouldTrigger(t *testing.T) {
	ex, _ := replies(reply(`{}`))
	five := []string{
		constants.FieldSystolic, constants.FieldDiastolic, constants.FieldTotalCholesterol,
		constants.FieldFastingGlucose, constants.FieldBMI, constants.FieldHeartRate,
	}

	atThreshold := New(ex, WithThreshold(5.0/7))
	assert.False(t, atThreshold.ShouldTrigger(recordWith(five...)), "score equal to threshold")
	assert.True(t, atThreshold.ShouldTrigger(recordWith(five[:5]...)))

	dflt := New(ex)
	assert.False(t, dflt.ShouldTrigger(recordWith(five...)))
	assert.True(t, dflt.ShouldTrigger(recordWith(five[:5]...)))
	assert.True(t, dflt.ShouldTrigger(recordWith()))

	assert.False(t, New(ex, WithEnabled(false)).ShouldTrigger(recordWith()))
	assert.False(t, New(nil).ShouldTrigger(recordWith()))
}

func TestRunUnwrapsAndCoerces(t *testing.T) {
	ex, calls := replies(reply("Here is the data:\n```json\n" +
		`{"blood_pressure": "120/80", "cholesterol": "210 mg/dL", "heart_rate": 72,` +
		` "sex": "female", "examination_date": "2024-11-15", "tsh": 2.1}` + "\n```"))

	res := New(ex, fast()...).Run(context.Background(), Input{Text: "report"})

	assert.False(t, res.Exhausted)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, res.Errors)

	rec := res.Record
	assert.Equal(t, constants.SourceFallback, rec.Source)
	assert.Equal(t, DefaultConfidence, rec.Confidence)
	assert.Equal(t, 120.0, rec.Fields[constants.FieldSystolic].Value)
	assert.Equal(t, 80.0, rec.Fields[constants.FieldDiastolic].Value)
	assert.False(t, rec.Has(constants.FieldBloodPressure))
	assert.Equal(t, 210.0, rec.Fields[constants.FieldTotalCholesterol].Value)
	assert.Equal(t, "mg/dL", rec.Fields[constants.FieldTotalCholesterol].Unit)
	assert.Equal(t, 72.0, rec.Fields[constants.FieldHeartRate].Value)
	assert.Equal(t, "F", rec.Fields[constants.FieldSex].Value)
	assert.Equal(t, "2024-11-15", rec.Fields[constants.FieldTestDate].Value)
	assert.Equal(t, 6, rec.Len())
}

func TestRunDropsUncoercibleValuesWithoutRetry(t *testing.T) {
	ex, calls := replies(reply(`{"bmi": "n/a", "heart_rate": 70, "smoking": "sometimes"}`))

	res := New(ex, fast()...).Run(context.Background(), Input{})

	assert.False(t, res.Exhausted)
	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.Contains(t, e, "FIELD_COERCION_ERROR")
	}
	assert.False(t, res.Record.Has(constants.FieldBMI))
	assert.False(t, res.Record.Has(constants.FieldSmokingStatus))
	assert.True(t, res.Record.Has(constants.FieldHeartRate))
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	ex, calls := replies(
		failure(errors.New("503")),
		reply("I could not read that document."),
		reply(`{"glucose": 95}`),
	)

	res := New(ex, fast()...).Run(context.Background(), Input{})

	assert.False(t, res.Exhausted)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 95.0, res.Record.Fields[constants.FieldFastingGlucose].Value)
}

func TestRunExhaustion(t *testing.T) {
	ex, calls := replies(failure(errors.New("boom")))

	res := New(ex, fast()...).Run(context.Background(), Input{})

	assert.True(t, res.Exhausted)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 0, res.Record.Len())
	assert.Equal(t, constants.SourceFallback, res.Record.Source)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "FALLBACK_EXHAUSTED")
}

func TestRunEmptyObjectIsRetried(t *testing.T) {
	ex, calls := replies(reply(`{}`), reply(`{"spo2": "97%"}`))

	res := New(ex, fast(WithMaxRetries(2))...).Run(context.Background(), Input{})

	assert.False(t, res.Exhausted)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 97.0, res.Record.Fields[constants.FieldOxygenSaturation].Value)
}

func TestRunMistypedValuesAreDroppedWithoutRetry(t *testing.T) {
	ex, calls := replies(reply(`{"total_cholesterol": 210, "heart_rate": 72, "identifier": 123456789, "sex": 1}`))

	res := New(ex, fast()...).Run(context.Background(), Input{})

	assert.False(t, res.Exhausted)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 210.0, res.Record.Fields[constants.FieldTotalCholesterol].Value)
	assert.Equal(t, 72.0, res.Record.Fields[constants.FieldHeartRate].Value)
	assert.False(t, res.Record.Has(constants.FieldIdentifier))
	assert.False(t, res.Record.Has(constants.FieldSex))
	require.Len(t, res.Errors, 2)
	for _, msg := range res.Errors {
		assert.Contains(t, msg, "FIELD_COERCION_ERROR")
	}
	assert.Contains(t, res.Errors[0], constants.FieldIdentifier)
	assert.Contains(t, res.Errors[1], constants.FieldSex)
}

func TestRunArrayValueIsDroppedNotRetried(t *testing.T) {
	ex, calls := replies(reply(`{"heart_rate": [70, 72]}`))

	res := New(ex, fast(WithMaxRetries(2))...).Run(context.Background(), Input{})

	assert.False(t, res.Exhausted)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, res.Record.Len())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "FIELD_COERCION_ERROR")
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ex, calls := replies(reply(`{"bmi": 22}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(ex, fast()...).Run(ctx, Input{})

	assert.True(t, res.Exhausted)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRunCancellationDoesNotAbortInFlightAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attemptErr error
	var calls atomic.Int32
	ex := ExtractorFunc(func(actx context.Context, in Input) ([]byte, error) {
		calls.Add(1)
		cancel()
		attemptErr = actx.Err()
		return nil, errors.New("upstream failure")
	})

	res := New(ex, fast()...).Run(ctx, Input{})

	assert.NoError(t, attemptErr, "attempt context must survive caller cancellation")
	assert.Equal(t, int32(1), calls.Load(), "no new attempt after cancellation")
	assert.True(t, res.Exhausted)
}

func TestRunAttemptTimeout(t *testing.T) {
	ex := ExtractorFunc(func(actx context.Context, in Input) ([]byte, error) {
		<-actx.Done()
		return nil, actx.Err()
	})

	res := New(ex, fast(WithMaxRetries(1), WithAttemptTimeout(5*time.Millisecond))...).Run(context.Background(), Input{})

	assert.True(t, res.Exhausted)
	assert.Contains(t, res.Errors[0], "deadline exceeded")
}

func TestRunUsesModelConfidence(t *testing.T) {
	ex, _ := replies(reply(`{"bmi": 22, "confidence": 0.55}`))
	res := New(ex, fast()...).Run(context.Background(), Input{})
	assert.Equal(t, 0.55, res.Record.Confidence)
	assert.False(t, res.Record.Has("confidence"))
}

func TestCoerceExplicitPressureBeatsCompound(t *testing.T) {
	rec, problems := Coerce(map[string]any{
		constants.FieldBloodPressure: "130/85",
		constants.FieldSystolic:      "128 mmHg",
	}, 0.8)
	assert.Empty(t, problems)
	assert.Equal(t, 128.0, rec.Fields[constants.FieldSystolic].Value)
	assert.Equal(t, 85.0, rec.Fields[constants.FieldDiastolic].Value)
}

func TestCoerceObjectPressureAndEnums(t *testing.T) {
	rec, problems := Coerce(map[string]any{
		constants.FieldBloodPressure:      map[string]any{"systolic": 118.0, "diastolic": "76"},
		constants.FieldSmokingStatus:      false,
		constants.FieldAlcoholConsumption: "Yes",
		constants.FieldExercisePeriod:     "Weekly",
		constants.FieldTestDate:           "113年11月15日",
		constants.FieldHeartRate:          -3.0,
	}, 0.8)

	assert.Equal(t, 118.0, rec.Fields[constants.FieldSystolic].Value)
	assert.Equal(t, 76.0, rec.Fields[constants.FieldDiastolic].Value)
	assert.Equal(t, "never", rec.Fields[constants.FieldSmokingStatus].Value)
	assert.Equal(t, "yes", rec.Fields[constants.FieldAlcoholConsumption].Value)
	assert.Equal(t, "weekly", rec.Fields[constants.FieldExercisePeriod].Value)
	assert.Equal(t, "2024-11-15", rec.Fields[constants.FieldTestDate].Value)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], constants.FieldHeartRate)
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose", `Sure! {"a":{"b":2}} Hope that helps.`, `{"a":{"b":2}}`, false},
		{"none", "no json here", "", true},
		{"reversed", "} {", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unwrap([]byte(tt.in))
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return "status" }
func (e statusErr) Retryable() bool { return e.code >= 500 }

func TestRunStopsOnPermanentProviderError(t *testing.T) {
	ex, calls := replies(failure(statusErr{code: 401}))

	res := New(ex, fast()...).Run(context.Background(), Input{})

	assert.True(t, res.Exhausted)
	assert.Equal(t, int32(1), calls.Load())
}
