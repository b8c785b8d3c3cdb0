package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-builder/internal/assembler"
	"resume-builder/internal/extractor"
	"resume-builder/internal/interview"
	"resume-builder/internal/types"
)

func exampleScript(t *testing.T, allowEarlyFinish bool) *interview.Script {
	t.Helper()
	s, err := interview.NewScript([]interview.Question{
		{ID: "name", Prompt: "What is your full name?", Field: types.FieldName},
		{ID: "title", Prompt: "What is your title?", Field: types.FieldTitle},
		{ID: "skills", Prompt: "What are your skills?", Field: types.FieldSkills, Optional: true},
	}, interview.WithEarlyFinish(allowEarlyFinish))
	require.NoError(t, err)
	return s
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func startedSession(t *testing.T, script *interview.Script, opts Options) *Session {
	t.Helper()
	s := New("sess-1", script, opts)
	_, err := s.Start()
	require.NoError(t, err)
	return s
}

func TestStartReturnsFirstQuestion(t *testing.T) {
	s := New("sess-1", exampleScript(t, true), Options{})

	prompt, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, "What is your full name?", prompt)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, 0, s.Cursor())

	_, err = s.Start()
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitBeforeStart(t *testing.T) {
	s := New("sess-1", exampleScript(t, true), Options{})
	_, err := s.SubmitAnswer(context.Background(), extractor.NewRules(), "Jane Smith")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestWorkedExampleAnsweringOptional(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, true), Options{})
	ext := extractor.NewRules()

	res, err := s.SubmitAnswer(ctx, ext, "Jane Smith")
	require.NoError(t, err)
	assert.Equal(t, StateActive, res.State)
	assert.Equal(t, "What is your title?", res.NextPrompt)
	assert.False(t, res.Completed)

	res, err = s.SubmitAnswer(ctx, ext, "Backend Engineer")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, res.State)
	assert.Equal(t, "What are your skills?", res.NextPrompt)
	assert.Contains(t, res.Acknowledgement, DefaultTriggerPhrase)
	assert.False(t, res.Completed)

	res, err = s.SubmitAnswer(ctx, ext, "python, go")
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, StateCompleted, res.State)
	assert.Empty(t, res.NextPrompt)
	assert.Equal(t, []string{"python", "go"}, s.Draft().Skills)
}

func TestWorkedExampleTriggerPhrase(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, true), Options{})
	ext := extractor.NewRules()

	_, err := s.SubmitAnswer(ctx, ext, "Jane Smith")
	require.NoError(t, err)
	_, err = s.SubmitAnswer(ctx, ext, "Backend Engineer")
	require.NoError(t, err)
	require.Equal(t, StateAwaitingConfirmation, s.State())

	res, err := s.SubmitAnswer(ctx, ext, "  Generate My Resume! ")
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, []string{}, s.Draft().Skills)

	// 完成后不能再回答
	_, err = s.SubmitAnswer(ctx, ext, "python")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestTriggerPhraseIgnoredWhileRequiredMissing(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, true), Options{})
	ext := &countingExtractor{inner: extractor.NewRules()}

	res, err := s.SubmitAnswer(ctx, ext, "generate my resume")
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, StateActive, res.State)
	assert.Equal(t, "What is your full name?", res.NextPrompt)
	assert.Equal(t, ackRequiredFirst, res.Acknowledgement)
	assert.Equal(t, 0, ext.calls)
	assert.Empty(t, s.Answers())
}

func TestNoEarlyFinishWithoutScriptPermission(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, false), Options{})
	ext := extractor.NewRules()

	_, err := s.SubmitAnswer(ctx, ext, "Jane Smith")
	require.NoError(t, err)
	res, err := s.SubmitAnswer(ctx, ext, "Backend Engineer")
	require.NoError(t, err)
	assert.Equal(t, StateActive, res.State)

	res, err = s.SubmitAnswer(ctx, ext, "generate my resume")
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, StateActive, res.State)
}

func TestRequiredOnlyScriptCompletesAfterRequiredTurns(t *testing.T) {
	script, err := interview.NewScript([]interview.Question{
		{ID: "name", Prompt: "Name?", Field: types.FieldName},
		{ID: "title", Prompt: "Title?", Field: types.FieldTitle},
		{ID: "email", Prompt: "Email?", Field: types.FieldEmail},
	})
	require.NoError(t, err)
	s := startedSession(t, script, Options{})
	ext := extractor.NewRules()

	turns := 0
	for _, answer := range []string{"Jane Smith", "Backend Engineer", "jane@example.com"} {
		res, err := s.SubmitAnswer(context.Background(), ext, answer)
		require.NoError(t, err)
		turns++
		if res.Completed {
			break
		}
	}
	assert.Equal(t, script.RequiredCount(), turns)
	assert.Equal(t, StateCompleted, s.State())
}

func TestEmptyTextRepeatsPromptWithoutMutation(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, true), Options{})
	ext := &countingExtractor{inner: extractor.NewRules()}
	before := s.Snapshot()

	res, err := s.SubmitAnswer(ctx, ext, "   \t")
	require.NoError(t, err)
	assert.Equal(t, "What is your full name?", res.NextPrompt)
	assert.Empty(t, res.Acknowledgement)
	assert.Equal(t, 0, ext.calls)
	assert.Equal(t, before, s.Snapshot())
}

func TestUnrecognizedKeepsCursor(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, true), Options{})

	res, err := s.SubmitAnswer(ctx, extractor.NewRules(), "555-0100 ext 12!")
	require.NoError(t, err)
	assert.False(t, res.Recognized)
	assert.Equal(t, ackClarify, res.Acknowledgement)
	assert.Equal(t, "What is your full name?", res.NextPrompt)
	assert.Equal(t, 0, s.Cursor())
	assert.Empty(t, s.Answers())
}

func TestExtractionTimeoutTreatedAsUnrecognized(t *testing.T) {
	s := startedSession(t, exampleScript(t, true), Options{ExtractTimeout: 20 * time.Millisecond})
	slow := extractor.Func(func(ctx context.Context, text string, field types.FieldID) (types.Answers, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	res, err := s.SubmitAnswer(context.Background(), slow, "Jane Smith")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, res.Recognized)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, 0, s.Cursor())
}

func TestExtractionTimeoutWithExtractorIgnoringContext(t *testing.T) {
	s := startedSession(t, exampleScript(t, true), Options{ExtractTimeout: 20 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)
	stubborn := extractor.Func(func(_ context.Context, text string, field types.FieldID) (types.Answers, error) {
		<-release
		return types.Answers{types.FieldName: types.TextValue("Too Late")}, nil
	})

	start := time.Now()
	res, err := s.SubmitAnswer(context.Background(), stubborn, "Jane Smith")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, res.Recognized)
	assert.Equal(t, 0, s.Cursor())
	assert.Empty(t, s.Answers())
}

func TestMultiFieldAnswerSkipsAnsweredQuestions(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, true), Options{})

	res, err := s.SubmitAnswer(ctx, extractor.NewRules(), "John Doe, Software Engineer")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, res.State)
	assert.Equal(t, "What are your skills?", res.NextPrompt)
	assert.Equal(t, "John Doe", s.Draft().Name)
	assert.Equal(t, "Software Engineer", s.Draft().Title)
}

func TestSkipOnlyAppliesToOptionalQuestions(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, true), Options{})
	ext := extractor.NewRules()

	// 必填问题不能跳过
	res, err := s.SubmitAnswer(ctx, ext, "n/a")
	require.NoError(t, err)
	assert.False(t, res.Recognized)
	assert.Equal(t, 0, s.Cursor())

	_, err = s.SubmitAnswer(ctx, ext, "Jane Smith")
	require.NoError(t, err)

	res, err = s.SubmitAnswer(ctx, ext, "skip")
	require.NoError(t, err)
	assert.False(t, res.Recognized)
	assert.Equal(t, 1, s.Cursor())
	assert.Empty(t, s.Draft().Title)

	_, err = s.SubmitAnswer(ctx, ext, "Backend Engineer")
	require.NoError(t, err)

	res, err = s.SubmitAnswer(ctx, ext, "Skip")
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, []string{}, s.Draft().Skills)
}

func TestDraftAlwaysMatchesAssembler(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, true), Options{})
	ext := extractor.NewRules()

	for _, answer := range []string{"", "???", "Jane Smith", "Backend Engineer", "python, go"} {
		_, err := s.SubmitAnswer(ctx, ext, answer)
		require.NoError(t, err)
		assert.Equal(t, assembler.Project(s.Answers()), s.Draft())
	}
}

func TestCompletedAtSetOnce(t *testing.T) {
	clock := newClock()
	s := startedSession(t, exampleScript(t, true), Options{Now: clock.Now})
	ext := extractor.NewRules()
	ctx := context.Background()

	assert.True(t, s.CompletedAt().IsZero())
	_, _ = s.SubmitAnswer(ctx, ext, "Jane Smith")
	_, _ = s.SubmitAnswer(ctx, ext, "Backend Engineer")
	clock.Advance(time.Minute)
	_, _ = s.SubmitAnswer(ctx, ext, "go")
	completedAt := s.CompletedAt()
	assert.Equal(t, clock.Now(), completedAt)

	clock.Advance(time.Minute)
	require.NoError(t, s.AttachArtifact(types.Artifact{Key: "k"}))
	assert.Equal(t, completedAt, s.CompletedAt())
}

func TestResumeAndArtifactRequireCompletion(t *testing.T) {
	ctx := context.Background()
	s := startedSession(t, exampleScript(t, true), Options{})

	_, err := s.Resume()
	require.ErrorIs(t, err, ErrNotReady)
	require.ErrorIs(t, s.AttachArtifact(types.Artifact{Key: "k"}), ErrInvalidState)
	_, ok := s.Artifact()
	assert.False(t, ok)

	ext := extractor.NewRules()
	_, _ = s.SubmitAnswer(ctx, ext, "Jane Smith")
	_, _ = s.SubmitAnswer(ctx, ext, "Backend Engineer")
	_, _ = s.SubmitAnswer(ctx, ext, "generate my resume")

	r, err := s.Resume()
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", r.Name)

	require.NoError(t, s.AttachArtifact(types.Artifact{Key: "k"}))
	assert.Equal(t, StateGenerated, s.State())
	a, ok := s.Artifact()
	require.True(t, ok)
	assert.Equal(t, "k", a.Key)

	require.ErrorIs(t, s.AttachArtifact(types.Artifact{Key: "other"}), ErrInvalidState)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	script := exampleScript(t, true)
	s := startedSession(t, script, Options{})
	ext := extractor.NewRules()
	_, _ = s.SubmitAnswer(ctx, ext, "Jane Smith")

	data, err := s.MarshalSnapshot()
	require.NoError(t, err)

	restored, err := UnmarshalSnapshot(data, script, Options{})
	require.NoError(t, err)
	assert.Equal(t, s.State(), restored.State())
	assert.Equal(t, s.Cursor(), restored.Cursor())
	assert.Equal(t, s.Draft(), restored.Draft())
	assert.Equal(t, s.CurrentPrompt(), restored.CurrentPrompt())

	_, err = restored.Start()
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestRestoreRejectsInconsistentSnapshot(t *testing.T) {
	script := exampleScript(t, true)
	_, err := Restore(Snapshot{ID: "x", State: StateCompleted, Cursor: -1, Artifact: &types.Artifact{Key: "k"}}, script, Options{})
	require.Error(t, err)

	_, err = Restore(Snapshot{ID: "x", Started: true, State: StateActive, Cursor: 7}, script, Options{})
	require.Error(t, err)
}

func TestStateText(t *testing.T) {
	b, err := StateAwaitingConfirmation.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "awaiting_confirmation", string(b))

	var st State
	require.NoError(t, st.UnmarshalText([]byte("generated")))
	assert.Equal(t, StateGenerated, st)
	require.Error(t, st.UnmarshalText([]byte("bogus")))
}

func TestErrorWrapping(t *testing.T) {
	err := NewGenerationError("abc", errors.New("disk full"))
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Contains(t, err.Error(), "abc")
	assert.Contains(t, err.Error(), "disk full")

	var sessErr *Error
	require.True(t, errors.As(err, &sessErr))
	assert.Equal(t, "generate", sessErr.Op)
}

type countingExtractor struct {
	inner extractor.Extractor
	calls int
}

func (c *countingExtractor) Extract(ctx context.Context, text string, field types.FieldID) (types.Answers, error) {
	c.calls++
	return c.inner.Extract(ctx, text, field)
}
