package wizard

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaliph/residence-companion/crop"
	"github.com/jaliph/residence-companion/device"
	"github.com/jaliph/residence-companion/i18n"
	"github.com/jaliph/residence-companion/media"
	"github.com/jaliph/residence-companion/models"
	"github.com/jaliph/residence-companion/review"
)

type failingService struct{}

func (failingService) Submit(ctx context.Context, req review.Request) (review.Disposition, error) {
	return "", errors.New("backend unavailable")
}

type resultSink struct {
	mu      sync.Mutex
	results []models.RegistrationResult
}

func (r *resultSink) collect(res models.RegistrationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *resultSink) all() []models.RegistrationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.RegistrationResult(nil), r.results...)
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30))))
	return buf.Bytes()
}

func newTestSession(t *testing.T, opts Options, svc review.Service, sink *resultSink) *Session {
	t.Helper()
	if opts.SuccessHold == 0 {
		opts.SuccessHold = 10 * time.Millisecond
	}
	var onComplete CompletionFunc
	if sink != nil {
		onComplete = sink.collect
	}
	s := NewSession("test-token", opts, svc, media.NewCapturer(media.NewSimulatedDevice()), onComplete)
	t.Cleanup(s.Close)
	return s
}

// toReview walks a session to the review step with every artifact present
func toReview(t *testing.T, s *Session, docType string) {
	t.Helper()
	require.NoError(t, s.UploadDocument(pngPayload(t)))
	require.NoError(t, s.SelectDocumentType(docType))
	require.NoError(t, s.Next())
	require.NoError(t, s.UploadLiveness(pngPayload(t)))
	require.NoError(t, s.Next())
	require.Equal(t, StepReview, s.Step())
}

func TestNextRequiresDocumentAndType(t *testing.T) {
	s := newTestSession(t, Options{}, review.NewMockService(time.Millisecond), nil)

	assert.ErrorIs(t, s.Next(), ErrDocumentRequired)
	assert.Equal(t, StepDocument, s.Step())

	require.NoError(t, s.UploadDocument(pngPayload(t)))
	assert.True(t, s.View().TypeSelectorOpen)
	assert.ErrorIs(t, s.Next(), ErrDocumentTypeRequired)
	assert.Equal(t, StepDocument, s.Step())

	require.NoError(t, s.SelectDocumentType("passport"))
	assert.False(t, s.View().TypeSelectorOpen)
	assert.True(t, s.View().CanAdvance)
	require.NoError(t, s.Next())
	assert.Equal(t, StepLiveness, s.Step())
}

func TestSelectDocumentTypeValidation(t *testing.T) {
	s := newTestSession(t, Options{}, review.NewMockService(time.Millisecond), nil)

	assert.ErrorIs(t, s.SelectDocumentType("passport"), ErrDocumentRequired)
	require.NoError(t, s.UploadDocument(pngPayload(t)))
	assert.ErrorIs(t, s.SelectDocumentType("library-card"), ErrUnknownDocumentType)
}

func TestNewDocumentImageClearsType(t *testing.T) {
	s := newTestSession(t, Options{}, review.NewMockService(time.Millisecond), nil)
	require.NoError(t, s.UploadDocument(pngPayload(t)))
	require.NoError(t, s.SelectDocumentType("hongkong"))

	require.NoError(t, s.UploadDocument(pngPayload(t)))
	assert.Empty(t, s.View().DocumentType)
	assert.True(t, s.View().TypeSelectorOpen)
}

func TestNewDocumentImageOnReviewReturnsToDocumentStep(t *testing.T) {
	sink := &resultSink{}
	s := newTestSession(t, Options{SuccessHold: time.Hour}, review.NewMockService(time.Millisecond), sink)
	toReview(t, s, "passport")

	require.NoError(t, s.UploadDocument(pngPayload(t)))
	assert.Equal(t, StepDocument, s.Step())
	assert.Empty(t, s.View().DocumentType)

	_, err := s.Submit(context.Background(), review.ActionSubmit)
	assert.ErrorIs(t, err, ErrNotOnReviewStep)
	assert.Equal(t, Idle, s.State())
	assert.ErrorIs(t, s.Next(), ErrDocumentTypeRequired)
	assert.Empty(t, sink.all())
}

func TestSubmitRequiresDocumentType(t *testing.T) {
	s := newTestSession(t, Options{SuccessHold: time.Hour}, review.NewMockService(time.Millisecond), nil)
	toReview(t, s, "passport")

	s.mu.Lock()
	s.documentType = ""
	s.mu.Unlock()

	_, err := s.Submit(context.Background(), review.ActionSubmit)
	assert.ErrorIs(t, err, ErrDocumentTypeRequired)
	assert.Equal(t, Idle, s.State())
}

func TestNewDocumentImageRejectedAfterSubmit(t *testing.T) {
	s := newTestSession(t, Options{SuccessHold: time.Hour}, review.NewMockService(time.Millisecond), nil)
	toReview(t, s, "passport")
	_, err := s.Submit(context.Background(), review.ActionSubmit)
	require.NoError(t, err)

	assert.ErrorIs(t, s.UploadDocument(pngPayload(t)), ErrSubmissionInProgress)
	assert.Equal(t, StepReview, s.Step())
	assert.Equal(t, "passport", s.View().DocumentType)
}

func TestStepTwoGuardWhenLivenessRequired(t *testing.T) {
	s := newTestSession(t, Options{RequireLiveness: true}, review.NewMockService(time.Millisecond), nil)
	require.NoError(t, s.UploadDocument(pngPayload(t)))
	require.NoError(t, s.SelectDocumentType("passport"))
	require.NoError(t, s.Next())

	assert.False(t, s.View().CanAdvance)
	assert.ErrorIs(t, s.Next(), ErrLivenessRequired)
	assert.Equal(t, StepLiveness, s.Step())

	require.NoError(t, s.UploadLiveness(pngPayload(t)))
	require.NoError(t, s.Next())
	assert.Equal(t, StepReview, s.Step())
}

func TestStepTwoUnguardedWhenLivenessOptional(t *testing.T) {
	s := newTestSession(t, Options{RequireLiveness: false}, review.NewMockService(time.Millisecond), nil)
	require.NoError(t, s.UploadDocument(pngPayload(t)))
	require.NoError(t, s.SelectDocumentType("passport"))
	require.NoError(t, s.Next())

	assert.True(t, s.View().CanAdvance)
	require.NoError(t, s.Next())
	assert.Equal(t, StepReview, s.Step())
}

func TestPreviousNeverBelowFirstStep(t *testing.T) {
	s := newTestSession(t, Options{}, review.NewMockService(time.Millisecond), nil)
	require.NoError(t, s.Previous())
	assert.Equal(t, StepDocument, s.Step())

	toReview(t, s, "passport")
	require.NoError(t, s.Previous())
	assert.Equal(t, StepLiveness, s.Step())
	require.NoError(t, s.Previous())
	require.NoError(t, s.Previous())
	assert.Equal(t, StepDocument, s.Step())
}

func TestRetakeResetsDocumentOnly(t *testing.T) {
	s := newTestSession(t, Options{}, review.NewMockService(time.Millisecond), nil)
	toReview(t, s, "macau")

	require.NoError(t, s.Retake())
	v := s.View()
	assert.Equal(t, StepDocument, v.Step)
	assert.Empty(t, v.DocumentImage)
	assert.Empty(t, v.DocumentType)
	assert.False(t, v.TypeSelectorOpen)
	assert.NotEmpty(t, v.LivenessImage)
	assert.ErrorIs(t, s.Next(), ErrDocumentRequired)
}

func TestSubmitPassportAutoApproved(t *testing.T) {
	sink := &resultSink{}
	s := newTestSession(t, Options{}, review.NewMockService(5*time.Millisecond), sink)
	toReview(t, s, "passport")

	d, err := s.Submit(context.Background(), review.ActionSubmit)
	require.NoError(t, err)
	assert.Equal(t, review.AutoApproved, d)
	assert.Equal(t, Succeeded, s.State())

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	res := sink.all()[0]
	assert.Equal(t, "passport", res.DocumentType)
	assert.False(t, res.NeedManualReview)
	assert.Equal(t, "John Doe", res.Name)
	assert.Equal(t, "P123456789", res.IDNumber)
	assert.NotEmpty(t, res.VerificationImage)
	assert.Eventually(t, s.Closed, time.Second, 5*time.Millisecond)
}

func TestSubmitManualReview(t *testing.T) {
	sink := &resultSink{}
	s := newTestSession(t, Options{}, review.NewMockService(5*time.Millisecond), sink)
	toReview(t, s, "passport")

	d, err := s.Submit(context.Background(), review.ActionManualReview)
	require.NoError(t, err)
	assert.Equal(t, review.PendingManualReview, d)

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, sink.all()[0].NeedManualReview)
}

func TestSubmitFromSearchStaysOpen(t *testing.T) {
	sink := &resultSink{}
	s := newTestSession(t, Options{FromSearch: true}, review.NewMockService(time.Millisecond), sink)
	toReview(t, s, "mainland")

	_, err := s.Submit(context.Background(), review.ActionSubmit)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, sink.all()[0].FromSearch)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Closed())
}

func TestSubmitGuards(t *testing.T) {
	s := newTestSession(t, Options{SuccessHold: time.Hour}, review.NewMockService(time.Millisecond), nil)
	_, err := s.Submit(context.Background(), review.ActionSubmit)
	assert.ErrorIs(t, err, ErrNotOnReviewStep)

	toReview(t, s, "passport")
	_, err = s.Submit(context.Background(), review.Action("approve_everything"))
	assert.ErrorIs(t, err, review.ErrUnknownAction)
	assert.Equal(t, Idle, s.State())

	_, err = s.Submit(context.Background(), review.ActionSubmit)
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), review.ActionSubmit)
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
}

func TestSubmitFailureIsRetryable(t *testing.T) {
	s := newTestSession(t, Options{}, failingService{}, nil)
	toReview(t, s, "passport")

	_, err := s.Submit(context.Background(), review.ActionSubmit)
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, Idle, s.State())
	assert.ErrorIs(t, s.LastError(), ErrSubmissionFailed)
	assert.Equal(t, ErrSubmissionFailed.Error(), s.View().LastError)

	s.service = review.NewMockService(time.Millisecond)
	_, err = s.Submit(context.Background(), review.ActionSubmit)
	require.NoError(t, err)
	assert.NoError(t, s.LastError())
}

func TestCloseDuringSubmissionDropsCompletion(t *testing.T) {
	sink := &resultSink{}
	s := newTestSession(t, Options{}, review.NewMockService(time.Hour), sink)
	toReview(t, s, "passport")

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), review.ActionSubmit)
		done <- err
	}()
	require.Eventually(t, func() bool { return s.State() == Submitting }, time.Second, time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("submission did not return after close")
	}
	assert.Empty(t, sink.all())
}

func TestCloseDuringSuccessHoldDropsCompletion(t *testing.T) {
	sink := &resultSink{}
	s := newTestSession(t, Options{SuccessHold: 50 * time.Millisecond}, review.NewMockService(time.Millisecond), sink)
	toReview(t, s, "passport")

	_, err := s.Submit(context.Background(), review.ActionSubmit)
	require.NoError(t, err)
	s.Close()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, sink.all())
	assert.ErrorIs(t, s.Next(), ErrSessionClosed)
}

func TestReviewViewMasksScannedID(t *testing.T) {
	s := newTestSession(t, Options{}, review.NewMockService(time.Millisecond), nil)
	toReview(t, s, "passport")

	v := s.View()
	require.NotNil(t, v.Scanned)
	assert.Equal(t, "******789", v.Scanned.IDNumber)
	assert.Equal(t, "John Doe", v.Scanned.Name)
	assert.Equal(t, "Passport", v.DocumentTypeName)
}

func TestMaskForReview(t *testing.T) {
	assert.Equal(t, "******789", MaskForReview("P123456789"))
	assert.Equal(t, "****", MaskForReview("P123"))
}

func TestLivenessPromptsAreLocalized(t *testing.T) {
	s := newTestSession(t, Options{Locale: i18n.TraditionalChinese}, review.NewMockService(time.Millisecond), nil)
	require.NoError(t, s.UploadDocument(pngPayload(t)))
	require.NoError(t, s.SelectDocumentType("hongkong"))
	require.NoError(t, s.Next())

	v := s.View()
	assert.Equal(t, []string{"請眨眨眼", "請向左轉頭", "請向右轉頭", "請微笑"}, v.LivenessPrompts)
	assert.Equal(t, "香港身份證", v.DocumentTypeName)
	assert.Equal(t, "user", v.CaptureHint)
}

func TestCaptureModeMismatch(t *testing.T) {
	file := newTestSession(t, Options{CaptureMode: FileInput}, review.NewMockService(time.Millisecond), nil)
	assert.ErrorIs(t, file.CaptureDocument(context.Background(), nil, crop.Size{}), ErrCaptureModeMismatch)

	live := newTestSession(t, Options{CaptureMode: LiveCamera}, review.NewMockService(time.Millisecond), nil)
	assert.ErrorIs(t, live.UploadDocument(pngPayload(t)), ErrCaptureModeMismatch)
	assert.ErrorIs(t, live.UploadLiveness(pngPayload(t)), ErrCaptureModeMismatch)
}

func TestLiveCameraCaptureWithCrop(t *testing.T) {
	s := newTestSession(t, Options{CaptureMode: LiveCamera, CropDocument: true, Platform: device.IOS}, review.NewMockService(time.Millisecond), nil)

	sel := crop.Selection{X: 0, Y: 0, Width: 50, Height: 50}
	require.NoError(t, s.CaptureDocument(context.Background(), &sel, crop.Size{}))
	img, err := media.Decode(media.CapturedImage{DataURI: s.View().DocumentImage})
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 360, img.Bounds().Dy())

	require.NoError(t, s.SelectDocumentType("passport"))
	require.NoError(t, s.Next())
	require.NoError(t, s.CaptureLiveness(context.Background()))
	assert.NotEmpty(t, s.View().LivenessImage)
	assert.False(t, s.capturer.Live())
}

func TestCameraFailuresLeaveSessionUntouched(t *testing.T) {
	dev := &media.SimulatedDevice{DenyPermission: true}
	s := NewSession("denied", Options{CaptureMode: LiveCamera}, review.NewMockService(time.Millisecond), media.NewCapturer(dev), nil)
	defer s.Close()

	assert.ErrorIs(t, s.CaptureDocument(context.Background(), nil, crop.Size{}), media.ErrPermissionDenied)
	assert.Empty(t, s.View().DocumentImage)

	noCamera := NewSession("none", Options{CaptureMode: LiveCamera}, review.NewMockService(time.Millisecond), nil, nil)
	defer noCamera.Close()
	assert.ErrorIs(t, noCamera.CaptureLiveness(context.Background()), media.ErrCameraUnavailable)
}

func TestParseCaptureMode(t *testing.T) {
	m, err := ParseCaptureMode("")
	require.NoError(t, err)
	assert.Equal(t, FileInput, m)

	m, err = ParseCaptureMode("live_camera")
	require.NoError(t, err)
	assert.Equal(t, LiveCamera, m)

	_, err = ParseCaptureMode("telepathy")
	assert.Error(t, err)
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(review.NewMockService(time.Millisecond), media.NewSimulatedDevice(), time.Minute, nil)
	defer m.Stop()

	s, expiresAt := m.Create(Options{})
	assert.NotEmpty(t, s.Token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.Equal(t, 1, m.Count())

	other, _ := m.Create(Options{})
	assert.NotEqual(t, s.Token, other.Token)

	got, err := m.Get(s.Token)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Close(s.Token))
	assert.True(t, s.Closed())
	_, err = m.Get(s.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(s.Token), ErrSessionNotFound)
	assert.Equal(t, 1, m.Count())
}

func TestManagerExpiry(t *testing.T) {
	m := NewManager(review.NewMockService(time.Millisecond), nil, time.Minute, nil)
	defer m.Stop()
	now := time.Now()
	m.now = func() time.Time { return now }

	a, _ := m.Create(Options{})
	b, _ := m.Create(Options{})

	now = now.Add(2 * time.Minute)
	_, err := m.Get(a.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, a.Closed())

	m.CleanupExpiredSessions()
	assert.True(t, b.Closed())
	assert.Equal(t, 0, m.Count())
}

func TestManagerCompletedSessionIsForgotten(t *testing.T) {
	sink := &resultSink{}
	m := NewManager(review.NewMockService(time.Millisecond), nil, time.Minute, sink.collect)
	defer m.Stop()

	s, _ := m.Create(Options{SuccessHold: time.Millisecond})
	toReview(t, s, "passport")
	_, err := s.Submit(context.Background(), review.ActionSubmit)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Len(t, sink.all(), 1)
}
