// Package wizard drives one companion registration attempt through document
// capture, face capture and review.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jaliph/residence-companion/crop"
	"github.com/jaliph/residence-companion/device"
	"github.com/jaliph/residence-companion/documents"
	"github.com/jaliph/residence-companion/i18n"
	"github.com/jaliph/residence-companion/media"
	"github.com/jaliph/residence-companion/models"
	"github.com/jaliph/residence-companion/review"
	"github.com/jaliph/residence-companion/utils"
	"golang.org/x/text/language"
)

// Step is a position in the wizard
type Step int

const (
	StepDocument Step = 1
	StepLiveness Step = 2
	StepReview   Step = 3
)

// SubmissionState tracks the review submission
type SubmissionState string

const (
	Idle       SubmissionState = "idle"
	Submitting SubmissionState = "submitting"
	Succeeded  SubmissionState = "succeeded"
)

// CaptureMode selects how images enter the wizard
type CaptureMode string

const (
	FileInput  CaptureMode = "file_input"
	LiveCamera CaptureMode = "live_camera"
)

// ParseCaptureMode validates a capture mode name. Empty means FileInput.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch CaptureMode(strings.TrimSpace(s)) {
	case "", FileInput:
		return FileInput, nil
	case LiveCamera:
		return LiveCamera, nil
	}
	return "", fmt.Errorf("unknown capture mode %q", s)
}

const DefaultSuccessHold = 1500 * time.Millisecond

var (
	ErrDocumentRequired     = errors.New("document image required")
	ErrDocumentTypeRequired = errors.New("document type required")
	ErrLivenessRequired     = errors.New("liveness image required")
	ErrUnknownDocumentType  = errors.New("unknown document type")
	ErrNotOnReviewStep      = errors.New("submission is only possible on the review step")
	ErrSubmissionInProgress = errors.New("submission already started")
	ErrSubmissionFailed     = errors.New("submission failed")
	ErrSessionClosed        = errors.New("wizard session closed")
	ErrCaptureModeMismatch  = errors.New("operation not available in this capture mode")
)

// ScannedInfo is what document recognition would have read off the card
type ScannedInfo struct {
	Name       string `json:"name"`
	IDNumber   string `json:"idNumber"`
	ExpiryDate string `json:"expiryDate"`
	BirthDate  string `json:"birthDate"`
}

// Recognition is not implemented; every document reads the same.
var stubScan = ScannedInfo{
	Name:       "John Doe",
	IDNumber:   "P123456789",
	ExpiryDate: "2025-12-31",
	BirthDate:  "1990-01-01",
}

// MaskForReview hides the first six characters of an identifier
func MaskForReview(id string) string {
	r := []rune(id)
	if len(r) <= 6 {
		return strings.Repeat("*", len(r))
	}
	return "******" + string(r[6:])
}

var livenessPrompts = []string{
	i18n.PromptBlink,
	i18n.PromptTurnLeft,
	i18n.PromptTurnRight,
	i18n.PromptSmile,
}

// Options configure a session
type Options struct {
	Locale          language.Tag
	CaptureMode     CaptureMode
	RequireLiveness bool
	CropDocument    bool
	FromSearch      bool
	SuccessHold     time.Duration
	Platform        device.Platform
}

func (o Options) withDefaults() Options {
	if o.Locale == language.Und {
		o.Locale = i18n.English
	}
	if o.CaptureMode == "" {
		o.CaptureMode = FileInput
	}
	if o.SuccessHold <= 0 {
		o.SuccessHold = DefaultSuccessHold
	}
	if o.Platform == "" {
		o.Platform = device.Desktop
	}
	return o
}

// CompletionFunc receives the result of a successful registration
type CompletionFunc func(models.RegistrationResult)

// Session is the state of one registration attempt
type Session struct {
	Token string

	opts       Options
	service    review.Service
	capturer   *media.Capturer
	onComplete CompletionFunc
	onClose    func()

	mu            sync.Mutex
	step          Step
	documentImage media.CapturedImage
	documentType  string
	livenessImage media.CapturedImage
	state         SubmissionState
	disposition   review.Disposition
	lastError     error
	closed        bool
	cancelSubmit  context.CancelFunc
	holdTimer     *time.Timer
	closeOnce     sync.Once
}

// NewSession opens a session at the document step
func NewSession(token string, opts Options, service review.Service, capturer *media.Capturer, onComplete CompletionFunc) *Session {
	return &Session{
		Token:      token,
		opts:       opts.withDefaults(),
		service:    service,
		capturer:   capturer,
		onComplete: onComplete,
		step:       StepDocument,
		state:      Idle,
	}
}

// Options returns the session configuration
func (s *Session) Options() Options {
	return s.opts
}

func (s *Session) checkOpen() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// SetDocumentImage stores a new document image, clears the chosen type and
// returns to the document step
func (s *Session) SetDocumentImage(img media.CapturedImage) error {
	if img.Empty() {
		return media.ErrInvalidImage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.state != Idle {
		return ErrSubmissionInProgress
	}
	s.documentImage = img
	s.documentType = ""
	s.step = StepDocument
	s.lastError = nil
	return nil
}

// UploadDocument accepts a file-input document image
func (s *Session) UploadDocument(payload []byte) error {
	if s.opts.CaptureMode != FileInput {
		return ErrCaptureModeMismatch
	}
	img, err := media.DecodeUpload(payload)
	if err != nil {
		return err
	}
	return s.SetDocumentImage(img)
}

// CaptureDocument takes the document photo with the camera, optionally
// cropping it to sel. A nil selection uses the default crop.
func (s *Session) CaptureDocument(ctx context.Context, sel *crop.Selection, displayed crop.Size) error {
	if s.opts.CaptureMode != LiveCamera {
		return ErrCaptureModeMismatch
	}
	img, err := s.capture(ctx, device.PurposeDocument)
	if err != nil {
		return err
	}
	if s.opts.CropDocument {
		selection := crop.DefaultSelection()
		if sel != nil {
			selection = *sel
		}
		if img, err = crop.Apply(img, displayed, selection); err != nil {
			return fmt.Errorf("failed to crop document: %w", err)
		}
	}
	return s.SetDocumentImage(img)
}

func (s *Session) capture(ctx context.Context, purpose device.Purpose) (media.CapturedImage, error) {
	if s.capturer == nil {
		return media.CapturedImage{}, media.ErrCameraUnavailable
	}
	s.mu.Lock()
	err := s.checkOpen()
	s.mu.Unlock()
	if err != nil {
		return media.CapturedImage{}, err
	}
	return s.capturer.Capture(ctx, media.Constraints{Facing: device.DefaultFacing(s.opts.Platform, purpose)})
}

// SelectDocumentType chooses the document type by catalog id
func (s *Session) SelectDocumentType(id string) error {
	if _, ok := documents.Lookup(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDocumentType, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.documentImage.Empty() {
		return ErrDocumentRequired
	}
	s.documentType = id
	return nil
}

// Retake discards the document image and type and returns to the document step
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.state != Idle {
		return ErrSubmissionInProgress
	}
	s.documentImage = media.CapturedImage{}
	s.documentType = ""
	s.step = StepDocument
	if s.capturer != nil {
		s.capturer.Stop()
	}
	return nil
}

// SetLivenessImage stores the face capture
func (s *Session) SetLivenessImage(img media.CapturedImage) error {
	if img.Empty() {
		return media.ErrInvalidImage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.livenessImage = img
	s.lastError = nil
	return nil
}

// UploadLiveness accepts a file-input face image
func (s *Session) UploadLiveness(payload []byte) error {
	if s.opts.CaptureMode != FileInput {
		return ErrCaptureModeMismatch
	}
	img, err := media.DecodeUpload(payload)
	if err != nil {
		return err
	}
	return s.SetLivenessImage(img)
}

// CaptureLiveness takes the face photo with the front camera
func (s *Session) CaptureLiveness(ctx context.Context) error {
	img, err := s.capture(ctx, device.PurposeLiveness)
	if err != nil {
		return err
	}
	return s.SetLivenessImage(img)
}

// Next advances one step when the current step is complete
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	switch s.step {
	case StepDocument:
		if s.documentImage.Empty() {
			return ErrDocumentRequired
		}
		if s.documentType == "" {
			return ErrDocumentTypeRequired
		}
	case StepLiveness:
		if s.opts.RequireLiveness && s.livenessImage.Empty() {
			return ErrLivenessRequired
		}
	case StepReview:
		return nil
	}
	s.step++
	return nil
}

// Previous goes back one step, never before the first
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.state != Idle {
		return ErrSubmissionInProgress
	}
	if s.step > StepDocument {
		s.step--
	}
	return nil
}

// Submit sends the registration for review. It returns once the service has
// answered; the completion callback runs after the success hold.
func (s *Session) Submit(ctx context.Context, action review.Action) (review.Disposition, error) {
	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if s.step != StepReview {
		s.mu.Unlock()
		return "", ErrNotOnReviewStep
	}
	if s.state != Idle {
		s.mu.Unlock()
		return "", ErrSubmissionInProgress
	}
	if s.documentImage.Empty() {
		s.mu.Unlock()
		return "", ErrDocumentRequired
	}
	if s.documentType == "" {
		s.mu.Unlock()
		return "", ErrDocumentTypeRequired
	}
	if _, err := review.ParseAction(string(action)); err != nil {
		s.mu.Unlock()
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelSubmit = cancel
	s.state = Submitting
	s.lastError = nil
	req := review.Request{
		SessionToken:  s.Token,
		Action:        action,
		DocumentType:  s.documentType,
		DocumentImage: s.documentImage,
		LivenessImage: s.livenessImage,
	}
	s.mu.Unlock()

	disposition, err := s.service.Submit(ctx, req)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelSubmit = nil
	if s.closed {
		return "", ErrSessionClosed
	}
	if err != nil {
		utils.Logger.Warn("Registration submission failed", "session", s.Token, "error", err)
		s.state = Idle
		s.lastError = ErrSubmissionFailed
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	s.state = Succeeded
	s.disposition = disposition
	result := s.resultLocked()
	s.holdTimer = time.AfterFunc(s.opts.SuccessHold, func() { s.complete(result) })
	return disposition, nil
}

func (s *Session) resultLocked() models.RegistrationResult {
	return models.RegistrationResult{
		Name:              stubScan.Name,
		DocumentType:      s.documentType,
		IDNumber:          stubScan.IDNumber,
		ExpiryDate:        stubScan.ExpiryDate,
		BirthDate:         stubScan.BirthDate,
		NeedManualReview:  s.disposition.NeedsManualReview(),
		FromSearch:        s.opts.FromSearch,
		VerificationImage: s.livenessImage.DataURI,
	}
}

// complete hands the result to the caller after the success hold
func (s *Session) complete(result models.RegistrationResult) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.holdTimer = nil
	s.mu.Unlock()

	if s.onComplete != nil {
		s.onComplete(result)
	}
	if !s.opts.FromSearch {
		s.Close()
	}
}

// Close discards the session. Pending submissions and completions become no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.cancelSubmit != nil {
			s.cancelSubmit()
		}
		if s.holdTimer != nil {
			s.holdTimer.Stop()
			s.holdTimer = nil
		}
		onClose := s.onClose
		s.mu.Unlock()

		if s.capturer != nil {
			s.capturer.Stop()
		}
		if onClose != nil {
			onClose()
		}
		utils.Logger.Debug("Wizard session closed", "session", s.Token)
	})
}

// Closed reports whether the session has been discarded
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Step returns the current step
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// State returns the submission state
func (s *Session) State() SubmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error of the last failed submission
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// View is a read-only snapshot of a session
type View struct {
	Token            string             `json:"token"`
	Step             Step               `json:"step"`
	CaptureMode      CaptureMode        `json:"captureMode"`
	CaptureHint      string             `json:"captureHint,omitempty"`
	DocumentImage    string             `json:"documentImage,omitempty"`
	DocumentType     string             `json:"documentType,omitempty"`
	DocumentTypeName string             `json:"documentTypeName,omitempty"`
	TypeSelectorOpen bool               `json:"typeSelectorOpen"`
	LivenessImage    string             `json:"livenessImage,omitempty"`
	LivenessPrompts  []string           `json:"livenessPrompts,omitempty"`
	CanAdvance       bool               `json:"canAdvance"`
	Scanned          *ScannedInfo       `json:"scanned,omitempty"`
	SubmissionState  SubmissionState    `json:"submissionState"`
	Disposition      review.Disposition `json:"disposition,omitempty"`
	FromSearch       bool               `json:"fromSearch"`
	LastError        string             `json:"lastError,omitempty"`
}

// View renders the session for the client
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Token:            s.Token,
		Step:             s.step,
		CaptureMode:      s.opts.CaptureMode,
		DocumentImage:    s.documentImage.DataURI,
		DocumentType:     s.documentType,
		TypeSelectorOpen: !s.documentImage.Empty() && s.documentType == "",
		LivenessImage:    s.livenessImage.DataURI,
		SubmissionState:  s.state,
		Disposition:      s.disposition,
		FromSearch:       s.opts.FromSearch,
	}
	if d, ok := documents.Lookup(s.documentType); ok {
		v.DocumentTypeName = d.Name(s.opts.Locale.String())
	}
	if s.lastError != nil {
		v.LastError = s.lastError.Error()
	}

	switch s.step {
	case StepDocument:
		v.CanAdvance = !s.documentImage.Empty() && s.documentType != ""
		if s.opts.CaptureMode == FileInput {
			v.CaptureHint = device.CaptureAttribute(s.opts.Platform, device.PurposeDocument)
		}
	case StepLiveness:
		v.CanAdvance = !s.opts.RequireLiveness || !s.livenessImage.Empty()
		if s.opts.CaptureMode == FileInput {
			v.CaptureHint = device.CaptureAttribute(s.opts.Platform, device.PurposeLiveness)
		}
		p := i18n.Printer(s.opts.Locale)
		for _, prompt := range livenessPrompts {
			v.LivenessPrompts = append(v.LivenessPrompts, p.Sprintf(prompt))
		}
	case StepReview:
		scanned := stubScan
		scanned.IDNumber = MaskForReview(stubScan.IDNumber)
		v.Scanned = &scanned
	}
	return v
}
