package access

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/logger"
	"github.com/kozaktomas/lab-access/internal/matcher"
	"github.com/kozaktomas/lab-access/internal/vision"
	"go.uber.org/zap"
)

// ErrInvalidRequest is returned for malformed enrollment or update input.
var ErrInvalidRequest = errors.New("invalid request")

// FaceEmbedder computes probe embeddings and derives template embeddings.
type FaceEmbedder interface {
	Embed(ctx context.Context, face *vision.CanonicalFace) ([]float32, error)
	matcher.TemplateEmbedder
}

// Options wires the pipeline stages into a Service.
type Options struct {
	Store         database.Store
	Localizer     vision.Localizer
	Canonicalizer *vision.Canonicalizer
	Embedder      FaceEmbedder
	Matcher       matcher.Matcher
	// Index is kept in sync with roster changes when set.
	Index *database.TemplateIndex
	// ScanDebugDir receives the last scanned frame when set.
	ScanDebugDir string
}

// Service runs scans and roster changes.
type Service struct {
	store         database.Store
	localizer     vision.Localizer
	canonicalizer *vision.Canonicalizer
	embedder      FaceEmbedder
	matcher       matcher.Matcher
	index         *database.TemplateIndex
	debugDir      string

	now   func() time.Time
	newID func() string
}

// NewService creates a service. Store, Localizer, Canonicalizer, Embedder and
// Matcher are required.
func NewService(o Options) (*Service, error) {
	switch {
	case o.Store == nil:
		return nil, errors.New("store is required")
	case o.Localizer == nil:
		return nil, errors.New("localizer is required")
	case o.Canonicalizer == nil:
		return nil, errors.New("canonicalizer is required")
	case o.Embedder == nil:
		return nil, errors.New("embedder is required")
	case o.Matcher == nil:
		return nil, errors.New("matcher is required")
	}
	return &Service{
		store:         o.Store,
		localizer:     o.Localizer,
		canonicalizer: o.Canonicalizer,
		embedder:      o.Embedder,
		matcher:       o.Matcher,
		index:         o.Index,
		debugDir:      o.ScanDebugDir,
		now:           time.Now,
		newID:         uuid.NewString,
	}, nil
}

// Scan runs the pipeline for one frame and records exactly one access event.
// Denials are not errors; the returned error is set only when the event could
// not be written, in which case the decision must not be trusted. Once
// started, a scan runs to completion even if ctx is cancelled.
func (s *Service) Scan(ctx context.Context, labID int64, frame *vision.Frame) (Decision, error) {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	return s.record(ctx, labID, s.evaluate(ctx, labID, frame), start)
}

// Reject records the denial of a scan attempt whose frame could not be read.
func (s *Service) Reject(ctx context.Context, labID int64, cause error) (Decision, error) {
	logger.Warning("scan frame rejected", zap.Int64("lab_id", labID), zap.Error(cause))
	return s.record(context.WithoutCancel(ctx), labID, denied(labID, ReasonInternalError), time.Now())
}

func (s *Service) record(ctx context.Context, labID int64, d Decision, start time.Time) (Decision, error) {
	d.EventID = s.newID()
	d.OccurredAt = s.now().UTC()
	if d.Granted {
		n, err := s.store.CountGranted(ctx, labID, *d.MemberID)
		if err != nil {
			logger.Warning("failed to count previous visits", zap.Int64("lab_id", labID), zap.Error(err))
		}
		d.FirstVisit = err == nil && n == 0
	}
	d.Message = d.message()

	if err := s.store.RecordEvent(ctx, d.event()); err != nil {
		logger.Error("failed to record access event",
			zap.String("event_id", d.EventID), zap.Int64("lab_id", labID), zap.String("reason", d.Reason), zap.Error(err))
		return d, fmt.Errorf("record access event: %w", err)
	}

	fields := []zap.Field{
		zap.String("event_id", d.EventID),
		zap.Int64("lab_id", labID),
		zap.Bool("granted", d.Granted),
		zap.String("reason", d.Reason),
		zap.Duration("took", time.Since(start)),
	}
	if d.MemberID != nil {
		fields = append(fields, zap.Int64("member_id", *d.MemberID))
	}
	if d.Distance != nil {
		fields = append(fields, zap.Float64("distance", *d.Distance))
	}
	logger.Info("scan", fields...)
	return d, nil
}

// evaluate runs localize, canonicalize, embed, match and decide. It never
// panics; any stage failure becomes an InternalError denial.
func (s *Service) evaluate(ctx context.Context, labID int64, frame *vision.Frame) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scan pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
			d = denied(labID, ReasonInternalError)
		}
	}()

	if frame == nil || len(frame.Pix) == 0 {
		return denied(labID, ReasonNoFaceDetected)
	}
	s.saveDebugFrame(frame)

	regions, err := s.localizer.Locate(ctx, frame)
	if err != nil {
		logger.Error("face localization failed", zap.Int64("lab_id", labID), zap.Error(err))
		return denied(labID, ReasonInternalError)
	}
	primary, ok := vision.PrimaryRegion(regions)
	if !ok {
		return denied(labID, ReasonNoFaceDetected)
	}

	face, err := s.canonicalizer.Canonicalize(frame, primary)
	if errors.Is(err, vision.ErrInvalidRegion) {
		logger.Debug("primary region rejected", zap.Error(err))
		return denied(labID, ReasonNoFaceDetected)
	}
	if err != nil {
		logger.Error("canonicalization failed", zap.Error(err))
		return denied(labID, ReasonInternalError)
	}

	probe, err := s.embedder.Embed(ctx, face)
	if err != nil {
		logger.Error("probe embedding failed", zap.Int64("lab_id", labID), zap.Error(err))
		return denied(labID, ReasonInternalError)
	}

	candidates, err := s.store.ListByLab(ctx, labID)
	if err != nil {
		logger.Error("failed to load lab roster", zap.Int64("lab_id", labID), zap.Error(err))
		return denied(labID, ReasonInternalError)
	}

	match, err := s.matcher.Identify(ctx, probe, candidates)
	if err != nil {
		logger.Error("identification failed", zap.Int64("lab_id", labID), zap.Error(err))
		return denied(labID, ReasonInternalError)
	}

	var tpl *database.Template
	if match.Matched {
		tpl, err = s.store.Get(ctx, match.MemberID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			logger.Error("failed to load matched member", zap.Int64("member_id", match.MemberID), zap.Error(err))
			return denied(labID, ReasonInternalError)
		}
	}
	return Decide(labID, match, tpl)
}

func (s *Service) saveDebugFrame(frame *vision.Frame) {
	if s.debugDir == "" {
		return
	}
	data, err := frame.EncodeJPEG(constants.JPEGQuality)
	if err == nil {
		err = os.WriteFile(filepath.Join(s.debugDir, constants.LastScanFrameName), data, 0o600)
	}
	if err != nil {
		logger.Warning("failed to save debug frame", zap.String("dir", s.debugDir), zap.Error(err))
	}
}

// EnrollRequest describes a new member. MemberID 0 lets the store assign one.
type EnrollRequest struct {
	MemberID  int64
	FirstName string
	LastName  string
	LabID     int64
}

func (r *EnrollRequest) validate() error {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.FirstName == "" {
		return fmt.Errorf("%w: first name is required", ErrInvalidRequest)
	}
	if r.LabID <= 0 {
		return fmt.Errorf("%w: lab id is required", ErrInvalidRequest)
	}
	if r.MemberID < 0 {
		return fmt.Errorf("%w: member id must be positive", ErrInvalidRequest)
	}
	return nil
}

// Enroll finds the primary face in frame and stores it as a new template.
// No access event is recorded.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest, frame *vision.Frame) (*database.Template, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetLab(ctx, req.LabID); err != nil {
		return nil, err
	}
	if frame == nil || len(frame.Pix) == 0 {
		return nil, vision.ErrNoFaceDetected
	}

	regions, err := s.localizer.Locate(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("locate face: %w", err)
	}
	primary, ok := vision.PrimaryRegion(regions)
	if !ok {
		return nil, vision.ErrNoFaceDetected
	}
	if len(regions) > 1 {
		logger.Warning("several faces in enrollment frame, using the largest",
			zap.Int("faces", len(regions)), zap.String("name", req.FirstName+" "+req.LastName))
	}

	face, err := s.canonicalizer.Canonicalize(frame, primary)
	if err != nil {
		return nil, err
	}
	return s.EnrollCanonical(ctx, req, face)
}

// EnrollCanonical stores an already canonical face.
func (s *Service) EnrollCanonical(ctx context.Context, req EnrollRequest, face *vision.CanonicalFace) (*database.Template, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	data, err := s.canonicalizer.Encode(face)
	if err != nil {
		return nil, err
	}

	tpl, err := s.store.Enroll(ctx, database.NewTemplate{
		MemberID:  req.MemberID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		LabID:     req.LabID,
		Face:      data,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("member enrolled",
		zap.Int64("member_id", tpl.MemberID), zap.Int64("lab_id", tpl.LabID), zap.String("face_hash", tpl.FaceHash))

	s.indexTemplate(ctx, *tpl)
	return tpl, nil
}

// indexTemplate warms the embedding cache and the index. Failures only delay
// the work to the first scan that needs it.
func (s *Service) indexTemplate(ctx context.Context, tpl database.Template) {
	emb, err := s.embedder.EmbedTemplate(ctx, tpl)
	if err != nil {
		logger.Warning("failed to embed enrolled face", zap.Int64("member_id", tpl.MemberID), zap.Error(err))
		return
	}
	if s.index == nil {
		return
	}
	if err := s.index.Upsert(database.IndexEntry{
		MemberID:  tpl.MemberID,
		LabID:     tpl.LabID,
		FaceHash:  tpl.FaceHash,
		Embedding: emb,
	}); err != nil {
		logger.Warning("failed to index enrolled face", zap.Int64("member_id", tpl.MemberID), zap.Error(err))
	}
}

// UpdateMember edits names or lab. The stored face never changes.
func (s *Service) UpdateMember(ctx context.Context, memberID int64, u database.MemberUpdate) (*database.Template, error) {
	if u.FirstName != nil && strings.TrimSpace(*u.FirstName) == "" {
		return nil, fmt.Errorf("%w: first name cannot be empty", ErrInvalidRequest)
	}
	tpl, err := s.store.Update(ctx, memberID, u)
	if err != nil {
		return nil, err
	}
	if s.index != nil && u.LabID != nil {
		if e, ok := s.index.Lookup(memberID); ok {
			e.LabID = tpl.LabID
			if err := s.index.Upsert(e); err != nil {
				logger.Warning("failed to reindex member", zap.Int64("member_id", memberID), zap.Error(err))
			}
		}
	}
	return tpl, nil
}

// RemoveMember deletes a member. Removing an absent member is a no-op.
func (s *Service) RemoveMember(ctx context.Context, memberID int64) error {
	if err := s.store.Remove(ctx, memberID); err != nil {
		return err
	}
	if s.index != nil {
		s.index.Remove(memberID)
	}
	logger.Info("member removed", zap.Int64("member_id", memberID))
	return nil
}
